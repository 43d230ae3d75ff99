package models

// LogFact is a post-processor citation pointing at a log query window.
// Query carries the (possibly narrowed and keyword-highlighted) query spec
// that reproduces the cited evidence.
type LogFact struct {
	Title string         `json:"title" jsonschema:"description=Short headline for this fact"`
	Fact  string         `json:"fact" jsonschema:"description=One or two sentences stating what the logs show"`
	Query LogSearchInput `json:"query" jsonschema:"description=Log query that reproduces the cited evidence"`
}

// CodeFact is a post-processor citation pointing at a source line range.
// Filepath is always relative to the configured repository root.
type CodeFact struct {
	Title     string `json:"title" jsonschema:"description=Short headline for this fact"`
	Fact      string `json:"fact" jsonschema:"description=One or two sentences stating what the code shows"`
	Filepath  string `json:"filepath" jsonschema:"description=File path relative to the repository root"`
	StartLine int    `json:"startLine" jsonschema:"description=First cited line (1-based)"`
	EndLine   int    `json:"endLine" jsonschema:"description=Last cited line (inclusive)"`
}

// MaxFactsPerKind bounds how many facts each post-processor may emit.
const MaxFactsPerKind = 8
