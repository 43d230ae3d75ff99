// Package pipeline sequences one triage run: pre-processing, the
// reasoning/review loop, and post-processing. All mutable state lives in
// the state manager; the runner reads only immutable config.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/triage-labs/sleuth/pkg/agent"
	"github.com/triage-labs/sleuth/pkg/agent/controller"
	"github.com/triage-labs/sleuth/pkg/agent/prompt"
	"github.com/triage-labs/sleuth/pkg/agent/subagent"
	"github.com/triage-labs/sleuth/pkg/config"
	"github.com/triage-labs/sleuth/pkg/llm"
	"github.com/triage-labs/sleuth/pkg/models"
	"github.com/triage-labs/sleuth/pkg/observability"
	"github.com/triage-labs/sleuth/pkg/repo"
)

// Result is what a completed run hands back to the invoker.
type Result struct {
	Answer string
	Steps  []models.Step
}

// Runner owns one triage run. Construct with NewRunner, call Run once.
type Runner struct {
	cfg     *config.Config
	state   *agent.StateManager
	prompts *prompt.Builder

	reasoner *controller.Reasoner
	reviewer *controller.Reviewer
	logPost  *controller.LogPostprocessor
	codePost *controller.CodePostprocessor

	logSearch  *subagent.LogSearchAgent
	codeSearch *subagent.CodeSearchAgent
}

// NewRunner wires a pipeline for one user query over the given chat
// history. obs may be nil when the logs data source is disabled.
func NewRunner(
	cfg *config.Config,
	client llm.Client,
	obs observability.Client,
	state *agent.StateManager,
	userQuery string,
) *Runner {
	prompts := prompt.NewBuilder(cfg.RepoPath, cfg.CodebaseOverview)
	executor := agent.NewToolExecutor(repo.NewTools(cfg.RepoPath), obs)

	deps := subagent.Deps{
		LLM:       client,
		Model:     cfg.LLM.FastModel,
		State:     state,
		Executor:  executor,
		Prompts:   prompts,
		Obs:       obs,
		UserQuery: userQuery,
	}

	return &Runner{
		cfg:        cfg,
		state:      state,
		prompts:    prompts,
		reasoner:   controller.NewReasoner(client, cfg.LLM.ReasoningModel, state, prompts),
		reviewer:   controller.NewReviewer(client, cfg.LLM.ReasoningModel, state, prompts),
		logPost:    controller.NewLogPostprocessor(client, cfg.LLM.FastModel, state, prompts, obs),
		codePost:   controller.NewCodePostprocessor(client, cfg.LLM.FastModel, state, prompts, cfg.RepoPath),
		logSearch:  subagent.NewLogSearchAgent(deps, cfg.MaxSubAgentIterations),
		codeSearch: subagent.NewCodeSearchAgent(deps, cfg.RepoPath, cfg.MaxSubAgentIterations),
	}
}

// Run executes the full pipeline and returns the answer plus the
// current-turn transcript. Cancellation propagates to the caller unchanged;
// the partial transcript is always retrievable from the state manager.
func (r *Runner) Run(ctx context.Context, userQuery string) (*Result, error) {
	if err := r.preProcess(ctx, userQuery); err != nil {
		return nil, err
	}
	answer, err := r.reason(ctx, userQuery)
	if err != nil {
		return nil, err
	}
	r.state.SetAnswer(answer)

	if err := r.postProcess(ctx); err != nil {
		return nil, err
	}

	return &Result{
		Answer: r.state.GetAnswer(),
		Steps:  r.state.GetSteps(agent.ScopeCurrent),
	}, nil
}

// preProcess issues one initial log-search and one code-search delegation
// so the reasoner starts with a full picture of the incident.
func (r *Runner) preProcess(ctx context.Context, userQuery string) error {
	g, gctx := errgroup.WithContext(ctx)

	if r.cfg.DataSourceEnabled(config.DataSourceLogs) {
		g.Go(func() error {
			_, err := agent.Timed("preprocess.logSearch", func() (*subagent.Outcome, error) {
				return r.logSearch.Invoke(gctx, subagent.Request{
					Request:   fmt.Sprintf("Find the logs that give a full picture of this incident: %s", userQuery),
					Reasoning: "initial log context",
				})
			})
			return err
		})
	}
	if r.cfg.DataSourceEnabled(config.DataSourceCode) {
		g.Go(func() error {
			_, err := agent.Timed("preprocess.codeSearch", func() (*subagent.Outcome, error) {
				return r.codeSearch.Invoke(gctx, subagent.Request{
					Request:   fmt.Sprintf("Find the code paths most relevant to this incident: %s", userQuery),
					Reasoning: "initial code context",
				})
			})
			return err
		})
	}
	return g.Wait()
}

// reason runs the reasoner until it produces an answer the reviewer accepts
// (or review is disabled / the rejection budget is spent).
func (r *Runner) reason(ctx context.Context, userQuery string) (string, error) {
	rejections := 0
	var extra []llm.Message
	var lastCandidate string

	for pass := 0; pass < r.cfg.MaxReasoningPasses; pass++ {
		outcome, err := r.reasoner.Run(ctx, extra)
		if err != nil {
			return "", err
		}
		extra = nil

		if outcome.Kind == controller.OutcomeSubAgentCalls {
			if err := r.dispatch(ctx, outcome.Calls); err != nil {
				return "", err
			}
			continue
		}

		lastCandidate = outcome.Content
		if !r.cfg.ReviewEnabled {
			return lastCandidate, nil
		}

		decision, err := r.reviewer.Run(ctx, userQuery, lastCandidate)
		if err != nil {
			return "", err
		}
		if decision.Accepted {
			return lastCandidate, nil
		}

		rejections++
		if rejections >= r.cfg.MaxReviewRejections {
			slog.Warn("Review rejection budget spent, accepting last candidate",
				"rejections", rejections)
			return lastCandidate, nil
		}
		extra = []llm.Message{{
			Role: llm.RoleUser,
			Content: fmt.Sprintf(
				"A reviewer rejected your previous analysis:\n%s\n\nAddress the objection and answer again.",
				decision.Reasoning),
		}}
	}

	if lastCandidate != "" {
		slog.Warn("Reasoning pass budget spent, using last candidate")
		return lastCandidate, nil
	}
	return "", fmt.Errorf("reasoner produced no answer within %d passes", r.cfg.MaxReasoningPasses)
}

// dispatch invokes the matching sub-agent for each delegation, synchronously
// and in emission order.
func (r *Runner) dispatch(ctx context.Context, calls []controller.SubAgentCall) error {
	for _, call := range calls {
		switch call.Type {
		case controller.SubAgentCallLog:
			if !r.cfg.DataSourceEnabled(config.DataSourceLogs) {
				slog.Warn("Reasoner delegated to disabled logs data source, skipping")
				continue
			}
			if _, err := r.logSearch.Invoke(ctx, call.Request); err != nil {
				return err
			}
		case controller.SubAgentCallCode:
			if !r.cfg.DataSourceEnabled(config.DataSourceCode) {
				slog.Warn("Reasoner delegated to disabled code data source, skipping")
				continue
			}
			if _, err := r.codeSearch.Invoke(ctx, call.Request); err != nil {
				return err
			}
		}
	}
	return nil
}

// postProcess fans out fact extraction, one task per enabled data source.
func (r *Runner) postProcess(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if r.cfg.DataSourceEnabled(config.DataSourceLogs) {
		g.Go(func() error {
			_, err := agent.Timed("postprocess.logs", func() (struct{}, error) {
				return struct{}{}, r.logPost.Run(gctx)
			})
			return err
		})
	}
	if r.cfg.DataSourceEnabled(config.DataSourceCode) {
		g.Go(func() error {
			_, err := agent.Timed("postprocess.code", func() (struct{}, error) {
				return struct{}{}, r.codePost.Run(gctx)
			})
			return err
		})
	}
	return g.Wait()
}
