package agent

import (
	"log/slog"
	"time"
)

// Timed runs fn and logs its wall-clock duration under name. Used by
// pipeline nodes to record per-phase timings without wrapping types.
func Timed[T any](name string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	slog.Debug("timed call finished",
		"name", name, "duration", time.Since(start), "failed", err != nil)
	return v, err
}
