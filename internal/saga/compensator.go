package saga

import (
	"context"
	"fmt"
	"log/slog"
)

// RevertFunc undoes one forward action by re-writing pre-mutation state.
type RevertFunc func(ctx context.Context) error

// RevertAction pairs a revert closure with a name for logging.
type RevertAction struct {
	Name string
	Undo RevertFunc
}

// Compensator restores pre-operation state after a failed propagation.
//
// Compensation is best-effort and not transactional: every action is
// attempted regardless of earlier failures, failures are logged, and the
// returned error exists only so the caller can log it — it must never
// change the operation's already-decided failure outcome.
type Compensator struct {
	metrics *Metrics
	logger  *slog.Logger
}

// NewCompensator creates a Compensator. A nil metrics or logger is allowed.
func NewCompensator(metrics *Metrics, logger *slog.Logger) *Compensator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compensator{metrics: metrics, logger: logger}
}

// Run executes every revert action and reports whether any failed. Both the
// edit and delete flows await this call; the result is logged, not
// re-raised.
func (c *Compensator) Run(ctx context.Context, operation string, actions []RevertAction) error {
	c.logger.Info("starting compensation", "operation", operation, "actions", len(actions))

	failed := 0
	for _, action := range actions {
		if err := action.Undo(ctx); err != nil {
			failed++
			c.logger.Error("revert action failed, state may be partially mutated",
				"operation", operation, "action", action.Name, "error", err)
			continue
		}
		c.logger.Info("revert action succeeded",
			"operation", operation, "action", action.Name)
	}

	if failed > 0 {
		c.metrics.recordCompensation(operation, "failed")
		return fmt.Errorf("%d of %d revert action(s) failed: %w",
			failed, len(actions), ErrCompensationFailed)
	}
	c.metrics.recordCompensation(operation, "succeeded")
	return nil
}
