// Package saga implements the propagated-mutation-with-compensation pattern
// used when a coach edits or deletes a question that has been cloned into
// other programs.
//
// The flow is: snapshot the canonical record and its clones, mutate the
// canonical record, fan the same mutation out to every clone concurrently
// with bounded per-record retries, and if any clone exhausts its retry
// budget, restore the snapshot on a best-effort basis. There is no
// transaction spanning the records; the pattern explicitly accepts
// eventual-consistency risk and pairs every forward action with a
// compensating one instead.
package saga

import "errors"

// Error kinds surfaced by a saga run. Callers translate these into terse
// user-facing messages; the internal kind is only for logs and metrics.
var (
	// ErrNotFound means the canonical record was missing (or not visible to
	// the caller) at lookup time. Never retried.
	ErrNotFound = errors.New("record not found")

	// ErrWriteFailed means the primary mutation on the canonical record
	// failed. Nothing else was touched, so no compensation runs.
	ErrWriteFailed = errors.New("write failed")

	// ErrPropagationExhausted means one or more dependent records failed all
	// retry attempts. Compensation is triggered before this is surfaced.
	ErrPropagationExhausted = errors.New("propagation exhausted")

	// ErrCompensationFailed means the revert itself did not fully succeed.
	// Logged only; it never changes the already-decided failure outcome.
	ErrCompensationFailed = errors.New("compensation failed")
)

// Outcome is the structured result handed back to the calling page handler.
// It is binary: there is no partial-success outcome even though the
// underlying rows may be partially mutated.
type Outcome struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Succeed returns a success outcome carrying optional data.
func Succeed(data map[string]interface{}) Outcome {
	return Outcome{Success: true, Data: data}
}

// Fail returns a failure outcome with a user-facing message.
func Fail(message string) Outcome {
	return Outcome{Success: false, Message: message}
}
