// Package auth gates mutations on coach identity and program ownership.
// Session handling itself lives at the edge (gateway / Supabase auth); this
// package only answers "is this user a coach" and "does this coach own this
// program" so the mutation services stay testable without a real database.
package auth

import (
	"context"
	"errors"

	"github.com/yorby/backend/internal/database"
)

// Identity is the validated caller identity injected into request context.
type Identity struct {
	UserID  string
	CoachID string
}

// Authorizer is the black-box ownership gate in front of every mutation.
type Authorizer interface {
	// ValidateCoach resolves the coach identity for a user.
	// Returns nil (not error) when the user is not a coach.
	ValidateCoach(ctx context.Context, userID string) (*Identity, error)

	// OwnsJob reports whether the coach owns the given program.
	OwnsJob(ctx context.Context, coachID, jobID string) (bool, error)
}

// SupabaseAuthorizer backs Authorizer with the coaches and custom_jobs tables.
type SupabaseAuthorizer struct {
	db *database.SupabaseClient
}

func NewSupabaseAuthorizer(db *database.SupabaseClient) *SupabaseAuthorizer {
	return &SupabaseAuthorizer{db: db}
}

func (a *SupabaseAuthorizer) ValidateCoach(ctx context.Context, userID string) (*Identity, error) {
	coach, err := a.db.GetCoachByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if coach == nil {
		return nil, nil
	}
	return &Identity{UserID: userID, CoachID: coach.CoachID}, nil
}

func (a *SupabaseAuthorizer) OwnsJob(ctx context.Context, coachID, jobID string) (bool, error) {
	job, err := a.db.GetJobForCoach(ctx, jobID, coachID)
	if err != nil {
		return false, err
	}
	return job != nil, nil
}

// ============================================================================
// CONTEXT HELPERS
// ============================================================================

type contextKey string

const identityKey contextKey = "identity"

// ErrNoIdentity is returned when a handler runs without an authenticated caller.
var ErrNoIdentity = errors.New("no identity in context")

// WithIdentity injects a validated identity into the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the validated identity set by the auth middleware.
func FromContext(ctx context.Context) (*Identity, error) {
	id, ok := ctx.Value(identityKey).(*Identity)
	if !ok || id == nil {
		return nil, ErrNoIdentity
	}
	return id, nil
}
