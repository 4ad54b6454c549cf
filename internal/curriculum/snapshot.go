package curriculum

import "github.com/yorby/backend/internal/database"

// MutationSnapshot captures the full pre-mutation state of a question and
// its cloned copies. It lives only for the duration of one operation and is
// the sole input to the revert path, so it always holds full rows, never
// just ids.
type MutationSnapshot struct {
	Canonical  database.CustomJobQuestion
	Dependents []database.CustomJobQuestion
}

// DependentIDs returns the ids of the snapshotted clones.
func (s *MutationSnapshot) DependentIDs() []string {
	ids := make([]string, len(s.Dependents))
	for i, d := range s.Dependents {
		ids[i] = d.ID
	}
	return ids
}
