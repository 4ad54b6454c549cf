package curriculum

import (
	"context"

	"github.com/yorby/backend/internal/database"
)

// Store is the persistence surface the question mutation flows need.
// *database.SupabaseClient satisfies it; tests use an in-memory fake.
type Store interface {
	GetQuestionForJob(ctx context.Context, questionID, jobID string) (*database.CustomJobQuestion, error)
	ListQuestionsBySource(ctx context.Context, sourceQuestionID string) ([]database.CustomJobQuestion, error)

	UpdateQuestion(ctx context.Context, questionID string, payload *database.QuestionPayload) error
	UpdateQuestionStatus(ctx context.Context, questionID, status string) error
	DeleteQuestion(ctx context.Context, questionID string) error

	// UpsertQuestion and BulkUpsertQuestions re-write snapshot rows during a
	// revert, with store-managed fields omitted.
	UpsertQuestion(ctx context.Context, question *database.CustomJobQuestion) error
	BulkUpsertQuestions(ctx context.Context, questions []database.CustomJobQuestion) error

	GetKnowledgeBase(ctx context.Context, jobID string) (*database.KnowledgeBase, error)
	UpdateKnowledgeBase(ctx context.Context, jobID, content string) error
	InsertKnowledgeBase(ctx context.Context, kb *database.KnowledgeBase) error
}
