package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorby/backend/internal/config"
	"github.com/yorby/backend/internal/database"
	"github.com/yorby/backend/internal/saga"
)

// fakeOracle routes prompts to canned responses by substring match.
type fakeOracle struct {
	mu        sync.Mutex
	calls     int
	failFirst int // fail this many calls before answering
}

func (fo *fakeOracle) GenerateContent(_ context.Context, prompt string) (string, error) {
	fo.mu.Lock()
	fo.calls++
	fail := fo.failFirst > 0
	if fail {
		fo.failFirst--
	}
	fo.mu.Unlock()

	if fail {
		return "", errors.New("simulated model failure")
	}
	switch {
	case strings.Contains(prompt, "overall assessment"):
		return `{"overview": "Solid performance."}`, nil
	case strings.Contains(prompt, "strengths"):
		// Wrapped in a fence to exercise the stripping path.
		return "```json\n{\"pros\": [\"clear\"], \"cons\": [\"rushed\"]}\n```", nil
	case strings.Contains(prompt, "grading"):
		return `{"question_feedback": [{"question_id": "q1", "score": 0.8, "feedback": "good"}]}`, nil
	}
	return "", errors.New("unexpected prompt")
}

type fakeAnalysisStore struct {
	mu        sync.Mutex
	interview *database.MockInterview
	messages  []database.InterviewMessage
	questions []database.CustomJobQuestion
	feedback  *database.InterviewFeedback
	statuses  []string
}

func (fs *fakeAnalysisStore) GetMockInterview(context.Context, string) (*database.MockInterview, error) {
	return fs.interview, nil
}

func (fs *fakeAnalysisStore) UpdateInterviewStatus(_ context.Context, _, status string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.statuses = append(fs.statuses, status)
	return nil
}

func (fs *fakeAnalysisStore) ListInterviewMessages(context.Context, string) ([]database.InterviewMessage, error) {
	return fs.messages, nil
}

func (fs *fakeAnalysisStore) ListQuestionsForJob(context.Context, string) ([]database.CustomJobQuestion, error) {
	return fs.questions, nil
}

func (fs *fakeAnalysisStore) InsertInterviewFeedback(_ context.Context, feedback *database.InterviewFeedback) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.feedback = feedback
	return nil
}

func (fs *fakeAnalysisStore) GetInterviewFeedback(context.Context, string) (*database.InterviewFeedback, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.feedback, nil
}

func fixtureStore() *fakeAnalysisStore {
	return &fakeAnalysisStore{
		interview: &database.MockInterview{ID: "int-1", CustomJobID: "prog-1", UserID: "user-1", Status: "pending"},
		messages: []database.InterviewMessage{
			{InterviewID: "int-1", Role: "interviewer", Text: "Tell me about yourself."},
			{InterviewID: "int-1", Role: "candidate", Text: "I build backends."},
		},
		questions: []database.CustomJobQuestion{
			{ID: "q1", CustomJobID: "prog-1", Question: "Tell me about yourself.", AnswerGuidelines: "Concise intro."},
		},
	}
}

func instantSleep(context.Context, time.Duration) error { return nil }

func newTestPipeline(fs *fakeAnalysisStore, oracle Oracle) *Pipeline {
	cfg := config.AnalysisConfig{MaxRetries: 3, RetryDelayMs: 1000}
	return NewPipeline(fs, oracle, nil, cfg, nil).WithSleeper(instantSleep)
}

func TestRunAggregatesAllSections(t *testing.T) {
	fs := fixtureStore()
	p := newTestPipeline(fs, &fakeOracle{})

	feedback, err := p.Run(context.Background(), "int-1")
	require.NoError(t, err)

	assert.Equal(t, "Solid performance.", feedback.Overview)
	assert.Equal(t, []string{"clear"}, feedback.Pros)
	assert.Equal(t, []string{"rushed"}, feedback.Cons)
	require.Len(t, feedback.QuestionFeedback, 1)
	assert.Equal(t, "q1", feedback.QuestionFeedback[0].QuestionID)
	assert.InDelta(t, 0.8, feedback.QuestionFeedback[0].Score, 0.001)

	require.NotNil(t, fs.feedback, "feedback persisted")
	assert.Equal(t, []string{StatusAnalyzing, StatusComplete}, fs.statuses)
}

func TestRunRetriesTransientFailures(t *testing.T) {
	fs := fixtureStore()
	oracle := &fakeOracle{failFirst: 2}
	p := newTestPipeline(fs, oracle)

	_, err := p.Run(context.Background(), "int-1")
	require.NoError(t, err, "two failures fit inside the per-section retry budget")
}

func TestRunExhaustionMarksFailed(t *testing.T) {
	fs := fixtureStore()
	// Three sections at three attempts each: nine failures exhaust them all.
	oracle := &fakeOracle{failFirst: 9}
	p := newTestPipeline(fs, oracle)

	_, err := p.Run(context.Background(), "int-1")
	require.Error(t, err)
	assert.Nil(t, fs.feedback, "nothing persisted on failure")
	assert.Equal(t, StatusFailed, fs.statuses[len(fs.statuses)-1])
}

func TestRunIsIdempotent(t *testing.T) {
	fs := fixtureStore()
	fs.feedback = &database.InterviewFeedback{InterviewID: "int-1", Overview: "stored"}
	oracle := &fakeOracle{}
	p := newTestPipeline(fs, oracle)

	feedback, err := p.Run(context.Background(), "int-1")
	require.NoError(t, err)
	assert.Equal(t, "stored", feedback.Overview)
	assert.Zero(t, oracle.calls, "model never invoked")
	assert.Empty(t, fs.statuses, "status untouched")
}

func TestRunMissingInterview(t *testing.T) {
	fs := fixtureStore()
	fs.interview = nil
	p := newTestPipeline(fs, &fakeOracle{})

	_, err := p.Run(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, saga.ErrNotFound))
}
