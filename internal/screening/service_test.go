package screening

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorby/backend/internal/auth"
	"github.com/yorby/backend/internal/config"
	"github.com/yorby/backend/internal/database"
	"github.com/yorby/backend/internal/saga"
)

type fakeScreeningStore struct {
	jobs      map[string]database.CustomJob
	questions []database.CustomJobQuestion
	apps      map[string]database.JobApplication
	nextID    int
}

func newFakeScreeningStore() *fakeScreeningStore {
	return &fakeScreeningStore{
		jobs: map[string]database.CustomJob{
			"prog-1": {ID: "prog-1", CoachID: "coach-1", JobTitle: "Backend Engineer"},
		},
		questions: []database.CustomJobQuestion{
			{ID: "q1", CustomJobID: "prog-1", Question: "Why this role?"},
		},
		apps: make(map[string]database.JobApplication),
	}
}

func (fs *fakeScreeningStore) GetJob(_ context.Context, jobID string) (*database.CustomJob, error) {
	job, ok := fs.jobs[jobID]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func (fs *fakeScreeningStore) ListQuestionsForJob(context.Context, string) ([]database.CustomJobQuestion, error) {
	return fs.questions, nil
}

func (fs *fakeScreeningStore) CreateJobApplication(_ context.Context, app *database.JobApplication) error {
	fs.nextID++
	app.ID = fmt.Sprintf("app-%d", fs.nextID)
	fs.apps[app.ID] = *app
	return nil
}

func (fs *fakeScreeningStore) GetJobApplication(_ context.Context, applicationID string) (*database.JobApplication, error) {
	app, ok := fs.apps[applicationID]
	if !ok {
		return nil, nil
	}
	return &app, nil
}

func (fs *fakeScreeningStore) ListJobApplications(_ context.Context, jobID string, _ int) ([]database.JobApplication, error) {
	var out []database.JobApplication
	for _, app := range fs.apps {
		if app.CustomJobID == jobID {
			out = append(out, app)
		}
	}
	return out, nil
}

func (fs *fakeScreeningStore) UpdateJobApplication(_ context.Context, applicationID string, update map[string]interface{}) error {
	app, ok := fs.apps[applicationID]
	if !ok {
		return errors.New("row not found")
	}
	if v, ok := update["status"].(string); ok {
		app.Status = v
	}
	if v, ok := update["verdict"].(string); ok {
		app.Verdict = v
	}
	if v, ok := update["score"].(float64); ok {
		app.Score = v
	}
	fs.apps[applicationID] = app
	return nil
}

type scriptedOracle struct {
	response string
	err      error
}

func (so *scriptedOracle) GenerateContent(context.Context, string) (string, error) {
	return so.response, so.err
}

type allowAll struct{}

func (allowAll) ValidateCoach(context.Context, string) (*auth.Identity, error) {
	return &auth.Identity{UserID: "user-1", CoachID: "coach-1"}, nil
}
func (allowAll) OwnsJob(context.Context, string, string) (bool, error) { return true, nil }

var identity = &auth.Identity{UserID: "user-1", CoachID: "coach-1"}

func newTestService(fs *fakeScreeningStore, oracle *scriptedOracle) *Service {
	cfg := config.ScreeningConfig{AdvanceThreshold: 0.75, RejectThreshold: 0.4}
	return NewService(fs, allowAll{}, oracle, nil, cfg, nil)
}

func submit(t *testing.T, svc *Service) *database.JobApplication {
	t.Helper()
	app, err := svc.Submit(context.Background(), SubmitInput{
		ProgramID:      "prog-1",
		CandidateName:  "Ada",
		CandidateEmail: "ada@example.com",
		Answers:        map[string]string{"q1": "Because I love backends."},
	})
	require.NoError(t, err)
	return app
}

func TestSubmitCreatesApplication(t *testing.T) {
	fs := newFakeScreeningStore()
	svc := newTestService(fs, &scriptedOracle{})

	app := submit(t, svc)
	assert.Equal(t, StatusSubmitted, app.Status)
	assert.NotEmpty(t, app.ID)
}

func TestSubmitUnknownProgram(t *testing.T) {
	fs := newFakeScreeningStore()
	svc := newTestService(fs, &scriptedOracle{})

	_, err := svc.Submit(context.Background(), SubmitInput{
		ProgramID: "missing", CandidateName: "Ada", CandidateEmail: "ada@example.com",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, saga.ErrNotFound))
}

func TestScreenAdvancesHighScore(t *testing.T) {
	fs := newFakeScreeningStore()
	svc := newTestService(fs, &scriptedOracle{response: `{"score": 0.9, "summary": "Strong fit."}`})

	app := submit(t, svc)
	screened, err := svc.Screen(context.Background(), identity, app.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusAdvance, screened.Status)
	assert.Equal(t, "Strong fit.", screened.Verdict)
	assert.InDelta(t, 0.9, screened.Score, 0.001)
	assert.Equal(t, StatusAdvance, fs.apps[app.ID].Status, "verdict persisted")
}

func TestScreenRejectsLowScore(t *testing.T) {
	fs := newFakeScreeningStore()
	svc := newTestService(fs, &scriptedOracle{response: `{"score": 0.2, "summary": "Weak answers."}`})

	app := submit(t, svc)
	screened, err := svc.Screen(context.Background(), identity, app.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReject, screened.Status)
}

func TestScreenMidScoreGoesToReview(t *testing.T) {
	fs := newFakeScreeningStore()
	svc := newTestService(fs, &scriptedOracle{response: `{"score": 0.5, "summary": "Mixed."}`})

	app := submit(t, svc)
	screened, err := svc.Screen(context.Background(), identity, app.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReview, screened.Status)
}

func TestScreenStripsCodeFences(t *testing.T) {
	fs := newFakeScreeningStore()
	svc := newTestService(fs, &scriptedOracle{
		response: "```json\n{\"score\": 0.8, \"summary\": \"Good.\"}\n```",
	})

	app := submit(t, svc)
	screened, err := svc.Screen(context.Background(), identity, app.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAdvance, screened.Status)
}

func TestScreenModelFailureLeavesStatusScreening(t *testing.T) {
	fs := newFakeScreeningStore()
	svc := newTestService(fs, &scriptedOracle{err: errors.New("model down")})

	app := submit(t, svc)
	_, err := svc.Screen(context.Background(), identity, app.ID)
	require.Error(t, err)
	assert.Equal(t, StatusScreening, fs.apps[app.ID].Status)
}

func TestListRequiresOwnership(t *testing.T) {
	fs := newFakeScreeningStore()
	svc := newTestService(fs, &scriptedOracle{})
	submit(t, svc)

	apps, err := svc.List(context.Background(), identity, "prog-1", 10)
	require.NoError(t, err)
	assert.Len(t, apps, 1)
}
