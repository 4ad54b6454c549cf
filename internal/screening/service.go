// Package screening handles candidate applications: intake, model-assisted
// screening against the program's questions, and coach review listings.
package screening

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yorby/backend/internal/analysis"
	"github.com/yorby/backend/internal/auth"
	"github.com/yorby/backend/internal/config"
	"github.com/yorby/backend/internal/database"
	"github.com/yorby/backend/internal/events"
	"github.com/yorby/backend/internal/saga"
)

// Application statuses.
const (
	StatusSubmitted = "submitted"
	StatusScreening = "screening"
	StatusAdvance   = "advance"
	StatusReject    = "reject"
	StatusReview    = "review"
)

// Store is the persistence surface the screening flow needs.
type Store interface {
	GetJob(ctx context.Context, jobID string) (*database.CustomJob, error)
	ListQuestionsForJob(ctx context.Context, jobID string) ([]database.CustomJobQuestion, error)
	CreateJobApplication(ctx context.Context, app *database.JobApplication) error
	GetJobApplication(ctx context.Context, applicationID string) (*database.JobApplication, error)
	ListJobApplications(ctx context.Context, jobID string, limit int) ([]database.JobApplication, error)
	UpdateJobApplication(ctx context.Context, applicationID string, update map[string]interface{}) error
}

// Service screens applications for a program.
type Service struct {
	store  Store
	authz  auth.Authorizer
	oracle analysis.Oracle
	bus    events.Bus
	cfg    config.ScreeningConfig
	logger *slog.Logger
}

// NewService wires a screening service. bus may be nil.
func NewService(store Store, authz auth.Authorizer, oracle analysis.Oracle, bus events.Bus, cfg config.ScreeningConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AdvanceThreshold <= 0 {
		cfg.AdvanceThreshold = 0.75
	}
	if cfg.RejectThreshold <= 0 {
		cfg.RejectThreshold = 0.4
	}
	return &Service{store: store, authz: authz, oracle: oracle, bus: bus, cfg: cfg, logger: logger}
}

// SubmitInput is a candidate's application to a program.
type SubmitInput struct {
	ProgramID      string
	CandidateName  string
	CandidateEmail string
	Answers        map[string]string // question id -> answer text
}

// Submit records a candidate application against an existing program.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*database.JobApplication, error) {
	if in.ProgramID == "" || in.CandidateName == "" || in.CandidateEmail == "" {
		return nil, fmt.Errorf("program id, name, and email are required")
	}

	job, err := s.store.GetJob(ctx, in.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("fetch program: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("program %s: %w", in.ProgramID, saga.ErrNotFound)
	}

	app := &database.JobApplication{
		CustomJobID:    in.ProgramID,
		CandidateName:  in.CandidateName,
		CandidateEmail: in.CandidateEmail,
		Status:         StatusSubmitted,
		Answers:        in.Answers,
	}
	if err := s.store.CreateJobApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("create application: %w", err)
	}

	s.logger.Info("application submitted",
		"program_id", in.ProgramID, "candidate", in.CandidateEmail)
	return app, nil
}

// verdict is the JSON shape the model is asked to return.
type verdict struct {
	Score   float64 `json:"score"`
	Summary string  `json:"summary"`
}

// Screen runs model-assisted screening over an application's answers and
// records the verdict. The final status comes from comparing the score to
// the configured thresholds, never from the model directly.
func (s *Service) Screen(ctx context.Context, identity *auth.Identity, applicationID string) (*database.JobApplication, error) {
	app, err := s.store.GetJobApplication(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("fetch application: %w", err)
	}
	if app == nil {
		return nil, fmt.Errorf("application %s: %w", applicationID, saga.ErrNotFound)
	}

	owns, err := s.authz.OwnsJob(ctx, identity.CoachID, app.CustomJobID)
	if err != nil {
		return nil, fmt.Errorf("ownership check: %w", err)
	}
	if !owns {
		return nil, fmt.Errorf("application %s: %w", applicationID, saga.ErrNotFound)
	}

	questions, err := s.store.ListQuestionsForJob(ctx, app.CustomJobID)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}

	if err := s.store.UpdateJobApplication(ctx, applicationID, map[string]interface{}{
		"status": StatusScreening,
	}); err != nil {
		return nil, fmt.Errorf("mark application screening: %w", err)
	}

	raw, err := s.oracle.GenerateContent(ctx, screeningPrompt(app, questions))
	if err != nil {
		return nil, fmt.Errorf("screening model call: %w", err)
	}
	var v verdict
	if err := json.Unmarshal([]byte(stripFences(raw)), &v); err != nil {
		return nil, fmt.Errorf("decode screening verdict: %w", err)
	}

	status := StatusReview
	switch {
	case v.Score >= s.cfg.AdvanceThreshold:
		status = StatusAdvance
	case v.Score <= s.cfg.RejectThreshold:
		status = StatusReject
	}

	if err := s.store.UpdateJobApplication(ctx, applicationID, map[string]interface{}{
		"status":  status,
		"verdict": v.Summary,
		"score":   v.Score,
	}); err != nil {
		return nil, fmt.Errorf("record verdict: %w", err)
	}
	app.Status = status
	app.Verdict = v.Summary
	app.Score = v.Score

	s.logger.Info("application screened",
		"application_id", applicationID, "status", status, "score", v.Score)
	if s.bus != nil {
		_ = s.bus.Publish(ctx, &events.Event{
			Type:    events.TypeApplicationScreened,
			Subject: applicationID,
			Data:    map[string]interface{}{"status": status, "score": v.Score},
		})
	}
	return app, nil
}

// List returns the applications for a program the coach owns.
func (s *Service) List(ctx context.Context, identity *auth.Identity, programID string, limit int) ([]database.JobApplication, error) {
	owns, err := s.authz.OwnsJob(ctx, identity.CoachID, programID)
	if err != nil {
		return nil, fmt.Errorf("ownership check: %w", err)
	}
	if !owns {
		return nil, fmt.Errorf("program %s: %w", programID, saga.ErrNotFound)
	}
	return s.store.ListJobApplications(ctx, programID, limit)
}

func screeningPrompt(app *database.JobApplication, questions []database.CustomJobQuestion) string {
	var b strings.Builder
	b.WriteString("You are a recruiter screening a candidate application.\n")
	b.WriteString("Score how well the answers fit the questions, from 0 to 1.\n")
	b.WriteString("Respond with JSON only, shaped as {\"score\": number, \"summary\": string}.\n\n")
	b.WriteString("Questions and answers:\n")
	for _, q := range questions {
		answer := app.Answers[q.ID]
		if answer == "" {
			answer = "(no answer)"
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", q.Question, answer)
	}
	return b.String()
}

// stripFences removes a surrounding markdown code fence from model output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
