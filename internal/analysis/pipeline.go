package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/yorby/backend/internal/config"
	"github.com/yorby/backend/internal/database"
	"github.com/yorby/backend/internal/events"
	"github.com/yorby/backend/internal/saga"
)

// Interview lifecycle statuses written by the pipeline.
const (
	StatusAnalyzing = "analyzing"
	StatusComplete  = "complete"
	StatusFailed    = "analysis_failed"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	GetMockInterview(ctx context.Context, interviewID string) (*database.MockInterview, error)
	UpdateInterviewStatus(ctx context.Context, interviewID, status string) error
	ListInterviewMessages(ctx context.Context, interviewID string) ([]database.InterviewMessage, error)
	ListQuestionsForJob(ctx context.Context, jobID string) ([]database.CustomJobQuestion, error)
	InsertInterviewFeedback(ctx context.Context, feedback *database.InterviewFeedback) error
	GetInterviewFeedback(ctx context.Context, interviewID string) (*database.InterviewFeedback, error)
}

// Pipeline produces interview feedback from a transcript.
type Pipeline struct {
	store  Store
	oracle Oracle
	bus    events.Bus
	cfg    config.AnalysisConfig
	sleep  saga.Sleeper
	logger *slog.Logger
}

// NewPipeline wires an analysis pipeline. bus may be nil.
func NewPipeline(store Store, oracle Oracle, bus events.Bus, cfg config.AnalysisConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayMs <= 0 {
		cfg.RetryDelayMs = 1000
	}
	return &Pipeline{
		store:  store,
		oracle: oracle,
		bus:    bus,
		cfg:    cfg,
		sleep:  saga.SleepContext,
		logger: logger,
	}
}

// WithSleeper replaces the retry sleep. Used by tests.
func (p *Pipeline) WithSleeper(s saga.Sleeper) *Pipeline {
	p.sleep = s
	return p
}

// Section result shapes the model is asked to produce.

type overviewResult struct {
	Overview string `json:"overview"`
}

type strengthsResult struct {
	Pros []string `json:"pros"`
	Cons []string `json:"cons"`
}

type gradesResult struct {
	QuestionFeedback []database.QuestionGrade `json:"question_feedback"`
}

// Run analyzes the interview and persists the feedback. Running against an
// interview that already has feedback returns the stored row without
// touching the model again.
func (p *Pipeline) Run(ctx context.Context, interviewID string) (*database.InterviewFeedback, error) {
	logger := p.logger.With("interview_id", interviewID)

	existing, err := p.store.GetInterviewFeedback(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("check existing feedback: %w", err)
	}
	if existing != nil {
		logger.Info("feedback already exists, skipping analysis")
		return existing, nil
	}

	interview, err := p.store.GetMockInterview(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("fetch interview: %w", err)
	}
	if interview == nil {
		return nil, fmt.Errorf("interview %s: %w", interviewID, saga.ErrNotFound)
	}

	if err := p.store.UpdateInterviewStatus(ctx, interviewID, StatusAnalyzing); err != nil {
		return nil, fmt.Errorf("mark interview analyzing: %w", err)
	}
	p.publish(ctx, events.TypeAnalysisStarted, interviewID, nil)

	messages, err := p.store.ListInterviewMessages(ctx, interviewID)
	if err != nil {
		return nil, p.failed(ctx, logger, interviewID, fmt.Errorf("fetch transcript: %w", err))
	}
	questions, err := p.store.ListQuestionsForJob(ctx, interview.CustomJobID)
	if err != nil {
		return nil, p.failed(ctx, logger, interviewID, fmt.Errorf("fetch questions: %w", err))
	}

	transcript := renderTranscript(messages)
	feedback := &database.InterviewFeedback{InterviewID: interviewID}

	// The three sections are independent, so they run concurrently. Each one
	// carries its own retry budget.
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		sectionErr error
	)
	run := func(name string, fn func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				mu.Lock()
				if sectionErr == nil {
					sectionErr = fmt.Errorf("section %s: %w", name, err)
				}
				mu.Unlock()
				return
			}
			p.publish(ctx, events.TypeAnalysisSection, interviewID, map[string]interface{}{"section": name})
		}()
	}

	run("overview", func(ctx context.Context) error {
		var out overviewResult
		if err := p.generateJSON(ctx, logger, overviewPrompt(transcript), &out); err != nil {
			return err
		}
		mu.Lock()
		feedback.Overview = out.Overview
		mu.Unlock()
		return nil
	})
	run("strengths", func(ctx context.Context) error {
		var out strengthsResult
		if err := p.generateJSON(ctx, logger, strengthsPrompt(transcript), &out); err != nil {
			return err
		}
		mu.Lock()
		feedback.Pros = out.Pros
		feedback.Cons = out.Cons
		mu.Unlock()
		return nil
	})
	if len(questions) > 0 {
		run("grades", func(ctx context.Context) error {
			var out gradesResult
			if err := p.generateJSON(ctx, logger, gradesPrompt(transcript, questions), &out); err != nil {
				return err
			}
			mu.Lock()
			feedback.QuestionFeedback = out.QuestionFeedback
			mu.Unlock()
			return nil
		})
	}
	wg.Wait()

	if sectionErr != nil {
		return nil, p.failed(ctx, logger, interviewID, sectionErr)
	}

	if err := p.store.InsertInterviewFeedback(ctx, feedback); err != nil {
		return nil, p.failed(ctx, logger, interviewID, fmt.Errorf("store feedback: %w", err))
	}
	if err := p.store.UpdateInterviewStatus(ctx, interviewID, StatusComplete); err != nil {
		logger.Error("feedback stored but status update failed", "error", err)
	}
	p.publish(ctx, events.TypeAnalysisCompleted, interviewID, nil)
	logger.Info("interview analysis complete",
		"questions", len(questions), "messages", len(messages))
	return feedback, nil
}

// generateJSON asks the model for a JSON document and decodes it, retrying
// transient failures with a doubling delay.
func (p *Pipeline) generateJSON(ctx context.Context, logger *slog.Logger, prompt string, out interface{}) error {
	delay := p.cfg.RetryDelay()

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, delay); err != nil {
				return fmt.Errorf("retry delay interrupted: %w", err)
			}
			delay *= 2
		}

		raw, err := p.oracle.GenerateContent(ctx, prompt)
		if err == nil {
			if err = json.Unmarshal([]byte(stripFences(raw)), out); err == nil {
				return nil
			}
			err = fmt.Errorf("decode model output: %w", err)
		}
		lastErr = err
		if attempt < p.cfg.MaxRetries {
			logger.Warn("model call failed, retrying", "attempt", attempt, "error", err)
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", p.cfg.MaxRetries, lastErr)
}

func (p *Pipeline) failed(ctx context.Context, logger *slog.Logger, interviewID string, cause error) error {
	logger.Error("interview analysis failed", "error", cause)
	if err := p.store.UpdateInterviewStatus(ctx, interviewID, StatusFailed); err != nil {
		logger.Error("failed to mark interview as failed", "error", err)
	}
	p.publish(ctx, events.TypeAnalysisFailed, interviewID, map[string]interface{}{"error": cause.Error()})
	return cause
}

func (p *Pipeline) publish(ctx context.Context, eventType events.Type, subject string, data map[string]interface{}) {
	if p.bus == nil {
		return
	}
	_ = p.bus.Publish(ctx, &events.Event{Type: eventType, Subject: subject, Data: data})
}

// ============================================================================
// PROMPTS
// ============================================================================

func renderTranscript(messages []database.InterviewMessage) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func overviewPrompt(transcript string) string {
	return "You are an interview coach reviewing a mock interview transcript.\n" +
		"Write a short overall assessment of the candidate's performance.\n" +
		"Respond with JSON only, shaped as {\"overview\": string}.\n\n" +
		"Transcript:\n" + transcript
}

func strengthsPrompt(transcript string) string {
	return "You are an interview coach reviewing a mock interview transcript.\n" +
		"List the candidate's strengths and areas to improve.\n" +
		"Respond with JSON only, shaped as {\"pros\": [string], \"cons\": [string]}.\n\n" +
		"Transcript:\n" + transcript
}

func gradesPrompt(transcript string, questions []database.CustomJobQuestion) string {
	var b strings.Builder
	b.WriteString("You are an interview coach grading a candidate's answers.\n")
	b.WriteString("For each question below, grade how well the transcript answers it.\n")
	b.WriteString("Respond with JSON only, shaped as {\"question_feedback\": ")
	b.WriteString("[{\"question_id\": string, \"score\": number between 0 and 1, \"feedback\": string}]}.\n\n")
	b.WriteString("Questions:\n")
	for _, q := range questions {
		fmt.Fprintf(&b, "- [%s] %s (guidelines: %s)\n", q.ID, q.Question, q.AnswerGuidelines)
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(transcript)
	return b.String()
}
