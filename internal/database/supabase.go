package database

import (
	"context"
	"fmt"
	"os"

	supabase "github.com/supabase-community/supabase-go"
)

// ============================================================================
// SUPABASE CLIENT - CRUD Operations for All Yorby Tables
// ============================================================================

// SupabaseClient wraps the Supabase Go client with all Yorby operations
type SupabaseClient struct {
	client *supabase.Client
}

// NewSupabaseClient creates a new Supabase client
func NewSupabaseClient() (*SupabaseClient, error) {
	url := os.Getenv("SUPABASE_URL")
	key := os.Getenv("SUPABASE_SERVICE_KEY")

	if url == "" || key == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set")
	}

	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}

	return &SupabaseClient{client: client}, nil
}

// ============================================================================
// DATA MODELS
// ============================================================================

// Coach represents a coach account
type Coach struct {
	CoachID   string `json:"coach_id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Slug      string `json:"slug,omitempty"`
	CreatedAt string `json:"created_at,omitempty"` // String to handle Supabase timestamp format
}

// CustomJob represents a coach-authored program (job)
type CustomJob struct {
	ID             string `json:"id"`
	CoachID        string `json:"coach_id"`
	JobTitle       string `json:"job_title"`
	JobDescription string `json:"job_description,omitempty"`
	CompanyName    string `json:"company_name,omitempty"`
	Status         string `json:"status,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// CustomJobQuestion represents an interview question. Cloned copies carry
// SourceQuestionID pointing back at the question they were cloned from.
type CustomJobQuestion struct {
	ID                string  `json:"id"`
	CustomJobID       string  `json:"custom_job_id"`
	Question          string  `json:"question"`
	AnswerGuidelines  string  `json:"answer_guidelines"`
	QuestionType      string  `json:"question_type,omitempty"`
	PublicationStatus string  `json:"publication_status,omitempty"`
	SourceQuestionID  *string `json:"source_custom_job_question_id,omitempty"`
	CreatedAt         string  `json:"created_at,omitempty"`
}

// QuestionPayload carries the user-editable fields of a question.
type QuestionPayload struct {
	Question          string `json:"question"`
	AnswerGuidelines  string `json:"answer_guidelines"`
	PublicationStatus string `json:"publication_status,omitempty"`
	QuestionType      string `json:"question_type,omitempty"`
}

// KnowledgeBase represents the per-program knowledge base blob
type KnowledgeBase struct {
	ID            string `json:"id,omitempty"`
	CustomJobID   string `json:"custom_job_id"`
	KnowledgeBase string `json:"knowledge_base"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// MockInterview represents a candidate practice session
type MockInterview struct {
	ID          string `json:"id"`
	CustomJobID string `json:"custom_job_id"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// InterviewMessage is one turn of an interview transcript
type InterviewMessage struct {
	ID          string `json:"id,omitempty"`
	InterviewID string `json:"mock_interview_id"`
	Role        string `json:"role"` // "interviewer" or "candidate"
	Text        string `json:"text"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// QuestionGrade is per-question feedback inside InterviewFeedback
type QuestionGrade struct {
	QuestionID string  `json:"question_id"`
	Score      float64 `json:"score"`
	Feedback   string  `json:"feedback"`
}

// InterviewFeedback is the stored output of the analysis pipeline
type InterviewFeedback struct {
	ID               string          `json:"id,omitempty"`
	InterviewID      string          `json:"mock_interview_id"`
	Overview         string          `json:"overview"`
	Pros             []string        `json:"pros"`
	Cons             []string        `json:"cons"`
	QuestionFeedback []QuestionGrade `json:"question_feedback,omitempty"`
	InputTokens      int             `json:"input_tokens,omitempty"`
	OutputTokens     int             `json:"output_tokens,omitempty"`
	CreatedAt        string          `json:"created_at,omitempty"`
}

// JobApplication represents a candidate application in the screening flow
type JobApplication struct {
	ID             string            `json:"id,omitempty"`
	CustomJobID    string            `json:"custom_job_id"`
	CandidateName  string            `json:"candidate_name"`
	CandidateEmail string            `json:"candidate_email"`
	Status         string            `json:"status"` // submitted, screening, advance, reject, review
	Answers        map[string]string `json:"answers,omitempty"`
	Verdict        string            `json:"verdict,omitempty"`
	Score          float64           `json:"score,omitempty"`
	CreatedAt      string            `json:"created_at,omitempty"`
}

// ============================================================================
// COACH OPERATIONS
// ============================================================================

// GetCoachByUserID retrieves the coach row for an authenticated user.
// Returns nil (not error) if the user is not a coach.
func (sc *SupabaseClient) GetCoachByUserID(ctx context.Context, userID string) (*Coach, error) {
	var coaches []Coach
	_, err := sc.client.From("coaches").
		Select("*", "", false).
		Eq("user_id", userID).
		ExecuteTo(&coaches)

	if err != nil {
		return nil, fmt.Errorf("failed to get coach: %w", err)
	}
	if len(coaches) == 0 {
		return nil, nil
	}
	return &coaches[0], nil
}

// ============================================================================
// CUSTOM JOB (PROGRAM) OPERATIONS
// ============================================================================

// GetJobForCoach retrieves a job only if it belongs to the given coach.
// Returns nil (not error) when missing or owned by someone else.
func (sc *SupabaseClient) GetJobForCoach(ctx context.Context, jobID, coachID string) (*CustomJob, error) {
	var jobs []CustomJob
	_, err := sc.client.From("custom_jobs").
		Select("*", "", false).
		Eq("id", jobID).
		Eq("coach_id", coachID).
		ExecuteTo(&jobs)

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// GetJob retrieves a job by ID
func (sc *SupabaseClient) GetJob(ctx context.Context, jobID string) (*CustomJob, error) {
	var jobs []CustomJob
	_, err := sc.client.From("custom_jobs").
		Select("*", "", false).
		Eq("id", jobID).
		ExecuteTo(&jobs)

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// ============================================================================
// QUESTION OPERATIONS
// ============================================================================

// GetQuestion retrieves a question by ID. Returns nil if missing.
func (sc *SupabaseClient) GetQuestion(ctx context.Context, questionID string) (*CustomJobQuestion, error) {
	var questions []CustomJobQuestion
	_, err := sc.client.From("custom_job_questions").
		Select("*", "", false).
		Eq("id", questionID).
		ExecuteTo(&questions)

	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	if len(questions) == 0 {
		return nil, nil
	}
	return &questions[0], nil
}

// GetQuestionForJob retrieves a question only if it belongs to the given job.
func (sc *SupabaseClient) GetQuestionForJob(ctx context.Context, questionID, jobID string) (*CustomJobQuestion, error) {
	var questions []CustomJobQuestion
	_, err := sc.client.From("custom_job_questions").
		Select("*", "", false).
		Eq("id", questionID).
		Eq("custom_job_id", jobID).
		ExecuteTo(&questions)

	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	if len(questions) == 0 {
		return nil, nil
	}
	return &questions[0], nil
}

// ListQuestionsBySource retrieves all cloned questions whose back-reference
// points at the given source question. Full rows, not just ids, since they
// are snapshotted for a potential revert.
func (sc *SupabaseClient) ListQuestionsBySource(ctx context.Context, sourceQuestionID string) ([]CustomJobQuestion, error) {
	var questions []CustomJobQuestion
	_, err := sc.client.From("custom_job_questions").
		Select("*", "", false).
		Eq("source_custom_job_question_id", sourceQuestionID).
		ExecuteTo(&questions)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions by source: %w", err)
	}
	return questions, nil
}

// ListQuestionsForJob retrieves all questions belonging to a job
func (sc *SupabaseClient) ListQuestionsForJob(ctx context.Context, jobID string) ([]CustomJobQuestion, error) {
	var questions []CustomJobQuestion
	_, err := sc.client.From("custom_job_questions").
		Select("*", "", false).
		Eq("custom_job_id", jobID).
		ExecuteTo(&questions)
	return questions, err
}

// UpdateQuestion applies the payload to a single question row
func (sc *SupabaseClient) UpdateQuestion(ctx context.Context, questionID string, payload *QuestionPayload) error {
	var result []CustomJobQuestion
	_, err := sc.client.From("custom_job_questions").
		Update(payload, "", "").
		Eq("id", questionID).
		ExecuteTo(&result)
	return err
}

// UpdateQuestionStatus updates only the publication status of a question
func (sc *SupabaseClient) UpdateQuestionStatus(ctx context.Context, questionID, status string) error {
	update := map[string]interface{}{
		"publication_status": status,
	}
	var result []CustomJobQuestion
	_, err := sc.client.From("custom_job_questions").
		Update(update, "", "").
		Eq("id", questionID).
		ExecuteTo(&result)
	return err
}

// DeleteQuestion deletes a question row
func (sc *SupabaseClient) DeleteQuestion(ctx context.Context, questionID string) error {
	_, _, err := sc.client.From("custom_job_questions").
		Delete("", "").
		Eq("id", questionID).
		Execute()
	return err
}

// UpsertQuestion re-writes a full question row. Used by the revert path to
// restore a snapshot; CreatedAt is cleared so the store keeps managing it.
func (sc *SupabaseClient) UpsertQuestion(ctx context.Context, question *CustomJobQuestion) error {
	q := *question
	q.CreatedAt = ""
	var result []CustomJobQuestion
	_, err := sc.client.From("custom_job_questions").
		Upsert(&q, "", "", "").
		ExecuteTo(&result)
	return err
}

// BulkUpsertQuestions re-writes a set of question rows in one call
func (sc *SupabaseClient) BulkUpsertQuestions(ctx context.Context, questions []CustomJobQuestion) error {
	if len(questions) == 0 {
		return nil
	}
	rows := make([]CustomJobQuestion, len(questions))
	for i, q := range questions {
		rows[i] = q
		rows[i].CreatedAt = ""
	}
	var result []CustomJobQuestion
	_, err := sc.client.From("custom_job_questions").
		Upsert(&rows, "", "", "").
		ExecuteTo(&result)
	return err
}

// ============================================================================
// KNOWLEDGE BASE OPERATIONS
// ============================================================================

// GetKnowledgeBase retrieves the knowledge base for a job. Returns nil if none exists.
func (sc *SupabaseClient) GetKnowledgeBase(ctx context.Context, jobID string) (*KnowledgeBase, error) {
	var entries []KnowledgeBase
	_, err := sc.client.From("custom_job_knowledge_base").
		Select("*", "", false).
		Eq("custom_job_id", jobID).
		ExecuteTo(&entries)

	if err != nil {
		return nil, fmt.Errorf("failed to get knowledge base: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// UpdateKnowledgeBase replaces the knowledge base content for a job
func (sc *SupabaseClient) UpdateKnowledgeBase(ctx context.Context, jobID, content string) error {
	update := map[string]interface{}{
		"knowledge_base": content,
	}
	var result []KnowledgeBase
	_, err := sc.client.From("custom_job_knowledge_base").
		Update(update, "", "").
		Eq("custom_job_id", jobID).
		ExecuteTo(&result)
	return err
}

// InsertKnowledgeBase creates a knowledge base row for a job
func (sc *SupabaseClient) InsertKnowledgeBase(ctx context.Context, kb *KnowledgeBase) error {
	var result []KnowledgeBase
	_, err := sc.client.From("custom_job_knowledge_base").
		Insert(kb, false, "", "", "").
		ExecuteTo(&result)
	return err
}

// ============================================================================
// MOCK INTERVIEW OPERATIONS
// ============================================================================

// GetMockInterview retrieves an interview by ID. Returns nil if missing.
func (sc *SupabaseClient) GetMockInterview(ctx context.Context, interviewID string) (*MockInterview, error) {
	var interviews []MockInterview
	_, err := sc.client.From("mock_interviews").
		Select("*", "", false).
		Eq("id", interviewID).
		ExecuteTo(&interviews)

	if err != nil {
		return nil, fmt.Errorf("failed to get interview: %w", err)
	}
	if len(interviews) == 0 {
		return nil, nil
	}
	return &interviews[0], nil
}

// UpdateInterviewStatus moves an interview through its lifecycle
func (sc *SupabaseClient) UpdateInterviewStatus(ctx context.Context, interviewID, status string) error {
	update := map[string]interface{}{
		"status": status,
	}
	var result []MockInterview
	_, err := sc.client.From("mock_interviews").
		Update(update, "", "").
		Eq("id", interviewID).
		ExecuteTo(&result)
	return err
}

// ListInterviewMessages retrieves the transcript of an interview in order
func (sc *SupabaseClient) ListInterviewMessages(ctx context.Context, interviewID string) ([]InterviewMessage, error) {
	var messages []InterviewMessage
	_, err := sc.client.From("mock_interview_messages").
		Select("*", "", false).
		Eq("mock_interview_id", interviewID).
		Order("created_at", nil).
		ExecuteTo(&messages)
	return messages, err
}

// InsertInterviewFeedback stores the analysis pipeline output
func (sc *SupabaseClient) InsertInterviewFeedback(ctx context.Context, feedback *InterviewFeedback) error {
	var result []InterviewFeedback
	_, err := sc.client.From("mock_interview_feedback").
		Insert(feedback, false, "", "", "").
		ExecuteTo(&result)
	return err
}

// GetInterviewFeedback retrieves stored feedback for an interview. Returns nil if none.
func (sc *SupabaseClient) GetInterviewFeedback(ctx context.Context, interviewID string) (*InterviewFeedback, error) {
	var feedback []InterviewFeedback
	_, err := sc.client.From("mock_interview_feedback").
		Select("*", "", false).
		Eq("mock_interview_id", interviewID).
		ExecuteTo(&feedback)

	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	if len(feedback) == 0 {
		return nil, nil
	}
	return &feedback[0], nil
}

// ============================================================================
// JOB APPLICATION OPERATIONS
// ============================================================================

// CreateJobApplication creates an application row
func (sc *SupabaseClient) CreateJobApplication(ctx context.Context, app *JobApplication) error {
	var result []JobApplication
	_, err := sc.client.From("job_applications").
		Insert(app, false, "", "", "").
		ExecuteTo(&result)
	return err
}

// GetJobApplication retrieves an application by ID. Returns nil if missing.
func (sc *SupabaseClient) GetJobApplication(ctx context.Context, applicationID string) (*JobApplication, error) {
	var apps []JobApplication
	_, err := sc.client.From("job_applications").
		Select("*", "", false).
		Eq("id", applicationID).
		ExecuteTo(&apps)

	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	if len(apps) == 0 {
		return nil, nil
	}
	return &apps[0], nil
}

// ListJobApplications retrieves applications for a job, newest first
func (sc *SupabaseClient) ListJobApplications(ctx context.Context, jobID string, limit int) ([]JobApplication, error) {
	if limit <= 0 {
		limit = 50
	}
	var apps []JobApplication
	_, err := sc.client.From("job_applications").
		Select("*", "", false).
		Eq("custom_job_id", jobID).
		Order("created_at", nil).
		Limit(limit, "").
		ExecuteTo(&apps)
	return apps, err
}

// UpdateJobApplication records a screening verdict on an application
func (sc *SupabaseClient) UpdateJobApplication(ctx context.Context, applicationID string, update map[string]interface{}) error {
	var result []JobApplication
	_, err := sc.client.From("job_applications").
		Update(update, "", "").
		Eq("id", applicationID).
		ExecuteTo(&result)
	return err
}
