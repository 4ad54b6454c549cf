// Package curriculum implements the coach-facing question mutation flows.
//
// Edits and deletes of a question must reach every clone of that question
// in other programs. The flows here follow the saga shape: snapshot, mutate
// the canonical row, fan the mutation out to the clones with bounded
// retries, and restore the snapshot best-effort when propagation fails.
package curriculum

import (
	"context"
	"log/slog"

	"github.com/yorby/backend/internal/auth"
	"github.com/yorby/backend/internal/database"
	"github.com/yorby/backend/internal/events"
	"github.com/yorby/backend/internal/i18n"
	"github.com/yorby/backend/internal/saga"
)

// Operation names used in logs, metrics, and events.
const (
	opEditQuestion   = "edit_question"
	opDeleteQuestion = "delete_question"
	opUpdateStatus   = "update_publication_status"
	opKnowledgeBase  = "update_knowledge_base"
)

// Failure reasons carried in Outcome.Data so handlers can pick the right
// redirect target. The user-facing message stays generic either way.
const (
	ReasonNoPermission = "no_permission"
	ReasonNotFound     = "not_found"
	ReasonFailed       = "failed"
)

// Service runs the question mutation sagas.
type Service struct {
	store       Store
	authz       auth.Authorizer
	messages    i18n.Catalog
	bus         events.Bus
	propagator  *saga.Propagator
	compensator *saga.Compensator
	metrics     *saga.Metrics
	logger      *slog.Logger
}

// NewService wires a curriculum service. bus and metrics may be nil.
func NewService(store Store, authz auth.Authorizer, messages i18n.Catalog, bus events.Bus, cfg saga.Config, metrics *saga.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		authz:       authz,
		messages:    messages,
		bus:         bus,
		propagator:  saga.NewPropagator(cfg, metrics, logger),
		compensator: saga.NewCompensator(metrics, logger),
		metrics:     metrics,
		logger:      logger,
	}
}

// Propagator exposes the underlying propagator for test wiring.
func (s *Service) Propagator() *saga.Propagator { return s.propagator }

// ============================================================================
// INPUTS
// ============================================================================

type EditQuestionInput struct {
	Locale            string
	ProgramID         string
	QuestionID        string
	Question          string
	AnswerGuidelines  string
	PublicationStatus string
}

type DeleteQuestionInput struct {
	Locale     string
	ProgramID  string
	QuestionID string
}

type UpdateStatusInput struct {
	Locale     string
	ProgramID  string
	QuestionID string
	Status     string // "published" or "draft"
}

type KnowledgeBaseInput struct {
	Locale    string
	ProgramID string
	Content   string
}

// ============================================================================
// EDIT
// ============================================================================

// EditQuestion applies an edit to a question and propagates it to every
// clone. On propagation failure the pre-edit snapshot is restored
// best-effort and the operation reports failure.
func (s *Service) EditQuestion(ctx context.Context, identity *auth.Identity, in EditQuestionInput) saga.Outcome {
	logger := s.logger.With(
		"operation", opEditQuestion,
		"question_id", in.QuestionID,
		"program_id", in.ProgramID,
		"coach_id", identity.CoachID,
	)

	if in.QuestionID == "" || in.ProgramID == "" {
		logger.Warn("missing question or program id")
		return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
	}
	if in.Question == "" || in.AnswerGuidelines == "" {
		logger.Warn("missing question or answer guidelines field")
		return s.fail(in.Locale, i18n.KeyMissingFields, ReasonFailed)
	}

	if outcome, ok := s.authorize(ctx, logger, identity, in.ProgramID, in.Locale); !ok {
		return outcome
	}

	canonical, err := s.store.GetQuestionForJob(ctx, in.QuestionID, in.ProgramID)
	if err != nil {
		logger.Error("failed to fetch question for edit", "error", err)
		return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
	}
	if canonical == nil {
		// Message stays generic so the response leaks nothing about the row.
		logger.Error("question not found or does not belong to the program")
		return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonNotFound)
	}
	snapshot := MutationSnapshot{Canonical: *canonical}

	payload := &database.QuestionPayload{
		Question:          in.Question,
		AnswerGuidelines:  in.AnswerGuidelines,
		PublicationStatus: in.PublicationStatus,
		QuestionType:      canonical.QuestionType,
	}

	if err := s.store.UpdateQuestion(ctx, canonical.ID, payload); err != nil {
		// Nothing else changed yet, so no compensation runs.
		logger.Error("canonical question update failed", "error", err)
		s.metrics.RecordOutcome(opEditQuestion, false)
		return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
	}

	dependents, err := s.store.ListQuestionsBySource(ctx, canonical.ID)
	if err != nil {
		// Without the full dependent set, fanning out could leave unknown
		// drift. Abort and restore the canonical row.
		logger.Error("failed to locate cloned questions, aborting", "error", err)
		if cerr := s.compensator.Run(ctx, opEditQuestion, s.canonicalRevert(&snapshot)); cerr != nil {
			logger.Error("canonical revert incomplete", "error", cerr)
		}
		s.metrics.RecordOutcome(opEditQuestion, false)
		return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
	}
	snapshot.Dependents = dependents

	if len(dependents) > 0 {
		err = s.propagator.FanOut(ctx, opEditQuestion, snapshot.DependentIDs(), func(ctx context.Context, recordID string) error {
			return s.store.UpdateQuestion(ctx, recordID, payload)
		})
		if err != nil {
			logger.Error("propagation to cloned questions failed, reverting", "error", err)
			if cerr := s.compensator.Run(ctx, opEditQuestion, s.fullRevert(&snapshot)); cerr != nil {
				logger.Error("compensation incomplete, state may be partially mutated", "error", cerr)
			}
			s.publish(ctx, events.TypeQuestionReverted, canonical.ID, map[string]interface{}{
				"program_id": in.ProgramID,
				"operation":  opEditQuestion,
			})
			s.metrics.RecordOutcome(opEditQuestion, false)
			return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
		}
	}

	logger.Info("question edited", "dependents", len(dependents))
	s.publish(ctx, events.TypeQuestionEdited, canonical.ID, map[string]interface{}{
		"program_id": in.ProgramID,
		"dependents": len(dependents),
	})
	s.metrics.RecordOutcome(opEditQuestion, true)
	return saga.Succeed(map[string]interface{}{"question_id": canonical.ID})
}

// ============================================================================
// DELETE
// ============================================================================

// DeleteQuestion deletes a question and every clone of it. On propagation
// failure the canonical row and all clone rows are re-inserted from the
// snapshot, best-effort.
func (s *Service) DeleteQuestion(ctx context.Context, identity *auth.Identity, in DeleteQuestionInput) saga.Outcome {
	logger := s.logger.With(
		"operation", opDeleteQuestion,
		"question_id", in.QuestionID,
		"program_id", in.ProgramID,
		"coach_id", identity.CoachID,
	)

	if in.QuestionID == "" || in.ProgramID == "" {
		logger.Warn("missing question or program id for deletion")
		return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
	}

	if outcome, ok := s.authorize(ctx, logger, identity, in.ProgramID, in.Locale); !ok {
		return outcome
	}

	canonical, err := s.store.GetQuestionForJob(ctx, in.QuestionID, in.ProgramID)
	if err != nil {
		logger.Error("failed to fetch question for deletion", "error", err)
		return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
	}
	if canonical == nil {
		logger.Error("question not found or does not belong to the program")
		return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonNotFound)
	}
	snapshot := MutationSnapshot{Canonical: *canonical}

	if err := s.store.DeleteQuestion(ctx, canonical.ID); err != nil {
		logger.Error("canonical question delete failed", "error", err)
		s.metrics.RecordOutcome(opDeleteQuestion, false)
		return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
	}

	dependents, err := s.store.ListQuestionsBySource(ctx, canonical.ID)
	if err != nil {
		logger.Error("failed to locate cloned questions, aborting", "error", err)
		if cerr := s.compensator.Run(ctx, opDeleteQuestion, s.canonicalRevert(&snapshot)); cerr != nil {
			logger.Error("canonical revert incomplete", "error", cerr)
		}
		s.metrics.RecordOutcome(opDeleteQuestion, false)
		return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
	}
	snapshot.Dependents = dependents

	if len(dependents) > 0 {
		err = s.propagator.FanOut(ctx, opDeleteQuestion, snapshot.DependentIDs(), func(ctx context.Context, recordID string) error {
			return s.store.DeleteQuestion(ctx, recordID)
		})
		if err != nil {
			logger.Error("propagation of delete failed, reverting", "error", err)
			if cerr := s.compensator.Run(ctx, opDeleteQuestion, s.fullRevert(&snapshot)); cerr != nil {
				logger.Error("compensation incomplete, state may be partially mutated", "error", cerr)
			}
			s.publish(ctx, events.TypeQuestionReverted, canonical.ID, map[string]interface{}{
				"program_id": in.ProgramID,
				"operation":  opDeleteQuestion,
			})
			s.metrics.RecordOutcome(opDeleteQuestion, false)
			return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
		}
	}

	logger.Info("question deleted", "dependents", len(dependents))
	s.publish(ctx, events.TypeQuestionDeleted, canonical.ID, map[string]interface{}{
		"program_id": in.ProgramID,
		"dependents": len(dependents),
	})
	s.metrics.RecordOutcome(opDeleteQuestion, true)
	return saga.Succeed(map[string]interface{}{"program_id": in.ProgramID})
}

// ============================================================================
// PUBLICATION STATUS
// ============================================================================

// UpdatePublicationStatus publishes or unpublishes a question and all of
// its clones.
func (s *Service) UpdatePublicationStatus(ctx context.Context, identity *auth.Identity, in UpdateStatusInput) saga.Outcome {
	logger := s.logger.With(
		"operation", opUpdateStatus,
		"question_id", in.QuestionID,
		"program_id", in.ProgramID,
		"status", in.Status,
		"coach_id", identity.CoachID,
	)

	if in.QuestionID == "" || in.ProgramID == "" || in.Status == "" {
		logger.Warn("missing fields for status update")
		return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
	}

	if outcome, ok := s.authorize(ctx, logger, identity, in.ProgramID, in.Locale); !ok {
		return outcome
	}

	canonical, err := s.store.GetQuestionForJob(ctx, in.QuestionID, in.ProgramID)
	if err != nil {
		logger.Error("failed to fetch question for status update", "error", err)
		return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
	}
	if canonical == nil {
		logger.Error("question not found or does not belong to the program")
		return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonNotFound)
	}
	snapshot := MutationSnapshot{Canonical: *canonical}

	if err := s.store.UpdateQuestionStatus(ctx, canonical.ID, in.Status); err != nil {
		logger.Error("canonical status update failed", "error", err)
		s.metrics.RecordOutcome(opUpdateStatus, false)
		return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
	}

	dependents, err := s.store.ListQuestionsBySource(ctx, canonical.ID)
	if err != nil {
		logger.Error("failed to locate cloned questions, aborting", "error", err)
		if cerr := s.compensator.Run(ctx, opUpdateStatus, s.canonicalStatusRevert(&snapshot)); cerr != nil {
			logger.Error("canonical revert incomplete", "error", cerr)
		}
		s.metrics.RecordOutcome(opUpdateStatus, false)
		return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
	}
	snapshot.Dependents = dependents

	if len(dependents) > 0 {
		err = s.propagator.FanOut(ctx, opUpdateStatus, snapshot.DependentIDs(), func(ctx context.Context, recordID string) error {
			return s.store.UpdateQuestionStatus(ctx, recordID, in.Status)
		})
		if err != nil {
			logger.Error("status propagation failed, reverting", "error", err)
			actions := append(s.canonicalStatusRevert(&snapshot), saga.RevertAction{
				Name: "revert cloned questions",
				Undo: func(ctx context.Context) error {
					return s.store.BulkUpsertQuestions(ctx, snapshot.Dependents)
				},
			})
			if cerr := s.compensator.Run(ctx, opUpdateStatus, actions); cerr != nil {
				logger.Error("compensation incomplete, state may be partially mutated", "error", cerr)
			}
			s.metrics.RecordOutcome(opUpdateStatus, false)
			return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
		}
	}

	logger.Info("publication status updated", "dependents", len(dependents))
	s.publish(ctx, events.TypeQuestionStatusChanged, canonical.ID, map[string]interface{}{
		"program_id": in.ProgramID,
		"status":     in.Status,
	})
	s.metrics.RecordOutcome(opUpdateStatus, true)
	return saga.Succeed(nil)
}

// ============================================================================
// KNOWLEDGE BASE
// ============================================================================

// UpdateKnowledgeBase replaces the knowledge base for a program, creating
// the row if none exists yet.
func (s *Service) UpdateKnowledgeBase(ctx context.Context, identity *auth.Identity, in KnowledgeBaseInput) saga.Outcome {
	logger := s.logger.With(
		"operation", opKnowledgeBase,
		"program_id", in.ProgramID,
		"coach_id", identity.CoachID,
	)

	if in.ProgramID == "" {
		logger.Warn("missing program id")
		return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
	}

	if outcome, ok := s.authorize(ctx, logger, identity, in.ProgramID, in.Locale); !ok {
		return outcome
	}

	existing, err := s.store.GetKnowledgeBase(ctx, in.ProgramID)
	if err != nil {
		logger.Error("failed to check existing knowledge base", "error", err)
		return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
	}

	if existing != nil {
		if err := s.store.UpdateKnowledgeBase(ctx, in.ProgramID, in.Content); err != nil {
			logger.Error("failed to update knowledge base", "error", err)
			return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
		}
	} else {
		kb := &database.KnowledgeBase{CustomJobID: in.ProgramID, KnowledgeBase: in.Content}
		if err := s.store.InsertKnowledgeBase(ctx, kb); err != nil {
			logger.Error("failed to create knowledge base", "error", err)
			return s.fail(in.Locale, i18n.KeyPleaseTryAgain, ReasonFailed)
		}
	}

	logger.Info("knowledge base updated")
	return saga.Outcome{
		Success: true,
		Message: s.messages.Lookup(in.Locale, i18n.KeyKnowledgeBaseOK),
	}
}

// ============================================================================
// HELPERS
// ============================================================================

// authorize checks program ownership. The second return is true when the
// caller may proceed.
func (s *Service) authorize(ctx context.Context, logger *slog.Logger, identity *auth.Identity, programID, locale string) (saga.Outcome, bool) {
	owns, err := s.authz.OwnsJob(ctx, identity.CoachID, programID)
	if err != nil {
		logger.Error("ownership check failed", "error", err)
		return s.fail(locale, i18n.KeyNoPermission, ReasonNoPermission), false
	}
	if !owns {
		logger.Error("program not found or does not belong to the coach")
		return s.fail(locale, i18n.KeyNoPermission, ReasonNoPermission), false
	}
	return saga.Outcome{}, true
}

func (s *Service) canonicalRevert(snapshot *MutationSnapshot) []saga.RevertAction {
	return []saga.RevertAction{{
		Name: "revert canonical question",
		Undo: func(ctx context.Context) error {
			return s.store.UpsertQuestion(ctx, &snapshot.Canonical)
		},
	}}
}

func (s *Service) canonicalStatusRevert(snapshot *MutationSnapshot) []saga.RevertAction {
	return []saga.RevertAction{{
		Name: "revert canonical publication status",
		Undo: func(ctx context.Context) error {
			return s.store.UpdateQuestionStatus(ctx, snapshot.Canonical.ID, snapshot.Canonical.PublicationStatus)
		},
	}}
}

// fullRevert restores the canonical row and every snapshotted clone row,
// not just the ones observed to have changed.
func (s *Service) fullRevert(snapshot *MutationSnapshot) []saga.RevertAction {
	return []saga.RevertAction{
		{
			Name: "revert canonical question",
			Undo: func(ctx context.Context) error {
				return s.store.UpsertQuestion(ctx, &snapshot.Canonical)
			},
		},
		{
			Name: "revert cloned questions",
			Undo: func(ctx context.Context) error {
				return s.store.BulkUpsertQuestions(ctx, snapshot.Dependents)
			},
		},
	}
}

func (s *Service) fail(locale, key, reason string) saga.Outcome {
	return saga.Outcome{
		Success: false,
		Message: s.messages.Lookup(locale, key),
		Data:    map[string]interface{}{"reason": reason},
	}
}

func (s *Service) publish(ctx context.Context, eventType events.Type, subject string, data map[string]interface{}) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(ctx, &events.Event{Type: eventType, Subject: subject, Data: data})
}
