// Package handlers exposes the coach-facing HTTP API. Question mutations
// arrive as form posts from the dashboard; responses are JSON for fetch()
// callers and redirects for plain form submissions.
package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/yorby/backend/internal/auth"
	"github.com/yorby/backend/internal/curriculum"
	"github.com/yorby/backend/internal/saga"
)

// EditQuestion handles POST /api/v1/programs/{programId}/questions/{questionId}/edit.
func EditQuestion(svc *curriculum.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireIdentity(w, r)
		if !ok {
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form body", http.StatusBadRequest)
			return
		}

		vars := mux.Vars(r)
		outcome := svc.EditQuestion(r.Context(), identity, curriculum.EditQuestionInput{
			Locale:            locale(r),
			ProgramID:         vars["programId"],
			QuestionID:        vars["questionId"],
			Question:          r.PostFormValue("question"),
			AnswerGuidelines:  r.PostFormValue("answer_guidelines"),
			PublicationStatus: r.PostFormValue("publication_status"),
		})
		respond(w, r, outcome, questionPath(vars["programId"], vars["questionId"]))
	}
}

// DeleteQuestion handles POST /api/v1/programs/{programId}/questions/{questionId}/delete.
func DeleteQuestion(svc *curriculum.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireIdentity(w, r)
		if !ok {
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form body", http.StatusBadRequest)
			return
		}

		vars := mux.Vars(r)
		outcome := svc.DeleteQuestion(r.Context(), identity, curriculum.DeleteQuestionInput{
			Locale:     locale(r),
			ProgramID:  vars["programId"],
			QuestionID: vars["questionId"],
		})
		respond(w, r, outcome, programPath(vars["programId"]))
	}
}

// UpdatePublicationStatus handles
// POST /api/v1/programs/{programId}/questions/{questionId}/publication-status.
func UpdatePublicationStatus(svc *curriculum.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireIdentity(w, r)
		if !ok {
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form body", http.StatusBadRequest)
			return
		}

		vars := mux.Vars(r)
		outcome := svc.UpdatePublicationStatus(r.Context(), identity, curriculum.UpdateStatusInput{
			Locale:     locale(r),
			ProgramID:  vars["programId"],
			QuestionID: vars["questionId"],
			Status:     r.PostFormValue("status"),
		})
		respond(w, r, outcome, questionPath(vars["programId"], vars["questionId"]))
	}
}

// UpdateKnowledgeBase handles POST /api/v1/programs/{programId}/knowledge-base.
func UpdateKnowledgeBase(svc *curriculum.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireIdentity(w, r)
		if !ok {
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form body", http.StatusBadRequest)
			return
		}

		vars := mux.Vars(r)
		outcome := svc.UpdateKnowledgeBase(r.Context(), identity, curriculum.KnowledgeBaseInput{
			Locale:    locale(r),
			ProgramID: vars["programId"],
			Content:   r.PostFormValue("knowledge_base"),
		})
		respond(w, r, outcome, programPath(vars["programId"]))
	}
}

// ============================================================================
// SHARED HELPERS
// ============================================================================

func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, err := auth.FromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return identity, true
}

// locale comes from the form when present, falling back to the header set
// by the dashboard.
func locale(r *http.Request) string {
	if l := r.PostFormValue("locale"); l != "" {
		return l
	}
	if l := r.Header.Get("X-Locale"); l != "" {
		return l
	}
	return "en"
}

func programPath(programID string) string {
	return "/dashboard/programs/" + programID
}

func questionPath(programID, questionID string) string {
	return programPath(programID) + "/questions/" + questionID
}

// respond renders an outcome. Form posts carrying redirect=1 get a redirect:
// back to the page on an ordinary failure, or to the programs list when the
// program itself is missing or not owned. Everything else gets JSON.
func respond(w http.ResponseWriter, r *http.Request, outcome saga.Outcome, backPath string) {
	if r.PostFormValue("redirect") != "" {
		if outcome.Success {
			http.Redirect(w, r, backPath, http.StatusSeeOther)
			return
		}
		target := backPath
		if reason, _ := outcome.Data["reason"].(string); reason == curriculum.ReasonNoPermission || reason == curriculum.ReasonNotFound {
			target = "/dashboard/programs"
		}
		http.Redirect(w, r, target+"?error_message="+url.QueryEscape(outcome.Message), http.StatusSeeOther)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !outcome.Success {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	json.NewEncoder(w).Encode(outcome)
}
