package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/yorby/backend/internal/database"
	"github.com/yorby/backend/internal/saga"
	"github.com/yorby/backend/internal/screening"
)

// SubmitApplication handles POST /api/v1/programs/{programId}/applications.
// This is the only unauthenticated mutation: candidates apply without an
// account.
func SubmitApplication(svc *screening.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			CandidateName  string            `json:"candidate_name"`
			CandidateEmail string            `json:"candidate_email"`
			Answers        map[string]string `json:"answers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		app, err := svc.Submit(r.Context(), screening.SubmitInput{
			ProgramID:      mux.Vars(r)["programId"],
			CandidateName:  body.CandidateName,
			CandidateEmail: body.CandidateEmail,
			Answers:        body.Answers,
		})
		if err != nil {
			if errors.Is(err, saga.ErrNotFound) {
				http.Error(w, "Program not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(app)
	}
}

// ScreenApplication handles POST /api/v1/applications/{applicationId}/screen.
func ScreenApplication(svc *screening.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireIdentity(w, r)
		if !ok {
			return
		}

		app, err := svc.Screen(r.Context(), identity, mux.Vars(r)["applicationId"])
		if err != nil {
			if errors.Is(err, saga.ErrNotFound) {
				http.Error(w, "Application not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(app)
	}
}

// ListApplications handles GET /api/v1/programs/{programId}/applications.
func ListApplications(svc *screening.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireIdentity(w, r)
		if !ok {
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		apps, err := svc.List(r.Context(), identity, mux.Vars(r)["programId"], limit)
		if err != nil {
			if errors.Is(err, saga.ErrNotFound) {
				http.Error(w, "Program not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if apps == nil {
			apps = []database.JobApplication{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(apps)
	}
}
