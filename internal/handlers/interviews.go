package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/yorby/backend/internal/analysis"
	"github.com/yorby/backend/internal/saga"
)

// TriggerAnalysis handles POST /api/v1/interviews/{interviewId}/analyze.
// The pipeline runs synchronously; progress is streamed to the dashboard
// over the realtime socket while the request is in flight.
func TriggerAnalysis(pipeline *analysis.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireIdentity(w, r); !ok {
			return
		}

		interviewID := mux.Vars(r)["interviewId"]
		feedback, err := pipeline.Run(r.Context(), interviewID)
		if err != nil {
			if errors.Is(err, saga.ErrNotFound) {
				http.Error(w, "Interview not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(feedback)
	}
}

// GetFeedback handles GET /api/v1/interviews/{interviewId}/feedback.
func GetFeedback(store analysis.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireIdentity(w, r); !ok {
			return
		}

		interviewID := mux.Vars(r)["interviewId"]
		feedback, err := store.GetInterviewFeedback(r.Context(), interviewID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if feedback == nil {
			http.Error(w, "Feedback not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(feedback)
	}
}
