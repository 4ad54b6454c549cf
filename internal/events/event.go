// Package events distributes domain events to in-process and cross-pod
// subscribers. The realtime hub bridges these to websocket clients so the
// dashboard can show analysis progress as it happens.
package events

import (
	"context"
	"time"
)

// Type identifies a kind of domain event.
type Type string

const (
	TypeQuestionEdited        Type = "question.edited"
	TypeQuestionDeleted       Type = "question.deleted"
	TypeQuestionStatusChanged Type = "question.status_changed"
	TypeQuestionReverted      Type = "question.reverted"
	TypeAnalysisStarted       Type = "interview.analysis_started"
	TypeAnalysisSection       Type = "interview.analysis_section"
	TypeAnalysisCompleted     Type = "interview.analysis_completed"
	TypeAnalysisFailed        Type = "interview.analysis_failed"
	TypeApplicationScreened   Type = "application.screened"
)

// Event is the envelope for all Yorby domain events.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	Subject   string                 `json:"subject,omitempty"` // record id the event is about
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Handler processes a delivered event.
type Handler func(ctx context.Context, event *Event) error

// Bus is the pub/sub surface the services publish through. LocalBus covers a
// single process; RedisBus adds cross-pod delivery.
type Bus interface {
	// Publish delivers the event to subscribers. Delivery is asynchronous
	// and best-effort; a publish failure never fails the operation that
	// produced the event.
	Publish(ctx context.Context, event *Event) error

	// Subscribe registers a handler for one event type and returns an
	// unsubscribe function.
	Subscribe(eventType Type, handler Handler) (unsubscribe func())
}
