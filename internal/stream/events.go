// Package stream carries the ordered event protocol from the escalation
// engine to a caller: field updates as they parse, a provisional result, and
// the refining/refined pair when escalation runs.
package stream

import (
	"github.com/cellardex/cellarid/internal/model"
)

// EventType names one entry in the event catalog.
type EventType string

const (
	// EventField is one incremental field update during a tier's stream, or a
	// changed field during refinement.
	EventField EventType = "field"
	// EventResult carries the complete Tier 1 candidate the moment it exists.
	EventResult EventType = "result"
	// EventRefining announces that escalation is running in the background.
	EventRefining EventType = "refining"
	// EventRefined terminates every refining announcement, improved or not.
	EventRefined EventType = "refined"
	// EventError reports an unrecoverable failure. At most one per request,
	// and only before a result has been delivered.
	EventError EventType = "error"
	// EventDone is terminal and always last.
	EventDone EventType = "done"
)

// Event is one (type, payload) pair on the wire.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// FieldPayload is the payload of a field event.
type FieldPayload struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// ResultPayload is the payload of a result event.
type ResultPayload struct {
	Candidate  model.Candidate `json:"candidate"`
	Confidence int             `json:"confidence"`
	MayRefine  bool            `json:"may_refine"`
}

// RefiningPayload is the payload of a refining event.
type RefiningPayload struct {
	Message         string `json:"message"`
	Tier1Confidence int    `json:"tier1_confidence"`
}

// RefinedPayload is the payload of a refined event.
type RefinedPayload struct {
	Improved    bool                     `json:"improved"`
	Candidate   model.Candidate          `json:"candidate"`
	Confidence  int                      `json:"confidence"`
	Escalations []model.EscalationRecord `json:"escalations"`
}

// ErrorKind classifies an error event for the caller.
type ErrorKind string

const (
	ErrorKindTransport   ErrorKind = "transport"
	ErrorKindRejected    ErrorKind = "provider_rejected"
	ErrorKindUnavailable ErrorKind = "unavailable"
	ErrorKindInternal    ErrorKind = "internal"
)

// ErrorPayload is the payload of an error event.
type ErrorPayload struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// DonePayload is the (empty) payload of a done event.
type DonePayload struct{}

// Field builds a field event.
func Field(name string, value any) Event {
	return Event{Type: EventField, Payload: FieldPayload{Field: name, Value: value}}
}

// Result builds a result event.
func Result(c model.Candidate, confidence int, mayRefine bool) Event {
	return Event{Type: EventResult, Payload: ResultPayload{Candidate: c, Confidence: confidence, MayRefine: mayRefine}}
}

// Refining builds a refining event.
func Refining(message string, tier1Confidence int) Event {
	return Event{Type: EventRefining, Payload: RefiningPayload{Message: message, Tier1Confidence: tier1Confidence}}
}

// Refined builds a refined event.
func Refined(improved bool, c model.Candidate, confidence int, escalations []model.EscalationRecord) Event {
	return Event{Type: EventRefined, Payload: RefinedPayload{
		Improved:    improved,
		Candidate:   c,
		Confidence:  confidence,
		Escalations: escalations,
	}}
}

// Error builds an error event.
func Error(kind ErrorKind, message string, retryable bool) Event {
	return Event{Type: EventError, Payload: ErrorPayload{Kind: kind, Message: message, Retryable: retryable}}
}

// Done builds the terminal done event.
func Done() Event {
	return Event{Type: EventDone, Payload: DonePayload{}}
}
