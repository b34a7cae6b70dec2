package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of lifecycle change announced to subscribers.
type EventType string

const (
	EventSimActivated   EventType = "SIM_ACTIVATED"
	EventSimDeactivated EventType = "SIM_DEACTIVATED"
	EventSimBlocked     EventType = "SIM_BLOCKED"
	EventSimUnblocked   EventType = "SIM_UNBLOCKED"
)

// AllEventTypes lists every event type a webhook may subscribe to.
func AllEventTypes() []EventType {
	return []EventType{EventSimActivated, EventSimDeactivated, EventSimBlocked, EventSimUnblocked}
}

// IsValid reports whether t is a known event type.
func (t EventType) IsValid() bool {
	switch t {
	case EventSimActivated, EventSimDeactivated, EventSimBlocked, EventSimUnblocked:
		return true
	}
	return false
}

// EventTypeFor maps a transition edge to the event announced for it.
func EventTypeFor(from, to SimStatus) EventType {
	switch {
	case to == SimStatusBlocked:
		return EventSimBlocked
	case from == SimStatusBlocked:
		return EventSimUnblocked
	case to == SimStatusActive:
		return EventSimActivated
	default:
		return EventSimDeactivated
	}
}

// Initiator records who caused a transition.
type Initiator string

const (
	InitiatorSystem Initiator = "SYSTEM"
	InitiatorUser   Initiator = "USER"
	InitiatorAPI    Initiator = "API"
)

// IsValid reports whether i is a known initiator.
func (i Initiator) IsValid() bool {
	return i == InitiatorSystem || i == InitiatorUser || i == InitiatorAPI
}

// SimSnapshot is the SIM identity captured at event time.
type SimSnapshot struct {
	SimID uuid.UUID `json:"sim_id"`
	ICCID string    `json:"iccid"`
}

// DomainEvent is the immutable record of one completed SIM transition.
// Its JSON form is the body of every webhook delivery.
type DomainEvent struct {
	EventID        uuid.UUID   `json:"event_id"`
	EventType      EventType   `json:"event_type"`
	Timestamp      time.Time   `json:"timestamp"`
	Sim            SimSnapshot `json:"sim"`
	PreviousStatus SimStatus   `json:"previous_status"`
	NewStatus      SimStatus   `json:"new_status"`
	Reason         *string     `json:"reason,omitempty"`
	InitiatedBy    Initiator   `json:"initiated_by"`
	CorrelationID  *string     `json:"correlation_id,omitempty"`
}

// NewDomainEvent builds the event for a transition of sim from previous to
// sim.Status. Event ids are UUIDv7 so they sort by creation time.
func NewDomainEvent(sim Sim, previous SimStatus, reason *string, by Initiator, correlationID *string, at time.Time) (*DomainEvent, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating event id: %w", err)
	}
	return &DomainEvent{
		EventID:        id,
		EventType:      EventTypeFor(previous, sim.Status),
		Timestamp:      at.UTC(),
		Sim:            SimSnapshot{SimID: sim.ID, ICCID: sim.ICCID},
		PreviousStatus: previous,
		NewStatus:      sim.Status,
		Reason:         reason,
		InitiatedBy:    by,
		CorrelationID:  correlationID,
	}, nil
}

// Marshal serializes the event. Struct field order is fixed, so the output is
// deterministic for a given event.
func (e *DomainEvent) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshaling event %s: %w", e.EventID, err)
	}
	return b, nil
}
