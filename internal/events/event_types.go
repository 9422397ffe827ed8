package events

import (
	"time"

	"github.com/spec-kit/support-gateway/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketOpened  EventType = "ticket_opened"
	EventTicketClosed  EventType = "ticket_closed"
	EventTicketMessage EventType = "ticket_message"
	EventTimerElapsed  EventType = "timer_elapsed"
)

// Event represents a ticket lifecycle event emitted by the tracker.
type Event struct {
	Type         EventType                `json:"type"`
	Ticket       domain.TicketRecord      `json:"ticket"`
	Message      *domain.Message          `json:"message,omitempty"`
	FirstMessage bool                     `json:"first_message,omitempty"`
	Timer        domain.ActivityTimerType `json:"timer,omitempty"`
	Timestamp    time.Time                `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType EventType, ticket domain.TicketRecord) Event {
	return Event{Type: eventType, Ticket: ticket, Timestamp: time.Now().UTC()}
}
