package notify

import (
	"context"
	"time"

	"jam3a/internal/domain"

	"github.com/google/uuid"
)

// EventType names a deal lifecycle event
type EventType string

const (
	EventDealJoined    EventType = "deal.joined"
	EventDealCompleted EventType = "deal.completed"
)

// DealSummary is the part of a deal carried in notifications
type DealSummary struct {
	ID                  uuid.UUID         `json:"id"`
	Code                string            `json:"code"`
	Title               string            `json:"title"`
	Jam3aPrice          float64           `json:"jam3a_price"`
	CurrentParticipants int               `json:"current_participants"`
	MaxParticipants     int               `json:"max_participants"`
	Status              domain.DealStatus `json:"status"`
}

// ProductSummary is the product a participant selected, if any
type ProductSummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Event is delivered to every configured sink
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       EventType       `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	UserID     *uuid.UUID      `json:"user_id,omitempty"`
	Deal       DealSummary     `json:"deal"`
	Product    *ProductSummary `json:"product,omitempty"`
}

// Dispatcher delivers events. Callers treat delivery as best effort: an
// error is logged, never surfaced to the user action that caused it.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

// NewJoinedEvent describes a successful join
func NewJoinedEvent(deal *domain.Deal, userID uuid.UUID, product *domain.Product, at time.Time) Event {
	event := Event{
		ID:         uuid.New(),
		Type:       EventDealJoined,
		OccurredAt: at,
		UserID:     &userID,
		Deal:       summarize(deal),
	}
	if product != nil {
		event.Product = &ProductSummary{ID: product.ID, Name: product.Name}
	}
	return event
}

// NewCompletedEvent describes a deal that reached its participant limit
func NewCompletedEvent(deal *domain.Deal, at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Type:       EventDealCompleted,
		OccurredAt: at,
		Deal:       summarize(deal),
	}
}

func summarize(deal *domain.Deal) DealSummary {
	return DealSummary{
		ID:                  deal.ID,
		Code:                deal.Code,
		Title:               deal.Title,
		Jam3aPrice:          deal.Jam3aPrice,
		CurrentParticipants: deal.CurrentParticipants,
		MaxParticipants:     deal.MaxParticipants,
		Status:              deal.Status,
	}
}

// Nop discards every event
type Nop struct{}

func (Nop) Dispatch(context.Context, Event) error { return nil }
