// Package events publishes room and admission status changes for live UI
// updates. Publishing is best effort: callers log and ignore failures.
package events

import (
	"context"
	"time"
)

const (
	TypeRoomCreated         = "room.created"
	TypeRoomStatusChanged   = "room.status_changed"
	TypeRoomRateUpdated     = "room.rate_updated"
	TypeAdmissionCreated    = "admission.created"
	TypeAdmissionDischarged = "admission.discharged"
	TypeInvoiceStatus       = "invoice.status_changed"
)

type Event struct {
	Type       string         `json:"type"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id"`
	Status     string         `json:"status"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

//go:generate mockgen -source=events.go -destination=mock_publisher.go -package=events

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
