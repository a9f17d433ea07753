// Package events carries application lifecycle notifications to external sinks.
package events

import (
	"context"
	"errors"
	"time"
)

const (
	TypeSubmitted   = "application.submitted"
	TypeApproved    = "application.approved"
	TypeRejected    = "application.rejected"
	TypeResubmitted = "application.resubmitted"
	TypeDeleted     = "application.deleted"
)

type Event struct {
	Type              string    `json:"type"`
	UniqueID          string    `json:"unique_id"`
	Name              string    `json:"name,omitempty"`
	EmailID           string    `json:"email_id,omitempty"`
	MainContactNumber string    `json:"main_contact_number,omitempty"`
	Note              string    `json:"note,omitempty"`
	Admin             string    `json:"admin,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
