// Package events exposes a user's personal-event collection as a live,
// pull-able snapshot. Mutation of events happens through the same store but
// everything downstream only observes: every change delivers the full
// current list, never deltas.
package events

import (
	"context"
	"time"
)

type PersonalEvent struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Date          time.Time `json:"date"`
	StartPeriod   int       `json:"start_period"`
	PeriodCount   int       `json:"period_count"`
	Location      string    `json:"location"`
	OrganizerName string    `json:"organizer_name"`
}

// Unsubscribe tears down a subscription. Safe to call more than once.
type Unsubscribe func()

type Store interface {
	// Subscribe delivers the full current event list for the user once
	// immediately and again after every change (at-least-once). Delivery
	// errors go to onError and do not close the subscription.
	Subscribe(
		ctx context.Context,
		userID string,
		onUpdate func([]PersonalEvent),
		onError func(error),
	) (Unsubscribe, error)

	List(ctx context.Context, userID string) ([]PersonalEvent, error)
	Put(ctx context.Context, userID string, event PersonalEvent) (string, error)
	Delete(ctx context.Context, userID string, eventID string) error
}

// AsCalendarDate drops the time-of-day and zone of a store timestamp.
// Week matching compares calendar dates only, so every date entering the
// aggregation path goes through this first.
func AsCalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
