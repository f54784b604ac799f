// Package events carries domain events to live subscribers and to Kafka.
package events

import (
	"context"
	"errors"
	"time"
)

// Event types
const (
	CommentCreated   = "commentCreated"
	CommentRated     = "commentRated"
	ArticlePublished = "articlePublished"
)

// Event is a domain event raised inside one tenant
type Event struct {
	Type       string    `json:"type"`
	Tenant     string    `json:"tenant"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurredAt"`
	// Origin names the process that raised the event
	Origin string `json:"origin,omitempty"`
}

// New stamps an event with the current time
func New(eventType, tenant string, payload any) Event {
	return Event{Type: eventType, Tenant: tenant, Payload: payload, OccurredAt: time.Now().UTC()}
}

// Publisher accepts events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type fanout []Publisher

// Fanout publishes to every publisher and joins their errors
func Fanout(publishers ...Publisher) Publisher {
	return fanout(publishers)
}

func (f fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type originPublisher struct {
	origin string
	next   Publisher
}

// WithOrigin stamps every event with origin before handing it to next
func WithOrigin(origin string, next Publisher) Publisher {
	return originPublisher{origin: origin, next: next}
}

func (p originPublisher) Publish(ctx context.Context, event Event) error {
	event.Origin = p.origin
	return p.next.Publish(ctx, event)
}
