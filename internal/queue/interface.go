package queue

import (
	"context"
)

// Publisher sends domain events to subscribers outside this process.
// This enables better testability by allowing mock implementations
type Publisher interface {
	// Publish sends one event. Implementations must be safe for concurrent use.
	Publish(ctx context.Context, event *Event) error

	// HealthCheck verifies the broker connection is healthy
	HealthCheck(ctx context.Context) error

	// Close closes the broker connection
	Close() error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, *Event) error { return nil }

// HealthCheck implements Publisher.
func (NopPublisher) HealthCheck(context.Context) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }

var (
	_ Publisher = NopPublisher{}
	_ Publisher = (*RabbitMQPublisher)(nil)
)
