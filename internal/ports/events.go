package ports

import "context"

// EventPublisher is the fire-and-forget notification bus. Delivery
// failures never roll back a committed cache write; at-most-once is
// acceptable.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}
