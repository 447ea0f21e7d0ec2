// Package events publishes portal activity to a message bus.
package events

import (
	"context"
	"time"
)

const (
	TopicVisitorRecorded = "openhouse.visitor.recorded"

	// TopicAll matches every portal subject.
	TopicAll = "openhouse.>"
)

// VisitorRecorded is emitted after a sign-in row has been appended.
type VisitorRecorded struct {
	Agent          string    `json:"agent"`
	Spreadsheet    string    `json:"spreadsheet"`
	Worksheet      string    `json:"worksheet"`
	Date           string    `json:"date"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	NeedsRealtor   string    `json:"needs_realtor"`
	CurrentAddress string    `json:"current_address,omitempty"`
	Comments       string    `json:"comments,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// NewPublisher connects to NATS when url is set and returns a no-op publisher
// otherwise.
func NewPublisher(url string) (Publisher, error) {
	if url == "" {
		return &NoopPublisher{}, nil
	}
	return NewNATSPublisher(url)
}
