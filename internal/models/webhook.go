package models

import (
	"slices"
	"time"

	"playerhooks/internal/topics"
)

// Endpoint is an operator-configured webhook destination.
type Endpoint struct {
	ID        int64          `json:"id"`
	URL       string         `json:"url"`
	Secret    string         `json:"secret"`
	Topics    []topics.Topic `json:"topics"`
	Enabled   bool           `json:"enabled"`
	CreatedAt time.Time      `json:"created_at"`
}

// Subscribed reports whether the endpoint listens to t.
func (e Endpoint) Subscribed(t topics.Topic) bool {
	return slices.Contains(e.Topics, t)
}

// Clone returns a copy that shares no memory with e.
func (e Endpoint) Clone() Endpoint {
	c := e
	c.Topics = slices.Clone(e.Topics)
	return c
}

// Event is the envelope serialized as the webhook body. Field order is the wire order.
type Event struct {
	Topic     topics.Topic `json:"event"`
	ID        string       `json:"id"`
	CreatedAt string       `json:"created_at"`
	Data      any          `json:"data"`
}

// DeliveryJob is one attempt to deliver one frozen body to one endpoint snapshot.
type DeliveryJob struct {
	ID       string       `json:"id"`
	EventID  string       `json:"event_id"`
	Endpoint Endpoint     `json:"endpoint"`
	Topic    topics.Topic `json:"topic"`
	Body     string       `json:"body"`
	Attempt  int          `json:"attempt"`
}

// Next returns the job for the following attempt. The body is reused as is.
func (j DeliveryJob) Next() DeliveryJob {
	n := j
	n.Endpoint = j.Endpoint.Clone()
	n.Attempt = j.Attempt + 1
	return n
}

// DeliveryAttempt is an audit record of a single POST.
type DeliveryAttempt struct {
	ID         int64
	JobID      string
	EventID    string
	Topic      topics.Topic
	URL        string
	Attempt    int
	StatusCode int
	Outcome    string
	Error      string
	DurationMS int64
	CreatedAt  time.Time
}
