package ingestion

import "time"

// EventMediaCreated is the event_type header of MediaCreatedEvent.
const EventMediaCreated = "media.created"

// MediaCreatedEvent is emitted when an upload is stored and catalogued.
type MediaCreatedEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Type        string    `json:"type"`
	ObjectKey   string    `json:"object_key"`
	Checksum    string    `json:"checksum"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentType string    `json:"content_type"`
	Owner       string    `json:"owner,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
