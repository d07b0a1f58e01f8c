// Package storage persists analysis events, face sightings, the unknown
// person queue, notification results and snapshot images.
package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Event is one stored analysis result.
type Event struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Subject     string    `json:"subject"` // camera id, "patrol", "person_finder" or "meter_<id>"
	Kind        string    `json:"kind"`
	CameraID    string    `json:"camera_id,omitempty"`
	SnapshotKey string    `json:"snapshot_key,omitempty"`
	SnapshotURL string    `json:"snapshot_url,omitempty"`
	Text        string    `json:"text"`
	Faces       []string  `json:"faces,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	Detections  string    `json:"detections,omitempty"` // raw JSON
	Reviewed    bool      `json:"reviewed"`
}

// Face is the sighting record of a known person.
type Face struct {
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	LastSeen      time.Time `json:"last_seen,omitzero"`
	SightingCount int       `json:"sighting_count"`
}

// UnknownPerson is a detection waiting to be labeled.
type UnknownPerson struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	CameraID  string    `json:"camera_id"`
	ImageKey  string    `json:"image_key"`
	Timestamp time.Time `json:"timestamp"`
}

// Notification is the outcome of one delivery attempt.
type Notification struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id,omitempty"`
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	Status    string    `json:"status"` // success or failed
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notification statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// EventFilter narrows ListEvents.
type EventFilter struct {
	Subject string
	Since   time.Time
	Limit   int
}

// Stats summarizes stored data.
type Stats struct {
	TotalEvents    int    `json:"total_events"`
	UnknownPersons int    `json:"unknown_persons"`
	KnownFaces     int    `json:"known_faces"`
	LatestEvent    *Event `json:"latest_event,omitempty"`
}
