// Package ai talks to the vision model that describes camera images.
package ai

import (
	"context"
	"errors"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("ai analysis disabled: no api key")

// Image is one camera frame sent to the model.
type Image struct {
	CameraID   string
	CameraName string
	JPEG       []byte
}

// Reference is a known face shown to the model before the scene.
type Reference struct {
	Name string
	JPEG []byte
}

// Detection is one person reported by the model.
// Box is [ymin, xmin, ymax, xmax] normalized to 0-1000.
type Detection struct {
	Name       string `json:"name"`
	Status     string `json:"status,omitempty"`
	Box        []int  `json:"box_2d,omitempty"`
	Activity   string `json:"activity,omitempty"`
	Confidence string `json:"confidence,omitempty"`
}

// Detection statuses.
const (
	StatusKnown   = "Known"
	StatusUnknown = "Unknown"
)

// Known reports whether the detection names a recognized person.
func (d Detection) Known() bool {
	return d.Status == StatusKnown && d.Name != "" && d.Name != StatusUnknown
}

// Result is the model's answer for a single image.
type Result struct {
	Text       string      `json:"text"`
	Raw        string      `json:"-"`
	Detections []Detection `json:"detections"`
}

// MultiResult is the model's answer for several camera images.
type MultiResult struct {
	Text          string                 `json:"text"`
	Raw           string                 `json:"-"`
	PrimaryCamera string                 `json:"primary_camera,omitempty"`
	ByCamera      map[string][]Detection `json:"by_camera"`
	NotFound      map[string][]string    `json:"not_found,omitempty"`
}

// Analyzer describes images. Implementations do not retry.
type Analyzer interface {
	Analyze(ctx context.Context, frame []byte, prompt string, refs []Reference) (Result, error)
	AnalyzeMany(ctx context.Context, frames []Image, prompt string, refs []Reference) (MultiResult, error)
}
