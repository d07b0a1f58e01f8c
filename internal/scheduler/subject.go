package scheduler

import (
	"fmt"
	"strings"
)

// Kind identifies what a job does when it fires.
type Kind string

// Subject kinds.
const (
	KindCameraAnalysis Kind = "camera_analysis"
	KindPatrol         Kind = "patrol"
	KindPersonFinder   Kind = "person_finder"
	KindMeter          Kind = "meter"
	KindDoorbell       Kind = "doorbell"
)

// Args are the arguments bound to a job body.
type Args struct {
	CameraID   string   `json:"camera_id,omitempty"`
	MeterID    string   `json:"meter_id,omitempty"`
	Names      []string `json:"names,omitempty"`
	Prompt     string   `json:"prompt,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
}

// Subject is one schedulable unit: a camera, the global patrol, the person
// finder sweep or a utility meter.
type Subject struct {
	Kind     Kind
	ID       string // camera or meter id; empty for global subjects
	Enabled  bool   // schedule enabled
	Schedule Schedule
	Args     Args
}

// CameraSubject returns the analysis subject for a camera.
func CameraSubject(cameraID string, enabled bool, sched Schedule) Subject {
	return Subject{
		Kind:     KindCameraAnalysis,
		ID:       cameraID,
		Enabled:  enabled,
		Schedule: sched,
		Args:     Args{CameraID: cameraID},
	}
}

// JobID returns the stable schedule entry id for the subject.
func (s Subject) JobID() string {
	switch s.Kind {
	case KindCameraAnalysis:
		return "analysis_" + s.ID
	case KindPatrol:
		return "patrol_global"
	case KindPersonFinder:
		return "person_finder_scheduled"
	case KindMeter:
		return "meter_" + s.ID
	case KindDoorbell:
		return "doorbell_iq"
	default:
		if s.ID == "" {
			return string(s.Kind)
		}
		return string(s.Kind) + "_" + s.ID
	}
}

// fingerprint identifies everything about a subject that affects firing.
// Two subjects with equal fingerprints are the same job.
func (s Subject) fingerprint(trigger string) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s", s.Kind, trigger, s.Args.CameraID, s.Args.MeterID,
		strings.Join(s.Args.Names, ","), s.Args.Prompt, strings.Join(s.Args.Recipients, ","))
}
