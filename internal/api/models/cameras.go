package models

import (
	"github.com/smazurov/watchnode/internal/scheduler"
)

// CameraData is a configured camera with its live state.
type CameraData struct {
	ID              string             `json:"id" example:"front_door" doc:"Camera identifier"`
	Name            string             `json:"name" example:"Front Door" doc:"Display name"`
	Source          string             `json:"source" example:"rtsp://192.168.1.20/stream1" doc:"Device index, /dev/videoN, rtsp://, http:// or onvif:// URI"`
	Backend         string             `json:"backend,omitempty" example:"auto" doc:"Capture backend hint"`
	Enabled         bool               `json:"enabled" doc:"Whether the camera is captured"`
	Prompt          string             `json:"prompt,omitempty" doc:"Analysis prompt override"`
	Instruction     string             `json:"message_instruction,omitempty" doc:"Extra delivery instruction appended to the prompt"`
	Notify          bool               `json:"notify" doc:"Whether results are sent to the recipients"`
	Recipients      []string           `json:"recipients,omitempty" doc:"Chat recipients"`
	ScheduleEnabled bool               `json:"schedule_enabled" doc:"Whether scheduled analysis is on"`
	Schedule        scheduler.Schedule `json:"schedule" doc:"Analysis schedule"`
	State           string             `json:"state,omitempty" example:"streaming" doc:"Capture state; empty when not running"`
	Running         bool               `json:"running" doc:"Whether a capture worker exists"`
	FramesCaptured  uint64             `json:"frames_captured,omitempty" doc:"Frames captured since start"`
	LastError       string             `json:"last_error,omitempty" doc:"Last capture error"`
	NextRun         string             `json:"next_run,omitempty" example:"2025-01-27T11:00:00Z" doc:"Next scheduled analysis"`
}

type CameraListData struct {
	Cameras []CameraData `json:"cameras" doc:"Configured cameras"`
	Count   int          `json:"count" example:"2" doc:"Number of cameras"`
}

type CameraListResponse struct {
	Body CameraListData
}

type CameraResponse struct {
	Body CameraData
}

// CameraIDInput selects a camera by path.
type CameraIDInput struct {
	ID string `path:"id" example:"front_door" doc:"Camera identifier"`
}

// CameraBody is the writable part of a camera.
type CameraBody struct {
	Name            string              `json:"name" example:"Front Door" doc:"Display name"`
	Source          string              `json:"source" minLength:"1" example:"rtsp://192.168.1.20/stream1" doc:"Source URI or device index"`
	Backend         string              `json:"backend,omitempty" enum:"auto,v4l2,rtsp,http" doc:"Capture backend hint"`
	Enabled         *bool               `json:"enabled,omitempty" doc:"Capture the camera (default true)"`
	Prompt          string              `json:"prompt,omitempty" doc:"Analysis prompt override"`
	Instruction     string              `json:"message_instruction,omitempty" doc:"Extra delivery instruction"`
	Notify          *bool               `json:"notify,omitempty" doc:"Send results to recipients (default true)"`
	Recipients      []string            `json:"recipients,omitempty" doc:"Chat recipients"`
	ScheduleEnabled bool                `json:"schedule_enabled,omitempty" doc:"Enable scheduled analysis"`
	Schedule        *scheduler.Schedule `json:"schedule,omitempty" doc:"Analysis schedule (default every hour)"`
}

type CreateCameraRequest struct {
	Body struct {
		ID string `json:"id" minLength:"1" pattern:"^[a-zA-Z0-9_-]+$" example:"front_door" doc:"Camera identifier"`
		CameraBody
	}
}

type UpdateCameraRequest struct {
	ID   string `path:"id" example:"front_door" doc:"Camera identifier"`
	Body CameraBody
}

type ScheduleRequest struct {
	ID   string `path:"id" example:"front_door" doc:"Camera identifier"`
	Body struct {
		Enabled  bool               `json:"enabled" doc:"Enable scheduled analysis"`
		Schedule scheduler.Schedule `json:"schedule" doc:"Trigger definition"`
	}
}

type ScheduleData struct {
	CameraID string             `json:"camera_id" example:"front_door" doc:"Camera identifier"`
	Enabled  bool               `json:"enabled" doc:"Whether scheduled analysis is on"`
	Schedule scheduler.Schedule `json:"schedule" doc:"Trigger definition"`
	NextRun  string             `json:"next_run,omitempty" doc:"Next fire time"`
	Warning  string             `json:"warning,omitempty" doc:"Why the schedule falls back to hourly"`
}

type ScheduleResponse struct {
	Body ScheduleData
}
