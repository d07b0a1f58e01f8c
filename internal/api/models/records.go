package models

import (
	"github.com/smazurov/watchnode/internal/storage"
)

type EventListRequest struct {
	Subject string `query:"subject" example:"front_door" doc:"Only events for this camera or global subject"`
	Limit   int    `query:"limit" minimum:"0" maximum:"500" default:"50" doc:"Maximum number of events"`
}

type EventListResponse struct {
	Body struct {
		Events []storage.Event `json:"events" doc:"Events, newest first"`
		Count  int             `json:"count" example:"10" doc:"Number of events returned"`
	}
}

type EventIDInput struct {
	ID string `path:"id" doc:"Event identifier"`
}

type EventResponse struct {
	Body storage.Event
}


type StatsResponse struct {
	Body storage.Stats
}

type NotificationListRequest struct {
	Recipient string `query:"recipient" doc:"Only notifications to this recipient"`
	Limit     int    `query:"limit" minimum:"0" maximum:"500" default:"50" doc:"Maximum number of rows"`
}

type NotificationListResponse struct {
	Body struct {
		Notifications []storage.Notification `json:"notifications" doc:"Delivery outcomes, newest first"`
		Count         int                    `json:"count" doc:"Number of rows returned"`
	}
}

// Face models
type FaceData struct {
	Name          string `json:"name" example:"alice" doc:"Person name"`
	Category      string `json:"category,omitempty" example:"family" doc:"Grouping label"`
	HasReference  bool   `json:"has_reference" doc:"Whether a reference image exists"`
	SightingCount int    `json:"sighting_count" doc:"Number of recognitions"`
	LastSeen      string `json:"last_seen,omitempty" doc:"Last recognition time"`
}

type FaceListResponse struct {
	Body struct {
		Faces []FaceData `json:"faces" doc:"Known people"`
		Count int        `json:"count" doc:"Number of people"`
	}
}

type FaceNameInput struct {
	Name string `path:"name" example:"alice" doc:"Person name"`
}

type AddFaceRequest struct {
	Body struct {
		Name     string `json:"name" minLength:"1" example:"alice" doc:"Person name"`
		Category string `json:"category,omitempty" example:"family" doc:"Grouping label"`
		Image    []byte `json:"image" minLength:"1" doc:"Base64 encoded JPEG reference image"`
	}
}

type UnknownListRequest struct {
	Limit int `query:"limit" minimum:"0" maximum:"500" default:"50" doc:"Maximum number of entries"`
}

type UnknownListResponse struct {
	Body struct {
		Unknown []storage.UnknownPerson `json:"unknown" doc:"Detections waiting to be labeled"`
		Count   int                     `json:"count" doc:"Number of entries"`
	}
}

type UnknownIDInput struct {
	ID string `path:"id" doc:"Unknown person identifier"`
}

type LabelUnknownRequest struct {
	ID   string `path:"id" doc:"Unknown person identifier"`
	Body struct {
		Name     string `json:"name" minLength:"1" example:"alice" doc:"Person name the detection belongs to"`
		Category string `json:"category,omitempty" doc:"Grouping label"`
	}
}
