package models

import (
	"github.com/smazurov/watchnode/internal/analysis"
	"github.com/smazurov/watchnode/internal/scheduler"
)

// AnalysisResponse is the result of a trigger. Background triggers answer
// 202 with only Kind, Subject and Text set.
type AnalysisResponse struct {
	Status int `json:"-"`
	Body   *analysis.Result
}

// MeterReadingsResponse is the result of reading every meter.
type MeterReadingsResponse struct {
	Body struct {
		Readings []*analysis.Result `json:"readings" doc:"One result per meter read successfully"`
		Errors   []string           `json:"errors,omitempty" doc:"Meters that could not be read"`
	}
}

// AsyncInput selects background execution.
type AsyncInput struct {
	Async bool `query:"async" doc:"Run in the background and return immediately"`
}

type AnalyzeCameraRequest struct {
	ID    string `path:"id" example:"front_door" doc:"Camera identifier"`
	Async bool   `query:"async" doc:"Run in the background and return immediately"`
}

type MeterRequest struct {
	ID    string `path:"id" example:"water" doc:"Meter identifier"`
	Async bool   `query:"async" doc:"Run in the background and return immediately"`
}

type FindPersonsRequest struct {
	Async bool `query:"async" doc:"Run in the background and return immediately"`
	Body  struct {
		Names      []string `json:"names" minItems:"1" example:"[\"alice\"]" doc:"Known people to look for"`
		Prompt     string   `json:"prompt,omitempty" doc:"Extra instructions for the search"`
		Recipients []string `json:"recipients,omitempty" doc:"Chat recipients; the configured ones when empty"`
	}
}

// JobListResponse lists the installed schedule entries.
type JobListResponse struct {
	Body struct {
		Jobs  []scheduler.JobInfo `json:"jobs" doc:"Installed schedule entries"`
		Count int                 `json:"count" example:"4" doc:"Number of entries"`
	}
}

// ChatWebhookRequest is an inbound chat message from the gateway.
type ChatWebhookRequest struct {
	Body struct {
		From    string `json:"from" example:"6281234567890@s.whatsapp.net" doc:"Sender chat id or phone number"`
		Message string `json:"message" example:"check front_door" doc:"Message text"`
	}
}

type ChatWebhookData struct {
	Status  string `json:"status" example:"triggered" doc:"triggered, ignored or unauthorized"`
	Action  string `json:"action,omitempty" example:"camera_analysis" doc:"Triggered job kind"`
	Subject string `json:"subject,omitempty" example:"front_door" doc:"Triggered camera or meter"`
	Message string `json:"message,omitempty" doc:"Details"`
}

type ChatWebhookResponse struct {
	Body ChatWebhookData
}
