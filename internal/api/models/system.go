package models

import (
	"github.com/smazurov/watchnode/internal/devices"
	"github.com/smazurov/watchnode/internal/notify"
)

type LogLevelsResponse struct {
	Body struct {
		Modules map[string]string `json:"modules" doc:"Module level overrides"`
	}
}

type SetLogLevelRequest struct {
	Body struct {
		Module string `json:"module,omitempty" example:"camera" doc:"Module name; empty sets the global level"`
		Level  string `json:"level" enum:"debug,info,warn,error" example:"debug" doc:"New level"`
	}
}

type ModelListResponse struct {
	Body struct {
		Models []string `json:"models" doc:"Vision models available to the configured key"`
	}
}

type WhatsAppStatusResponse struct {
	Body struct {
		Enabled   bool `json:"enabled" doc:"Whether the chat gateway is configured"`
		Connected bool `json:"connected" doc:"Whether the gateway reports a logged in device"`
		Devices   int  `json:"devices" doc:"Number of devices on the gateway"`
	}
}

type WhatsAppGroupsResponse struct {
	Body struct {
		Groups []notify.Group `json:"groups" doc:"Groups the gateway account is in"`
	}
}

type DeviceListResponse struct {
	Body struct {
		Devices []devices.DeviceInfo `json:"devices" doc:"Local capture devices"`
		Count   int                  `json:"count" example:"1"`
	}
}
