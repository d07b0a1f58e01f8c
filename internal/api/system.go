package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/watchnode/internal/api/models"
	"github.com/smazurov/watchnode/internal/logging"
)

// registerSystemRoutes registers runtime diagnostics and log level control.
func (s *Server) registerSystemRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-log-levels",
		Method:      http.MethodGet,
		Path:        "/api/system/log-levels",
		Summary:     "Log Levels",
		Description: "Effective level of every module logger",
		Tags:        []string{"system"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.LogLevelsResponse, error) {
		resp := &models.LogLevelsResponse{}
		resp.Body.Modules = logging.ModuleLevels()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/system/log-levels",
		Summary:     "Set Log Level",
		Description: "Change a module's level, or the global level when module is empty. Not persisted.",
		Tags:        []string{"system"},
		Errors:      []int{400, 401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.SetLogLevelRequest) (*models.LogLevelsResponse, error) {
		if !logging.SetModuleLevel(input.Body.Module, input.Body.Level) {
			return nil, huma.Error400BadRequest("invalid log level " + input.Body.Level)
		}
		s.logger.Info("Log level changed", "target", input.Body.Module, "level", input.Body.Level)
		resp := &models.LogLevelsResponse{}
		resp.Body.Modules = logging.ModuleLevels()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-ai-models",
		Method:      http.MethodGet,
		Path:        "/api/system/models",
		Summary:     "AI Models",
		Description: "Vision models available to the configured API key",
		Tags:        []string{"system"},
		Errors:      []int{401, 502, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.ModelListResponse, error) {
		list, err := s.app.Models(ctx)
		if err != nil {
			return nil, s.mapError(err)
		}
		resp := &models.ModelListResponse{}
		resp.Body.Models = list
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-whatsapp-status",
		Method:      http.MethodGet,
		Path:        "/api/system/whatsapp",
		Summary:     "Chat Gateway Status",
		Tags:        []string{"system"},
		Errors:      []int{401, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.WhatsAppStatusResponse, error) {
		resp := &models.WhatsAppStatusResponse{}
		wa := s.app.WhatsApp()
		if wa == nil {
			return resp, nil
		}
		resp.Body.Enabled = true
		connected, devices, err := wa.Status(ctx)
		if err != nil {
			return nil, huma.Error502BadGateway("chat gateway unreachable", err)
		}
		resp.Body.Connected = connected
		resp.Body.Devices = devices
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-whatsapp-groups",
		Method:      http.MethodGet,
		Path:        "/api/system/whatsapp/groups",
		Summary:     "Chat Groups",
		Description: "Groups the gateway account has joined, for use as recipients",
		Tags:        []string{"system"},
		Errors:      []int{401, 502, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.WhatsAppGroupsResponse, error) {
		wa := s.app.WhatsApp()
		if wa == nil {
			return nil, huma.Error503ServiceUnavailable("chat gateway is not configured")
		}
		groups, err := wa.Groups(ctx)
		if err != nil {
			return nil, huma.Error502BadGateway("chat gateway unreachable", err)
		}
		resp := &models.WhatsAppGroupsResponse{}
		resp.Body.Groups = groups
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/system/devices",
		Summary:     "Capture Devices",
		Description: "Local V4L2 capture devices. Use stable_path as a camera source.",
		Tags:        []string{"system"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.DeviceListResponse, error) {
		list, err := s.devices.FindDevices()
		if err != nil {
			return nil, s.mapError(err)
		}
		resp := &models.DeviceListResponse{}
		resp.Body.Devices = list
		resp.Body.Count = len(list)
		return resp, nil
	})
}
