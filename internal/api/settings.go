package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/watchnode/internal/api/models"
	"github.com/smazurov/watchnode/internal/config"
)

// registerSettingsRoutes registers settings read, replace and restore endpoints.
func (s *Server) registerSettingsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/api/settings",
		Summary:     "Get Settings",
		Description: "Current domain settings without credentials",
		Tags:        []string{"settings"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.SettingsResponse, error) {
		return &models.SettingsResponse{Body: s.app.Settings().Get()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-settings",
		Method:      http.MethodPut,
		Path:        "/api/settings",
		Summary:     "Update Settings",
		Description: "Replace the domain settings, save them and apply the changes. " +
			"Credentials keep their stored values. Storage changes need a restart.",
		Tags:     []string{"settings"},
		Errors:   []int{400, 401},
		Security: withAuth(),
	}, func(ctx context.Context, input *models.UpdateSettingsRequest) (*models.SettingsResponse, error) {
		next, err := s.app.UpdateSettings(func(st *config.Settings) error {
			body := input.Body.Clone()
			body.KeepSecrets(*st)
			*st = body
			return nil
		})
		if err != nil {
			return nil, s.mapError(err)
		}
		return &models.SettingsResponse{Body: next}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restore-settings",
		Method:      http.MethodPost,
		Path:        "/api/settings/restore",
		Summary:     "Restore Settings",
		Description: "Replace every setting from a settings.toml backup. All cameras and jobs are stopped, then rebuilt from the backup.",
		Tags:        []string{"settings"},
		Errors:      []int{400, 401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.RestoreSettingsRequest) (*models.RestoreSettingsResponse, error) {
		if len(input.RawBody) == 0 {
			return nil, huma.Error400BadRequest("settings backup is empty")
		}
		next, err := config.ParseSettings(input.RawBody)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error(), err)
		}
		if err := s.app.Restore(next); err != nil {
			return nil, s.mapError(err)
		}
		return &models.RestoreSettingsResponse{Body: models.RestoreSettingsData{
			Status:  "restored",
			Cameras: len(s.app.Registry().IDs()),
			Jobs:    len(s.app.Coordinator().Jobs()),
		}}, nil
	})
}
