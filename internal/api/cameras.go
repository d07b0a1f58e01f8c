package api

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/watchnode/internal/api/models"
	"github.com/smazurov/watchnode/internal/camera"
	"github.com/smazurov/watchnode/internal/config"
	"github.com/smazurov/watchnode/internal/scheduler"
)

const cameraTestTimeout = 30 * time.Second

// registerCameraRoutes registers camera CRUD, snapshot and schedule endpoints.
func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-cameras",
		Method:      http.MethodGet,
		Path:        "/api/cameras",
		Summary:     "List Cameras",
		Description: "List configured cameras with their capture state",
		Tags:        []string{"cameras"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.CameraListResponse, error) {
		settings := s.app.Settings().Get()
		cameras := make([]models.CameraData, 0, len(settings.Cameras))
		for _, id := range slices.Sorted(maps.Keys(settings.Cameras)) {
			cameras = append(cameras, s.cameraData(id, settings.Cameras[id]))
		}
		return &models.CameraListResponse{
			Body: models.CameraListData{Cameras: cameras, Count: len(cameras)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}",
		Summary:     "Get Camera",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CameraIDInput) (*models.CameraResponse, error) {
		cam, ok := s.app.Settings().Camera(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("camera " + input.ID + " not found")
		}
		return &models.CameraResponse{Body: s.cameraData(input.ID, cam)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-camera",
		Method:        http.MethodPost,
		Path:          "/api/cameras",
		Summary:       "Create Camera",
		Description:   "Add a camera, save the settings and start capturing",
		Tags:          []string{"cameras"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 409},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.CreateCameraRequest) (*models.CameraResponse, error) {
		id := input.Body.ID
		if _, exists := s.app.Settings().Camera(id); exists {
			return nil, huma.Error409Conflict("camera " + id + " already exists")
		}
		cam := cameraFromBody(config.NewCamera(input.Body.Name, input.Body.Source), input.Body.CameraBody)
		if _, err := s.app.UpsertCamera(id, cam); err != nil {
			return nil, huma.Error400BadRequest(err.Error(), err)
		}
		return &models.CameraResponse{Body: s.cameraData(id, cam)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-camera",
		Method:      http.MethodPut,
		Path:        "/api/cameras/{id}",
		Summary:     "Update Camera",
		Description: "Replace a camera's definition. A changed source restarts its capture.",
		Tags:        []string{"cameras"},
		Errors:      []int{400, 401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.UpdateCameraRequest) (*models.CameraResponse, error) {
		existing, ok := s.app.Settings().Camera(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("camera " + input.ID + " not found")
		}
		existing.Name = input.Body.Name
		existing.Source = input.Body.Source
		cam := cameraFromBody(existing, input.Body)
		if _, err := s.app.UpsertCamera(input.ID, cam); err != nil {
			return nil, huma.Error400BadRequest(err.Error(), err)
		}
		return &models.CameraResponse{Body: s.cameraData(input.ID, cam)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-camera",
		Method:        http.MethodDelete,
		Path:          "/api/cameras/{id}",
		Summary:       "Delete Camera",
		Description:   "Stop capturing, remove the camera's schedule and drop it from the settings",
		Tags:          []string{"cameras"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 404},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.CameraIDInput) (*struct{}, error) {
		if err := s.app.RemoveCamera(input.ID); err != nil {
			return nil, s.mapError(err)
		}
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "test-camera",
		Method:      http.MethodPost,
		Path:        "/api/cameras/test",
		Summary:     "Test Camera Connection",
		Description: "Open a source, capture one frame and close it again. onvif:// sources report the RTSP URI the device advertises.",
		Tags:        []string{"cameras"},
		Errors:      []int{400, 401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CameraTestRequest) (*models.CameraTestResponse, error) {
		ctx, cancel := context.WithTimeout(ctx, cameraTestTimeout)
		defer cancel()

		desc := camera.Descriptor{URI: input.Body.Source, Backend: input.Body.Backend}
		result, err := s.app.TestConnection(ctx, desc)
		data := models.CameraTestData{
			Status:         "ok",
			ResolvedSource: result.Resolved,
			Width:          result.Width,
			Height:         result.Height,
			ElapsedMs:      result.Elapsed.Milliseconds(),
		}
		if err != nil {
			s.logger.Info("Camera test failed", "backend", desc.ResolveBackend(), "error", err)
			data.Status = "fail"
			data.Message = err.Error()
		} else {
			data.Message = fmt.Sprintf("Captured %dx%d frame in %dms", result.Width, result.Height, data.ElapsedMs)
		}
		return &models.CameraTestResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera-snapshot",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}/snapshot",
		Summary:     "Camera Snapshot",
		Description: "Current JPEG frame of a camera",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CameraIDInput) (*models.ImageResponse, error) {
		data, err := s.app.Registry().CurrentFrameBytes(ctx, input.ID)
		if err != nil {
			return nil, s.mapError(err)
		}
		return models.NewImageResponse(data), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera-schedule",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}/schedule",
		Summary:     "Get Camera Schedule",
		Tags:        []string{"schedules"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CameraIDInput) (*models.ScheduleResponse, error) {
		cam, ok := s.app.Settings().Camera(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("camera " + input.ID + " not found")
		}
		return &models.ScheduleResponse{Body: s.scheduleData(input.ID, cam)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-camera-schedule",
		Method:      http.MethodPut,
		Path:        "/api/cameras/{id}/schedule",
		Summary:     "Set Camera Schedule",
		Description: "Replace a camera's analysis schedule. The job is replaced by id; a schedule that cannot be interpreted runs hourly.",
		Tags:        []string{"schedules"},
		Errors:      []int{400, 401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.ScheduleRequest) (*models.ScheduleResponse, error) {
		next, err := s.app.UpdateSettings(func(st *config.Settings) error {
			cam, ok := st.Cameras[input.ID]
			if !ok {
				return config.ErrCameraNotFound
			}
			cam.ScheduleEnabled = input.Body.Enabled
			cam.Schedule = input.Body.Schedule
			st.Cameras[input.ID] = cam
			return nil
		})
		if err != nil {
			return nil, s.mapError(err)
		}
		return &models.ScheduleResponse{Body: s.scheduleData(input.ID, next.Cameras[input.ID])}, nil
	})
}

// cameraFromBody overlays the writable fields of body on cam.
func cameraFromBody(cam config.CameraConfig, body models.CameraBody) config.CameraConfig {
	cam.Backend = body.Backend
	cam.Prompt = body.Prompt
	cam.Instruction = body.Instruction
	cam.Recipients = body.Recipients
	cam.ScheduleEnabled = body.ScheduleEnabled
	if body.Enabled != nil {
		cam.Enabled = *body.Enabled
	}
	if body.Notify != nil {
		cam.Notify = *body.Notify
	}
	if body.Schedule != nil {
		cam.Schedule = *body.Schedule
	}
	return cam
}

func (s *Server) cameraData(id string, cam config.CameraConfig) models.CameraData {
	data := models.CameraData{
		ID:              id,
		Name:            cam.Name,
		Source:          cam.Source,
		Backend:         cam.Backend,
		Enabled:         cam.Enabled,
		Prompt:          cam.Prompt,
		Instruction:     cam.Instruction,
		Notify:          cam.Notify,
		Recipients:      cam.Recipients,
		ScheduleEnabled: cam.ScheduleEnabled,
		Schedule:        cam.Schedule,
	}
	if h, ok := s.app.Registry().Get(id); ok {
		info := h.Info()
		data.Running = true
		data.State = string(info.State)
		data.FramesCaptured = info.Stats.Frames
		data.LastError = info.Stats.LastError
	}
	if next, ok := s.app.Coordinator().NextRun(scheduler.CameraSubject(id, true, cam.Schedule).JobID()); ok {
		data.NextRun = next.Format(time.RFC3339)
	}
	return data
}

func (s *Server) scheduleData(id string, cam config.CameraConfig) models.ScheduleData {
	data := models.ScheduleData{
		CameraID: id,
		Enabled:  cam.ScheduleEnabled,
		Schedule: cam.Schedule,
	}
	if err := cam.Schedule.Validate(); err != nil {
		data.Warning = err.Error()
	}
	if next, ok := s.app.Coordinator().NextRun(scheduler.CameraSubject(id, true, cam.Schedule).JobID()); ok {
		data.NextRun = next.Format(time.RFC3339)
	}
	return data
}
