package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/watchnode/internal/analysis"
	"github.com/smazurov/watchnode/internal/api/models"
	"github.com/smazurov/watchnode/internal/scheduler"
)

// registerAnalysisRoutes registers manual triggers and the job listing.
// Every trigger goes through the coordinator, synchronously by default.
func (s *Server) registerAnalysisRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "analyze-camera",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{id}/analyze",
		Summary:     "Analyze Camera",
		Description: "Capture the camera's current frame, describe it and notify its recipients",
		Tags:        []string{"analysis"},
		Errors:      []int{401, 404, 502, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.AnalyzeCameraRequest) (*models.AnalysisResponse, error) {
		if _, ok := s.app.Settings().Camera(input.ID); !ok {
			return nil, huma.Error404NotFound("camera " + input.ID + " not found")
		}
		return s.trigger(ctx, scheduler.CameraSubject(input.ID, false, scheduler.Schedule{}), input.Async)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "trigger-patrol",
		Method:      http.MethodPost,
		Path:        "/api/patrol",
		Summary:     "Run Patrol",
		Description: "Sweep every enabled camera in one analysis and report a summary",
		Tags:        []string{"analysis"},
		Errors:      []int{401, 502, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.AsyncInput) (*models.AnalysisResponse, error) {
		return s.trigger(ctx, scheduler.Subject{Kind: scheduler.KindPatrol}, input.Async)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "find-persons",
		Method:      http.MethodPost,
		Path:        "/api/person-finder",
		Summary:     "Find Persons",
		Description: "Search every enabled camera for known people",
		Tags:        []string{"analysis"},
		Errors:      []int{400, 401, 502, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.FindPersonsRequest) (*models.AnalysisResponse, error) {
		return s.trigger(ctx, scheduler.Subject{
			Kind: scheduler.KindPersonFinder,
			Args: scheduler.Args{
				Names:      input.Body.Names,
				Prompt:     input.Body.Prompt,
				Recipients: input.Body.Recipients,
			},
		}, input.Async)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "read-meter",
		Method:      http.MethodPost,
		Path:        "/api/meters/{id}/read",
		Summary:     "Read Meter",
		Description: "Read one utility meter from its camera",
		Tags:        []string{"analysis"},
		Errors:      []int{401, 404, 502, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.MeterRequest) (*models.AnalysisResponse, error) {
		return s.trigger(ctx, scheduler.Subject{
			Kind: scheduler.KindMeter,
			ID:   input.ID,
			Args: scheduler.Args{MeterID: input.ID},
		}, input.Async)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "read-all-meters",
		Method:      http.MethodPost,
		Path:        "/api/meters/read",
		Summary:     "Read All Meters",
		Description: "Read every configured meter. Failures are listed without stopping the other reads.",
		Tags:        []string{"analysis"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.MeterReadingsResponse, error) {
		out, err := s.app.Trigger(ctx, scheduler.Subject{Kind: scheduler.KindMeter})
		resp := &models.MeterReadingsResponse{}
		if results, ok := out.([]*analysis.Result); ok {
			resp.Body.Readings = results
		}
		if resp.Body.Readings == nil {
			resp.Body.Readings = []*analysis.Result{}
		}
		if err != nil {
			for _, e := range unjoin(err) {
				resp.Body.Errors = append(resp.Body.Errors, e.Error())
			}
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "trigger-doorbell",
		Method:      http.MethodPost,
		Path:        "/api/doorbell",
		Summary:     "Ring Doorbell",
		Description: "Analyze the doorbell camera with the doorbell prompt",
		Tags:        []string{"analysis"},
		Errors:      []int{401, 404, 502, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.AsyncInput) (*models.AnalysisResponse, error) {
		return s.trigger(ctx, scheduler.Subject{Kind: scheduler.KindDoorbell}, input.Async)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/api/jobs",
		Summary:     "List Jobs",
		Description: "Installed schedule entries with their next fire time",
		Tags:        []string{"schedules"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.JobListResponse, error) {
		resp := &models.JobListResponse{}
		resp.Body.Jobs = s.app.Coordinator().Jobs()
		resp.Body.Count = len(resp.Body.Jobs)
		return resp, nil
	})
}

// trigger runs subject now, or in the background when async is set.
func (s *Server) trigger(ctx context.Context, subject scheduler.Subject, async bool) (*models.AnalysisResponse, error) {
	if async {
		if err := s.app.TriggerAsync(subject); err != nil {
			return nil, s.mapError(err)
		}
		return &models.AnalysisResponse{
			Status: http.StatusAccepted,
			Body: &analysis.Result{
				Subject:   subject.ID,
				Kind:      string(subject.Kind),
				Text:      "started",
				Timestamp: time.Now(),
			},
		}, nil
	}

	out, err := s.app.Trigger(ctx, subject)
	if err != nil {
		return nil, s.mapError(err)
	}
	res, ok := out.(*analysis.Result)
	if !ok {
		return nil, huma.Error500InternalServerError(fmt.Sprintf("unexpected result type %T", out))
	}
	return &models.AnalysisResponse{Status: http.StatusOK, Body: res}, nil
}

// unjoin splits an errors.Join result into its parts.
func unjoin(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	if err == nil {
		return nil
	}
	return []error{err}
}
