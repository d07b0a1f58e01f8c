package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/watchnode/internal/ai"
	"github.com/smazurov/watchnode/internal/analysis"
	"github.com/smazurov/watchnode/internal/camera"
	"github.com/smazurov/watchnode/internal/config"
	"github.com/smazurov/watchnode/internal/scheduler"
	"github.com/smazurov/watchnode/internal/storage"
)

// mapError converts domain errors to HTTP errors.
func (s *Server) mapError(err error) error {
	var statusErr huma.StatusError
	if errors.As(err, &statusErr) {
		return statusErr
	}

	var analysisErr *analysis.AnalysisError
	if errors.As(err, &analysisErr) {
		switch analysisErr.Code {
		case analysis.ErrCodeCameraNotFound, analysis.ErrCodeMeterNotFound:
			return huma.Error404NotFound(analysisErr.Message, err)
		case analysis.ErrCodeNoFrame:
			return huma.Error503ServiceUnavailable(analysisErr.Message, err)
		case analysis.ErrCodeNoReferences:
			return huma.Error400BadRequest(analysisErr.Message, err)
		case analysis.ErrCodeCallFailed:
			if errors.Is(err, ai.ErrDisabled) {
				return huma.Error503ServiceUnavailable("AI analysis is not configured", err)
			}
			return huma.Error502BadGateway(analysisErr.Message, err)
		}
	}

	var cameraErr *camera.CameraError
	if errors.As(err, &cameraErr) {
		switch cameraErr.Code {
		case camera.ErrCodeCameraNotFound:
			return huma.Error404NotFound(cameraErr.Message, err)
		case camera.ErrCodeNoFrameYet:
			return huma.Error503ServiceUnavailable(cameraErr.Message, err)
		}
	}

	switch {
	case errors.Is(err, config.ErrInvalidSettings):
		return huma.Error400BadRequest(err.Error(), err)
	case errors.Is(err, config.ErrCameraNotFound), errors.Is(err, storage.ErrNotFound):
		return huma.Error404NotFound("not found", err)
	case errors.Is(err, storage.ErrInvalidFaceName):
		return huma.Error400BadRequest("invalid face name", err)
	case errors.Is(err, storage.ErrInvalidImage):
		return huma.Error400BadRequest("image must be a jpeg", err)
	case errors.Is(err, storage.ErrInvalidKey):
		return huma.Error400BadRequest("invalid snapshot key", err)
	case errors.Is(err, ai.ErrDisabled):
		return huma.Error503ServiceUnavailable("AI analysis is not configured", err)
	case errors.Is(err, scheduler.ErrUnknownSubject):
		return huma.Error400BadRequest("unknown subject", err)
	}

	s.logger.Error("Request failed", "error", err)
	return huma.Error500InternalServerError("internal server error", err)
}
