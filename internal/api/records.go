package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/watchnode/internal/api/models"
	"github.com/smazurov/watchnode/internal/storage"
)

// registerRecordRoutes registers stored events, stats, notification history
// and the snapshot file server.
func (s *Server) registerRecordRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "List Events",
		Description: "Stored analysis results, newest first",
		Tags:        []string{"events"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.EventListRequest) (*models.EventListResponse, error) {
		events, err := s.app.DB().ListEvents(ctx, storage.EventFilter{Subject: input.Subject, Limit: input.Limit})
		if err != nil {
			return nil, s.mapError(err)
		}
		resp := &models.EventListResponse{}
		resp.Body.Events = events
		resp.Body.Count = len(events)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-event",
		Method:      http.MethodGet,
		Path:        "/api/events/{id}",
		Summary:     "Get Event",
		Tags:        []string{"events"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.EventIDInput) (*models.EventResponse, error) {
		ev, err := s.app.DB().GetEvent(ctx, input.ID)
		if err != nil {
			return nil, s.mapError(err)
		}
		return &models.EventResponse{Body: ev}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-event-image",
		Method:      http.MethodGet,
		Path:        "/api/events/{id}/image",
		Summary:     "Event Image",
		Description: "Snapshot stored with the event",
		Tags:        []string{"events"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.EventIDInput) (*models.ImageResponse, error) {
		ev, err := s.app.DB().GetEvent(ctx, input.ID)
		if err != nil {
			return nil, s.mapError(err)
		}
		if ev.SnapshotKey == "" {
			return nil, huma.Error404NotFound("event " + input.ID + " has no image")
		}
		data, err := s.app.Snapshots().Load(ctx, ev.SnapshotKey)
		if err != nil {
			return nil, s.mapError(err)
		}
		return models.NewImageResponse(data), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-event",
		Method:        http.MethodDelete,
		Path:          "/api/events/{id}",
		Summary:       "Delete Event",
		Description:   "Delete an event, its snapshot and its queued unknown persons",
		Tags:          []string{"events"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 404},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.EventIDInput) (*struct{}, error) {
		ev, err := s.app.DB().GetEvent(ctx, input.ID)
		if err != nil {
			return nil, s.mapError(err)
		}
		if err := s.app.DB().DeleteEvent(ctx, input.ID); err != nil {
			return nil, s.mapError(err)
		}
		if ev.SnapshotKey != "" {
			if err := s.app.Snapshots().Delete(ctx, ev.SnapshotKey); err != nil {
				s.logger.Warn("Failed to delete event snapshot", "event_id", ev.ID, "key", ev.SnapshotKey, "error", err)
			}
		}
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "review-event",
		Method:        http.MethodPost,
		Path:          "/api/events/{id}/review",
		Summary:       "Mark Event Reviewed",
		Tags:          []string{"events"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 404},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.EventIDInput) (*struct{}, error) {
		if err := s.app.DB().MarkReviewed(ctx, input.ID); err != nil {
			return nil, s.mapError(err)
		}
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-stats",
		Method:      http.MethodGet,
		Path:        "/api/stats",
		Summary:     "Statistics",
		Description: "Event, face and unknown person counts with the latest event",
		Tags:        []string{"events"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.StatsResponse, error) {
		stats, err := s.app.DB().Stats(ctx)
		if err != nil {
			return nil, s.mapError(err)
		}
		return &models.StatsResponse{Body: stats}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/api/notifications",
		Summary:     "Notification History",
		Description: "Delivery outcomes of chat, MQTT and webhook notifications",
		Tags:        []string{"events"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.NotificationListRequest) (*models.NotificationListResponse, error) {
		rows, err := s.app.DB().ListNotifications(ctx, input.Recipient, input.Limit)
		if err != nil {
			return nil, s.mapError(err)
		}
		resp := &models.NotificationListResponse{}
		resp.Body.Notifications = rows
		resp.Body.Count = len(rows)
		return resp, nil
	})

	// Keys contain slashes, which huma path parameters cannot match
	s.mux.HandleFunc("GET /api/snapshots/{key...}", s.serveSnapshot)
}

// serveSnapshot writes a stored snapshot. It applies the same credentials
// as the huma operations.
func (s *Server) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.options.authEnabled() {
		user, pass, err := credentials(r.Header.Get("Authorization"), r.URL.Query().Get("auth"))
		if err != nil || user != s.options.AuthUsername || pass != s.options.AuthPassword {
			w.Header().Set("WWW-Authenticate", `Basic realm="watchnode"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	key := r.PathValue("key")
	data, err := s.app.Snapshots().Load(r.Context(), key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, storage.ErrInvalidKey):
		http.Error(w, "invalid snapshot key", http.StatusBadRequest)
		return
	case err != nil:
		s.logger.Error("Failed to load snapshot", "key", key, "error", err)
		http.Error(w, "failed to load snapshot", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	_, _ = w.Write(data)
}
