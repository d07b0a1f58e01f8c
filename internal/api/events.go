package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/watchnode/internal/events"
)

// registerSSERoutes registers the live event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events/stream",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time camera, analysis, schedule and notification events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"camera-added":         events.CameraAddedEvent{},
		"camera-removed":       events.CameraRemovedEvent{},
		"camera-state-changed": events.CameraStateChangedEvent{},
		"analysis-started":     events.AnalysisStartedEvent{},
		"analysis-completed":   events.AnalysisCompletedEvent{},
		"analysis-failed":      events.AnalysisFailedEvent{},
		"job-fired":            events.JobFiredEvent{},
		"notification-sent":    events.NotificationSentEvent{},
		"settings-applied":     events.SettingsAppliedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.CameraAddedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CameraRemovedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CameraStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.AnalysisStartedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.AnalysisCompletedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.AnalysisFailedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.JobFiredEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.NotificationSentEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SettingsAppliedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Current state first, so clients can render before anything changes
		if err := send.Data(events.SettingsAppliedEvent{
			Cameras:   len(s.app.Registry().IDs()),
			Jobs:      len(s.app.Coordinator().Jobs()),
			Source:    "connect",
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
