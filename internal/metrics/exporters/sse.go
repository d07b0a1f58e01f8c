package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/watchnode/internal/events"
	"github.com/smazurov/watchnode/internal/metrics"
)

// EventPublisher is the part of the event bus the exporter needs.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter samples per-camera capture metrics every interval and
// publishes a CameraMetricsEvent for each camera whose values moved since
// the previous sample. A camera sitting in one state with no frames is
// reported once, not every second.
type SSEExporter struct {
	bus      EventPublisher
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	last   map[string]events.CameraMetricsEvent
}

// NewSSEExporter creates an exporter sampling once a second.
func NewSSEExporter(bus EventPublisher) *SSEExporter {
	return &SSEExporter{bus: bus, interval: time.Second}
}

// Start launches the sampling loop. A running loop is left alone.
func (s *SSEExporter) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.last = make(map[string]events.CameraMetricsEvent)
	go s.loop(ctx, s.done)
}

// Stop ends the loop and waits for it. Calling it when not running is a no-op.
func (s *SSEExporter) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *SSEExporter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sample(now)
		}
	}
}

func (s *SSEExporter) sample(now time.Time) {
	metrics.SampleFPS(now)
	all := metrics.GetAllCameraMetrics()

	s.mu.Lock()
	var changed []events.CameraMetricsEvent
	for id := range s.last {
		if _, ok := all[id]; !ok {
			delete(s.last, id)
		}
	}
	for id, m := range all {
		ev := events.CameraMetricsEvent{
			EventType:  "camera_metrics",
			CameraID:   id,
			State:      m.State,
			FPS:        strconv.FormatFloat(m.FPS, 'f', 2, 64),
			Frames:     strconv.FormatFloat(m.Frames, 'f', 0, 64),
			Reconnects: strconv.FormatFloat(m.Reconnects, 'f', 0, 64),
		}
		if prev, seen := s.last[id]; seen && prev == ev {
			continue
		}
		s.last[id] = ev
		changed = append(changed, ev)
	}
	s.mu.Unlock()

	for _, ev := range changed {
		s.bus.Publish(ev)
	}
}

// GetEventTypes maps SSE event names to payload types for the metrics stream.
func GetEventTypes() map[string]any {
	return map[string]any{
		"camera-metrics": events.CameraMetricsEvent{},
	}
}
