// Package collectors feeds Prometheus metrics from the event bus.
package collectors

import (
	"sync"
	"time"

	"github.com/smazurov/watchnode/internal/events"
	"github.com/smazurov/watchnode/internal/metrics"
)

// Subscriber is the subscribe half of the event bus.
type Subscriber interface {
	Subscribe(handler any) func()
}

// BusCollector updates metrics from camera, analysis, job and notification events.
type BusCollector struct {
	bus      Subscriber
	mu       sync.Mutex
	unsubs   []func()
	stopOnce sync.Once
}

// NewBusCollector creates a collector for bus.
func NewBusCollector(bus Subscriber) *BusCollector {
	return &BusCollector{bus: bus}
}

// Start subscribes to the bus.
func (c *BusCollector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unsubs = append(c.unsubs,
		c.bus.Subscribe(func(e events.CameraStateChangedEvent) {
			metrics.SetCameraState(e.CameraID, e.To)
			if e.To == "reconnecting" {
				metrics.IncCameraReconnects(e.CameraID)
			}
		}),
		c.bus.Subscribe(func(e events.CameraRemovedEvent) {
			metrics.DeleteCameraMetrics(e.CameraID)
		}),
		c.bus.Subscribe(func(e events.AnalysisCompletedEvent) {
			metrics.ObserveAnalysis(e.Kind, time.Duration(e.DurationMs)*time.Millisecond)
		}),
		c.bus.Subscribe(func(e events.AnalysisFailedEvent) {
			metrics.IncAnalysisFailure(e.Kind, e.Code)
		}),
		c.bus.Subscribe(func(e events.JobFiredEvent) {
			metrics.IncJobFired(e.Kind, e.Manual)
		}),
		c.bus.Subscribe(func(e events.NotificationSentEvent) {
			metrics.IncNotification(e.Channel, e.Success)
		}),
	)
}

// Stop unsubscribes from the bus.
func (c *BusCollector) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, unsub := range c.unsubs {
			unsub()
		}
		c.unsubs = nil
	})
}
