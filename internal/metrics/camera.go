// Package metrics provides Prometheus metrics for cameras, analysis jobs and notifications.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Camera states exported as the state gauge label.
var cameraStates = []string{"connecting", "streaming", "reconnecting", "stopped", "failed"}

var (
	cameraFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchnode",
		Subsystem: "camera",
		Name:      "frames_total",
		Help:      "Frames decoded into the frame cache",
	}, []string{"camera_id"})

	cameraReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchnode",
		Subsystem: "camera",
		Name:      "reconnects_total",
		Help:      "Capture source reconnects after a read failure",
	}, []string{"camera_id"})

	cameraState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "watchnode",
		Subsystem: "camera",
		Name:      "state",
		Help:      "Capture loop state, 1 for the current state",
	}, []string{"camera_id", "state"})

	cameraFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "watchnode",
		Subsystem: "camera",
		Name:      "fps",
		Help:      "Decoded frames per second over the last sample window",
	}, []string{"camera_id"})

	// Local cache for SSE exporter access.
	cameraCache   = make(map[string]*CameraMetrics)
	cameraCacheMu sync.RWMutex
)

// CameraMetrics holds current metric values for a camera.
type CameraMetrics struct {
	State      string
	Frames     float64
	Reconnects float64
	FPS        float64

	sampledFrames float64
	sampledAt     time.Time
}

// IncCameraFrames counts one decoded frame.
func IncCameraFrames(cameraID string) {
	cameraFrames.WithLabelValues(cameraID).Inc()
	updateCache(cameraID, func(m *CameraMetrics) { m.Frames++ })
}

// IncCameraReconnects counts one reconnect.
func IncCameraReconnects(cameraID string) {
	cameraReconnects.WithLabelValues(cameraID).Inc()
	updateCache(cameraID, func(m *CameraMetrics) { m.Reconnects++ })
}

// SetCameraState sets the state gauge so exactly one state label is 1.
func SetCameraState(cameraID, state string) {
	for _, s := range cameraStates {
		value := 0.0
		if s == state {
			value = 1
		}
		cameraState.WithLabelValues(cameraID, s).Set(value)
	}
	updateCache(cameraID, func(m *CameraMetrics) { m.State = state })
}

// SampleFPS recomputes the fps gauge of every camera from the frames counted since the last sample.
func SampleFPS(now time.Time) {
	cameraCacheMu.Lock()
	defer cameraCacheMu.Unlock()
	for id, m := range cameraCache {
		if !m.sampledAt.IsZero() {
			if elapsed := now.Sub(m.sampledAt).Seconds(); elapsed > 0 {
				m.FPS = (m.Frames - m.sampledFrames) / elapsed
				cameraFPS.WithLabelValues(id).Set(m.FPS)
			}
		}
		m.sampledFrames = m.Frames
		m.sampledAt = now
	}
}

// DeleteCameraMetrics removes all metrics for a camera.
func DeleteCameraMetrics(cameraID string) {
	cameraFrames.DeleteLabelValues(cameraID)
	cameraReconnects.DeleteLabelValues(cameraID)
	cameraFPS.DeleteLabelValues(cameraID)
	for _, s := range cameraStates {
		cameraState.DeleteLabelValues(cameraID, s)
	}

	cameraCacheMu.Lock()
	delete(cameraCache, cameraID)
	cameraCacheMu.Unlock()
}

// GetCameraMetrics returns current metric values for a camera.
func GetCameraMetrics(cameraID string) *CameraMetrics {
	cameraCacheMu.RLock()
	defer cameraCacheMu.RUnlock()
	if m, ok := cameraCache[cameraID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllCameraMetrics returns metrics for all known cameras.
func GetAllCameraMetrics() map[string]*CameraMetrics {
	cameraCacheMu.RLock()
	defer cameraCacheMu.RUnlock()
	result := make(map[string]*CameraMetrics, len(cameraCache))
	for id, m := range cameraCache {
		dup := *m
		result[id] = &dup
	}
	return result
}

func updateCache(cameraID string, update func(*CameraMetrics)) {
	cameraCacheMu.Lock()
	defer cameraCacheMu.Unlock()
	m, ok := cameraCache[cameraID]
	if !ok {
		m = &CameraMetrics{}
		cameraCache[cameraID] = m
	}
	update(m)
}
