// Package analysis runs analysis jobs: it captures frames from the camera
// registry, asks the vision model about them, stores the result and fans
// it out to the notification channels.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/watchnode/internal/ai"
	"github.com/smazurov/watchnode/internal/camera"
	"github.com/smazurov/watchnode/internal/config"
	"github.com/smazurov/watchnode/internal/events"
	"github.com/smazurov/watchnode/internal/logging"
	"github.com/smazurov/watchnode/internal/notify"
	"github.com/smazurov/watchnode/internal/scheduler"
	"github.com/smazurov/watchnode/internal/storage"
)

// FrameSource returns the current JPEG of a camera.
type FrameSource interface {
	CurrentFrameBytes(ctx context.Context, id string) ([]byte, error)
}

// EventStore persists analysis records.
type EventStore interface {
	AppendEvent(ctx context.Context, e *storage.Event) error
	RecordSighting(ctx context.Context, name string, at time.Time) error
	AddUnknownPerson(ctx context.Context, p *storage.UnknownPerson) error
}

// FaceSource provides reference images of known people.
type FaceSource interface {
	Load(names ...string) ([]storage.FaceImage, error)
}

// Notifier delivers results. Delivery failures are handled by the notifier.
type Notifier interface {
	NotifyChat(ctx context.Context, eventID, subject string, recipients []string, image []byte, caption string) []notify.Delivery
	PublishCameraEvent(ctx context.Context, ev notify.CameraEvent, snapshot []byte)
	PublishResult(ctx context.Context, eventID, subject, suffix string, payload any)
	PostWebhook(ctx context.Context, eventID, subject string, payload any)
}

// EventPublisher publishes bus events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// Registrar installs job bodies. *scheduler.Coordinator implements it.
type Registrar interface {
	Register(kind scheduler.Kind, handler scheduler.HandlerFunc)
}

// Options wires a Runner.
type Options struct {
	Frames    FrameSource
	Analyzer  ai.Analyzer
	Store     EventStore
	Snapshots storage.SnapshotStore
	Faces     FaceSource
	Notifier  Notifier
	Bus       EventPublisher
	Settings  func() config.Settings
	Now       func() time.Time
	Logger    *slog.Logger
}

// Runner executes analysis jobs. It holds no camera or schedule state;
// every job reads the settings current at the time it starts.
type Runner struct {
	frames    FrameSource
	analyzer  ai.Analyzer
	store     EventStore
	snapshots storage.SnapshotStore
	faces     FaceSource
	notifier  Notifier
	bus       EventPublisher
	settings  func() config.Settings
	now       func() time.Time
	logger    *slog.Logger
}

// NewRunner creates a runner. Frames, Analyzer, Store and Settings are required.
func NewRunner(opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("analysis")
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	return &Runner{
		frames:    opts.Frames,
		analyzer:  opts.Analyzer,
		store:     opts.Store,
		snapshots: opts.Snapshots,
		faces:     opts.Faces,
		notifier:  opts.Notifier,
		bus:       opts.Bus,
		settings:  opts.Settings,
		now:       opts.Now,
		logger:    opts.Logger,
	}
}

// Sighting is where a searched person was found.
type Sighting struct {
	CameraID   string `json:"camera_id"`
	CameraName string `json:"camera_name"`
	Activity   string `json:"activity,omitempty"`
	Confidence string `json:"confidence,omitempty"`
}

// Result is the outcome of one analysis job.
type Result struct {
	Subject        string                    `json:"subject"`
	Kind           string                    `json:"kind"`
	Text           string                    `json:"text"`
	Detections     []ai.Detection            `json:"detections"`
	ByCamera       map[string][]ai.Detection `json:"by_camera,omitempty"`
	PrimaryCamera  string                    `json:"primary_camera,omitempty"`
	Recognized     []string                  `json:"recognized,omitempty"`
	UnknownCount   int                       `json:"unknown_count"`
	Found          map[string][]Sighting     `json:"found,omitempty"`
	NotFound       []string                  `json:"not_found,omitempty"`
	CamerasScanned int                       `json:"cameras_scanned,omitempty"`
	Reading        *float64                  `json:"reading,omitempty"`
	Unit           string                    `json:"unit,omitempty"`
	EventID        string                    `json:"event_id,omitempty"`
	SnapshotURL    string                    `json:"snapshot_url,omitempty"`
	Notified       int                       `json:"notified"`
	Timestamp      time.Time                 `json:"timestamp"`
}

// Register installs a job body for every subject kind.
func (r *Runner) Register(reg Registrar) {
	reg.Register(scheduler.KindCameraAnalysis, func(ctx context.Context, s scheduler.Subject) (any, error) {
		id := s.ID
		if id == "" {
			id = s.Args.CameraID
		}
		return wrap(r.AnalyzeCamera(ctx, id))
	})
	reg.Register(scheduler.KindPatrol, func(ctx context.Context, _ scheduler.Subject) (any, error) {
		return wrap(r.Patrol(ctx))
	})
	reg.Register(scheduler.KindPersonFinder, func(ctx context.Context, s scheduler.Subject) (any, error) {
		return wrap(r.FindPersons(ctx, s.Args.Names, s.Args.Prompt, s.Args.Recipients))
	})
	reg.Register(scheduler.KindMeter, func(ctx context.Context, s scheduler.Subject) (any, error) {
		id := s.Args.MeterID
		if id == "" {
			id = s.ID
		}
		if id == "" {
			// Partial readings are returned alongside the joined error
			return r.ReadAllMeters(ctx)
		}
		return wrap(r.ReadMeter(ctx, id))
	})
	reg.Register(scheduler.KindDoorbell, func(ctx context.Context, _ scheduler.Subject) (any, error) {
		return wrap(r.Doorbell(ctx))
	})
}

// wrap keeps a nil *Result from becoming a non-nil interface value.
func wrap(res *Result, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return res, nil
}

// track publishes the started, completed or failed events around fn.
func (r *Runner) track(ctx context.Context, kind scheduler.Kind, subject string, fn func(context.Context) (*Result, error)) (*Result, error) {
	start := time.Now()
	r.publish(events.AnalysisStartedEvent{
		Subject:   subject,
		Kind:      string(kind),
		Timestamp: r.now().Format(time.RFC3339),
	})
	r.logger.Info("Analysis started", "kind", kind, "subject", subject)

	res, err := fn(ctx)
	if err != nil {
		r.logger.Error("Analysis failed", "kind", kind, "subject", subject, "error", err)
		r.publish(events.AnalysisFailedEvent{
			Subject:   subject,
			Kind:      string(kind),
			Code:      Code(err),
			Error:     err.Error(),
			Timestamp: r.now().Format(time.RFC3339),
		})
		return nil, err
	}

	res.Subject = subject
	res.Kind = string(kind)
	duration := time.Since(start)
	r.logger.Info("Analysis completed", "kind", kind, "subject", subject,
		"detections", detectionCount(res), "event_id", res.EventID, "duration", duration)
	r.publish(events.AnalysisCompletedEvent{
		Subject:     subject,
		Kind:        string(kind),
		EventID:     res.EventID,
		Text:        res.Text,
		Detections:  detectionCount(res),
		SnapshotURL: res.SnapshotURL,
		DurationMs:  duration.Milliseconds(),
		Timestamp:   res.Timestamp.Format(time.RFC3339),
	})
	return res, nil
}

func detectionCount(res *Result) int {
	n := len(res.Detections)
	for _, list := range res.ByCamera {
		n += len(list)
	}
	return n
}

func (r *Runner) publish(ev events.Event) {
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}

// capture returns the camera's current frame, mapping registry errors to
// analysis errors.
func (r *Runner) capture(ctx context.Context, cameraID string) ([]byte, error) {
	frame, err := r.frames.CurrentFrameBytes(ctx, cameraID)
	switch {
	case errors.Is(err, camera.ErrCameraNotFound):
		return nil, newError(ErrCodeCameraNotFound, fmt.Sprintf("camera %s is not running", cameraID), err)
	case err != nil:
		return nil, newError(ErrCodeNoFrame, fmt.Sprintf("no frame from camera %s", cameraID), err)
	case len(frame) == 0:
		return nil, newError(ErrCodeNoFrame, fmt.Sprintf("no frame from camera %s", cameraID), nil)
	}
	return frame, nil
}

// sample captures every enabled camera concurrently. Cameras without a
// frame are skipped. only restricts the set when non-empty.
func (r *Runner) sample(ctx context.Context, settings config.Settings, only []string) []ai.Image {
	ids := make([]string, 0, len(settings.Cameras))
	for _, id := range slices.Sorted(maps.Keys(settings.Cameras)) {
		if !settings.Cameras[id].Enabled {
			continue
		}
		if len(only) > 0 && !slices.Contains(only, id) {
			continue
		}
		ids = append(ids, id)
	}

	frames := make([][]byte, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			frame, err := r.capture(ctx, id)
			if err != nil {
				r.logger.Debug("Camera skipped", "camera_id", id, "error", err)
				return
			}
			frames[i] = frame
		}()
	}
	wg.Wait()

	images := make([]ai.Image, 0, len(ids))
	for i, id := range ids {
		if frames[i] == nil {
			continue
		}
		images = append(images, ai.Image{
			CameraID:   id,
			CameraName: cameraName(settings, id),
			JPEG:       frames[i],
		})
	}
	return images
}

func cameraName(settings config.Settings, id string) string {
	if cam, ok := settings.Cameras[id]; ok && cam.Name != "" {
		return cam.Name
	}
	return id
}

// references loads known faces as model references. names limits the set.
func (r *Runner) references(names ...string) []ai.Reference {
	if r.faces == nil {
		return nil
	}
	faces, err := r.faces.Load(names...)
	if err != nil {
		r.logger.Warn("Failed to load reference faces", "error", err)
		return nil
	}
	refs := make([]ai.Reference, 0, len(faces))
	for _, f := range faces {
		refs = append(refs, ai.Reference{Name: f.Name, JPEG: f.JPEG})
	}
	return refs
}

// saveSnapshot stores an image and returns its key and URL. Failures are
// logged and leave both empty.
func (r *Runner) saveSnapshot(ctx context.Context, subject string, at time.Time, suffix string, data []byte) (string, string) {
	if r.snapshots == nil || len(data) == 0 {
		return "", ""
	}
	key := storage.SnapshotKey(subject, at, suffix)
	url, err := r.snapshots.Save(ctx, key, data)
	if err != nil {
		r.logger.Warn("Failed to save snapshot", "subject", subject, "error", err)
		return "", ""
	}
	return key, url
}

// appendEvent stores ev. A storage failure does not fail the job: the
// model answer is still returned and delivered.
func (r *Runner) appendEvent(ctx context.Context, ev *storage.Event) bool {
	if err := r.store.AppendEvent(ctx, ev); err != nil {
		r.logger.Error("Failed to store event", "subject", ev.Subject, "error", err)
		return false
	}
	return true
}

func (r *Runner) recordSightings(ctx context.Context, names []string, at time.Time) {
	for _, name := range names {
		if err := r.store.RecordSighting(ctx, name, at); err != nil {
			r.logger.Warn("Failed to record sighting", "name", name, "error", err)
		}
	}
}

// notifyChat sends to recipients and returns the number of successful deliveries.
func (r *Runner) notifyChat(ctx context.Context, eventID, subject string, recipients []string, image []byte, caption string) int {
	if len(recipients) == 0 {
		return 0
	}
	sent := 0
	for _, d := range r.notifier.NotifyChat(ctx, eventID, subject, recipients, image, caption) {
		if d.Success {
			sent++
		}
	}
	return sent
}

// splitDetections returns the distinct recognized names and the number of
// unknown people.
func splitDetections(detections []ai.Detection) ([]string, int) {
	var (
		names   []string
		unknown int
	)
	for _, d := range detections {
		if d.Known() {
			if !slices.Contains(names, d.Name) {
				names = append(names, d.Name)
			}
			continue
		}
		unknown++
	}
	return names, unknown
}

type nopNotifier struct{}

func (nopNotifier) NotifyChat(context.Context, string, string, []string, []byte, string) []notify.Delivery {
	return nil
}
func (nopNotifier) PublishCameraEvent(context.Context, notify.CameraEvent, []byte) {}
func (nopNotifier) PublishResult(context.Context, string, string, string, any)     {}
func (nopNotifier) PostWebhook(context.Context, string, string, any)               {}
