// Package app wires the camera registry, the schedule coordinator, the
// analysis runner and the notification channels, and keeps them in step
// with the settings file.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/watchnode/internal/ai"
	"github.com/smazurov/watchnode/internal/analysis"
	"github.com/smazurov/watchnode/internal/camera"
	"github.com/smazurov/watchnode/internal/config"
	"github.com/smazurov/watchnode/internal/events"
	"github.com/smazurov/watchnode/internal/logging"
	"github.com/smazurov/watchnode/internal/metrics"
	"github.com/smazurov/watchnode/internal/metrics/collectors"
	"github.com/smazurov/watchnode/internal/metrics/exporters"
	"github.com/smazurov/watchnode/internal/notify"
	"github.com/smazurov/watchnode/internal/onvif"
	"github.com/smazurov/watchnode/internal/scheduler"
	"github.com/smazurov/watchnode/internal/storage"
)

// Apply sources reported in SettingsAppliedEvent.
const (
	SourceStartup = "startup"
	SourceReload  = "reload"
	SourceAPI     = "api"
	SourceRestore = "restore"
)

// ErrDoorbellDisabled is returned for MQTT doorbell triggers while the doorbell is off.
var ErrDoorbellDisabled = errors.New("doorbell trigger is disabled")

// Options configures an App.
type Options struct {
	SettingsPath string
	Bus          *events.Bus
	// WatchSettings reloads the settings file when it changes on disk.
	WatchSettings bool
	// Opener overrides the ffmpeg opener.
	Opener camera.Opener
	// Resolver overrides the ONVIF client used for onvif:// sources.
	Resolver camera.StreamResolver
	// Analyzer overrides the Gemini client.
	Analyzer ai.Analyzer
	// Snapshots overrides the storage backend from settings.
	Snapshots storage.SnapshotStore
	Clock     scheduler.Clock
	Logger    *slog.Logger
}

// App owns every long-lived component.
type App struct {
	opts   Options
	logger *slog.Logger
	bus    *events.Bus

	settings    *config.SettingsStore
	registry    *camera.Registry
	coordinator *scheduler.Coordinator
	runner      *analysis.Runner
	dispatcher  *notify.Dispatcher
	models      *modelSwitch
	opener      camera.Opener
	resolver    camera.StreamResolver

	db        *storage.DB
	faces     *storage.FaceStore
	snapshots storage.SnapshotStore

	collector *collectors.BusCollector
	exporter  *exporters.SSEExporter
	watcher   *config.Watcher[config.Settings]

	applyMu  sync.Mutex
	applied  config.Settings
	mqtt     *notify.MQTTBridge
	whatsapp *notify.WhatsApp
}

// New loads the settings and opens storage. Nothing runs until Start.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("main")
	}
	if opts.Bus == nil {
		opts.Bus = events.New()
	}
	if opts.SettingsPath == "" {
		opts.SettingsPath = "settings.toml"
	}

	a := &App{
		opts:     opts,
		logger:   opts.Logger,
		bus:      opts.Bus,
		settings: config.NewSettingsStore(opts.SettingsPath, logging.GetLogger("config")),
		models:   newModelSwitch(logging.GetLogger("ai")),
	}

	if err := a.settings.Load(); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	settings := a.settings.Get()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	for _, w := range settings.Warnings() {
		a.logger.Warn("Settings warning", "warning", w)
	}

	if err := a.openStorage(ctx, settings.Storage); err != nil {
		return nil, err
	}

	a.resolver = opts.Resolver
	if a.resolver == nil {
		a.resolver = onvif.NewClient(10 * time.Second)
	}
	a.opener = opts.Opener
	if a.opener == nil {
		a.opener = camera.OpenerFunc(a.openFFmpeg)
	}
	source := camera.DefaultSourceOptions()
	source.ErrorBudget = settings.Capture.ErrorBudget
	source.IdleWindow = time.Duration(settings.Capture.IdleWindowSec) * time.Second
	source.OnStateChange = a.onCameraState
	source.OnFrame = metrics.IncCameraFrames
	a.registry = camera.NewRegistry(camera.RegistryOptions{
		Opener:  a.opener,
		Source:  source,
		Quality: settings.Capture.JPEGQuality,
		Overlay: settings.Capture.OverlayTimestamp,
		Logger:  logging.GetLogger("camera"),
	})

	a.coordinator = scheduler.New(scheduler.Options{
		Clock:    opts.Clock,
		Location: settings.Location(),
		Logger:   logging.GetLogger("scheduler"),
		OnFire:   a.onJobFired,
	})

	a.dispatcher = notify.NewDispatcher(a.db, a.bus, logging.GetLogger("notify"))

	var analyzer ai.Analyzer = a.models
	if opts.Analyzer != nil {
		analyzer = opts.Analyzer
	}
	a.runner = analysis.NewRunner(analysis.Options{
		Frames:    a.registry,
		Analyzer:  analyzer,
		Store:     a.db,
		Snapshots: a.snapshots,
		Faces:     a.faces,
		Notifier:  a.dispatcher,
		Bus:       a.bus,
		Settings:  a.settings.Get,
		Logger:    logging.GetLogger("analysis"),
	})
	a.runner.Register(a.coordinator)

	a.collector = collectors.NewBusCollector(a.bus)
	a.exporter = exporters.NewSSEExporter(a.bus)

	if opts.WatchSettings {
		a.watcher = config.NewConfigWatcher(opts.SettingsPath, config.ReadSettings, logging.GetLogger("config"),
			config.WithErrorHandler[config.Settings](func(err error) {
				a.logger.Error("Failed to reload settings", "error", err)
			}))
		a.watcher.OnReload(a.reload)
	}

	return a, nil
}

func (a *App) openStorage(ctx context.Context, cfg config.StorageConfig) error {
	db, err := storage.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db

	faces, err := storage.NewFaceStore(cfg.FacesDir)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to open faces directory: %w", err)
	}
	a.faces = faces

	if a.opts.Snapshots != nil {
		a.snapshots = a.opts.Snapshots
		return nil
	}

	switch cfg.Backend {
	case config.StorageMinio:
		m := cfg.Minio
		snaps, err := storage.NewMinioSnapshots(ctx, storage.MinioOptions{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			UseSSL:    m.UseSSL,
			PublicURL: m.PublicURL,
		}, logging.GetLogger("storage"))
		if err != nil {
			db.Close()
			return err
		}
		a.snapshots = snaps
	default:
		snaps, err := storage.NewLocalSnapshots(cfg.SnapshotDir, "/api/snapshots/")
		if err != nil {
			db.Close()
			return fmt.Errorf("failed to open snapshot directory: %w", err)
		}
		a.snapshots = snaps
	}
	return nil
}

// openFFmpeg opens a source with the capture settings current at open time.
func (a *App) openFFmpeg(ctx context.Context, desc camera.Descriptor) (camera.Device, error) {
	c := a.settings.Get().Capture
	opener := &camera.FFmpegOpener{
		Binary:      c.FFmpegPath,
		ReadTimeout: time.Duration(c.ReadTimeoutSec) * time.Second,
		FPS:         c.FPS,
		Quality:     c.Quality,
		Resolution:  c.Resolution,
		Options:     c.InputOptions,
		Resolver:    a.resolver,
		Logger:      logging.GetLogger("ffmpeg"),
	}
	return opener.Open(ctx, desc)
}

// ConnectionTest is the outcome of a one-off source check.
type ConnectionTest struct {
	// Resolved is the RTSP URI an ONVIF device advertised.
	Resolved string
	Width    int
	Height   int
	Elapsed  time.Duration
}

// TestConnection opens desc, grabs one frame and closes it again. onvif://
// sources are resolved first and opened at the URI the device returned.
func (a *App) TestConnection(ctx context.Context, desc camera.Descriptor) (ConnectionTest, error) {
	start := time.Now()
	var result ConnectionTest

	if onvif.IsSource(desc.URI) {
		uri, err := a.resolver.StreamURI(ctx, desc.URI)
		if err != nil {
			return result, fmt.Errorf("onvif: %w", err)
		}
		result.Resolved = uri
		desc = camera.Descriptor{URI: uri, Backend: camera.BackendRTSP}
	}

	dev, err := a.opener.Open(ctx, desc)
	if err != nil {
		return result, err
	}
	defer func() {
		if closeErr := dev.Close(); closeErr != nil {
			a.logger.Debug("Failed to close test device", "error", closeErr)
		}
	}()

	if err := dev.Grab(ctx); err != nil {
		return result, err
	}
	frame, err := dev.Retrieve()
	if err != nil {
		return result, err
	}
	switch {
	case frame.Image != nil:
		b := frame.Image.Bounds()
		result.Width, result.Height = b.Dx(), b.Dy()
	case len(frame.JPEG) > 0:
		if cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame.JPEG)); err == nil {
			result.Width, result.Height = cfg.Width, cfg.Height
		}
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// Start applies the loaded settings and starts the scheduler and watchers.
func (a *App) Start(ctx context.Context) error {
	a.collector.Start()
	a.exporter.Start(ctx)
	a.coordinator.Start()
	a.Apply(a.settings.Get(), SourceStartup)

	if a.watcher != nil {
		if err := a.watcher.Start(); err != nil {
			a.logger.Warn("Settings watcher unavailable, changes on disk need a restart", "error", err)
		}
	}
	return nil
}

// Stop shuts everything down. Running jobs get the coordinator's stop timeout.
func (a *App) Stop() {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.Debug("Settings watcher stop", "error", err)
		}
	}
	a.coordinator.Stop()
	a.registry.StopAll()

	a.applyMu.Lock()
	if a.mqtt != nil {
		a.mqtt.Close()
		a.mqtt = nil
	}
	a.applyMu.Unlock()

	a.exporter.Stop()
	a.collector.Stop()
	if err := a.db.Close(); err != nil {
		a.logger.Warn("Failed to close database", "error", err)
	}
}

// Apply makes the registry, the job table and the channels match next.
// Cameras whose source and name are unchanged keep their running handle.
func (a *App) Apply(next config.Settings, source string) {
	a.applyMu.Lock()
	defer a.applyMu.Unlock()

	prev := a.applied
	now := time.Now().Format(time.RFC3339)

	for _, id := range a.registry.IDs() {
		cam, ok := next.Cameras[id]
		if ok && cam.Enabled {
			continue
		}
		if a.registry.Remove(id) {
			a.bus.Publish(events.CameraRemovedEvent{CameraID: id, Timestamp: now})
		}
	}

	for _, id := range slices.Sorted(maps.Keys(next.Cameras)) {
		cam := next.Cameras[id]
		if !cam.Enabled {
			continue
		}
		if old, ok := prev.Cameras[id]; ok && old.Enabled && old.Descriptor() == cam.Descriptor() && old.Name == cam.Name {
			if _, live := a.registry.Get(id); live {
				continue
			}
		}
		a.registry.Add(id, cam.Descriptor(), cam.Name)
		a.bus.Publish(events.CameraAddedEvent{CameraID: id, Name: cam.Name, URI: cam.Source, Timestamp: now})
	}

	a.coordinator.Sync(next.Subjects())
	a.models.update(next.AI)
	a.configureChannels(prev, next)
	a.applied = next.Clone()

	cameras, jobs := len(a.registry.IDs()), len(a.coordinator.Jobs())
	a.logger.Info("Settings applied", "source", source, "cameras", cameras, "jobs", jobs)
	a.bus.Publish(events.SettingsAppliedEvent{Cameras: cameras, Jobs: jobs, Source: source, Timestamp: now})
}

// Restore replaces every setting. All cameras and jobs are torn down before
// the new settings are applied.
func (a *App) Restore(next config.Settings) error {
	saved, err := a.settings.Update(func(s *config.Settings) error {
		*s = next.Clone()
		if s.Cameras == nil {
			s.Cameras = make(map[string]config.CameraConfig)
		}
		if s.Meters == nil {
			s.Meters = make(map[string]config.MeterConfig)
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.applyMu.Lock()
	now := time.Now().Format(time.RFC3339)
	for _, id := range a.registry.IDs() {
		if a.registry.Remove(id) {
			a.bus.Publish(events.CameraRemovedEvent{CameraID: id, Timestamp: now})
		}
	}
	a.coordinator.Sync(nil)
	a.applied.Cameras = nil
	a.applyMu.Unlock()

	a.Apply(saved, SourceRestore)
	return nil
}

// UpdateSettings saves the result of fn and applies it.
func (a *App) UpdateSettings(fn func(*config.Settings) error) (config.Settings, error) {
	next, err := a.settings.Update(fn)
	if err != nil {
		return next, err
	}
	a.Apply(next, SourceAPI)
	return next, nil
}

// UpsertCamera saves a camera and applies the change.
func (a *App) UpsertCamera(id string, cam config.CameraConfig) (config.Settings, error) {
	next, err := a.settings.UpsertCamera(id, cam)
	if err != nil {
		return next, err
	}
	a.Apply(next, SourceAPI)
	return next, nil
}

// RemoveCamera deletes a camera and applies the change.
func (a *App) RemoveCamera(id string) error {
	next, err := a.settings.RemoveCamera(id)
	if err != nil {
		return err
	}
	a.Apply(next, SourceAPI)
	return nil
}

// reload applies settings changed on disk. Our own saves read back equal
// to the stored settings and are skipped.
func (a *App) reload(next config.Settings) {
	if reflect.DeepEqual(next, a.settings.Get()) {
		return
	}
	if err := next.Validate(); err != nil {
		a.logger.Error("Reloaded settings are invalid, keeping current", "error", err)
		return
	}
	a.settings.Set(next)
	a.Apply(next, SourceReload)
}

// Trigger runs a subject immediately and returns its result.
func (a *App) Trigger(ctx context.Context, s scheduler.Subject) (any, error) {
	return a.coordinator.TriggerNow(ctx, s)
}

// TriggerAsync starts a subject in the background.
func (a *App) TriggerAsync(s scheduler.Subject) error {
	return a.coordinator.TriggerAsync(s)
}

// mqttTrigger gates MQTT-originated triggers that have an enable switch.
func (a *App) mqttTrigger(s scheduler.Subject) error {
	if s.Kind == scheduler.KindDoorbell && !a.settings.Get().Doorbell.Enabled {
		return ErrDoorbellDisabled
	}
	return a.coordinator.TriggerAsync(s)
}

func (a *App) onCameraState(id string, oldState, newState camera.State, err error) {
	ev := events.CameraStateChangedEvent{
		CameraID:  id,
		From:      string(oldState),
		To:        string(newState),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	a.bus.Publish(ev)
}

func (a *App) onJobFired(info scheduler.FireInfo) {
	ev := events.JobFiredEvent{
		JobID:      info.JobID,
		Kind:       string(info.Kind),
		Manual:     info.Manual,
		DurationMs: info.Duration.Milliseconds(),
		Timestamp:  time.Now().Format(time.RFC3339),
	}
	if info.Err != nil {
		ev.Error = info.Err.Error()
	}
	a.bus.Publish(ev)
}

// Settings returns the settings store.
func (a *App) Settings() *config.SettingsStore { return a.settings }

// Registry returns the camera registry.
func (a *App) Registry() *camera.Registry { return a.registry }

// Coordinator returns the schedule coordinator.
func (a *App) Coordinator() *scheduler.Coordinator { return a.coordinator }

// Runner returns the analysis runner.
func (a *App) Runner() *analysis.Runner { return a.runner }

// DB returns the event database.
func (a *App) DB() *storage.DB { return a.db }

// Faces returns the reference face store.
func (a *App) Faces() *storage.FaceStore { return a.faces }

// Snapshots returns the snapshot store.
func (a *App) Snapshots() storage.SnapshotStore { return a.snapshots }

// Bus returns the event bus.
func (a *App) Bus() *events.Bus { return a.bus }

// Models lists the vision models available to the configured key.
func (a *App) Models(ctx context.Context) ([]string, error) {
	return a.models.ListModels(ctx)
}

// WhatsApp returns the chat gateway client, or nil when it is disabled.
func (a *App) WhatsApp() *notify.WhatsApp {
	a.applyMu.Lock()
	defer a.applyMu.Unlock()
	return a.whatsapp
}

// MQTTConnected reports whether the MQTT bridge reaches its broker.
func (a *App) MQTTConnected() bool {
	a.applyMu.Lock()
	defer a.applyMu.Unlock()
	return a.mqtt != nil && a.mqtt.Connected()
}
