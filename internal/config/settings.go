package config

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"time"

	"github.com/smazurov/watchnode/internal/camera"
	"github.com/smazurov/watchnode/internal/ffmpeg"
	"github.com/smazurov/watchnode/internal/scheduler"
)

// Settings is the typed domain configuration kept in settings.toml.
type Settings struct {
	Version      int                     `toml:"version" json:"version"`
	Timezone     string                  `toml:"timezone,omitempty" json:"timezone,omitempty"`
	Capture      CaptureConfig           `toml:"capture" json:"capture"`
	Cameras      map[string]CameraConfig `toml:"cameras" json:"cameras"`
	Patrol       PatrolConfig            `toml:"patrol" json:"patrol"`
	PersonFinder PersonFinderConfig      `toml:"person_finder" json:"person_finder"`
	Meters       map[string]MeterConfig  `toml:"meters" json:"meters"`
	Doorbell     DoorbellConfig          `toml:"doorbell" json:"doorbell"`
	AI           AIConfig                `toml:"ai" json:"ai"`
	WhatsApp     WhatsAppConfig          `toml:"whatsapp" json:"whatsapp"`
	MQTT         MQTTConfig              `toml:"mqtt" json:"mqtt"`
	Webhook      WebhookConfig           `toml:"webhook" json:"webhook"`
	Storage      StorageConfig           `toml:"storage" json:"storage"`
}

// CaptureConfig tunes every camera's capture loop.
type CaptureConfig struct {
	FFmpegPath       string `toml:"ffmpeg_path" json:"ffmpeg_path"`
	FPS              int    `toml:"fps" json:"fps"`
	Quality          int    `toml:"quality" json:"quality"` // ffmpeg mjpeg quantizer 2-31
	JPEGQuality      int    `toml:"jpeg_quality" json:"jpeg_quality"`
	Resolution       string `toml:"resolution,omitempty" json:"resolution,omitempty"`
	ErrorBudget      int    `toml:"error_budget" json:"error_budget"`
	IdleWindowSec    int    `toml:"idle_window_sec" json:"idle_window_sec"`
	ReadTimeoutSec   int    `toml:"read_timeout_sec" json:"read_timeout_sec"`
	OverlayTimestamp bool   `toml:"overlay_timestamp" json:"overlay_timestamp"`
	// InputOptions are ffmpeg input option keys (tcp_transport, low_latency,
	// genpts, ignore_err, wallclock_ts, reconnect). Unset uses per-backend defaults.
	InputOptions []ffmpeg.OptionType `toml:"input_options,omitempty" json:"input_options,omitempty"`
}

// CameraConfig defines one camera.
type CameraConfig struct {
	Name            string             `toml:"name" json:"name"`
	Source          string             `toml:"source" json:"source"` // device index, /dev/videoN, rtsp://, http://, onvif://
	Backend         string             `toml:"backend,omitempty" json:"backend,omitempty"`
	Enabled         bool               `toml:"enabled" json:"enabled"`
	Prompt          string             `toml:"prompt,omitempty" json:"prompt,omitempty"`
	Instruction     string             `toml:"message_instruction,omitempty" json:"message_instruction,omitempty"`
	Notify          bool               `toml:"notify" json:"notify"`
	Recipients      []string           `toml:"recipients,omitempty" json:"recipients,omitempty"`
	ScheduleEnabled bool               `toml:"schedule_enabled" json:"schedule_enabled"`
	Schedule        scheduler.Schedule `toml:"schedule" json:"schedule"`
}

// Descriptor returns the capture descriptor for the camera.
func (c CameraConfig) Descriptor() camera.Descriptor {
	return camera.Descriptor{URI: c.Source, Backend: c.Backend}
}

// PatrolConfig is the global multi-camera sweep.
type PatrolConfig struct {
	ScheduleEnabled bool               `toml:"schedule_enabled" json:"schedule_enabled"`
	Schedule        scheduler.Schedule `toml:"schedule" json:"schedule"`
	Cameras         []string           `toml:"cameras,omitempty" json:"cameras,omitempty"` // empty = all enabled
	Prompt          string             `toml:"prompt,omitempty" json:"prompt,omitempty"`
	Instruction     string             `toml:"message_instruction,omitempty" json:"message_instruction,omitempty"`
	Recipients      []string           `toml:"recipients,omitempty" json:"recipients,omitempty"`
}

// PersonFinderConfig is the scheduled search for known faces.
type PersonFinderConfig struct {
	ScheduleEnabled bool               `toml:"schedule_enabled" json:"schedule_enabled"`
	Schedule        scheduler.Schedule `toml:"schedule" json:"schedule"`
	Names           []string           `toml:"names,omitempty" json:"names,omitempty"`
	Prompt          string             `toml:"prompt,omitempty" json:"prompt,omitempty"`
	Recipients      []string           `toml:"recipients,omitempty" json:"recipients,omitempty"`
}

// MeterConfig is a utility meter read from a camera image.
type MeterConfig struct {
	Name            string             `toml:"name" json:"name"`
	CameraID        string             `toml:"camera_id" json:"camera_id"`
	Unit            string             `toml:"unit,omitempty" json:"unit,omitempty"`
	Prompt          string             `toml:"prompt,omitempty" json:"prompt,omitempty"`
	ScheduleEnabled bool               `toml:"schedule_enabled" json:"schedule_enabled"`
	Schedule        scheduler.Schedule `toml:"schedule" json:"schedule"`
	Recipients      []string           `toml:"recipients,omitempty" json:"recipients,omitempty"`
}

// DoorbellConfig selects the camera analyzed when the doorbell rings.
type DoorbellConfig struct {
	Enabled     bool     `toml:"enabled" json:"enabled"`
	CameraID    string   `toml:"camera_id,omitempty" json:"camera_id,omitempty"`
	Prompt      string   `toml:"prompt,omitempty" json:"prompt,omitempty"`
	Instruction string   `toml:"message_instruction,omitempty" json:"message_instruction,omitempty"`
	Recipients  []string `toml:"recipients,omitempty" json:"recipients,omitempty"`
}

// AIConfig configures the vision model.
type AIConfig struct {
	APIKey        string `toml:"api_key" json:"-"`
	Model         string `toml:"model" json:"model"`
	BaseURL       string `toml:"base_url,omitempty" json:"base_url,omitempty"`
	Language      string `toml:"language" json:"language"`
	DefaultPrompt string `toml:"default_prompt,omitempty" json:"default_prompt,omitempty"`
	TimeoutSec    int    `toml:"timeout_sec" json:"timeout_sec"`
}

// WhatsAppConfig configures the GOWA chat gateway.
type WhatsAppConfig struct {
	Enabled     bool     `toml:"enabled" json:"enabled"`
	APIURL     string   `toml:"api_url" json:"api_url"`
	DeviceID   string   `toml:"device_id,omitempty" json:"device_id,omitempty"`
	Username   string   `toml:"username,omitempty" json:"username,omitempty"`
	Password   string   `toml:"password,omitempty" json:"-"`
	Recipients []string `toml:"recipients,omitempty" json:"recipients,omitempty"`
	Compress   bool     `toml:"compress" json:"compress"`
}

// MQTTConfig configures the MQTT bridge.
type MQTTConfig struct {
	Enabled         bool   `toml:"enabled" json:"enabled"`
	Broker          string `toml:"broker" json:"broker"`
	Port            int    `toml:"port" json:"port"`
	Username        string `toml:"username,omitempty" json:"username,omitempty"`
	Password        string `toml:"password,omitempty" json:"-"`
	ClientID        string `toml:"client_id" json:"client_id"`
	BaseTopic       string `toml:"base_topic" json:"base_topic"`
	Discovery       bool   `toml:"discovery" json:"discovery"`
	DiscoveryPrefix string `toml:"discovery_prefix" json:"discovery_prefix"`
	PublishImages   bool   `toml:"publish_images" json:"publish_images"`
}

// WebhookConfig configures the outbound result webhook.
type WebhookConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled"`
	URL        string `toml:"url" json:"url"`
	Token      string `toml:"token,omitempty" json:"-"`
	TimeoutSec int    `toml:"timeout_sec" json:"timeout_sec"`
}

// StorageConfig configures persistence.
type StorageConfig struct {
	Database    string      `toml:"database" json:"database"`
	Backend     string      `toml:"backend" json:"backend"` // local or minio
	SnapshotDir string      `toml:"snapshot_dir" json:"snapshot_dir"`
	FacesDir    string      `toml:"faces_dir" json:"faces_dir"`
	Minio       MinioConfig `toml:"minio" json:"minio"`
}

// MinioConfig configures S3-compatible snapshot storage.
type MinioConfig struct {
	Endpoint  string `toml:"endpoint" json:"endpoint"`
	AccessKey string `toml:"access_key" json:"-"`
	SecretKey string `toml:"secret_key" json:"-"`
	Bucket    string `toml:"bucket" json:"bucket"`
	UseSSL    bool   `toml:"use_ssl" json:"use_ssl"`
	PublicURL string `toml:"public_url,omitempty" json:"public_url,omitempty"`
}

// Storage backends.
const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// DefaultSettings returns settings with every default filled in.
func DefaultSettings() Settings {
	return Settings{
		Version: 1,
		Capture: CaptureConfig{
			FFmpegPath:     "ffmpeg",
			FPS:            5,
			Quality:        5,
			JPEGQuality:    camera.DefaultJPEGQuality,
			ErrorBudget:    50,
			IdleWindowSec:  10,
			ReadTimeoutSec: 10,
		},
		Cameras: make(map[string]CameraConfig),
		Patrol: PatrolConfig{
			Schedule: scheduler.Every(6, 0),
		},
		PersonFinder: PersonFinderConfig{
			Schedule: scheduler.Every(4, 0),
		},
		Meters: make(map[string]MeterConfig),
		AI: AIConfig{
			Model:      "gemini-1.5-flash",
			Language:   "English",
			TimeoutSec: 60,
		},
		WhatsApp: WhatsAppConfig{
			APIURL:   "http://localhost:3000",
			Compress: true,
		},
		MQTT: MQTTConfig{
			Broker:          "localhost",
			Port:            1883,
			ClientID:        "watchnode",
			BaseTopic:       "watchnode",
			Discovery:       true,
			DiscoveryPrefix: "homeassistant",
		},
		Webhook: WebhookConfig{
			TimeoutSec: 10,
		},
		Storage: StorageConfig{
			Database:    "data/watchnode.db",
			Backend:     StorageLocal,
			SnapshotDir: "data/snapshots",
			FacesDir:    "data/faces",
			Minio: MinioConfig{
				Bucket: "watchnode",
			},
		},
	}
}

// NewCamera returns a camera config with the defaults used for new cameras.
func NewCamera(name, source string) CameraConfig {
	return CameraConfig{
		Name:     name,
		Source:   source,
		Enabled:  true,
		Notify:   true,
		Schedule: scheduler.Every(1, 0),
	}
}

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidID reports whether id can be used as a camera or meter id.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Validate returns every hard configuration error.
// Schedules are not checked here; a bad schedule falls back to hourly.
func (s *Settings) Validate() error {
	var errs []error

	if err := ffmpeg.ValidateOptions(s.Capture.InputOptions); err != nil {
		errs = append(errs, fmt.Errorf("capture: %w", err))
	}

	for _, id := range slices.Sorted(maps.Keys(s.Cameras)) {
		cam := s.Cameras[id]
		if !ValidID(id) {
			errs = append(errs, fmt.Errorf("camera %q: id may only contain letters, digits, '_' and '-'", id))
		}
		if cam.Source == "" {
			errs = append(errs, fmt.Errorf("camera %q: source is required", id))
		}
		switch cam.Backend {
		case "", camera.BackendAuto, camera.BackendV4L2, camera.BackendRTSP, camera.BackendHTTP:
		default:
			errs = append(errs, fmt.Errorf("camera %q: unknown backend %q", id, cam.Backend))
		}
	}

	for _, id := range slices.Sorted(maps.Keys(s.Meters)) {
		meter := s.Meters[id]
		if !ValidID(id) {
			errs = append(errs, fmt.Errorf("meter %q: id may only contain letters, digits, '_' and '-'", id))
		}
		if _, ok := s.Cameras[meter.CameraID]; !ok {
			errs = append(errs, fmt.Errorf("meter %q: unknown camera %q", id, meter.CameraID))
		}
	}

	for _, id := range s.Patrol.Cameras {
		if _, ok := s.Cameras[id]; !ok {
			errs = append(errs, fmt.Errorf("patrol: unknown camera %q", id))
		}
	}

	if s.Doorbell.Enabled {
		if _, ok := s.Cameras[s.Doorbell.CameraID]; !ok {
			errs = append(errs, fmt.Errorf("doorbell: unknown camera %q", s.Doorbell.CameraID))
		}
	}

	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("timezone: %w", err))
		}
	}

	if s.MQTT.Enabled && (s.MQTT.Port <= 0 || s.MQTT.Port > 65535) {
		errs = append(errs, fmt.Errorf("mqtt: invalid port %d", s.MQTT.Port))
	}

	if s.Webhook.Enabled && s.Webhook.URL == "" {
		errs = append(errs, errors.New("webhook: url is required when enabled"))
	}

	switch s.Storage.Backend {
	case StorageLocal, "":
	case StorageMinio:
		if s.Storage.Minio.Endpoint == "" || s.Storage.Minio.Bucket == "" {
			errs = append(errs, errors.New("storage: minio endpoint and bucket are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: unknown backend %q", s.Storage.Backend))
	}

	return errors.Join(errs...)
}

// Warnings lists schedules that will fall back to hourly.
func (s *Settings) Warnings() []string {
	var warnings []string
	check := func(owner string, enabled bool, sched scheduler.Schedule) {
		if !enabled {
			return
		}
		if err := sched.Validate(); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v (falls back to hourly)", owner, err))
		}
	}

	for _, id := range slices.Sorted(maps.Keys(s.Cameras)) {
		cam := s.Cameras[id]
		check("camera "+id, cam.Enabled && cam.ScheduleEnabled, cam.Schedule)
	}
	check("patrol", s.Patrol.ScheduleEnabled, s.Patrol.Schedule)
	check("person_finder", s.PersonFinder.ScheduleEnabled, s.PersonFinder.Schedule)
	for _, id := range slices.Sorted(maps.Keys(s.Meters)) {
		m := s.Meters[id]
		check("meter "+id, m.ScheduleEnabled, m.Schedule)
	}
	if s.PersonFinder.ScheduleEnabled && len(s.PersonFinder.Names) == 0 {
		warnings = append(warnings, "person_finder: schedule enabled without names, nothing will be scheduled")
	}
	return warnings
}

// Location returns the configured timezone, or time.Local.
func (s *Settings) Location() *time.Location {
	if s.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Clone returns a copy whose maps can be modified independently.
func (s Settings) Clone() Settings {
	s.Cameras = maps.Clone(s.Cameras)
	s.Meters = maps.Clone(s.Meters)
	if s.Cameras == nil {
		s.Cameras = make(map[string]CameraConfig)
	}
	if s.Meters == nil {
		s.Meters = make(map[string]MeterConfig)
	}
	return s
}

// KeepSecrets copies credentials that are empty in s from current. JSON
// never carries them, so settings edited through the API keep the stored ones.
func (s *Settings) KeepSecrets(current Settings) {
	keep := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	keep(&s.AI.APIKey, current.AI.APIKey)
	keep(&s.WhatsApp.Password, current.WhatsApp.Password)
	keep(&s.MQTT.Password, current.MQTT.Password)
	keep(&s.Webhook.Token, current.Webhook.Token)
	keep(&s.Storage.Minio.AccessKey, current.Storage.Minio.AccessKey)
	keep(&s.Storage.Minio.SecretKey, current.Storage.Minio.SecretKey)
}

// Subjects returns the schedule subjects derived from the settings.
// Disabled cameras produce disabled subjects so their jobs are removed.
func (s *Settings) Subjects() []scheduler.Subject {
	subjects := make([]scheduler.Subject, 0, len(s.Cameras)+len(s.Meters)+2)

	for _, id := range slices.Sorted(maps.Keys(s.Cameras)) {
		cam := s.Cameras[id]
		subjects = append(subjects, scheduler.CameraSubject(id, cam.Enabled && cam.ScheduleEnabled, cam.Schedule))
	}

	subjects = append(subjects, scheduler.Subject{
		Kind:     scheduler.KindPatrol,
		Enabled:  s.Patrol.ScheduleEnabled,
		Schedule: s.Patrol.Schedule,
		Args:     scheduler.Args{Prompt: s.Patrol.Prompt, Recipients: s.Patrol.Recipients},
	})

	subjects = append(subjects, scheduler.Subject{
		Kind:     scheduler.KindPersonFinder,
		Enabled:  s.PersonFinder.ScheduleEnabled && len(s.PersonFinder.Names) > 0,
		Schedule: s.PersonFinder.Schedule,
		Args: scheduler.Args{
			Names:      s.PersonFinder.Names,
			Prompt:     s.PersonFinder.Prompt,
			Recipients: s.PersonFinder.Recipients,
		},
	})

	for _, id := range slices.Sorted(maps.Keys(s.Meters)) {
		m := s.Meters[id]
		subjects = append(subjects, scheduler.Subject{
			Kind:     scheduler.KindMeter,
			ID:       id,
			Enabled:  m.ScheduleEnabled,
			Schedule: m.Schedule,
			Args:     scheduler.Args{MeterID: id, CameraID: m.CameraID},
		})
	}

	return subjects
}
