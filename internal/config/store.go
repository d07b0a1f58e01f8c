package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// ErrCameraNotFound is returned when a camera id is not configured.
var ErrCameraNotFound = errors.New("camera not found")

// ErrInvalidSettings wraps validation failures of a settings update.
var ErrInvalidSettings = errors.New("invalid settings")

// SettingsStore owns settings.toml. Saves are atomic and keep a .bak copy
// of the previous file, which Load falls back to when the main file is
// missing or empty.
type SettingsStore struct {
	path     string
	logger   *slog.Logger
	mu       sync.RWMutex
	settings Settings
}

// NewSettingsStore creates a store for path holding default settings.
func NewSettingsStore(path string, logger *slog.Logger) *SettingsStore {
	if path == "" {
		path = "settings.toml"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsStore{
		path:     path,
		logger:   logger,
		settings: DefaultSettings(),
	}
}

// Path returns the settings file path.
func (s *SettingsStore) Path() string {
	return s.path
}

// BackupPath returns the path of the backup copy.
func (s *SettingsStore) BackupPath() string {
	return s.path + ".bak"
}

// ReadSettings parses a settings file over the defaults.
// A missing or empty file is restored from its .bak copy when one exists.
func ReadSettings(path string) (Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return settings, fmt.Errorf("failed to read settings: %w", err)
	}

	if len(data) == 0 {
		backup, backupErr := os.ReadFile(path + ".bak")
		if backupErr != nil || len(backup) == 0 {
			// Nothing to restore; start from defaults
			return settings, nil
		}
		data = backup
	}

	return ParseSettings(data)
}

// ParseSettings decodes TOML settings over the defaults.
func ParseSettings(data []byte) (Settings, error) {
	settings := DefaultSettings()
	if err := toml.Unmarshal(data, &settings); err != nil {
		return DefaultSettings(), fmt.Errorf("failed to parse settings: %w", err)
	}

	if settings.Cameras == nil {
		settings.Cameras = make(map[string]CameraConfig)
	}
	if settings.Meters == nil {
		settings.Meters = make(map[string]MeterConfig)
	}
	if settings.Version == 0 {
		settings.Version = 1
	}
	return settings, nil
}

// Load reads the settings file. A file restored from backup is written back.
func (s *SettingsStore) Load() error {
	info, statErr := os.Stat(s.path)
	restored := (statErr != nil || info.Size() == 0) && fileHasData(s.BackupPath())

	settings, err := ReadSettings(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	if restored {
		s.logger.Warn("Settings file missing or empty, restored from backup", "path", s.path)
		return s.save(settings)
	}
	return nil
}

// Get returns a copy of the current settings.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Clone()
}

// Set replaces the in-memory settings without saving. Used for reloads.
func (s *SettingsStore) Set(settings Settings) {
	s.mu.Lock()
	s.settings = settings.Clone()
	s.mu.Unlock()
}

// Update applies fn to a copy of the settings, validates and saves the result.
// The stored settings are unchanged if fn, validation or the save fails.
func (s *SettingsStore) Update(fn func(*Settings) error) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings.Clone()
	if err := fn(&next); err != nil {
		return s.settings.Clone(), err
	}
	if err := next.Validate(); err != nil {
		return s.settings.Clone(), fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if err := s.save(next); err != nil {
		return s.settings.Clone(), err
	}
	s.settings = next
	return next.Clone(), nil
}

// Camera returns the config for a camera.
func (s *SettingsStore) Camera(id string) (CameraConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cam, ok := s.settings.Cameras[id]
	return cam, ok
}

// UpsertCamera adds or replaces a camera and saves.
func (s *SettingsStore) UpsertCamera(id string, cam CameraConfig) (Settings, error) {
	return s.Update(func(st *Settings) error {
		st.Cameras[id] = cam
		return nil
	})
}

// RemoveCamera deletes a camera and any meter reading from it.
func (s *SettingsStore) RemoveCamera(id string) (Settings, error) {
	return s.Update(func(st *Settings) error {
		if _, ok := st.Cameras[id]; !ok {
			return ErrCameraNotFound
		}
		delete(st.Cameras, id)
		for meterID, m := range st.Meters {
			if m.CameraID == id {
				delete(st.Meters, meterID)
			}
		}
		if st.Doorbell.CameraID == id {
			st.Doorbell.CameraID = ""
			st.Doorbell.Enabled = false
		}
		cams := st.Patrol.Cameras[:0:0]
		for _, c := range st.Patrol.Cameras {
			if c != id {
				cams = append(cams, c)
			}
		}
		st.Patrol.Cameras = cams
		return nil
	})
}

// save writes settings to a temp file, syncs it, copies the current file to
// .bak and renames the temp file into place.
func (s *SettingsStore) save(settings Settings) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, writeErr := tmp.Write(data); writeErr != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", writeErr)
	}
	if syncErr := tmp.Sync(); syncErr != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync settings: %w", syncErr)
	}
	if closeErr := tmp.Close(); closeErr != nil {
		return fmt.Errorf("failed to close settings: %w", closeErr)
	}

	if fileHasData(s.path) {
		if copyErr := copyFile(s.path, s.BackupPath()); copyErr != nil {
			s.logger.Warn("Failed to back up settings", "error", copyErr)
		}
	}

	if renameErr := os.Rename(tmpPath, s.path); renameErr != nil {
		return fmt.Errorf("failed to replace settings: %w", renameErr)
	}
	return nil
}

func fileHasData(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
