package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smazurov/watchnode/internal/scheduler"
)

func newTestStore(t *testing.T) *SettingsStore {
	t.Helper()
	return NewSettingsStore(filepath.Join(t.TempDir(), "settings.toml"), newTestLogger())
}

func TestStoreLoadMissingUsesDefaults(t *testing.T) {
	store := newTestStore(t)
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}
	if got := store.Get(); got.MQTT.Port != 1883 || len(got.Cameras) != 0 {
		t.Errorf("unexpected settings: %+v", got)
	}
}

func TestStoreUpsertPersists(t *testing.T) {
	store := newTestStore(t)

	cam := NewCamera("Front door", "rtsp://10.0.0.2/live")
	cam.ScheduleEnabled = true
	cam.Schedule = scheduler.WeeklyAt("07:30", "mon", "fri")
	if _, err := store.UpsertCamera("front", cam); err != nil {
		t.Fatal(err)
	}

	reloaded := NewSettingsStore(store.Path(), newTestLogger())
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	got, ok := reloaded.Camera("front")
	if !ok {
		t.Fatal("camera not persisted")
	}
	if got.Name != "Front door" || got.Schedule.Kind != scheduler.TriggerWeekly || len(got.Schedule.Days) != 2 {
		t.Errorf("persisted camera = %+v", got)
	}
}

func TestStoreUpdateRejectsInvalid(t *testing.T) {
	store := newTestStore(t)

	_, err := store.UpsertCamera("front", CameraConfig{Name: "no source"})
	if !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("UpsertCamera() error = %v, want ErrInvalidSettings", err)
	}
	if _, ok := store.Camera("front"); ok {
		t.Error("invalid camera should not be stored")
	}
	if _, statErr := os.Stat(store.Path()); !os.IsNotExist(statErr) {
		t.Error("invalid update should not write the file")
	}
}

func TestStoreUpdateFnError(t *testing.T) {
	store := newTestStore(t)
	sentinel := errors.New("nope")
	if _, err := store.Update(func(*Settings) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("got %v, want sentinel", err)
	}
}

func TestStoreRemoveCameraCascades(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Update(func(s *Settings) error {
		s.Cameras["front"] = NewCamera("Front", "0")
		s.Cameras["back"] = NewCamera("Back", "1")
		s.Meters["water"] = MeterConfig{CameraID: "front"}
		s.Patrol.Cameras = []string{"front", "back"}
		s.Doorbell = DoorbellConfig{Enabled: true, CameraID: "front"}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.RemoveCamera("front")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.Meters["water"]; ok {
		t.Error("meter on removed camera should be removed")
	}
	if len(got.Patrol.Cameras) != 1 || got.Patrol.Cameras[0] != "back" {
		t.Errorf("patrol cameras = %v", got.Patrol.Cameras)
	}
	if got.Doorbell.Enabled {
		t.Error("doorbell should be disabled")
	}

	if _, err := store.RemoveCamera("front"); !errors.Is(err, ErrCameraNotFound) {
		t.Errorf("got %v, want ErrCameraNotFound", err)
	}
}

func TestStoreSaveKeepsBackup(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.UpsertCamera("a", NewCamera("A", "0")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpsertCamera("b", NewCamera("B", "1")); err != nil {
		t.Fatal(err)
	}

	backup, err := ReadSettings(store.BackupPath())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := backup.Cameras["a"]; !ok {
		t.Error("backup should contain the previous save")
	}
	if _, ok := backup.Cameras["b"]; ok {
		t.Error("backup should not contain the latest camera")
	}
}

func TestStoreLoadRestoresFromBackup(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.UpsertCamera("a", NewCamera("A", "0")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpsertCamera("b", NewCamera("B", "1")); err != nil {
		t.Fatal(err)
	}

	// Simulate a truncated write
	if err := os.WriteFile(store.Path(), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	reloaded := NewSettingsStore(store.Path(), newTestLogger())
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	if _, ok := reloaded.Camera("a"); !ok {
		t.Error("camera a should be restored from backup")
	}
	if !fileHasData(store.Path()) {
		t.Error("restored settings should be written back")
	}
}

func TestStoreLoadInvalidTOML(t *testing.T) {
	store := newTestStore(t)
	if err := os.WriteFile(store.Path(), []byte("cameras = [[["), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.Load(); err == nil {
		t.Error("expected parse error")
	}
}

func TestParseSettingsFillsDefaults(t *testing.T) {
	s, err := ParseSettings([]byte(`
[cameras.porch]
name = "Porch"
source = "onvif://admin:pw@10.0.0.5:8000"
enabled = true
`))
	if err != nil {
		t.Fatalf("ParseSettings() error = %v", err)
	}
	if s.Cameras["porch"].Source != "onvif://admin:pw@10.0.0.5:8000" {
		t.Errorf("camera = %+v", s.Cameras["porch"])
	}
	if s.Version != 1 || s.Meters == nil || s.MQTT.Port != 1883 {
		t.Errorf("defaults missing: version=%d meters=%v mqtt=%+v", s.Version, s.Meters, s.MQTT)
	}

	if _, err := ParseSettings([]byte("cameras = [")); err == nil {
		t.Error("expected parse error")
	}
}
