package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string

	Port       string        `toml:"server.port" env:"PORT"`
	CORSOrigin string        `toml:"server.cors_origin" env:"CORS_ORIGIN"`
	Watch      bool          `toml:"settings.watch" env:"SETTINGS_WATCH"`
	Retries    int           `toml:"ai.retries" env:"AI_RETRIES"`
	Threshold  float64       `toml:"ai.threshold" env:"AI_THRESHOLD"`
	Timeout    time.Duration `toml:"ai.timeout" env:"AI_TIMEOUT"`
	Recipients []string      `toml:"notify.recipients" env:"NOTIFY_RECIPIENTS"`

	LoggingCamera    string `toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingFFmpeg    string `toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingScheduler string `toml:"logging.scheduler" env:"LOGGING_SCHEDULER"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeConfig(t, `
[server]
port = ":9000"
cors_origin = "http://panel.local"

[settings]
watch = true

[ai]
retries = 3
threshold = 0.75
timeout = "45s"

[notify]
recipients = ["alice", "bob"]

[logging]
camera = "debug"
ffmpeg = "warn"
`)
	opts := &testOptions{Config: path, LoggingScheduler: "info"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	want := testOptions{
		Config:           path,
		Port:             ":9000",
		CORSOrigin:       "http://panel.local",
		Watch:            true,
		Retries:          3,
		Threshold:        0.75,
		Timeout:          45 * time.Second,
		Recipients:       []string{"alice", "bob"},
		LoggingCamera:    "debug",
		LoggingFFmpeg:    "warn",
		LoggingScheduler: "info",
	}
	if !reflect.DeepEqual(*opts, want) {
		t.Errorf("got %+v\nwant %+v", *opts, want)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("WATCHNODE_PORT", ":7000")
	t.Setenv("WATCHNODE_SETTINGS_WATCH", "true")
	t.Setenv("WATCHNODE_AI_RETRIES", "5")
	t.Setenv("WATCHNODE_AI_THRESHOLD", "0.5")
	t.Setenv("WATCHNODE_AI_TIMEOUT", "2m")
	t.Setenv("WATCHNODE_NOTIFY_RECIPIENTS", " alice , ,bob ")

	opts := &testOptions{}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Port != ":7000" || !opts.Watch || opts.Retries != 5 {
		t.Errorf("unexpected scalars: %+v", opts)
	}
	if opts.Threshold != 0.5 {
		t.Errorf("Threshold = %v, want 0.5", opts.Threshold)
	}
	if opts.Timeout != 2*time.Minute {
		t.Errorf("Timeout = %v, want 2m", opts.Timeout)
	}
	if want := []string{"alice", "bob"}; !reflect.DeepEqual(opts.Recipients, want) {
		t.Errorf("Recipients = %v, want %v", opts.Recipients, want)
	}
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	path := writeConfig(t, `
[server]
port = ":9000"

[ai]
retries = 3
`)
	t.Setenv("WATCHNODE_PORT", ":7000")

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if opts.Port != ":7000" {
		t.Errorf("Port = %q, want env value", opts.Port)
	}
	if opts.Retries != 3 {
		t.Errorf("Retries = %d, want TOML value", opts.Retries)
	}
}

func TestLoadConfigKeepsChangedFlags(t *testing.T) {
	path := writeConfig(t, `
[server]
port = ":9000"
cors_origin = "http://file"

[logging]
ffmpeg = "error"
camera = "error"
`)
	t.Setenv("WATCHNODE_CORS_ORIGIN", "http://env")

	opts := &testOptions{Config: path}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&opts.CORSOrigin, "cors-origin", "*", "")
	cmd.Flags().StringVar(&opts.LoggingFFmpeg, "logging-f-fmpeg", "info", "")
	cmd.Flags().StringVar(&opts.LoggingCamera, "logging-camera", "info", "")
	for name, value := range map[string]string{
		"cors-origin":     "http://cli",
		"logging-f-fmpeg": "debug",
	} {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatal(err)
		}
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if opts.CORSOrigin != "http://cli" {
		t.Errorf("CORSOrigin = %q, want flag value", opts.CORSOrigin)
	}
	if opts.LoggingFFmpeg != "debug" {
		t.Errorf("LoggingFFmpeg = %q, want flag value", opts.LoggingFFmpeg)
	}
	if opts.LoggingCamera != "error" {
		t.Errorf("LoggingCamera = %q, unchanged flag should take file value", opts.LoggingCamera)
	}
	if opts.Port != ":9000" {
		t.Errorf("Port = %q, want TOML value", opts.Port)
	}
}

func TestLoadConfigReportsBadValues(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9000

[ai]
retries = 3
`)
	t.Setenv("WATCHNODE_AI_TIMEOUT", "soon")
	t.Setenv("WATCHNODE_SETTINGS_WATCH", "maybe")

	opts := &testOptions{Config: path, Port: ":8090", Timeout: time.Second}
	err := LoadConfig(opts, nil)
	if err == nil {
		t.Fatal("expected error for mistyped values")
	}
	for _, want := range []string{"server.port", "WATCHNODE_AI_TIMEOUT", "WATCHNODE_SETTINGS_WATCH"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
	if opts.Port != ":8090" || opts.Timeout != time.Second {
		t.Errorf("bad values changed fields: port=%q timeout=%v", opts.Port, opts.Timeout)
	}
	if opts.Retries != 3 {
		t.Errorf("valid value not loaded alongside errors: retries=%d", opts.Retries)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Port: ":8090"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if opts.Port != ":8090" {
		t.Errorf("default overwritten: %q", opts.Port)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	opts := &testOptions{Config: writeConfig(t, "[server\nport = ")}
	if err := LoadConfig(opts, nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFlagKey(t *testing.T) {
	tests := []struct{ flag, field string }{
		{"cors-origin", "CORSOrigin"},
		{"logging-f-fmpeg", "LoggingFFmpeg"},
		{"logging-ffmpeg", "LoggingFFmpeg"},
		{"prometheus-enabled", "PrometheusEnabled"},
	}
	for _, tt := range tests {
		if flagKey(tt.flag) != flagKey(tt.field) {
			t.Errorf("flagKey(%q) = %q, flagKey(%q) = %q", tt.flag, flagKey(tt.flag), tt.field, flagKey(tt.field))
		}
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"root": "r",
		"a": map[string]any{
			"leaf": "l",
			"b":    map[string]any{"deep": int64(7)},
		},
	}
	tests := []struct {
		path string
		want any
	}{
		{"root", "r"},
		{"a.leaf", "l"},
		{"a.b.deep", int64(7)},
		{"missing", nil},
		{"a.missing", nil},
		{"root.child", nil},
	}
	for _, tt := range tests {
		if got := getNestedValue(data, tt.path); got != tt.want {
			t.Errorf("getNestedValue(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestSetFieldValueDuration(t *testing.T) {
	var d time.Duration
	field := reflect.ValueOf(&d).Elem()

	if err := setFieldValue(field, int64(90)); err != nil || d != 90*time.Second {
		t.Errorf("integer seconds: d=%v err=%v", d, err)
	}
	if err := setFieldValue(field, "1h30m"); err != nil || d != 90*time.Minute {
		t.Errorf("string duration: d=%v err=%v", d, err)
	}
	if err := setFieldValue(field, true); err == nil {
		t.Error("expected error for bool duration")
	}
}

func TestSetFieldValueRejectsMixedList(t *testing.T) {
	var list []string
	if err := setFieldValue(reflect.ValueOf(&list).Elem(), []any{"a", int64(1)}); err == nil {
		t.Fatal("expected error for non-string element")
	}
	if list != nil {
		t.Errorf("list modified on error: %v", list)
	}
}
