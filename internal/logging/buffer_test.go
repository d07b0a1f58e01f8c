package logging

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestRingBufferWrapsAndSequences(t *testing.T) {
	rb := NewRingBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		rb.Write(LogEntry{Message: msg})
	}

	all := rb.ReadAll()
	if len(all) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(all))
	}
	for i, want := range []string{"c", "d", "e"} {
		if all[i].Message != want || all[i].Seq != uint64(i+3) {
			t.Errorf("Entry %d: got %q seq %d, want %q seq %d", i, all[i].Message, all[i].Seq, want, i+3)
		}
	}

	since := rb.Since(4)
	if len(since) != 1 || since[0].Message != "e" {
		t.Errorf("Since(4) = %+v, want only e", since)
	}
	if rb.LastSeq() != 5 {
		t.Errorf("LastSeq = %d, want 5", rb.LastSeq())
	}
}

func TestRingBufferEmpty(t *testing.T) {
	rb := NewRingBuffer(4)
	if got := rb.ReadAll(); len(got) != 0 {
		t.Errorf("Expected no entries, got %v", got)
	}
	if rb.LastSeq() != 0 {
		t.Errorf("Expected LastSeq 0, got %d", rb.LastSeq())
	}
}

func TestBufferHandlerCapturesEntries(t *testing.T) {
	Initialize(Config{Level: "debug", Format: "text"})

	var got []LogEntry
	SetLogCallback(func(e LogEntry) { got = append(got, e) })
	defer SetLogCallback(nil)

	logger := slog.New(NewBufferHandler(slog.LevelInfo)).With("module", "camera")
	logger.Debug("hidden")
	logger.WithGroup("frame").Info("Frame captured",
		"camera_id", "front",
		"took", 40*time.Millisecond,
		"error", errors.New("late"),
	)

	if len(got) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(got))
	}
	e := got[0]
	if e.Module != "camera" || e.Level != "info" || e.Message != "Frame captured" {
		t.Errorf("Unexpected entry %+v", e)
	}
	if e.Attributes["frame.camera_id"] != "front" {
		t.Errorf("Expected grouped camera_id, got %v", e.Attributes)
	}
	if e.Attributes["frame.took"] != "40ms" || e.Attributes["frame.error"] != "late" {
		t.Errorf("Unexpected attribute formatting %v", e.Attributes)
	}
	if e.Seq == 0 || GetBuffer().LastSeq() != e.Seq {
		t.Errorf("Entry seq %d does not match buffer %d", e.Seq, GetBuffer().LastSeq())
	}
}

func TestSecretsRedacted(t *testing.T) {
	Initialize(Config{Level: "info", Format: "text"})

	h := NewBufferHandler(slog.LevelInfo)
	r := slog.NewRecord(time.Now(), slog.LevelInfo, "Connecting", 0)
	r.AddAttrs(slog.String("api_key", "AIza-secret"), slog.String("broker", "mqtt.local"),
		slog.Group("mqtt", slog.String("password", "hunter2")))
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatal(err)
	}

	entries := GetBuffer().ReadAll()
	attrs := entries[len(entries)-1].Attributes
	if attrs["api_key"] != redacted || attrs["mqtt.password"] != redacted {
		t.Errorf("Secrets leaked: %v", attrs)
	}
	if attrs["broker"] != "mqtt.local" {
		t.Errorf("Non-secret attribute changed: %v", attrs)
	}

	if a := redactAttr(nil, slog.String("AuthPassword", "x")); a.Value.String() != redacted {
		t.Errorf("ReplaceAttr did not redact, got %v", a)
	}
}

func TestJournalKey(t *testing.T) {
	cases := map[string]string{
		"camera_id":  "CAMERA_ID",
		"http.path":  "HTTP_PATH",
		"_private":   "PRIVATE",
		"2fa":        "FA",
		"Subject-ID": "SUBJECT_ID",
	}
	for in, want := range cases {
		if got := journalKey(in); got != want {
			t.Errorf("journalKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJournalFieldsRedactAndFlatten(t *testing.T) {
	fields := map[string]string{}
	addJournalField(fields, "", slog.Group("mqtt", slog.String("password", "x"), slog.Int("port", 1883)))
	addJournalField(fields, "", slog.Float64("confidence", 0.25))

	if fields["MQTT_PASSWORD"] != redacted || fields["MQTT_PORT"] != "1883" {
		t.Errorf("Unexpected group fields %v", fields)
	}
	if fields["CONFIDENCE"] != "0.25" {
		t.Errorf("Unexpected float formatting %q", fields["CONFIDENCE"])
	}
}
