package analysis

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/smazurov/watchnode/internal/ai"
	"github.com/smazurov/watchnode/internal/camera"
	"github.com/smazurov/watchnode/internal/events"
	"github.com/smazurov/watchnode/internal/scheduler"
)

func TestAnalyzeCamera(t *testing.T) {
	f := newFixture(t)
	f.analyzer.result = ai.Result{
		Text: "Alice is at the door with a stranger.",
		Detections: []ai.Detection{
			{Name: "alice", Status: ai.StatusKnown, Box: []int{100, 100, 400, 300}},
			{Name: "Unknown", Status: ai.StatusUnknown, Box: []int{100, 500, 600, 800}},
			{Name: "Unknown", Status: ai.StatusUnknown},
		},
	}

	res, err := f.runner.AnalyzeCamera(context.Background(), "front")
	if err != nil {
		t.Fatalf("AnalyzeCamera failed: %v", err)
	}

	if res.Subject != "front" || res.Kind != string(scheduler.KindCameraAnalysis) {
		t.Errorf("subject=%q kind=%q", res.Subject, res.Kind)
	}
	if len(res.Recognized) != 1 || res.Recognized[0] != "alice" || res.UnknownCount != 2 {
		t.Errorf("recognized=%v unknown=%d", res.Recognized, res.UnknownCount)
	}
	if res.EventID != "ev-1" || res.SnapshotURL == "" {
		t.Errorf("event=%q snapshot=%q", res.EventID, res.SnapshotURL)
	}
	if res.Notified != 1 {
		t.Errorf("notified = %d", res.Notified)
	}

	prompt := f.analyzer.prompts[0]
	if !strings.HasPrefix(prompt, "Watch the porch.") || !strings.Contains(prompt, "Respond in English.") {
		t.Errorf("prompt = %q", prompt)
	}
	if len(f.analyzer.refs[0]) != 2 {
		t.Errorf("expected every known face as reference, got %d", len(f.analyzer.refs[0]))
	}

	if len(f.store.events) != 1 {
		t.Fatalf("stored %d events", len(f.store.events))
	}
	ev := f.store.events[0]
	if ev.Subject != "front" || ev.CameraID != "front" || ev.SnapshotKey == "" || ev.Detections == "" {
		t.Errorf("event = %+v", ev)
	}
	if len(f.store.sightings) != 1 || f.store.sightings[0] != "alice" {
		t.Errorf("sightings = %v", f.store.sightings)
	}

	if len(f.store.unknowns) != 2 {
		t.Fatalf("queued %d unknown persons", len(f.store.unknowns))
	}
	if !strings.HasSuffix(f.store.unknowns[0].ImageKey, "_unknown_1.jpg") {
		t.Errorf("cropped unknown key = %q", f.store.unknowns[0].ImageKey)
	}
	if f.store.unknowns[1].ImageKey != ev.SnapshotKey {
		t.Errorf("unknown without box should use the snapshot, got %q", f.store.unknowns[1].ImageKey)
	}
	if _, ok := f.snaps.data[f.store.unknowns[0].ImageKey]; !ok {
		t.Error("crop was not saved")
	}

	if len(f.notifier.chats) != 1 {
		t.Fatalf("chat calls = %d", len(f.notifier.chats))
	}
	chat := f.notifier.chats[0]
	if chat.eventID != "ev-1" || !strings.Contains(chat.caption, "Front Door") || len(chat.image) == 0 {
		t.Errorf("chat = %+v", chat)
	}
	if len(f.notifier.cameras) != 1 || f.notifier.cameras[0].PersonCount != 3 {
		t.Errorf("camera events = %+v", f.notifier.cameras)
	}
	if got := f.notifier.suffixes(); len(got) != 1 || got[0] != "faces/detected" {
		t.Errorf("results = %v", got)
	}
	if len(f.notifier.webhooks) != 1 {
		t.Errorf("webhooks = %d", len(f.notifier.webhooks))
	}

	if len(f.bus.events) != 2 {
		t.Fatalf("bus events = %d", len(f.bus.events))
	}
	if _, ok := f.bus.events[0].(events.AnalysisStartedEvent); !ok {
		t.Errorf("first event = %T", f.bus.events[0])
	}
	done, ok := f.bus.events[1].(events.AnalysisCompletedEvent)
	if !ok || done.EventID != "ev-1" || done.Detections != 3 {
		t.Errorf("completed event = %+v", f.bus.events[1])
	}
}

func TestAnalyzeCameraErrors(t *testing.T) {
	tests := []struct {
		name     string
		camera   string
		setup    func(*fixture)
		wantCode string
	}{
		{
			name:     "not configured",
			camera:   "attic",
			wantCode: ErrCodeCameraNotFound,
		},
		{
			name:   "not running",
			camera: "front",
			setup: func(f *fixture) {
				f.frames.errs["front"] = camera.ErrCameraNotFound
			},
			wantCode: ErrCodeCameraNotFound,
		},
		{
			name:   "no frame yet",
			camera: "front",
			setup: func(f *fixture) {
				f.frames.errs["front"] = camera.ErrNoFrameYet
			},
			wantCode: ErrCodeNoFrame,
		},
		{
			name:   "empty frame",
			camera: "front",
			setup: func(f *fixture) {
				f.frames.frames["front"] = nil
			},
			wantCode: ErrCodeNoFrame,
		},
		{
			name:   "model error",
			camera: "front",
			setup: func(f *fixture) {
				f.analyzer.err = errModel
			},
			wantCode: ErrCodeCallFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			res, err := f.runner.AnalyzeCamera(context.Background(), tt.camera)
			if err == nil {
				t.Fatalf("expected error, got %+v", res)
			}
			if res != nil {
				t.Errorf("result should be nil on failure")
			}
			if Code(err) != tt.wantCode {
				t.Errorf("code = %q, want %q (%v)", Code(err), tt.wantCode, err)
			}
			if !errors.Is(err, &AnalysisError{Code: tt.wantCode}) {
				t.Errorf("errors.Is did not match code %s", tt.wantCode)
			}
			if len(f.store.events) != 0 || len(f.notifier.chats) != 0 {
				t.Error("failed job must not store or notify")
			}

			last := f.bus.events[len(f.bus.events)-1]
			failed, ok := last.(events.AnalysisFailedEvent)
			if !ok || failed.Code != tt.wantCode || failed.Subject != tt.camera {
				t.Errorf("last event = %+v", last)
			}
		})
	}
}

func TestAnalyzeCameraWrapsModelError(t *testing.T) {
	f := newFixture(t)
	f.analyzer.err = errModel

	_, err := f.runner.AnalyzeCamera(context.Background(), "front")
	if !errors.Is(err, errModel) {
		t.Errorf("error should wrap the model error: %v", err)
	}
	if !errors.Is(err, ErrCallFailed) {
		t.Errorf("error should match ErrCallFailed: %v", err)
	}
}

func TestAnalyzeCameraNotifyDisabled(t *testing.T) {
	f := newFixture(t)
	cam := f.settings.Cameras["front"]
	cam.Notify = false
	f.settings.Cameras["front"] = cam
	f.analyzer.result = ai.Result{Text: "Empty porch."}

	res, err := f.runner.AnalyzeCamera(context.Background(), "front")
	if err != nil {
		t.Fatal(err)
	}
	if len(f.notifier.chats) != 0 || res.Notified != 0 {
		t.Errorf("chat should not be notified: %+v", f.notifier.chats)
	}
	if len(f.notifier.cameras) != 1 {
		t.Error("MQTT camera event is published regardless of chat notifications")
	}
	if res.Detections == nil {
		t.Error("detections should be an empty list, not nil")
	}
}

func TestAnalyzeCameraStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.appendErr = errors.New("disk full")
	f.analyzer.result = ai.Result{
		Text:       "Someone.",
		Detections: []ai.Detection{{Name: "Unknown", Status: ai.StatusUnknown}},
	}

	res, err := f.runner.AnalyzeCamera(context.Background(), "front")
	if err != nil {
		t.Fatalf("storage failure should not fail the job: %v", err)
	}
	if res.EventID != "" {
		t.Errorf("event id = %q", res.EventID)
	}
	if len(f.store.unknowns) != 0 {
		t.Error("unknowns need a stored event")
	}
	if len(f.notifier.chats) != 1 {
		t.Error("notification should still be sent")
	}
}

func TestDoorbell(t *testing.T) {
	f := newFixture(t)
	f.analyzer.result = ai.Result{Text: "A courier with a parcel."}

	if _, err := f.runner.Doorbell(context.Background()); Code(err) != ErrCodeCameraNotFound {
		t.Fatalf("unconfigured doorbell: err = %v", err)
	}

	f.settings.Doorbell.CameraID = "front"
	f.settings.Doorbell.Recipients = []string{"6282222222222"}
	res, err := f.runner.Doorbell(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Subject != "doorbell" || res.Kind != string(scheduler.KindDoorbell) {
		t.Errorf("subject=%q kind=%q", res.Subject, res.Kind)
	}
	if !strings.Contains(f.analyzer.prompts[0], "who is at the door") {
		t.Errorf("prompt = %q", f.analyzer.prompts[0])
	}
	if len(f.notifier.chats) != 1 || f.notifier.chats[0].recipients[0] != "6282222222222" {
		t.Errorf("chats = %+v", f.notifier.chats)
	}
	if !strings.Contains(f.notifier.chats[0].caption, "Doorbell") {
		t.Errorf("caption = %q", f.notifier.chats[0].caption)
	}
	if f.store.events[0].Subject != "doorbell" || f.store.events[0].CameraID != "front" {
		t.Errorf("event = %+v", f.store.events[0])
	}
}

func TestPatrol(t *testing.T) {
	f := newFixture(t)
	f.settings.Patrol.Recipients = []string{"6283333333333"}
	f.analyzer.multi = ai.MultiResult{
		Text:          "Bob is in the yard.",
		PrimaryCamera: "yard",
		ByCamera: map[string][]ai.Detection{
			"yard": {{Name: "bob", Status: ai.StatusKnown}, {Name: "Unknown", Status: ai.StatusUnknown}},
		},
	}

	res, err := f.runner.Patrol(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	images := f.analyzer.images[0]
	if len(images) != 2 {
		t.Fatalf("expected the two enabled cameras, got %d", len(images))
	}
	if images[0].CameraID != "front" || images[0].CameraName != "Front Door" || images[1].CameraID != "yard" {
		t.Errorf("images = %+v", images)
	}

	if res.PrimaryCamera != "yard" || res.CamerasScanned != 2 || res.UnknownCount != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Recognized) != 1 || res.Recognized[0] != "bob" {
		t.Errorf("recognized = %v", res.Recognized)
	}

	if f.store.events[0].Subject != "patrol" || f.store.events[0].CameraID != "yard" {
		t.Errorf("event = %+v", f.store.events[0])
	}
	chat := f.notifier.chats[0]
	if string(chat.image) != string(f.frames.frames["yard"]) {
		t.Error("patrol should send the primary camera image")
	}
	if !strings.Contains(chat.caption, "Recognized: bob") || !strings.Contains(chat.caption, "Unknown persons: 1") {
		t.Errorf("caption = %q", chat.caption)
	}
	if got := f.notifier.suffixes(); len(got) != 1 || got[0] != "patrol/result" {
		t.Errorf("results = %v", got)
	}
}

func TestPatrolFallsBackToFirstImage(t *testing.T) {
	f := newFixture(t)
	f.settings.Patrol.Recipients = []string{"6283333333333"}
	f.analyzer.multi = ai.MultiResult{Text: "All Clear"}

	if _, err := f.runner.Patrol(context.Background()); err != nil {
		t.Fatal(err)
	}
	if string(f.notifier.chats[0].image) != string(f.frames.frames["front"]) {
		t.Error("without a primary camera the first image is sent")
	}
}

func TestPatrolCameraSubset(t *testing.T) {
	f := newFixture(t)
	f.settings.Patrol.Cameras = []string{"yard"}
	f.analyzer.multi = ai.MultiResult{Text: "All Clear"}

	if _, err := f.runner.Patrol(context.Background()); err != nil {
		t.Fatal(err)
	}
	if images := f.analyzer.images[0]; len(images) != 1 || images[0].CameraID != "yard" {
		t.Errorf("images = %+v", images)
	}
}

func TestPatrolNoFrames(t *testing.T) {
	f := newFixture(t)
	f.frames.errs["front"] = camera.ErrNoFrameYet
	f.frames.errs["yard"] = camera.ErrCameraNotFound

	_, err := f.runner.Patrol(context.Background())
	if Code(err) != ErrCodeNoFrame {
		t.Fatalf("err = %v", err)
	}
	if f.analyzer.calls() != 0 {
		t.Error("model must not be called without images")
	}
}

func TestFindPersons(t *testing.T) {
	f := newFixture(t)
	f.settings.PersonFinder.Recipients = []string{"6284444444444"}
	f.analyzer.multi = ai.MultiResult{
		Text: "Alice is cooking.",
		ByCamera: map[string][]ai.Detection{
			"yard": {{Name: "Alice", Status: ai.StatusKnown, Activity: "cooking", Confidence: "high"}},
		},
	}

	res, err := f.runner.FindPersons(context.Background(), []string{"alice", "bob", " alice "}, "", nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(f.analyzer.refs[0]) != 2 {
		t.Errorf("refs = %d", len(f.analyzer.refs[0]))
	}
	if !strings.Contains(f.analyzer.prompts[0], "alice, bob") {
		t.Errorf("prompt = %q", f.analyzer.prompts[0])
	}

	sightings := res.Found["alice"]
	if len(sightings) != 1 || sightings[0].CameraID != "yard" || sightings[0].Activity != "cooking" {
		t.Errorf("found = %+v", res.Found)
	}
	if len(res.NotFound) != 1 || res.NotFound[0] != "bob" {
		t.Errorf("not found = %v", res.NotFound)
	}
	if len(f.store.sightings) != 1 || f.store.sightings[0] != "alice" {
		t.Errorf("sightings = %v", f.store.sightings)
	}

	chat := f.notifier.chats[0]
	if chat.recipients[0] != "6284444444444" {
		t.Errorf("recipients should fall back to settings: %v", chat.recipients)
	}
	if string(chat.image) != string(f.frames.frames["yard"]) {
		t.Error("finder should send the image of the camera that found someone")
	}
	if !strings.Contains(chat.caption, "Not found: bob") || !strings.Contains(chat.caption, "2 cameras scanned") {
		t.Errorf("caption = %q", chat.caption)
	}
	if got := f.notifier.suffixes(); len(got) != 1 || got[0] != "person_finder/result" {
		t.Errorf("results = %v", got)
	}
}

func TestFindPersonsNoReferences(t *testing.T) {
	f := newFixture(t)

	for _, names := range [][]string{nil, {"carol"}} {
		_, err := f.runner.FindPersons(context.Background(), names, "", nil)
		if Code(err) != ErrCodeNoReferences {
			t.Errorf("names %v: err = %v", names, err)
		}
	}
	if f.analyzer.calls() != 0 {
		t.Error("model must not be called without references")
	}
}

func TestReadMeter(t *testing.T) {
	f := newFixture(t)
	f.settings.Meters["water"] = meterFixture("yard")
	f.analyzer.result = ai.Result{Text: "Reading: 01234,5 m3"}

	res, err := f.runner.ReadMeter(context.Background(), "water")
	if err != nil {
		t.Fatal(err)
	}
	if res.Reading == nil || *res.Reading != 1234.5 || res.Unit != "m3" {
		t.Errorf("reading = %v %s", res.Reading, res.Unit)
	}
	if res.Subject != "meter_water" {
		t.Errorf("subject = %q", res.Subject)
	}
	if f.analyzer.refs[0] != nil {
		t.Error("meter reads send no reference faces")
	}
	if got := f.notifier.suffixes(); len(got) != 1 || got[0] != "meters/water/reading" {
		t.Errorf("results = %v", got)
	}
	if f.store.events[0].CameraID != "yard" {
		t.Errorf("event = %+v", f.store.events[0])
	}
}

func TestReadMeterErrors(t *testing.T) {
	f := newFixture(t)
	if _, err := f.runner.ReadMeter(context.Background(), "gas"); Code(err) != ErrCodeMeterNotFound {
		t.Errorf("unknown meter: err = %v", err)
	}

	f.settings.Meters["water"] = meterFixture("yard")
	f.analyzer.result = ai.Result{Text: "The display is too dark to read."}
	if _, err := f.runner.ReadMeter(context.Background(), "water"); Code(err) != ErrCodeCallFailed {
		t.Errorf("unreadable: err = %v", err)
	}
	if len(f.store.events) != 0 {
		t.Error("failed reads are not stored")
	}
}

func TestReadAllMeters(t *testing.T) {
	f := newFixture(t)
	f.settings.Meters["water"] = meterFixture("yard")
	f.settings.Meters["power"] = meterFixture("attic")
	f.frames.errs["attic"] = camera.ErrCameraNotFound
	f.analyzer.result = ai.Result{Text: "42"}

	results, err := f.runner.ReadAllMeters(context.Background())
	if len(results) != 1 || results[0].Subject != "meter_water" {
		t.Errorf("results = %+v", results)
	}
	if Code(err) != ErrCodeCameraNotFound {
		t.Errorf("err = %v", err)
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	f.analyzer.result = ai.Result{Text: "Quiet."}

	reg := &fakeRegistrar{handlers: make(map[scheduler.Kind]scheduler.HandlerFunc)}
	f.runner.Register(reg)

	for _, kind := range []scheduler.Kind{
		scheduler.KindCameraAnalysis, scheduler.KindPatrol, scheduler.KindPersonFinder,
		scheduler.KindMeter, scheduler.KindDoorbell,
	} {
		if reg.handlers[kind] == nil {
			t.Errorf("no handler for %s", kind)
		}
	}

	out, err := reg.handlers[scheduler.KindCameraAnalysis](context.Background(), scheduler.CameraSubject("front", true, scheduler.Every(1, 0)))
	if err != nil {
		t.Fatal(err)
	}
	if res, ok := out.(*Result); !ok || res.Subject != "front" {
		t.Errorf("handler result = %#v", out)
	}

	out, err = reg.handlers[scheduler.KindCameraAnalysis](context.Background(), scheduler.CameraSubject("attic", true, scheduler.Every(1, 0)))
	if err == nil || out != nil {
		t.Errorf("failed handler should return a nil result: %#v, %v", out, err)
	}
}

type fakeRegistrar struct {
	handlers map[scheduler.Kind]scheduler.HandlerFunc
}

func (f *fakeRegistrar) Register(kind scheduler.Kind, handler scheduler.HandlerFunc) {
	f.handlers[kind] = handler
}

func TestCropBox(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1000, 500))

	region, ok := CropBox(img, []int{100, 200, 300, 400})
	if !ok {
		t.Fatal("expected crop")
	}
	// x 200-400 padded by 40, y 50-150 padded by 20
	if b := region.Bounds(); b.Dx() != 280 || b.Dy() != 140 {
		t.Errorf("crop size = %dx%d, want 280x140", b.Dx(), b.Dy())
	}

	small, ok := CropBox(img, []int{0, 0, 10, 10})
	if !ok {
		t.Fatal("expected small crop")
	}
	if b := small.Bounds(); min(b.Dx(), b.Dy()) < minCropSide {
		t.Errorf("small crop should be upscaled, got %dx%d", b.Dx(), b.Dy())
	}

	// clamped to the corner: x 900-1000 padded to 880, y 450-500 padded to 440
	edge, ok := CropBox(img, []int{900, 900, 1200, 1100})
	if !ok {
		t.Fatal("expected clamped crop")
	}
	if b := edge.Bounds(); b.Dx() != 2*b.Dy() {
		t.Errorf("clamped crop should keep its 120x60 aspect, got %v", b)
	}

	for _, box := range [][]int{nil, {1, 2, 3}, {300, 300, 100, 500}, {100, 500, 300, 500}} {
		if _, ok := CropBox(img, box); ok {
			t.Errorf("box %v should be rejected", box)
		}
	}
}
