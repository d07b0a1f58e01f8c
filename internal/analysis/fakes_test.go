package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/watchnode/internal/ai"
	"github.com/smazurov/watchnode/internal/config"
	"github.com/smazurov/watchnode/internal/events"
	"github.com/smazurov/watchnode/internal/notify"
	"github.com/smazurov/watchnode/internal/storage"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type fakeFrames struct {
	frames map[string][]byte
	errs   map[string]error
}

func (f *fakeFrames) CurrentFrameBytes(_ context.Context, id string) ([]byte, error) {
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	return f.frames[id], nil
}

type fakeAnalyzer struct {
	mu     sync.Mutex
	result ai.Result
	multi  ai.MultiResult
	err    error

	prompts []string
	refs    [][]ai.Reference
	images  [][]ai.Image
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ []byte, prompt string, refs []ai.Reference) (ai.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.refs = append(f.refs, refs)
	return f.result, f.err
}

func (f *fakeAnalyzer) AnalyzeMany(_ context.Context, frames []ai.Image, prompt string, refs []ai.Reference) (ai.MultiResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.refs = append(f.refs, refs)
	f.images = append(f.images, frames)
	return f.multi, f.err
}

func (f *fakeAnalyzer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeStore struct {
	appendErr error
	events    []storage.Event
	sightings []string
	unknowns  []storage.UnknownPerson
}

func (f *fakeStore) AppendEvent(_ context.Context, e *storage.Event) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	e.ID = fmt.Sprintf("ev-%d", len(f.events)+1)
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeStore) RecordSighting(_ context.Context, name string, _ time.Time) error {
	f.sightings = append(f.sightings, name)
	return nil
}

func (f *fakeStore) AddUnknownPerson(_ context.Context, p *storage.UnknownPerson) error {
	f.unknowns = append(f.unknowns, *p)
	return nil
}

type memSnapshots struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{data: make(map[string][]byte)}
}

func (m *memSnapshots) Save(_ context.Context, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return "/api/snapshots/" + key, nil
}

func (m *memSnapshots) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (m *memSnapshots) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type fakeFaces struct {
	faces map[string][]byte
}

func (f *fakeFaces) Load(names ...string) ([]storage.FaceImage, error) {
	var out []storage.FaceImage
	if len(names) == 0 {
		for name, data := range f.faces {
			out = append(out, storage.FaceImage{Name: name, JPEG: data})
		}
		return out, nil
	}
	for _, name := range names {
		if data, ok := f.faces[name]; ok {
			out = append(out, storage.FaceImage{Name: name, JPEG: data})
		}
	}
	return out, nil
}

type chatCall struct {
	eventID    string
	subject    string
	recipients []string
	image      []byte
	caption    string
}

type resultCall struct {
	subject string
	suffix  string
	payload any
}

type fakeNotifier struct {
	chats    []chatCall
	cameras  []notify.CameraEvent
	results  []resultCall
	webhooks []any
}

func (f *fakeNotifier) NotifyChat(_ context.Context, eventID, subject string, recipients []string, image []byte, caption string) []notify.Delivery {
	f.chats = append(f.chats, chatCall{eventID, subject, recipients, image, caption})
	out := make([]notify.Delivery, 0, len(recipients))
	for _, r := range recipients {
		out = append(out, notify.Delivery{Recipient: notify.Recipient{Name: r, Value: r}, Success: true})
	}
	return out
}

func (f *fakeNotifier) PublishCameraEvent(_ context.Context, ev notify.CameraEvent, _ []byte) {
	f.cameras = append(f.cameras, ev)
}

func (f *fakeNotifier) PublishResult(_ context.Context, _, subject, suffix string, payload any) {
	f.results = append(f.results, resultCall{subject, suffix, payload})
}

func (f *fakeNotifier) PostWebhook(_ context.Context, _, _ string, payload any) {
	f.webhooks = append(f.webhooks, payload)
}

func (f *fakeNotifier) suffixes() []string {
	out := make([]string, 0, len(f.results))
	for _, r := range f.results {
		out = append(out, r.suffix)
	}
	return out
}

type fakeBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakeBus) Publish(ev events.Event) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

var errModel = errors.New("model unavailable")

// fixture bundles a runner with its fakes.
type fixture struct {
	settings config.Settings
	frames   *fakeFrames
	analyzer *fakeAnalyzer
	store    *fakeStore
	snaps    *memSnapshots
	faces    *fakeFaces
	notifier *fakeNotifier
	bus      *fakeBus
	runner   *Runner
}

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	settings := config.DefaultSettings()
	front := config.NewCamera("Front Door", "rtsp://cam/front")
	front.Prompt = "Watch the porch."
	front.Recipients = []string{"6281111111111"}
	settings.Cameras["front"] = front
	settings.Cameras["yard"] = config.NewCamera("Yard", "rtsp://cam/yard")
	garage := config.NewCamera("Garage", "rtsp://cam/garage")
	garage.Enabled = false
	settings.Cameras["garage"] = garage

	f := &fixture{
		settings: settings,
		frames: &fakeFrames{
			frames: map[string][]byte{
				"front":  testJPEG(t, 200, 100, color.RGBA{R: 200, A: 255}),
				"yard":   testJPEG(t, 200, 100, color.RGBA{G: 200, A: 255}),
				"garage": testJPEG(t, 200, 100, color.RGBA{B: 200, A: 255}),
			},
			errs: map[string]error{},
		},
		analyzer: &fakeAnalyzer{},
		store:    &fakeStore{},
		snaps:    newMemSnapshots(),
		faces:    &fakeFaces{faces: map[string][]byte{"alice": []byte("a"), "bob": []byte("b")}},
		notifier: &fakeNotifier{},
		bus:      &fakeBus{},
	}
	f.runner = NewRunner(Options{
		Frames:    f.frames,
		Analyzer:  f.analyzer,
		Store:     f.store,
		Snapshots: f.snaps,
		Faces:     f.faces,
		Notifier:  f.notifier,
		Bus:       f.bus,
		Settings:  func() config.Settings { return f.settings },
		Now:       func() time.Time { return fixedNow },
		Logger:    newTestLogger(),
	})
	return f
}

func meterFixture(cameraID string) config.MeterConfig {
	return config.MeterConfig{Name: "Water", CameraID: cameraID, Unit: "m3"}
}
