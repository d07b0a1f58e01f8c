package camera

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestSource(opener Opener, opts SourceOptions) (*VideoSource, *FrameCache) {
	cache := NewFrameCache(&JPEGEncoder{})
	src := NewVideoSource("front_door", Descriptor{URI: "front_door"}, opener, cache, opts, newTestLogger())
	return src, cache
}

func TestVideoSourceServesLatestFrame(t *testing.T) {
	opener := &fakeOpener{newDevice: func(desc Descriptor, _ int) *fakeDevice {
		return &fakeDevice{name: desc.URI, limit: 10, interval: 10 * time.Millisecond}
	}}
	src, cache := newTestSource(opener, fastSourceOptions())
	src.Start()
	defer src.Stop()

	eventually(t, 2*time.Second, func() bool { return cache.Seq() == 10 }, "10 frames stored")

	data, seq, err := cache.GetEncoded()
	if err != nil {
		t.Fatalf("GetEncoded() error = %v", err)
	}
	if seq != 10 {
		t.Errorf("seq = %d, want 10", seq)
	}
	if want := frameBytes("front_door", 10); !bytes.Equal(data, want) {
		t.Errorf("frame = %q, want %q", data, want)
	}
	if state := src.State(); state != StateStreaming {
		t.Errorf("state = %s, want %s", state, StateStreaming)
	}
}

func TestVideoSourceFailsAfterErrorBudget(t *testing.T) {
	opener := &fakeOpener{openErr: errFakeOpen}
	opts := fastSourceOptions()
	opts.ErrorBudget = 5

	var mu sync.Mutex
	var failErr error
	opts.OnStateChange = func(_ string, _, newState State, err error) {
		if newState == StateFailed {
			mu.Lock()
			failErr = err
			mu.Unlock()
		}
	}

	src, _ := newTestSource(opener, opts)
	src.Start()
	defer src.Stop()

	waitClosed(t, src.Done(), 5*time.Second, "worker exit after error budget")

	if state := src.State(); state != StateFailed {
		t.Fatalf("state = %s, want %s", state, StateFailed)
	}

	opens := opener.opens.Load()
	if opens != int64(opts.ErrorBudget) {
		t.Errorf("opens = %d, want %d", opens, opts.ErrorBudget)
	}

	time.Sleep(50 * time.Millisecond)
	if after := opener.opens.Load(); after != opens {
		t.Errorf("open attempts kept growing after failure: %d -> %d", opens, after)
	}

	mu.Lock()
	defer mu.Unlock()
	var camErr *CameraError
	if !errors.As(failErr, &camErr) || camErr.Code != ErrCodeSourceFailed {
		t.Errorf("failure error = %v, want code %s", failErr, ErrCodeSourceFailed)
	}
	if !errors.Is(failErr, errFakeOpen) {
		t.Errorf("failure error %v should wrap the open error", failErr)
	}
}

func TestVideoSourceReconnectsAfterReadError(t *testing.T) {
	readErr := errors.New("stream dropped")
	opener := &fakeOpener{newDevice: func(desc Descriptor, n int) *fakeDevice {
		if n == 1 {
			return &fakeDevice{name: desc.URI, limit: 2, failErr: readErr}
		}
		return &fakeDevice{name: desc.URI, limit: 5}
	}}
	src, cache := newTestSource(opener, fastSourceOptions())
	src.Start()
	defer src.Stop()

	eventually(t, 2*time.Second, func() bool { return cache.Seq() == 7 }, "frames from both connections")

	stats := src.Stats()
	if stats.Reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", stats.Reconnects)
	}
	if stats.Opens != 2 {
		t.Errorf("opens = %d, want 2", stats.Opens)
	}
	if stats.ConsecutiveErrors != 0 {
		t.Errorf("consecutive errors = %d, want 0 after a successful grab", stats.ConsecutiveErrors)
	}
	if stats.LastError == "" {
		t.Error("expected last error to be recorded")
	}
	if opener.live.Load() != 1 {
		t.Errorf("live devices = %d, want 1", opener.live.Load())
	}
}

func TestVideoSourceStopDuringBackoff(t *testing.T) {
	opener := &fakeOpener{openErr: errFakeOpen}
	opts := fastSourceOptions()
	opts.OpenBackoff = time.Hour
	opts.MaxBackoff = time.Hour

	src, _ := newTestSource(opener, opts)
	src.Start()
	eventually(t, time.Second, func() bool { return opener.opens.Load() == 1 }, "first open attempt")

	stopped := make(chan struct{})
	go func() {
		src.Stop()
		close(stopped)
	}()
	waitClosed(t, stopped, 500*time.Millisecond, "Stop during backoff")

	if state := src.State(); state != StateStopped {
		t.Errorf("state = %s, want %s", state, StateStopped)
	}
}

func TestVideoSourceStopClearsCacheAndClosesDevice(t *testing.T) {
	opener := &fakeOpener{}
	src, cache := newTestSource(opener, fastSourceOptions())
	src.Start()

	eventually(t, time.Second, func() bool { return cache.Seq() > 0 }, "first frame")

	src.Stop()
	src.Stop()

	if !cache.Empty() {
		t.Error("cache should be empty after Stop")
	}
	if _, _, err := cache.GetEncoded(); !errors.Is(err, ErrNoFrameYet) {
		t.Errorf("GetEncoded() after stop error = %v, want ErrNoFrameYet", err)
	}
	if opener.live.Load() != 0 {
		t.Errorf("live devices = %d, want 0", opener.live.Load())
	}
	if state := src.State(); state != StateStopped {
		t.Errorf("state = %s, want %s", state, StateStopped)
	}
}

func TestVideoSourceStopBeforeStart(t *testing.T) {
	src, _ := newTestSource(&fakeOpener{}, fastSourceOptions())
	src.Stop()
	if state := src.State(); state != StateStopped {
		t.Errorf("state = %s, want %s", state, StateStopped)
	}
}

func TestVideoSourceSkipsDecodeWhenIdle(t *testing.T) {
	opener := &fakeOpener{newDevice: func(desc Descriptor, _ int) *fakeDevice {
		return &fakeDevice{name: desc.URI, interval: time.Millisecond}
	}}
	opts := fastSourceOptions()
	opts.IdleWindow = time.Hour

	src, cache := newTestSource(opener, opts)
	src.Start()
	defer src.Stop()

	eventually(t, time.Second, func() bool { return src.Stats().SkippedDecodes >= 5 }, "idle decodes skipped")

	if seq := cache.Seq(); seq != 1 {
		t.Errorf("seq = %d, want 1 while nobody is watching", seq)
	}

	cache.MarkRequested()
	eventually(t, time.Second, func() bool { return cache.Seq() > 1 }, "decoding resumes after a request")
}

func TestVideoSourceStateCallbacks(t *testing.T) {
	var mu sync.Mutex
	var transitions []State

	opts := fastSourceOptions()
	opts.OnStateChange = func(_ string, _, newState State, _ error) {
		mu.Lock()
		transitions = append(transitions, newState)
		mu.Unlock()
	}

	opener := &fakeOpener{newDevice: func(desc Descriptor, _ int) *fakeDevice {
		return &fakeDevice{name: desc.URI, limit: 1}
	}}
	src, cache := newTestSource(opener, opts)
	src.Start()
	eventually(t, time.Second, func() bool { return cache.Seq() == 1 }, "first frame")
	src.Stop()

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateStreaming, StateStopped}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestFrameIntervalPacing(t *testing.T) {
	opts := fastSourceOptions()
	opts.FrameInterval = 50 * time.Millisecond

	src, cache := newTestSource(&fakeOpener{}, opts)
	src.Start()
	defer src.Stop()

	time.Sleep(120 * time.Millisecond)
	if seq := cache.Seq(); seq > 4 {
		t.Errorf("seq = %d, pacing should limit frames", seq)
	}
}
