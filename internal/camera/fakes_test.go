package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDevice yields numbered frames. After limit frames (0 = unlimited) Grab
// either fails with failErr or blocks until ctx is done.
type fakeDevice struct {
	name     string
	limit    int
	interval time.Duration
	failErr  error

	grabbed int
	closed  atomic.Bool
	onClose func()
}

func (d *fakeDevice) Grab(ctx context.Context) error {
	if d.limit > 0 && d.grabbed >= d.limit {
		if d.failErr != nil {
			return d.failErr
		}
		<-ctx.Done()
		return ctx.Err()
	}
	if d.interval > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.interval):
		}
	}
	d.grabbed++
	return nil
}

func (d *fakeDevice) Retrieve() (Frame, error) {
	return Frame{JPEG: frameBytes(d.name, d.grabbed), CapturedAt: time.Now()}, nil
}

func (d *fakeDevice) Close() error {
	if d.closed.CompareAndSwap(false, true) && d.onClose != nil {
		d.onClose()
	}
	return nil
}

func frameBytes(name string, n int) []byte {
	return []byte(fmt.Sprintf("%s-frame-%d", name, n))
}

// fakeOpener counts opens and live devices.
type fakeOpener struct {
	mu      sync.Mutex
	opens   atomic.Int64
	live    atomic.Int64
	openErr error
	// newDevice builds the device for the n-th successful open (1-based).
	newDevice func(desc Descriptor, n int) *fakeDevice
}

var errFakeOpen = errors.New("fake open failure")

func (o *fakeOpener) Open(ctx context.Context, desc Descriptor) (Device, error) {
	n := int(o.opens.Add(1))
	o.mu.Lock()
	openErr := o.openErr
	o.mu.Unlock()
	if openErr != nil {
		return nil, openErr
	}
	dev := &fakeDevice{name: desc.URI, interval: time.Millisecond}
	if o.newDevice != nil {
		dev = o.newDevice(desc, n)
	}
	o.live.Add(1)
	dev.onClose = func() { o.live.Add(-1) }
	return dev, nil
}

func (o *fakeOpener) setOpenErr(err error) {
	o.mu.Lock()
	o.openErr = err
	o.mu.Unlock()
}

// fastSourceOptions keeps backoffs tiny and disables idle decode skipping.
func fastSourceOptions() SourceOptions {
	return SourceOptions{
		ErrorBudget: 50,
		OpenBackoff: time.Millisecond,
		ReadBackoff: time.Millisecond,
		MaxBackoff:  time.Millisecond,
	}
}

// eventually polls cond until it holds or timeout elapses.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}

func waitClosed(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timeout: %s", msg)
	}
}
