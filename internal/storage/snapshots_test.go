package storage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"strings"
	"testing"
	"time"
)

func TestSnapshotKey(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 45, 123_000_000, time.UTC)
	got := SnapshotKey("front", ts, "")
	want := "2026/03/01/front_20260301_123045123.jpg"
	if got != want {
		t.Errorf("key = %q, want %q", got, want)
	}
	if got := SnapshotKey("front", ts, "crop0"); !strings.HasSuffix(got, "_crop0.jpg") {
		t.Errorf("suffix key = %q", got)
	}
}

func TestLocalSnapshots(t *testing.T) {
	store, err := NewLocalSnapshots(t.TempDir(), "/snap/")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	url, err := store.Save(ctx, "2026/03/01/a.jpg", []byte("jpeg"))
	if err != nil {
		t.Fatal(err)
	}
	if url != "/snap/2026/03/01/a.jpg" {
		t.Errorf("url = %q", url)
	}

	data, err := store.Load(ctx, "2026/03/01/a.jpg")
	if err != nil || string(data) != "jpeg" {
		t.Errorf("load = %q, %v", data, err)
	}

	if err := store.Delete(ctx, "2026/03/01/a.jpg"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(ctx, "2026/03/01/a.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "2026/03/01/a.jpg"); err != nil {
		t.Errorf("deleting a missing key should succeed: %v", err)
	}
}

func TestLocalSnapshotsRejectsTraversal(t *testing.T) {
	store, err := NewLocalSnapshots(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"../etc/passwd", "", "a/../../b.jpg", "/abs.jpg"} {
		if _, err := store.Save(context.Background(), key, []byte("x")); err == nil {
			t.Errorf("key %q should be rejected", key)
		}
	}
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFaceStore(t *testing.T) {
	store, err := NewFaceStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	img := testJPEG(t)

	if err := store.Add("Siti", img); err != nil {
		t.Fatal(err)
	}
	if err := store.Add("Budi", img); err != nil {
		t.Fatal(err)
	}

	names, err := store.Names()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "Budi" {
		t.Errorf("names = %v", names)
	}

	refs, err := store.Load("Budi", "Nobody")
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].Name != "Budi" {
		t.Errorf("refs = %+v", refs)
	}

	all, _ := store.Load()
	if len(all) != 2 {
		t.Errorf("got %d refs for everyone", len(all))
	}

	if err := store.Remove("Siti"); err != nil {
		t.Fatal(err)
	}
	if err := store.Remove("Siti"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestFaceStoreValidation(t *testing.T) {
	store, err := NewFaceStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Add("../evil", testJPEG(t)); !errors.Is(err, ErrInvalidFaceName) {
		t.Errorf("got %v, want ErrInvalidFaceName", err)
	}
	if err := store.Add("Budi", []byte("not a jpeg")); err == nil {
		t.Error("non-jpeg data should be rejected")
	}
}
