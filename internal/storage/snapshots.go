package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidKey is returned for snapshot keys that escape the store.
var ErrInvalidKey = errors.New("invalid snapshot key")

// SnapshotStore keeps JPEG images by key.
type SnapshotStore interface {
	// Save stores data under key and returns a URL the API can serve.
	Save(ctx context.Context, key string, data []byte) (string, error)
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// SnapshotKey builds the key for an image of subject taken at t.
func SnapshotKey(subject string, t time.Time, suffix string) string {
	name := subject + "_" + t.Format("20060102_150405.000")
	name = strings.ReplaceAll(name, ".", "")
	if suffix != "" {
		name += "_" + suffix
	}
	return t.Format("2006/01/02") + "/" + name + ".jpg"
}

func cleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != key || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("%w %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// LocalSnapshots stores images under a directory.
type LocalSnapshots struct {
	dir       string
	urlPrefix string
}

// NewLocalSnapshots creates a directory store. URLs are urlPrefix + key.
func NewLocalSnapshots(dir, urlPrefix string) (*LocalSnapshots, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if urlPrefix == "" {
		urlPrefix = "/api/snapshots/"
	}
	return &LocalSnapshots{dir: dir, urlPrefix: urlPrefix}, nil
}

// Save implements SnapshotStore.
func (s *LocalSnapshots) Save(_ context.Context, key string, data []byte) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return s.urlPrefix + key, nil
}

// Load implements SnapshotStore.
func (s *LocalSnapshots) Load(_ context.Context, key string) ([]byte, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Delete implements SnapshotStore. Deleting a missing key is not an error.
func (s *LocalSnapshots) Delete(_ context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.dir, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
