package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ErrInvalidFaceName is returned for names that cannot be used as file names.
var ErrInvalidFaceName = errors.New("invalid face name")

// ErrInvalidImage is returned when a reference image is not a JPEG.
var ErrInvalidImage = errors.New("reference image is not a jpeg")

var faceNamePattern = regexp.MustCompile(`^[\p{L}\p{N} _.'-]{1,64}$`)

// FaceImage is a reference photo of a known person.
type FaceImage struct {
	Name string
	JPEG []byte
}

// FaceStore keeps one reference JPEG per known person as <name>.jpg.
type FaceStore struct {
	dir string
}

// NewFaceStore creates the directory if needed.
func NewFaceStore(dir string) (*FaceStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create faces directory: %w", err)
	}
	return &FaceStore{dir: dir}, nil
}

func (s *FaceStore) path(name string) (string, error) {
	name = strings.TrimSpace(name)
	if !faceNamePattern.MatchString(name) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidFaceName
	}
	return filepath.Join(s.dir, name+".jpg"), nil
}

// Names lists known people sorted by name.
func (s *FaceStore) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read faces directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".jpg") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(names)
	return names, nil
}

// Get returns the reference image for name.
func (s *FaceStore) Get(name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Add stores a reference image, replacing any existing one. The data must decode as JPEG.
func (s *FaceStore) Add(name string, data []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if _, err := jpeg.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("failed to write face: %w", err)
	}
	return nil
}

// Remove deletes a reference image.
func (s *FaceStore) Remove(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to remove face: %w", err)
	}
	return nil
}

// Load returns reference images for names, or for everyone when names is empty.
// Names without an image are skipped.
func (s *FaceStore) Load(names ...string) ([]FaceImage, error) {
	if len(names) == 0 {
		all, err := s.Names()
		if err != nil {
			return nil, err
		}
		names = all
	}

	out := make([]FaceImage, 0, len(names))
	for _, name := range names {
		data, err := s.Get(name)
		if err != nil {
			continue
		}
		out = append(out, FaceImage{Name: strings.TrimSpace(name), JPEG: data})
	}
	return out, nil
}
