// Package images stores uploaded cover images and derives their placeholders.
package images

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// RefPrefix is the leading path segment of every image reference. References
// double as the public URL path the static file server exposes.
const RefPrefix = "uploads"

const maxNameLength = 80

// ErrInvalidRef is returned for references that do not point inside the
// storage directory.
var ErrInvalidRef = errors.New("invalid image reference")

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Storage manages uploaded images on disk.
// Safe for concurrent use.
type Storage struct {
	dir string
	mu  sync.RWMutex
}

// NewStorage creates the storage directory if needed.
func NewStorage(dir string) (*Storage, error) {
	if dir == "" {
		return nil, errors.New("storage directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Dir returns the directory images are written to.
func (s *Storage) Dir() string {
	return s.dir
}

// Saved describes a stored upload.
type Saved struct {
	Ref  string // "uploads/<file>"
	Mime string
	Size int
}

// Save validates data as a supported image and writes it under a
// collision-free name derived from originalName.
func (s *Storage) Save(originalName string, data []byte) (*Saved, error) {
	mime, ext, err := DetectType(data)
	if err != nil {
		return nil, err
	}

	name := uuid.NewString() + "-" + sanitizeName(originalName, ext)

	s.mu.Lock()
	defer s.mu.Unlock()

	//#nosec G306 -- uploads are served publicly
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return nil, fmt.Errorf("write image file: %w", err)
	}

	return &Saved{
		Ref:  path.Join(RefPrefix, name),
		Mime: mime,
		Size: len(data),
	}, nil
}

// Get reads the image behind ref.
func (s *Storage) Get(ref string) ([]byte, error) {
	p, err := s.Path(ref)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	//#nosec G304 -- p is confined to the storage directory by Path
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read image file: %w", err)
	}
	return data, nil
}

// Exists reports whether ref points at a stored image.
func (s *Storage) Exists(ref string) bool {
	p, err := s.Path(ref)
	if err != nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err = os.Stat(p)
	return err == nil
}

// Delete removes the image behind ref. Missing files are not an error.
func (s *Storage) Delete(ref string) error {
	p, err := s.Path(ref)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete image file: %w", err)
	}
	return nil
}

// Hash returns the hex SHA-256 of the image, for ETags.
func (s *Storage) Hash(ref string) (string, error) {
	data, err := s.Get(ref)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}

// Path resolves ref to a filesystem path. Only "uploads/<file>" with a
// plain file name is accepted.
func (s *Storage) Path(ref string) (string, error) {
	name, ok := strings.CutPrefix(ref, RefPrefix+"/")
	if !ok || name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return filepath.Join(s.dir, name), nil
}

// sanitizeName keeps a readable, filesystem-safe form of the client's file
// name and forces the extension to match the detected type.
func sanitizeName(original, ext string) string {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, " ", "_")
	base = unsafeNameChars.ReplaceAllString(base, "")
	base = strings.Trim(base, ".-_")

	if len(base) > maxNameLength {
		base = base[:maxNameLength]
	}
	if base == "" || base == "." {
		base = "cover"
	}
	return base + ext
}
