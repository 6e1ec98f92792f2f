// Package files stores uploaded binary attachments (avatars, media) on the
// local filesystem, keyed by a sanitized filename.
package files

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/teris-io/shortid"
)

// MaxUploadSize matches the surrounding app's 10MiB request cap.
const MaxUploadSize = 10 << 20

// ErrFileTooLarge is returned by Save when the upload exceeds MaxUploadSize.
var ErrFileTooLarge = errors.New("file exceeds upload size limit")

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

type Store struct {
	dir string
	sid *shortid.Shortid
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	sid, err := shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		return nil, fmt.Errorf("shortid: %w", err)
	}

	return &Store{dir: dir, sid: sid}, nil
}

// SanitizeFilename reduces a client-supplied filename to a safe basename.
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.TrimLeft(name, ".")
	return name
}

// Save writes the uploaded file under the store directory and returns the
// stored key. The key is a generated shortid joined to the sanitized client
// filename, so colliding client names never overwrite each other.
func (s *Store) Save(file multipart.File, filename string) (string, error) {
	clean := SanitizeFilename(filename)
	if clean == "" {
		return "", fmt.Errorf("invalid filename %q", filename)
	}

	id, err := s.sid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}

	key := id + "_" + clean
	path := filepath.Join(s.dir, key)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	// read one byte past the cap so an oversize upload is detectable
	n, err := io.Copy(dst, io.LimitReader(file, MaxUploadSize+1))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write file: %w", err)
	}
	if n > MaxUploadSize {
		os.Remove(path)
		return "", ErrFileTooLarge
	}

	return key, nil
}

// Path resolves a stored key to a filesystem path, refusing traversal.
func (s *Store) Path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) {
		return "", fmt.Errorf("invalid file key %q", key)
	}

	return filepath.Join(s.dir, key), nil
}
