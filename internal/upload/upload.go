// Package upload persists inbound image payloads to disk and hands back the
// relative reference URLs that go into the message log. It is the relay's
// only asynchronous boundary: validation and decoding are synchronous, the
// disk write runs as a deferred step.
package upload

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// URLPrefix is the path under which persisted images are served.
const URLPrefix = "/uploads/"

var (
	// ErrExtensionNotAllowed rejects file names outside the image allow-list.
	ErrExtensionNotAllowed = errors.New("upload: file extension not allowed")

	// ErrInvalidPayload rejects payloads that are not base64 data URIs.
	ErrInvalidPayload = errors.New("upload: invalid data URI payload")
)

var allowedExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".webp": {},
	".avif": {},
}

// Store writes uploads into a single directory.
type Store struct {
	dir string
}

// NewStore creates the upload directory if needed and returns a store over it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload: create dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory uploads are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Prepare checks the declared file name against the extension allow-list and
// decodes the data URI. On success it returns the write step, which persists
// the bytes under a collision-free name and returns the reference URL. No
// retry on write failure.
func (s *Store) Prepare(fileName, fileData string) (func() (string, error), error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if _, ok := allowedExtensions[ext]; !ok {
		return nil, ErrExtensionNotAllowed
	}

	data, err := decodeDataURI(fileData)
	if err != nil {
		return nil, err
	}

	// Unix-nano timestamp plus a uuid fragment keeps concurrent uploads from
	// colliding without coordination.
	name := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.NewString()[:8], ext)
	path := filepath.Join(s.dir, name)

	return func() (string, error) {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", fmt.Errorf("upload: write %s: %w", name, err)
		}
		return URLPrefix + name, nil
	}, nil
}

// decodeDataURI extracts the bytes from a "data:<mime>;base64,<payload>" URI.
func decodeDataURI(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "data:") {
		return nil, ErrInvalidPayload
	}
	comma := strings.Index(s, ",")
	if comma < 0 || !strings.HasSuffix(s[:comma], ";base64") {
		return nil, ErrInvalidPayload
	}
	data, err := base64.StdEncoding.DecodeString(s[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	return data, nil
}
