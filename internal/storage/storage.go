// Package storage keeps uploaded attachments in a local directory that is served under /uploads.
// Files written here are lost when the host filesystem is ephemeral.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/benvon/formdrop/internal/models"
	"github.com/google/uuid"
)

// URLPrefix is the public path attachments are served from.
const URLPrefix = "/uploads/"

const maxExtLength = 10

// ErrInvalidName is returned for stored names that could escape the uploads directory.
var ErrInvalidName = errors.New("invalid file name")

// Local stores files in a single flat directory.
type Local struct {
	dir string
}

// NewLocal creates the uploads directory when missing.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("uploads directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &Local{dir: dir}, nil
}

// Dir returns the uploads directory.
func (s *Local) Dir() string { return s.dir }

// Save copies r into a new file named by a random UUID plus the sanitized extension of
// originalName. The client-supplied name is never used as a path.
func (s *Local) Save(originalName, contentType string, r io.Reader) (models.Attachment, error) {
	fileName := uuid.NewString() + sanitizeExt(originalName)
	fullPath := filepath.Join(s.dir, fileName)

	dst, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("create upload file: %w", err)
	}

	written, err := io.Copy(dst, r)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(fullPath)
		return models.Attachment{}, fmt.Errorf("write upload file: %w", err)
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return models.Attachment{
		FileName:     fileName,
		OriginalName: BaseName(originalName),
		ContentType:  contentType,
		Size:         written,
		URL:          URLPrefix + fileName,
	}, nil
}

// Remove deletes a stored file. Missing files are not an error.
func (s *Local) Remove(fileName string) error {
	if fileName == "" || fileName != filepath.Base(fileName) || strings.HasPrefix(fileName, ".") {
		return ErrInvalidName
	}
	if err := os.Remove(filepath.Join(s.dir, fileName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload file: %w", err)
	}
	return nil
}

// BaseName strips any client path components from an uploaded file name.
func BaseName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// sanitizeExt returns the lowercased extension of name, including the dot, or "" when it
// contains anything but ASCII letters and digits.
func sanitizeExt(name string) string {
	ext := strings.ToLower(path.Ext(BaseName(name)))
	if len(ext) < 2 || len(ext) > maxExtLength+1 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}
