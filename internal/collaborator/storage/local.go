package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Local serves rendered videos straight from the render output directory.
// It is the fallback when object storage is missing or an upload fails.
type Local struct {
	dir     string
	baseURL string
}

func NewLocal(dir, publicBaseURL string) (*Local, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("storage: local dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure local dir: %w", err)
	}
	return &Local{dir: dir, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

func (l *Local) Dir() string { return l.dir }

// URL returns <public base>/videos/<file> for a file in the output dir.
func (l *Local) URL(fileName string) string {
	return l.baseURL + "/videos/" + url.PathEscape(filepath.Base(fileName))
}

// Delete removes a local artifact. Missing files are not an error.
func (l *Local) Delete(_ context.Context, fileName string) error {
	name, err := sanitizeName(fileName)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(l.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete local video: %w", err)
	}
	return nil
}

// sanitizeName keeps deletes inside the output directory.
func sanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == "" {
		return "", errors.New("storage: invalid file name")
	}
	return base, nil
}
