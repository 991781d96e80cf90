package imagegen

import (
	"fmt"
	"os"
	"path/filepath"

	"batchgen/orchestrator"
)

// DiskSink is an orchestrator.FileSink writing images under one directory.
// The extension comes from the payload, not the suggested name.
//
// Thread Safety: DiskSink is safe for concurrent use. Every Save writes a
// distinct temp file before renaming it into place.
type DiskSink struct {
	dir string
}

// NewDiskSink creates dir if needed and returns a sink writing into it.
func NewDiskSink(dir string) (*DiskSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("imagegen: output directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("imagegen: create output directory: %w", err)
	}
	return &DiskSink{dir: dir}, nil
}

// Save writes data as <suggestedName>.<ext> and returns the full path.
// An existing file with the same name is replaced.
func (s *DiskSink) Save(data []byte, suggestedName string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}

	name := sanitizeFilename(suggestedName) + "." + DetectFormat(data)
	fullPath := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("imagegen: create image file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("imagegen: write image data: %w", err)
	}
	// CreateTemp uses 0600
	tmp.Chmod(0o644)
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("imagegen: write image data: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("imagegen: move image into place: %w", err)
	}

	return fullPath, nil
}

// Dir returns the output directory.
func (s *DiskSink) Dir() string {
	return s.dir
}

var _ orchestrator.FileSink = (*DiskSink)(nil)
