package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"fairgate/internal/domain"
)

var _ Sink = (*FileSink)(nil)

// FileSink writes archives into a local directory. It is the zero-setup
// destination used by operators pulling archives onto the host directly.
type FileSink struct {
	dir string
}

// NewFileSink creates a sink over the destination's directory.
func NewFileSink(dest *domain.ExportDestination) (*FileSink, error) {
	if dest.Directory == "" {
		return nil, fmt.Errorf("directory is required for file destinations")
	}
	return &FileSink{dir: dest.Directory}, nil
}

// Store writes the archive under the configured directory and returns the
// resulting path.
func (s *FileSink) Store(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("create export directory %q: %w", s.dir, err)
	}
	path := filepath.Join(s.dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write archive %q: %w", path, err)
	}
	return path, nil
}

// Close is a no-op; file sinks hold no connections.
func (s *FileSink) Close() error { return nil }
