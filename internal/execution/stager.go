package execution

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/me/virocov/pkg/cwl"
)

// Stager fetches a remote or local file into the working area.
type Stager interface {
	// StageIn downloads/copies a file from location to destPath.
	StageIn(ctx context.Context, location string, destPath string) error
}

// FileStager stages files using local filesystem operations.
type FileStager struct{}

// NewFileStager creates a FileStager.
func NewFileStager() *FileStager {
	return &FileStager{}
}

// StageIn copies a file from a file:// location (or bare path) to destPath.
func (s *FileStager) StageIn(_ context.Context, location string, destPath string) error {
	scheme, path := cwl.ParseLocationScheme(location)

	switch scheme {
	case cwl.SchemeFile, "":
		return copyFile(path, destPath)
	default:
		return fmt.Errorf("file stager: unsupported scheme %q for stage-in (use CompositeStager for remote schemes)", scheme)
	}
}

// CompositeStager routes staging operations to scheme-specific handlers.
type CompositeStager struct {
	handlers map[string]Stager
	fallback Stager
}

// NewCompositeStager creates a CompositeStager with scheme handlers.
func NewCompositeStager(handlers map[string]Stager, fallback Stager) *CompositeStager {
	return &CompositeStager{
		handlers: handlers,
		fallback: fallback,
	}
}

// StageIn routes to the appropriate handler based on scheme.
func (s *CompositeStager) StageIn(ctx context.Context, location string, destPath string) error {
	scheme, _ := cwl.ParseLocationScheme(location)
	if handler, ok := s.handlers[scheme]; ok {
		return handler.StageIn(ctx, location, destPath)
	}
	if s.fallback != nil {
		return s.fallback.StageIn(ctx, location, destPath)
	}
	return fmt.Errorf("no stager registered for scheme %q", scheme)
}

// copyFile copies src to dst through a temp file, creating parent directories as needed.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	return writeAtomic(dst, in)
}

// writeAtomic streams r into dst via dst.tmp and a rename, so dst never
// exists half-written.
func writeAtomic(dst string, r io.Reader) error {
	tmpPath := dst + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	_, err = io.Copy(out, r)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write file: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
