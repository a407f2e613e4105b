package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"mediaapi/internal/validate"
)

// Staged is an upload spooled to local disk so extractors can seek and
// external tools can read it by path.
type Staged struct {
	Path     string
	Checksum string
	Size     int64
}

// Stage copies r into a temp file under dir while computing its SHA-256.
// Reading stops one byte past maxBytes (0 = unlimited) and the upload is
// rejected with validate.ErrFileTooLarge. The temp file is removed on error.
func Stage(r io.Reader, dir string, maxBytes int64) (*Staged, error) {
	if r == nil {
		return nil, errors.New("stage: nil reader")
	}
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create temp dir %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, "mediaapi-*.upload")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()

	hasher := sha256.New()
	src := io.TeeReader(r, hasher)
	if maxBytes > 0 {
		src = io.LimitReader(src, maxBytes+1)
	}

	size, err := io.Copy(f, src)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if maxBytes > 0 && size > maxBytes {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: more than %d bytes", validate.ErrFileTooLarge, maxBytes)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	return &Staged{
		Path:     tmpPath,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
		Size:     size,
	}, nil
}

// Open reopens the staged file for reading.
func (s *Staged) Open() (*os.File, error) {
	return os.Open(s.Path)
}

// Cleanup removes the temp file. A file that is already gone is not an error.
func (s *Staged) Cleanup() error {
	if s == nil || s.Path == "" {
		return nil
	}
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
