// Package inspect extracts facts from media files: extension, checksum, MIME
// type, page counts, image dimensions and audio/video stream details.
//
// Extractors return errors rather than defaults; callers decide how to degrade.
package inspect

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const chunkSize = 4096

var (
	// ErrUnsupportedType is returned when no extractor handles the MIME type.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrNoAlbumArt is returned when an audio file carries no embedded picture.
	ErrNoAlbumArt = errors.New("no embedded album art")
	// ErrNoVideoStream is returned when a file has no video stream.
	ErrNoVideoStream = errors.New("no video stream")
)

// Extension returns the lowercase file extension without the leading dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// Checksum streams r through SHA-256 and returns the hex digest.
func Checksum(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read for checksum: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChecksumFile computes the SHA-256 hex digest of the file at path.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return Checksum(f)
}
