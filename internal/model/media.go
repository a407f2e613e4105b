package model

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Kind identifies the family a media file belongs to. It decides which
// extensions are accepted and which metadata and artifacts are extracted.
type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
)

// Kinds lists every supported kind in a stable order.
var Kinds = []Kind{KindImage, KindDocument, KindVideo, KindAudio}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindDocument, KindVideo, KindAudio:
		return true
	}
	return false
}

// ParseKind converts a user supplied string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown media kind %q", s)
	}
	return k, nil
}

// ArtifactKind names a file derived from an uploaded original.
type ArtifactKind string

const (
	ArtifactThumbnail   ArtifactKind = "thumbnail"
	ArtifactWaveform    ArtifactKind = "waveform"
	ArtifactSpectrogram ArtifactKind = "spectrogram"
	ArtifactAlbumArt    ArtifactKind = "album_art"
)

// Artifact is a stored derivative of a media file.
type Artifact struct {
	Kind        ArtifactKind `json:"kind"`
	StoragePath string       `json:"storage_path"`
	ContentType string       `json:"content_type"`
	Size        int64        `json:"size"`
}

// Attributes holds per-kind facts that do not warrant their own column
// (codec, bitrate, framerate, sample rate, tags, ...).
type Attributes map[string]any

// MediaFile is the metadata record of an uploaded file.
// Width/Height, PageCount and DurationSeconds are nil when they do not apply
// to the kind or could not be extracted.
type MediaFile struct {
	ID               string     `json:"id"`
	Kind             Kind       `json:"kind"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	OriginalFilename string     `json:"original_filename"`
	Extension        string     `json:"extension"`
	ContentType      string     `json:"content_type"`
	Checksum         string     `json:"checksum"`
	Size             int64      `json:"size"`
	IsPublic         bool       `json:"is_public"`
	Slug             string     `json:"slug"`
	StoragePath      string     `json:"storage_path"`
	AltText          string     `json:"alt_text,omitempty"`
	Width            *int       `json:"width,omitempty"`
	Height           *int       `json:"height,omitempty"`
	PageCount        *int       `json:"page_count,omitempty"`
	DurationSeconds  *int       `json:"duration_seconds,omitempty"`
	Attributes       Attributes `json:"attributes,omitempty"`
	Artifacts        []Artifact `json:"artifacts,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Artifact returns the stored artifact of the given kind, if any.
func (m *MediaFile) Artifact(kind ArtifactKind) (Artifact, bool) {
	for _, a := range m.Artifacts {
		if a.Kind == kind {
			return a, true
		}
	}
	return Artifact{}, false
}

// DisplayName falls back from title to original filename to storage path.
func (m *MediaFile) DisplayName() string {
	if m.Title != "" {
		return m.Title
	}
	if m.OriginalFilename != "" {
		return m.OriginalFilename
	}
	return m.StoragePath
}

// HumanSize returns the size formatted for display.
func (m *MediaFile) HumanSize() string {
	return HumanSize(m.Size)
}

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// HumanSize formats a byte count with binary multiples, two decimals,
// and a trailing ".00" removed: 2097152 -> "2 MB", 1536 -> "1.50 KB".
func HumanSize(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	size := float64(n)
	for i, unit := range sizeUnits {
		if size < 1024 || i == len(sizeUnits)-1 {
			return strings.Replace(fmt.Sprintf("%.2f %s", size, unit), ".00", "", 1)
		}
		size /= 1024
	}
	return "0 B"
}

// SlugSource picks the text a slug is generated from: the stem of the
// original filename when one is known, otherwise the title.
func SlugSource(title, originalFilename string) string {
	if originalFilename != "" {
		base := filepath.Base(originalFilename)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return title
}

// Slugify turns spaces into dashes and lowercases the result.
func Slugify(value string) string {
	s := strings.ToLower(strings.TrimSpace(value))
	s = strings.ReplaceAll(s, " ", "-")
	if s == "" {
		return "media"
	}
	return s
}
