// Package validate checks uploads against the per-kind extension lists, the
// size limit and the sniffed MIME type.
package validate

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"mediaapi/internal/model"
)

var (
	ErrFilenameRequired     = errors.New("filename is required")
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	ErrFileTooLarge         = errors.New("file too large")
	ErrMIMEMismatch         = errors.New("content type does not match media kind")
	ErrInvalidKind          = errors.New("invalid media kind")
)

// Validator holds the accepted extensions per kind and the size limit.
type Validator struct {
	allowed  map[model.Kind][]string
	maxBytes int64
	strict   bool
}

// New builds a Validator. allowed is keyed by kind name; unknown kinds are
// ignored and extensions are normalized to lowercase without a dot. When
// strict is set, MIME mismatches are rejected instead of reported.
func New(allowed map[string][]string, maxBytes int64, strict bool) *Validator {
	v := &Validator{allowed: make(map[model.Kind][]string), maxBytes: maxBytes, strict: strict}
	for name, exts := range allowed {
		kind, err := model.ParseKind(name)
		if err != nil {
			continue
		}
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
			if ext != "" && !slices.Contains(v.allowed[kind], ext) {
				v.allowed[kind] = append(v.allowed[kind], ext)
			}
		}
	}
	return v
}

// Strict reports whether MIME mismatches are fatal.
func (v *Validator) Strict() bool { return v.strict }

// MaxBytes is the upload size limit.
func (v *Validator) MaxBytes() int64 { return v.maxBytes }

// Allowed returns the accepted extensions for kind.
func (v *Validator) Allowed(kind model.Kind) []string {
	return slices.Clone(v.allowed[kind])
}

// KindForExtension infers the kind from an extension, checking kinds in
// their declared order.
func (v *Validator) KindForExtension(ext string) (model.Kind, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, k := range model.Kinds {
		if slices.Contains(v.allowed[k], ext) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
}

// Extension checks that ext is accepted for kind.
func (v *Validator) Extension(kind model.Kind, ext string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if !slices.Contains(v.allowed[kind], ext) {
		return fmt.Errorf("%w: %q is not allowed for %s (allowed: %s)",
			ErrUnsupportedExtension, ext, kind, strings.Join(v.allowed[kind], ", "))
	}
	return nil
}

// Filename requires a non-blank name.
func (v *Validator) Filename(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrFilenameRequired
	}
	return nil
}

// Size enforces the upload limit. A negative size means unknown and passes;
// the staged byte count is checked again after reading.
func (v *Validator) Size(size int64) error {
	if v.maxBytes > 0 && size > v.maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFileTooLarge, size, v.maxBytes)
	}
	return nil
}

// MIME checks the sniffed type against kind. It returns an ErrMIMEMismatch
// wrapped error on mismatch; callers decide whether it is fatal via Strict.
func (v *Validator) MIME(mimeType string, kind model.Kind) error {
	if !MIMEMatchesKind(mimeType, kind) {
		return fmt.Errorf("%w: %s for %s", ErrMIMEMismatch, mimeType, kind)
	}
	return nil
}

// MIMEMatchesKind reports whether the top-level MIME type fits the kind.
// Images, audio and video must carry their own top-level type; documents
// span too many families to check and always match.
func MIMEMatchesKind(mimeType string, kind model.Kind) bool {
	top, _, _ := strings.Cut(strings.ToLower(mimeType), "/")
	switch kind {
	case model.KindImage:
		return top == "image"
	case model.KindAudio:
		return top == "audio"
	case model.KindVideo:
		// Some containers sniff as audio when the video track comes late.
		return top == "video" || mimeType == "audio/mp4"
	case model.KindDocument:
		return true
	}
	return false
}
