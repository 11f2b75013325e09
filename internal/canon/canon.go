// Package canon turns uploaded bytes into the single deterministic encoding that is hashed
// and stored. Canonicalizers are pure: they never touch the network or disk.
package canon

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"canonstore/internal/models"
)

var (
	// ErrUnsupportedMediaType reports a declared type outside the accepted family.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrMalformedContent reports bytes that do not decode as a recognized format.
	ErrMalformedContent = errors.New("malformed content")
)

// Result is the canonical form of one upload.
type Result struct {
	Data        []byte
	ContentType string
	Extension   string
}

// Canonicalizer re-encodes raw bytes of a declared media type.
type Canonicalizer interface {
	Canonicalize(data []byte, declaredType string) (Result, error)
}

// ForFamily returns the canonicalizer registered for a family.
func ForFamily(family models.Family) (Canonicalizer, error) {
	switch family {
	case models.FamilyImage:
		return NewImageCanonicalizer(DefaultMaxPixels), nil
	case models.FamilyNovel:
		return DocumentCanonicalizer{}, nil
	default:
		return nil, fmt.Errorf("no canonicalizer for family %q", family)
	}
}

// AcceptsType reports whether a declared type belongs to the family, without decoding.
func AcceptsType(family models.Family, declaredType string) bool {
	mediaType, ok := parseMediaType(declaredType)
	if !ok {
		return false
	}
	switch family {
	case models.FamilyImage:
		return topLevel(mediaType) == "image"
	case models.FamilyNovel:
		return mediaType == pdfMediaType
	default:
		return false
	}
}

func parseMediaType(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", false
	}
	return strings.ToLower(mediaType), true
}

func topLevel(mediaType string) string {
	top, _, _ := strings.Cut(mediaType, "/")
	return top
}

func unsupported(declaredType string) error {
	if strings.TrimSpace(declaredType) == "" {
		return fmt.Errorf("%w: missing content type", ErrUnsupportedMediaType)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedMediaType, declaredType)
}
