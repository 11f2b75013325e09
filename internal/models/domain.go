package models

import (
	"fmt"
	"regexp"
	"strings"
)

// Family names a media family with its own canonical encoding and key prefix.
type Family string

const (
	FamilyImage Family = "image"
	FamilyNovel Family = "novel"
)

var validFamilies = map[Family]struct{}{
	FamilyImage: {},
	FamilyNovel: {},
}

var (
	digestPattern    = regexp.MustCompile(`^[0-9a-f]{32,128}$`)
	ownerKindPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)
)

const maxOwnerIDLength = 128

func IsValidFamily(family Family) bool {
	_, ok := validFamilies[family]
	return ok
}

func ParseFamily(raw string) (Family, error) {
	value := Family(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("family is required")
	}
	if !IsValidFamily(value) {
		return "", fmt.Errorf("unknown family: %s", value)
	}
	return value, nil
}

// KeyPrefix returns the object-store prefix under which a family's objects live.
func (f Family) KeyPrefix() string {
	return string(f)
}

// StorageKey derives the object key for a digest in this family.
func (f Family) StorageKey(digest, ext string) string {
	return f.KeyPrefix() + "/" + FileName(digest, ext)
}

// FileName returns the display filename for a digest.
func FileName(digest, ext string) string {
	if ext == "" {
		return digest
	}
	return digest + "." + ext
}

// IsValidDigest reports whether id looks like a lowercase hex digest.
func IsValidDigest(id string) bool {
	return digestPattern.MatchString(id)
}

func ValidateOwner(kind, id string) error {
	if !ownerKindPattern.MatchString(kind) {
		return fmt.Errorf("invalid owner_kind")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("owner_id is required")
	}
	if len(id) > maxOwnerIDLength {
		return fmt.Errorf("owner_id too long")
	}
	return nil
}

// Families lists every supported family.
func Families() []Family {
	return []Family{FamilyImage, FamilyNovel}
}
