// Package digest computes the content hashes used as blob identities.
package digest

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a supported content hash.
type Algorithm string

const (
	BLAKE3 Algorithm = "blake3"
	SHA256 Algorithm = "sha256"
	// MD5 is kept for stores migrated from md5-keyed catalogs. It is not collision resistant.
	MD5 Algorithm = "md5"

	Default = BLAKE3
)

// Parse normalizes an algorithm name. Empty input selects the default.
func Parse(raw string) (Algorithm, error) {
	value := Algorithm(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case "":
		return Default, nil
	case BLAKE3, SHA256, MD5:
		return value, nil
	default:
		return "", fmt.Errorf("unsupported digest algorithm %q", raw)
	}
}

// New returns a streaming hasher for alg.
func New(alg Algorithm) (hash.Hash, error) {
	switch alg {
	case BLAKE3:
		return blake3.New(), nil
	case SHA256:
		return sha256.New(), nil
	case MD5:
		return md5.New(), nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", alg)
	}
}

// Sum returns the lowercase hex digest of data.
func Sum(alg Algorithm, data []byte) (string, error) {
	switch alg {
	case BLAKE3:
		sum := blake3.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	case SHA256:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	case MD5:
		sum := md5.Sum(data)
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("unsupported digest algorithm %q", alg)
	}
}

// HexLen is the length of a hex digest produced by alg.
func HexLen(alg Algorithm) int {
	if alg == MD5 {
		return 32
	}
	return 64
}
