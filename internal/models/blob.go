package models

import "time"

// BlobRecord is an immutable stored content object identified by its canonical digest.
type BlobRecord struct {
	ID          string    `json:"id"`
	Family      string    `json:"family"`
	DisplayName string    `json:"display_name,omitempty"`
	StorageKey  string    `json:"storage_key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	DigestAlg   string    `json:"digest_alg"`
	CreatedAt   time.Time `json:"created_at"`
}

// OwnerReference links a consuming entity to a blob record.
type OwnerReference struct {
	ID        string    `json:"id"`
	BlobID    string    `json:"blob_id"`
	OwnerKind string    `json:"owner_kind"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// BlobSummary is a record with the number of owners currently referencing it.
type BlobSummary struct {
	BlobRecord
	OwnerCount int `json:"owner_count"`
}
