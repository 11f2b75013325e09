package store

import (
	"context"

	"canonstore/internal/models"
)

// BlobTx is a metadata transaction scope for blob inserts.
type BlobTx interface {
	InsertBlob(ctx context.Context, rec *models.BlobRecord) error
	Commit() error
	Rollback() error
}

// BlobStore is the metadata persistence surface for blob records.
type BlobStore interface {
	GetBlob(ctx context.Context, id string) (*models.BlobRecord, error)
	BlobExistsByKey(ctx context.Context, key string) (bool, error)
	ListBlobs(ctx context.Context, family string, limit int) ([]models.BlobSummary, error)
	ListUnreferencedBlobs(ctx context.Context, afterID string, limit int) ([]models.BlobRecord, error)
	BeginBlobTx(ctx context.Context) (BlobTx, error)
	WithBlobDelete(ctx context.Context, id string, fn func(context.Context) error) (bool, error)
}

// OwnerStore is the persistence surface for owner references.
//
// Owners are kept separate from BlobStore so the catalog side can be
// swapped without touching the commit path.
type OwnerStore interface {
	AttachOwner(ctx context.Context, ref *models.OwnerReference) error
	DetachOwner(ctx context.Context, blobID, refID string) (bool, error)
	ListOwners(ctx context.Context, blobID string) ([]models.OwnerReference, error)
	CountOwners(ctx context.Context, blobID string) (int, error)
}

// MetadataStore combines both surfaces.
type MetadataStore interface {
	BlobStore
	OwnerStore
	Ping() error
	Close() error
}

var _ MetadataStore = (*Store)(nil)
