package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"canonstore/internal/models"
)

// ErrOwnerExists is returned when the same owner is attached twice to a blob.
var ErrOwnerExists = errors.New("owner reference already exists")

// ErrBlobMissing is returned when attaching an owner to a blob that is gone.
var ErrBlobMissing = errors.New("blob not found")

// AttachOwner records that an owner references a blob.
func (s *Store) AttachOwner(ctx context.Context, ref *models.OwnerReference) error {
	if ref == nil {
		return fmt.Errorf("owner reference is required")
	}
	if ref.BlobID == "" {
		return fmt.Errorf("blob_id is required")
	}
	if ref.ID == "" {
		generated, err := GenerateOwnerRefID(func(id string) (bool, error) {
			return s.ownerRefExists(ctx, id)
		})
		if err != nil {
			return err
		}
		ref.ID = generated
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blob_owners (id, blob_id, owner_kind, owner_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, ref.ID, ref.BlobID, ref.OwnerKind, ref.OwnerID, dbFormatTime(ref.CreatedAt))
	switch {
	case isOwnerDuplicate(err):
		return ErrOwnerExists
	case isForeignKeyViolation(err):
		return ErrBlobMissing
	}
	return err
}

// DetachOwner removes one owner reference of a blob and reports whether it existed.
func (s *Store) DetachOwner(ctx context.Context, blobID, refID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM blob_owners WHERE id = ? AND blob_id = ?", refID, blobID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListOwners returns all owner references of a blob, oldest first.
func (s *Store) ListOwners(ctx context.Context, blobID string) ([]models.OwnerReference, error) {
	rows, err := s.read.QueryContext(ctx, `
		SELECT id, blob_id, owner_kind, owner_id, created_at
		FROM blob_owners
		WHERE blob_id = ?
		ORDER BY created_at ASC, id ASC`, blobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := []models.OwnerReference{}
	for rows.Next() {
		var ref models.OwnerReference
		var createdAt string
		if err := rows.Scan(&ref.ID, &ref.BlobID, &ref.OwnerKind, &ref.OwnerID, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := dbParseTime(createdAt)
		if err != nil {
			return nil, err
		}
		ref.CreatedAt = parsed
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

// CountOwners returns how many references point at a blob.
func (s *Store) CountOwners(ctx context.Context, blobID string) (int, error) {
	var count int
	if err := s.read.QueryRowContext(ctx, "SELECT COUNT(*) FROM blob_owners WHERE blob_id = ?", blobID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) ownerRefExists(ctx context.Context, id string) (bool, error) {
	var exists int
	err := s.read.QueryRowContext(ctx, "SELECT 1 FROM blob_owners WHERE id = ? LIMIT 1", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
