package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"canonstore/internal/models"
)

const blobColumns = "id, family, display_name, storage_key, content_type, size_bytes, digest_alg, created_at"

// GetBlob returns one blob record by id, or nil when absent.
func (s *Store) GetBlob(ctx context.Context, id string) (*models.BlobRecord, error) {
	row := s.read.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = ?`, strings.ToLower(strings.TrimSpace(id)))
	return scanBlob(row)
}

// BlobExistsByKey reports whether a record owns the given storage key.
func (s *Store) BlobExistsByKey(ctx context.Context, key string) (bool, error) {
	var exists int
	err := s.read.QueryRowContext(ctx, "SELECT 1 FROM blobs WHERE storage_key = ? LIMIT 1", key).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListBlobs returns the newest blob records with their owner counts,
// optionally filtered by family.
func (s *Store) ListBlobs(ctx context.Context, family string, limit int) ([]models.BlobSummary, error) {
	query := `
		SELECT b.id, b.family, b.display_name, b.storage_key, b.content_type, b.size_bytes, b.digest_alg, b.created_at,
			COUNT(o.id)
		FROM blobs b
		LEFT JOIN blob_owners o ON o.blob_id = b.id`
	args := []any{}
	if family != "" {
		query += " WHERE b.family = ?"
		args = append(args, family)
	}
	query += " GROUP BY b.id ORDER BY b.created_at DESC, b.id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []models.BlobSummary{}
	for rows.Next() {
		var summary models.BlobSummary
		var displayName sql.NullString
		var createdAt string
		b := &summary.BlobRecord
		if err := rows.Scan(&b.ID, &b.Family, &displayName, &b.StorageKey, &b.ContentType, &b.SizeBytes, &b.DigestAlg, &createdAt, &summary.OwnerCount); err != nil {
			return nil, err
		}
		b.DisplayName = displayName.String
		if b.CreatedAt, err = dbParseTime(createdAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// ListUnreferencedBlobs returns blob records with no owner references.
// Results are ordered by id and start strictly after afterID.
func (s *Store) ListUnreferencedBlobs(ctx context.Context, afterID string, limit int) ([]models.BlobRecord, error) {
	query := `
		SELECT b.id, b.family, b.display_name, b.storage_key, b.content_type, b.size_bytes, b.digest_alg, b.created_at
		FROM blobs b
		LEFT JOIN blob_owners o ON o.blob_id = b.id
		WHERE o.id IS NULL AND b.id > ?
		ORDER BY b.id ASC`
	args := []any{afterID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBlobs(rows)
}

// WithBlobDelete deletes an unreferenced blob row and runs fn before committing.
// The row is only removed when fn succeeds. If the blob has an owner or is
// already gone, fn is not called and deleted is false. Owner references are
// never removed by this path.
func (s *Store) WithBlobDelete(ctx context.Context, id string, fn func(context.Context) error) (deleted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || !deleted {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM blobs
		WHERE id = ? AND NOT EXISTS (SELECT 1 FROM blob_owners WHERE blob_id = ?)`, id, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if err = fn(ctx); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// BeginBlobTx opens a transaction for inserting blob records.
func (s *Store) BeginBlobTx(ctx context.Context) (BlobTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &blobTx{tx: tx}, nil
}

type blobTx struct {
	tx   *sql.Tx
	done bool
}

// InsertBlob stages one record inside the transaction.
func (b *blobTx) InsertBlob(ctx context.Context, rec *models.BlobRecord) error {
	if rec == nil {
		return fmt.Errorf("blob record is required")
	}
	rec.ID = strings.ToLower(strings.TrimSpace(rec.ID))
	if rec.ID == "" {
		return fmt.Errorf("blob id is required")
	}
	if strings.TrimSpace(rec.StorageKey) == "" {
		return fmt.Errorf("storage_key is required")
	}
	if rec.SizeBytes < 0 {
		return fmt.Errorf("size_bytes must be >= 0")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO blobs (id, family, display_name, storage_key, content_type, size_bytes, digest_alg, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Family, nullIfEmpty(rec.DisplayName), rec.StorageKey, rec.ContentType, rec.SizeBytes, rec.DigestAlg, dbFormatTime(rec.CreatedAt))
	return err
}

func (b *blobTx) Commit() error {
	if b.done {
		return sql.ErrTxDone
	}
	b.done = true
	return b.tx.Commit()
}

// Rollback aborts the transaction. It is safe to call after Commit.
func (b *blobTx) Rollback() error {
	if b.done {
		return nil
	}
	b.done = true
	return b.tx.Rollback()
}

func collectBlobs(rows *sql.Rows) ([]models.BlobRecord, error) {
	blobs := []models.BlobRecord{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		if blob != nil {
			blobs = append(blobs, *blob)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return blobs, nil
}

func scanBlob(scanner interface {
	Scan(dest ...any) error
}) (*models.BlobRecord, error) {
	blob := models.BlobRecord{}
	var displayName sql.NullString
	var createdAt string

	err := scanner.Scan(&blob.ID, &blob.Family, &displayName, &blob.StorageKey, &blob.ContentType, &blob.SizeBytes, &blob.DigestAlg, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if displayName.Valid {
		blob.DisplayName = displayName.String
	}

	parsedCreated, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	blob.CreatedAt = parsedCreated

	return &blob, nil
}
