package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"canonstore/internal/blobstore"
	"canonstore/internal/canon"
	"canonstore/internal/config"
	"canonstore/internal/digest"
	"canonstore/internal/metrics"
	"canonstore/internal/models"
	"canonstore/internal/store"
)

const (
	outcomeCreated = "created"
	outcomeDedup   = "dedup"
	outcomeFailed  = "failed"

	maxDisplayNameLength = 255

	defaultListLimit = 50
	maxListLimit     = 500
)

// Upload is one raw file handed to the commit coordinator.
type Upload struct {
	Data        []byte
	ContentType string
	Filename    string
}

// ServiceConfig tunes the StorageService. Zero values take defaults.
type ServiceConfig struct {
	Digest        digest.Algorithm
	MaxBatchItems int
	MaxFileBytes  int64
	CommitTimeout time.Duration
	// StageLimit bounds concurrent canonicalization within a batch.
	StageLimit int
	Fetch      FetchConfig
	Sweep      SweepConfig
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.Digest == "" {
		c.Digest = digest.Default
	}
	if c.MaxBatchItems <= 0 {
		c.MaxBatchItems = config.DefaultBatchItems
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = config.DefaultMaxFileBytes
	}
	if c.CommitTimeout <= 0 {
		c.CommitTimeout = config.DefaultCommitTimeout
	}
	if c.StageLimit <= 0 {
		c.StageLimit = runtime.GOMAXPROCS(0)
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = c.MaxFileBytes
	}
	c.Sweep = c.Sweep.withDefaults()
	return c
}

// StorageService owns the commit saga, the delete path and the reconciler.
type StorageService struct {
	meta    store.MetadataStore
	objects blobstore.ObjectStore
	fetcher *Fetcher
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     ServiceConfig
	now     func() time.Time
}

type stagedUpload struct {
	record models.BlobRecord
	data   []byte
}

func NewStorageService(meta store.MetadataStore, objects blobstore.ObjectStore, cfg ServiceConfig, m *metrics.Metrics, logger *slog.Logger) *StorageService {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &StorageService{
		meta:    meta,
		objects: objects,
		fetcher: NewFetcher(cfg.Fetch),
		metrics: m,
		logger:  logger.With("component", "storage"),
		cfg:     cfg,
		now:     time.Now,
	}
}

// MaxBatchItems reports the configured batch limit.
func (s *StorageService) MaxBatchItems() int {
	return s.cfg.MaxBatchItems
}

// Create stores one upload and returns its digest id. Re-uploading identical
// canonical content returns the existing id without writing anything.
func (s *StorageService) Create(ctx context.Context, family models.Family, up Upload) (string, error) {
	staged, err := s.stage(family, up)
	if err != nil {
		return "", err
	}
	return s.commit(ctx, staged)
}

// CreateBatch stores 1..MaxBatchItems uploads atomically with respect to metadata.
// Ids are returned in input order.
func (s *StorageService) CreateBatch(ctx context.Context, family models.Family, ups []Upload) ([]string, error) {
	if err := s.checkBatchSize(len(ups)); err != nil {
		return nil, err
	}

	staged := make([]stagedUpload, len(ups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.StageLimit)
	for i := range ups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			st, err := s.stage(family, ups[i])
			if err != nil {
				return fmt.Errorf("item %d: %w", i+1, err)
			}
			staged[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.commitBatch(ctx, family, staged)
}

// CreateFromURL fetches rawURL and stores it like Create.
func (s *StorageService) CreateFromURL(ctx context.Context, family models.Family, rawURL string) (string, error) {
	up, err := s.fetcher.Fetch(ctx, family, rawURL)
	if err != nil {
		return "", classifyFetchError(err)
	}
	return s.Create(ctx, family, up)
}

// CreateFromURLs fetches every URL and stores them like CreateBatch.
func (s *StorageService) CreateFromURLs(ctx context.Context, family models.Family, rawURLs []string) ([]string, error) {
	if err := s.checkBatchSize(len(rawURLs)); err != nil {
		return nil, err
	}

	ups := make([]Upload, len(rawURLs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.StageLimit)
	for i, rawURL := range rawURLs {
		g.Go(func() error {
			up, err := s.fetcher.Fetch(gctx, family, rawURL)
			if err != nil {
				return classifyFetchError(fmt.Errorf("item %d: %w", i+1, err))
			}
			ups[i] = up
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return s.CreateBatch(ctx, family, ups)
}

// Get returns the record for id within family.
func (s *StorageService) Get(ctx context.Context, family models.Family, id string) (models.BlobRecord, error) {
	if !models.IsValidDigest(id) {
		return models.BlobRecord{}, badRequestCode(fmt.Errorf("invalid id"), ErrCodeInvalidID)
	}
	rec, err := s.meta.GetBlob(ctx, id)
	if err != nil {
		return models.BlobRecord{}, storeFailure(err)
	}
	if rec == nil || rec.Family != string(family) {
		return models.BlobRecord{}, notFound(fmt.Errorf("item not found"))
	}
	return *rec, nil
}

// List returns the newest records of family with their owner counts.
// limit <= 0 selects the default; larger values are capped.
func (s *StorageService) List(ctx context.Context, family models.Family, limit int) ([]models.BlobSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	items, err := s.meta.ListBlobs(ctx, string(family), limit)
	if err != nil {
		return nil, storeFailure(err)
	}
	return items, nil
}

// Open returns the record and a reader over its stored bytes. The caller closes the reader.
func (s *StorageService) Open(ctx context.Context, family models.Family, id string) (models.BlobRecord, io.ReadCloser, error) {
	rec, err := s.Get(ctx, family, id)
	if err != nil {
		return models.BlobRecord{}, nil, err
	}
	rc, err := s.objects.Open(ctx, rec.StorageKey)
	if err != nil {
		return models.BlobRecord{}, nil, dependencyFailure(err)
	}
	return rec, rc, nil
}

// Delete removes an item that no owner references. The row delete is
// conditioned on the item having no owners and is committed only after the
// object delete succeeds, so a failed object delete leaves the item in place.
// Items with owner references are refused with a conflict.
func (s *StorageService) Delete(ctx context.Context, family models.Family, id string) error {
	rec, err := s.Get(ctx, family, id)
	if err != nil {
		return err
	}
	if err := s.refuseIfReferenced(ctx, rec.ID); err != nil {
		return err
	}

	ctx, cancel := s.sagaContext(ctx)
	defer cancel()

	var objectErr error
	deleted, err := s.meta.WithBlobDelete(ctx, rec.ID, func(ctx context.Context) error {
		objectErr = s.objects.Delete(ctx, rec.StorageKey)
		return objectErr
	})
	switch {
	case objectErr != nil:
		return dependencyFailure(objectErr)
	case err != nil:
		return storeFailure(err)
	case !deleted:
		// An owner was attached or another delete won since the lookup.
		if err := s.refuseIfReferenced(ctx, rec.ID); err != nil {
			return err
		}
		return notFound(fmt.Errorf("item not found"))
	}
	s.logger.Info("item deleted", "id", rec.ID, "family", rec.Family, "key", rec.StorageKey)
	return nil
}

func (s *StorageService) refuseIfReferenced(ctx context.Context, id string) error {
	owners, err := s.meta.CountOwners(ctx, id)
	if err != nil {
		return storeFailure(err)
	}
	if owners > 0 {
		return conflictCode(fmt.Errorf("item %s is referenced by %d owner(s); detach them first", id, owners), ErrCodeItemReferenced)
	}
	return nil
}

func (s *StorageService) AttachOwner(ctx context.Context, family models.Family, id, ownerKind, ownerID string) (models.OwnerReference, error) {
	ownerKind = strings.TrimSpace(ownerKind)
	ownerID = strings.TrimSpace(ownerID)
	if err := models.ValidateOwner(ownerKind, ownerID); err != nil {
		return models.OwnerReference{}, badRequestCode(err, ErrCodeInvalidOwner)
	}
	if _, err := s.Get(ctx, family, id); err != nil {
		return models.OwnerReference{}, err
	}

	ref := models.OwnerReference{BlobID: id, OwnerKind: ownerKind, OwnerID: ownerID}
	if err := s.meta.AttachOwner(ctx, &ref); err != nil {
		switch {
		case errors.Is(err, store.ErrOwnerExists):
			return models.OwnerReference{}, conflictCode(err, ErrCodeOwnerExists)
		case errors.Is(err, store.ErrBlobMissing):
			return models.OwnerReference{}, notFound(fmt.Errorf("item not found"))
		default:
			return models.OwnerReference{}, storeFailure(err)
		}
	}
	return ref, nil
}

func (s *StorageService) DetachOwner(ctx context.Context, family models.Family, id, refID string) error {
	if _, err := s.Get(ctx, family, id); err != nil {
		return err
	}
	removed, err := s.meta.DetachOwner(ctx, id, strings.TrimSpace(refID))
	if err != nil {
		return storeFailure(err)
	}
	if !removed {
		return notFoundCode(fmt.Errorf("owner reference not found"), ErrCodeOwnerRefNotFound)
	}
	return nil
}

func (s *StorageService) ListOwners(ctx context.Context, family models.Family, id string) ([]models.OwnerReference, error) {
	if _, err := s.Get(ctx, family, id); err != nil {
		return nil, err
	}
	refs, err := s.meta.ListOwners(ctx, id)
	if err != nil {
		return nil, storeFailure(err)
	}
	if refs == nil {
		refs = []models.OwnerReference{}
	}
	return refs, nil
}

func (s *StorageService) checkBatchSize(n int) error {
	if n < 1 || n > s.cfg.MaxBatchItems {
		return unprocessableCode(fmt.Errorf("batch must contain 1 to %d items, got %d", s.cfg.MaxBatchItems, n), ErrCodeInvalidBatchSize)
	}
	return nil
}

// stage canonicalizes and digests one upload. It performs no I/O.
func (s *StorageService) stage(family models.Family, up Upload) (stagedUpload, error) {
	if len(up.Data) == 0 {
		return stagedUpload{}, badRequestCode(fmt.Errorf("upload is empty"), ErrCodeMissingRequired)
	}
	if int64(len(up.Data)) > s.cfg.MaxFileBytes {
		return stagedUpload{}, badRequestCode(fmt.Errorf("file exceeds %d bytes", s.cfg.MaxFileBytes), ErrCodeRequestTooLarge)
	}

	declared := strings.TrimSpace(up.ContentType)
	if declared == "" || declared == "application/octet-stream" {
		declared = http.DetectContentType(up.Data)
	}
	if !canon.AcceptsType(family, declared) {
		return stagedUpload{}, unsupportedMedia(fmt.Errorf("%w: %s is not accepted for %s", canon.ErrUnsupportedMediaType, declared, family))
	}

	c, err := canon.ForFamily(family)
	if err != nil {
		return stagedUpload{}, internalError(err)
	}
	res, err := c.Canonicalize(up.Data, declared)
	if err != nil {
		return stagedUpload{}, classifyCanonError(err)
	}

	id, err := digest.Sum(s.cfg.Digest, res.Data)
	if err != nil {
		return stagedUpload{}, internalError(err)
	}

	return stagedUpload{
		record: models.BlobRecord{
			ID:          id,
			Family:      string(family),
			DisplayName: displayName(up.Filename),
			StorageKey:  family.StorageKey(id, res.Extension),
			ContentType: res.ContentType,
			SizeBytes:   int64(len(res.Data)),
			DigestAlg:   string(s.cfg.Digest),
			CreatedAt:   s.now().UTC(),
		},
		data: res.Data,
	}, nil
}

func classifyCanonError(err error) error {
	switch {
	case errors.Is(err, canon.ErrUnsupportedMediaType):
		return unsupportedMedia(err)
	case errors.Is(err, canon.ErrMalformedContent):
		return badRequestCode(err, ErrCodeMalformedContent)
	default:
		return internalError(err)
	}
}

// classifyFetchError keeps a wrong remote media type at 422 like a direct upload.
func classifyFetchError(err error) error {
	if errors.Is(err, canon.ErrUnsupportedMediaType) {
		return unsupportedMedia(err)
	}
	if errors.Is(err, errFetchTooLarge) {
		return badRequestCode(err, ErrCodeRequestTooLarge)
	}
	return badRequestCode(err, ErrCodeFetchFailed)
}

// sagaContext detaches the saga from request cancellation. Once a mutation has
// started it runs to commit or rollback within commit_timeout.
func (s *StorageService) sagaContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CommitTimeout)
}

func (s *StorageService) commit(ctx context.Context, st stagedUpload) (string, error) {
	ctx, cancel := s.sagaContext(ctx)
	defer cancel()

	rec := st.record
	existing, err := s.meta.GetBlob(ctx, rec.ID)
	if err != nil {
		s.metrics.Upload(rec.Family, outcomeFailed)
		return "", storeFailure(err)
	}
	if existing != nil {
		s.metrics.Upload(rec.Family, outcomeDedup)
		return existing.ID, nil
	}

	tx, err := s.meta.BeginBlobTx(ctx)
	if err != nil {
		s.metrics.Upload(rec.Family, outcomeFailed)
		return "", storeFailure(err)
	}
	if err := tx.InsertBlob(ctx, &rec); err != nil {
		_ = tx.Rollback()
		if store.IsDuplicateKey(err) {
			s.metrics.Upload(rec.Family, outcomeDedup)
			return rec.ID, nil
		}
		s.metrics.Upload(rec.Family, outcomeFailed)
		return "", storeFailure(err)
	}

	if err := s.objects.Put(ctx, rec.StorageKey, bytes.NewReader(st.data), int64(len(st.data)), rec.ContentType); err != nil {
		_ = tx.Rollback()
		s.metrics.Upload(rec.Family, outcomeFailed)
		s.logger.Warn("object put failed, metadata rolled back", "id", rec.ID, "key", rec.StorageKey, "error", err)
		return "", dependencyFailure(err)
	}

	if err := tx.Commit(); err != nil {
		s.compensate(ctx, "commit_failed", rec.StorageKey)
		s.metrics.Upload(rec.Family, outcomeFailed)
		return "", storeFailure(err)
	}

	s.metrics.Upload(rec.Family, outcomeCreated)
	s.logger.Debug("item created", "id", rec.ID, "family", rec.Family, "size_bytes", rec.SizeBytes)
	return rec.ID, nil
}

func (s *StorageService) commitBatch(ctx context.Context, family models.Family, staged []stagedUpload) ([]string, error) {
	ctx, cancel := s.sagaContext(ctx)
	defer cancel()

	ids := make([]string, len(staged))
	pending := make([]stagedUpload, 0, len(staged))
	seen := make(map[string]struct{}, len(staged))
	for i, st := range staged {
		ids[i] = st.record.ID
		if _, ok := seen[st.record.ID]; ok {
			s.metrics.Upload(string(family), outcomeDedup)
			continue
		}
		seen[st.record.ID] = struct{}{}

		existing, err := s.meta.GetBlob(ctx, st.record.ID)
		if err != nil {
			return nil, storeFailure(err)
		}
		if existing != nil {
			s.metrics.Upload(string(family), outcomeDedup)
			continue
		}
		pending = append(pending, st)
	}
	if len(pending) == 0 {
		return ids, nil
	}

	tx, err := s.meta.BeginBlobTx(ctx)
	if err != nil {
		return nil, storeFailure(err)
	}

	inserted := make([]stagedUpload, 0, len(pending))
	for _, st := range pending {
		rec := st.record
		if err := tx.InsertBlob(ctx, &rec); err != nil {
			if store.IsDuplicateKey(err) {
				s.metrics.Upload(string(family), outcomeDedup)
				continue
			}
			_ = tx.Rollback()
			s.failBatch(family, len(pending))
			return nil, storeFailure(err)
		}
		inserted = append(inserted, st)
	}

	put := make([]string, 0, len(inserted))
	for _, st := range inserted {
		rec := st.record
		if err := s.objects.Put(ctx, rec.StorageKey, bytes.NewReader(st.data), int64(len(st.data)), rec.ContentType); err != nil {
			_ = tx.Rollback()
			s.compensate(ctx, "batch_put_failed", put...)
			s.failBatch(family, len(inserted))
			s.logger.Warn("batch put failed, metadata rolled back", "id", rec.ID, "key", rec.StorageKey, "compensated", len(put), "error", err)
			return nil, dependencyFailure(fmt.Errorf("item %s: %w", rec.ID, err))
		}
		put = append(put, rec.StorageKey)
	}

	if err := tx.Commit(); err != nil {
		s.compensate(ctx, "commit_failed", put...)
		s.failBatch(family, len(inserted))
		return nil, storeFailure(err)
	}

	for range inserted {
		s.metrics.Upload(string(family), outcomeCreated)
	}
	s.logger.Debug("batch created", "family", family, "items", len(ids), "created", len(inserted))
	return ids, nil
}

func (s *StorageService) failBatch(family models.Family, n int) {
	for i := 0; i < n; i++ {
		s.metrics.Upload(string(family), outcomeFailed)
	}
}

// compensate deletes objects written by a saga that did not commit. Failures
// leave stray objects for the reconciler.
func (s *StorageService) compensate(ctx context.Context, reason string, keys ...string) {
	for _, key := range keys {
		s.metrics.Compensation(reason)
		if err := s.objects.Delete(ctx, key); err != nil {
			s.logger.Error("compensating delete failed", "key", key, "reason", reason, "error", err)
			continue
		}
		s.logger.Info("compensating delete", "key", key, "reason", reason)
	}
}

func displayName(filename string) string {
	name := strings.TrimSpace(filepath.Base(strings.ReplaceAll(filename, "\\", "/")))
	if name == "." || name == "/" {
		return ""
	}
	for len(name) > maxDisplayNameLength {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return name
}

// Ping checks the metadata store.
func (s *StorageService) Ping() error {
	return s.meta.Ping()
}
