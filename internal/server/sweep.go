package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"

	"canonstore/internal/blobstore"
	"canonstore/internal/config"
	"canonstore/internal/models"
)

const (
	sweepResultOK      = "ok"
	sweepResultPartial = "partial"
	sweepResultError   = "error"
)

// SweepConfig holds reconciler defaults.
type SweepConfig struct {
	BatchSize        int
	DeletesPerSecond float64
	Stray            bool
	StrayGrace       time.Duration
}

func (c SweepConfig) withDefaults() SweepConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = config.DefaultSweepBatch
	}
	if c.StrayGrace <= 0 {
		c.StrayGrace = config.DefaultStrayObjectGrace
	}
	return c
}

// SweepOptions select what a single sweep does.
type SweepOptions struct {
	DryRun    bool
	BatchSize int
	Stray     bool
}

// SweepResult summarizes one reconciler run.
type SweepResult struct {
	RunID           string        `json:"run_id"`
	CandidateCount  int           `json:"candidate_count"`
	DeletedCount    int           `json:"deleted_count"`
	SkippedCount    int           `json:"skipped_count"`
	FailedCount     int           `json:"failed_count"`
	ReclaimedBytes  int64         `json:"reclaimed_bytes"`
	StrayCandidates int           `json:"stray_candidates"`
	StrayDeleted    int           `json:"stray_deleted"`
	DryRun          bool          `json:"dry_run"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	Errors          []string      `json:"errors,omitempty"`
}

// DefaultSweepOptions returns the options used by the scheduled sweep.
func (s *StorageService) DefaultSweepOptions() SweepOptions {
	return SweepOptions{BatchSize: s.cfg.Sweep.BatchSize, Stray: s.cfg.Sweep.Stray}
}

// SweepOrphans deletes records no owner references, together with their objects.
// Each orphan is removed in its own transaction that commits only after the
// object delete succeeded, so a failure leaves the record for the next run.
// Per-item failures are counted in the result; only listing failures return an error.
func (s *StorageService) SweepOrphans(ctx context.Context, opts SweepOptions) (SweepResult, error) {
	started := s.now().UTC()
	result := SweepResult{RunID: uuid.NewString(), DryRun: opts.DryRun, StartedAt: started}
	logger := s.logger.With("run_id", result.RunID, "dry_run", opts.DryRun)

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = s.cfg.Sweep.BatchSize
	}

	var limiter *rate.Limiter
	if s.cfg.Sweep.DeletesPerSecond > 0 && !opts.DryRun {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.Sweep.DeletesPerSecond), 1)
	}

	var errs *multierror.Error
	finish := func(fatal error) (SweepResult, error) {
		result.Duration = s.now().Sub(started)
		if errs != nil {
			for _, err := range errs.Errors {
				result.Errors = append(result.Errors, err.Error())
			}
		}
		outcome := sweepResultOK
		switch {
		case fatal != nil:
			outcome = sweepResultError
		case errs.ErrorOrNil() != nil:
			outcome = sweepResultPartial
		}
		s.metrics.Sweep(outcome, result.DeletedCount, result.StrayDeleted, result.Duration.Seconds())
		fields := []any{
			"candidates", result.CandidateCount,
			"deleted", result.DeletedCount,
			"skipped", result.SkippedCount,
			"failed", result.FailedCount,
			"stray_candidates", result.StrayCandidates,
			"stray_deleted", result.StrayDeleted,
			"reclaimed_bytes", result.ReclaimedBytes,
			"duration_ms", result.Duration.Milliseconds(),
		}
		if fatal != nil {
			logger.Error("sweep aborted", append(fields, "error", fatal)...)
			return result, fatal
		}
		if err := errs.ErrorOrNil(); err != nil {
			logger.Warn("sweep finished with failures", append(fields, "error", err)...)
			return result, nil
		}
		logger.Info("sweep finished", fields...)
		return result, nil
	}

	after := ""
	for {
		blobs, err := s.meta.ListUnreferencedBlobs(ctx, after, batchSize)
		if err != nil {
			return finish(storeFailure(fmt.Errorf("list unreferenced: %w", err)))
		}
		if len(blobs) == 0 {
			break
		}
		after = blobs[len(blobs)-1].ID
		result.CandidateCount += len(blobs)

		for _, blob := range blobs {
			if opts.DryRun {
				result.ReclaimedBytes += blob.SizeBytes
				continue
			}
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return finish(err)
				}
			}
			key := blob.StorageKey
			deleted, err := s.meta.WithBlobDelete(ctx, blob.ID, func(ctx context.Context) error {
				return s.objects.Delete(ctx, key)
			})
			if err != nil {
				result.FailedCount++
				errs = multierror.Append(errs, fmt.Errorf("orphan %s: %w", blob.ID, err))
				continue
			}
			if !deleted {
				result.SkippedCount++
				continue
			}
			result.DeletedCount++
			result.ReclaimedBytes += blob.SizeBytes
		}
		if len(blobs) < batchSize {
			break
		}
	}

	if opts.Stray {
		if err := s.sweepStrayObjects(ctx, started, opts.DryRun, limiter, &result, &errs); err != nil {
			return finish(err)
		}
	}

	return finish(nil)
}

// sweepStrayObjects deletes objects that have no metadata row and are older
// than the grace period. Younger objects may belong to a create in flight.
func (s *StorageService) sweepStrayObjects(ctx context.Context, started time.Time, dryRun bool, limiter *rate.Limiter, result *SweepResult, errs **multierror.Error) error {
	cutoff := started.Add(-s.cfg.Sweep.StrayGrace)
	for _, family := range models.Families() {
		err := s.objects.List(ctx, family.KeyPrefix()+"/", func(info blobstore.ObjectInfo) error {
			if info.LastModified.IsZero() || info.LastModified.After(cutoff) {
				return nil
			}
			exists, err := s.meta.BlobExistsByKey(ctx, info.Key)
			if err != nil {
				return storeFailure(err)
			}
			if exists {
				return nil
			}
			result.StrayCandidates++
			if dryRun {
				result.ReclaimedBytes += info.Size
				return nil
			}
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
			}
			if err := s.objects.Delete(ctx, info.Key); err != nil {
				result.FailedCount++
				*errs = multierror.Append(*errs, fmt.Errorf("stray %s: %w", info.Key, err))
				return nil
			}
			result.StrayDeleted++
			result.ReclaimedBytes += info.Size
			return nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			*errs = multierror.Append(*errs, fmt.Errorf("list %s objects: %w", family, err))
		}
	}
	return nil
}
