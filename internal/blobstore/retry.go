package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds retries of transient object-store failures.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     4,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

// Retrying wraps an ObjectStore and retries transient failures with exponential backoff.
// Terminal failures surface immediately.
type Retrying struct {
	next     ObjectStore
	policy   RetryPolicy
	observer Observer
	logger   *slog.Logger
}

// NewRetrying wraps next. observer and logger may be nil.
func NewRetrying(next ObjectStore, policy RetryPolicy, observer Observer, logger *slog.Logger) *Retrying {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = DefaultRetryPolicy.MaxInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{next: next, policy: policy, observer: observer, logger: logger.With("component", "object_store")}
}

func (r *Retrying) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	seeker, rewindable := body.(io.Seeker)
	first := true
	return r.do(ctx, OpPut, key, func() error {
		if !first {
			if !rewindable {
				return backoff.Permanent(fmt.Errorf("put %q: body cannot be replayed", key))
			}
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return backoff.Permanent(err)
			}
		}
		first = false
		return r.next.Put(ctx, key, body, size, contentType)
	})
}

func (r *Retrying) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := r.do(ctx, OpOpen, key, func() error {
		var err error
		rc, err = r.next.Open(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (r *Retrying) Delete(ctx context.Context, key string) error {
	return r.do(ctx, OpDelete, key, func() error {
		return r.next.Delete(ctx, key)
	})
}

// List is not retried because fn may already have observed objects.
func (r *Retrying) List(ctx context.Context, prefix string, fn func(ObjectInfo) error) error {
	err := r.next.List(ctx, prefix, fn)
	r.observe(OpList, err)
	return err
}

func (r *Retrying) do(ctx context.Context, op, key string, call func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.policy.InitialInterval
	eb.MaxInterval = r.policy.MaxInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.policy.MaxAttempts-1)), ctx)

	operation := func() error {
		err := call()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		if r.observer != nil {
			r.observer.ObjectStoreRetry(op)
		}
		r.logger.Warn("object store call failed, retrying", "op", op, "key", key, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(operation, policy, notify)
	r.observe(op, err)
	return err
}

func (r *Retrying) observe(op string, err error) {
	if r.observer == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	r.observer.ObjectStoreOp(op, result)
}

var _ ObjectStore = (*Retrying)(nil)
var _ ObjectStore = (*LocalStore)(nil)
var _ ObjectStore = (*S3Store)(nil)
