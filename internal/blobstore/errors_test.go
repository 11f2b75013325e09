package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"not found", ErrNotFound, false},
		{"canceled", fmt.Errorf("wrapped: %w", context.Canceled), false},
		{"transport", &StoreError{Op: OpPut, Err: errors.New("connection reset")}, true},
		{"503", &StoreError{Op: OpPut, StatusCode: 503, Service: true, Err: errors.New("slow down")}, true},
		{"429", &StoreError{Op: OpPut, StatusCode: 429, Service: true, Err: errors.New("throttled")}, true},
		{"408", &StoreError{Op: OpPut, StatusCode: 408, Service: true, Err: errors.New("timeout")}, true},
		{"403", &StoreError{Op: OpPut, StatusCode: 403, Service: true, Err: errors.New("denied")}, false},
		{"local fs", &StoreError{Op: OpPut, Service: true, Err: errors.New("disk full")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyS3(t *testing.T) {
	notFound := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound, Message: "missing"}
	if err := classifyS3(OpOpen, "k", notFound); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	denied := minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden, Message: "denied"}
	err := classifyS3(OpPut, "k", denied)
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected StoreError, got %T", err)
	}
	if !se.Service || se.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected classification %+v", se)
	}
	if IsTransient(err) {
		t.Fatal("403 must be terminal")
	}

	unavailable := minio.ErrorResponse{Code: "SlowDown", StatusCode: http.StatusServiceUnavailable}
	if !IsTransient(classifyS3(OpPut, "k", unavailable)) {
		t.Fatal("503 must be transient")
	}

	transport := classifyS3(OpPut, "k", errors.New("dial tcp: connection refused"))
	if !errors.As(transport, &se) || se.Service {
		t.Fatalf("expected transport StoreError, got %#v", transport)
	}
	if !IsTransient(transport) {
		t.Fatal("transport failure must be transient")
	}
	if IsServiceError(transport) {
		t.Fatal("transport failure is not a service error")
	}
}
