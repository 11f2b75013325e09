package main

import (
	"net"
	"testing"

	"canonstore/internal/api"
)

func TestFormatCLIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "network",
			err:  &net.DNSError{Err: "dial tcp: connection refused", Name: "127.0.0.1", IsTemporary: true},
			want: "hint: ensure a canonstore server is running at CANONSTORE_API_URL.",
		},
		{
			name: "unknown service",
			err:  &api.APIError{Status: 404, Message: "api error: 404 Not Found"},
			want: "hint: verify CANONSTORE_API_URL points to a canonstore server.",
		},
		{
			name: "auth",
			err:  &api.APIError{Status: 403, Code: "forbidden", Message: "forbidden"},
			want: "hint: verify CANONSTORE_API_TOKEN and CANONSTORE_ADMIN_TOKEN configuration.",
		},
		{
			name: "media type",
			err:  &api.APIError{Status: 422, Code: "unsupported_media_type", Message: "unsupported media type"},
			want: "hint: images must be image/* and novels must be application/pdf; check --family.",
		},
		{
			name: "dependency",
			err:  &api.APIError{Status: 424, Code: "failed_dependency", Message: "object store rejected put"},
			want: "hint: the object store rejected or did not answer the request; check storage.* settings.",
		},
		{
			name: "referenced item",
			err:  &api.APIError{Status: 409, Code: "conflict", Message: "item is referenced"},
			want: "hint: detach owner references first (canonstore owner ls <id>).",
		},
		{
			name: "internal",
			err:  &api.APIError{Status: 500, Code: "internal", Message: "internal error"},
			want: "hint: server returned an internal error; check server logs for details.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := formatCLIError(tt.err)
			if !containsLine(lines, tt.want) {
				t.Fatalf("expected %q, got %v", tt.want, lines)
			}
		})
	}
}

func TestIsLoopbackURL(t *testing.T) {
	tests := map[string]bool{
		"http://127.0.0.1:7480":      true,
		"http://localhost:7480":      true,
		"http://[::1]:7480":          true,
		"https://store.example:7480": false,
		"http://10.1.2.3:7480":       false,
	}
	for raw, want := range tests {
		if got := isLoopbackURL(raw); got != want {
			t.Fatalf("isLoopbackURL(%q) = %v, want %v", raw, got, want)
		}
	}
}

func containsLine(lines []string, expected string) bool {
	for _, line := range lines {
		if line == expected {
			return true
		}
	}
	return false
}
