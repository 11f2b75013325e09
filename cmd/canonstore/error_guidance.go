package main

import (
	"context"
	"errors"
	"net"

	"canonstore/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized", "forbidden":
			lines = append(lines, "hint: verify CANONSTORE_API_TOKEN and CANONSTORE_ADMIN_TOKEN configuration.")
		case "unsupported_media_type":
			lines = append(lines, "hint: images must be image/* and novels must be application/pdf; check --family.")
		case "failed_dependency", "bad_gateway":
			lines = append(lines, "hint: the object store rejected or did not answer the request; check storage.* settings.")
		case "not_implemented":
			lines = append(lines, "hint: token issuance needs CANONSTORE_JWT_SIGNING_KEY on the server.")
		case "conflict":
			lines = append(lines, "hint: detach owner references first (canonstore owner ls <id>).")
		case "resource_exhausted":
			lines = append(lines, "hint: retry shortly or reduce concurrent uploads.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify CANONSTORE_API_URL points to a canonstore server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase CANONSTORE_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a canonstore server is running at CANONSTORE_API_URL.",
			"hint: start local server manually with: canonstore srv",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
