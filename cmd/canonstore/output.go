package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"canonstore/internal/api"
	"canonstore/internal/format"
	"canonstore/internal/models"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

// outputFlags holds the global --json / --yaml selection.
type outputFlags struct {
	json bool
	yaml bool
}

// structured reports whether a machine-readable format was requested.
func (o *outputFlags) structured() bool {
	return o.json || o.yaml
}

func (o *outputFlags) apply() error {
	name := "json"
	if o.yaml {
		name = "yaml"
	}
	f, err := format.ForName(name)
	if err != nil {
		return err
	}
	outputFormatter = f
	return nil
}

func writeStructured(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeRecordDetail(rec models.BlobRecord) error {
	lines := []string{
		fmt.Sprintf("id: %s", rec.ID),
		fmt.Sprintf("family: %s", rec.Family),
		fmt.Sprintf("storage_key: %s", rec.StorageKey),
		fmt.Sprintf("content_type: %s", rec.ContentType),
		fmt.Sprintf("size_bytes: %d", rec.SizeBytes),
		fmt.Sprintf("digest_alg: %s", rec.DigestAlg),
		fmt.Sprintf("created_at: %s", formatTime(rec.CreatedAt)),
	}
	if rec.DisplayName != "" {
		lines = append(lines, fmt.Sprintf("display_name: %s", rec.DisplayName))
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeItemList(items []models.BlobSummary) error {
	for _, item := range items {
		if err := writePlain("%s %s %d bytes owners=%d %s\n", item.ID, item.ContentType, item.SizeBytes, item.OwnerCount, item.DisplayName); err != nil {
			return err
		}
	}
	return nil
}

func writeOwnerList(refs []models.OwnerReference) error {
	for _, ref := range refs {
		if err := writePlain("%s %s:%s (%s)\n", ref.ID, ref.OwnerKind, ref.OwnerID, formatTime(ref.CreatedAt)); err != nil {
			return err
		}
	}
	return nil
}

func writeSweepSummary(resp api.SweepResponse) error {
	mode := "dry run"
	if !resp.DryRun {
		mode = "applied"
	}
	if err := writePlain("%s: candidates=%d deleted=%d skipped=%d failed=%d reclaimed_bytes=%d stray_candidates=%d stray_deleted=%d duration_ms=%d\n",
		mode, resp.CandidateCount, resp.DeletedCount, resp.SkippedCount, resp.FailedCount,
		resp.ReclaimedBytes, resp.StrayCandidates, resp.StrayDeleted, resp.DurationMillis); err != nil {
		return err
	}
	for _, msg := range resp.Errors {
		if err := writePlain("  error: %s\n", msg); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
