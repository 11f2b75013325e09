package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"canonstore/internal/blobstore"
	"canonstore/internal/config"
	"canonstore/internal/metrics"
	"canonstore/internal/models"
	"canonstore/internal/server"
	"canonstore/internal/store"
)

func newCLITestServer(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("CANONSTORE_API_TOKEN", "")
	t.Setenv("CANONSTORE_ADMIN_TOKEN", "")
	t.Setenv(logLevelEnvKey, "")

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "meta.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	objects, err := blobstore.NewLocalStore(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatalf("open object store: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := server.NewStorageService(st, objects, server.ServiceConfig{}, metrics.New(), logger)
	srv := server.New("127.0.0.1:0", svc, server.Options{Logger: logger})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.APIURL = ts.URL
	cfg.DBPath = dbPath
	return &cfg
}

func runCLI(t *testing.T, cfg *config.Config, args ...string) string {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	stdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = stdout }()

	cmd := newRootCmd(cfg)
	cmd.SetArgs(args)
	runErr := cmd.Execute()

	_ = w.Close()
	out, _ := io.ReadAll(r)
	_ = r.Close()
	if runErr != nil {
		t.Fatalf("canonstore %s: %v", strings.Join(args, " "), runErr)
	}
	return string(out)
}

func TestCLIItemLifecycle(t *testing.T) {
	cfg := newCLITestServer(t)

	path := filepath.Join(t.TempDir(), "book.pdf")
	data := []byte("%PDF-1.7\n1 0 obj\n<< >>\nendobj\ntrailer\n<<>>\n%%EOF\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	id := strings.TrimSpace(runCLI(t, cfg, "put", "--family", "novel", path))
	if !models.IsValidDigest(id) {
		t.Fatalf("expected a digest id, got %q", id)
	}
	if again := strings.TrimSpace(runCLI(t, cfg, "put", "--family", "novel", path)); again != id {
		t.Fatalf("expected dedup to return %s, got %s", id, again)
	}

	var rec models.BlobRecord
	if err := json.Unmarshal([]byte(runCLI(t, cfg, "--json", "show", "--family", "novel", id)), &rec); err != nil {
		t.Fatalf("decode show output: %v", err)
	}
	if rec.ID != id || rec.StorageKey != "novel/"+id+".pdf" || rec.SizeBytes != int64(len(data)) {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if got := runCLI(t, cfg, "cat", "--family", "novel", id); got != string(data) {
		t.Fatalf("cat returned %q", got)
	}

	refID := strings.TrimSpace(runCLI(t, cfg, "owner", "attach", "--family", "novel", id, "catalog_item", "9"))
	listed := runCLI(t, cfg, "--yaml", "owner", "ls", "--family", "novel", id)
	if !strings.Contains(listed, refID) || !strings.Contains(listed, "owner_kind: catalog_item") {
		t.Fatalf("unexpected owner listing:\n%s", listed)
	}
	if listing := runCLI(t, cfg, "ls", "--family", "novel"); !strings.Contains(listing, id) || !strings.Contains(listing, "owners=1") {
		t.Fatalf("unexpected item listing:\n%s", listing)
	}
	runCLI(t, cfg, "owner", "detach", "--family", "novel", id, refID)

	if out := runCLI(t, cfg, "rm", "--family", "novel", id); !strings.Contains(out, "deleted "+id) {
		t.Fatalf("unexpected rm output: %q", out)
	}
}

func TestCLIRejectsConflictingOutputFlags(t *testing.T) {
	cfg := config.Default()
	cmd := newRootCmd(&cfg)
	cmd.SetArgs([]string{"--json", "--yaml", "config", "get", "api_url"})
	cmd.SetOut(io.Discard)
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected --json and --yaml to be mutually exclusive")
	}
}

func TestCLIPutRequiresInput(t *testing.T) {
	cfg := config.Default()
	cmd := newRootCmd(&cfg)
	cmd.SetArgs([]string{"put"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "at least one file") {
		t.Fatalf("expected missing input error, got %v", err)
	}
}
