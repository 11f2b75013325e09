package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CANONSTORE_API_URL", "CANONSTORE_DB", "CANONSTORE_LOG_LEVEL", "CANONSTORE_STORAGE_BACKEND",
		"CANONSTORE_S3_ENDPOINT", "CANONSTORE_S3_ACCESS_KEY", "CANONSTORE_S3_SECRET_KEY",
		"CANONSTORE_S3_BUCKET", "CANONSTORE_JWT_SIGNING_KEY", configDirEnvKey, trustProjectConfigEnvKey,
	} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("expected default API URL, got %q", cfg.APIURL)
	}
	if cfg.DBPath != "" {
		t.Fatalf("expected empty db path, got %q", cfg.DBPath)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.Limits.MaxFileBytes != 20*1024*1024 || cfg.Limits.MaxFormBytes != 30*1024*1024 {
		t.Fatalf("unexpected size limits %+v", cfg.Limits)
	}
	if cfg.Limits.MaxBatchItems != 20 {
		t.Fatalf("expected batch limit 20, got %d", cfg.Limits.MaxBatchItems)
	}
	if cfg.Storage.Digest != "blake3" || cfg.Storage.Backend != "local" {
		t.Fatalf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.Reconciler.DailyAt != "00:00" || cfg.Reconciler.StrayObjectGrace.Duration != 24*time.Hour {
		t.Fatalf("unexpected reconciler defaults %+v", cfg.Reconciler)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".canonstore.toml")
	if err := os.WriteFile(path, []byte(`api_url = "http://localhost:9999"
log_level = "warn"

[storage]
backend = "s3"
endpoint = "minio:9000"
bucket = "canon"
path_style = true

[limits]
commit_timeout = "45s"

[reconciler]
daily_at = "03:30"
deletes_per_second = 2.5
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://localhost:9999" || cfg.LogLevel != "warn" {
		t.Fatalf("unexpected top-level values %+v", cfg)
	}
	if cfg.Storage.Backend != "s3" || cfg.Storage.Bucket != "canon" || !cfg.Storage.PathStyle {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Limits.CommitTimeout.Duration != 45*time.Second {
		t.Fatalf("expected 45s commit timeout, got %v", cfg.Limits.CommitTimeout)
	}
	if cfg.Limits.MaxFileBytes != DefaultMaxFileBytes {
		t.Fatalf("unset keys should keep defaults, got %d", cfg.Limits.MaxFileBytes)
	}
	if cfg.Reconciler.DailyAt != "03:30" || cfg.Reconciler.DeletesPerSecond != 2.5 {
		t.Fatalf("unexpected reconciler %+v", cfg.Reconciler)
	}
}

func TestLoadFileBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".canonstore.toml")
	if err := os.WriteFile(path, []byte("[limits]\ncommit_timeout = \"soon\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg := Default()
	if err := loadFile(path, &cfg); err == nil {
		t.Fatal("expected parse error for bad duration")
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFile("/nonexistent/path/.canonstore.toml", &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("defaults should be preserved")
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range []string{
		"api_url",
		"db_path",
		"log_level",
		"storage.backend",
		"limits.max_file_bytes",
		"reconciler.stray_object_grace",
		"auth.admin_token_hash",
	} {
		if !IsAllowedKey(key) {
			t.Fatalf("expected %q to be allowed", key)
		}
	}
	for _, key := range []string{"invalid", "storage.secret_key", "auth.jwt_signing_key"} {
		if IsAllowedKey(key) {
			t.Fatalf("expected %q to not be allowed", key)
		}
	}
}

func TestGetKey(t *testing.T) {
	cfg := Default()
	cfg.DBPath = "/tmp/test.db"
	cfg.Limits.MaxBatchItems = 7
	cfg.Reconciler.SweepStrayObjects = true

	tests := map[string]string{
		"api_url":                        DefaultAPIURL,
		"db_path":                        "/tmp/test.db",
		"limits.max_batch_items":         "7",
		"limits.commit_timeout":          "2m0s",
		"reconciler.sweep_stray_objects": "true",
		"reconciler.deletes_per_second":  "0",
	}
	for key, want := range tests {
		got, err := cfg.Get(key)
		if err != nil || got != want {
			t.Fatalf("Get(%q) = %q (err: %v), want %q", key, got, err, want)
		}
	}
	if _, err := cfg.Get("invalid"); err == nil {
		t.Fatal("expected error for invalid key")
	}
}

func TestSetKeyCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.toml")
	if err := SetKey(path, "api_url", "http://x:1"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://x:1" {
		t.Fatalf("expected api_url, got %q", cfg.APIURL)
	}
}

func TestSetKeyUpdatesExistingAndNested(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.toml")
	if err := os.WriteFile(path, []byte("api_url = \"http://keep\"\n[storage]\nbucket = \"old\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := SetKey(path, "storage.bucket", "new"); err != nil {
		t.Fatalf("set bucket: %v", err)
	}
	if err := SetKey(path, "reconciler.stray_object_grace", "36h"); err != nil {
		t.Fatalf("set grace: %v", err)
	}
	if err := SetKey(path, "limits.max_batch_items", "5"); err != nil {
		t.Fatalf("set batch: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Bucket != "new" {
		t.Fatalf("expected bucket 'new', got %q", cfg.Storage.Bucket)
	}
	if cfg.APIURL != "http://keep" {
		t.Fatalf("expected preserved api_url, got %q", cfg.APIURL)
	}
	if cfg.Reconciler.StrayObjectGrace.Duration != 36*time.Hour {
		t.Fatalf("expected 36h grace, got %v", cfg.Reconciler.StrayObjectGrace)
	}
	if cfg.Limits.MaxBatchItems != 5 {
		t.Fatalf("expected 5 batch items, got %d", cfg.Limits.MaxBatchItems)
	}
}

func TestSetKeyRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	tests := []struct{ key, value string }{
		{"invalid", "x"},
		{"limits.max_file_bytes", "-1"},
		{"storage.use_ssl", "maybe"},
		{"limits.commit_timeout", "forever"},
		{"reconciler.daily_at", "25:99"},
		{"reconciler.deletes_per_second", "-3"},
	}
	for _, tt := range tests {
		if err := SetKey(path, tt.key, tt.value); err == nil {
			t.Fatalf("expected error for %s=%s", tt.key, tt.value)
		}
	}
}

func TestParseDailyAt(t *testing.T) {
	h, m, err := ParseDailyAt("07:05")
	if err != nil || h != 7 || m != 5 {
		t.Fatalf("unexpected %d:%d (%v)", h, m, err)
	}
	if _, _, err := ParseDailyAt("7pm"); err == nil {
		t.Fatal("expected error")
	}
}

func TestConfigDirOverridePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configDirEnvKey, dir)

	globalPath, err := GlobalPath()
	if err != nil {
		t.Fatalf("global path: %v", err)
	}
	if globalPath != filepath.Join(dir, ".canonstore.toml") {
		t.Fatalf("unexpected global path: %s", globalPath)
	}

	projectPath, err := ProjectPath()
	if err != nil {
		t.Fatalf("project path: %v", err)
	}
	if projectPath != filepath.Join(dir, ".canonstore.toml") {
		t.Fatalf("unexpected project path: %s", projectPath)
	}
}

func TestLoadConfigDirOverride(t *testing.T) {
	clearEnv(t)
	configDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(configDir, ".canonstore.toml"), []byte("api_url = \"http://127.0.0.1:9001\"\n"), 0o644); err != nil {
		t.Fatalf("write override config: %v", err)
	}

	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspace, ".canonstore.toml"), []byte("api_url = \"http://ignored\"\n"), 0o644); err != nil {
		t.Fatalf("write workspace config: %v", err)
	}
	chdir(t, workspace)

	t.Setenv(configDirEnvKey, configDir)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://127.0.0.1:9001" {
		t.Fatalf("expected config-dir api_url override, got %q", cfg.APIURL)
	}
	if cfg.DBPath != filepath.Join(workspace, DefaultDBFileName) {
		t.Fatalf("expected default workspace db path, got %q", cfg.DBPath)
	}
	if cfg.Storage.LocalRoot != filepath.Join(workspace, DefaultStoreDir) {
		t.Fatalf("expected default workspace object dir, got %q", cfg.Storage.LocalRoot)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(configDirEnvKey, t.TempDir())
	t.Setenv("CANONSTORE_API_URL", "http://example.com:8080")
	t.Setenv("CANONSTORE_DB", "/tmp/override.db")
	t.Setenv("CANONSTORE_S3_BUCKET", "envbucket")
	t.Setenv("CANONSTORE_JWT_SIGNING_KEY", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://example.com:8080" {
		t.Fatalf("expected env override for API URL, got %q", cfg.APIURL)
	}
	if cfg.DBPath != "/tmp/override.db" {
		t.Fatalf("expected env override for DB path, got %q", cfg.DBPath)
	}
	if cfg.Storage.Bucket != "envbucket" || cfg.Auth.JWTSigningKey != "secret" {
		t.Fatalf("expected storage/auth env overrides, got %+v %+v", cfg.Storage, cfg.Auth)
	}
}

func TestLoadFallsBackToDefaultsWhenConfiguredEmpty(t *testing.T) {
	clearEnv(t)
	homeDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(homeDir, ".canonstore.toml"), []byte("log_level = \"\"\n[limits]\nmax_batch_items = 0\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	chdir(t, t.TempDir())
	t.Setenv("HOME", homeDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.Limits.MaxBatchItems != DefaultBatchItems {
		t.Fatalf("expected default batch limit, got %d", cfg.Limits.MaxBatchItems)
	}
}

func TestLoadProjectConfigTrust(t *testing.T) {
	clearEnv(t)
	homeDir := t.TempDir()
	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(homeDir, ".canonstore.toml"), []byte("log_level = \"warn\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, ".canonstore.toml"), []byte("log_level = \"debug\"\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}
	chdir(t, workspace)
	t.Setenv("HOME", homeDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" || cfg.TrustedProjectConfigPath != "" {
		t.Fatalf("project config must be ignored by default, got %q %q", cfg.LogLevel, cfg.TrustedProjectConfigPath)
	}

	t.Setenv(trustProjectConfigEnvKey, "not-a-bool")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("invalid trust value must not load project config, got %q", cfg.LogLevel)
	}

	t.Setenv(trustProjectConfigEnvKey, "true")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected trusted project config to apply, got %q", cfg.LogLevel)
	}
	if cfg.TrustedProjectConfigPath == "" {
		t.Fatal("expected trusted project path to be recorded")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.LocalRoot = "/tmp/objects"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	s3 := cfg
	s3.Storage.Backend = "s3"
	if err := s3.Validate(); err == nil {
		t.Fatal("s3 without endpoint should fail")
	}

	bad := cfg
	bad.Storage.Backend = "ftp"
	if err := bad.Validate(); err == nil {
		t.Fatal("unknown backend should fail")
	}

	tz := cfg
	tz.Reconciler.Timezone = "Mars/Olympus"
	if err := tz.Validate(); err == nil {
		t.Fatal("unknown timezone should fail")
	}
}
