package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type keyKind int

const (
	kindString keyKind = iota
	kindInt
	kindFloat
	kindBool
	kindDuration
)

type keySpec struct {
	name string
	kind keyKind
	get  func(c *Config) string
}

func durationString(d Duration) string { return d.Duration.String() }

var keySpecs = []keySpec{
	{"api_url", kindString, func(c *Config) string { return c.APIURL }},
	{"db_path", kindString, func(c *Config) string { return c.DBPath }},
	{"log_level", kindString, func(c *Config) string { return c.LogLevel }},
	{"storage.backend", kindString, func(c *Config) string { return c.Storage.Backend }},
	{"storage.local_root", kindString, func(c *Config) string { return c.Storage.LocalRoot }},
	{"storage.endpoint", kindString, func(c *Config) string { return c.Storage.Endpoint }},
	{"storage.region", kindString, func(c *Config) string { return c.Storage.Region }},
	{"storage.bucket", kindString, func(c *Config) string { return c.Storage.Bucket }},
	{"storage.use_ssl", kindBool, func(c *Config) string { return strconv.FormatBool(c.Storage.UseSSL) }},
	{"storage.path_style", kindBool, func(c *Config) string { return strconv.FormatBool(c.Storage.PathStyle) }},
	{"storage.digest", kindString, func(c *Config) string { return c.Storage.Digest }},
	{"limits.max_file_bytes", kindInt, func(c *Config) string { return strconv.FormatInt(c.Limits.MaxFileBytes, 10) }},
	{"limits.max_form_bytes", kindInt, func(c *Config) string { return strconv.FormatInt(c.Limits.MaxFormBytes, 10) }},
	{"limits.multipart_max_memory", kindInt, func(c *Config) string { return strconv.FormatInt(c.Limits.MultipartMaxMemory, 10) }},
	{"limits.max_batch_items", kindInt, func(c *Config) string { return strconv.Itoa(c.Limits.MaxBatchItems) }},
	{"limits.commit_timeout", kindDuration, func(c *Config) string { return durationString(c.Limits.CommitTimeout) }},
	{"retry.max_attempts", kindInt, func(c *Config) string { return strconv.Itoa(c.Retry.MaxAttempts) }},
	{"retry.initial_interval", kindDuration, func(c *Config) string { return durationString(c.Retry.InitialInterval) }},
	{"retry.max_interval", kindDuration, func(c *Config) string { return durationString(c.Retry.MaxInterval) }},
	{"reconciler.enabled", kindBool, func(c *Config) string { return strconv.FormatBool(c.Reconciler.Enabled) }},
	{"reconciler.daily_at", kindString, func(c *Config) string { return c.Reconciler.DailyAt }},
	{"reconciler.timezone", kindString, func(c *Config) string { return c.Reconciler.Timezone }},
	{"reconciler.batch_size", kindInt, func(c *Config) string { return strconv.Itoa(c.Reconciler.BatchSize) }},
	{"reconciler.deletes_per_second", kindFloat, func(c *Config) string {
		return strconv.FormatFloat(c.Reconciler.DeletesPerSecond, 'f', -1, 64)
	}},
	{"reconciler.sweep_stray_objects", kindBool, func(c *Config) string { return strconv.FormatBool(c.Reconciler.SweepStrayObjects) }},
	{"reconciler.stray_object_grace", kindDuration, func(c *Config) string { return durationString(c.Reconciler.StrayObjectGrace) }},
	{"fetch.timeout", kindDuration, func(c *Config) string { return durationString(c.Fetch.Timeout) }},
	{"fetch.user_agent", kindString, func(c *Config) string { return c.Fetch.UserAgent }},
	{"auth.admin_token_hash", kindString, func(c *Config) string { return c.Auth.AdminTokenHash }},
	{"auth.token_ttl", kindDuration, func(c *Config) string { return durationString(c.Auth.TokenTTL) }},
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	keys := make([]string, 0, len(keySpecs))
	for _, spec := range keySpecs {
		keys = append(keys, spec.name)
	}
	return keys
}

func lookupKey(key string) (keySpec, bool) {
	for _, spec := range keySpecs {
		if spec.name == key {
			return spec, true
		}
	}
	return keySpec{}, false
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	_, ok := lookupKey(key)
	return ok
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	spec, ok := lookupKey(key)
	if !ok {
		return "", fmt.Errorf("unknown key: %s", key)
	}
	return spec.get(c), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	spec, ok := lookupKey(key)
	if !ok {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(spec, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

func parseSetValue(spec keySpec, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch spec.kind {
	case kindInt:
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", spec.name)
		}
		return parsed, nil
	case kindFloat:
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative number", spec.name)
		}
		return parsed, nil
	case kindBool:
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", spec.name)
		}
		return parsed, nil
	case kindDuration:
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration like 30s", spec.name)
		}
		return parsed.String(), nil
	default:
		if spec.name == "reconciler.daily_at" {
			if _, _, err := ParseDailyAt(value); err != nil {
				return nil, err
			}
		}
		return value, nil
	}
}

// ParseDailyAt parses an "HH:MM" wall-clock time.
func ParseDailyAt(value string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("daily_at must be HH:MM, got %q", value)
	}
	return t.Hour(), t.Minute(), nil
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}
