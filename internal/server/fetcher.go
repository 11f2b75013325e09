package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"canonstore/internal/canon"
	"canonstore/internal/config"
	"canonstore/internal/models"
)

// errFetchTooLarge reports a remote body over the size cap.
var errFetchTooLarge = errors.New("remote file too large")

// FetchConfig configures URL ingestion.
type FetchConfig struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
	// Client overrides the HTTP client. Timeout is ignored when set.
	Client *http.Client
}

// Fetcher downloads remote files for item_from_web.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

func NewFetcher(cfg FetchConfig) *Fetcher {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = config.DefaultFetchTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = config.DefaultFetchAgent
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = config.DefaultMaxFileBytes
	}
	return &Fetcher{client: client, userAgent: userAgent, maxBytes: maxBytes}
}

// Fetch checks the remote media type with HEAD and then downloads the body.
// Servers that refuse HEAD are checked on the GET response instead.
func (f *Fetcher) Fetch(ctx context.Context, family models.Family, rawURL string) (Upload, error) {
	u, err := parseFetchURL(rawURL)
	if err != nil {
		return Upload{}, err
	}

	head, err := f.request(ctx, http.MethodHead, u)
	if err != nil {
		return Upload{}, err
	}
	head.Body.Close()
	headChecked := false
	switch {
	case head.StatusCode == http.StatusMethodNotAllowed || head.StatusCode == http.StatusNotImplemented:
	case head.StatusCode < 200 || head.StatusCode > 299:
		return Upload{}, fmt.Errorf("HEAD %s: status %d", u.Redacted(), head.StatusCode)
	default:
		if err := f.checkResponse(family, head); err != nil {
			return Upload{}, err
		}
		headChecked = true
	}

	resp, err := f.request(ctx, http.MethodGet, u)
	if err != nil {
		return Upload{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Upload{}, fmt.Errorf("GET %s: status %d", u.Redacted(), resp.StatusCode)
	}
	if !headChecked {
		if err := f.checkResponse(family, resp); err != nil {
			return Upload{}, err
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return Upload{}, fmt.Errorf("read %s: %w", u.Redacted(), err)
	}
	if int64(len(data)) > f.maxBytes {
		return Upload{}, fmt.Errorf("%w: more than %d bytes", errFetchTooLarge, f.maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = head.Header.Get("Content-Type")
	}
	return Upload{
		Data:        data,
		ContentType: contentType,
		Filename:    path.Base(u.Path),
	}, nil
}

func (f *Fetcher) request(ctx context.Context, method string, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u.Redacted(), err)
	}
	return resp, nil
}

func (f *Fetcher) checkResponse(family models.Family, resp *http.Response) error {
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		return fmt.Errorf("%w: remote did not declare a content type", canon.ErrUnsupportedMediaType)
	}
	if !canon.AcceptsType(family, contentType) {
		return fmt.Errorf("%w: %s is not accepted for %s", canon.ErrUnsupportedMediaType, contentType, family)
	}
	if resp.ContentLength > f.maxBytes {
		return fmt.Errorf("%w: %d bytes", errFetchTooLarge, resp.ContentLength)
	}
	return nil
}

func parseFetchURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url host is required")
	}
	return u, nil
}
