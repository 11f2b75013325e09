package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"canonstore/internal/models"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	httpTimeoutEnvKey  = "CANONSTORE_HTTP_TIMEOUT"
	apiTokenEnvKey     = "CANONSTORE_API_TOKEN"
	adminTokenEnvKey   = "CANONSTORE_ADMIN_TOKEN"
)

// UploadFile is one file sent in a multipart upload.
type UploadFile struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Client is a simple HTTP client for the canonstore API.
type Client struct {
	baseURL    string
	http       *http.Client
	authToken  string
	adminToken string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: httpTimeoutFromEnv()},
		authToken:  strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}
}

// WithTokens overrides the tokens read from the environment. Empty values keep the current token.
func (c *Client) WithTokens(authToken, adminToken string) *Client {
	if v := strings.TrimSpace(authToken); v != "" {
		c.authToken = v
	}
	if v := strings.TrimSpace(adminToken); v != "" {
		c.adminToken = v
	}
	return c
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func itemPath(family models.Family, parts ...string) string {
	path := "/storage/" + url.PathEscape(string(family))
	for _, part := range parts {
		path += "/" + url.PathEscape(part)
	}
	return path
}

// Upload stores a single file.
func (c *Client) Upload(ctx context.Context, family models.Family, file UploadFile) (IDResponse, error) {
	var resp IDResponse
	err := c.postMultipart(ctx, itemPath(family, "item"), "file", []UploadFile{file}, &resp)
	return resp, err
}

// UploadMulti stores a batch of files and returns their ids in input order.
func (c *Client) UploadMulti(ctx context.Context, family models.Family, files []UploadFile) (IDsResponse, error) {
	var resp IDsResponse
	err := c.postMultipart(ctx, itemPath(family, "item_multi"), "files", files, &resp)
	return resp, err
}

// UploadFromURL asks the server to fetch and store a URL.
func (c *Client) UploadFromURL(ctx context.Context, family models.Family, rawURL string) (IDResponse, error) {
	var resp IDResponse
	err := c.doText(ctx, itemPath(family, "item_from_web"), rawURL, &resp)
	return resp, err
}

// UploadFromURLs asks the server to fetch and store several URLs as one batch.
func (c *Client) UploadFromURLs(ctx context.Context, family models.Family, urls []string) (IDsResponse, error) {
	var resp IDsResponse
	err := c.doText(ctx, itemPath(family, "item_from_web_multi"), strings.Join(urls, ","), &resp)
	return resp, err
}

// ListItems returns the newest items of family. limit <= 0 uses the server default.
func (c *Client) ListItems(ctx context.Context, family models.Family, limit int) ([]models.BlobSummary, error) {
	var resp []models.BlobSummary
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	err := c.do(ctx, http.MethodGet, itemPath(family, "items"), query, nil, &resp)
	return resp, err
}

func (c *Client) GetItem(ctx context.Context, family models.Family, id string) (models.BlobRecord, error) {
	var resp models.BlobRecord
	err := c.do(ctx, http.MethodGet, itemPath(family, "item", id), nil, nil, &resp)
	return resp, err
}

// Content streams the stored bytes of an item to w.
func (c *Client) Content(ctx context.Context, family models.Family, id string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+itemPath(family, "item", id, "content"), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *Client) DeleteItem(ctx context.Context, family models.Family, id string) (IDResponse, error) {
	var resp IDResponse
	err := c.do(ctx, http.MethodDelete, itemPath(family, "item", id), nil, nil, &resp)
	return resp, err
}

func (c *Client) ListOwners(ctx context.Context, family models.Family, id string) ([]models.OwnerReference, error) {
	var resp []models.OwnerReference
	err := c.do(ctx, http.MethodGet, itemPath(family, "item", id, "owners"), nil, nil, &resp)
	return resp, err
}

func (c *Client) AttachOwner(ctx context.Context, family models.Family, id string, req OwnerAttachRequest) (models.OwnerReference, error) {
	var resp models.OwnerReference
	err := c.do(ctx, http.MethodPost, itemPath(family, "item", id, "owners"), nil, req, &resp)
	return resp, err
}

func (c *Client) DetachOwner(ctx context.Context, family models.Family, id, refID string) (IDResponse, error) {
	var resp IDResponse
	err := c.do(ctx, http.MethodDelete, itemPath(family, "item", id, "owners", refID), nil, nil, &resp)
	return resp, err
}

// Sweep runs the orphan reconciler. confirm is required unless req.DryRun is set.
func (c *Client) Sweep(ctx context.Context, req SweepRequest, confirm bool) (SweepResponse, error) {
	var resp SweepResponse
	payload, err := json.Marshal(req)
	if err != nil {
		return resp, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/admin/sweep", bytes.NewReader(payload))
	if err != nil {
		return resp, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if confirm {
		httpReq.Header.Set("X-Confirm", "true")
	}
	err = c.send(httpReq, &resp)
	return resp, err
}

func (c *Client) SweepStatus(ctx context.Context) (SweepStatusResponse, error) {
	var resp SweepStatusResponse
	err := c.do(ctx, http.MethodGet, "/admin/sweep/status", nil, nil, &resp)
	return resp, err
}

func (c *Client) CreateToken(ctx context.Context, req TokenCreateRequest) (TokenResponse, error) {
	var resp TokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/create_token", nil, req, &resp)
	return resp, err
}

// ValidateToken checks a token against the server. An invalid token is an *APIError with status 403.
func (c *Client) ValidateToken(ctx context.Context, token string) (TokenValidateResponse, error) {
	var resp TokenValidateResponse
	err := c.doText(ctx, "/auth/validate_token", bearer(token), &resp)
	return resp, err
}

func (c *Client) postMultipart(ctx context.Context, path, field string, files []UploadFile, out any) error {
	if len(files) == 0 {
		return errors.New("at least one file is required")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, file := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, file.Name))
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := mw.CreatePart(header)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, file.Body); err != nil {
			return fmt.Errorf("read %s: %w", file.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req, out)
}

func (c *Client) doText(ctx context.Context, path, text string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(text))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return c.send(req, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	c.setAuthHeader(req)
	c.setAdminHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func bearer(token string) string {
	token = strings.TrimSpace(token)
	if token == "" || strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return token
	}
	return "Bearer " + token
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.authToken == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", bearer(c.authToken))
}

func (c *Client) setAdminHeader(req *http.Request) {
	if c.adminToken == "" || req == nil {
		return
	}
	req.Header.Set("X-Admin-Token", c.adminToken)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
