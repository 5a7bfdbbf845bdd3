package courseapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"course-backend/internal/composer"
)

type Options struct {
	BaseURL string

	Timeout       time.Duration
	UploadTimeout time.Duration
	MaxRetries    int

	HTTPClient *http.Client
}

// Client talks to the course API. It implements composer.UploadGateway,
// composer.OrphanCleaner and composer.Persistence.
type Client struct {
	baseURL       string
	timeout       time.Duration
	uploadTimeout time.Duration
	maxRetries    int
	httpClient    *http.Client
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("baseURL required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse baseURL: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL:       baseURL,
		timeout:       timeout,
		uploadTimeout: opts.UploadTimeout,
		maxRetries:    maxRetries,
		httpClient:    hc,
	}, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// RequestUploadDestination asks for a destination scoped to sectionID; 0 means a section not yet created.
func (c *Client) RequestUploadDestination(ctx context.Context, sectionID int64, f composer.File) (composer.UploadDestination, error) {
	scope := "new"
	if sectionID > 0 {
		scope = strconv.FormatInt(sectionID, 10)
	}
	req := destinationRequest{
		FileName:    uploadName(f),
		ContentType: f.MediaType(),
		SizeBytes:   f.Size,
	}
	var resp destinationResponse
	if err := c.doJSON(ctx, http.MethodPost, "/sections/"+scope+"/uploads", req, &resp); err != nil {
		return composer.UploadDestination{}, err
	}
	if resp.UploadURL == "" || resp.FinalURL == "" {
		return composer.UploadDestination{}, errors.New("upload destination missing urls")
	}
	return composer.UploadDestination{UploadTarget: resp.UploadURL, FinalURL: resp.FinalURL, Key: resp.Key}, nil
}

// Upload streams the file to the destination with a single PUT.
func (c *Client) Upload(ctx context.Context, dest composer.UploadDestination, f composer.File) error {
	body, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer body.Close()

	if c.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.uploadTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, dest.UploadTarget, body)
	if err != nil {
		return err
	}
	if f.Size > 0 {
		req.ContentLength = f.Size
	}
	if ct := f.MediaType(); ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, raw)
	}
	return nil
}

// DiscardUpload deletes an uploaded object that never got referenced.
func (c *Client) DiscardUpload(ctx context.Context, dest composer.UploadDestination) error {
	if dest.Key == "" {
		return nil
	}
	err := c.doJSON(ctx, http.MethodDelete, "/uploads/objects/"+dest.Key, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) CreateSection(ctx context.Context, fields composer.SectionFields) (int64, error) {
	var resp sectionResponse
	path := "/courses/" + strconv.FormatInt(fields.CourseID, 10) + "/sections"
	if err := c.doJSON(ctx, http.MethodPost, path, toSectionRequest(fields), &resp); err != nil {
		return 0, err
	}
	if resp.ID <= 0 {
		return 0, errors.New("create section returned no id")
	}
	return resp.ID, nil
}

func (c *Client) UpdateSection(ctx context.Context, sectionID int64, fields composer.SectionFields) error {
	return c.doJSON(ctx, http.MethodPut, sectionPath(sectionID), toSectionRequest(fields), nil)
}

// SyncResources sends the whole reconciliation in one call. POSTs are never retried.
func (c *Client) SyncResources(ctx context.Context, sectionID int64, req composer.SyncRequest) (composer.SyncResult, error) {
	var resp syncResponse
	if err := c.doJSON(ctx, http.MethodPost, sectionPath(sectionID)+"/resources/sync", toSyncRequest(req), &resp); err != nil {
		return composer.SyncResult{}, err
	}
	out := composer.SyncResult{Created: make([]composer.CreatedResource, 0, len(resp.Created))}
	for _, cr := range resp.Created {
		out.Created = append(out.Created, composer.CreatedResource{TempID: cr.TempID, ID: cr.ID})
	}
	return out, nil
}

func (c *Client) FetchResourcesForSection(ctx context.Context, sectionID int64) ([]composer.PersistedResource, error) {
	var resp []resourceResponse
	if err := c.doJSON(ctx, http.MethodGet, sectionPath(sectionID)+"/resources", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]composer.PersistedResource, 0, len(resp))
	for _, r := range resp {
		out = append(out, composer.PersistedResource{
			ID:          r.ID,
			Order:       r.Order,
			Title:       r.Title,
			Description: r.Description,
			Status:      composer.Status(r.Status),
			MediaURL:    r.MediaURL,
		})
	}
	return out, nil
}

// GetSection returns the section header an edit session starts from.
func (c *Client) GetSection(ctx context.Context, sectionID int64) (composer.SectionSnapshot, error) {
	var resp sectionResponse
	if err := c.doJSON(ctx, http.MethodGet, sectionPath(sectionID), nil, &resp); err != nil {
		return composer.SectionSnapshot{}, err
	}
	return resp.toSnapshot(), nil
}

func (c *Client) ListSections(ctx context.Context, courseID int64) ([]composer.SectionSnapshot, error) {
	var resp []sectionResponse
	if err := c.doJSON(ctx, http.MethodGet, "/courses/"+strconv.FormatInt(courseID, 10)+"/sections", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]composer.SectionSnapshot, 0, len(resp))
	for _, s := range resp {
		out = append(out, s.toSnapshot())
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	ctx2, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	retries := c.maxRetries
	if method == http.MethodPost {
		retries = 0
	}

	var lastErr error
	backoff := 250 * time.Millisecond
	for attempt := 0; attempt <= retries; attempt++ {
		if ctx2.Err() != nil {
			return ctx2.Err()
		}

		req, err := http.NewRequestWithContext(ctx2, method, c.baseURL+path, bytes.NewReader(buf.Bytes()))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
			_ = resp.Body.Close()
			if readErr != nil {
				return readErr
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				apiErr := parseAPIError(resp.StatusCode, raw)
				if !apiErr.retryable() {
					return apiErr
				}
				lastErr = apiErr
			} else {
				if out == nil || len(bytes.TrimSpace(raw)) == 0 {
					return nil
				}
				return json.Unmarshal(raw, out)
			}
		}

		if attempt < retries {
			select {
			case <-ctx2.Done():
				return ctx2.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	if lastErr == nil {
		lastErr = errors.New("request failed")
	}
	return lastErr
}

func sectionPath(id int64) string {
	return "/sections/" + strconv.FormatInt(id, 10)
}

func uploadName(f composer.File) string {
	if f.Name != "" {
		return f.Name
	}
	return filepath.Base(f.Path)
}
