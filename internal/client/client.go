// Package client talks to the LoRA Studio API on behalf of the lora CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kiranshivaraju/lorastudio/internal/api/response"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

// Sentinel errors for API client failures.
var (
	ErrAPIUnreachable = errors.New("api unreachable")
	ErrAPITimeout     = errors.New("api request timeout")
	ErrAPIRejected    = errors.New("api rejected request")
)

const userAgent = "lora-cli"

// Client is the interface for the LoRA Studio API.
type Client interface {
	CreateJob(ctx context.Context, cfg models.TrainingConfig) (*models.Job, error)
	ActiveJob(ctx context.Context) (*models.Job, error)
	GetJob(ctx context.Context, id models.JobID) (*models.Job, error)
	ListJobs(ctx context.Context, q ListQuery) (*JobPage, error)
	RequestUploads(ctx context.Context, count int, contentType string) ([]models.UploadTarget, error)
	Me(ctx context.Context) (*Account, error)
	Ready(ctx context.Context) error
}

// ListQuery filters job history.
type ListQuery struct {
	Page   int
	Limit  int
	Status models.JobStatus
}

// JobPage is one page of job history.
type JobPage struct {
	Jobs []*models.Job
	Meta response.PaginationMeta
}

// Account is the authenticated user and the scopes of the key in use.
type Account struct {
	models.User
	Scopes []string `json:"scopes"`
}

// APIError is a non-2xx response from the API. It matches ErrAPIRejected
// for client errors and ErrAPIUnreachable for server errors.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status >= http.StatusInternalServerError {
		return ErrAPIUnreachable
	}
	return ErrAPIRejected
}

// HTTPClient implements Client over the JSON API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a new API client. baseURL must not end with a slash.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CreateJob(ctx context.Context, cfg models.TrainingConfig) (*models.Job, error) {
	return fetch[*models.Job](ctx, c, http.MethodPost, "/api/v1/jobs", cfg)
}

// ActiveJob returns the caller's current job, or nil when the API reports none.
func (c *HTTPClient) ActiveJob(ctx context.Context) (*models.Job, error) {
	return fetch[*models.Job](ctx, c, http.MethodGet, "/api/v1/jobs/active", nil)
}

func (c *HTTPClient) GetJob(ctx context.Context, id models.JobID) (*models.Job, error) {
	return fetch[*models.Job](ctx, c, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id.String()), nil)
}

func (c *HTTPClient) ListJobs(ctx context.Context, q ListQuery) (*JobPage, error) {
	params := url.Values{}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Status != "" {
		params.Set("status", string(q.Status))
	}
	path := "/api/v1/jobs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env response.CollectionEnvelope[*models.Job]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding job list: %w", err)
	}
	if env.Data == nil {
		env.Data = []*models.Job{}
	}
	return &JobPage{Jobs: env.Data, Meta: env.Meta}, nil
}

func (c *HTTPClient) RequestUploads(ctx context.Context, count int, contentType string) ([]models.UploadTarget, error) {
	body := map[string]any{"count": count, "contentType": contentType}
	return fetch[[]models.UploadTarget](ctx, c, http.MethodPost, "/api/v1/uploads", body)
}

func (c *HTTPClient) Me(ctx context.Context) (*Account, error) {
	return fetch[*Account](ctx, c, http.MethodGet, "/api/v1/me", nil)
}

// Ready reports whether the API and its dependencies are healthy.
func (c *HTTPClient) Ready(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/health", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// fetch sends a request and decodes the data member of the envelope.
func fetch[T any](ctx context.Context, c *HTTPClient, method, path string, body any) (T, error) {
	var zero T
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	var env response.Envelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return zero, fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return env.Data, nil
}

// do sends the request and returns the response only for 2xx statuses.
// The caller closes the body.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq, body != nil)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func (c *HTTPClient) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var env response.ErrorEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrAPITimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrAPITimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrAPIUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
