package replicate

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
	"strings"
	"time"
)

const (
	// CreateTimeout bounds a single job-creation call.
	CreateTimeout = 25 * time.Second
	// StatusTimeout bounds a single status read.
	StatusTimeout = 15 * time.Second
	// PingTimeout bounds the check-env connection test.
	PingTimeout = 8 * time.Second
)

// ErrTimeout is returned when a vendor call does not answer within its
// per-call timeout. Callers may retry.
var ErrTimeout = errors.New("replicate: request timed out")

// APIError is a non-2xx answer from the Replicate API.
type APIError struct {
	StatusCode int
	Detail     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("replicate: status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("replicate: status %d", e.StatusCode)
}

type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

type createRequest struct {
	Version string         `json:"version,omitempty"`
	Input   map[string]any `json:"input"`
}

type errorBody struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func NewClient(baseURL, apiToken string) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient swaps the underlying HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// CreatePrediction starts a job for the given model reference. A reference
// of the form "owner/name:version" pins a version; "owner/name" runs the
// model's latest version.
func (c *Client) CreatePrediction(ctx context.Context, modelRef string, input map[string]any) (*Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, CreateTimeout)
	defer cancel()

	var endpoint string
	body := createRequest{Input: input}
	if _, version, ok := strings.Cut(modelRef, ":"); ok {
		endpoint = c.baseURL + "/predictions"
		body.Version = version
	} else {
		endpoint = c.baseURL + "/models/" + modelRef + "/predictions"
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doPrediction(req)
}

// GetPrediction reads the current state of a job.
func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, StatusTimeout)
	defer cancel()

	endpoint := c.baseURL + "/predictions/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.doPrediction(req)
}

// Ping performs an authenticated round trip to the account endpoint and
// returns the HTTP status the vendor answered with.
func (c *Client) Ping(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/account", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &APIError{StatusCode: resp.StatusCode}
	}
	return resp.StatusCode, nil
}

// DownloadFile fetches a generated output. Output URLs are pre-signed, so no
// credentials are sent.
func (c *Client) DownloadFile(ctx context.Context, downloadURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("failed to download file: status %d, body: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	return resp, nil
}

func (c *Client) doPrediction(req *http.Request) (*Prediction, error) {
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, body)
	}

	var prediction Prediction
	if err := json.Unmarshal(body, &prediction); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(body))
	}
	if prediction.ID == "" {
		return nil, fmt.Errorf("prediction id is empty in response, body: %s", string(body))
	}
	prediction.Raw = json.RawMessage(body)

	return &prediction, nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Detail = parsed.Detail
		if apiErr.Detail == "" {
			apiErr.Detail = parsed.Title
		}
	}
	if apiErr.Detail == "" {
		apiErr.Detail = strings.TrimSpace(string(body))
	}
	return apiErr
}

// TransportError wraps a failure to get any HTTP answer from the vendor.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "failed to execute request: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return &TransportError{Err: err}
}

// IsRetryable reports whether err is a transient failure: a timeout, a
// network error, rate limiting or a 5xx answer.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
