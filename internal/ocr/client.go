package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://ocr.fjsoftlab.com"
	requestTimeout = 60 * time.Second
	maxBodyBytes   = 32 << 20
)

// Job states reported by the OCR service.
const (
	JobQueued    = "queued"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

var (
	ErrSubmitFailed = errors.New("OCR processing failed")
	ErrNoJobID      = errors.New("OCR processing failed: No job id returned")
)

// Client talks to the asynchronous OCR service: submit a URL, poll the job,
// fetch the markdown.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     slog.Default(),
	}
}

// WithLogger returns c logging to l.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	c.logger = l
	return c
}

// Submit starts a job for the document at fileURL and returns its id. The
// lowercase v1 route is tried first, then the capitalised V1 route some
// deployments expose.
func (c *Client) Submit(ctx context.Context, fileURL string) (string, error) {
	body, err := json.Marshal(map[string]string{"url": fileURL})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	for _, route := range []string{"/api/v1/ocr", "/api/V1/ocr"} {
		status, respBody, err := c.do(ctx, http.MethodPost, route, body)
		if err != nil {
			c.logger.Warn("OCR submit request failed", "route", route, "error", err)
			continue
		}
		if status < 200 || status > 299 {
			c.logger.Warn("OCR submit rejected", "route", route, "status", status, "body", string(respBody))
			continue
		}
		return parseJobID(respBody)
	}
	return "", ErrSubmitFailed
}

// Status returns the lowercased state of jobID.
func (c *Client) Status(ctx context.Context, jobID string) (string, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/api/v1/status/"+jobID, nil)
	if err != nil {
		return "", fmt.Errorf("OCR status check failed: %w", err)
	}
	if status < 200 || status > 299 {
		return "", fmt.Errorf("OCR status check failed: %d", status)
	}

	var out struct {
		Status any `json:"status"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("OCR status check failed: decoding response: %w", err)
	}
	if out.Status == nil {
		return "", nil
	}
	return strings.ToLower(fmt.Sprint(out.Status)), nil
}

// Result fetches the text produced by jobID. A JSON object body yields its
// markdown, content or text field; any other body is returned as is.
func (c *Client) Result(ctx context.Context, jobID string) (string, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/api/v1/result/"+jobID, nil)
	if err != nil {
		return "", fmt.Errorf("OCR result retrieval error: %w", err)
	}
	if status < 200 || status > 299 {
		return "", fmt.Errorf("OCR result retrieval error: %d - %s", status, body)
	}
	return parseResult(body), nil
}

func (c *Client) do(ctx context.Context, method, route string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+route, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("x-authentication", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func parseJobID(body []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return "", ErrNoJobID
	}
	for _, field := range []string{"job_id", "id"} {
		switch v := out[field].(type) {
		case string:
			if v != "" {
				return v, nil
			}
		case json.Number:
			return v.String(), nil
		}
	}
	return "", ErrNoJobID
}

func parseResult(body []byte) string {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return string(body)
	}
	switch v := parsed.(type) {
	case map[string]any:
		for _, field := range []string{"markdown", "content", "text"} {
			if s, ok := v[field].(string); ok && s != "" {
				return s
			}
		}
		return ""
	case []any:
		return ""
	default:
		return string(body)
	}
}
