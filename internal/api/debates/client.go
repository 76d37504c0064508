// Package debates is an HTTP client for the debate backend functions:
// streaming generation, history listing and retrieval of a saved debate.
package debates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
)

const (
	defaultGenerateURL = "http://localhost:8081"
	defaultListURL     = "http://localhost:8086"
	defaultGetURL      = "http://localhost:8084"
	defaultUserAgent   = "polyglot-debate/1.0"
	defaultTimeout     = 30 * time.Second
)

var (
	// ErrDebateNotFound is returned when the backend has no debate with the
	// requested identifier.
	ErrDebateNotFound = errors.New("debate not found")

	// ErrInvalidDebateID is returned for identifiers that are not UUIDs.
	ErrInvalidDebateID = errors.New("invalid debate ID")
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithGenerateURL sets the base URL of the generation function.
func WithGenerateURL(u string) ClientOption {
	return func(c *Client) {
		c.generateURL = strings.TrimSuffix(u, "/")
	}
}

// WithListURL sets the base URL of the history listing function.
func WithListURL(u string) ClientOption {
	return func(c *Client) {
		c.listURL = strings.TrimSuffix(u, "/")
	}
}

// WithGetURL sets the URL of the debate retrieval function. The debate id is
// passed as the id query parameter.
func WithGetURL(u string) ClientOption {
	return func(c *Client) {
		c.getURL = strings.TrimSuffix(u, "/")
	}
}

// WithBaseURL points every endpoint at a single server using the replay
// server's route layout.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		base := strings.TrimSuffix(u, "/")
		c.generateURL = base
		c.listURL = base
		c.getURL = base + "/get-debate"
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithRequestTimeout bounds the non-streaming history requests. Generation
// streams are bounded by the caller's context instead.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client talks to the debate backend.
type Client struct {
	generateURL string
	listURL     string
	getURL      string
	userAgent   string
	timeout     time.Duration
	httpClient  *http.Client
}

// NewClient creates a new backend client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		generateURL: defaultGenerateURL,
		listURL:     defaultListURL,
		getURL:      defaultGetURL,
		userAgent:   defaultUserAgent,
		timeout:     defaultTimeout,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OpenStream issues a generation request and returns the open response
// stream. Non-success statuses are returned as *domain.StreamError.
func (c *Client) OpenStream(ctx context.Context, req *GenerateRequest) (*StreamResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.generateURL+"/GenerateDebate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, statusError(resp.StatusCode, respBody)
	}

	return &StreamResponse{
		Body:       resp.Body,
		DebateID:   resp.Header.Get(DebateIDHeader),
		StatusCode: resp.StatusCode,
	}, nil
}

// ListDebates retrieves one page of debate history, newest first.
func (c *Client) ListDebates(ctx context.Context, limit, offset int) (*ListDebatesResponse, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var result ListDebatesResponse
	if err := c.getJSON(ctx, c.listURL+"/list-debates?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetDebate retrieves a saved debate with its transcript.
func (c *Client) GetDebate(ctx context.Context, id string) (*domain.Debate, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDebateID, id)
	}

	q := url.Values{}
	q.Set("id", id)

	var doc DebateDocument
	if err := c.getJSON(ctx, c.getURL+"?"+q.Encode(), &doc); err != nil {
		var se *domain.StreamError
		if errors.As(err, &se) {
			switch se.StatusCode {
			case http.StatusNotFound:
				return nil, fmt.Errorf("%w: %s", ErrDebateNotFound, id)
			case http.StatusBadRequest:
				return nil, fmt.Errorf("%w: %s", ErrInvalidDebateID, se.Message)
			}
		}
		return nil, err
	}
	return doc.ToDomain(), nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
}

func statusError(status int, body []byte) *domain.StreamError {
	apiErr, err := ParseErrorResponse(body)
	if err != nil || apiErr == nil {
		msg := strings.TrimSpace(string(body))
		return domain.ErrHTTPStatus(status, msg)
	}

	se := domain.ErrHTTPStatus(status, apiErr.Error).WithCode(apiErr.Code)
	if apiErr.Retryable {
		se.WithRetryable(true)
	}
	return se
}
