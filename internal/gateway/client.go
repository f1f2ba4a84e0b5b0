package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultBaseURL is where a locally run dialogue service listens.
	DefaultBaseURL   = "http://localhost:8000"
	defaultUserAgent = "intake"
	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 << 20
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets the dialogue service URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets the underlying HTTP client. Its transport is still
// wrapped by WithTracing and WithClientCredentials.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent sets the User-Agent header sent on every call.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithTracing wraps the transport with OpenTelemetry HTTP instrumentation.
func WithTracing() ClientOption {
	return func(c *Client) {
		c.tracing = true
	}
}

// WithClientCredentials authenticates calls with an OAuth2 client-credentials
// token obtained from cfg.TokenURL.
func WithClientCredentials(cfg *clientcredentials.Config) ClientOption {
	return func(c *Client) {
		c.credentials = cfg
	}
}

// Client implements Gateway over HTTP.
type Client struct {
	baseURL     string
	userAgent   string
	httpClient  *http.Client
	tracing     bool
	credentials *clientcredentials.Config
}

// NewClient creates a dialogue service client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		userAgent:  defaultUserAgent,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.tracing || c.credentials != nil {
		base := c.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		if c.credentials != nil {
			base = &oauth2.Transport{
				Source: c.credentials.TokenSource(context.Background()),
				Base:   base,
			}
		}
		if c.tracing {
			base = otelhttp.NewTransport(base)
		}
		wrapped := *c.httpClient
		wrapped.Transport = base
		c.httpClient = &wrapped
	}
	return c
}

// BaseURL returns the service URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Start implements Gateway.
func (c *Client) Start(ctx context.Context, req StartRequest) (*Response, error) {
	return c.post(ctx, EndpointStart, req)
}

// Advance implements Gateway.
func (c *Client) Advance(ctx context.Context, sessionID, answer string) (*Response, error) {
	return c.post(ctx, EndpointAdvance, advanceRequest{SessionID: sessionID, Answer: answer})
}

// Clarify implements Gateway.
func (c *Client) Clarify(ctx context.Context, sessionID, questionText, answer string) (*Response, error) {
	return c.post(ctx, EndpointClarify, clarifyRequest{SessionID: sessionID, Question: questionText, Answer: answer})
}

// post sends body to endpoint. Any JSON object in the response counts as a
// response, whatever the status code; everything else is a TransportError.
func (c *Client) post(ctx context.Context, endpoint string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var out Response
	if err := decodeObject(respBody, &out); err != nil {
		return nil, &TransportError{Endpoint: endpoint, Status: resp.StatusCode, Err: err}
	}
	return &out, nil
}

var errNotObject = errors.New("response is not a JSON object")

func decodeObject(data []byte, out *Response) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errNotObject
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
