// Package anthropic implements the gateway.ProviderClient adapter for the
// Anthropic Messages API wire dialect.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/dnscache"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/provider"
)

const (
	anthropicVersion = "2023-06-01"
	defaultBaseURL   = "https://api.anthropic.com/v1"
)

// Client is an Anthropic-dialect adapter. Like the other dialects, a key is
// supplied per call rather than bound at construction -- the provider's
// rotator picks one of several active keys per request (spec.md section 4.4).
type Client struct {
	name    string
	baseURL string
	http    *http.Client
}

// New creates a Client bound to one configured Provider row. If baseURL is
// empty it defaults to Anthropic's public API.
func New(name, baseURL string, resolver *dnscache.Resolver) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Transport: provider.NewTransport(resolver, true)},
	}
}

func (c *Client) Name() string { return c.name }

// ChatCompletion sends a non-streaming Messages API request, translating
// to/from the OpenAI-shaped request and response types at the boundary.
func (c *Client) ChatCompletion(ctx context.Context, key string, req *gateway.ChatRequest) (*gateway.ChatResponse, error) {
	aReq, err := translateRequest(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(aReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	setHeaders(httpReq, key)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.ParseAPIError(c.name, resp)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("anthropic: read response: %w", err)
	}
	return translateResponse(buf.Bytes())
}

// ChatCompletionStream sends a streaming Messages API request.
func (c *Client) ChatCompletionStream(ctx context.Context, key string, req *gateway.ChatRequest) (<-chan gateway.StreamChunk, error) {
	aReq, err := translateRequest(req)
	if err != nil {
		return nil, err
	}
	aReq.Stream = true

	body, err := json.Marshal(aReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	setHeaders(httpReq, key)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: do request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, provider.ParseAPIError(c.name, resp)
	}

	ch := make(chan gateway.StreamChunk, 8)
	go readStream(ctx, resp.Body, ch)
	return ch, nil
}

// ListModels returns Anthropic's currently published model ids. There is no
// public models-list endpoint, so the set is hardcoded the way the registry
// that feeds the model cache expects.
func (c *Client) ListModels(ctx context.Context, key string) ([]string, error) {
	return []string{
		"claude-opus-4-6",
		"claude-sonnet-4-6",
		"claude-haiku-4-5",
	}, nil
}

func setHeaders(r *http.Request, key string) {
	r.Header.Set("x-api-key", key)
	r.Header.Set("anthropic-version", anthropicVersion)
	r.Header.Set("Content-Type", "application/json")
}
