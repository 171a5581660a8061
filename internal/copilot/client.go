// Package copilot implements the upstream chat-completion capability behind
// the bridge: an OpenAI-compatible HTTP endpoint reached with Copilot editor
// headers. It is the sole implementation of bridge.Resolver.
package copilot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"copilot-bridge/internal/bridge"
	"copilot-bridge/internal/config"
	"copilot-bridge/internal/models"
	"copilot-bridge/internal/sse"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "copilot-bridge/0.1"

	editorVersion       = "vscode/1.99.2"
	editorPluginVersion = "copilot-chat/0.26.3"
	githubAPIVersion    = "2025-04-01"
	integrationID       = "vscode-chat"

	defaultHTTPTimeout     = 60 * time.Second
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second

	catalogueTTL = 5 * time.Minute
)

// Client talks to the upstream capability and caches its model catalogue.
type Client struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	chatURL   string
	modelsURL string

	mu        sync.Mutex
	catalogue []models.Model
	fetchedAt time.Time
}

// New constructs a client for the configured upstream.
func New(cfg config.UpstreamConfig) (*Client, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("upstream base url must not be empty")
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: defaultHTTPTimeout, Transport: transport},
		chatURL:   baseURL + "/chat/completions",
		modelsURL: baseURL + "/models",
	}, nil
}

// Models returns the upstream catalogue, served from cache inside the TTL.
// A fetch failure signals bridge.ErrUnavailable: the capability itself is
// unreachable, not any particular model.
func (c *Client) Models(ctx context.Context) ([]models.Model, error) {
	c.mu.Lock()
	if c.catalogue != nil && time.Since(c.fetchedAt) < catalogueTTL {
		cached := make([]models.Model, len(c.catalogue))
		copy(cached, c.catalogue)
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.modelsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("construct models request: %w", err)
	}
	c.setHeaders(httpReq)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bridge.ErrUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %v", bridge.ErrUnavailable, readAPIError(httpResp))
	}

	var list struct {
		Data []struct {
			ID      string `json:"id"`
			OwnedBy string `json:"owned_by"`
		} `json:"data"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: decode models response: %v", bridge.ErrUnavailable, err)
	}

	catalogue := make([]models.Model, 0, len(list.Data))
	for _, m := range list.Data {
		catalogue = append(catalogue, models.Model{ID: m.ID, OwnedBy: m.OwnedBy})
	}

	c.mu.Lock()
	c.catalogue = catalogue
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return catalogue, nil
}

// Resolve checks the requested model against the live catalogue. The failure
// modes stay distinct: an unreachable catalogue is ErrUnavailable, a missing
// id against a reachable catalogue is ErrModelNotFound.
func (c *Client) Resolve(ctx context.Context, preferStream bool, modelID string) (bridge.Handle, error) {
	catalogue, err := c.Models(ctx)
	if err != nil {
		return nil, err
	}

	for _, m := range catalogue {
		if m.ID == modelID {
			return &handle{client: c, id: m.ID}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", bridge.ErrModelNotFound, modelID)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Editor-Version", editorVersion)
	req.Header.Set("Editor-Plugin-Version", editorPluginVersion)
	req.Header.Set("X-GitHub-Api-Version", githubAPIVersion)
	req.Header.Set("Copilot-Integration-Id", integrationID)
}

type handle struct {
	client *Client
	id     string
}

func (h *handle) ID() string { return h.id }

// Complete issues a buffered chat completion.
func (h *handle) Complete(ctx context.Context, req models.ChatRequest) (*models.ChatResult, error) {
	req.Stream = false
	httpResp, err := h.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("upstream response did not include choices")
	}

	result := &models.ChatResult{
		Text:         resp.Choices[0].Message.Content,
		FinishReason: resp.Choices[0].FinishReason,
	}
	if resp.Usage != nil {
		result.Usage = &models.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

// Stream issues a streaming chat completion. The returned stream owns the
// response body; the caller must close it on every exit path.
func (h *handle) Stream(ctx context.Context, req models.ChatRequest) (bridge.Stream, error) {
	req.Stream = true
	httpResp, err := h.send(ctx, req)
	if err != nil {
		return nil, err
	}
	return sse.NewReader(httpResp.Body), nil
}

func (h *handle) send(ctx context.Context, req models.ChatRequest) (*http.Response, error) {
	payload := chatPayload{
		Model:       h.id,
		Stream:      req.Stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	payload.Messages = make([]chatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, chatMessage{Role: m.Role, Content: m.Text})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.client.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct upstream request: %w", err)
	}
	h.client.setHeaders(httpReq)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	httpResp, err := h.client.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream chat request failed: %w", err)
	}
	if httpResp.StatusCode >= 400 {
		defer httpResp.Body.Close()
		return nil, readAPIError(httpResp)
	}
	return httpResp, nil
}

type chatPayload struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

func readAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("upstream error status %d and failed to read body: %w", resp.StatusCode, err)
	}

	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("upstream error (%s): %s", apiErr.Error.Type, apiErr.Error.Message)
	}
	return fmt.Errorf("upstream error status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
