package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/builditusa/scopecast/internal/llm"
	"github.com/builditusa/scopecast/internal/tools"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
)

type Client struct {
	apiKey    string
	model     string
	baseURL   string
	maxTokens int
	client    *http.Client
	streamer  *http.Client
}

type Option func(*Client)

// WithBaseURL points the client at a different API host (proxies, tests).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithHTTPClient replaces both the completion and streaming transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
		c.streamer = hc
	}
}

func NewClient(apiKey, model string, opts ...Option) *Client {
	c := &Client{
		apiKey:    apiKey,
		model:     model,
		baseURL:   DefaultBaseURL,
		maxTokens: defaultMaxTokens,
		client:    &http.Client{Timeout: 120 * time.Second},
		// Streams stay open for as long as the model talks; rely on the
		// request context instead of a client-wide timeout.
		streamer: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Model() string {
	return c.model
}

type request struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []message          `json:"messages"`
	Tools     []tools.Definition `json:"tools,omitempty"`
	Stream    bool               `json:"stream,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) buildRequest(req llm.Request, stream bool) request {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	wire := request{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    req.System,
		Tools:     req.Tools,
		Stream:    stream,
	}
	for _, m := range req.Messages {
		wm := message{Role: string(m.Role)}
		for _, p := range m.Content {
			switch p.Type {
			case llm.PartImage:
				wm.Content = append(wm.Content, contentBlock{
					Type:   "image",
					Source: &imageSource{Type: "base64", MediaType: p.MediaType, Data: p.Data},
				})
			default:
				wm.Content = append(wm.Content, contentBlock{Type: "text", Text: p.Text})
			}
		}
		wire.Messages = append(wire.Messages, wm)
	}
	return wire
}

func (c *Client) post(ctx context.Context, hc *http.Client, wire request) (*http.Response, error) {
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	if wire.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readError(resp)
	}
	return resp, nil
}

// readError turns a non-200 response into an *llm.ProviderError.
func readError(resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var errResp errorResponse
	if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
		return &llm.ProviderError{
			StatusCode: resp.StatusCode,
			Type:       errResp.Error.Type,
			Message:    errResp.Error.Message,
		}
	}
	return &llm.ProviderError{StatusCode: resp.StatusCode, Message: string(respBody)}
}

// Complete sends a message to the Anthropic API and returns the text response.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	resp, err := c.post(ctx, c.client, c.buildRequest(req, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var apiResp response
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	var out strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("empty response content")
	}
	return out.String(), nil
}

// Stream opens a streaming exchange. The returned stream owns the response
// body and must be closed.
func (c *Client) Stream(ctx context.Context, req llm.Request) (llm.EventStream, error) {
	resp, err := c.post(ctx, c.streamer, c.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	return newEventStream(resp.Body), nil
}
