package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects published by scopecast.
const (
	SubjectExchangeCompleted = "scopecast.exchange.completed"
	SubjectEstimateReady     = "scopecast.estimate.ready"
	SubjectRateLimitDenied   = "scopecast.ratelimit.denied"

	// SubjectAll matches every scopecast subject.
	SubjectAll = "scopecast.>"
)

// ExchangeCompleted is published after every streamed exchange.
type ExchangeCompleted struct {
	ProjectID     string    `json:"project_id,omitempty"`
	Kind          string    `json:"kind"`
	Success       bool      `json:"success"`
	Attempts      int       `json:"attempts"`
	ToolCall      string    `json:"tool_call,omitempty"`
	Understanding *int      `json:"understanding,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// EstimateReady is published once a validated estimate has been stored.
type EstimateReady struct {
	ProjectID  string    `json:"project_id"`
	TotalLow   float64   `json:"total_low"`
	TotalHigh  float64   `json:"total_high"`
	Confidence string    `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// RateLimitDenied is published when admission control rejects a caller.
type RateLimitDenied struct {
	Identity  string    `json:"identity"`
	Tier      string    `json:"tier"`
	Route     string    `json:"route"`
	ResetAt   time.Time `json:"reset_at"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the publish side of the client.
type Publisher interface {
	Publish(subject string, data any) error
}

// Nop drops everything. Used when NATS is not configured.
type Nop struct{}

func (Nop) Publish(string, any) error { return nil }

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("scopecast"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// Connected reports whether the underlying connection is currently up.
func (c *Client) Connected() bool {
	return c.conn.IsConnected()
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
