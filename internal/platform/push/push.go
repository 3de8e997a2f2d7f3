// Package push delivers mobile push notifications through an external
// gateway. Delivery is best-effort: callers get success/failure counts and
// must never treat a failed send as a failed operation.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Notification is one push message. Priority and Sound come from the alert
// policy table; Data rides along for client-side routing.
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Priority string            `json:"priority,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

type Client struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Enabled reports whether a gateway is configured. With no endpoint the
// client silently drops everything, which keeps development setups working.
func (c *Client) Enabled() bool { return c.cfg.Endpoint != "" }

// SendToToken delivers one notification to one device.
func (c *Client) SendToToken(ctx context.Context, token string, n Notification) error {
	if !c.Enabled() {
		return nil
	}
	payload := struct {
		To string `json:"to"`
		Notification
	}{To: token, Notification: n}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway returned %d", resp.StatusCode)
	}
	return nil
}

// SendToMany fans a notification out to every token, continuing past
// individual failures. Returns how many sends succeeded and failed.
func (c *Client) SendToMany(ctx context.Context, tokens []string, n Notification) (sent, failed int) {
	for _, token := range tokens {
		if err := c.SendToToken(ctx, token, n); err != nil {
			failed++
			c.log.Warn().Err(err).Str("title", n.Title).Msg("push delivery failed")
			continue
		}
		sent++
	}
	return sent, failed
}
