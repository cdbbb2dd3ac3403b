package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Message is one push notification addressed by device token.
type Message struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Sender delivers a push message. Fire-and-forget: there is no delivery
// confirmation feedback loop.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// HTTPDoer defines http.Client interface subset.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// PushClient posts messages to an FCM-style push gateway.
type PushClient struct {
	url    string
	client HTTPDoer
	logger *zap.Logger
}

// NewPushClient builds the client.
func NewPushClient(url string, timeout time.Duration, logger *zap.Logger) *PushClient {
	return &PushClient{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Send posts the message and treats any non-2xx response as an error.
func (c *PushClient) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: push gateway returned %d", resp.StatusCode)
	}
	return nil
}
