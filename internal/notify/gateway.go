package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPGateway delivers SMS through a JSON HTTP provider. Any 2xx response
// counts as accepted; delivery receipts are not tracked.
type HTTPGateway struct {
	url      string
	apiKey   string
	senderID string
	client   *http.Client
}

// NewHTTPGateway configures a gateway sender. The worker is the only caller;
// requests never hit the provider inline.
func NewHTTPGateway(url, apiKey, senderID string) *HTTPGateway {
	return &HTTPGateway{
		url:      url,
		apiKey:   apiKey,
		senderID: senderID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type gatewayRequest struct {
	To       string `json:"to"`
	Message  string `json:"message"`
	SenderID string `json:"sender_id,omitempty"`
}

func (g *HTTPGateway) Send(ctx context.Context, phone, body string) error {
	payload, err := json.Marshal(gatewayRequest{To: phone, Message: body, SenderID: g.senderID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify: gateway returned %s", resp.Status)
	}
	return nil
}
