package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RelaySender posts push notifications to an HTTP relay that owns the
// platform credentials (an FCM gateway, for instance)
type RelaySender struct {
	client *http.Client
	url    string
	logger *zap.Logger
}

type RelayConfig struct {
	URL     string
	Timeout time.Duration
}

type relayRequest struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type relayResponse struct {
	Success *bool `json:"success"`
}

func NewRelaySender(cfg RelayConfig, logger *zap.Logger) *RelaySender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &RelaySender{
		client: &http.Client{Timeout: timeout},
		url:    cfg.URL,
		logger: logger,
	}
}

// SendPush treats any 2xx as delivered unless the body says {"success": false}
func (s *RelaySender) SendPush(ctx context.Context, token, title, body string, data map[string]string) (bool, error) {
	if err := validate(token, body); err != nil {
		return false, err
	}

	payload, err := json.Marshal(relayRequest{Token: token, Title: title, Body: body, Data: data})
	if err != nil {
		return false, fmt.Errorf("marshal relay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to create relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Quorum/1.0.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("relay returned non-2xx status: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var parsed relayResponse
	if json.Unmarshal(bodyBytes, &parsed) == nil && parsed.Success != nil && !*parsed.Success {
		s.logger.Warn("relay declined push", zap.String("response_preview", string(bodyBytes)))
		return false, nil
	}

	s.logger.Info("push delivered via relay",
		zap.Int("status_code", resp.StatusCode),
	)
	return true, nil
}
