package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// SessionProvider creates a hosted checkout session for an order and
// returns the redirect URL. Payment execution itself is external; the
// workflow only consumes the URL and a later paid confirmation.
type SessionProvider interface {
	CreateSession(ctx context.Context, orderID string, amount float64, payerEmail string) (string, error)
}

type httpConfig struct {
	APIKey string
	APIURL string
}

// HTTPProvider talks to the hosted checkout API.
type HTTPProvider struct {
	cfg    httpConfig
	client *http.Client
}

// NewHTTPProviderFromEnv loads checkout config from environment.
// Required: CHECKOUT_API_KEY; Optional: CHECKOUT_API_URL
func NewHTTPProviderFromEnv() (*HTTPProvider, error) {
	cfg := httpConfig{
		APIKey: os.Getenv("CHECKOUT_API_KEY"),
		APIURL: os.Getenv("CHECKOUT_API_URL"),
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.checkout.templhub.local/v1/sessions"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("checkout not configured: set CHECKOUT_API_KEY")
	}
	return &HTTPProvider{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}, nil
}

// DisabledProvider stands in when checkout is not configured. Every
// session request fails, which the API surfaces as a 502.
type DisabledProvider struct{}

func (DisabledProvider) CreateSession(context.Context, string, float64, string) (string, error) {
	return "", fmt.Errorf("checkout is not configured")
}

type sessionRequest struct {
	Reference  string  `json:"reference"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	PayerEmail string  `json:"payer_email,omitempty"`
}

type sessionResponse struct {
	URL string `json:"url"`
}

func (p *HTTPProvider) CreateSession(ctx context.Context, orderID string, amount float64, payerEmail string) (string, error) {
	body, err := json.Marshal(sessionRequest{
		Reference:  orderID,
		Amount:     amount,
		Currency:   "USD",
		PayerEmail: payerEmail,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("checkout request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("checkout API returned %d: %s", resp.StatusCode, string(b))
	}

	var out sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode checkout response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("checkout API returned no redirect url")
	}
	return out.URL, nil
}
