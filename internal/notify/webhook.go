package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

type WebhookConfig struct {
	URL string
	// Optional OAuth2 client-credentials; plain HTTP when TokenURL is empty.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// WebhookNotifier POSTs each payload as JSON to a messaging gateway.
type WebhookNotifier struct {
	url  string
	http *http.Client
}

func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	h := &http.Client{}
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		h = cc.Client(context.Background())
	}
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	} else {
		h.Timeout = 10 * time.Second
	}
	return &WebhookNotifier{url: cfg.URL, http: h}
}

type webhookBody struct {
	Recipient string `json:"recipient"`
	Payload
}

func (w *WebhookNotifier) Notify(ctx context.Context, recipient string, p Payload) error {
	body, err := json.Marshal(webhookBody{Recipient: recipient, Payload: p})
	if err != nil {
		return Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := w.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	switch {
	case res.StatusCode/100 == 2:
		return nil
	case res.StatusCode/100 == 4 && res.StatusCode != http.StatusTooManyRequests:
		return Permanent(fmt.Errorf("webhook: %s", res.Status))
	default:
		return fmt.Errorf("webhook: %s", res.Status)
	}
}
