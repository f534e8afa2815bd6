package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/EscobozaEstrada/mrwhite-sub001/internal/core"
)

// Webhook delivers notifications by POSTing JSON to an external gateway.
// Used for the email and SMS channels, whose actual transports live
// outside this service.
type Webhook struct {
	url    string
	client *http.Client
}

// webhookMessage is the JSON body sent to the gateway
type webhookMessage struct {
	To            string `json:"to"`
	Name          string `json:"name"`
	Title         string `json:"title"`
	Body          string `json:"body"`
	CompletionURL string `json:"completion_url,omitempty"`
}

// EmailWebhook creates a deliverer that POSTs to an email gateway
func EmailWebhook(url string) *EmailGateway {
	return &EmailGateway{Webhook{url: url, client: &http.Client{Timeout: 15 * time.Second}}}
}

// SMSWebhook creates a deliverer that POSTs to an SMS gateway
func SMSWebhook(url string) *SMSGateway {
	return &SMSGateway{Webhook{url: url, client: &http.Client{Timeout: 15 * time.Second}}}
}

// EmailGateway delivers the email channel through a webhook
type EmailGateway struct{ Webhook }

func (w *EmailGateway) Deliver(ctx context.Context, owner *core.Owner, p Payload) error {
	if owner.Email == "" {
		return fmt.Errorf("owner %d has no email address", owner.ID)
	}
	return w.post(ctx, webhookMessage{
		To: owner.Email, Name: owner.Name,
		Title: p.Title, Body: p.Body, CompletionURL: p.CompletionURL,
	})
}

// SMSGateway delivers the SMS channel through a webhook
type SMSGateway struct{ Webhook }

func (w *SMSGateway) Deliver(ctx context.Context, owner *core.Owner, p Payload) error {
	if owner.Phone == "" {
		return fmt.Errorf("owner %d has no phone number", owner.ID)
	}
	return w.post(ctx, webhookMessage{
		To: owner.Phone, Name: owner.Name,
		Title: p.Title, Body: p.Body,
	})
}

func (w *Webhook) post(ctx context.Context, msg webhookMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return nil
}
