package notification

import (
	"context"
	"log"
	"time"
)

// WebhookNotifier POSTs each alert as a JSON document to a generic endpoint.
type WebhookNotifier struct {
	url string
	p   poster
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{url: url, p: newPoster("webhook", "")}
}

type webhookPayload struct {
	Alert
	TS string `json:"ts"`
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	doc := webhookPayload{Alert: alert, TS: time.Now().UTC().Format(time.RFC3339Nano)}
	if err := w.p.post(ctx, w.url, doc); err != nil {
		return err
	}
	log.Printf("[webhook] %s: %s", alert.Symbol, alert.Title)
	return nil
}
