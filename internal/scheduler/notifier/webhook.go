package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Fact is a name/value line of a card.
type Fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Card is the message format posted to incoming webhooks.
type Card struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Facts []Fact `json:"facts,omitempty"`
}

// Webhook posts cards to a chat incoming webhook. Posts are rate limited.
type Webhook struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

var _ Sink = (*Webhook)(nil)

// NewWebhook creates a webhook sink allowing perSecond posts with burst.
func NewWebhook(url string, perSecond float64, burst int) *Webhook {
	return &Webhook{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) ReportFailure(ctx context.Context, message string, fields map[string]string) error {
	card := Card{Title: "Robofleet failure", Text: message}
	for _, k := range sortedKeys(fields) {
		card.Facts = append(card.Facts, Fact{Name: k, Value: fields[k]})
	}
	return w.Post(ctx, card)
}

// Post sends payload as JSON, waiting for the rate limiter first.
func (w *Webhook) Post(ctx context.Context, payload any) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
