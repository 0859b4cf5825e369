package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Webhook posts each event as JSON to a URL. Delivery happens on the Run
// goroutine so a slow endpoint never stalls the engine; when the buffer is
// full the event is dropped.
type Webhook struct {
	URL    string
	client *http.Client
	events chan Event
	logger *zerolog.Logger
}

func NewWebhook(url string, timeout time.Duration, buffer int, logger *zerolog.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = &log.Logger
	}
	l := logger.With().Str("component", "webhook").Str("url", url).Logger()
	return &Webhook{
		URL:    url,
		client: &http.Client{Timeout: timeout},
		events: make(chan Event, buffer),
		logger: &l,
	}
}

func (w *Webhook) HandleEvent(_ context.Context, ev Event) error {
	select {
	case w.events <- ev:
	default:
		w.logger.Warn().Str("notification_id", ev.Notification.ID).Msg("webhook buffer full, dropping event")
	}
	return nil
}

// Run delivers buffered events until ctx is done.
func (w *Webhook) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.events:
			if err := w.Deliver(ctx, ev); err != nil {
				w.logger.Error().Err(err).Str("notification_id", ev.Notification.ID).Msg("webhook delivery failed")
			}
		}
	}
}

// Deliver posts a single event synchronously.
func (w *Webhook) Deliver(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook HTTP %d error: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
