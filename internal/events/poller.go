// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package events

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/woz-bot/receipt-printer/internal/dedup"
	"github.com/woz-bot/receipt-printer/internal/models"
)

// EmailCallback is called for each event that passes the dedup filter.
type EmailCallback func(ctx context.Context, req *models.InboundRequest)

// Poller periodically sweeps the provider's event listing for inbound
// emails the webhook missed.
type Poller struct {
	client   *Client
	filter   *dedup.Filter
	interval time.Duration
	lookback time.Duration
	onEmail  EmailCallback
}

// NewPoller creates a poller that checks for missed emails at the given
// interval. lookback defines how far back each sweep extends; it should
// be longer than the interval so windows overlap — the dedup filter
// absorbs the overlap.
func NewPoller(client *Client, filter *dedup.Filter, interval, lookback time.Duration, onEmail EmailCallback) *Poller {
	return &Poller{
		client:   client,
		filter:   filter,
		interval: interval,
		lookback: lookback,
		onEmail:  onEmail,
	}
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("event poller starting",
		"interval", p.interval,
		"lookback", p.lookback,
	)

	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("event poller stopping")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll lists recent events and replays the ones the filter has not seen.
func (p *Poller) poll(ctx context.Context) {
	after := time.Now().UTC().Add(-p.lookback)

	evs, err := p.client.ListReceived(ctx, after)
	if err != nil {
		slog.Error("event poll failed", "error", err)
		return
	}

	if len(evs) == 0 {
		slog.Debug("no events in poll window")
		return
	}

	for _, ev := range evs {
		if ev.EmailID == "" {
			continue
		}

		isNew, err := p.filter.IsNew(ctx, ev.EmailID)
		if err != nil {
			// A broken filter means every sweep would replay the whole
			// window. Skip rather than reprint.
			slog.Warn("dedup check failed, skipping event", "email_id", ev.EmailID, "error", err)
			continue
		}
		if !isNew {
			continue
		}

		slog.Info("replaying missed inbound email", "email_id", ev.EmailID)
		p.onEmail(ctx, toRequest(ev))
	}
}

// toRequest converts a listed event into a pipeline request. Attachment
// content is metadata-only here; the pipeline fetches bytes on demand.
func toRequest(ev Event) *models.InboundRequest {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		text = strings.TrimSpace(ev.Subject)
	}

	from := strings.TrimSpace(ev.From.Name)
	if from == "" {
		from = ev.From.Address
	}

	receivedAt := ev.CreatedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	req := &models.InboundRequest{
		Sender:     strings.ToLower(strings.TrimSpace(ev.From.Address)),
		From:       from,
		Text:       text,
		EmailID:    ev.EmailID,
		Origin:     models.OriginEmail,
		ReceivedAt: receivedAt,
	}

	for _, a := range ev.Attachments {
		req.Attachments = append(req.Attachments, models.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}

	return req
}
