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

// Package webhook exposes the bridge's HTTP surfaces: the mail
// provider's inbound-email webhook, the authenticated print API, and
// health. The webhook verifies the provider signature before trusting
// anything in the payload.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/woz-bot/receipt-printer/internal/dedup"
	"github.com/woz-bot/receipt-printer/internal/journal"
	"github.com/woz-bot/receipt-printer/internal/models"
	"github.com/woz-bot/receipt-printer/internal/notify"
	"github.com/woz-bot/receipt-printer/internal/pipeline"
)

// inboundEvent is the provider's webhook envelope for a received email.
type inboundEvent struct {
	Type string `json:"type"`
	Data struct {
		EmailID string `json:"email_id"`
		From    struct {
			Address string `json:"address"`
			Name    string `json:"name"`
		} `json:"from"`
		Subject     string `json:"subject"`
		Text        string `json:"text"`
		Attachments []struct {
			ID          string `json:"id"`
			Filename    string `json:"filename"`
			ContentType string `json:"content_type"`
			Size        int64  `json:"size"`
			Content     string `json:"content,omitempty"`
		} `json:"attachments"`
	} `json:"data"`
}

// printRequest is the authenticated API payload.
type printRequest struct {
	Message string `json:"message"`
	From    string `json:"from,omitempty"`
}

// Handler serves the bridge's HTTP endpoints.
type Handler struct {
	pipeline *pipeline.Pipeline
	notifier *notify.Dispatcher
	journal  *journal.Store
	filter   *dedup.Filter

	webhookSecret string
	apiToken      string
}

// NewHandler creates the HTTP handler. journal and filter may be nil.
func NewHandler(
	p *pipeline.Pipeline,
	notifier *notify.Dispatcher,
	store *journal.Store,
	filter *dedup.Filter,
	webhookSecret string,
	apiToken string,
) *Handler {
	return &Handler{
		pipeline:      p,
		notifier:      notifier,
		journal:       store,
		filter:        filter,
		webhookSecret: webhookSecret,
		apiToken:      apiToken,
	}
}

// ServeInbound handles the provider's inbound-email webhook.
//
// Flow:
//   - verify the signature when a secret is configured
//   - respond 202 immediately — providers retry slow endpoints
//   - run the admission pipeline in the background
func (h *Handler) ServeInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
	if err != nil {
		slog.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if h.webhookSecret != "" {
		ok := verifySignature(
			h.webhookSecret,
			r.Header.Get("webhook-id"),
			r.Header.Get("webhook-timestamp"),
			body,
			r.Header.Get("webhook-signature"),
		)
		if !ok {
			slog.Warn("webhook signature rejected", "remote", r.RemoteAddr)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var event inboundEvent
	if err := json.Unmarshal(body, &event); err != nil {
		slog.Info("webhook body not valid JSON", "body_len", len(body))
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if event.Type != "email.received" {
		slog.Debug("skipping non-inbound event", "type", event.Type)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// Respond immediately — the provider expects a fast response.
	w.WriteHeader(http.StatusAccepted)

	go h.processInbound(context.Background(), event)
}

// processInbound runs an inbound email through dedup and the pipeline,
// then records and notifies the outcome.
func (h *Handler) processInbound(ctx context.Context, event inboundEvent) {
	sender := strings.ToLower(strings.TrimSpace(event.Data.From.Address))
	if sender == "" {
		slog.Warn("inbound event without sender address", "email_id", event.Data.EmailID)
		return
	}

	if event.Data.EmailID != "" {
		isNew, err := h.filter.IsNew(ctx, event.Data.EmailID)
		if err != nil {
			slog.Warn("dedup check failed, proceeding", "error", err)
		} else if !isNew {
			slog.Debug("skipping duplicate inbound email", "email_id", event.Data.EmailID)
			return
		}
	}

	req := buildRequest(event)

	slog.Info("processing inbound email",
		"sender", sender,
		"email_id", req.EmailID,
		"attachments", len(req.Attachments),
	)

	h.HandleEmail(ctx, req)
}

// HandleEmail runs an inbound email request through the pipeline and
// drives the side effects. Shared by the webhook and the events poller.
func (h *Handler) HandleEmail(ctx context.Context, req *models.InboundRequest) pipeline.Outcome {
	outcome := h.pipeline.ProcessEmail(ctx, req)
	h.finish(ctx, req, outcome)
	return outcome
}

// buildRequest converts a provider event into a pipeline request.
// The printable text is the body, falling back to the subject for
// subject-only emails. Inlined attachment content is decoded here so
// the pipeline never sees base64.
func buildRequest(event inboundEvent) *models.InboundRequest {
	text := strings.TrimSpace(event.Data.Text)
	if text == "" {
		text = strings.TrimSpace(event.Data.Subject)
	}

	from := strings.TrimSpace(event.Data.From.Name)
	if from == "" {
		from = event.Data.From.Address
	}

	req := &models.InboundRequest{
		Sender:     strings.ToLower(strings.TrimSpace(event.Data.From.Address)),
		From:       from,
		Text:       text,
		EmailID:    event.Data.EmailID,
		Origin:     models.OriginEmail,
		ReceivedAt: time.Now().UTC(),
	}

	for _, a := range event.Data.Attachments {
		att := models.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
		}
		if a.Content != "" {
			if data, err := base64.StdEncoding.DecodeString(a.Content); err == nil {
				att.Data = data
				if att.Size == 0 {
					att.Size = int64(len(data))
				}
			}
		}
		req.Attachments = append(req.Attachments, att)
	}

	return req
}

// finish records the outcome in the journal and notifies the sender.
func (h *Handler) finish(ctx context.Context, req *models.InboundRequest, outcome pipeline.Outcome) {
	if err := h.journal.Record(ctx, journal.Entry{
		JobID:      outcome.JobID,
		Sender:     req.Sender,
		Origin:     string(req.Origin),
		State:      string(outcome.State),
		Reason:     outcome.Reason,
		ImageCount: outcome.ImageCount,
	}); err != nil {
		slog.Error("journal write failed", "sender", req.Sender, "error", err)
	}

	if req.Origin == models.OriginEmail {
		h.notifier.Notify(ctx, req.Sender, outcome)
	}
}

// ServePrint handles the authenticated POST /api/print endpoint.
func (h *Handler) ServePrint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body printRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	req := &models.InboundRequest{
		Sender:     "api",
		From:       body.From,
		Text:       body.Message,
		Origin:     models.OriginAPI,
		ReceivedAt: time.Now().UTC(),
	}

	outcome := h.pipeline.ProcessAPI(r.Context(), req)
	h.finish(r.Context(), req, outcome)

	w.Header().Set("Content-Type", "application/json")
	if outcome.State != pipeline.StatePrinted {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{
			"status": string(outcome.State),
			"error":  outcome.Reason,
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]string{
		"status": "printed",
		"job_id": outcome.JobID,
	})
}

// ServeJobs handles the authenticated GET /api/jobs listing.
func (h *Handler) ServeJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	entries, err := h.journal.ListRecent(r.Context(), 50)
	if err != nil {
		slog.Error("journal list failed", "error", err)
		http.Error(w, "journal unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"jobs": entries})
}

// authorized checks the pre-shared bearer credential.
func (h *Handler) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(auth, "Bearer ")
	if !found {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.apiToken)) == 1
}

// Serve starts the HTTP server on the given port. It binds the port
// immediately and signals readiness via the returned channel before
// starting to accept connections.
func Serve(ctx context.Context, port int, handler *Handler, health http.HandlerFunc) (<-chan struct{}, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("/webhook/inbound", handler.ServeInbound)
	mux.HandleFunc("/api/print", handler.ServePrint)
	mux.HandleFunc("/api/jobs", handler.ServeJobs)
	if health != nil {
		mux.HandleFunc("/healthz", health)
	}

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind port %d: %w", port, err)
	}

	return serve(ctx, ln, server), nil
}

// serve runs the server on ln until the context is cancelled, then
// shuts down gracefully so in-flight webhook and API requests finish.
func serve(ctx context.Context, ln net.Listener, server *http.Server) <-chan struct{} {
	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("http server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
	}()

	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	return ready
}
