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

package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/woz-bot/receipt-printer/internal/moderation"
	"github.com/woz-bot/receipt-printer/internal/pipeline"
	"github.com/woz-bot/receipt-printer/internal/printer"
	"github.com/woz-bot/receipt-printer/internal/ratelimit"
)

type captureDispatcher struct {
	jobs chan *printer.Job
	err  error
}

func newCaptureDispatcher() *captureDispatcher {
	return &captureDispatcher{jobs: make(chan *printer.Job, 8)}
}

func (d *captureDispatcher) Dispatch(_ context.Context, job *printer.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs <- job
	return nil
}

func newTestHandler(t *testing.T, dispatcher pipeline.Dispatcher, secret, token string) *Handler {
	t.Helper()

	p := pipeline.New(pipeline.Config{
		Limiter:     ratelimit.NewLimiter(ratelimit.NewMemoryStore(), 5),
		Content:     moderation.NewContentPolicy([]string{"casino"}, 500),
		Attachments: moderation.NewAttachmentPolicy(2, 5, 10),
		Dispatcher:  dispatcher,
		MaxWidth:    384,
	})

	return NewHandler(p, nil, nil, nil, secret, token)
}

func signBody(secret, msgID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msgID + "." + timestamp + "."))
	mac.Write(body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"type":"email.received"}`)
	ts := "1700000000"

	tests := []struct {
		name      string
		secret    string
		msgID     string
		timestamp string
		header    string
		want      bool
	}{
		{
			name:      "valid signature",
			secret:    "testsecret",
			msgID:     "msg_1",
			timestamp: ts,
			header:    signBody("testsecret", "msg_1", ts, body),
			want:      true,
		},
		{
			name:      "wrong secret",
			secret:    "testsecret",
			msgID:     "msg_1",
			timestamp: ts,
			header:    signBody("othersecret", "msg_1", ts, body),
			want:      false,
		},
		{
			name:      "tampered message id",
			secret:    "testsecret",
			msgID:     "msg_2",
			timestamp: ts,
			header:    signBody("testsecret", "msg_1", ts, body),
			want:      false,
		},
		{
			name:      "valid among multiple pairs",
			secret:    "testsecret",
			msgID:     "msg_1",
			timestamp: ts,
			header:    "v1,bogus " + signBody("testsecret", "msg_1", ts, body),
			want:      true,
		},
		{
			name:      "unknown version only",
			secret:    "testsecret",
			msgID:     "msg_1",
			timestamp: ts,
			header:    strings.Replace(signBody("testsecret", "msg_1", ts, body), "v1,", "v2,", 1),
			want:      false,
		},
		{
			name:      "missing message id",
			secret:    "testsecret",
			msgID:     "",
			timestamp: ts,
			header:    signBody("testsecret", "msg_1", ts, body),
			want:      false,
		},
		{
			name:      "missing header",
			secret:    "testsecret",
			msgID:     "msg_1",
			timestamp: ts,
			header:    "",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := verifySignature(tt.secret, tt.msgID, tt.timestamp, body, tt.header)
			if got != tt.want {
				t.Errorf("verifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifySignaturePrefixedSecret(t *testing.T) {
	raw := []byte("prefixed-key-material")
	secret := "whsec_" + base64.StdEncoding.EncodeToString(raw)
	body := []byte(`{}`)

	mac := hmac.New(sha256.New, raw)
	mac.Write([]byte("msg_9.1700000000."))
	mac.Write(body)
	header := "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !verifySignature(secret, "msg_9", "1700000000", body, header) {
		t.Error("expected prefixed base64 secret to verify")
	}
}

func TestServeInboundRejectsBadSignature(t *testing.T) {
	h := newTestHandler(t, newCaptureDispatcher(), "testsecret", "token")

	body := `{"type":"email.received","data":{"from":{"address":"a@example.com"},"text":"hi"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/inbound", strings.NewReader(body))
	req.Header.Set("webhook-id", "msg_1")
	req.Header.Set("webhook-timestamp", "1700000000")
	req.Header.Set("webhook-signature", "v1,forged")

	rec := httptest.NewRecorder()
	h.ServeInbound(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestServeInboundProcessesSignedEvent(t *testing.T) {
	dispatcher := newCaptureDispatcher()
	h := newTestHandler(t, dispatcher, "testsecret", "token")

	body := []byte(`{"type":"email.received","data":{"email_id":"em_1","from":{"address":"A@Example.com","name":"Alice"},"subject":"hello","text":"print me"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/inbound", strings.NewReader(string(body)))
	req.Header.Set("webhook-id", "msg_1")
	req.Header.Set("webhook-timestamp", "1700000000")
	req.Header.Set("webhook-signature", signBody("testsecret", "msg_1", "1700000000", body))

	rec := httptest.NewRecorder()
	h.ServeInbound(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	select {
	case job := <-dispatcher.jobs:
		if job.ID == "" {
			t.Error("dispatched job has no ID")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no job dispatched within timeout")
	}
}

func TestServeInboundIgnoresOtherEventTypes(t *testing.T) {
	dispatcher := newCaptureDispatcher()
	h := newTestHandler(t, dispatcher, "", "token")

	body := `{"type":"email.delivered","data":{"from":{"address":"a@example.com"}}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/inbound", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeInbound(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	select {
	case <-dispatcher.jobs:
		t.Error("non-inbound event reached the printer")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServeInboundMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, newCaptureDispatcher(), "", "token")

	req := httptest.NewRequest(http.MethodGet, "/webhook/inbound", nil)
	rec := httptest.NewRecorder()
	h.ServeInbound(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestServePrintRequiresToken(t *testing.T) {
	h := newTestHandler(t, newCaptureDispatcher(), "", "secret-token")

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "wrong token", header: "Bearer wrong"},
		{name: "wrong scheme", header: "Basic secret-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/print", strings.NewReader(`{"message":"hi"}`))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServePrint(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestServePrintDispatchesJob(t *testing.T) {
	dispatcher := newCaptureDispatcher()
	h := newTestHandler(t, dispatcher, "", "secret-token")

	req := httptest.NewRequest(http.MethodPost, "/api/print", strings.NewReader(`{"message":"hello printer","from":"ops"}`))
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	h.ServePrint(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp["status"] != "printed" {
		t.Errorf("status field = %q, want %q", resp["status"], "printed")
	}
	if resp["job_id"] == "" {
		t.Error("response missing job_id")
	}

	select {
	case <-dispatcher.jobs:
	default:
		t.Error("no job dispatched")
	}
}

func TestServePrintRequiresMessage(t *testing.T) {
	h := newTestHandler(t, newCaptureDispatcher(), "", "secret-token")

	req := httptest.NewRequest(http.MethodPost, "/api/print", strings.NewReader(`{"message":"   "}`))
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	h.ServePrint(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestServePrintSurfacesDispatchFailure(t *testing.T) {
	dispatcher := newCaptureDispatcher()
	dispatcher.err = errors.New("connection refused")
	h := newTestHandler(t, dispatcher, "", "secret-token")

	req := httptest.NewRequest(http.MethodPost, "/api/print", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	h.ServePrint(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp["status"] != string(pipeline.StatePrintFailed) {
		t.Errorf("status field = %q, want %q", resp["status"], pipeline.StatePrintFailed)
	}
}

func TestServeJobsWithoutJournal(t *testing.T) {
	h := newTestHandler(t, newCaptureDispatcher(), "", "secret-token")

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	h.ServeJobs(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

// TestShutdownWaitsForInFlightRequests verifies cancellation drains the
// server gracefully: a request already in a handler completes instead
// of being cut off mid-response.
func TestShutdownWaitsForInFlightRequests(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.Write([]byte("done"))
	})
	server := &http.Server{Handler: mux}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	<-serve(ctx, ln, server)

	result := make(chan error, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/slow")
		if err != nil {
			result <- err
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			result <- err
			return
		}
		if string(body) != "done" {
			result <- fmt.Errorf("body = %q, want %q", body, "done")
			return
		}
		result <- nil
	}()

	// Cancel only once the request is inside the handler, then let the
	// handler finish under an already-draining server.
	<-entered
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("in-flight request failed during shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("request did not complete")
	}
}

func TestBuildRequestFallbacks(t *testing.T) {
	var event inboundEvent
	event.Type = "email.received"
	event.Data.EmailID = "em_1"
	event.Data.From.Address = "Bob@Example.com"
	event.Data.Subject = "just a subject"

	req := buildRequest(event)

	if req.Sender != "bob@example.com" {
		t.Errorf("Sender = %q, want lowercased address", req.Sender)
	}
	if req.From != "Bob@Example.com" {
		t.Errorf("From = %q, want address fallback", req.From)
	}
	if req.Text != "just a subject" {
		t.Errorf("Text = %q, want subject fallback", req.Text)
	}
}

func TestBuildRequestDecodesInlineContent(t *testing.T) {
	body := []byte(`{
		"type": "email.received",
		"data": {
			"email_id": "em_2",
			"from": {"address": "a@example.com"},
			"text": "hi",
			"attachments": [
				{"id": "att_1", "filename": "x.png", "content_type": "image/png", "content": "` +
		base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) + `"}
			]
		}
	}`)

	var event inboundEvent
	if err := json.Unmarshal(body, &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	req := buildRequest(event)

	if len(req.Attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(req.Attachments))
	}
	att := req.Attachments[0]
	if len(att.Data) != 3 {
		t.Errorf("Data length = %d, want 3", len(att.Data))
	}
	if att.Size != 3 {
		t.Errorf("Size = %d, want 3 (filled from decoded content)", att.Size)
	}
}
