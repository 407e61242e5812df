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

// Package mailer is a thin client for the transactional mail provider's
// REST API: sending notification emails and fetching inbound attachment
// content on demand.
package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the mail provider API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	from       string
}

// NewClient creates a provider client. from is the address notification
// emails are sent as.
func NewClient(baseURL, apiKey, from string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		from:       from,
	}
}

// sendRequest is the provider's send-message payload.
type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// Send delivers a plain-text email through the provider.
func (c *Client) Send(ctx context.Context, recipient, subject, body string) error {
	payload, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      []string{recipient},
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	url := c.baseURL + "/emails"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send email returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// attachmentResponse is the provider's attachment-content payload.
// Content is base64 when delivered as JSON.
type attachmentResponse struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

// FetchAttachment retrieves the raw content of an inbound attachment.
// The provider serves either raw bytes or a JSON envelope with base64
// content depending on the Accept negotiation; both are handled.
func (c *Client) FetchAttachment(ctx context.Context, emailID, attachmentID string) ([]byte, error) {
	url := fmt.Sprintf("%s/emails/%s/attachments/%s", c.baseURL, emailID, attachmentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build attachment request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch attachment returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read attachment body: %w", err)
	}

	if resp.Header.Get("Content-Type") == "application/json" {
		var env attachmentResponse
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("decode attachment envelope: %w", err)
		}
		decoded, err := base64.StdEncoding.DecodeString(env.Content)
		if err != nil {
			return nil, fmt.Errorf("decode attachment content: %w", err)
		}
		return decoded, nil
	}

	return data, nil
}
