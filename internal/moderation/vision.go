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

package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/woz-bot/receipt-printer/internal/models"
)

// VisionClient calls a remote vision-moderation endpoint to classify
// image content. A client error is an error, not a verdict — the
// pipeline decides the failure policy.
type VisionClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// VisionOptions configures a VisionClient. When ClientID/ClientSecret/
// TokenURL are set the client authenticates via the OAuth2
// client-credentials flow; otherwise APIKey is sent as a bearer token.
type VisionOptions struct {
	Endpoint     string
	APIKey       string
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// NewVisionClient creates an image-moderation client.
func NewVisionClient(ctx context.Context, opts VisionOptions) *VisionClient {
	httpClient := &http.Client{Timeout: 15 * time.Second}

	if opts.ClientID != "" && opts.ClientSecret != "" && opts.TokenURL != "" {
		creds := &clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
		}
		httpClient = creds.Client(ctx)
		httpClient.Timeout = 15 * time.Second
	}

	return &VisionClient{
		httpClient: httpClient,
		endpoint:   opts.Endpoint,
		apiKey:     opts.APIKey,
	}
}

// visionResponse is the endpoint's verdict payload.
type visionResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// ModerateImage submits raw image bytes for classification.
func (c *VisionClient) ModerateImage(ctx context.Context, data []byte) (models.Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return models.Verdict{}, fmt.Errorf("build moderation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("moderate image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Verdict{}, fmt.Errorf("moderation endpoint returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var verdict visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return models.Verdict{}, fmt.Errorf("decode moderation response: %w", err)
	}

	if verdict.Allowed {
		return models.Allow(), nil
	}
	reason := verdict.Reason
	if reason == "" {
		reason = "an image was flagged by moderation"
	}
	return models.Deny(reason), nil
}
