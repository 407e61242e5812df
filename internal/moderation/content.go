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

// Package moderation decides whether inbound content may be printed:
// free text against a blocklist and length ceiling, attachments against
// count and size ceilings, and images against a remote vision endpoint.
package moderation

import (
	"fmt"
	"strings"

	"github.com/woz-bot/receipt-printer/internal/models"
)

// ContentPolicy screens free-text message bodies.
type ContentPolicy struct {
	blocklist []string
	maxLength int
}

// NewContentPolicy creates a text policy. Blocklist entries are matched
// case-insensitively as substrings.
func NewContentPolicy(blocklist []string, maxLength int) *ContentPolicy {
	lowered := make([]string, 0, len(blocklist))
	for _, token := range blocklist {
		token = strings.ToLower(strings.TrimSpace(token))
		if token != "" {
			lowered = append(lowered, token)
		}
	}
	return &ContentPolicy{blocklist: lowered, maxLength: maxLength}
}

// Moderate screens the given text. Empty text is always allowed —
// whether a message may be blank is the caller's concern. The rejection
// reason never reveals which token matched.
func (p *ContentPolicy) Moderate(text string) models.Verdict {
	if len(text) > p.maxLength {
		return models.Deny(fmt.Sprintf("message is too long (limit is %d characters)", p.maxLength))
	}

	lowered := strings.ToLower(text)
	for _, token := range p.blocklist {
		if strings.Contains(lowered, token) {
			return models.Deny("message contains inappropriate content")
		}
	}

	return models.Allow()
}
