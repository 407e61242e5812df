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

// Package models defines the data structures shared across the print bridge.
package models

import "time"

// Origin identifies which inbound surface a request arrived through.
type Origin string

const (
	// OriginAPI is the authenticated HTTP print endpoint.
	OriginAPI Origin = "api"
	// OriginEmail is the open inbound email address.
	OriginEmail Origin = "email"
)

// Attachment represents a raw file attached to an inbound email.
// Data may be empty when the provider only delivered metadata; the
// pipeline fetches content on demand.
type Attachment struct {
	ID          string `json:"id,omitempty"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Data        []byte `json:"-"`
}

// IsImage reports whether the attachment declares an image content type.
func (a Attachment) IsImage() bool {
	return len(a.ContentType) >= 6 && a.ContentType[:6] == "image/"
}

// InboundRequest is a single print request entering the admission
// pipeline. It is constructed once per inbound call and discarded after
// the pipeline reaches a terminal state — nothing here is persisted.
type InboundRequest struct {
	// Sender is the identity key used for rate limiting and
	// notifications: a validated email address on the email path, a
	// fixed caller name on the API path.
	Sender string

	// From is the display name printed on the receipt header.
	From string

	// Text is the free-text message body. May be empty on the email path.
	Text string

	// EmailID is the provider's message ID, used to fetch attachment
	// content. Empty on the API path.
	EmailID string

	Attachments []Attachment
	Origin      Origin
	ReceivedAt  time.Time
}

// Verdict is a moderation decision. Reason is only meaningful when
// Allowed is false.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow is the verdict that admits content.
func Allow() Verdict { return Verdict{Allowed: true} }

// Deny builds a blocking verdict with a human-readable reason.
func Deny(reason string) Verdict { return Verdict{Allowed: false, Reason: reason} }
