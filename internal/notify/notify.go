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

// Package notify turns pipeline outcomes into sender notifications.
// Delivery is fire-and-forget: failures are logged and never escalated
// back to the sender of the original request. Keeping this out of the
// pipeline keeps admission logic and notification wording independently
// testable.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/woz-bot/receipt-printer/internal/pipeline"
)

// Sender delivers a single email. Implemented by mailer.Client.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Dispatcher maps terminal outcomes to notification emails.
type Dispatcher struct {
	sender     Sender
	dailyLimit int
}

// NewDispatcher creates an outcome notification dispatcher.
func NewDispatcher(sender Sender, dailyLimit int) *Dispatcher {
	return &Dispatcher{sender: sender, dailyLimit: dailyLimit}
}

// Notify sends the notification matching the outcome, if any. Printed
// requests get a confirmation with remaining quota; rejections get the
// reason; a failed dispatch sends nothing — that failure is server-side
// only on the email path.
func (d *Dispatcher) Notify(ctx context.Context, recipient string, outcome pipeline.Outcome) {
	if d == nil || d.sender == nil || recipient == "" {
		return
	}

	subject, body := d.compose(outcome)
	if subject == "" {
		return
	}

	if err := d.sender.Send(ctx, recipient, subject, body); err != nil {
		slog.Error("notification send failed",
			"recipient", recipient,
			"state", outcome.State,
			"error", err,
		)
		return
	}

	slog.Info("notification sent", "recipient", recipient, "state", outcome.State)
}

// compose returns the subject and body for an outcome. An empty subject
// means no notification is sent for that state.
func (d *Dispatcher) compose(outcome pipeline.Outcome) (subject, body string) {
	switch outcome.State {
	case pipeline.StatePrinted:
		body := fmt.Sprintf("Your message was printed. You have %d of %d prints left today.",
			outcome.Remaining, d.dailyLimit)
		if outcome.ImagesUnavailable {
			body += "\n\nYour attachments could not be retrieved, so the message was printed without images."
		}
		return "Printed!", body

	case pipeline.StateRateLimited:
		// A quota-store outage also lands here; it must not be worded
		// as if the sender used up their prints.
		if outcome.Reason == pipeline.ReasonQuotaUnavailable {
			return "Message not printed", "Your message was not printed: " + outcome.Reason
		}
		return "Daily print limit reached", fmt.Sprintf(
			"You have used all %d of your prints for today. Your quota resets at midnight UTC.", d.dailyLimit)

	case pipeline.StateContentBlocked:
		return "Message not printed", "Your message was not printed: " + outcome.Reason

	case pipeline.StateAttachmentsRejected:
		return "Message not printed", "Your message was not printed: " + outcome.Reason

	case pipeline.StateImageBlocked:
		return "Message not printed", "Your message was not printed: " + outcome.Reason

	default:
		// PrintFailed and anything unknown: nothing goes to the sender.
		return "", ""
	}
}
