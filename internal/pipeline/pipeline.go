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

// Package pipeline runs the print-request admission state machine.
// Every inbound request reaches exactly one terminal state; the side
// effects (notifications, journal) are driven by the returned Outcome,
// not from inside the stages.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/woz-bot/receipt-printer/internal/encoder"
	"github.com/woz-bot/receipt-printer/internal/models"
	"github.com/woz-bot/receipt-printer/internal/moderation"
	"github.com/woz-bot/receipt-printer/internal/printer"
	"github.com/woz-bot/receipt-printer/internal/ratelimit"
)

// State is a terminal admission state.
type State string

const (
	StatePrinted             State = "printed"
	StatePrintFailed         State = "print_failed"
	StateRateLimited         State = "rate_limited"
	StateContentBlocked      State = "content_blocked"
	StateAttachmentsRejected State = "attachments_rejected"
	StateImageBlocked        State = "image_blocked"
)

// Rate-limit rejection reasons. An exhausted quota and an unreachable
// quota store both terminate in StateRateLimited, but the sender-facing
// wording must not claim usage that never happened; notify keys off
// these.
const (
	ReasonQuotaExhausted   = "daily print limit reached"
	ReasonQuotaUnavailable = "print quota is temporarily unavailable, try again later"
)

// Outcome is the tagged result of running a request through the
// pipeline. The notification dispatcher and the journal consume it;
// admission logic never sends anything itself.
type Outcome struct {
	State  State
	Reason string

	// Remaining is the sender's remaining daily quota after this
	// request (only meaningful on the email path).
	Remaining int

	// ImagesUnavailable marks the degraded branch where attachment
	// content could not be fetched and the job printed text-only.
	ImagesUnavailable bool

	// ImageCount is how many images made it onto paper.
	ImageCount int

	JobID string
}

// Dispatcher transmits a rendered job to the physical device.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *printer.Job) error
}

// ImageModerator classifies image content. A call error means the
// collaborator is unreachable, not a verdict.
type ImageModerator interface {
	ModerateImage(ctx context.Context, data []byte) (models.Verdict, error)
}

// AttachmentFetcher retrieves attachment content from the mail provider.
type AttachmentFetcher interface {
	FetchAttachment(ctx context.Context, emailID, attachmentID string) ([]byte, error)
}

// Config wires a Pipeline.
type Config struct {
	Limiter     *ratelimit.Limiter
	Content     *moderation.ContentPolicy
	Attachments *moderation.AttachmentPolicy

	// Images may be nil: no moderator configured runs fail-open with a
	// warning. A configured moderator that errors fails closed. The
	// asymmetry is deliberate — an operator who configured a control
	// expects it to block when it cannot answer.
	Images ImageModerator

	// Fetcher may be nil when the provider inlines attachment content.
	Fetcher AttachmentFetcher

	Dispatcher Dispatcher
	MaxWidth   int
	FooterText string
}

// Pipeline orchestrates admission for both inbound surfaces.
type Pipeline struct {
	cfg Config
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// ProcessEmail runs the full admission sequence for an inbound email:
// rate limit, text moderation, attachment validation, per-image
// moderation, encode, dispatch. The first failing stage terminates the
// request.
func (p *Pipeline) ProcessEmail(ctx context.Context, req *models.InboundRequest) Outcome {
	// 1. Rate limit. A store error fails closed: better to delay a
	// legitimate print than to lose the ceiling entirely.
	decision, err := p.cfg.Limiter.Check(ctx, req.Sender, req.ReceivedAt)
	if err != nil {
		slog.Error("rate limit check failed", "sender", req.Sender, "error", err)
		return Outcome{State: StateRateLimited, Reason: ReasonQuotaUnavailable}
	}
	if !decision.Allowed {
		slog.Info("request rate limited", "sender", req.Sender)
		return Outcome{State: StateRateLimited, Reason: ReasonQuotaExhausted, Remaining: 0}
	}

	// 2. Text moderation.
	if v := p.cfg.Content.Moderate(req.Text); !v.Allowed {
		slog.Info("content blocked", "sender", req.Sender, "reason", v.Reason)
		return Outcome{State: StateContentBlocked, Reason: v.Reason, Remaining: decision.Remaining}
	}

	// 3. Attachment ceilings, on declared metadata only — nothing has
	// been fetched or decoded yet.
	if v := p.cfg.Attachments.Validate(req.Attachments); !v.Allowed {
		slog.Info("attachments rejected", "sender", req.Sender, "reason", v.Reason)
		return Outcome{State: StateAttachmentsRejected, Reason: v.Reason, Remaining: decision.Remaining}
	}

	// 4. Load image content. Fetch failure degrades to a text-only
	// print — an explicit, logged branch, not a fatal condition.
	raws, imagesUnavailable := p.loadImages(ctx, req)

	// 5. Per-image moderation.
	if outcome, blocked := p.moderateImages(ctx, req, raws, decision.Remaining); blocked {
		return outcome
	}

	// 6. Encode and dispatch.
	images := p.encodeImages(req, raws)

	job := printer.Build(printer.BuildRequest{
		FromName:   req.From,
		Text:       req.Text,
		Images:     images,
		FooterText: p.cfg.FooterText,
		ReceivedAt: req.ReceivedAt,
		Remaining:  decision.Remaining - 1,
	})

	if err := p.cfg.Dispatcher.Dispatch(ctx, job); err != nil {
		slog.Error("print dispatch failed", "sender", req.Sender, "job_id", job.ID, "error", err)
		return Outcome{State: StatePrintFailed, Reason: err.Error(), Remaining: decision.Remaining, JobID: job.ID}
	}

	// 7. Quota is consumed only after the device accepted the job.
	if err := p.cfg.Limiter.Increment(ctx, req.Sender, req.ReceivedAt); err != nil {
		slog.Error("rate limit increment failed", "sender", req.Sender, "error", err)
	}

	return Outcome{
		State:             StatePrinted,
		Remaining:         decision.Remaining - 1,
		ImagesUnavailable: imagesUnavailable,
		ImageCount:        len(images),
		JobID:             job.ID,
	}
}

// ProcessAPI handles the authenticated path: no rate limit, no
// moderation, text only. The caller has already validated that the
// message is non-empty.
func (p *Pipeline) ProcessAPI(ctx context.Context, req *models.InboundRequest) Outcome {
	job := printer.Build(printer.BuildRequest{
		FromName:   req.From,
		Text:       req.Text,
		FooterText: p.cfg.FooterText,
		ReceivedAt: req.ReceivedAt,
		Remaining:  -1,
	})

	if err := p.cfg.Dispatcher.Dispatch(ctx, job); err != nil {
		slog.Error("print dispatch failed", "sender", req.Sender, "job_id", job.ID, "error", err)
		return Outcome{State: StatePrintFailed, Reason: err.Error(), JobID: job.ID}
	}

	return Outcome{State: StatePrinted, Remaining: -1, JobID: job.ID}
}

// loadImages resolves raw bytes for each image attachment, fetching
// from the provider when content was not inlined. Any fetch error
// drops all images and flags the degraded branch.
func (p *Pipeline) loadImages(ctx context.Context, req *models.InboundRequest) ([][]byte, bool) {
	var raws [][]byte
	for _, a := range req.Attachments {
		if !a.IsImage() {
			continue
		}

		if len(a.Data) > 0 {
			raws = append(raws, a.Data)
			continue
		}

		if p.cfg.Fetcher == nil {
			slog.Warn("no attachment fetcher configured, printing without images", "sender", req.Sender)
			return nil, true
		}

		data, err := p.cfg.Fetcher.FetchAttachment(ctx, req.EmailID, a.ID)
		if err != nil {
			slog.Warn("attachment fetch failed, printing without images",
				"sender", req.Sender,
				"email_id", req.EmailID,
				"attachment_id", a.ID,
				"error", err,
			)
			return nil, true
		}
		raws = append(raws, data)
	}
	return raws, false
}

// moderateImages runs each image past the external moderator. The first
// blocked image terminates the request; later images are never sent.
func (p *Pipeline) moderateImages(ctx context.Context, req *models.InboundRequest, raws [][]byte, remaining int) (Outcome, bool) {
	if len(raws) == 0 {
		return Outcome{}, false
	}

	if p.cfg.Images == nil {
		slog.Warn("no image moderator configured, images pass unmoderated", "sender", req.Sender)
		return Outcome{}, false
	}

	for i, data := range raws {
		v, err := p.cfg.Images.ModerateImage(ctx, data)
		if err != nil {
			// Fail closed: an unreachable moderator blocks, it never admits.
			slog.Error("image moderation call failed", "sender", req.Sender, "index", i, "error", err)
			return Outcome{State: StateImageBlocked, Reason: "image moderation is unavailable", Remaining: remaining}, true
		}
		if !v.Allowed {
			slog.Info("image blocked", "sender", req.Sender, "index", i, "reason", v.Reason)
			return Outcome{State: StateImageBlocked, Reason: v.Reason, Remaining: remaining}, true
		}
	}

	return Outcome{}, false
}

// encodeImages converts surviving images to device bitmaps. An
// undecodable image is skipped with a log — a broken file should not
// cost the sender their message.
func (p *Pipeline) encodeImages(req *models.InboundRequest, raws [][]byte) []*encoder.EncodedImage {
	var images []*encoder.EncodedImage
	for i, data := range raws {
		img, err := encoder.Encode(data, p.cfg.MaxWidth)
		if err != nil {
			if errors.Is(err, encoder.ErrDecode) {
				slog.Warn("skipping undecodable image", "sender", req.Sender, "index", i, "error", err)
				continue
			}
			slog.Error("image encode failed", "sender", req.Sender, "index", i, "error", err)
			continue
		}
		images = append(images, img)
	}
	return images
}
