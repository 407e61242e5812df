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
	"fmt"

	"github.com/woz-bot/receipt-printer/internal/models"
)

const megabyte = 1 << 20

// AttachmentPolicy enforces count and size ceilings on declared
// attachment metadata, before any content is fetched or decoded.
type AttachmentPolicy struct {
	maxImages  int
	maxImageMB int64
	maxTotalMB int64
}

// NewAttachmentPolicy creates an attachment policy from per-image and
// total megabyte ceilings.
func NewAttachmentPolicy(maxImages int, maxImageMB, maxTotalMB int64) *AttachmentPolicy {
	return &AttachmentPolicy{
		maxImages:  maxImages,
		maxImageMB: maxImageMB,
		maxTotalMB: maxTotalMB,
	}
}

// Validate checks declared attachment metadata. Non-image attachments
// are ignored entirely. Checks run in order: count, per-item size,
// total size — the first failure wins.
func (p *AttachmentPolicy) Validate(attachments []models.Attachment) models.Verdict {
	if len(attachments) == 0 {
		return models.Allow()
	}

	var images []models.Attachment
	for _, a := range attachments {
		if a.IsImage() {
			images = append(images, a)
		}
	}

	if len(images) > p.maxImages {
		return models.Deny(fmt.Sprintf("too many images: %d attached, limit is %d per email", len(images), p.maxImages))
	}

	var total int64
	for _, img := range images {
		if img.Size > p.maxImageMB*megabyte {
			return models.Deny(fmt.Sprintf("an image exceeds the %d MB per-image limit", p.maxImageMB))
		}
		total += img.Size
	}

	if total > p.maxTotalMB*megabyte {
		return models.Deny(fmt.Sprintf("attachments exceed the %d MB total limit", p.maxTotalMB))
	}

	return models.Allow()
}
