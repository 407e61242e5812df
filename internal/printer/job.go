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

// Package printer assembles print jobs and transmits them to the
// thermal printer as ESC/POS byte streams over raw TCP.
package printer

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/woz-bot/receipt-printer/internal/encoder"
)

// Alignment positions an element on the paper.
type Alignment byte

const (
	AlignLeft   Alignment = 0
	AlignCenter Alignment = 1
	AlignRight  Alignment = 2
)

// ElementKind tags a printable element.
type ElementKind int

const (
	ElementText ElementKind = iota
	ElementImage
	ElementFeed
	ElementCut
)

// Element is one printable item in a job. Exactly one of Text/Image/
// Lines is meaningful depending on Kind.
type Element struct {
	Kind  ElementKind
	Align Alignment
	Bold  bool
	Wide  bool // double width+height text
	Text  string
	Image *encoder.EncodedImage
	Lines int // feed line count
}

// Job is an ordered sequence of elements, built once per admitted
// request and handed to the dispatcher.
type Job struct {
	ID       string
	Elements []Element
}

// separator is the horizontal rule printed in headers and footers
// (32 columns fits both 58mm and 80mm paper in the default font).
const separator = "--------------------------------"

// BuildRequest carries everything the builder needs. All admission
// decisions happen upstream — the builder only assembles.
type BuildRequest struct {
	FromName   string
	Text       string
	Images     []*encoder.EncodedImage
	FooterText string
	ReceivedAt time.Time

	// Remaining is the sender's remaining daily quota after this
	// print. Negative means "do not print a quota line" (API path).
	Remaining int
}

// Build assembles a print job: bold centered header, left-aligned body,
// centered images, centered footer with timestamp, cut.
func Build(req BuildRequest) *Job {
	job := &Job{ID: uuid.New().String()}

	name := strings.TrimSpace(req.FromName)
	if name == "" {
		name = "anonymous"
	}

	// Header
	job.Elements = append(job.Elements,
		Element{Kind: ElementText, Align: AlignCenter, Bold: true, Wide: true, Text: name},
		Element{Kind: ElementText, Align: AlignCenter, Text: separator},
		Element{Kind: ElementFeed, Lines: 1},
	)

	// Body
	if text := strings.TrimSpace(req.Text); text != "" {
		for _, line := range strings.Split(text, "\n") {
			job.Elements = append(job.Elements, Element{Kind: ElementText, Align: AlignLeft, Text: line})
		}
		job.Elements = append(job.Elements, Element{Kind: ElementFeed, Lines: 1})
	}

	// Images
	for _, img := range req.Images {
		job.Elements = append(job.Elements,
			Element{Kind: ElementImage, Align: AlignCenter, Image: img},
			Element{Kind: ElementFeed, Lines: 1},
		)
	}

	// Footer
	job.Elements = append(job.Elements,
		Element{Kind: ElementText, Align: AlignCenter, Text: separator},
		Element{Kind: ElementText, Align: AlignCenter, Text: req.ReceivedAt.UTC().Format("2006-01-02 15:04 MST")},
	)
	if req.FooterText != "" {
		job.Elements = append(job.Elements, Element{Kind: ElementText, Align: AlignCenter, Text: req.FooterText})
	}
	if req.Remaining >= 0 {
		job.Elements = append(job.Elements, Element{
			Kind:  ElementText,
			Align: AlignCenter,
			Text:  quotaLine(req.Remaining),
		})
	}

	job.Elements = append(job.Elements,
		Element{Kind: ElementFeed, Lines: 3},
		Element{Kind: ElementCut},
	)

	return job
}

func quotaLine(remaining int) string {
	if remaining == 1 {
		return "1 print left today"
	}
	return fmt.Sprintf("%d prints left today", remaining)
}
