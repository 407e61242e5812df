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

package printer

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/woz-bot/receipt-printer/internal/encoder"
)

func testImage() *encoder.EncodedImage {
	return &encoder.EncodedImage{Width: 8, Height: 2, Bitmap: []byte{0xFF, 0x00}}
}

// TestBuildElementOrder verifies the receipt layout: header, body,
// images, footer, cut — in that order.
func TestBuildElementOrder(t *testing.T) {
	job := Build(BuildRequest{
		FromName:   "Ada",
		Text:       "hello\nworld",
		Images:     []*encoder.EncodedImage{testImage()},
		FooterText: "bridge",
		ReceivedAt: time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC),
		Remaining:  4,
	})

	if job.ID == "" {
		t.Error("job ID not assigned")
	}

	var kinds []ElementKind
	for _, el := range job.Elements {
		kinds = append(kinds, el.Kind)
	}

	want := []ElementKind{
		ElementText, ElementText, ElementFeed, // header + separator
		ElementText, ElementText, ElementFeed, // two body lines
		ElementImage, ElementFeed,
		ElementText, ElementText, ElementText, ElementText, // separator, timestamp, footer, quota
		ElementFeed, ElementCut,
	}
	if len(kinds) != len(want) {
		t.Fatalf("got %d elements, want %d: %v", len(kinds), len(want), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("element %d kind = %v, want %v", i, kinds[i], want[i])
		}
	}

	header := job.Elements[0]
	if !header.Bold || header.Align != AlignCenter || header.Text != "Ada" {
		t.Errorf("header = %+v, want bold centered sender name", header)
	}
	if job.Elements[3].Align != AlignLeft {
		t.Error("body must be left-aligned")
	}

	last := job.Elements[len(job.Elements)-1]
	if last.Kind != ElementCut {
		t.Error("job must end with a cut")
	}
}

// TestBuildWithoutQuotaLine verifies Remaining < 0 suppresses the quota
// footer line (API path).
func TestBuildWithoutQuotaLine(t *testing.T) {
	job := Build(BuildRequest{
		FromName:   "api",
		Text:       "hi",
		ReceivedAt: time.Now(),
		Remaining:  -1,
	})

	for _, el := range job.Elements {
		if el.Kind == ElementText && strings.Contains(el.Text, "left today") {
			t.Errorf("unexpected quota line %q", el.Text)
		}
	}
}

// TestBuildEmptyNameAndText verifies the builder tolerates a blank
// display name and empty body.
func TestBuildEmptyNameAndText(t *testing.T) {
	job := Build(BuildRequest{ReceivedAt: time.Now(), Remaining: -1})

	if job.Elements[0].Text != "anonymous" {
		t.Errorf("header = %q, want anonymous fallback", job.Elements[0].Text)
	}
	for _, el := range job.Elements {
		if el.Kind == ElementText && el.Align == AlignLeft {
			t.Error("empty body must not emit body lines")
		}
	}
}

func TestQuotaLine(t *testing.T) {
	if got := quotaLine(1); got != "1 print left today" {
		t.Errorf("quotaLine(1) = %q", got)
	}
	if got := quotaLine(0); got != "0 prints left today" {
		t.Errorf("quotaLine(0) = %q", got)
	}
}

// TestRenderRasterBlock verifies the GS v 0 framing around the bitmap.
func TestRenderRasterBlock(t *testing.T) {
	img := &encoder.EncodedImage{Width: 16, Height: 3, Bitmap: []byte{1, 2, 3, 4, 5, 6}}
	job := &Job{Elements: []Element{{Kind: ElementImage, Align: AlignCenter, Image: img}}}

	out := Render(job)

	// ESC @ then ESC a 1 then the raster header.
	wantPrefix := []byte{
		0x1B, 0x40,
		0x1B, 0x61, 0x01,
		0x1D, 0x76, 0x30, 0x00,
		0x02, 0x00, // 2 bytes per row, little-endian
		0x03, 0x00, // 3 rows
	}
	if !bytes.HasPrefix(out, wantPrefix) {
		t.Fatalf("render prefix = % x, want % x…", out[:len(wantPrefix)], wantPrefix)
	}
	if !bytes.HasSuffix(out, img.Bitmap) {
		t.Error("bitmap bytes must follow the raster header")
	}
}

// TestRenderTextStyles verifies bold/wide wrap the text and reset after.
func TestRenderTextStyles(t *testing.T) {
	job := &Job{Elements: []Element{
		{Kind: ElementText, Align: AlignCenter, Bold: true, Wide: true, Text: "HI"},
		{Kind: ElementCut},
	}}

	out := Render(job)

	boldOn := bytes.Index(out, cmdBoldOn)
	text := bytes.Index(out, []byte("HI"))
	boldOff := bytes.Index(out, cmdBoldOff)
	cut := bytes.Index(out, cmdPartialCut)

	if boldOn == -1 || text == -1 || boldOff == -1 || cut == -1 {
		t.Fatalf("missing commands in % x", out)
	}
	if !(boldOn < text && text < boldOff && boldOff < cut) {
		t.Errorf("command order wrong: boldOn=%d text=%d boldOff=%d cut=%d", boldOn, text, boldOff, cut)
	}
}

// TestRenderSkipsEmptyImage verifies a nil image element renders nothing.
func TestRenderSkipsEmptyImage(t *testing.T) {
	job := &Job{Elements: []Element{{Kind: ElementImage}}}
	out := Render(job)
	if !bytes.Equal(out, cmdInit) {
		t.Errorf("render = % x, want init only", out)
	}
}
