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

// Receipt Printer — Test Page Command
//
// Standalone CLI tool that sends a test page straight to the printer,
// bypassing the admission pipeline. Intended for checking cabling,
// paper width and image rendering on new deployments.
//
// Usage:
//
//	go run ./cmd/printtest/ --host 192.168.1.50 [--text "hello"] [--image photo.jpg]
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/woz-bot/receipt-printer/internal/encoder"
	"github.com/woz-bot/receipt-printer/internal/printer"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	hostFlag := flag.String("host", os.Getenv("PRINTER_HOST"), "Printer host (required)")
	portFlag := flag.Int("port", 9100, "Printer TCP port")
	widthFlag := flag.Int("width", 384, "Printable width in pixels (384 for 58mm, 576 for 80mm)")
	textFlag := flag.String("text", "receipt printer test page", "Text to print")
	imageFlag := flag.String("image", "", "Path to an image file to print (default: built-in test pattern)")
	flag.Parse()

	if *hostFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --host is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	// --- Encode the image (file or built-in pattern) ---
	var data []byte
	if *imageFlag != "" {
		var err error
		data, err = os.ReadFile(*imageFlag)
		if err != nil {
			slog.Error("failed to read image file", "path", *imageFlag, "error", err)
			os.Exit(1)
		}
	} else {
		data = testPattern(*widthFlag)
	}

	img, err := encoder.Encode(data, *widthFlag)
	if err != nil {
		slog.Error("failed to encode image", "error", err)
		os.Exit(1)
	}
	slog.Info("image encoded",
		"width", img.Width,
		"height", img.Height,
		"row_bytes", img.RowBytes(),
	)
	images := []*encoder.EncodedImage{img}

	// --- Build and dispatch ---
	job := printer.Build(printer.BuildRequest{
		FromName:   "printtest",
		Text:       *textFlag,
		Images:     images,
		FooterText: "test page",
		ReceivedAt: time.Now(),
		Remaining:  -1,
	})

	dispatcher := printer.NewTCPDispatcher(*hostFlag, *portFlag)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := dispatcher.Dispatch(ctx, job); err != nil {
		slog.Error("dispatch failed", "host", *hostFlag, "port", *portFlag, "error", err)
		os.Exit(1)
	}

	slog.Info("test page printed", "job_id", job.ID, "images", len(images))
}

// testPattern renders a gradient-and-checkerboard PNG that exercises
// the dithering and bit-packing stages at the given width.
func testPattern(width int) []byte {
	const height = 96
	img := image.NewGray(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if y < height/2 {
				// Horizontal gradient: dithering should produce an even ramp.
				img.Pix[y*img.Stride+x] = uint8(x * 255 / (width - 1))
			} else if (x/8+y/8)%2 == 0 {
				// 8px checkerboard: packing should produce crisp blocks.
				img.Pix[y*img.Stride+x] = 0
			} else {
				img.Pix[y*img.Stride+x] = 255
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		// Encoding an in-memory gray image cannot fail in practice.
		panic(err)
	}
	return buf.Bytes()
}
