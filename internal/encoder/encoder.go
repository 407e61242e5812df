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

// Package encoder converts raster images into the packed monochrome
// bitmap the thermal printer consumes: width-capped, grayscaled,
// Floyd–Steinberg dithered, one bit per pixel MSB-first. Bit order,
// error weights, and threshold placement are part of the device
// contract — the printed output is only faithful if they match exactly.
package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// ErrDecode indicates the input bytes are not a decodable raster image.
var ErrDecode = errors.New("image decode failed")

// EncodedImage is a printer-ready monochrome bitmap. Bitmap holds
// ceil(Width/8) bytes per row, rows top to bottom, MSB-first within
// each byte, bit 1 = black ink.
type EncodedImage struct {
	Width  int
	Height int
	Bitmap []byte
}

// RowBytes returns the number of bytes per bitmap row.
func (e *EncodedImage) RowBytes() int {
	return (e.Width + 7) / 8
}

// Encode decodes raw image bytes and produces the device bitmap.
// Images wider than maxWidth are scaled down preserving aspect ratio;
// narrower images are never upscaled.
func Encode(data []byte, maxWidth int) (*EncodedImage, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	targetW, targetH := width, height
	if width > maxWidth {
		scale := float64(maxWidth) / float64(width)
		targetW = maxWidth
		targetH = int(float64(height) * scale)
		if targetH < 1 {
			targetH = 1
		}
	}

	gray := grayscale(img, targetW, targetH)
	dither(gray, targetW, targetH)
	return pack(gray, targetW, targetH), nil
}

// grayscale resamples the image to targetW×targetH (nearest neighbour)
// and converts each pixel to the unweighted mean of its RGB channels.
// Alpha is ignored: channels are read non-premultiplied, so a
// transparent pixel keeps its underlying color instead of collapsing
// to black the way premultiplied RGBA() would.
func grayscale(img image.Image, targetW, targetH int) []int {
	bounds := img.Bounds()
	scaleX := float64(bounds.Dx()) / float64(targetW)
	scaleY := float64(bounds.Dy()) / float64(targetH)

	out := make([]int, targetW*targetH)
	for y := 0; y < targetH; y++ {
		sy := bounds.Min.Y + int(float64(y)*scaleY)
		for x := 0; x < targetW; x++ {
			sx := bounds.Min.X + int(float64(x)*scaleX)
			c := color.NRGBAModel.Convert(img.At(sx, sy)).(color.NRGBA)
			out[y*targetW+x] = (int(c.R) + int(c.G) + int(c.B)) / 3
		}
	}
	return out
}

// dither applies Floyd–Steinberg error diffusion in a single raster-
// order pass, mutating buf in place to binary 0/255 values. The
// threshold is 128: values below it go black, 128 itself goes white.
// Error spills to the right (7/16), bottom-left (3/16), bottom (5/16)
// and bottom-right (1/16); neighbours outside the grid are skipped.
func dither(buf []int, width, height int) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			old := buf[i]

			out := 255
			if old < 128 {
				out = 0
			}
			buf[i] = out

			err := old - out
			if x+1 < width {
				buf[i+1] += err * 7 / 16
			}
			if y+1 < height {
				if x-1 >= 0 {
					buf[i+width-1] += err * 3 / 16
				}
				buf[i+width] += err * 5 / 16
				if x+1 < width {
					buf[i+width+1] += err * 1 / 16
				}
			}
		}
	}
}

// pack turns the binary buffer into the device bitmap: MSB-first, bit 1
// for black (value 0), rows padded to whole bytes with trailing zero bits.
func pack(buf []int, width, height int) *EncodedImage {
	rowBytes := (width + 7) / 8
	bitmap := make([]byte, rowBytes*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if buf[y*width+x] == 0 {
				bitmap[y*rowBytes+x/8] |= 1 << (7 - uint(x%8))
			}
		}
	}

	return &EncodedImage{Width: width, Height: height, Bitmap: bitmap}
}
