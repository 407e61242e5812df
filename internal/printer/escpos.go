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

import "bytes"

// ESC/POS command bytes. The printer understands a line/bitmap protocol:
// style state changes, text lines, GS v 0 raster blocks, feed and cut.
var (
	cmdInit       = []byte{0x1B, 0x40}             // ESC @
	cmdBoldOn     = []byte{0x1B, 0x45, 0x01}       // ESC E 1
	cmdBoldOff    = []byte{0x1B, 0x45, 0x00}       // ESC E 0
	cmdWideOn     = []byte{0x1D, 0x21, 0x11}       // GS ! — double width+height
	cmdWideOff    = []byte{0x1D, 0x21, 0x00}       // GS ! — normal
	cmdPartialCut = []byte{0x1D, 0x56, 0x41, 0x00} // GS V A 0
)

// Render serialises a job into the ESC/POS byte stream for the device.
func Render(job *Job) []byte {
	var out bytes.Buffer
	out.Write(cmdInit)

	for _, el := range job.Elements {
		switch el.Kind {
		case ElementText:
			out.Write([]byte{0x1B, 0x61, byte(el.Align)}) // ESC a n
			if el.Bold {
				out.Write(cmdBoldOn)
			}
			if el.Wide {
				out.Write(cmdWideOn)
			}
			out.WriteString(el.Text)
			out.WriteByte('\n')
			if el.Wide {
				out.Write(cmdWideOff)
			}
			if el.Bold {
				out.Write(cmdBoldOff)
			}

		case ElementImage:
			if el.Image == nil || len(el.Image.Bitmap) == 0 {
				continue
			}
			out.Write([]byte{0x1B, 0x61, byte(el.Align)})
			writeRaster(&out, el.Image.RowBytes(), el.Image.Height, el.Image.Bitmap)

		case ElementFeed:
			out.Write([]byte{0x1B, 0x64, byte(el.Lines)}) // ESC d n

		case ElementCut:
			out.Write(cmdPartialCut)
		}
	}

	return out.Bytes()
}

// writeRaster emits a GS v 0 raster block: mode 0, width in bytes and
// height in dots, both little-endian, followed by the packed bitmap.
func writeRaster(out *bytes.Buffer, rowBytes, height int, bitmap []byte) {
	out.Write([]byte{
		0x1D, 0x76, 0x30, 0x00,
		byte(rowBytes), byte(rowBytes >> 8),
		byte(height), byte(height >> 8),
	})
	out.Write(bitmap)
}
