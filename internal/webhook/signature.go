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

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// secretPrefix is the provider's conventional prefix on webhook signing
// secrets. The remainder is base64.
const secretPrefix = "whsec_"

// secretBytes decodes a signing secret. Falls back to the raw string
// when the payload after the prefix is not valid base64.
func secretBytes(secret string) []byte {
	trimmed := strings.TrimPrefix(secret, secretPrefix)
	if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
		return decoded
	}
	return []byte(trimmed)
}

// verifySignature checks a provider webhook signature. The signed
// content is "id.timestamp.body"; the signature header carries one or
// more space-separated "version,signature" pairs, and any matching v1
// entry is accepted.
func verifySignature(secret, msgID, timestamp string, body []byte, sigHeader string) bool {
	if msgID == "" || timestamp == "" || sigHeader == "" {
		return false
	}

	mac := hmac.New(sha256.New, secretBytes(secret))
	mac.Write([]byte(msgID))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	for _, pair := range strings.Split(sigHeader, " ") {
		version, sig, found := strings.Cut(pair, ",")
		if !found || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}

	return false
}
