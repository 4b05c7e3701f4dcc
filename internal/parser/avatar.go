package parser

import (
	"strings"

	"github.com/segmentio/asm/base64"
)

// dataURLPrefix matches what every format's avatar field already carries or
// is rewritten to carry before it reaches the store (§6.1: groupAvatar /
// avatar are "data-url").
const dataURLPrefix = "data:image/"

// DecodeAvatarPayload strips a data: URL down to its base64 payload and
// decodes it with the SIMD-accelerated, stdlib-compatible codec from
// segmentio/asm. No parser calls it: avatar strings are stored as the
// source carries them. It returns the raw bytes and false when dataURL isn't a data: URL at all
// (formats may hand back an http(s) URL instead, which the core never
// fetches — fetching it is a rendering concern, out of scope per §1).
func DecodeAvatarPayload(dataURL string) ([]byte, bool) {
	idx := strings.IndexByte(dataURL, ',')
	if idx < 0 || !strings.HasPrefix(dataURL, "data:") {
		return nil, false
	}
	payload := dataURL[idx+1:]
	buf := make([]byte, base64.StdEncoding.DecodedLen(len(payload)))
	n, err := base64.StdEncoding.Decode(buf, []byte(payload))
	if err != nil {
		return nil, false
	}
	return buf[:n], true
}

// EncodeAvatarDataURL is the inverse: it builds a data:image/<mime>;base64
// URL from raw bytes. Neither the canonical writer nor the merger calls it.
func EncodeAvatarDataURL(mime string, raw []byte) string {
	var sb strings.Builder
	sb.WriteString(dataURLPrefix)
	sb.WriteString(mime)
	sb.WriteString(";base64,")
	sb.WriteString(base64.StdEncoding.EncodeToString(raw))
	return sb.String()
}
