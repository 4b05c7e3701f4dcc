package importer

import (
	"crypto/rand"
	"fmt"
	"time"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewSessionID allocates a fresh session identifier of the shape
// chat_<wall-ms>_<random-6> (§4.4 step 3).
func NewSessionID() string {
	return fmt.Sprintf("chat_%d_%s", time.Now().UnixMilli(), randSuffix(6))
}

func randSuffix(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to a
		// time-derived suffix rather than panicking mid-import.
		for i := range b {
			b[i] = idAlphabet[(time.Now().UnixNano()+int64(i))%int64(len(idAlphabet))]
		}
		return string(b)
	}
	for i, v := range b {
		b[i] = idAlphabet[int(v)%len(idAlphabet)]
	}
	return string(b)
}
