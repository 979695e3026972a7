package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// ContentHash returns the hex-encoded SHA-256 of data.
func ContentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ScrubEmails replaces email addresses in free text with [EMAIL].
func ScrubEmails(text string) string {
	return emailRe.ReplaceAllString(text, "[EMAIL]")
}
