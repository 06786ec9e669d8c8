package services

import (
	"strings"

	"github.com/google/uuid"
)

// shortID returns the first n hex characters of a fresh UUID.
func shortID(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}
