// utils/utils.go

package utils

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
)

// sessionAlphabet leaves out 0/O and 1/I so codes survive being read aloud.
const sessionAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const SessionCodeLength = 6

func GenerateUUIDString() string {
	id := uuid.New()
	return id.String()
}

// GenerateSessionCode returns a short, human-typeable session id. Uniqueness is
// the caller's job.
func GenerateSessionCode() string {
	b := make([]byte, SessionCodeLength)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the OS source is unusable
		panic(err)
	}
	for i := range b {
		b[i] = sessionAlphabet[int(b[i])%len(sessionAlphabet)]
	}
	return string(b)
}

func NormalizeSessionCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
