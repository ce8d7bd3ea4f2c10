package lib

import (
	"github.com/google/uuid"
)

// NewID generates a UUID version 4 string (RFC 4122)
func NewID() string {
	return uuid.NewString()
}

// ShortID returns the first group of a generated ID, handy for log fields and
// file system names.
func ShortID(id string) string {
	if len(id) < 8 {
		return id
	}
	return id[:8]
}
