package util

import "github.com/google/uuid"

// NewID returns a URL-safe unique ID.
func NewID() string {
	return uuid.NewString()
}
