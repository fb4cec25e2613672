package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random 32-character hex id, used for request ids, job ids
// and queue consumer names.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
