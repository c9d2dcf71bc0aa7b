package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed random identifier such as TXN-3F2504E04F8941D3.
func New(prefix string) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + "-" + id[:16]
}

// Request returns a full UUID for correlating a request across logs.
func Request() string {
	return uuid.NewString()
}
