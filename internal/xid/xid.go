package xid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// New returns a random identifier tagged with prefix, e.g. "stf-3f2c...".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return fmt.Sprintf("%s-%s", prefix, id)
}

// Valid reports whether raw parses as a bare UUID.
func Valid(raw string) bool {
	_, err := uuid.Parse(raw)
	return err == nil
}
