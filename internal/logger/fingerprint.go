package logger

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint returns a short stable digest of b so correlation identifiers can be
// traced across log lines without being written out.
func Fingerprint(b []byte) string {
	if len(b) == 0 {
		return "-"
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}
