// Package xid generates the prefixed row identifiers used across the store
// layer: "prod", "cust", "sale", "sitem", "inv" and "user".
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns a time-ordered, collision-resistant identifier such as
// "sale-1756711845000000000-9f86d081aa6cbb12". The nanosecond component keeps
// ids roughly sortable by creation time; the random suffix makes collisions
// within the same nanosecond negligible.
func New(prefix string) string {
	buf := make([]byte, 8)
	suffix := ""
	if _, err := rand.Read(buf); err == nil {
		suffix = "-" + hex.EncodeToString(buf)
	}
	return fmt.Sprintf("%s-%d%s", prefix, time.Now().UnixNano(), suffix)
}
