package chathub

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewConnID returns a ULID used as connection id. ULIDs sort by creation
// time, which keeps connection ids readable in logs.
func NewConnID(now time.Time) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}
