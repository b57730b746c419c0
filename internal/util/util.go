package util

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULIDs are sortable, which keeps queue and tracking indexes tidy and
// makes dashboard ordering free.

func NewQueueID() string {
	return "fila_" + newULID()
}

// NewTrackingCode mints a fresh tracking code. Used on the first send
// attempt for an item and as the fallback when a failure happens before
// any tracking row exists; retries of the same logical send reuse the
// stored code instead of calling this.
func NewTrackingCode() string {
	return "trk_" + newULID()
}

// NewID is a bare ULID for callers that add their own prefix.
func NewID() string {
	return newULID()
}

func newULID() string {
	t := time.Now().UTC()
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
