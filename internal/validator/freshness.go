// Package validator implements the stateless checks request handlers
// compose before committing a mutation: freshness, self-signed and
// key-signed record verification, and the structural invariants on
// user, device, topic, and update records.
package validator

import (
	"time"

	"github.com/christophhagen/RendezvousServer/internal/apperr"
)

// FreshnessWindow is the maximum allowed skew between a record's
// timestamp and the server's clock.
const FreshnessWindow = 60 * time.Second

// CheckFreshness rejects a timestamp (epoch seconds) more than
// FreshnessWindow away from now.
func CheckFreshness(timestamp int64) error {
	now := time.Now().Unix()
	delta := now - timestamp
	if delta < 0 {
		delta = -delta
	}
	if delta > int64(FreshnessWindow.Seconds()) {
		return apperr.Outdated("timestamp outside the freshness window")
	}
	return nil
}
