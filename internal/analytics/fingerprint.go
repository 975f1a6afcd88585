package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const (
	fingerprintLength = 32
	dayLayout         = "2006-01-02"
)

// Fingerprinter hashes visitor IPs with a secret salt and the current UTC day,
// so the same address yields a new fingerprint every day.
type Fingerprinter struct {
	salt string
}

// NewFingerprinter returns a Fingerprinter keyed by salt.
func NewFingerprinter(salt string) *Fingerprinter {
	return &Fingerprinter{salt: salt}
}

// Fingerprint returns the first 32 hex characters of
// SHA-256(ip ":" salt ":" YYYY-MM-DD), with the day taken in UTC.
func (f *Fingerprinter) Fingerprint(ip string, at time.Time) string {
	sum := sha256.Sum256([]byte(ip + ":" + f.salt + ":" + at.UTC().Format(dayLayout)))
	return hex.EncodeToString(sum[:])[:fingerprintLength]
}
