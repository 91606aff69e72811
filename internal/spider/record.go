// Package spider keeps a usable spider JAR available despite an unreliable mirror set:
// a disk tier, a memory tier, an ordered candidate list with a failure set, and an
// embedded fallback as the last resort.
package spider

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// FallbackOrigin is the OriginURL of records built from the embedded fallback.
const FallbackOrigin = "fallback"

// Record is one resolution result. Binary is never nil on records returned by Manager.
type Record struct {
	Binary       []byte
	Checksum     string // lowercase hex MD5 of Binary
	OriginURL    string // candidate URL or FallbackOrigin
	Succeeded    bool   // false for fallback records
	FetchedAt    time.Time
	SizeBytes    int
	AttemptsUsed int  // candidates tried during the network pass
	Cached       bool // served from the disk or memory tier
}

// Checksum returns the lowercase hex MD5 of b.
func Checksum(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func newRecord(b []byte, origin string, ok bool, at time.Time, attempts int) Record {
	return Record{
		Binary:       b,
		Checksum:     Checksum(b),
		OriginURL:    origin,
		Succeeded:    ok,
		FetchedAt:    at,
		SizeBytes:    len(b),
		AttemptsUsed: attempts,
	}
}

// freshAt reports whether r is still inside its TTL at now: successTTL for
// successful records, failureTTL for fallback records.
func (r Record) freshAt(now time.Time, successTTL, failureTTL time.Duration) bool {
	if r.Binary == nil {
		return false
	}
	ttl := failureTTL
	if r.Succeeded {
		ttl = successTTL
	}
	return now.Sub(r.FetchedAt) < ttl
}
