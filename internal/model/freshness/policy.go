// Package freshness decides whether a cached snapshot may be trusted.
// Every caller goes through these predicates; nothing else compares
// fetch times against the TTL.
package freshness

import (
	"strings"
	"time"

	"max.ks1230/currency-rates/internal/entity/currency"
)

// TTL is the maximum snapshot age before a refetch is required.
const TTL = 23 * time.Hour

// IsEmpty reports whether s is the store default: no source or no rates.
func IsEmpty(s currency.Snapshot) bool {
	return strings.TrimSpace(s.SourceCode) == "" || len(s.Rates) == 0
}

// IsExpired reports whether now is strictly past FetchedAt + TTL.
// Empty snapshots are always expired.
func IsExpired(s currency.Snapshot, now time.Time) bool {
	if IsEmpty(s) {
		return true
	}
	return now.After(s.FetchedAt.Add(TTL))
}

func IsFresh(s currency.Snapshot, now time.Time) bool {
	return !IsExpired(s, now)
}
