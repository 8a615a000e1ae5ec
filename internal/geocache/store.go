// Package geocache persists geocoding and driving-distance lookups so
// repeated runs only pay for addresses they have not seen before.
package geocache

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status tags a geocode cache entry with how the lookup concluded.
// Primary lookups treat not_found as settled; the street fallback pass
// re-queries any unresolved entry. Transient errors may be re-attempted
// on a later run.
type Status string

const (
	// StatusOK marks a successful resolution.
	StatusOK Status = "ok"
	// StatusNotFound marks an address the search service has no result for.
	StatusNotFound Status = "not_found"
	// StatusError marks a transient failure (timeout, 5xx, bad payload).
	StatusError Status = "error"
)

// GeocodeEntry is one row of the geocode cache.
type GeocodeEntry struct {
	Key       string   `csv:"address"`
	Latitude  *float64 `csv:"latitude"`
	Longitude *float64 `csv:"longitude"`
	Status    Status   `csv:"status"`
}

// Resolved reports whether the entry carries usable coordinates.
func (e GeocodeEntry) Resolved() bool {
	return e.Status == StatusOK && e.Latitude != nil && e.Longitude != nil
}

// DistanceEntry is one row of the CBD driving-distance cache, keyed by
// the origin address (not the coordinate pair).
type DistanceEntry struct {
	Key        string   `csv:"address"`
	DistanceKM *float64 `csv:"dist_to_cbd_km"`
}

// GeocodeStore is a persistent address -> coordinates cache. Put appends
// and flushes immediately so a crash loses at most the in-flight entry.
type GeocodeStore interface {
	Get(key string) (GeocodeEntry, bool)
	Put(entry GeocodeEntry) error
	// Each visits every entry in unspecified order.
	Each(fn func(GeocodeEntry))
	Len() int
	Close() error
}

// DistanceStore is a persistent address -> CBD distance cache.
type DistanceStore interface {
	Get(key string) (DistanceEntry, bool)
	Put(entry DistanceEntry) error
	Len() int
	Close() error
}

var upperCaser = cases.Upper(language.English)

// NormalizeKey canonicalizes a cache key: trim, uppercase, collapse
// internal whitespace. Applied on both reads and writes so case and
// spacing variants of one address share a single entry.
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(upperCaser.String(s)), " ")
}
