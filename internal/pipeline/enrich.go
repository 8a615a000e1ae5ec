package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rentwise/geoenrich/internal/geocache"
	"github.com/rentwise/geoenrich/internal/geodist"
	"github.com/rentwise/geoenrich/pkg/onemap"
	"github.com/rentwise/geoenrich/pkg/osrm"
)

// Stage identifies a pipeline phase for progress reporting.
type Stage string

const (
	// StageGeocode is the primary full-address geocoding pass.
	StageGeocode Stage = "geocode"
	// StageFallback is the street-only retry pass.
	StageFallback Stage = "fallback"
	// StageDistance is the CBD driving-distance pass.
	StageDistance Stage = "distance"
	// StageNearest is the nearest school/station pass.
	StageNearest Stage = "nearest"
)

// Options tunes the enrichment run.
type Options struct {
	// Workers bounds concurrent geocoding requests. Cache writes stay
	// serialized in a single goroutine regardless. Default 1, the
	// original strictly sequential behavior.
	Workers int

	// CacheTransientErrors persists transient geocoding failures. Off by
	// default so a later run re-attempts them; not-found results are
	// always cached.
	CacheTransientErrors bool

	// OnProgress, when set, is called after each unit of work.
	OnProgress func(stage Stage, done, total int)
}

// Stats summarizes an enrichment run.
type Stats struct {
	Properties    int
	Addresses     int
	CacheHits     int
	Geocoded      int
	FallbackFixed int
	Unresolved    int
	Distances     int
}

// Enricher wires the geocoder, router, and caches into the enrichment
// pipeline.
type Enricher struct {
	search    onemap.Client
	router    osrm.Client
	geocodes  geocache.GeocodeStore
	distances geocache.DistanceStore
	cbd       osrm.Coordinate
	opts      Options
}

// New creates an Enricher. cbd is the fixed destination for the
// driving-distance stage.
func New(search onemap.Client, router osrm.Client, geocodes geocache.GeocodeStore, distances geocache.DistanceStore, cbd osrm.Coordinate, opts Options) *Enricher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Enricher{
		search:    search,
		router:    router,
		geocodes:  geocodes,
		distances: distances,
		cbd:       cbd,
		opts:      opts,
	}
}

// addressPair carries the raw full address and its street-only
// component for the fallback pass. Keys into caches are normalized;
// queries to the search API use the raw strings.
type addressPair struct {
	full   string
	street string
}

// distinctAddresses extracts unique addresses in first-seen row order.
func distinctAddresses(t *Table) []addressPair {
	seen := make(map[string]struct{})
	var pairs []addressPair
	for i := range t.Rows {
		key := geocache.NormalizeKey(t.Address(i))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		pairs = append(pairs, addressPair{full: t.Address(i), street: t.Street(i)})
	}
	return pairs
}

// Enrich runs the full pipeline over the property table and returns the
// enrichment for each distinct address key. No input row is ever
// dropped; addresses that stay unresolved simply get empty enrichment.
func (e *Enricher) Enrich(ctx context.Context, t *Table, schools, stations *geodist.Index) (map[string]Enrichment, Stats, error) {
	pairs := distinctAddresses(t)
	stats := Stats{Properties: len(t.Rows), Addresses: len(pairs)}

	log := zap.L().With(zap.Int("properties", stats.Properties), zap.Int("addresses", stats.Addresses))
	log.Info("enrichment started")

	resolved := e.resolvePrimary(ctx, pairs, &stats)
	e.resolveFallback(ctx, pairs, resolved, &stats)

	out := make(map[string]Enrichment, len(pairs))
	for _, p := range pairs {
		key := geocache.NormalizeKey(p.full)
		entry := resolved[key]
		if !entry.Resolved() {
			stats.Unresolved++
			out[key] = Enrichment{}
			continue
		}
		out[key] = Enrichment{Latitude: entry.Latitude, Longitude: entry.Longitude}
	}

	e.computeDistances(ctx, pairs, resolved, out, &stats)
	e.lookupNearest(pairs, out, schools, stations)

	log.Info("enrichment complete",
		zap.Int("cache_hits", stats.CacheHits),
		zap.Int("geocoded", stats.Geocoded),
		zap.Int("fallback_fixed", stats.FallbackFixed),
		zap.Int("unresolved", stats.Unresolved),
		zap.Int("distances", stats.Distances),
	)
	return out, stats, nil
}

// GeocodeOnly runs just the primary and fallback geocoding passes,
// warming the cache without computing distances.
func (e *Enricher) GeocodeOnly(ctx context.Context, t *Table) (Stats, error) {
	pairs := distinctAddresses(t)
	stats := Stats{Properties: len(t.Rows), Addresses: len(pairs)}

	resolved := e.resolvePrimary(ctx, pairs, &stats)
	e.resolveFallback(ctx, pairs, resolved, &stats)

	for _, p := range pairs {
		if !resolved[geocache.NormalizeKey(p.full)].Resolved() {
			stats.Unresolved++
		}
	}
	return stats, nil
}

// resolvePrimary resolves every distinct address cache-first, querying
// the search API for misses with a bounded worker pool. All cache
// writes happen on this goroutine, so the append-only files never see
// interleaved writers.
func (e *Enricher) resolvePrimary(ctx context.Context, pairs []addressPair, stats *Stats) map[string]geocache.GeocodeEntry {
	resolved := make(map[string]geocache.GeocodeEntry, len(pairs))

	var pending []addressPair
	for _, p := range pairs {
		key := geocache.NormalizeKey(p.full)
		if entry, ok := e.geocodes.Get(key); ok && entry.Status != geocache.StatusError {
			resolved[key] = entry
			stats.CacheHits++
			continue
		}
		pending = append(pending, p)
	}

	total := len(pending)
	e.progress(StageGeocode, 0, total)
	if total == 0 {
		return resolved
	}

	results := make(chan geocache.GeocodeEntry, e.opts.Workers)

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.opts.Workers)
	go func() {
		for _, p := range pending {
			eg.Go(func() error {
				results <- e.lookup(gCtx, p.full)
				return nil
			})
		}
		_ = eg.Wait()
		close(results)
	}()

	var done int
	for entry := range results {
		key := geocache.NormalizeKey(entry.Key)
		resolved[key] = entry
		stats.Geocoded++
		if entry.Status != geocache.StatusError || e.opts.CacheTransientErrors {
			if err := e.geocodes.Put(entry); err != nil {
				zap.L().Warn("geocode cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		done++
		e.progress(StageGeocode, done, total)
	}

	return resolved
}

// resolveFallback retries unresolved addresses with their street-only
// component, cache-first. Street results are cached under the street
// key; the resolved coordinates are attributed to the full address for
// this run only.
func (e *Enricher) resolveFallback(ctx context.Context, pairs []addressPair, resolved map[string]geocache.GeocodeEntry, stats *Stats) {
	var pending []addressPair
	for _, p := range pairs {
		if !resolved[geocache.NormalizeKey(p.full)].Resolved() && p.street != "" {
			pending = append(pending, p)
		}
	}

	total := len(pending)
	e.progress(StageFallback, 0, total)

	for i, p := range pending {
		if ctx.Err() != nil {
			return
		}

		streetKey := geocache.NormalizeKey(p.street)
		cached, wasCached := e.geocodes.Get(streetKey)
		entry := cached
		if !wasCached || !entry.Resolved() {
			entry = e.lookup(ctx, p.street)
			cacheable := entry.Status != geocache.StatusError || e.opts.CacheTransientErrors
			// An unchanged outcome is already on disk; re-appending it
			// would grow the file with duplicate rows every run.
			if cacheable && (!wasCached || entry.Status != cached.Status) {
				if err := e.geocodes.Put(entry); err != nil {
					zap.L().Warn("geocode cache write failed", zap.String("key", streetKey), zap.Error(err))
				}
			}
		}

		if entry.Resolved() {
			full := resolved[geocache.NormalizeKey(p.full)]
			full.Latitude = entry.Latitude
			full.Longitude = entry.Longitude
			full.Status = geocache.StatusOK
			resolved[geocache.NormalizeKey(p.full)] = full
			stats.FallbackFixed++
		}
		e.progress(StageFallback, i+1, total)
	}
}

// lookup performs one search call and maps the outcome onto a tagged
// cache entry. Failures degrade to a status, never an error.
func (e *Enricher) lookup(ctx context.Context, query string) geocache.GeocodeEntry {
	entry := geocache.GeocodeEntry{Key: query}

	result, err := e.search.Search(ctx, query)
	switch {
	case err != nil:
		zap.L().Warn("geocode lookup failed", zap.String("address", query), zap.Error(err))
		entry.Status = geocache.StatusError
	case !result.Found:
		entry.Status = geocache.StatusNotFound
	default:
		entry.Status = geocache.StatusOK
		entry.Latitude = &result.Latitude
		entry.Longitude = &result.Longitude
	}
	return entry
}

// computeDistances fills DistToCBDKM for every resolved address,
// cache-first, keyed by the origin address. Unresolved addresses are
// skipped entirely; exhausted retries cache a null so the merge still
// carries the address.
func (e *Enricher) computeDistances(ctx context.Context, pairs []addressPair, resolved map[string]geocache.GeocodeEntry, out map[string]Enrichment, stats *Stats) {
	type job struct {
		key   string
		entry geocache.GeocodeEntry
	}

	var pending []job
	for _, p := range pairs {
		key := geocache.NormalizeKey(p.full)
		entry := resolved[key]
		if !entry.Resolved() {
			continue
		}
		if cached, ok := e.distances.Get(key); ok {
			enr := out[key]
			enr.DistToCBDKM = cached.DistanceKM
			out[key] = enr
			continue
		}
		pending = append(pending, job{key: key, entry: entry})
	}

	total := len(pending)
	e.progress(StageDistance, 0, total)

	for i, j := range pending {
		if ctx.Err() != nil {
			return
		}

		dentry := geocache.DistanceEntry{Key: j.key}
		km, err := e.router.DrivingDistanceKM(ctx, e.cbd, osrm.Coordinate{
			Lon: *j.entry.Longitude,
			Lat: *j.entry.Latitude,
		})
		if err != nil {
			zap.L().Warn("CBD distance failed", zap.String("address", j.key), zap.Error(err))
		} else {
			dentry.DistanceKM = &km
			stats.Distances++
		}

		if err := e.distances.Put(dentry); err != nil {
			zap.L().Warn("distance cache write failed", zap.String("key", j.key), zap.Error(err))
		}

		enr := out[j.key]
		enr.DistToCBDKM = dentry.DistanceKM
		out[j.key] = enr
		e.progress(StageDistance, i+1, total)
	}
}

// lookupNearest fills the nearest school and MRT station for every
// resolved address. Indexes may be empty, in which case the columns
// stay blank.
func (e *Enricher) lookupNearest(pairs []addressPair, out map[string]Enrichment, schools, stations *geodist.Index) {
	total := len(pairs)
	e.progress(StageNearest, 0, total)

	for i, p := range pairs {
		key := geocache.NormalizeKey(p.full)
		enr := out[key]
		if enr.Latitude == nil || enr.Longitude == nil {
			e.progress(StageNearest, i+1, total)
			continue
		}

		if schools != nil {
			if pt, km, ok := schools.Nearest(*enr.Latitude, *enr.Longitude); ok {
				enr.NearestSchool = pt.Name
				enr.SchoolKM = &km
			}
		}
		if stations != nil {
			if pt, km, ok := stations.Nearest(*enr.Latitude, *enr.Longitude); ok {
				enr.NearestMRT = pt.Name
				enr.MRTKM = &km
			}
		}
		out[key] = enr
		e.progress(StageNearest, i+1, total)
	}
}

func (e *Enricher) progress(stage Stage, done, total int) {
	if e.opts.OnProgress != nil {
		e.opts.OnProgress(stage, done, total)
	}
}
