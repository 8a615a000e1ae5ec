package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/rentwise/geoenrich/internal/geocache"
	"github.com/rentwise/geoenrich/internal/geodist"
	"github.com/rentwise/geoenrich/internal/pipeline"
	"github.com/rentwise/geoenrich/internal/refdata"
	"github.com/rentwise/geoenrich/internal/resilience"
	"github.com/rentwise/geoenrich/pkg/onemap"
	"github.com/rentwise/geoenrich/pkg/osrm"
)

// openCaches builds the geocode and distance stores for the configured
// driver. The returned closer shuts down whichever backend was opened.
func openCaches() (geocache.GeocodeStore, geocache.DistanceStore, func(), error) {
	switch cfg.Cache.Driver {
	case "sqlite":
		cache, err := geocache.OpenSQLite(cfg.Cache.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return cache.Geocode(), cache.Distance(), func() { _ = cache.Close() }, nil
	case "csv":
		gs, err := geocache.OpenCSVGeocode(cfg.Cache.GeocodePath)
		if err != nil {
			return nil, nil, nil, err
		}
		ds, err := geocache.OpenCSVDistance(cfg.Cache.DistancePath)
		if err != nil {
			_ = gs.Close()
			return nil, nil, nil, err
		}
		return gs, ds, func() {
			_ = gs.Close()
			_ = ds.Close()
		}, nil
	default:
		return nil, nil, nil, eris.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
}

// newSearchClient builds the OneMap client from config.
func newSearchClient() onemap.Client {
	return onemap.NewClient(cfg.OneMap.Token,
		onemap.WithBaseURL(cfg.OneMap.BaseURL),
		onemap.WithRateLimit(cfg.OneMap.RPS),
		onemap.WithHTTPClient(&http.Client{Timeout: 5 * time.Second}),
	)
}

// newRouterClient builds the OSRM client from config.
func newRouterClient() osrm.Client {
	retry := resilience.FixedDelay(cfg.OSRM.Retries, time.Duration(cfg.OSRM.RetryDelay)*time.Second)
	retry.OnRetry = resilience.RetryLogger("osrm", "route")
	return osrm.NewClient(
		osrm.WithBaseURL(cfg.OSRM.BaseURL),
		osrm.WithRetry(retry),
	)
}

// loadReferenceSets builds the nearest-neighbor indexes declared in the
// reference manifest. A missing manifest degrades to empty indexes with
// a warning; enrichment still runs, just without nearest columns.
func loadReferenceSets(ctx context.Context, search onemap.Client) (schools, stations *geodist.Index, err error) {
	m, err := refdata.LoadManifest(cfg.Reference.Manifest)
	if err != nil {
		zap.L().Warn("reference manifest unavailable, nearest columns will be empty",
			zap.String("manifest", cfg.Reference.Manifest),
			zap.Error(err),
		)
		return nil, nil, nil
	}

	for _, ds := range m.Datasets {
		switch ds.Kind {
		case refdata.KindSchools:
			cachePath := ds.Cache
			if cachePath == "" {
				cachePath = "school_geocoded_postal_cache.csv"
			}
			cache, cacheErr := geocache.OpenCSVGeocode(cachePath)
			if cacheErr != nil {
				return nil, nil, cacheErr
			}
			points, loadErr := refdata.LoadSchools(ctx, ds.Path, cache, search)
			_ = cache.Close()
			if loadErr != nil {
				return nil, nil, loadErr
			}
			schools = geodist.NewIndex(points)
		case refdata.KindStations:
			points, loadErr := refdata.LoadStations(ds.Path)
			if loadErr != nil {
				return nil, nil, loadErr
			}
			stations = geodist.NewIndex(points)
		}
	}
	return schools, stations, nil
}

// progressReporter renders one terminal bar per pipeline stage.
func progressReporter() func(stage pipeline.Stage, done, total int) {
	var bar *progressbar.ProgressBar
	var current pipeline.Stage

	return func(stage pipeline.Stage, done, total int) {
		if total == 0 {
			return
		}
		if bar == nil || stage != current {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription(string(stage)),
				progressbar.OptionShowCount(),
			)
			current = stage
		}
		_ = bar.Set(done)
	}
}
