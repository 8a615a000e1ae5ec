package refdata

import (
	"context"
	"os"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rentwise/geoenrich/internal/geocache"
	"github.com/rentwise/geoenrich/internal/geodist"
	"github.com/rentwise/geoenrich/pkg/onemap"
)

// schoolRow is one record of the school source CSV.
type schoolRow struct {
	Name       string `csv:"school_name"`
	PostalCode string `csv:"postal_code"`
}

// padPostalCode left-pads a postal code with zeros to six digits.
// Spreadsheet exports routinely strip the leading zero.
func padPostalCode(pc string) string {
	pc = strings.TrimSpace(pc)
	if len(pc) >= 6 {
		return pc
	}
	return strings.Repeat("0", 6-len(pc)) + pc
}

// LoadSchools reads the school CSV and resolves each school to a
// coordinate via its postal code, cache-first. Schools whose postal
// code fails to resolve get a second attempt by school name. Schools
// that still lack coordinates are dropped from the reference set with
// a warning; they cannot participate in nearest-neighbor search.
func LoadSchools(ctx context.Context, path string, cache geocache.GeocodeStore, search onemap.Client) ([]geodist.ReferencePoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: read schools %s", path)
	}

	var rows []schoolRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "refdata: parse schools %s", path)
	}

	log := zap.L().With(zap.String("dataset", "schools"))
	points := make([]geodist.ReferencePoint, 0, len(rows))
	var dropped int

	for _, row := range rows {
		pc := padPostalCode(row.PostalCode)

		entry := resolveKey(ctx, pc, cache, search)
		if !entry.Resolved() {
			// Second pass: the postal code drew a blank, try the name.
			entry = resolveKey(ctx, row.Name, cache, search)
		}
		if !entry.Resolved() {
			dropped++
			log.Warn("school unresolved, dropped from reference set",
				zap.String("school", row.Name),
				zap.String("postal_code", pc),
			)
			continue
		}

		points = append(points, geodist.ReferencePoint{
			Name:      row.Name,
			Latitude:  *entry.Latitude,
			Longitude: *entry.Longitude,
		})
	}

	log.Info("schools loaded",
		zap.Int("resolved", len(points)),
		zap.Int("dropped", dropped),
	)
	return points, nil
}

// resolveKey is the cache-first single-key resolution used by the
// school sub-pipeline. Lookup failures degrade to an unresolved entry.
func resolveKey(ctx context.Context, key string, cache geocache.GeocodeStore, search onemap.Client) geocache.GeocodeEntry {
	if entry, ok := cache.Get(key); ok && entry.Status != geocache.StatusError {
		return entry
	}

	entry := geocache.GeocodeEntry{Key: key}
	result, err := search.Search(ctx, key)
	switch {
	case err != nil:
		zap.L().Warn("school geocode failed", zap.String("key", key), zap.Error(err))
		entry.Status = geocache.StatusError
	case !result.Found:
		entry.Status = geocache.StatusNotFound
	default:
		entry.Status = geocache.StatusOK
		entry.Latitude = &result.Latitude
		entry.Longitude = &result.Longitude
	}

	if entry.Status != geocache.StatusError {
		if err := cache.Put(entry); err != nil {
			zap.L().Warn("school cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return entry
}
