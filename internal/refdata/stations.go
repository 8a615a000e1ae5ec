package refdata

import (
	"encoding/json"
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/rentwise/geoenrich/internal/geodist"
)

// stationNameRe extracts the station name from the HTML attribute table
// embedded in each feature's Description property.
var stationNameRe = regexp.MustCompile(`<th>STATION_NA</th>\s*<td>(.*?)</td>`)

// LoadStations parses an MRT station-exit GeoJSON feature collection
// into a reference set. Features without a point geometry or without an
// extractable station name are skipped with a warning.
func LoadStations(path string) ([]geodist.ReferencePoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: read stations %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "refdata: parse stations %s", path)
	}

	log := zap.L().With(zap.String("dataset", "stations"))
	points := make([]geodist.ReferencePoint, 0, len(fc.Features))
	var skipped int

	for i, feat := range fc.Features {
		pt, ok := feat.Geometry.(*geom.Point)
		if !ok {
			skipped++
			log.Warn("station feature is not a point", zap.Int("feature", i))
			continue
		}
		coords := pt.Coords()
		if len(coords) < 2 {
			skipped++
			log.Warn("station feature has no coordinates", zap.Int("feature", i))
			continue
		}

		desc, _ := feat.Properties["Description"].(string)
		m := stationNameRe.FindStringSubmatch(desc)
		if m == nil {
			skipped++
			log.Warn("station name not found in description", zap.Int("feature", i))
			continue
		}

		// GeoJSON coordinate order is lon, lat.
		points = append(points, geodist.ReferencePoint{
			Name:      m[1],
			Latitude:  coords[1],
			Longitude: coords[0],
		})
	}

	log.Info("stations loaded",
		zap.Int("resolved", len(points)),
		zap.Int("skipped", skipped),
	)
	return points, nil
}
