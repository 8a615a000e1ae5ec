// Package refdata loads the fixed reference sets (schools, MRT station
// exits) that nearest-neighbor enrichment runs against.
package refdata

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DatasetKind identifies how a reference dataset is parsed.
type DatasetKind string

const (
	// KindSchools is a school CSV whose postal codes are geocoded
	// through the place-search API with a dedicated cache.
	KindSchools DatasetKind = "schools"
	// KindStations is a GeoJSON feature collection of MRT station exits.
	KindStations DatasetKind = "stations"
)

// Dataset describes one reference data source.
type Dataset struct {
	Name  string      `yaml:"name"`
	Kind  DatasetKind `yaml:"kind"`
	Path  string      `yaml:"path"`
	Cache string      `yaml:"cache,omitempty"` // geocode cache, schools only
}

// Manifest declares the reference datasets for a run.
type Manifest struct {
	Datasets []Dataset `yaml:"datasets"`
}

// LoadManifest reads and validates a reference-data manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: read manifest %s", path)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "refdata: parse manifest %s", path)
	}

	for _, ds := range m.Datasets {
		switch ds.Kind {
		case KindSchools, KindStations:
		default:
			return nil, eris.Errorf("refdata: dataset %q has unknown kind %q", ds.Name, ds.Kind)
		}
		if ds.Path == "" {
			return nil, eris.Errorf("refdata: dataset %q has no path", ds.Name)
		}
	}
	return &m, nil
}
