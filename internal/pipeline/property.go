// Package pipeline orchestrates the property geo-enrichment run:
// distinct-address geocoding, CBD driving distances, nearest school and
// MRT station lookups, and the merge back onto the property table.
package pipeline

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// enrichmentColumns are appended to the property table on output, in
// this order.
var enrichmentColumns = []string{
	"latitude",
	"longitude",
	"dist_to_cbd_km",
	"nearest_school_name",
	"nearest_school_dist_km",
	"nearest_mrt_name",
	"nearest_mrt_dist_km",
}

// Table is a property listing table read from CSV. All source columns
// are preserved verbatim; the enrichment only ever appends columns.
type Table struct {
	Header []string
	Rows   [][]string

	blockIdx  int
	streetIdx int
}

// ReadProperties loads a property CSV. blockCol and streetCol name the
// columns whose concatenation forms the lookup address.
func ReadProperties(path, blockCol, streetCol string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open properties %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse properties %s", path)
	}
	if len(records) == 0 {
		return nil, eris.Errorf("pipeline: properties file %s is empty", path)
	}

	t := &Table{Header: records[0], Rows: records[1:], blockIdx: -1, streetIdx: -1}
	for i, col := range t.Header {
		switch strings.TrimSpace(col) {
		case blockCol:
			t.blockIdx = i
		case streetCol:
			t.streetIdx = i
		}
	}
	if t.blockIdx < 0 {
		return nil, eris.Errorf("pipeline: column %q not found in %s", blockCol, path)
	}
	if t.streetIdx < 0 {
		return nil, eris.Errorf("pipeline: column %q not found in %s", streetCol, path)
	}
	return t, nil
}

// field returns the cell at idx of row i, or "" when the row is
// shorter than the header. Ragged rows degrade to empty enrichment
// instead of failing the run.
func (t *Table) field(i, idx int) string {
	row := t.Rows[i]
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}

// Address returns the full lookup address of row i (block + street).
func (t *Table) Address(i int) string {
	return strings.TrimSpace(t.field(i, t.blockIdx) + " " + t.field(i, t.streetIdx))
}

// Street returns the street-only component of row i, used by the
// fallback geocoding pass.
func (t *Table) Street(i int) string {
	return strings.TrimSpace(t.field(i, t.streetIdx))
}

// Enrichment holds the derived columns for one address. Nil fields
// render as empty cells: an unresolved address stays unresolved rather
// than failing the run.
type Enrichment struct {
	Latitude      *float64
	Longitude     *float64
	DistToCBDKM   *float64
	NearestSchool string
	SchoolKM      *float64
	NearestMRT    string
	MRTKM         *float64
}

// WriteEnriched writes the property table plus enrichment columns to
// path. Rows keep their input order; the enrichment for each row is
// looked up by its address key. Addresses missing from the map get
// empty enrichment cells.
func WriteEnriched(path string, t *Table, byAddress map[string]Enrichment, keyFn func(string) string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "pipeline: create output %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)

	header := make([]string, 0, len(t.Header)+len(enrichmentColumns))
	header = append(header, t.Header...)
	header = append(header, enrichmentColumns...)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "pipeline: write header")
	}

	for i, row := range t.Rows {
		e := byAddress[keyFn(t.Address(i))]
		out := make([]string, 0, len(header))
		out = append(out, row...)
		// Pad ragged rows so the enrichment cells land in their columns.
		for len(out) < len(t.Header) {
			out = append(out, "")
		}
		out = append(out,
			formatFloat(e.Latitude),
			formatFloat(e.Longitude),
			formatFloat(e.DistToCBDKM),
			e.NearestSchool,
			formatFloat(e.SchoolKM),
			e.NearestMRT,
			formatFloat(e.MRTKM),
		)
		if err := w.Write(out); err != nil {
			return eris.Wrap(err, "pipeline: write row")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "pipeline: flush output")
	}
	return nil
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
