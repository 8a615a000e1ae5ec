package geocache

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// csvAppender owns an append-mode file handle and a csvutil encoder
// that writes the header only when the file starts empty.
type csvAppender struct {
	file *os.File
	w    *csv.Writer
	enc  *csvutil.Encoder
}

func openAppender(path string) (*csvAppender, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "geocache: open %s", path)
	}

	// Only an empty file gets a header; appends to an existing cache
	// must not repeat it.
	info, err := f.Stat()
	if err != nil {
		f.Close() //nolint:errcheck,gosec
		return nil, eris.Wrapf(err, "geocache: stat %s", path)
	}

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = info.Size() == 0
	return &csvAppender{file: f, w: w, enc: enc}, nil
}

// append encodes one row and forces it to disk.
func (a *csvAppender) append(row any) error {
	if err := a.enc.Encode(row); err != nil {
		return eris.Wrap(err, "geocache: encode row")
	}
	a.w.Flush()
	if err := a.w.Error(); err != nil {
		return eris.Wrap(err, "geocache: flush row")
	}
	if err := a.file.Sync(); err != nil {
		return eris.Wrap(err, "geocache: sync")
	}
	return nil
}

func (a *csvAppender) close() error {
	a.w.Flush()
	return a.file.Close()
}

// readAll decodes every row of an existing cache file into out. A
// missing file is an empty cache, not an error.
func readAll[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "geocache: read %s", path)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var rows []T
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		if err == io.EOF { // header-only file
			return nil, nil
		}
		return nil, eris.Wrapf(err, "geocache: parse %s", path)
	}
	return rows, nil
}

// CSVGeocodeStore is the flat-file geocode cache. The whole file is
// loaded on open; new entries are appended and fsynced one at a time.
type CSVGeocodeStore struct {
	entries  map[string]GeocodeEntry
	appender *csvAppender
}

// OpenCSVGeocode loads (or creates) the geocode cache at path.
func OpenCSVGeocode(path string) (*CSVGeocodeStore, error) {
	rows, err := readAll[GeocodeEntry](path)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]GeocodeEntry, len(rows))
	for _, row := range rows {
		row.Key = NormalizeKey(row.Key)
		// Put appends, so the newest write for a key is the last row in
		// the file. Last row wins on reload to match.
		entries[row.Key] = row
	}

	appender, err := openAppender(path)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("geocode cache loaded", zap.String("path", path), zap.Int("entries", len(entries)))
	return &CSVGeocodeStore{entries: entries, appender: appender}, nil
}

// Get implements GeocodeStore.
func (s *CSVGeocodeStore) Get(key string) (GeocodeEntry, bool) {
	e, ok := s.entries[NormalizeKey(key)]
	return e, ok
}

// Put implements GeocodeStore.
func (s *CSVGeocodeStore) Put(entry GeocodeEntry) error {
	entry.Key = NormalizeKey(entry.Key)
	if err := s.appender.append(entry); err != nil {
		return err
	}
	s.entries[entry.Key] = entry
	return nil
}

// Each implements GeocodeStore.
func (s *CSVGeocodeStore) Each(fn func(GeocodeEntry)) {
	for _, e := range s.entries {
		fn(e)
	}
}

// Len implements GeocodeStore.
func (s *CSVGeocodeStore) Len() int { return len(s.entries) }

// Close implements GeocodeStore.
func (s *CSVGeocodeStore) Close() error { return s.appender.close() }

// CSVDistanceStore is the flat-file CBD distance cache.
type CSVDistanceStore struct {
	entries  map[string]DistanceEntry
	appender *csvAppender
}

// OpenCSVDistance loads (or creates) the distance cache at path.
func OpenCSVDistance(path string) (*CSVDistanceStore, error) {
	rows, err := readAll[DistanceEntry](path)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]DistanceEntry, len(rows))
	for _, row := range rows {
		row.Key = NormalizeKey(row.Key)
		entries[row.Key] = row
	}

	appender, err := openAppender(path)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("distance cache loaded", zap.String("path", path), zap.Int("entries", len(entries)))
	return &CSVDistanceStore{entries: entries, appender: appender}, nil
}

// Get implements DistanceStore.
func (s *CSVDistanceStore) Get(key string) (DistanceEntry, bool) {
	e, ok := s.entries[NormalizeKey(key)]
	return e, ok
}

// Put implements DistanceStore.
func (s *CSVDistanceStore) Put(entry DistanceEntry) error {
	entry.Key = NormalizeKey(entry.Key)
	if err := s.appender.append(entry); err != nil {
		return err
	}
	s.entries[entry.Key] = entry
	return nil
}

// Len implements DistanceStore.
func (s *CSVDistanceStore) Len() int { return len(s.entries) }

// Close implements DistanceStore.
func (s *CSVDistanceStore) Close() error { return s.appender.close() }
