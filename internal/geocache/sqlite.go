package geocache

import (
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	address   TEXT PRIMARY KEY,
	latitude  REAL,
	longitude REAL,
	status    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS distance_cache (
	address        TEXT PRIMARY KEY,
	dist_to_cbd_km REAL
);
`

// SQLiteCache backs both caches with a single SQLite database. It is an
// alternative to the flat CSV files for setups that want atomic writes;
// the cache semantics (unique keys, no expiry) are identical.
type SQLiteCache struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the cache database at path in WAL mode.
func OpenSQLite(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "geocache: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck,gosec
			return nil, eris.Wrapf(err, "geocache: exec %s", pragma)
		}
	}
	if _, err := db.Exec(sqliteMigration); err != nil {
		db.Close() //nolint:errcheck,gosec
		return nil, eris.Wrap(err, "geocache: migrate")
	}
	return &SQLiteCache{db: db}, nil
}

// Geocode returns the geocode store view of the database.
func (c *SQLiteCache) Geocode() GeocodeStore { return &sqliteGeocodeStore{db: c.db} }

// Distance returns the distance store view of the database.
func (c *SQLiteCache) Distance() DistanceStore { return &sqliteDistanceStore{db: c.db} }

// Close closes the underlying database. Store views obtained from this
// cache must not be used afterwards.
func (c *SQLiteCache) Close() error { return c.db.Close() }

type sqliteGeocodeStore struct {
	db *sql.DB
}

func (s *sqliteGeocodeStore) Get(key string) (GeocodeEntry, bool) {
	var e GeocodeEntry
	var lat, lon sql.NullFloat64
	var status string
	err := s.db.QueryRow(
		`SELECT address, latitude, longitude, status FROM geocode_cache WHERE address = ?`,
		NormalizeKey(key),
	).Scan(&e.Key, &lat, &lon, &status)
	if err != nil {
		return GeocodeEntry{}, false
	}
	if lat.Valid {
		e.Latitude = &lat.Float64
	}
	if lon.Valid {
		e.Longitude = &lon.Float64
	}
	e.Status = Status(status)
	return e, true
}

func (s *sqliteGeocodeStore) Put(entry GeocodeEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO geocode_cache (address, latitude, longitude, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (address) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			status = excluded.status`,
		NormalizeKey(entry.Key), nullFloat(entry.Latitude), nullFloat(entry.Longitude), string(entry.Status),
	)
	return eris.Wrap(err, "geocache: put geocode entry")
}

func (s *sqliteGeocodeStore) Each(fn func(GeocodeEntry)) {
	rows, err := s.db.Query(`SELECT address, latitude, longitude, status FROM geocode_cache`)
	if err != nil {
		return
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var e GeocodeEntry
		var lat, lon sql.NullFloat64
		var status string
		if err := rows.Scan(&e.Key, &lat, &lon, &status); err != nil {
			return
		}
		if lat.Valid {
			e.Latitude = &lat.Float64
		}
		if lon.Valid {
			e.Longitude = &lon.Float64
		}
		e.Status = Status(status)
		fn(e)
	}
}

func (s *sqliteGeocodeStore) Len() int {
	var n int
	if err := s.db.QueryRow(`SELECT count(*) FROM geocode_cache`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Close is a no-op; the owning SQLiteCache closes the database.
func (s *sqliteGeocodeStore) Close() error { return nil }

type sqliteDistanceStore struct {
	db *sql.DB
}

func (s *sqliteDistanceStore) Get(key string) (DistanceEntry, bool) {
	var e DistanceEntry
	var km sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT address, dist_to_cbd_km FROM distance_cache WHERE address = ?`,
		NormalizeKey(key),
	).Scan(&e.Key, &km)
	if err != nil {
		return DistanceEntry{}, false
	}
	if km.Valid {
		e.DistanceKM = &km.Float64
	}
	return e, true
}

func (s *sqliteDistanceStore) Put(entry DistanceEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO distance_cache (address, dist_to_cbd_km)
		VALUES (?, ?)
		ON CONFLICT (address) DO UPDATE SET
			dist_to_cbd_km = excluded.dist_to_cbd_km`,
		NormalizeKey(entry.Key), nullFloat(entry.DistanceKM),
	)
	return eris.Wrap(err, "geocache: put distance entry")
}

func (s *sqliteDistanceStore) Len() int {
	var n int
	if err := s.db.QueryRow(`SELECT count(*) FROM distance_cache`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Close is a no-op; the owning SQLiteCache closes the database.
func (s *sqliteDistanceStore) Close() error { return nil }

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
