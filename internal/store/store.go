package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/awattprice/awattprice/internal/engine"
	"github.com/awattprice/awattprice/internal/tariff"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Settings are the user's price and appliance preferences
type Settings struct {
	Region      tariff.Region   `json:"region"`
	IncludeVAT  bool            `json:"include_vat"`
	BaseFeeCent decimal.Decimal `json:"base_fee_cent"`
	PowerKW     float64         `json:"power_kw"` // default appliance power, 0 = unknown
}

// Policy returns the tariff policy described by the settings
func (s Settings) Policy() tariff.Policy {
	return tariff.Policy{Region: s.Region, IncludeVAT: s.IncludeVAT, BaseFeeCent: s.BaseFeeCent}
}

// DefaultSettings are used until the user saves their own
func DefaultSettings() Settings {
	return Settings{Region: tariff.RegionDE, IncludeVAT: true, BaseFeeCent: decimal.Zero}
}

// Record is one stored cheapest-window result
type Record struct {
	ID        string               `json:"id"`
	CreatedAt time.Time            `json:"created_at"`
	Region    tariff.Region        `json:"region"`
	Request   engine.SearchRequest `json:"request"`
	Window    engine.Window        `json:"window"`
}

// Store handles persistent storage using SQLite
type Store struct {
	db *sql.DB
}

// NewStore creates a new store and initializes the database
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// initialize creates the database schema
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		id TEXT PRIMARY KEY,
		region TEXT NOT NULL DEFAULT 'DE',
		include_vat INTEGER DEFAULT 1,
		base_fee_cent TEXT DEFAULT '0',
		power_kw REAL DEFAULT 0,
		updated_at TEXT
	);

	CREATE TABLE IF NOT EXISTS price_cache (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		region TEXT NOT NULL,
		date TEXT NOT NULL,
		points TEXT NOT NULL,
		fetched_at TEXT NOT NULL,
		UNIQUE(region, date)
	);

	CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		region TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL,
		range_start TEXT NOT NULL,
		range_end TEXT NOT NULL,
		result TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_price_cache_date ON price_cache(region, date);
	CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveSettings saves or updates the settings
func (s *Store) SaveSettings(st Settings) error {
	query := `INSERT OR REPLACE INTO settings
		(id, region, include_vat, base_fee_cent, power_kw, updated_at)
		VALUES ('default', ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query, string(st.Region), boolToInt(st.IncludeVAT), st.BaseFeeCent.String(), st.PowerKW, time.Now().UTC().Format(timeLayout))
	return err
}

// SeedSettings saves st only when no settings have been stored yet
func (s *Store) SeedSettings(st Settings) error {
	query := `INSERT OR IGNORE INTO settings
		(id, region, include_vat, base_fee_cent, power_kw, updated_at)
		VALUES ('default', ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query, string(st.Region), boolToInt(st.IncludeVAT), st.BaseFeeCent.String(), st.PowerKW, time.Now().UTC().Format(timeLayout))
	return err
}

// GetSettings returns the saved settings or DefaultSettings when none exist
func (s *Store) GetSettings() (Settings, error) {
	query := `SELECT region, include_vat, base_fee_cent, power_kw FROM settings WHERE id = 'default'`

	var st Settings
	var region, baseFee string
	var vatInt int

	err := s.db.QueryRow(query).Scan(&region, &vatInt, &baseFee, &st.PowerKW)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, err
	}

	st.Region = tariff.Region(region)
	st.IncludeVAT = vatInt == 1
	st.BaseFeeCent, err = decimal.NewFromString(baseFee)
	if err != nil {
		return Settings{}, fmt.Errorf("parsing base fee: %w", err)
	}

	return st, nil
}

// CachePrices stores fetched net prices for one day
func (s *Store) CachePrices(region tariff.Region, date time.Time, series engine.Series) error {
	pointsJSON, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("encoding prices: %w", err)
	}

	query := `INSERT OR REPLACE INTO price_cache (region, date, points, fetched_at)
		VALUES (?, ?, ?, ?)`

	_, err = s.db.Exec(query, string(region), date.Format("2006-01-02"), string(pointsJSON), time.Now().UTC().Format(timeLayout))
	return err
}

// GetCachedPrices retrieves cached prices and when they were fetched
func (s *Store) GetCachedPrices(region tariff.Region, date time.Time) (engine.Series, time.Time, error) {
	query := `SELECT points, fetched_at FROM price_cache WHERE region = ? AND date = ?`

	var pointsJSON, fetchedAtStr string
	err := s.db.QueryRow(query, string(region), date.Format("2006-01-02")).Scan(&pointsJSON, &fetchedAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}

	fetchedAt, err := time.Parse(timeLayout, fetchedAtStr)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("parsing fetched_at: %w", err)
	}

	var series engine.Series
	if err := json.Unmarshal([]byte(pointsJSON), &series); err != nil {
		return nil, time.Time{}, err
	}

	return series, fetchedAt, nil
}

// SaveResult records a cheapest-window result and returns its ID
func (s *Store) SaveResult(region tariff.Region, req engine.SearchRequest, w engine.Window) (string, error) {
	windowJSON, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("encoding window: %w", err)
	}

	id := uuid.NewString()
	query := `INSERT INTO history (id, region, duration_seconds, range_start, range_end, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.Exec(query, id, string(region), int64(req.Duration/time.Second),
		req.RangeStart.Format(time.RFC3339), req.RangeEnd.Format(time.RFC3339), string(windowJSON), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return "", err
	}

	return id, nil
}

// History returns the most recent results, newest first
func (s *Store) History(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, region, duration_seconds, range_start, range_end, result, created_at
		FROM history ORDER BY created_at DESC, rowid DESC LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		var region, rangeStart, rangeEnd, windowJSON string
		var createdAt string
		var durationSecs int64

		if err := rows.Scan(&r.ID, &region, &durationSecs, &rangeStart, &rangeEnd, &windowJSON, &createdAt); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		r.Region = tariff.Region(region)
		r.Request.Duration = time.Duration(durationSecs) * time.Second
		if r.Request.RangeStart, err = time.Parse(time.RFC3339, rangeStart); err != nil {
			return nil, fmt.Errorf("parsing range start: %w", err)
		}
		if r.Request.RangeEnd, err = time.Parse(time.RFC3339, rangeEnd); err != nil {
			return nil, fmt.Errorf("parsing range end: %w", err)
		}
		if err := json.Unmarshal([]byte(windowJSON), &r.Window); err != nil {
			return nil, fmt.Errorf("decoding window: %w", err)
		}

		records = append(records, r)
	}

	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
