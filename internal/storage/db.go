// Package storage keeps the lookup audit trail, registry load history and
// inbox request state in sqlite. Lookups never read it back.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/ACF100/ndc-location-mapper/internal"
	"github.com/ACF100/ndc-location-mapper/internal/registry"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time; batch lookups record from several goroutines.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS requests (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  hash TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'stored',
  rawRef TEXT NOT NULL,
  receivedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS lookups (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL UNIQUE,
  requestId INTEGER,
  ndc TEXT NOT NULL,
  normalizedNdc TEXT,
  status TEXT NOT NULL,
  productName TEXT,
  labelerName TEXT,
  splId TEXT,
  productSource TEXT,
  extractMode TEXT,
  establishments INTEGER NOT NULL DEFAULT 0,
  durationMs INTEGER NOT NULL DEFAULT 0,
  error TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(requestId) REFERENCES requests(id)
);
CREATE INDEX IF NOT EXISTS idx_lookups_ndc ON lookups(ndc);
CREATE INDEX IF NOT EXISTS idx_lookups_requestId ON lookups(requestId);

CREATE TABLE IF NOT EXISTS lookup_rows (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  lookupId INTEGER NOT NULL,
  position INTEGER NOT NULL,
  rowJson TEXT NOT NULL,
  UNIQUE(lookupId, position),
  FOREIGN KEY(lookupId) REFERENCES lookups(id)
);

CREATE TABLE IF NOT EXISTS registry_loads (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source TEXT NOT NULL,
  format TEXT,
  sheet TEXT,
  rowCount INTEGER NOT NULL,
  skipped INTEGER NOT NULL,
  feiRecords INTEGER NOT NULL,
  dunsRecords INTEGER NOT NULL,
  feiKeys INTEGER NOT NULL,
  dunsKeys INTEGER NOT NULL,
  collisions INTEGER NOT NULL,
  warningsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  requestId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(requestId) REFERENCES requests(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertRequest(name, hash, rawRef, status string) (internal.RequestRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO requests (name, hash, status, rawRef)
VALUES (?, ?, ?, ?)
ON CONFLICT(hash) DO UPDATE SET
  name=excluded.name,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, name, hash, status, rawRef)
	if err != nil {
		return internal.RequestRow{}, err
	}

	row, err := d.GetRequestByHash(hash)
	if err != nil {
		return internal.RequestRow{}, err
	}
	if row == nil {
		return internal.RequestRow{}, errors.New("failed to upsert request")
	}
	return *row, nil
}

const requestColumns = `id, name, hash, status, rawRef, receivedAt`

func scanRequest(s interface{ Scan(...any) error }) (internal.RequestRow, error) {
	var row internal.RequestRow
	err := s.Scan(&row.ID, &row.Name, &row.Hash, &row.Status, &row.RawRef, &row.ReceivedAt)
	return row, err
}

func (d *DB) GetRequestByHash(hash string) (*internal.RequestRow, error) {
	row, err := scanRequest(d.conn.QueryRow(`SELECT `+requestColumns+` FROM requests WHERE hash = ?`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetRequestByID(id int) (*internal.RequestRow, error) {
	row, err := scanRequest(d.conn.QueryRow(`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListRequestsByStatus(status string, limit int) ([]internal.RequestRow, error) {
	rows, err := d.conn.Query(`SELECT `+requestColumns+` FROM requests WHERE status = ? ORDER BY receivedAt ASC, id ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RequestRow
	for rows.Next() {
		row, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateRequestStatus(requestID int, status string) error {
	_, err := d.conn.Exec(`UPDATE requests SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, requestID)
	return err
}

// ClearRequestLookups removes the lookups recorded for a request so it can be
// processed again.
func (d *DB) ClearRequestLookups(requestID int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM lookup_rows WHERE lookupId IN (SELECT id FROM lookups WHERE requestId = ?)`, requestID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM lookups WHERE requestId = ?`, requestID); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertLookup records a lookup and its rows in one transaction.
func (d *DB) InsertLookup(l internal.LookupRow, rows []internal.Row) (int64, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.Exec(`
INSERT INTO lookups (
  traceId, requestId, ndc, normalizedNdc, status, productName, labelerName, splId,
  productSource, extractMode, establishments, durationMs, error
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, l.TraceID, l.RequestID, l.NDC, l.NormalizedNDC, string(l.Status), l.ProductName, l.LabelerName, l.SPLID,
		l.ProductSource, l.ExtractMode, l.Establishments, l.DurationMs, l.Error)
	if err != nil {
		return 0, err
	}
	lookupID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`INSERT INTO lookup_rows (lookupId, position, rowJson) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, row := range rows {
		rowJSON, err := json.Marshal(row)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.Exec(lookupID, i, string(rowJSON)); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return lookupID, nil
}

const lookupColumns = `id, traceId, requestId, ndc, COALESCE(normalizedNdc, ''), status, productName, labelerName, splId,
  productSource, extractMode, establishments, durationMs, error, createdAt`

func scanLookup(s interface{ Scan(...any) error }) (internal.LookupRow, error) {
	var l internal.LookupRow
	var status string
	err := s.Scan(&l.ID, &l.TraceID, &l.RequestID, &l.NDC, &l.NormalizedNDC, &status, &l.ProductName, &l.LabelerName, &l.SPLID,
		&l.ProductSource, &l.ExtractMode, &l.Establishments, &l.DurationMs, &l.Error, &l.CreatedAt)
	l.Status = internal.LookupStatus(status)
	return l, err
}

func (d *DB) GetLookup(id int) (*internal.LookupRow, error) {
	l, err := scanLookup(d.conn.QueryRow(`SELECT `+lookupColumns+` FROM lookups WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListLookups returns the most recent lookups first.
func (d *DB) ListLookups(limit int) ([]internal.LookupRow, error) {
	rows, err := d.conn.Query(`SELECT `+lookupColumns+` FROM lookups ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.LookupRow
	for rows.Next() {
		l, err := scanLookup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (d *DB) GetLookupRows(lookupID int) ([]internal.Row, error) {
	return d.queryRows(`
SELECT r.rowJson FROM lookup_rows r
WHERE r.lookupId = ?
ORDER BY r.position ASC
`, lookupID)
}

// GetRequestRows returns the rows of every lookup of a request in lookup order.
func (d *DB) GetRequestRows(requestID int) ([]internal.Row, error) {
	return d.queryRows(`
SELECT r.rowJson FROM lookup_rows r
JOIN lookups l ON l.id = r.lookupId
WHERE l.requestId = ?
ORDER BY l.id ASC, r.position ASC
`, requestID)
}

func (d *DB) queryRows(query string, args ...any) ([]internal.Row, error) {
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Row
	for rows.Next() {
		var rowJSON string
		if err := rows.Scan(&rowJSON); err != nil {
			return nil, err
		}
		var row internal.Row
		if err := json.Unmarshal([]byte(rowJSON), &row); err != nil {
			return nil, fmt.Errorf("decode stored row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) InsertRegistryLoad(r registry.LoadReport) error {
	warningsJSON, _ := json.Marshal(r.Warnings)
	_, err := d.conn.Exec(`
INSERT INTO registry_loads (source, format, sheet, rowCount, skipped, feiRecords, dunsRecords, feiKeys, dunsKeys, collisions, warningsJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, r.Source, r.Format, r.Sheet, r.Rows, r.Skipped, r.FEIRecords, r.DUNSRecords, r.FEIKeys, r.DUNSKeys, r.Collisions, string(warningsJSON))
	return err
}

// LastRegistryLoad returns the most recent load report for a source, or nil.
func (d *DB) LastRegistryLoad(source string) (*registry.LoadReport, error) {
	var r registry.LoadReport
	var warningsJSON string
	var format, sheet sql.NullString
	err := d.conn.QueryRow(`
SELECT source, format, sheet, rowCount, skipped, feiRecords, dunsRecords, feiKeys, dunsKeys, collisions, warningsJson
FROM registry_loads WHERE source = ? ORDER BY id DESC LIMIT 1
`, source).Scan(&r.Source, &format, &sheet, &r.Rows, &r.Skipped, &r.FEIRecords, &r.DUNSRecords, &r.FEIKeys, &r.DUNSKeys, &r.Collisions, &warningsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Format, r.Sheet = format.String, sheet.String
	_ = json.Unmarshal([]byte(warningsJSON), &r.Warnings)
	return &r, nil
}

func (d *DB) InsertRun(traceID string, requestID *int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, requestId, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, requestID, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
