package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// schemaVersion is stored in meta. A ledger written with a newer version is
// refused rather than rewritten.
const schemaVersion = 1

const fileName = "publications.sqlite"

// PathFor places the ledger next to (not inside) the data cache directory, so it
// never shows up as a cached record. Relative cache dirs are resolved first;
// Dir(".") would otherwise put the ledger inside the cache.
func PathFor(cacheDir string) string {
	dir := filepath.Clean(cacheDir)
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return filepath.Join(filepath.Dir(dir), fileName)
}

// IsLedgerFile reports whether name is the ledger or one of its SQLite sidecars.
func IsLedgerFile(name string) bool {
	return strings.HasPrefix(name, fileName)
}

// Record is one published deposition.
type Record struct {
	BatchID      string    `json:"batch_id" yaml:"batch_id"`
	DepositionID string    `json:"deposition_id" yaml:"deposition_id"`
	DOI          string    `json:"doi" yaml:"doi"`
	Endpoint     string    `json:"endpoint" yaml:"endpoint"`
	Author       string    `json:"author" yaml:"author"`
	Files        []string  `json:"files" yaml:"files"`
	PublishedAt  time.Time `json:"published_at" yaml:"published_at"`
}

// Ledger is the SQLite file listing what has been published from this machine.
type Ledger struct {
	Path string
}

func (l Ledger) open() (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", l.Path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	// Pragmas are best-effort.
	_, _ = db.Exec(`PRAGMA journal_mode=WAL`)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS publications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id TEXT NOT NULL,
			deposition_id TEXT NOT NULL,
			doi TEXT,
			endpoint TEXT,
			author TEXT,
			files_json TEXT,
			published_at INTEGER
		)
	`); err != nil {
		return err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS publications_doi ON publications(doi)`); err != nil {
		return err
	}

	var stored string
	err := db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	default:
		v, err := strconv.Atoi(stored)
		if err != nil {
			return fmt.Errorf("history: invalid schema_version %q", stored)
		}
		if v > schemaVersion {
			return fmt.Errorf("history: ledger schema version %d is newer than supported version %d", v, schemaVersion)
		}
	}
	_, err = db.Exec(`INSERT INTO meta(key,value) VALUES('schema_version', ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, strconv.Itoa(schemaVersion))
	return err
}

// Add appends rec to the ledger.
func (l Ledger) Add(rec Record) error {
	if strings.TrimSpace(rec.DepositionID) == "" {
		return errors.New("history: deposition id is empty")
	}
	db, err := l.open()
	if err != nil {
		return err
	}
	defer db.Close()

	files, err := json.Marshal(rec.Files)
	if err != nil {
		return err
	}
	if rec.PublishedAt.IsZero() {
		rec.PublishedAt = time.Now()
	}
	_, err = db.Exec(`
		INSERT INTO publications(batch_id,deposition_id,doi,endpoint,author,files_json,published_at)
		VALUES(?,?,?,?,?,?,?)
	`, rec.BatchID, rec.DepositionID, rec.DOI, rec.Endpoint, rec.Author, string(files), rec.PublishedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("history: record deposition %s: %w", rec.DepositionID, err)
	}
	return nil
}

// List returns up to limit records, newest first. A ledger that was never
// written reads as empty.
func (l Ledger) List(limit int) ([]Record, error) {
	if _, err := os.Stat(l.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	db, err := l.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT batch_id, deposition_id, doi, endpoint, author, files_json, published_at
		FROM publications
		ORDER BY published_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r        Record
			doi      sql.NullString
			endpoint sql.NullString
			author   sql.NullString
			files    sql.NullString
			ts       int64
		)
		if err := rows.Scan(&r.BatchID, &r.DepositionID, &doi, &endpoint, &author, &files, &ts); err != nil {
			return nil, err
		}
		r.DOI, r.Endpoint, r.Author = doi.String, endpoint.String, author.String
		if files.Valid && files.String != "" {
			// An undecodable file list is dropped rather than failing the listing.
			_ = json.Unmarshal([]byte(files.String), &r.Files)
		}
		r.PublishedAt = time.Unix(ts, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
