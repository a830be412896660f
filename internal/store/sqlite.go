package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"nickandperla.net/dstep/internal/table"
	"nickandperla.net/dstep/internal/value"
)

// Current schema version
const SchemaVersion = "1"

// SQLite is a SQLite-backed store. Each dataset lives in its own table
// whose cells are dynamically typed: NULL is Missing, REAL is Numeric and
// TEXT is Text. A catalog table keeps the column names, formats and
// provenance of every dataset.
type SQLite struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLite creates a new SQLite store at the given path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, err
	}
	// One connection keeps transactions and reads on the same database handle.
	db.SetMaxOpenConns(1)

	// Create tables if not exists
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS datasets (
			name TEXT PRIMARY KEY,
			columns TEXT NOT NULL,
			formats TEXT NOT NULL,
			row_count INTEGER NOT NULL,
			run_id TEXT NOT NULL,
			published TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLite{db: db}

	// Check/set schema version (use unlocked versions since we're in init)
	version, err := s.getMetadataUnlocked("schema_version")
	if err != nil {
		db.Close()
		return nil, err
	}
	switch version {
	case "":
		if err := s.setMetadataUnlocked("schema_version", SchemaVersion); err != nil {
			db.Close()
			return nil, err
		}
	case SchemaVersion:
	default:
		db.Close()
		return nil, fmt.Errorf("unsupported schema version: %s (expected %s)", version, SchemaVersion)
	}

	return s, nil
}

// dataTable returns the quoted name of the physical table of a dataset.
func dataTable(key string) string {
	return `"ds_` + key + `"`
}

// Lookup reads a published dataset.
func (s *SQLite) Lookup(name string) (*table.Table, error) {
	key, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var columnsJSON, formatsJSON string
	err = s.db.QueryRow("SELECT columns, formats FROM datasets WHERE name = ?", key).Scan(&columnsJSON, &formatsJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}

	var columns []string
	if err := json.Unmarshal([]byte(columnsJSON), &columns); err != nil {
		return nil, fmt.Errorf("dataset %s: decoding columns: %w", key, err)
	}
	var formats map[string]string
	if err := json.Unmarshal([]byte(formatsJSON), &formats); err != nil {
		return nil, fmt.Errorf("dataset %s: decoding formats: %w", key, err)
	}

	t := table.New(columns...)
	for col, spec := range formats {
		t.SetFormat(col, spec)
	}
	if err := s.readRows(key, t); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", key, err)
	}
	return t, nil
}

func (s *SQLite) readRows(key string, t *table.Table) error {
	n := len(t.Columns())
	cols := make([]string, n)
	for i := range cols {
		cols[i] = fmt.Sprintf("c%d", i)
	}
	query := "SELECT _row FROM " + dataTable(key) + " ORDER BY _row"
	if n > 0 {
		query = "SELECT " + strings.Join(cols, ", ") + " FROM " + dataTable(key) + " ORDER BY _row"
	}
	rows, err := s.db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	cells := make([]any, n)
	ptrs := make([]any, n)
	for i := range cells {
		ptrs[i] = &cells[i]
	}
	if n == 0 {
		ptrs = []any{new(int64)}
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		vals := make([]value.Value, n)
		for i, c := range cells {
			v, err := decodeCell(c)
			if err != nil {
				return fmt.Errorf("column %s: %w", t.Columns()[i], err)
			}
			vals[i] = v
		}
		if err := t.AppendValues(vals...); err != nil {
			return err
		}
	}
	return rows.Err()
}

func decodeCell(c any) (value.Value, error) {
	switch x := c.(type) {
	case nil:
		return value.Missing(), nil
	case float64:
		return value.Number(x), nil
	case int64:
		return value.Number(float64(x)), nil
	case string:
		return value.Text(x), nil
	case []byte:
		return value.Text(string(x)), nil
	}
	return value.Missing(), fmt.Errorf("unsupported cell type %T", c)
}

func encodeCell(v value.Value) any {
	if f, ok := v.Float(); ok {
		return f
	}
	if s, ok := v.Str(); ok {
		return s
	}
	return nil
}

// Publish replaces a dataset.
func (s *SQLite) Publish(name string, t *table.Table) error {
	return s.PublishRun("", name, t)
}

// PublishRun replaces a dataset and records the publishing run. The
// catalog entry and the rows are written in one transaction.
func (s *SQLite) PublishRun(runID, name string, t *table.Table) (err error) {
	key, err := Normalize(name)
	if err != nil {
		return err
	}
	columnsJSON, err := json.Marshal(t.Columns())
	if err != nil {
		return err
	}
	formatsJSON, err := json.Marshal(t.Formats())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	n := len(t.Columns())
	defs := []string{"_row INTEGER PRIMARY KEY"}
	cols := make([]string, n)
	marks := make([]string, n)
	for i := 0; i < n; i++ {
		cols[i] = fmt.Sprintf("c%d", i)
		marks[i] = "?"
		defs = append(defs, cols[i])
	}
	if _, err = tx.Exec("DROP TABLE IF EXISTS " + dataTable(key)); err != nil {
		return err
	}
	if _, err = tx.Exec("CREATE TABLE " + dataTable(key) + " (" + strings.Join(defs, ", ") + ")"); err != nil {
		return err
	}

	insert := "INSERT INTO " + dataTable(key) + " (_row) VALUES (?)"
	if n > 0 {
		insert = "INSERT INTO " + dataTable(key) + " (_row, " + strings.Join(cols, ", ") +
			") VALUES (?, " + strings.Join(marks, ", ") + ")"
	}
	stmt, err := tx.Prepare(insert)
	if err != nil {
		return err
	}
	defer stmt.Close()
	args := make([]any, n+1)
	for i := 0; i < t.Len(); i++ {
		args[0] = i
		for j, v := range t.Values(i) {
			args[j+1] = encodeCell(v)
		}
		if _, err = stmt.Exec(args...); err != nil {
			return err
		}
	}

	_, err = tx.Exec(`
		INSERT INTO datasets (name, columns, formats, row_count, run_id, published)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			columns = excluded.columns,
			formats = excluded.formats,
			row_count = excluded.row_count,
			run_id = excluded.run_id,
			published = excluded.published
	`, key, string(columnsJSON), string(formatsJSON), t.Len(), runID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Datasets lists the catalog by name.
func (s *SQLite) Datasets() ([]Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query("SELECT name, columns, row_count, run_id, published FROM datasets ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Info
	for rows.Next() {
		var info Info
		var columnsJSON, published string
		if err := rows.Scan(&info.Name, &columnsJSON, &info.Rows, &info.RunID, &published); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(columnsJSON), &info.Columns); err != nil {
			return nil, fmt.Errorf("dataset %s: decoding columns: %w", info.Name, err)
		}
		if info.Published, err = time.Parse(time.RFC3339Nano, published); err != nil {
			return nil, fmt.Errorf("dataset %s: %w", info.Name, err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetMetadata retrieves a metadata value by key.
func (s *SQLite) GetMetadata(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getMetadataUnlocked(key)
}

// getMetadataUnlocked retrieves metadata without locking (caller must hold lock).
func (s *SQLite) getMetadataUnlocked(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// setMetadataUnlocked stores metadata without locking (caller must hold lock).
func (s *SQLite) setMetadataUnlocked(key, v string) error {
	_, err := s.db.Exec(`
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, v)
	return err
}
