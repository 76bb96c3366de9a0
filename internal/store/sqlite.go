package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"

	"tetmeter/internal/tet"
)

// ErrNotFound is returned when a named distribution or result does not exist.
var ErrNotFound = errors.New("store: not found")

// Store represents the SQLite result store.
type Store struct {
	db *sql.DB
}

// DefaultBusyTimeoutMs is the SQLite busy timeout used by Open.
const DefaultBusyTimeoutMs = 5000

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	return OpenWithBusyTimeout(path, DefaultBusyTimeoutMs)
}

// OpenWithBusyTimeout is Open with an explicit busy timeout in milliseconds.
func OpenWithBusyTimeout(path string, busyTimeoutMs int) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d", path, busyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the underlying handle for migration tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SaveDistribution stores d under name, replacing any previous distribution
// with the same name.
func (s *Store) SaveDistribution(name string, d *tet.Distribution[rune]) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("save distribution: empty name")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM distributions WHERE name = ?", name); err != nil {
		return 0, fmt.Errorf("replace distribution: %w", err)
	}

	result, err := tx.Exec(`
		INSERT INTO distributions (name, symbols, entropy, created_at)
		VALUES (?, ?, ?, ?)`,
		name, d.Len(), d.Entropy(), time.Now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert distribution: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO distribution_symbols (distribution_id, ordinal, symbol, probability)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, w := range d.Weights() {
		if _, err := stmt.Exec(id, i, string(w.Symbol), w.P); err != nil {
			return 0, fmt.Errorf("insert symbol %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit distribution: %w", err)
	}
	return id, nil
}

// LoadDistribution rebuilds the named distribution.
func (s *Store) LoadDistribution(name string) (*tet.Distribution[rune], error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM distributions WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("distribution %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query distribution: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT symbol, probability FROM distribution_symbols
		WHERE distribution_id = ? ORDER BY ordinal`, id)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var weights []tet.Weighted[rune]
	for rows.Next() {
		var sym string
		var p float64
		if err := rows.Scan(&sym, &p); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		r, size := utf8.DecodeRuneInString(sym)
		if r == utf8.RuneError || size != len(sym) {
			return nil, fmt.Errorf("distribution %q: malformed symbol %q", name, sym)
		}
		weights = append(weights, tet.Weighted[rune]{Symbol: r, P: p})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate symbols: %w", err)
	}

	d, err := tet.NewDistributionFromWeights(weights)
	if err != nil {
		return nil, fmt.Errorf("distribution %q: %w", name, err)
	}
	return d, nil
}

// ListDistributions returns all stored distributions ordered by name.
func (s *Store) ListDistributions() ([]DistributionInfo, error) {
	rows, err := s.db.Query(`
		SELECT id, name, symbols, entropy, created_at
		FROM distributions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query distributions: %w", err)
	}
	defer rows.Close()

	var infos []DistributionInfo
	for rows.Next() {
		var info DistributionInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.Symbols, &info.Entropy, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// InsertResult stores rec unless a result with the same fingerprint already
// exists. It returns the row ID and whether a new row was written.
func (s *Store) InsertResult(rec *ResultRecord) (int64, bool, error) {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixNano()
	}

	result, err := s.db.Exec(`
		INSERT OR IGNORE INTO results (
			fingerprint, session, trial_id, participant, method, distribution,
			presented, transcribed, elapsed_ns, defined, error, distance,
			aligned_length, insertion, omission, substitution, correct,
			source_entropy, conditional_entropy, mutual_information, throughput,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Fingerprint[:], rec.Session, rec.TrialID, rec.Participant, rec.Method, rec.Distribution,
		rec.Presented, rec.Transcribed, rec.ElapsedNs, rec.Defined, rec.Error, rec.Distance,
		rec.AlignedLength, rec.Insertion, rec.Omission, rec.Substitution, rec.Correct,
		rec.SourceEntropy, rec.ConditionalEntropy, rec.MutualInformation, rec.Throughput,
		rec.CreatedAt,
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert result: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 1 {
		id, err := result.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("get last insert id: %w", err)
		}
		rec.ID = id
		return id, true, nil
	}

	var id int64
	if err := s.db.QueryRow("SELECT id FROM results WHERE fingerprint = ?", rec.Fingerprint[:]).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("lookup existing result: %w", err)
	}
	rec.ID = id
	return id, false, nil
}

const resultColumns = `
	id, fingerprint, session, trial_id, participant, method, distribution,
	presented, transcribed, elapsed_ns, defined, error, distance,
	aligned_length, insertion, omission, substitution, correct,
	source_entropy, conditional_entropy, mutual_information, throughput,
	created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (*ResultRecord, error) {
	var rec ResultRecord
	var fingerprint []byte
	err := row.Scan(
		&rec.ID, &fingerprint, &rec.Session, &rec.TrialID, &rec.Participant, &rec.Method, &rec.Distribution,
		&rec.Presented, &rec.Transcribed, &rec.ElapsedNs, &rec.Defined, &rec.Error, &rec.Distance,
		&rec.AlignedLength, &rec.Insertion, &rec.Omission, &rec.Substitution, &rec.Correct,
		&rec.SourceEntropy, &rec.ConditionalEntropy, &rec.MutualInformation, &rec.Throughput,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	copy(rec.Fingerprint[:], fingerprint)
	return &rec, nil
}

// GetResult retrieves a result by ID.
func (s *Store) GetResult(id int64) (*ResultRecord, error) {
	row := s.db.QueryRow("SELECT "+resultColumns+" FROM results WHERE id = ?", id)
	rec, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query result: %w", err)
	}
	return rec, nil
}

// ListResults returns the most recent results, newest first. A limit of zero
// or less returns every result.
func (s *Store) ListResults(limit int) ([]*ResultRecord, error) {
	query := "SELECT " + resultColumns + " FROM results ORDER BY created_at DESC, id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryResults(query, args...)
}

// ResultsByMethod returns results recorded for an entry method in
// chronological order.
func (s *Store) ResultsByMethod(method string) ([]*ResultRecord, error) {
	return s.queryResults(
		"SELECT "+resultColumns+" FROM results WHERE method = ? ORDER BY created_at, id",
		method,
	)
}

func (s *Store) queryResults(query string, args ...any) ([]*ResultRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []*ResultRecord
	for rows.Next() {
		rec, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
