// Package storage provides the SQLite-backed decoration price catalog.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/skinscout/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a decoration is not in the catalog.
var ErrNotFound = errors.New("decoration not found")

// Storage wraps a SQLite database holding crawled decoration prices.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/skinscout/catalog.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "skinscout", "catalog.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decoration_prices (
			normalized  TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			price       REAL NOT NULL,
			collection  TEXT NOT NULL DEFAULT '',
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decoration_prices_collection ON decoration_prices(collection)`,
		`CREATE INDEX IF NOT EXISTS idx_decoration_prices_updated_at ON decoration_prices(updated_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertPrices inserts or replaces prices in one transaction.
// A later crawl of the same decoration overwrites its price and collection.
func (s *Storage) UpsertPrices(ctx context.Context, prices []models.DecorationPrice) error {
	for i := range prices {
		if err := prices[i].Validate(); err != nil {
			return fmt.Errorf("invalid decoration price %q: %w", prices[i].Name, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO decoration_prices (normalized, name, price, collection, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(normalized) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			collection = excluded.collection,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range prices {
		updatedAt := p.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, p.Normalized, p.Name, p.Price, p.Collection, updatedAt.UnixNano()); err != nil {
			return fmt.Errorf("failed to upsert %q: %w", p.Name, err)
		}
	}

	return tx.Commit()
}

// GetPrice returns the catalog entry for a normalized decoration name.
func (s *Storage) GetPrice(ctx context.Context, normalized string) (*models.DecorationPrice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT normalized, name, price, collection, updated_at
		FROM decoration_prices WHERE normalized = ?`, normalized)
	p, err := scanPrice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decoration %q: %w", normalized, err)
	}
	return p, nil
}

// AllPrices returns every catalog entry ordered by name.
func (s *Storage) AllPrices(ctx context.Context) ([]models.DecorationPrice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT normalized, name, price, collection, updated_at
		FROM decoration_prices ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query decorations: %w", err)
	}
	defer rows.Close()

	var out []models.DecorationPrice
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decoration: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Count returns the number of catalog entries.
func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decoration_prices`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count decorations: %w", err)
	}
	return n, nil
}

// PruneOlderThan deletes entries last updated before cutoff and returns how many were removed.
func (s *Storage) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM decoration_prices WHERE updated_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune decorations: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrice(r rowScanner) (*models.DecorationPrice, error) {
	var (
		p         models.DecorationPrice
		updatedAt int64
	)
	if err := r.Scan(&p.Normalized, &p.Name, &p.Price, &p.Collection, &updatedAt); err != nil {
		return nil, err
	}
	p.UpdatedAt = time.Unix(0, updatedAt)
	return &p, nil
}
