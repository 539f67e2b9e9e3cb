package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Store keeps the admin-managed backgrounds in SQLite or Postgres.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to driver ("sqlite" or "postgres") and applies migrations.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "sqlite":
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported catalog driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// one writer at a time
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS backgrounds (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			image_ref TEXT NOT NULL,
			display_order INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_backgrounds_order ON backgrounds(active, display_order)`,
	}
	for i, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}

// rebind turns ? placeholders into $n for Postgres.
func (s *Store) rebind(q string) string {
	if s.driver != "postgres" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const selectColumns = `SELECT id, name, image_ref, display_order, active, created_at, updated_at FROM backgrounds`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Name, &e.ImageRef, &e.DisplayOrder, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// Create appends a background after the current last display position.
func (s *Store) Create(ctx context.Context, name, imageRef string, active bool) (Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" || imageRef == "" {
		return Entry{}, &PersistenceError{Op: "create background", Err: errors.New("name and image are required")}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, &PersistenceError{Op: "create background", Err: err}
	}
	defer tx.Rollback()

	var maxOrder int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(display_order), 0) FROM backgrounds`).Scan(&maxOrder); err != nil {
		return Entry{}, &PersistenceError{Op: "create background", Err: err}
	}

	now := time.Now().UTC()
	e := Entry{
		ID:           uuid.New().String(),
		Name:         name,
		ImageRef:     imageRef,
		DisplayOrder: maxOrder + 1,
		Active:       active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO backgrounds (id, name, image_ref, display_order, active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.Name, e.ImageRef, e.DisplayOrder, e.Active, e.CreatedAt, e.UpdatedAt,
	); err != nil {
		return Entry{}, &PersistenceError{Op: "create background", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, &PersistenceError{Op: "create background", Err: err}
	}
	return e, nil
}

func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, s.rebind(selectColumns+` WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, &PersistenceError{Op: "get background", Err: err}
	}
	return e, nil
}

// List returns active backgrounds in display order.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	return s.query(ctx, selectColumns+` WHERE active = ? ORDER BY display_order ASC, id ASC`, true)
}

// All returns every background, active or not, in display order.
func (s *Store) All(ctx context.Context) ([]Entry, error) {
	return s.query(ctx, selectColumns+` ORDER BY display_order ASC, id ASC`)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, &PersistenceError{Op: "list backgrounds", Err: err}
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "list backgrounds", Err: err}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "list backgrounds", Err: err}
	}
	return entries, nil
}

// Patch holds optional field updates.
type Patch struct {
	Name         *string `json:"name,omitempty"`
	ImageRef     *string `json:"-"`
	Active       *bool   `json:"active,omitempty"`
	DisplayOrder *int    `json:"display_order,omitempty"`
}

func (s *Store) Update(ctx context.Context, id string, p Patch) (Entry, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return Entry{}, &PersistenceError{Op: "update background", Err: errors.New("name is required")}
		}
		e.Name = name
	}
	if p.ImageRef != nil {
		e.ImageRef = *p.ImageRef
	}
	if p.Active != nil {
		e.Active = *p.Active
	}
	if p.DisplayOrder != nil {
		e.DisplayOrder = *p.DisplayOrder
	}
	e.UpdatedAt = time.Now().UTC()

	if _, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE backgrounds SET name = ?, image_ref = ?, active = ?, display_order = ?, updated_at = ? WHERE id = ?`),
		e.Name, e.ImageRef, e.Active, e.DisplayOrder, e.UpdatedAt, e.ID,
	); err != nil {
		return Entry{}, &PersistenceError{Op: "update background", Err: err}
	}
	return e, nil
}

// Delete removes a background and returns what was removed so its file can be cleaned up.
func (s *Store) Delete(ctx context.Context, id string) (Entry, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM backgrounds WHERE id = ?`), id); err != nil {
		return Entry{}, &PersistenceError{Op: "delete background", Err: err}
	}
	return e, nil
}

// Reorder assigns display positions 0..n-1 following ids, atomically.
func (s *Store) Reorder(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "reorder backgrounds", Err: err}
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	q := s.rebind(`UPDATE backgrounds SET display_order = ?, updated_at = ? WHERE id = ?`)
	for i, id := range ids {
		res, err := tx.ExecContext(ctx, q, i, now, id)
		if err != nil {
			return &PersistenceError{Op: "reorder backgrounds", Err: err}
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("reorder %s: %w", id, ErrNotFound)
		}
	}
	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "reorder backgrounds", Err: err}
	}
	return nil
}
