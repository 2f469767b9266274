// Package history keeps generated recipes in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nupi-ai/fridgechef/internal/recipeapi"
)

// DefaultLimit caps Recent when no limit is given.
const DefaultLimit = 20

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("history: recipe not found")

// Entry is one saved recipe.
type Entry struct {
	ID          int64
	Title       string
	Ingredients []string
	Steps       []string
	CreatedAt   time.Time
	Recipe      recipeapi.Recipe
}

// Store is a recipe history database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("history: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// initSchema creates the recipes table. Databases created by the Flask
// backend lack the recipe column; it is added in place.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS recipes (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		title       TEXT NOT NULL,
		ingredients TEXT,
		steps       TEXT,
		recipe      TEXT,
		created_at  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return err
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('recipes') WHERE name = 'recipe'`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		if _, err := db.Exec(`ALTER TABLE recipes ADD COLUMN recipe TEXT`); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores recipes in one transaction. Recipes without a title are skipped.
func (s *Store) Save(ctx context.Context, recipes []recipeapi.Recipe) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	createdAt := s.now().UTC().Format(time.RFC3339Nano)
	for _, rc := range recipes {
		if rc.Title == "" {
			continue
		}
		ingredients, err := json.Marshal(nonNil(rc.Ingredients))
		if err != nil {
			return fmt.Errorf("history: encode ingredients: %w", err)
		}
		steps, err := json.Marshal(nonNil(rc.Steps))
		if err != nil {
			return fmt.Errorf("history: encode steps: %w", err)
		}
		full, err := json.Marshal(rc)
		if err != nil {
			return fmt.Errorf("history: encode recipe: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recipes (title, ingredients, steps, recipe, created_at) VALUES (?, ?, ?, ?, ?)`,
			rc.Title, string(ingredients), string(steps), string(full), createdAt,
		); err != nil {
			return fmt.Errorf("history: insert %q: %w", rc.Title, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, ingredients, steps, recipe, created_at FROM recipes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return out, nil
}

// Get returns one entry by id.
func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, ingredients, steps, recipe, created_at FROM recipes WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e                          Entry
		ingredients, steps, recipe sql.NullString
		createdAt                  string
	)
	if err := sc.Scan(&e.ID, &e.Title, &ingredients, &steps, &recipe, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("history: scan: %w", err)
	}
	if ingredients.Valid && ingredients.String != "" {
		if err := json.Unmarshal([]byte(ingredients.String), &e.Ingredients); err != nil {
			return Entry{}, fmt.Errorf("history: decode ingredients of %d: %w", e.ID, err)
		}
	}
	if steps.Valid && steps.String != "" {
		if err := json.Unmarshal([]byte(steps.String), &e.Steps); err != nil {
			return Entry{}, fmt.Errorf("history: decode steps of %d: %w", e.ID, err)
		}
	}
	if recipe.Valid && recipe.String != "" {
		if err := json.Unmarshal([]byte(recipe.String), &e.Recipe); err != nil {
			return Entry{}, fmt.Errorf("history: decode recipe of %d: %w", e.ID, err)
		}
	} else {
		// Rows written by the Flask backend carry only these columns.
		e.Recipe = recipeapi.Recipe{Title: e.Title, Ingredients: e.Ingredients, Steps: e.Steps}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		e.CreatedAt = t
	} else if t, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
		e.CreatedAt = t
	}
	return e, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
