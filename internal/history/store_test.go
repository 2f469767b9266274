package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nupi-ai/fridgechef/internal/recipeapi"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndRecent(t *testing.T) {
	s := openStore(t)
	fixed := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	first := recipeapi.Recipe{
		Title:       "番茄炒蛋",
		VideoURL:    "https://youtu.be/dQw4w9WgXcQ",
		Ingredients: []string{"番茄", "雞蛋"},
		Steps:       []string{"打蛋", "炒"},
		ChefTip:     "大火快炒",
	}
	second := recipeapi.Recipe{Title: "豆腐湯"}
	require.NoError(t, s.Save(ctx, []recipeapi.Recipe{first, {Description: "untitled"}}))
	require.NoError(t, s.Save(ctx, []recipeapi.Recipe{second}))

	entries, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2, "untitled recipes are skipped")

	assert.Equal(t, "豆腐湯", entries[0].Title, "newest first")
	assert.Empty(t, entries[0].Ingredients)

	got := entries[1]
	assert.Equal(t, []string{"番茄", "雞蛋"}, got.Ingredients)
	assert.Equal(t, []string{"打蛋", "炒"}, got.Steps)
	assert.True(t, fixed.Equal(got.CreatedAt), "created_at = %v", got.CreatedAt)
	if diff := cmp.Diff(first, got.Recipe); diff != "" {
		t.Errorf("recipe mismatch (-want +got):\n%s", diff)
	}

	limited, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, []recipeapi.Recipe{{Title: "Omelette", Steps: []string{"Beat"}}}))

	entries, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e, err := s.Get(ctx, entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Omelette", e.Title)

	_, err = s.Get(ctx, entries[0].ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenUpgradesLegacySchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipes.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE recipes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		ingredients TEXT,
		steps TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO recipes (title, ingredients, steps) VALUES (?, ?, ?)`,
		"三杯雞", `["雞腿","九層塔"]`, `["爆香","燜煮"]`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	entries, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "三杯雞", e.Recipe.Title)
	assert.Equal(t, []string{"雞腿", "九層塔"}, e.Recipe.Ingredients)
	assert.Equal(t, []string{"爆香", "燜煮"}, e.Recipe.Steps)
	assert.False(t, e.CreatedAt.IsZero())

	require.NoError(t, s.Save(context.Background(), []recipeapi.Recipe{{Title: "滷肉飯"}}))
}
