package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv blanks every variable the loader reads so the host environment
// cannot leak into a test.
func isolateEnv(t *testing.T, extra map[string]string) {
	t.Helper()
	for _, key := range []string{
		"FRIDGECHEF_CONFIG", "FRIDGECHEF_CONFIG_FILE", "FRIDGECHEF_API_URL",
		"FRIDGECHEF_LISTEN_ADDR", "FRIDGECHEF_LOG_LEVEL", "FRIDGECHEF_SPEECH_ENGINE",
		"FRIDGECHEF_NAP_ADDR", "FRIDGECHEF_HISTORY_PATH", "FRIDGECHEF_DATA_DIR",
		"ELEVENLABS_API_KEY",
	} {
		t.Setenv(key, "")
	}
	for k, v := range extra {
		t.Setenv(k, v)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func fakeRecipeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/identify-ingredients", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "ingredients": ["雞蛋", "番茄"]}`))
	})
	mux.HandleFunc("/api/generate-recipes", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Ingredients []string `json:"ingredients"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		assert.Equal(t, []string{"雞蛋", "豆腐"}, req.Ingredients)
		w.Write([]byte(`{"success": true, "recipes": [{
			"title": "蛋豆腐",
			"video_url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			"ingredients": ["雞蛋", "豆腐"],
			"steps": ["打蛋", "蒸十分鐘"]
		}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCookAndHistory(t *testing.T) {
	backend := fakeRecipeBackend(t)
	dataDir := t.TempDir()
	wavDir := filepath.Join(dataDir, "wav")
	isolateEnv(t, map[string]string{
		"FRIDGECHEF_API_URL":       backend.URL,
		"FRIDGECHEF_DATA_DIR":      dataDir,
		"FRIDGECHEF_SPEECH_ENGINE": "stub",
		"FRIDGECHEF_CONFIG":        `{"wav_dir": "` + wavDir + `"}`,
	})

	photo := filepath.Join(t.TempDir(), "fridge.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg"), 0o644))
	page := filepath.Join(t.TempDir(), "out", "recipes.html")

	out, err := run(t, "cook", photo, "--exclude", "番茄", "--extra", "豆腐", "--html", page, "--speak", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "食材: 雞蛋\n")
	assert.Contains(t, out, "== 1. 蛋豆腐 ==")
	assert.Contains(t, out, "https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ?rel=0")

	html, err := os.ReadFile(page)
	require.NoError(t, err)
	assert.Contains(t, string(html), "蛋豆腐")

	wavs, err := filepath.Glob(filepath.Join(wavDir, "*.wav"))
	require.NoError(t, err)
	assert.Len(t, wavs, 2, "one file per spoken step")

	out, err = run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "蛋豆腐")

	out, err = run(t, "history", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "2. 蒸十分鐘")
}

func TestEmbed(t *testing.T) {
	isolateEnv(t, nil)

	out, err := run(t, "embed", "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ?rel=0\n", out)

	_, err = run(t, "embed", "https://example.com/video")
	assert.ErrorIs(t, err, errSomeFailed)
}

func TestHistoryDisabled(t *testing.T) {
	isolateEnv(t, nil)
	_, err := run(t, "history")
	assert.ErrorContains(t, err, "history is disabled")
}

func TestInvalidConfigFails(t *testing.T) {
	isolateEnv(t, map[string]string{"FRIDGECHEF_SPEECH_ENGINE": "espeak"})
	_, err := run(t, "embed", "https://youtu.be/dQw4w9WgXcQ")
	assert.ErrorContains(t, err, "unknown speech_engine")
}

func TestVersionSkipsConfig(t *testing.T) {
	isolateEnv(t, map[string]string{"FRIDGECHEF_SPEECH_ENGINE": "espeak"})
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "冰箱大廚")
}

func TestLanguage(t *testing.T) {
	assert.Equal(t, "zh", language("zh-TW"))
	assert.Equal(t, "en", language(" EN "))
	assert.Equal(t, "", language("auto"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}
