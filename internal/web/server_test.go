package web

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nupi-ai/fridgechef/internal/recipeapi"
	"github.com/nupi-ai/fridgechef/internal/render"
	"github.com/nupi-ai/fridgechef/internal/session"
	"github.com/nupi-ai/fridgechef/internal/speech"
	"github.com/nupi-ai/fridgechef/internal/telemetry"
)

type fakeBackend struct {
	mu          sync.Mutex
	names       []string
	recipes     []recipeapi.Recipe
	identifyErr error
	images      []recipeapi.Image
	sent        []string
}

func (f *fakeBackend) IdentifyIngredients(_ context.Context, images []recipeapi.Image) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = images
	return f.names, f.identifyErr
}

func (f *fakeBackend) failIdentify(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identifyErr = err
}

func (f *fakeBackend) lastImages() []recipeapi.Image {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images
}

func (f *fakeBackend) lastSent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

func (f *fakeBackend) GenerateRecipes(_ context.Context, names []string) ([]recipeapi.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = names
	return f.recipes, nil
}

// recordingEngine reports every spoken text on a channel.
type recordingEngine struct {
	spoken chan string
}

func (e *recordingEngine) Speak(_ context.Context, u speech.Utterance) error {
	e.spoken <- u.Text
	return nil
}

type harness struct {
	srv     *httptest.Server
	backend *fakeBackend
	engine  *recordingEngine
	metrics *telemetry.Recorder
	client  *http.Client
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	backend := &fakeBackend{
		names: []string{"egg", "milk"},
		recipes: []recipeapi.Recipe{{
			Title:    "Custard",
			VideoURL: "https://youtu.be/dQw4w9WgXcQ",
			Steps:    []string{"Whisk", "Steam"},
		}},
	}
	flash := NewFlash(nil)
	ctrl := session.New(backend, flash, session.Options{})
	engine := &recordingEngine{spoken: make(chan string, 16)}
	player := speech.NewPlayer(engine, nil, speech.Options{}, nil)
	renderer, err := render.New(nil, "test")
	require.NoError(t, err)

	metrics := telemetry.NewRecorder(nil)
	if opts.Metrics == nil {
		opts.Metrics = metrics
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(New(ctx, ctrl, flash, player, renderer, opts))
	t.Cleanup(func() {
		cancel()
		player.Stop()
		srv.Close()
	})

	return &harness{
		srv:     srv,
		backend: backend,
		engine:  engine,
		metrics: metrics,
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (h *harness) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := h.client.PostForm(h.srv.URL+path, form)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func (h *harness) upload(t *testing.T, files map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, name := range files {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		fw.Write([]byte("jpeg bytes of " + name))
	}
	require.NoError(t, mw.Close())

	resp, err := h.client.Post(h.srv.URL+"/identify", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func (h *harness) page(t *testing.T) *goquery.Document {
	t.Helper()
	resp, err := h.client.Get(h.srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	return doc
}

func (h *harness) expectSpoken(t *testing.T, want ...string) {
	t.Helper()
	for _, w := range want {
		select {
		case got := <-h.engine.spoken:
			assert.Equal(t, w, got)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q", w)
		}
	}
}

func TestIdentifyWithoutPhotosFlashesAlert(t *testing.T) {
	h := newHarness(t, Options{})

	resp := h.upload(t, nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	doc := h.page(t)
	assert.Equal(t, session.MsgNoImages, strings.TrimSpace(doc.Find("#flash").Text()))
	assert.Equal(t, 1, doc.Find("#upload-section").Length())

	doc = h.page(t)
	assert.Equal(t, 0, doc.Find("#flash").Length(), "flash is shown once")
}

func TestFullFlow(t *testing.T) {
	h := newHarness(t, Options{})

	resp := h.upload(t, map[string]string{"image1": "shelf.jpg"})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	images := h.backend.lastImages()
	require.Len(t, images, 1)
	assert.Equal(t, "shelf.jpg", images[0].Name)

	doc := h.page(t)
	assert.Equal(t, 2, doc.Find("#ingredient-checklist input[type=checkbox]").Length())

	h.postForm(t, "/generate", url.Values{
		"ingredient": {"egg"},
		"extras":     {"egg, tofu"},
	})
	assert.Equal(t, []string{"egg", "tofu"}, h.backend.lastSent())

	doc = h.page(t)
	require.Equal(t, 1, doc.Find(".recipe-card").Length())
	src, _ := doc.Find("iframe").Attr("src")
	assert.Equal(t, "https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ?rel=0", src)

	resp = h.postForm(t, "/play", url.Values{"recipe": {"0"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	h.expectSpoken(t, "Whisk", "Steam")

	resp = h.postForm(t, "/speak", url.Values{"recipe": {"0"}, "step": {"1"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	h.expectSpoken(t, "Steam")

	resp = h.postForm(t, "/back", url.Values{"step": {"confirm"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, 1, h.page(t).Find("#confirm-section").Length())
}

func TestIdentifyBackendMessage(t *testing.T) {
	h := newHarness(t, Options{})
	h.backend.failIdentify(&recipeapi.APIError{Endpoint: "identify-ingredients", Status: 200, Message: "no food detected"})

	h.upload(t, map[string]string{"image0": "empty.jpg"})
	doc := h.page(t)
	assert.Contains(t, doc.Find("#flash").Text(), "no food detected")
	assert.Equal(t, 1, doc.Find("#upload-section").Length())
}

func TestClearSlot(t *testing.T) {
	h := newHarness(t, Options{})
	h.backend.failIdentify(&recipeapi.APIError{Endpoint: "identify-ingredients", Status: 200, Message: "no food detected"})

	h.upload(t, map[string]string{"image0": "wrong.jpg", "image1": "shelf.jpg"})
	doc := h.page(t)
	require.Equal(t, 2, doc.Find(".upload-slot.filled").Length())
	slot, _ := doc.Find(".upload-slot.filled .clear-btn").First().Attr("value")
	assert.Equal(t, "0", slot)

	resp := h.postForm(t, "/clear", url.Values{"slot": {"0"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	doc = h.page(t)
	require.Equal(t, 1, doc.Find(".upload-slot.filled").Length())
	assert.Equal(t, "shelf.jpg", doc.Find(".slot-name").Text())

	h.backend.failIdentify(nil)
	h.upload(t, nil)
	images := h.backend.lastImages()
	require.Len(t, images, 1)
	assert.Equal(t, "shelf.jpg", images[0].Name)

	assert.Equal(t, http.StatusBadRequest, h.postForm(t, "/clear", url.Values{"slot": {"9"}}).StatusCode)
	assert.Equal(t, http.StatusBadRequest, h.postForm(t, "/clear", url.Values{"slot": {"x"}}).StatusCode)
}

func TestBadRequests(t *testing.T) {
	h := newHarness(t, Options{})

	assert.Equal(t, http.StatusBadRequest, h.postForm(t, "/play", url.Values{"recipe": {"0"}}).StatusCode, "no recipes yet")
	assert.Equal(t, http.StatusBadRequest, h.postForm(t, "/speak", url.Values{"recipe": {"x"}}).StatusCode)
	assert.Equal(t, http.StatusBadRequest, h.postForm(t, "/back", url.Values{"step": {"results"}}).StatusCode)
	assert.Equal(t, http.StatusBadRequest, h.postForm(t, "/back", url.Values{"step": {"nowhere"}}).StatusCode)
	assert.Equal(t, http.StatusSeeOther, h.postForm(t, "/stop", nil).StatusCode)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, Options{RateLimit: 1, RateWindow: time.Hour})

	assert.Equal(t, http.StatusSeeOther, h.postForm(t, "/generate", url.Values{"extras": {"tofu"}}).StatusCode)
	resp := h.postForm(t, "/generate", url.Values{"extras": {"tofu"}})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Rendering is not limited.
	h.page(t)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, Options{})

	resp, err := h.client.Get(h.srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok\n", string(body))

	h.page(t)
	resp, err = h.client.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `fridgechef_http_requests_total{code="200",method="GET",route="/"}`)
}

func TestFlashTake(t *testing.T) {
	f := NewFlash(nil)
	f.Alert("one")
	f.Progress("working")
	f.Alert("two")
	assert.Equal(t, "one\ntwo", f.Take())
	assert.Empty(t, f.Take())
}
