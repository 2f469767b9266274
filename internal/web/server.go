// Package web serves the local browser UI over the shared page controller.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/nupi-ai/fridgechef/internal/recipeapi"
	"github.com/nupi-ai/fridgechef/internal/render"
	"github.com/nupi-ai/fridgechef/internal/session"
	"github.com/nupi-ai/fridgechef/internal/speech"
)

// DefaultMaxUploadBytes bounds one identify form.
const DefaultMaxUploadBytes = 64 << 20

// Backend-bound routes allow DefaultRateLimit requests per client IP and
// DefaultRateWindow.
const (
	DefaultRateLimit  = 10
	DefaultRateWindow = time.Minute
)

// Flash collects alerts raised while handling a request and shows them on
// the next page render. It implements session.Notifier.
type Flash struct {
	mu       sync.Mutex
	messages []string
	log      *slog.Logger
}

// NewFlash returns an empty Flash.
func NewFlash(logger *slog.Logger) *Flash {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flash{log: logger.With("component", "flash")}
}

// Alert queues msg for the next render.
func (f *Flash) Alert(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
}

// Progress is logged only; the page is rendered after the work finished.
func (f *Flash) Progress(msg string) {
	if msg != "" {
		f.log.Debug("progress", "message", msg)
	}
}

// Take returns and clears the queued alerts.
func (f *Flash) Take() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := strings.Join(f.messages, "\n")
	f.messages = nil
	return out
}

// Metrics receives per-request counts.
type Metrics interface {
	ObserveHTTP(method, route string, status int)
	Handler() http.Handler
}

// Options configure a Server.
type Options struct {
	MaxUploadBytes int64
	RateLimit      int           // requests per RateWindow per client IP on backend routes
	RateWindow     time.Duration // defaults to DefaultRateWindow
	Metrics        Metrics       // optional; enables /metrics
	Logger         *slog.Logger
}

// Server owns the controller and serialises access to it.
type Server struct {
	// ctx scopes playback, which outlives the request that started it.
	ctx      context.Context
	mu       sync.Mutex
	ctrl     *session.Controller
	flash    *Flash
	player   *speech.Player
	renderer *render.Renderer
	opts     Options
	log      *slog.Logger
	router   chi.Router
}

// New builds the router. flash must be the notifier ctrl was created with.
func New(ctx context.Context, ctrl *session.Controller, flash *Flash, player *speech.Player, renderer *render.Renderer, opts Options) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = DefaultRateWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if flash == nil {
		flash = NewFlash(logger)
	}
	s := &Server{
		ctx:      ctx,
		ctrl:     ctrl,
		flash:    flash,
		player:   player,
		renderer: renderer,
		opts:     opts,
		log:      logger.With("component", "web"),
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, "ok\n")
	})
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(
			s.opts.RateLimit,
			s.opts.RateWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(s.opts.RateWindow.Seconds())))
				http.Error(w, "too many requests, please try again later", http.StatusTooManyRequests)
			}),
		))
		r.Post("/identify", s.handleIdentify)
		r.Post("/generate", s.handleGenerate)
	})

	r.Post("/clear", s.handleClear)
	r.Post("/back", s.handleBack)
	r.Post("/speak", s.handleSpeak)
	r.Post("/play", s.handlePlay)
	r.Post("/stop", s.handleStop)
	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	page := render.PageFrom(s.ctrl)
	s.mu.Unlock()

	page.Flash = s.flash.Take()
	if s.player != nil {
		page.Speech = s.player.State()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.renderer.Page(w, page); err != nil {
		s.log.Error("render page", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		s.badRequest(w, "parse upload", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.ctrl.SlotCount(); i++ {
		img, ok, err := formImage(r, fmt.Sprintf("image%d", i))
		if err != nil {
			s.badRequest(w, "read upload", err)
			return
		}
		if !ok {
			continue // keep the photo picked earlier for this slot
		}
		if err := s.ctrl.SetSlot(i, img); err != nil {
			s.badRequest(w, "set slot", err)
			return
		}
	}
	// Failures were already reported through the flash.
	_ = s.ctrl.Identify(r.Context())
	s.redirect(w, r)
}

// handleClear empties one photo slot.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(r.PostFormValue("slot"))
	if err != nil {
		s.badRequest(w, "slot index", fmt.Errorf("invalid slot %q", r.PostFormValue("slot")))
		return
	}
	s.mu.Lock()
	err = s.ctrl.ClearSlot(i)
	s.mu.Unlock()
	if err != nil {
		s.badRequest(w, "clear slot", err)
		return
	}
	s.redirect(w, r)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.badRequest(w, "parse form", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctrl.Checklist().Only(r.PostForm["ingredient"])
	s.ctrl.SetExtras(r.PostFormValue("extras"))
	_ = s.ctrl.Generate(r.Context())
	s.redirect(w, r)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	step, err := session.ParseStep(r.PostFormValue("step"))
	if err != nil {
		s.badRequest(w, "parse step", err)
		return
	}
	s.mu.Lock()
	err = s.ctrl.Back(step)
	s.mu.Unlock()
	if err != nil {
		s.badRequest(w, "back", err)
		return
	}
	s.redirect(w, r)
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	rc, ok := s.recipe(w, r)
	if !ok {
		return
	}
	i, err := strconv.Atoi(r.PostFormValue("step"))
	if err != nil || i < 0 || i >= len(rc.Steps) {
		s.badRequest(w, "step index", fmt.Errorf("invalid step %q", r.PostFormValue("step")))
		return
	}
	s.player.Speak(s.ctx, rc.Steps[i])
	s.redirect(w, r)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	rc, ok := s.recipe(w, r)
	if !ok {
		return
	}
	s.player.PlayAll(s.ctx, rc.Steps)
	s.redirect(w, r)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if s.player != nil {
		s.player.Stop()
	}
	s.redirect(w, r)
}

// recipe resolves the "recipe" form value. It writes the error response
// itself when the player is missing or the index is invalid.
func (s *Server) recipe(w http.ResponseWriter, r *http.Request) (recipeapi.Recipe, bool) {
	if s.player == nil {
		http.Error(w, "speech is disabled", http.StatusServiceUnavailable)
		return recipeapi.Recipe{}, false
	}
	i, err := strconv.Atoi(r.PostFormValue("recipe"))
	if err != nil {
		s.badRequest(w, "recipe index", err)
		return recipeapi.Recipe{}, false
	}
	s.mu.Lock()
	rc, ok := s.ctrl.Recipe(i)
	s.mu.Unlock()
	if !ok {
		s.badRequest(w, "recipe index", fmt.Errorf("no recipe %d", i))
		return recipeapi.Recipe{}, false
	}
	return rc, true
}

func (s *Server) redirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) badRequest(w http.ResponseWriter, what string, err error) {
	s.log.Warn("bad request", "op", what, "error", err)
	status := http.StatusBadRequest
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		status = http.StatusRequestEntityTooLarge
	}
	http.Error(w, fmt.Sprintf("%s: %v", what, err), status)
}

// formImage reads one file field. ok is false when the field is missing or empty.
func formImage(r *http.Request, field string) (img recipeapi.Image, ok bool, err error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return recipeapi.Image{}, false, nil
	}
	if err != nil {
		return recipeapi.Image{}, false, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return recipeapi.Image{}, false, err
	}
	if len(data) == 0 {
		return recipeapi.Image{}, false, nil
	}
	return recipeapi.Image{Name: hdr.Filename, Data: data}, true, nil
}

// logRequests logs each request and feeds the metrics, labelled by the
// matched route pattern.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if s.opts.Metrics != nil {
			s.opts.Metrics.ObserveHTTP(r.Method, route, status)
		}
		s.log.Debug("request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
