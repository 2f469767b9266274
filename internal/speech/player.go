// Package speech plays recipe steps through a text-to-speech engine one
// utterance at a time.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultPreferredVoice is matched by exact name before falling back to the locale.
	DefaultPreferredVoice = "Google 國語（臺灣）"
	DefaultLocale         = "zh-TW"
	DefaultLangPrefix     = "zh"
)

var (
	// ErrStopped is the cause reported by a playback cancelled via Cancel or Player.Stop.
	ErrStopped = errors.New("speech: playback stopped")
	// ErrSuperseded is the cause reported by a playback replaced by a newer one.
	ErrSuperseded = errors.New("speech: playback superseded")
)

// Utterance is a single unit of text submitted to an Engine.
type Utterance struct {
	Text  string
	Voice *Voice // nil selects the engine default
	Pitch float64
	Rate  float64
	Index int
}

// Engine speaks one utterance. Speak must block until playback of u has
// completed and return early with an error once ctx is done.
type Engine interface {
	Speak(ctx context.Context, u Utterance) error
}

// Observer receives one call per submitted utterance.
type Observer interface {
	ObserveUtterance(d time.Duration, err error)
}

// Options tune voice selection and prosody.
type Options struct {
	PreferredVoice string
	Locale         string
	Pitch          float64
	Rate           float64
	Observer       Observer
}

func (o Options) withDefaults() Options {
	if o.PreferredVoice == "" {
		o.PreferredVoice = DefaultPreferredVoice
	}
	if o.Locale == "" {
		o.Locale = DefaultLocale
	}
	if o.Pitch == 0 {
		o.Pitch = 1
	}
	if o.Rate == 0 {
		o.Rate = 1
	}
	return o
}

// State reports what the player is doing.
type State struct {
	Speaking bool
	Step     int
}

func (s State) String() string {
	if !s.Speaking {
		return "idle"
	}
	return fmt.Sprintf("speaking(%d)", s.Step)
}

// Player drives an Engine through queued steps. At most one playback speaks
// at a time; starting a new one cancels the active playback and waits for it
// to exit first.
type Player struct {
	engine  Engine
	catalog *Catalog
	opts    Options
	log     *slog.Logger

	mu      sync.Mutex
	current *Playback
	state   State
}

// NewPlayer constructs a Player. catalog may be nil, in which case the engine
// default voice is always used.
func NewPlayer(engine Engine, catalog *Catalog, opts Options, logger *slog.Logger) *Player {
	if engine == nil {
		panic("speech: engine must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		engine:  engine,
		catalog: catalog,
		opts:    opts.withDefaults(),
		log:     logger.With("component", "speech"),
	}
}

// Speak plays a single utterance.
func (p *Player) Speak(ctx context.Context, text string) *Playback {
	return p.PlayAll(ctx, []string{text})
}

// PlayAll plays steps in order. Step i+1 is submitted only after step i has
// completed. The returned Playback is the cancellation handle.
func (p *Player) PlayAll(ctx context.Context, steps []string) *Playback {
	pctx, cancel := context.WithCancelCause(ctx)
	pb := &Playback{
		steps:  append([]string(nil), steps...),
		ctx:    pctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	prev := p.current
	p.current = pb
	p.mu.Unlock()

	if prev != nil {
		prev.cancel(ErrSuperseded)
	}
	go p.drive(pb, prev)
	return pb
}

// Stop cancels the active playback, if any, and waits for it to exit.
func (p *Player) Stop() {
	p.mu.Lock()
	cur := p.current
	p.mu.Unlock()
	if cur == nil {
		return
	}
	cur.Cancel()
	<-cur.done
}

// State returns the current player state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Voice returns the voice a new playback would use.
func (p *Player) Voice() (Voice, bool) {
	return p.catalog.Select(p.opts.PreferredVoice, p.opts.Locale)
}

func (p *Player) drive(pb *Playback, prev *Playback) {
	defer close(pb.done)
	if prev != nil {
		<-prev.done
	}

	var voice *Voice
	if v, ok := p.Voice(); ok {
		voice = &v
	}

	log := p.log.With("steps", len(pb.steps))
	for i, text := range pb.steps {
		if pb.ctx.Err() != nil {
			break
		}
		p.setState(pb, State{Speaking: true, Step: i})

		start := time.Now()
		err := p.engine.Speak(pb.ctx, Utterance{
			Text:  text,
			Voice: voice,
			Pitch: p.opts.Pitch,
			Rate:  p.opts.Rate,
			Index: i,
		})
		if p.opts.Observer != nil {
			p.opts.Observer.ObserveUtterance(time.Since(start), err)
		}
		if err != nil {
			if pb.ctx.Err() == nil {
				log.Error("utterance failed", "step", i, "error", err)
				pb.finish(fmt.Errorf("speech: step %d: %w", i, err))
				pb.cancel(err)
				p.setState(pb, State{})
				return
			}
			break
		}
		pb.markSpoken()
	}

	if pb.Spoken() < len(pb.steps) {
		cause := context.Cause(pb.ctx)
		log.Debug("playback cancelled", "spoken", pb.Spoken(), "cause", cause)
		pb.finish(cause)
	} else {
		log.Debug("playback finished", "spoken", pb.Spoken())
	}
	pb.cancel(nil)
	p.setState(pb, State{})
}

// setState only records transitions of the playback that currently owns the player.
func (p *Player) setState(pb *Playback, s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == pb {
		p.state = s
	}
}

// Playback is a handle to one PlayAll call.
type Playback struct {
	steps  []string
	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}

	mu     sync.Mutex
	spoken int
	err    error
}

// Cancel stops the playback. Steps not yet submitted are dropped.
func (pb *Playback) Cancel() {
	pb.cancel(ErrStopped)
}

// Done is closed once the playback has exited.
func (pb *Playback) Done() <-chan struct{} {
	return pb.done
}

// Wait blocks until the playback exits. It returns nil when every step was
// spoken, the cancellation cause when cancelled, or the engine error.
func (pb *Playback) Wait() error {
	<-pb.done
	return pb.Err()
}

// Err returns the terminal error, nil while running or on success.
func (pb *Playback) Err() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.err
}

// Spoken reports how many steps completed.
func (pb *Playback) Spoken() int {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.spoken
}

func (pb *Playback) markSpoken() {
	pb.mu.Lock()
	pb.spoken++
	pb.mu.Unlock()
}

func (pb *Playback) finish(err error) {
	pb.mu.Lock()
	if pb.err == nil {
		pb.err = err
	}
	pb.mu.Unlock()
}
