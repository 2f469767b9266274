// Package tts speaks utterances through an ElevenLabs-compatible synthesizer,
// an optional audio cache and an audio sink.
package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/nupi-ai/fridgechef/internal/audio"
	"github.com/nupi-ai/fridgechef/internal/cache"
	"github.com/nupi-ai/fridgechef/internal/elevenlabs"
	"github.com/nupi-ai/fridgechef/internal/speech"
)

// Settings are applied to every synthesis request.
type Settings struct {
	DefaultVoiceID  string
	Model           string
	Language        string // ISO 639-1; empty lets the service detect it
	Stability       *float64
	SimilarityBoost *float64
}

// Engine implements speech.Engine. An utterance completes when the sink has
// finished playing it.
type Engine struct {
	synth    elevenlabs.Synthesizer
	sink     audio.Sink
	cache    *cache.Cache // nil when caching is disabled
	settings Settings
	log      *slog.Logger
}

var _ speech.Engine = (*Engine)(nil)

// New returns an Engine. audioCache may be nil.
func New(synth elevenlabs.Synthesizer, sink audio.Sink, audioCache *cache.Cache, settings Settings, logger *slog.Logger) *Engine {
	if synth == nil {
		panic("tts: synthesizer must not be nil")
	}
	if sink == nil {
		sink = audio.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		synth:    synth,
		sink:     sink,
		cache:    audioCache,
		settings: settings,
		log: logger.With(
			"component", "tts",
			"model", settings.Model,
		),
	}
}

// Speak synthesizes u and plays it.
func (e *Engine) Speak(ctx context.Context, u speech.Utterance) error {
	text := strings.TrimSpace(u.Text)
	if text == "" {
		return nil
	}

	voiceID := e.settings.DefaultVoiceID
	if u.Voice != nil && u.Voice.ID != "" {
		voiceID = u.Voice.ID
	}
	log := e.log.With("step", u.Index, "voice_id", voiceID, "text_length", len(text))

	var key string
	if e.cache != nil {
		key = cache.UtteranceKey{
			Engine: "elevenlabs",
			Text:   text,
			Voice:  voiceID,
			Model:  e.settings.Model,
			Lang:   e.settings.Language,
			Pitch:  u.Pitch,
			Rate:   u.Rate,
		}.Key()
		if data, ok := e.cache.Get(key); ok {
			log.Debug("cache hit", "key", key)
			return e.sink.Play(ctx, bytes.NewReader(data), audio.PCM16Mono16k)
		}
	}

	req := elevenlabs.SynthesizeRequest{
		Text:         text,
		ModelID:      e.settings.Model,
		LanguageCode: e.settings.Language,
	}
	if e.settings.Stability != nil || e.settings.SimilarityBoost != nil || (u.Rate != 0 && u.Rate != 1) {
		vs := &elevenlabs.VoiceSettings{
			Stability:       e.settings.Stability,
			SimilarityBoost: e.settings.SimilarityBoost,
		}
		if u.Rate != 0 && u.Rate != 1 {
			rate := u.Rate
			vs.Speed = &rate
		}
		req.VoiceSettings = vs
	}

	stream, err := e.synth.SynthesizeStream(ctx, voiceID, req)
	if err != nil {
		return fmt.Errorf("tts: synthesize: %w", err)
	}
	defer stream.Close()

	var src io.Reader = stream
	var buf bytes.Buffer
	if e.cache != nil {
		src = io.TeeReader(stream, &buf)
	}

	if err := e.sink.Play(ctx, src, audio.PCM16Mono16k); err != nil {
		return err
	}

	if e.cache != nil && ctx.Err() == nil {
		// A player may exit before reading everything; finish the tee so
		// only complete audio is cached.
		if _, err := io.Copy(io.Discard, src); err != nil {
			log.Warn("incomplete audio not cached", "error", err)
			return nil
		}
		if err := e.cache.Put(key, buf.Bytes()); err != nil {
			log.Warn("failed to store in cache", "error", err)
		}
	}
	log.Debug("utterance played")
	return nil
}
