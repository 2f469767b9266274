package elevenlabs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nupi-ai/fridgechef/internal/speech"
)

// StubVoiceID is the only voice offered by StubSynthesizer.
const StubVoiceID = "stub-zh-tw"

// StubSynthesizer implements the Synthesizer interface with deterministic
// PCM output (silence). It is intended for CI and demo runs without an
// ElevenLabs account.
type StubSynthesizer struct {
	log *slog.Logger
}

// NewStubSynthesizer returns a stub that generates silent PCM data
// proportional to the input text length.
func NewStubSynthesizer(logger *slog.Logger) *StubSynthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubSynthesizer{log: logger.With("component", "stub_synthesizer")}
}

// SynthesizeStream returns an io.ReadCloser streaming deterministic silent PCM.
// The output size is one rune of text per 10 ms (320 bytes at 16 kHz mono PCM16).
func (s *StubSynthesizer) SynthesizeStream(_ context.Context, voiceID string, req SynthesizeRequest) (io.ReadCloser, error) {
	if voiceID == "" {
		return nil, fmt.Errorf("elevenlabs: voice_id is required")
	}
	if req.Text == "" {
		return nil, fmt.Errorf("elevenlabs: text is required")
	}

	pcmLen := len([]rune(req.Text)) * 320
	pcm := make([]byte, pcmLen)

	s.log.Debug("stub synthesis",
		"text_length", len(req.Text),
		"voice_id", voiceID,
		"bytes", pcmLen,
	)

	return io.NopCloser(bytes.NewReader(pcm)), nil
}

// Voices reports a single Taiwanese Mandarin voice.
func (s *StubSynthesizer) Voices(context.Context) ([]speech.Voice, error) {
	return []speech.Voice{{ID: StubVoiceID, Name: speech.DefaultPreferredVoice, Lang: speech.DefaultLocale}}, nil
}
