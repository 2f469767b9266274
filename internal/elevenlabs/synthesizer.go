package elevenlabs

import (
	"context"
	"io"

	"github.com/nupi-ai/fridgechef/internal/speech"
)

// Synthesizer abstracts the ElevenLabs TTS streaming API so that speech
// engines can be tested with a mock implementation.
type Synthesizer interface {
	SynthesizeStream(ctx context.Context, voiceID string, req SynthesizeRequest) (io.ReadCloser, error)
}

var (
	_ Synthesizer        = (*Client)(nil)
	_ Synthesizer        = (*StubSynthesizer)(nil)
	_ speech.VoiceLister = (*Client)(nil)
	_ speech.VoiceLister = (*StubSynthesizer)(nil)
)
