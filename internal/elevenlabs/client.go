package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nupi-ai/fridgechef/internal/speech"
)

const (
	// BaseURL is the ElevenLabs API base URL.
	BaseURL = "https://api.elevenlabs.io/v1"

	// DefaultTimeout for HTTP requests (can be overridden per-request).
	DefaultTimeout = 30 * time.Second

	// OutputFormat is requested so audio can be piped to a player without transcoding.
	OutputFormat = "pcm_16000"
	SampleRate   = 16000
)

// Client wraps HTTP calls to the ElevenLabs API.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	limiter    *rate.Limiter
}

// NewClient constructs an ElevenLabs API client with the provided API key.
// requestsPerSecond > 0 throttles calls client-side to stay under the plan's
// concurrency limit.
func NewClient(apiKey string, requestsPerSecond float64) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		apiKey:  apiKey,
		baseURL: BaseURL,
	}
	if requestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return c
}

// VoiceSettings contains optional voice configuration parameters.
type VoiceSettings struct {
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"`
	Speed           *float64 `json:"speed,omitempty"`
}

// SynthesizeRequest describes a TTS synthesis request.
type SynthesizeRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id,omitempty"`
	LanguageCode  string         `json:"language_code,omitempty"`
	VoiceSettings *VoiceSettings `json:"voice_settings,omitempty"`
}

// SynthesizeStream calls the ElevenLabs streaming TTS endpoint and returns an io.ReadCloser
// streaming the audio data. The caller must close the reader when done.
// Audio is returned as PCM 16-bit signed little-endian mono at 16000Hz.
func (c *Client) SynthesizeStream(ctx context.Context, voiceID string, req SynthesizeRequest) (io.ReadCloser, error) {
	if voiceID == "" {
		return nil, fmt.Errorf("elevenlabs: voice_id is required")
	}
	if req.Text == "" {
		return nil, fmt.Errorf("elevenlabs: text is required")
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s", c.baseURL, voiceID, OutputFormat)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

type voicesResponse struct {
	Voices []struct {
		VoiceID           string            `json:"voice_id"`
		Name              string            `json:"name"`
		Labels            map[string]string `json:"labels"`
		VerifiedLanguages []struct {
			Language string `json:"language"`
			Locale   string `json:"locale"`
		} `json:"verified_languages"`
	} `json:"voices"`
}

// Voices lists the voices available to the account. A voice's language is
// its first verified locale, falling back to the "language" label.
func (c *Client) Voices(ctx context.Context) ([]speech.Voice, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	resp, err := c.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("elevenlabs: decode voices: %w", err)
	}

	voices := make([]speech.Voice, 0, len(payload.Voices))
	for _, v := range payload.Voices {
		lang := v.Labels["language"]
		for _, vl := range v.VerifiedLanguages {
			if vl.Locale != "" {
				lang = vl.Locale
				break
			}
			if vl.Language != "" {
				lang = vl.Language
				break
			}
		}
		voices = append(voices, speech.Voice{
			ID:   v.VoiceID,
			Name: v.Name,
			Lang: strings.TrimSpace(lang),
		})
	}
	return voices, nil
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("elevenlabs: rate limit wait: %w", err)
		}
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: http request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("elevenlabs: API error (status %d): %s", resp.StatusCode, string(errBody))
	}
	return resp, nil
}
