package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultListenAddr is where the browser UI listens unless overridden.
	DefaultListenAddr     = "127.0.0.1:8080"
	DefaultAPIURL         = "http://127.0.0.1:5000"
	DefaultRequestTimeout = 2 * time.Minute
	DefaultLogLevel       = "info"
	DefaultSlots          = 3
	DefaultRateLimit      = 10
	DefaultMaxUploadMB    = 64
	DefaultLocale         = "zh-TW"
	DefaultVoiceID        = "UgBBYS2sOqTuMpoF3BR0" // Mark
	DefaultModel          = "eleven_multilingual_v2"
	DefaultCacheMaxSizeMB = 100
)

// Speech engines.
const (
	EngineNone       = "none"
	EngineStub       = "stub"
	EngineElevenLabs = "elevenlabs"
	EngineNAP        = "nap"
)

// MaxSlots bounds the number of photo pickers.
const MaxSlots = 10

// Config captures bootstrap configuration merged from the YAML file, the
// JSON payload in FRIDGECHEF_CONFIG and single-key environment overrides.
type Config struct {
	ListenAddr     string
	APIURL         string
	RequestTimeout time.Duration
	LogLevel       string
	Slots          int
	RateLimit      int // backend requests per minute per client IP
	MaxUploadMB    int
	HistoryPath    string // empty disables the history

	SpeechEngine   string
	PreferredVoice string
	Locale         string
	PlayerCommand  string // pipes raw PCM to an external player
	WAVDir         string // writes one WAV file per utterance

	// ElevenLabs
	APIKey            string
	VoiceID           string
	Model             string
	RequestsPerSecond float64
	Stability         *float64
	SimilarityBoost   *float64
	CacheDir          string
	CacheMaxSizeMB    int

	// NAP adapter address for the nap engine.
	NAPAddr string
}

// Validate applies defaults and raises an error when required fields are missing.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: api_url must be an http(s) URL, got %q", c.APIURL)
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("config: request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Slots == 0 {
		c.Slots = DefaultSlots
	}
	if c.Slots < 1 || c.Slots > MaxSlots {
		return fmt.Errorf("config: slots must be between 1 and %d, got %d", MaxSlots, c.Slots)
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = DefaultMaxUploadMB
	}
	if c.Locale == "" {
		c.Locale = DefaultLocale
	}

	c.SpeechEngine = strings.ToLower(strings.TrimSpace(c.SpeechEngine))
	switch c.SpeechEngine {
	case "":
		c.SpeechEngine = EngineStub
	case EngineNone, EngineStub:
	case EngineElevenLabs:
		if c.APIKey == "" {
			return fmt.Errorf("config: api_key is required for the elevenlabs engine (set ELEVENLABS_API_KEY)")
		}
	case EngineNAP:
		if c.NAPAddr == "" {
			return fmt.Errorf("config: nap_addr is required for the nap engine")
		}
	default:
		return fmt.Errorf("config: unknown speech_engine %q", c.SpeechEngine)
	}
	if c.VoiceID == "" {
		c.VoiceID = DefaultVoiceID
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.PlayerCommand != "" && c.WAVDir != "" {
		return fmt.Errorf("config: player_command and wav_dir are mutually exclusive")
	}

	if c.Stability != nil {
		if *c.Stability < 0.0 || *c.Stability > 1.0 {
			return fmt.Errorf("config: stability must be between 0.0 and 1.0, got %f", *c.Stability)
		}
	}
	if c.SimilarityBoost != nil {
		if *c.SimilarityBoost < 0.0 || *c.SimilarityBoost > 1.0 {
			return fmt.Errorf("config: similarity_boost must be between 0.0 and 1.0, got %f", *c.SimilarityBoost)
		}
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("config: requests_per_second must not be negative, got %f", c.RequestsPerSecond)
	}
	if c.CacheMaxSizeMB < 0 {
		return fmt.Errorf("config: cache_max_size_mb must not be negative, got %d", c.CacheMaxSizeMB)
	}

	return nil
}
