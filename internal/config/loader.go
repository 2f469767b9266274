package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration from an optional YAML file and environment
// variables. Tests can override Lookup and ReadFile to inject deterministic
// inputs.
type Loader struct {
	Lookup   func(string) (string, bool)
	ReadFile func(string) ([]byte, error)
	// File is read before FRIDGECHEF_CONFIG_FILE when set.
	File     string
}

// Load retrieves the configuration and validates it.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.ReadFile == nil {
		l.ReadFile = os.ReadFile
	}

	cfg := Config{
		ListenAddr:     DefaultListenAddr,
		APIURL:         DefaultAPIURL,
		CacheMaxSizeMB: DefaultCacheMaxSizeMB,
	}

	path := l.File
	if path == "" {
		if v, ok := l.Lookup("FRIDGECHEF_CONFIG_FILE"); ok {
			path = strings.TrimSpace(v)
		}
	}
	if path != "" {
		data, err := l.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		var payload filePayload
		if err := yaml.Unmarshal(data, &payload); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if err := payload.apply(&cfg); err != nil {
			return Config{}, err
		}
	}

	if raw, ok := l.Lookup("FRIDGECHEF_CONFIG"); ok && strings.TrimSpace(raw) != "" {
		var payload filePayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return Config{}, fmt.Errorf("config: decode FRIDGECHEF_CONFIG: %w", err)
		}
		if err := payload.apply(&cfg); err != nil {
			return Config{}, err
		}
	}

	overrideString(l.Lookup, "FRIDGECHEF_LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(l.Lookup, "FRIDGECHEF_API_URL", &cfg.APIURL)
	overrideString(l.Lookup, "FRIDGECHEF_LOG_LEVEL", &cfg.LogLevel)
	overrideString(l.Lookup, "FRIDGECHEF_SPEECH_ENGINE", &cfg.SpeechEngine)
	overrideString(l.Lookup, "FRIDGECHEF_NAP_ADDR", &cfg.NAPAddr)
	overrideString(l.Lookup, "FRIDGECHEF_HISTORY_PATH", &cfg.HistoryPath)
	overrideString(l.Lookup, "ELEVENLABS_API_KEY", &cfg.APIKey)

	// Default on-disk locations
	if dataDir, ok := l.Lookup("FRIDGECHEF_DATA_DIR"); ok && strings.TrimSpace(dataDir) != "" {
		dataDir = strings.TrimSpace(dataDir)
		if cfg.CacheDir == "" {
			cfg.CacheDir = filepath.Join(dataDir, "cache")
		}
		if cfg.HistoryPath == "" {
			cfg.HistoryPath = filepath.Join(dataDir, "history.db")
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// filePayload is shared by the YAML file and the JSON payload. Unset fields
// leave the current value alone.
type filePayload struct {
	ListenAddr        string   `json:"listen_addr" yaml:"listen_addr"`
	APIURL            string   `json:"api_url" yaml:"api_url"`
	RequestTimeout    string   `json:"request_timeout" yaml:"request_timeout"`
	LogLevel          string   `json:"log_level" yaml:"log_level"`
	Slots             *int     `json:"slots" yaml:"slots"`
	RateLimit         *int     `json:"rate_limit" yaml:"rate_limit"`
	MaxUploadMB       *int     `json:"max_upload_mb" yaml:"max_upload_mb"`
	HistoryPath       string   `json:"history_path" yaml:"history_path"`
	SpeechEngine      string   `json:"speech_engine" yaml:"speech_engine"`
	PreferredVoice    string   `json:"preferred_voice" yaml:"preferred_voice"`
	Locale            string   `json:"locale" yaml:"locale"`
	PlayerCommand     string   `json:"player_command" yaml:"player_command"`
	WAVDir            string   `json:"wav_dir" yaml:"wav_dir"`
	APIKey            string   `json:"api_key" yaml:"api_key"`
	VoiceID           string   `json:"voice_id" yaml:"voice_id"`
	Model             string   `json:"model" yaml:"model"`
	RequestsPerSecond *float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Stability         *float64 `json:"stability" yaml:"stability"`
	SimilarityBoost   *float64 `json:"similarity_boost" yaml:"similarity_boost"`
	CacheDir          string   `json:"cache_dir" yaml:"cache_dir"`
	CacheMaxSizeMB    *int     `json:"cache_max_size_mb" yaml:"cache_max_size_mb"`
	NAPAddr           string   `json:"nap_addr" yaml:"nap_addr"`
}

func (p filePayload) apply(cfg *Config) error {
	assignString(&cfg.ListenAddr, p.ListenAddr)
	assignString(&cfg.APIURL, p.APIURL)
	if p.RequestTimeout != "" {
		d, err := time.ParseDuration(p.RequestTimeout)
		if err != nil {
			return fmt.Errorf("config: request_timeout: %w", err)
		}
		cfg.RequestTimeout = d
	}
	assignString(&cfg.LogLevel, p.LogLevel)
	assignInt(&cfg.Slots, p.Slots)
	assignInt(&cfg.RateLimit, p.RateLimit)
	assignInt(&cfg.MaxUploadMB, p.MaxUploadMB)
	assignString(&cfg.HistoryPath, p.HistoryPath)
	assignString(&cfg.SpeechEngine, p.SpeechEngine)
	assignString(&cfg.PreferredVoice, p.PreferredVoice)
	assignString(&cfg.Locale, p.Locale)
	assignString(&cfg.PlayerCommand, p.PlayerCommand)
	assignString(&cfg.WAVDir, p.WAVDir)
	assignString(&cfg.APIKey, p.APIKey)
	assignString(&cfg.VoiceID, p.VoiceID)
	assignString(&cfg.Model, p.Model)
	if p.RequestsPerSecond != nil {
		cfg.RequestsPerSecond = *p.RequestsPerSecond
	}
	if p.Stability != nil {
		assignFloat64Ptr(&cfg.Stability, *p.Stability)
	}
	if p.SimilarityBoost != nil {
		assignFloat64Ptr(&cfg.SimilarityBoost, *p.SimilarityBoost)
	}
	assignString(&cfg.CacheDir, p.CacheDir)
	assignInt(&cfg.CacheMaxSizeMB, p.CacheMaxSizeMB)
	assignString(&cfg.NAPAddr, p.NAPAddr)
	return nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func assignString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func assignInt(target *int, value *int) {
	if value != nil {
		*target = *value
	}
}

func assignFloat64Ptr(target **float64, value float64) {
	v := value
	*target = &v
}
