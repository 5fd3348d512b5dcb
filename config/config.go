// Package config loads bot configuration from a JSON file with
// environment-variable fallback.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// DefaultPath is where LoadConfig looks when no path is given.
const DefaultPath = "config.json"

// Config reflects the structure of config.json.
type Config struct {
	Discord DiscordConfig `json:"discord"`
	Redis   RedisConfig   `json:"redis"`
	TTS     TTSConfig     `json:"tts"`
	Tuning  TuningConfig  `json:"tuning"`
}

// DiscordConfig holds Discord-specific settings.
type DiscordConfig struct {
	Token         string `json:"token"`
	ApplicationID string `json:"application_id"`
	LogChannelID  string `json:"log_channel_id"`
}

// RedisConfig holds the persistence backend settings.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// TTSConfig holds backend credentials and endpoints.
type TTSConfig struct {
	VoicevoxKey    string `json:"voicevox_key"`
	VoicevoxAPIURL string `json:"voicevox_api_url"` // optional origin API override
}

// TuningConfig holds operational knobs. Zero values are replaced with
// defaults by applyDefaults.
type TuningConfig struct {
	AudioCacheSize          int           `json:"audio_cache_size"`
	RegexCacheSize          int           `json:"regex_cache_size"`
	MonitorInterval         time.Duration `json:"monitor_interval"`
	MaxReconnectAttempts    int           `json:"max_reconnect_attempts"`
	ReconnectBackoffBase    time.Duration `json:"reconnect_backoff_base"`
	SynthesisMaxAttempts    int           `json:"synthesis_max_attempts"`
	SynthesisRetryDelay     time.Duration `json:"synthesis_retry_delay"`
	SynthesisAttemptTimeout time.Duration `json:"synthesis_attempt_timeout"`
	BreakerThreshold        int           `json:"breaker_threshold"`
	BreakerTimeout          time.Duration `json:"breaker_timeout"`
}

func applyDefaults(cfg *Config) {
	t := &cfg.Tuning
	if t.AudioCacheSize == 0 {
		t.AudioCacheSize = 100
	}
	if t.RegexCacheSize == 0 {
		t.RegexCacheSize = 1000
	}
	if t.MonitorInterval == 0 {
		t.MonitorInterval = 5 * time.Second
	}
	if t.MaxReconnectAttempts == 0 {
		t.MaxReconnectAttempts = 3
	}
	if t.ReconnectBackoffBase == 0 {
		t.ReconnectBackoffBase = 2 * time.Second
	}
	if t.SynthesisMaxAttempts == 0 {
		t.SynthesisMaxAttempts = 3
	}
	if t.SynthesisRetryDelay == 0 {
		t.SynthesisRetryDelay = 500 * time.Millisecond
	}
	if t.SynthesisAttemptTimeout == 0 {
		t.SynthesisAttemptTimeout = 30 * time.Second
	}
	if t.BreakerThreshold == 0 {
		t.BreakerThreshold = 5
	}
	if t.BreakerTimeout == 0 {
		t.BreakerTimeout = 60 * time.Second
	}
}

// LoadConfig loads configuration from path, falling back to environment
// variables when the file does not exist. A .env file in the working
// directory is loaded first if present.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("could not parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		if cfg, err = fromEnv(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("could not read config file %s: %w", path, err)
	}

	if cfg.Discord.Token == "" {
		return nil, fmt.Errorf("missing discord token (config file or NCB_TOKEN)")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("missing redis address (config file or NCB_REDIS_ADDR)")
	}

	applyDefaults(cfg)
	return cfg, nil
}

func fromEnv() (*Config, error) {
	cfg := &Config{}
	cfg.Discord.Token = os.Getenv("NCB_TOKEN")
	cfg.Discord.ApplicationID = os.Getenv("NCB_APP_ID")
	cfg.Discord.LogChannelID = os.Getenv("NCB_LOG_CHANNEL_ID")
	cfg.Redis.Addr = os.Getenv("NCB_REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("NCB_REDIS_PASSWORD")
	cfg.TTS.VoicevoxKey = os.Getenv("NCB_VOICEVOX_KEY")
	cfg.TTS.VoicevoxAPIURL = os.Getenv("NCB_VOICEVOX_API_URL")
	return cfg, nil
}
