package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"medquiz-challenge/internal/engine"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Challenge struct {
		TTL string `yaml:"ttl"`
	} `yaml:"challenge"`
	Engine Engine `yaml:"engine"`
	Client struct {
		ServerURL string `yaml:"server_url"`
		UserID    string `yaml:"user_id"`
	} `yaml:"client"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Engine holds the engine timings as duration strings ("1.5s", "800ms").
type Engine struct {
	Tick             string `yaml:"tick"`
	PollInterval     string `yaml:"poll_interval"`
	FirstPollDelay   string `yaml:"first_poll_delay"`
	VerifyDelay      string `yaml:"verify_delay"`
	ConfirmDelay     string `yaml:"confirm_delay"`
	RevealWindow     string `yaml:"reveal_window"`
	ScoreboardWindow string `yaml:"scoreboard_window"`
	ConvergenceGrace string `yaml:"convergence_grace"`
	RequestTimeout   string `yaml:"request_timeout"`
}

// Load reads YAML config from path. A missing file yields the zero config so every
// setting falls back to its default.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty, invalid or not positive.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return fallback
}

// EngineConfig converts the engine section, defaulting anything unset.
func (c Config) EngineConfig() engine.Config {
	d := engine.DefaultConfig()
	e := c.Engine
	return engine.Config{
		Tick:             Duration(e.Tick, d.Tick),
		PollInterval:     Duration(e.PollInterval, d.PollInterval),
		FirstPollDelay:   Duration(e.FirstPollDelay, d.FirstPollDelay),
		VerifyDelay:      Duration(e.VerifyDelay, d.VerifyDelay),
		ConfirmDelay:     Duration(e.ConfirmDelay, d.ConfirmDelay),
		RevealWindow:     Duration(e.RevealWindow, d.RevealWindow),
		ScoreboardWindow: Duration(e.ScoreboardWindow, d.ScoreboardWindow),
		ConvergenceGrace: Duration(e.ConvergenceGrace, d.ConvergenceGrace),
		RequestTimeout:   Duration(e.RequestTimeout, d.RequestTimeout),
	}
}
