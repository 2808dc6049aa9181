package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Global represents the global ~/.gobtrades/config.toml.
type Global struct {
	DefaultProfile string `toml:"default_profile"`
}

// Market holds the goblin market window schedule as cron specs.
type Market struct {
	OpenCron  string `toml:"open_cron"`
	CloseCron string `toml:"close_cron"`
}

// Profile represents a per-profile profile.toml: the identity and endpoints
// the engine runs against, plus timing knobs.
type Profile struct {
	UserID             string `toml:"user_id"`
	HubURL             string `toml:"hub_url"`
	APIBaseURL         string `toml:"api_base_url"`
	SendTimeoutSeconds int    `toml:"send_timeout_seconds"`
	BackoffSeconds     []int  `toml:"backoff_seconds"`
	Market             Market `toml:"market"`
}

// DefaultProfile returns a profile with production defaults. The market
// opens Saturday at dawn and closes Sunday at dusk, goblin time.
func DefaultProfile() *Profile {
	return &Profile{
		HubURL:             "wss://hub.gobtrades.example/ws",
		APIBaseURL:         "https://api.gobtrades.example",
		SendTimeoutSeconds: 30,
		BackoffSeconds:     []int{0, 2, 5, 10, 30, 60},
		Market: Market{
			OpenCron:  "0 6 * * 6",
			CloseCron: "0 18 * * 0",
		},
	}
}

// SendTimeout returns the configured send timeout as a duration.
func (p *Profile) SendTimeout() time.Duration {
	if p.SendTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.SendTimeoutSeconds) * time.Second
}

// Backoff returns the reconnect delay schedule as durations.
func (p *Profile) Backoff() []time.Duration {
	if len(p.BackoffSeconds) == 0 {
		return nil
	}
	out := make([]time.Duration, len(p.BackoffSeconds))
	for i, s := range p.BackoffSeconds {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

// Validate checks that the profile can actually drive an engine.
func (p *Profile) Validate() error {
	if p.HubURL == "" {
		return fmt.Errorf("profile missing hub_url")
	}
	if p.APIBaseURL == "" {
		return fmt.Errorf("profile missing api_base_url")
	}
	return nil
}

// LoadGlobal reads the global config from the given path.
func LoadGlobal(path string) (*Global, error) {
	var cfg Global
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveGlobal writes the global config, creating parent dirs as needed.
func SaveGlobal(path string, cfg *Global) error {
	return save(path, cfg)
}

// LoadProfile reads a profile config from the given path.
func LoadProfile(path string) (*Profile, error) {
	var cfg Profile
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveProfile writes a profile config, creating parent dirs as needed.
func SaveProfile(path string, cfg *Profile) error {
	return save(path, cfg)
}

func save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
