package session

import (
	"os"

	"github.com/sensen312/GobTrades-sub000/internal/config"
)

// DefaultProfile is used when nothing else names a profile.
const DefaultProfile = "default"

// Resolve picks the profile to run. Precedence: explicit flag, the
// GOBTRADES_PROFILE environment variable, the global config's
// default_profile, then "default".
func Resolve(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("GOBTRADES_PROFILE"); env != "" {
		return env
	}
	if path, err := GlobalConfigPath(); err == nil {
		if cfg, err := config.LoadGlobal(path); err == nil && cfg.DefaultProfile != "" {
			return cfg.DefaultProfile
		}
	}
	return DefaultProfile
}
