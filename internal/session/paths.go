package session

import (
	"os"
	"path/filepath"
)

// Root returns the GobTrades home directory, ~/.gobtrades by default.
// GOBTRADES_HOME overrides it for tests and sandboxed setups.
func Root() (string, error) {
	if custom := os.Getenv("GOBTRADES_HOME"); custom != "" {
		return custom, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gobtrades"), nil
}

// GlobalConfigPath returns the path of the global config file.
func GlobalConfigPath() (string, error) {
	root, err := Root()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "config.toml"), nil
}

// Dir returns the directory holding one profile's state.
func Dir(profile string) (string, error) {
	root, err := Root()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "profiles", profile), nil
}

// EnsureDir creates the profile directory tree and returns it.
func EnsureDir(profile string) (string, error) {
	dir, err := Dir(profile)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0700); err != nil {
		return "", err
	}
	return dir, nil
}

// CachePath returns the sqlite chat cache path for a profile.
func CachePath(profile string) (string, error) {
	dir, err := Dir(profile)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "gobchat.db"), nil
}

// LogPath returns the engine log file path for a profile.
func LogPath(profile string) (string, error) {
	dir, err := Dir(profile)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs", "gobchatd.log"), nil
}

// LockPath returns the profile lock file path.
func LockPath(profile string) (string, error) {
	dir, err := Dir(profile)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "LOCK"), nil
}

// ProfileConfigPath returns the per-profile config file path.
func ProfileConfigPath(profile string) (string, error) {
	dir, err := Dir(profile)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profile.toml"), nil
}
