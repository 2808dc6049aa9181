package session

import (
	"path/filepath"
	"testing"

	"github.com/sensen312/GobTrades-sub000/internal/config"
)

func TestResolvePrecedence(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GOBTRADES_HOME", home)
	t.Setenv("GOBTRADES_PROFILE", "")

	if got := Resolve(""); got != DefaultProfile {
		t.Errorf("Resolve with nothing set = %q, want %q", got, DefaultProfile)
	}

	if err := config.SaveGlobal(filepath.Join(home, "config.toml"),
		&config.Global{DefaultProfile: "configured"}); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "configured" {
		t.Errorf("Resolve with global config = %q, want configured", got)
	}

	t.Setenv("GOBTRADES_PROFILE", "fromenv")
	if got := Resolve(""); got != "fromenv" {
		t.Errorf("Resolve with env = %q, want fromenv", got)
	}

	if got := Resolve("fromflag"); got != "fromflag" {
		t.Errorf("Resolve with flag = %q, want fromflag", got)
	}
}

func TestPathsUnderProfileDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GOBTRADES_HOME", home)

	dir, err := EnsureDir("work")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, "profiles", "work"); dir != want {
		t.Errorf("EnsureDir = %q, want %q", dir, want)
	}

	lp, err := LogPath("work")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "logs", "gobchatd.log"); lp != want {
		t.Errorf("LogPath = %q, want %q", lp, want)
	}
}
