package config

import "testing"

func TestNewBuildInfoDefaults(t *testing.T) {
	info := NewBuildInfo()

	if info.Version != "dev" {
		t.Errorf("Version = %q, want %q", info.Version, "dev")
	}
	if info.Commit != "none" {
		t.Errorf("Commit = %q, want %q", info.Commit, "none")
	}
	if info.BuildTime != "unknown" {
		t.Errorf("BuildTime = %q, want %q", info.BuildTime, "unknown")
	}
}

func TestNewBuildInfoReflectsLinkerVars(t *testing.T) {
	oldVersion, oldCommit := version, commit
	t.Cleanup(func() { version, commit = oldVersion, oldCommit })

	version, commit = "1.4.0", "abc1234"
	info := NewBuildInfo()
	if info.Version != "1.4.0" || info.Commit != "abc1234" {
		t.Errorf("NewBuildInfo() = %+v, want injected values", info)
	}
}
