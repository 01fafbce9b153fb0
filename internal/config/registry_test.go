package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/iotctl/internal/device"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS == "linux" {
		t.Setenv("XDG_CONFIG_HOME", "")
	}

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if !strings.Contains(configDir, "iotctl") {
		t.Errorf("GetConfigDir() = %v, should contain 'iotctl'", configDir)
	}

	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin", "linux":
		if !strings.Contains(configDir, ".config") {
			t.Errorf("Unix config dir should contain '.config', got: %v", configDir)
		}
	}
}

func TestGetConfigDir_XDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME only applies on Linux")
	}

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if want := filepath.Join(dir, "iotctl"); got != want {
		t.Errorf("GetConfigDir() = %v, want %v", got, want)
	}
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}

	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != CurrentVersion {
		t.Errorf("NewRegistry().Version = %v, want %v", reg.Version, CurrentVersion)
	}
	if reg.Devices == nil {
		t.Error("NewRegistry().Devices should not be nil")
	}
	if reg.Preferences == nil {
		t.Fatal("NewRegistry().Preferences should not be nil")
	}
	if reg.Preferences.RequestTimeout != 10 {
		t.Errorf("RequestTimeout = %v, want 10", reg.Preferences.RequestTimeout)
	}
	if reg.Preferences.PollIntervalMs != 5 {
		t.Errorf("PollIntervalMs = %v, want 5", reg.Preferences.PollIntervalMs)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	reg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if reg.Version != CurrentVersion || len(reg.Devices) != 0 {
		t.Errorf("LoadFile() of missing file should return default registry, got %+v", reg)
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	reg := NewRegistry()
	reg.SetNickname("192.168.1.50", "kitchen-pi")
	reg.RecordState(device.State{Address: "192.168.1.50", Connected: true, Authenticated: true}, "Administrator")
	reg.Preferences.UserAgent = "iotctl-test"

	if err := reg.SaveFile(path); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(data), "# iotctl configuration file") {
		t.Error("saved file should start with the header comment")
	}
	if strings.Contains(string(data), "password:") {
		t.Error("saved file must not contain a password field")
	}
	if !strings.Contains(string(data), "passwords are NEVER stored") {
		t.Error("header should state that passwords are not stored")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should be renamed away")
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	d := loaded.GetDevice("192.168.1.50")
	if d == nil {
		t.Fatal("device should round-trip")
	}
	if d.Nickname != "kitchen-pi" || d.Username != "Administrator" {
		t.Errorf("device = %+v", d)
	}
	if !d.LastConnected || !d.LastAuthenticated {
		t.Errorf("last state = connected:%v authed:%v", d.LastConnected, d.LastAuthenticated)
	}
	if loaded.Preferences.UserAgent != "iotctl-test" {
		t.Errorf("UserAgent = %q", loaded.Preferences.UserAgent)
	}
}

func TestLoadFile_UnsupportedVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("version: 7\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(path); err == nil || !strings.Contains(err.Error(), "unsupported config version") {
		t.Errorf("LoadFile() error = %v, want unsupported version", err)
	}
}

func TestLoadFile_FillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("version: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	reg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if reg.Devices == nil || reg.Preferences == nil {
		t.Errorf("LoadFile() should fill missing sections, got %+v", reg)
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("version: [\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() should fail on malformed YAML")
	}
}

func TestRecordState_KeepsUsernameOnFailure(t *testing.T) {
	reg := NewRegistry()
	reg.RecordState(device.State{Address: "minwinpc", Connected: true, Authenticated: true}, "Administrator")
	reg.RecordState(device.State{Address: "minwinpc", Connected: true}, "guest")

	d := reg.GetDevice("minwinpc")
	if d.Username != "Administrator" {
		t.Errorf("Username = %q, unauthenticated sessions should not overwrite it", d.Username)
	}
	if d.LastAuthenticated {
		t.Error("LastAuthenticated should reflect the latest state")
	}
	if time.Since(d.LastSeen) > time.Minute {
		t.Errorf("LastSeen = %v, should be recent", d.LastSeen)
	}
}

func TestResolveAddress(t *testing.T) {
	reg := NewRegistry()
	reg.SetNickname("192.168.1.50", "Kitchen-Pi")

	tests := []struct {
		in   string
		want string
	}{
		{"kitchen-pi", "192.168.1.50"},
		{"KITCHEN-PI", "192.168.1.50"},
		{"10.0.0.9", "10.0.0.9"},
		{"unknown", "unknown"},
	}

	for _, tt := range tests {
		if got := reg.ResolveAddress(tt.in); got != tt.want {
			t.Errorf("ResolveAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUsernameFor(t *testing.T) {
	reg := NewRegistry()
	if got := reg.UsernameFor("10.0.0.9"); got != "Administrator" {
		t.Errorf("UsernameFor(unknown) = %q, want default", got)
	}

	reg.RecordState(device.State{Address: "10.0.0.9", Connected: true, Authenticated: true}, "ops")
	if got := reg.UsernameFor("10.0.0.9"); got != "ops" {
		t.Errorf("UsernameFor() = %q, want ops", got)
	}
}

func TestForget(t *testing.T) {
	reg := NewRegistry()
	reg.EnsureDevice("10.0.0.9")

	if !reg.Forget("10.0.0.9") {
		t.Error("Forget() of known device should return true")
	}
	if reg.Forget("10.0.0.9") {
		t.Error("Forget() of unknown device should return false")
	}
}

func TestPreferences_SessionOptions(t *testing.T) {
	prefs := &Preferences{RequestTimeout: 3, PollIntervalMs: 20}

	s := device.New("127.0.0.1:1", prefs.SessionOptions()...)
	defer s.Close()

	if got := s.PollInterval(); got != 20*time.Millisecond {
		t.Errorf("PollInterval() = %v, want 20ms", got)
	}

	var nilPrefs *Preferences
	if opts := nilPrefs.SessionOptions(); opts != nil {
		t.Errorf("nil preferences should give no options, got %d", len(opts))
	}
}

func TestPreferences_DiscoverDuration(t *testing.T) {
	if got := (&Preferences{}).DiscoverDuration(); got != 5*time.Second {
		t.Errorf("DiscoverDuration() = %v, want 5s fallback", got)
	}
	if got := (&Preferences{DiscoverTimeout: 2}).DiscoverDuration(); got != 2*time.Second {
		t.Errorf("DiscoverDuration() = %v, want 2s", got)
	}
}
