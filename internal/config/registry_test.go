package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/wizlight/internal/discovery"
	"github.com/muurk/wizlight/internal/wiz"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if !strings.Contains(configDir, "wizlight") {
		t.Errorf("GetConfigDir() = %v, should contain 'wizlight'", configDir)
	}

	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin":
		if !strings.Contains(configDir, ".config") {
			t.Errorf("macOS config dir should contain '.config', got: %v", configDir)
		}
	}
}

func TestGetConfigDirXDG(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG_CONFIG_HOME is only honoured on Linux and other Unix systems")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if configDir != filepath.Join("/tmp/xdg", "wizlight") {
		t.Errorf("GetConfigDir() = %v, want /tmp/xdg/wizlight", configDir)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(PathEnvVar, "")
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}

	t.Setenv(PathEnvVar, "/etc/wizlight.yaml")
	configPath, err = GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if configPath != "/etc/wizlight.yaml" {
		t.Errorf("GetConfigPath() = %v, want override", configPath)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != 1 {
		t.Errorf("NewRegistry().Version = %v, want 1", reg.Version)
	}
	if reg.Bulbs == nil {
		t.Error("NewRegistry().Bulbs should not be nil")
	}
	if reg.Network == nil || reg.Tuning == nil {
		t.Error("NewRegistry() should initialise network and tuning")
	}
}

func TestRegistryEnsureBulb(t *testing.T) {
	reg := NewRegistry()

	bulb1 := reg.EnsureBulb("a8bb5006033d")
	if bulb1 == nil {
		t.Fatal("EnsureBulb() returned nil")
	}
	if bulb2 := reg.EnsureBulb("a8bb5006033d"); bulb1 != bulb2 {
		t.Error("EnsureBulb() should return same instance for same MAC")
	}
	if bulb3 := reg.EnsureBulb("a8bb50000000"); bulb1 == bulb3 {
		t.Error("EnsureBulb() should create new instance for different MAC")
	}
}

func TestRegistryRecordDiscovery(t *testing.T) {
	reg := NewRegistry()
	reg.SetBulbNickname("a8bb5006033d", "desk")

	seen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	devices := []*discovery.Device{
		{IP: "192.168.1.42", Port: 38899, MAC: "a8bb5006033d", DiscoveredAt: seen},
		{IP: "192.168.1.43", Port: 38899, MAC: "a8bb50000001", DiscoveredAt: seen},
		{IP: "192.168.1.44", Port: 38899},
	}

	if added := reg.RecordDiscovery(devices); added != 1 {
		t.Errorf("RecordDiscovery() = %d, want 1", added)
	}
	if len(reg.Bulbs) != 2 {
		t.Fatalf("len(Bulbs) = %d, want 2", len(reg.Bulbs))
	}

	desk := reg.GetBulb("a8bb5006033d")
	if desk.Nickname != "desk" {
		t.Errorf("Nickname = %q, discovery must not clear it", desk.Nickname)
	}
	if desk.LastIP != "192.168.1.42" {
		t.Errorf("LastIP = %v, want 192.168.1.42", desk.LastIP)
	}
	if !desk.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want %v", desk.LastSeen, seen)
	}
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry()
	reg.RecordDiscovery([]*discovery.Device{{IP: "192.168.1.42", MAC: "a8bb5006033d"}})
	reg.SetBulbNickname("a8bb5006033d", "desk")
	reg.SetBulbNickname("a8bb50000001", "porch")

	tests := []struct {
		target string
		want   string
	}{
		{"desk", "192.168.1.42"},
		{"a8bb5006033d", "192.168.1.42"},
		{"porch", "porch"},
		{"10.0.0.9", "10.0.0.9"},
		{"10.0.0.9:38899", "10.0.0.9:38899"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			if got := reg.Resolve(tt.target); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.target, got, tt.want)
			}
		})
	}
}

func TestRegistryWizConfig(t *testing.T) {
	reg := NewRegistry()
	if got := reg.WizConfig(); got != wiz.DefaultConfig() {
		t.Errorf("WizConfig() of empty registry = %+v, want defaults", got)
	}

	reg.Network.Port = 40000
	reg.Tuning.CommandTimeout = Duration(5 * time.Second)
	reg.Tuning.SendInterval = Duration(250 * time.Millisecond)
	reg.Tuning.BackoffFactor = 1.5
	reg.Tuning.MaxAttempts = 10

	got := reg.WizConfig()
	if got.Port != 40000 {
		t.Errorf("Port = %d, want 40000", got.Port)
	}
	if got.CommandTimeout != 5*time.Second {
		t.Errorf("CommandTimeout = %v, want 5s", got.CommandTimeout)
	}
	if got.QueryTimeout != wiz.DefaultQueryTimeout {
		t.Errorf("QueryTimeout = %v, want default", got.QueryTimeout)
	}
	if got.SendInterval != 250*time.Millisecond {
		t.Errorf("SendInterval = %v, want 250ms", got.SendInterval)
	}
	if got.BackoffFactor != 1.5 || got.MaxAttempts != 10 {
		t.Errorf("BackoffFactor/MaxAttempts = %v/%v, want 1.5/10", got.BackoffFactor, got.MaxAttempts)
	}
}

func TestRegistryDiscoveryConfig(t *testing.T) {
	reg := NewRegistry()
	reg.Network.BroadcastAddress = "192.168.1.255"
	reg.Tuning.AnnounceInterval = Duration(2 * time.Second)

	got := reg.DiscoveryConfig()
	if got.BroadcastAddress != "192.168.1.255" {
		t.Errorf("BroadcastAddress = %v, want 192.168.1.255", got.BroadcastAddress)
	}
	if got.AnnounceInterval != 2*time.Second {
		t.Errorf("AnnounceInterval = %v, want 2s", got.AnnounceInterval)
	}
	if got.Port != wiz.DefaultPort {
		t.Errorf("Port = %v, want %v", got.Port, wiz.DefaultPort)
	}

	if addr := reg.PushListenAddress(); addr != ":38900" {
		t.Errorf("PushListenAddress() = %v, want :38900", addr)
	}
	reg.Network.PushPort = 40001
	if addr := reg.PushListenAddress(); addr != ":40001" {
		t.Errorf("PushListenAddress() = %v, want :40001", addr)
	}
}

func TestRegistrySaveAndLoad(t *testing.T) {
	testConfigPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	reg := NewRegistry()
	reg.SetBulbNickname("a8bb5006033d", "desk")
	reg.EnsureBulb("a8bb5006033d").LastIP = "192.168.1.42"
	reg.Tuning.SendInterval = Duration(250 * time.Millisecond)

	if err := reg.SaveTo(testConfigPath); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}
	if _, err := os.Stat(testConfigPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should be renamed away")
	}

	data, err := os.ReadFile(testConfigPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "send_interval: 250ms") {
		t.Errorf("durations should be written as strings, got:\n%s", data)
	}
	if strings.Contains(string(data), "query_timeout") {
		t.Errorf("unset durations should be omitted, got:\n%s", data)
	}

	loaded, err := Load(testConfigPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	b := loaded.GetBulb("a8bb5006033d")
	if b == nil {
		t.Fatal("Bulb should exist in loaded registry")
	}
	if b.Nickname != "desk" || b.LastIP != "192.168.1.42" {
		t.Errorf("Loaded bulb = %+v", b)
	}
	if loaded.WizConfig().SendInterval != 250*time.Millisecond {
		t.Errorf("Loaded SendInterval = %v, want 250ms", loaded.WizConfig().SendInterval)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "minimal",
			content: "version: 1\n",
		},
		{
			name:    "wrong version",
			content: "version: 2\n",
			wantErr: "unsupported config version",
		},
		{
			name:    "bad duration",
			content: "version: 1\ntuning:\n  send_interval: fast\n",
			wantErr: "invalid duration",
		},
		{
			name:    "invalid tuning",
			content: "version: 1\ntuning:\n  backoff_factor: 0.5\n",
			wantErr: "backoff factor",
		},
		{
			name:    "not yaml",
			content: "version: [\n",
			wantErr: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}

			reg, err := Load(path)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Load() error = %v", err)
				}
				if reg.Bulbs == nil || reg.Tuning == nil || reg.Network == nil {
					t.Error("Load() should initialise nil sections")
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	reg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if reg.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", reg.Version, CurrentVersion)
	}
}

func TestLoadRegistryFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wiz.yaml")
	t.Setenv(PathEnvVar, path)

	reg := NewRegistry()
	reg.SetBulbNickname("a8bb5006033d", "desk")
	if err := reg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	if loaded.GetBulb("a8bb5006033d") == nil {
		t.Error("LoadRegistry() should read WIZLIGHT_CONFIG")
	}
}

func BenchmarkEnsureBulb(b *testing.B) {
	reg := NewRegistry()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.EnsureBulb("a8bb5006033d")
	}
}
