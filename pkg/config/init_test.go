package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitConfig_Success(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if configPath != GetDefaultConfigPath() {
		t.Errorf("Expected %s, got %s", GetDefaultConfigPath(), configPath)
	}
	if !ConfigExists() {
		t.Fatalf("Config file was not created at %s", configPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	for _, section := range []string{
		"# DittoVFS Configuration File",
		"logging:",
		"server:",
		"cache:",
		"mounts:",
	} {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}

	_, err := InitConfig(false)
	if err == nil {
		t.Fatal("Expected error when config already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
}

func TestInitConfig_ForceOverwrite(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}
	if err := os.WriteFile(configPath, []byte("# Modified"), 0644); err != nil {
		t.Fatalf("Failed to modify config: %v", err)
	}

	newPath, err := InitConfig(true)
	if err != nil {
		t.Fatalf("Force InitConfig failed: %v", err)
	}
	if newPath != configPath {
		t.Errorf("Expected same path, got different: %s vs %s", configPath, newPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if !strings.Contains(string(content), "# DittoVFS Configuration File") {
		t.Error("Config file was not properly overwritten")
	}
}

func TestInitConfigToPath_RoundTrip(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "custom", "dittovfs.yaml")

	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	// the written file must load back into the default configuration
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load of generated config failed: %v", err)
	}
	want := GetDefaultConfig()
	if len(cfg.Mounts) != len(want.Mounts) {
		t.Fatalf("Expected %d mounts, got %d", len(want.Mounts), len(cfg.Mounts))
	}
	for i := range want.Mounts {
		if cfg.Mounts[i].MountPoint != want.Mounts[i].MountPoint || cfg.Mounts[i].Backend != want.Mounts[i].Backend {
			t.Errorf("Mount %d: expected %s (%s), got %s (%s)", i,
				want.Mounts[i].MountPoint, want.Mounts[i].Backend,
				cfg.Mounts[i].MountPoint, cfg.Mounts[i].Backend)
		}
	}
	if cfg.Server.ShutdownTimeout != want.Server.ShutdownTimeout {
		t.Errorf("Expected shutdown timeout %v, got %v", want.Server.ShutdownTimeout, cfg.Server.ShutdownTimeout)
	}
}

func TestInitConfigToPath_AlreadyExists(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("existing"), 0644); err != nil {
		t.Fatalf("Failed to create existing file: %v", err)
	}

	err := InitConfigToPath(configPath, false)
	if err == nil {
		t.Fatal("Expected error when file already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
}
