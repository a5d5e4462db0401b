package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// Ensure no env vars interfere
	os.Unsetenv("STORAGE_BACKEND")
	os.Unsetenv("STORAGE_PATH")
	os.Unsetenv("GC_MODE")

	cfg := LoadConfig()

	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "data/syntrix-client.db", cfg.Storage.Path)
	assert.Equal(t, "eager", cfg.GCMode())
}

func TestLoadConfig_EnvVars(t *testing.T) {
	os.Setenv("STORAGE_BACKEND", "sqlite")
	os.Setenv("STORAGE_PATH", "/tmp/test.db")
	defer func() {
		os.Unsetenv("STORAGE_BACKEND")
		os.Unsetenv("STORAGE_PATH")
	}()

	cfg := LoadConfig()

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/test.db", cfg.Storage.Path)
	assert.Equal(t, "deferred", cfg.GCMode())
}

func TestLoadConfig_FileOverride(t *testing.T) {
	err := os.Mkdir("config", 0755)
	require.NoError(t, err)
	defer os.RemoveAll("config")

	configContent := []byte(`
storage:
  backend: "sqlite"
  path: "file.db"
gc:
  mode: "eager"
`)
	err = os.WriteFile("config/config.yml", configContent, 0644)
	require.NoError(t, err)

	cfg := LoadConfig()

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "file.db", cfg.Storage.Path)
	assert.Equal(t, "eager", cfg.GCMode())
}

func TestLoadConfig_LocalFileOverride(t *testing.T) {
	err := os.Mkdir("config", 0755)
	require.NoError(t, err)
	defer os.RemoveAll("config")

	err = os.WriteFile("config/config.yml", []byte(`
storage:
  backend: "sqlite"
  path: "file.db"
`), 0644)
	require.NoError(t, err)

	err = os.WriteFile("config/config.local.yml", []byte(`
storage:
  path: "local.db"
`), 0644)
	require.NoError(t, err)

	cfg := LoadConfig()

	assert.Equal(t, "local.db", cfg.Storage.Path)   // Overridden
	assert.Equal(t, "sqlite", cfg.Storage.Backend)  // Inherited from config.yml
}

func TestLoadConfig_EnvOverrideFile(t *testing.T) {
	err := os.Mkdir("config", 0755)
	require.NoError(t, err)
	defer os.RemoveAll("config")

	err = os.WriteFile("config/config.yml", []byte(`
storage:
  backend: "sqlite"
`), 0644)
	require.NoError(t, err)

	os.Setenv("STORAGE_BACKEND", "memory")
	defer os.Unsetenv("STORAGE_BACKEND")

	cfg := LoadConfig()

	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestGCModeExplicitWins(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{Backend: "sqlite"},
		GC:      GCConfig{Mode: "eager"},
	}
	assert.Equal(t, "eager", cfg.GCMode())
}
