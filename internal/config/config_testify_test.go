package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	yaml := "transport: http\nport: 9090\nallow_intrusive: true\n"
	require.NoError(t, writeFile(path, yaml))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http", cfg.Transport)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.AllowIntrusive)
	assert.Equal(t, Defaults().MaxArgsLen, cfg.MaxArgsLen, "unset YAML fields keep compiled-in defaults")
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, writeFile(path, "port: 9090\n"))
	t.Setenv("PORT", "7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port, "env var must take precedence over YAML")
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
