package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPrecedence(t *testing.T) {
	explicit := "/tmp/custom.conf"
	resolved, err := ResolvePath(explicit)
	require.NoError(t, err)
	require.Equal(t, explicit, resolved)

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "drillcoach", "config.conf"), resolved)

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "drillcoach", "config.conf"), resolved)
}

func TestLoadMissingConfigUsesDefaultsWithWarning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.conf")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.False(t, loaded.Exists)
	require.Equal(t, Default(), loaded.Config)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "not found")
}

func TestLoadExistingFileParsesAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.conf")
	contents := `
service.url = http://127.0.0.1:8800
drills.default = attention
voice.enable = false
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, path, loaded.Path)
	require.Equal(t, "http://127.0.0.1:8800", loaded.Config.Service.URL)
	require.Equal(t, []string{"attention"}, loaded.Config.Drills.Default)
	require.False(t, loaded.Config.Voice.Enable)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.conf")
	require.NoError(t, os.WriteFile(path, []byte("service.url = http://file-wins:5000\n"), 0o600))
	t.Setenv("DRILLCOACH_SERVICE_URL", "http://env-wins:5000")
	t.Setenv("DRILLCOACH_DRILLS", "salute,turns")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://env-wins:5000", loaded.Config.Service.URL)
	require.Equal(t, []string{"salute", "turns"}, loaded.Config.Drills.Default)
}

func TestLoadMalformedEnvWarnsAndKeepsFileValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.conf")
	require.NoError(t, os.WriteFile(path, []byte("voice.enable = true\n"), 0o600))
	t.Setenv("DRILLCOACH_VOICE", "perhaps")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Config.Voice.Enable)

	found := false
	for _, warning := range loaded.Warnings {
		if warning.Message != "" && warning.Line == 0 {
			found = found || warning.Message == `ignoring malformed DRILLCOACH_VOICE="perhaps"`
		}
	}
	require.True(t, found, "expected env warning, got %v", loaded.Warnings)
}

func TestLoadParseErrorIncludesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.conf")
	require.NoError(t, os.WriteFile(path, []byte("service.upload_timeout_ms = soon\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
	require.Contains(t, err.Error(), path)
}

func TestLoadValidationErrorIncludesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.conf")
	require.NoError(t, os.WriteFile(path, []byte("drills.default = moonwalk\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "validate config")
	require.Contains(t, err.Error(), "moonwalk")
}
