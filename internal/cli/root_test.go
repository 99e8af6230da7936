package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "pixelgrid", cmd.Use)
	assert.Contains(t, cmd.Long, "shared grid")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "paint", "clear", "dump", "watch", "palette"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestClientCommandFlags(t *testing.T) {
	for _, name := range []string{"paint", "clear", "dump", "watch"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := NewRootCommand().Find([]string{name})
			require.NoError(t, err)
			assert.NotNil(t, sub.Flags().Lookup("url"))
			assert.NotNil(t, sub.Flags().Lookup("size"))
		})
	}
}

func TestPaintCommandFlags(t *testing.T) {
	sub, _, err := NewRootCommand().Find([]string{"paint"})
	require.NoError(t, err)

	colorFlag := sub.Flags().Lookup("color")
	require.NotNil(t, colorFlag)
	assert.Equal(t, "c", colorFlag.Shorthand)
	assert.Equal(t, "#000000", colorFlag.DefValue)
}

func TestServeCommandFlags(t *testing.T) {
	sub, _, err := NewRootCommand().Find([]string{"serve"})
	require.NoError(t, err)

	for _, name := range []string{"addr", "backend", "db"} {
		assert.NotNil(t, sub.Flags().Lookup(name), "flag %s", name)
	}
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs([]string{"palette", "--format", "xml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootCommand_BadConfigFile(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs([]string{"palette", "--config", filepath.Join(t.TempDir(), "missing.yaml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func noEnv(string) string { return "" }

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("", noEnv)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 48, cfg.Size)
	assert.Equal(t, BackendSQLite, cfg.Serve.Backend)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixelgrid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
url: http://canvas.local:9000
size: 16
serve:
  addr: ":9000"
  backend: postgres
  postgres:
    database_url: postgres://file/db
    channel: canvas
`), 0o644))

	cfg, err := LoadConfig(path, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "http://canvas.local:9000", cfg.URL)
	assert.Equal(t, 16, cfg.Size)
	assert.Equal(t, ":9000", cfg.Serve.Addr)
	assert.Equal(t, BackendPostgres, cfg.Serve.Backend)
	assert.Equal(t, "postgres://file/db", cfg.Serve.Postgres.DatabaseURL)
	assert.Equal(t, "canvas", cfg.Serve.Postgres.Channel)
	// Unset keys keep their defaults.
	assert.Equal(t, "pixelgrid.db", cfg.Serve.DB)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixelgrid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: http://file\n"), 0o644))

	env := map[string]string{
		"PIXELGRID_URL": "http://env",
		"DATABASE_URL":  "postgres://env/db",
		"REDIS_ADDR":    "redis.env:6379",
	}
	cfg, err := LoadConfig(path, func(k string) string { return env[k] })
	require.NoError(t, err)
	assert.Equal(t, "http://env", cfg.URL)
	assert.Equal(t, "postgres://env/db", cfg.Serve.Postgres.DatabaseURL)
	assert.Equal(t, "redis.env:6379", cfg.Serve.Postgres.RedisAddr)
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown field", "colour: red\n", "field colour not found"},
		{"bad size", "size: 0\n", "size must be positive"},
		{"bad backend", "serve:\n  backend: mongo\n", "unknown backend"},
		{"malformed", "size: [\n", "failed to parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pixelgrid.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := LoadConfig(path, noEnv)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
