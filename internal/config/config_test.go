package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	loader, err := Load("")
	require.NoError(t, err)

	cfg := loader.Config()
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.Equal(t, 24*time.Hour, cfg.SessionDuration)
	assert.Equal(t, 10*time.Second, cfg.RemoteTimeout)
	assert.False(t, cfg.TrustProxyHeaders)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("ABA_PORT", "9090")
	t.Setenv("ABA_OPENAI_MODEL", "gpt-4o")
	t.Setenv("ABA_TRUST_PROXY_HEADERS", "true")

	loader, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", loader.Config().ServerPort)
	assert.Equal(t, "gpt-4o", loader.Config().OpenAIModel)
	assert.True(t, loader.Config().TrustProxyHeaders)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := "port: \"7070\"\nlog_level: debug\nsession_duration: 2h\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))

	loader, err := Load(dir)
	require.NoError(t, err)

	cfg := loader.Config()
	assert.Equal(t, "7070", cfg.ServerPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Hour, cfg.SessionDuration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "postgres without url",
			cfg:     Config{DatabaseType: "postgres", SessionDuration: time.Hour, RemoteTimeout: time.Second},
			wantErr: true,
		},
		{
			name:    "mysql with url",
			cfg:     Config{DatabaseType: "mysql", DatabaseURL: "user:pw@/db", SessionDuration: time.Hour, RemoteTimeout: time.Second},
			wantErr: false,
		},
		{
			name:    "zero remote timeout",
			cfg:     Config{DatabaseType: "sqlite", SessionDuration: time.Hour},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
