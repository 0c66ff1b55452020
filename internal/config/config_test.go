package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "env: local\n"))
	require.NoError(t, err)

	assert.Equal(t, EnvLocal, cfg.Env)
	assert.Equal(t, ":8080", cfg.AddressHTTP)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, "log", cfg.Messenger.Driver)
	assert.Equal(t, "America/Mexico_City", cfg.Timezone)
	assert.Equal(t, 21, cfg.TrialDays)
	assert.Equal(t, 30, cfg.SubscriptionDays)
	assert.Equal(t, 25*time.Minute, cfg.SoftReminder)
	assert.Equal(t, 30*time.Minute, cfg.FinalReminder)
	assert.Equal(t, 45*time.Minute, cfg.HardLimit)
	assert.Equal(t, 10, cfg.HistorySize)
	assert.Equal(t, time.Hour, cfg.ReminderInterval)
	assert.Equal(t, 168*time.Hour, cfg.CleanupInterval)
	assert.Equal(t, 2160*time.Hour, cfg.TrialRetention)
	assert.Equal(t, "deepseek-chat", cfg.Model)
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-6)
	assert.Equal(t, 600, cfg.MaxTokens)
	assert.Equal(t, "notifications", cfg.Exchange)
}

func TestLoad_FileAndEnv(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	t.Setenv("ADMIN_JWT_SECRET", "admin-secret")

	cfg, err := Load(writeConfig(t, `
env: prod
http_server:
  addresshttp: ":9090"
storage:
  driver: redis
  key_prefix: "alma:"
policy:
  trial_days: 14
  soft_reminder: 10m
  final_reminder: 15m
  hard_limit: 20m
messenger:
  driver: rabbitmq
`))
	require.NoError(t, err)

	assert.Equal(t, EnvProd, cfg.Env)
	assert.Equal(t, ":9090", cfg.AddressHTTP)
	assert.Equal(t, "redis", cfg.Storage.Driver)
	assert.Equal(t, "alma:", cfg.KeyPrefix)
	assert.Equal(t, 14, cfg.TrialDays)
	assert.Equal(t, 20*time.Minute, cfg.HardLimit)
	assert.Equal(t, "rabbitmq", cfg.Messenger.Driver)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "admin-secret", cfg.JWTSecretKey)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "soft after final",
			content: "policy:\n  soft_reminder: 35m\n",
			wantErr: "session thresholds",
		},
		{
			name:    "final after hard",
			content: "policy:\n  final_reminder: 50m\n",
			wantErr: "session thresholds",
		},
		{
			name:    "unknown timezone",
			content: "policy:\n  timezone: Mars/Olympus\n",
			wantErr: "invalid timezone",
		},
		{
			name:    "unknown storage driver",
			content: "storage:\n  driver: postgres\n",
			wantErr: "unknown storage driver",
		},
		{
			name:    "unknown messenger driver",
			content: "messenger:\n  driver: smtp\n",
			wantErr: "unknown messenger driver",
		},
		{
			name:    "negative history",
			content: "policy:\n  history_size: -1\n",
			wantErr: "history size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPolicyLocation(t *testing.T) {
	loc := Policy{Timezone: "America/Mexico_City"}.Location()
	assert.Equal(t, "America/Mexico_City", loc.String())

	assert.Equal(t, time.Local, Policy{Timezone: "Nowhere/Land"}.Location())
}
