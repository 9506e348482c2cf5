package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DC_BOT_TOKEN", "tok")
	t.Setenv("DC_GUILD_ID", "g1")
	t.Setenv("DC_CHANNEL_ID", "c1")
}

func TestLoadConfigurationDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfiguration()
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.BotToken)
	assert.Equal(t, "g1", cfg.GuildID)
	assert.Equal(t, "c1", cfg.ChannelID)
	assert.Equal(t, "https://discord.com/api", cfg.APIBaseURL)
	assert.Equal(t, 10, cfg.APIVersion)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatAckTimeout)
	assert.Equal(t, "https://proxycheck.io", cfg.ProxyCheckBaseURL)
	assert.Equal(t, 2, cfg.ProxyCheckVersion)
	assert.Empty(t, cfg.StatusAddress)
	assert.Empty(t, cfg.WebhookID)
}

func TestLoadConfigurationMissingRequired(t *testing.T) {
	t.Setenv("DC_BOT_TOKEN", "tok")
	t.Setenv("DC_GUILD_ID", "g1")
	t.Setenv("DC_CHANNEL_ID", "")

	_, err := LoadConfiguration()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DC_CHANNEL_ID")
}

func TestLoadConfigurationOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DC_API_BASE_URL", "http://localhost:9999/api")
	t.Setenv("DC_API_VERSION", "9")
	t.Setenv("DC_WEBHOOK_ID", "42")
	t.Setenv("DC_WEBHOOK_TOKEN", "secret")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "30")
	t.Setenv("HEARTBEAT_ACK_TIMEOUT_SECONDS", "12")
	t.Setenv("STATUS_ADDRESS", ":8080")
	t.Setenv("PUBLIC_ADDRESS", "play.example.com")

	cfg, err := LoadConfiguration()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999/api", cfg.APIBaseURL)
	assert.Equal(t, 9, cfg.APIVersion)
	assert.Equal(t, "42", cfg.WebhookID)
	assert.Equal(t, "secret", cfg.WebhookToken)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 12*time.Second, cfg.HeartbeatAckTimeout)
	assert.Equal(t, ":8080", cfg.StatusAddress)
	assert.Equal(t, "play.example.com", cfg.PublicAddress)
}

func TestLoadConfigurationRejectsBadNumbers(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DC_API_VERSION", "ten")
	_, err := LoadConfiguration()
	assert.Error(t, err)

	t.Setenv("DC_API_VERSION", "0")
	_, err = LoadConfiguration()
	assert.Error(t, err)

	t.Setenv("DC_API_VERSION", "10")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "-1")
	_, err = LoadConfiguration()
	assert.Error(t, err)
}
