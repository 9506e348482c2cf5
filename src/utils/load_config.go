package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type AppConfig struct {
	BotToken   string
	APIBaseURL string
	APIVersion int

	GuildID      string
	ChannelID    string
	WebhookID    string
	WebhookToken string

	HTTPTimeout         time.Duration
	HeartbeatAckTimeout time.Duration
	UserAgentPrefix     string

	// Empty address disables the status server.
	StatusAddress string

	// Shown in the start announcement, e.g. "play.example.com".
	PublicAddress string

	ProxyCheckBaseURL string
	ProxyCheckVersion int
	ProxyCheckKey     string
}

const (
	defaultAPIBaseURL        = "https://discord.com/api"
	defaultAPIVersion        = 10
	defaultHTTPTimeout       = 5 * time.Second
	defaultAckTimeout        = 5 * time.Second
	defaultProxyCheckBaseURL = "https://proxycheck.io"
	defaultProxyCheckVersion = 2
)

// LoadConfiguration reads the relay configuration from the environment.
// Required keys abort with an error; the rest fall back to defaults.
func LoadConfiguration() (AppConfig, error) {
	cfg := AppConfig{
		APIBaseURL:          defaultAPIBaseURL,
		APIVersion:          defaultAPIVersion,
		HTTPTimeout:         defaultHTTPTimeout,
		HeartbeatAckTimeout: defaultAckTimeout,
		ProxyCheckBaseURL:   defaultProxyCheckBaseURL,
		ProxyCheckVersion:   defaultProxyCheckVersion,
	}
	requiredEnv := map[string]*string{
		"DC_BOT_TOKEN":  &cfg.BotToken,
		"DC_GUILD_ID":   &cfg.GuildID,
		"DC_CHANNEL_ID": &cfg.ChannelID,
	}
	for k, v := range requiredEnv {
		val, ok := os.LookupEnv(k)
		if !ok || len(val) == 0 {
			return AppConfig{}, fmt.Errorf("missing required environment variable %s", k)
		}
		*v = val
	}
	optionalEnv := map[string]*string{
		"DC_API_BASE_URL":     &cfg.APIBaseURL,
		"DC_WEBHOOK_ID":       &cfg.WebhookID,
		"DC_WEBHOOK_TOKEN":    &cfg.WebhookToken,
		"USER_AGENT_PREFIX":   &cfg.UserAgentPrefix,
		"STATUS_ADDRESS":      &cfg.StatusAddress,
		"PUBLIC_ADDRESS":      &cfg.PublicAddress,
		"PROXYCHECK_BASE_URL": &cfg.ProxyCheckBaseURL,
		"PROXYCHECK_API_KEY":  &cfg.ProxyCheckKey,
	}
	for k, v := range optionalEnv {
		if val, ok := os.LookupEnv(k); ok && len(val) > 0 {
			*v = val
		}
	}
	if err := intEnv("DC_API_VERSION", &cfg.APIVersion); err != nil {
		return AppConfig{}, err
	}
	if err := intEnv("PROXYCHECK_API_VERSION", &cfg.ProxyCheckVersion); err != nil {
		return AppConfig{}, err
	}
	if err := secondsEnv("HTTP_TIMEOUT_SECONDS", &cfg.HTTPTimeout); err != nil {
		return AppConfig{}, err
	}
	if err := secondsEnv("HEARTBEAT_ACK_TIMEOUT_SECONDS", &cfg.HeartbeatAckTimeout); err != nil {
		return AppConfig{}, err
	}
	if cfg.APIVersion <= 0 {
		return AppConfig{}, fmt.Errorf("DC_API_VERSION must be positive, got %d", cfg.APIVersion)
	}
	return cfg, nil
}

func intEnv(key string, target *int) error {
	val, ok := os.LookupEnv(key)
	if !ok || len(val) == 0 {
		return nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*target = parsed
	return nil
}

func secondsEnv(key string, target *time.Duration) error {
	val, ok := os.LookupEnv(key)
	if !ok || len(val) == 0 {
		return nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return fmt.Errorf("%s must be positive, got %d", key, parsed)
	}
	*target = time.Duration(parsed) * time.Second
	return nil
}
