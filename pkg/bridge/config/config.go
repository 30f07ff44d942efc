package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// PublicBaseURL is the externally reachable https base of this service;
	// telephony webhooks and the relay websocket URL are derived from it.
	PublicBaseURL string

	// TableName is the session table holding connection records, profiles
	// and correlation leases.
	TableName string
	AWSRegion string

	// DefaultFrom is the caller id for outbound legs when the inbound leg
	// does not supply one.
	DefaultFrom string
	// AgentNumber is the handset dialed for the outbound leg when no
	// profile overrides it.
	AgentNumber string

	TwilioAccountSid string
	TwilioAuthToken  string

	// ProviderParamName is the parameter holding the active translation
	// provider name ("aws" or "deepl").
	ProviderParamName string
	// DeepLKeyParamName is the parameter holding the DeepL API key.
	DeepLKeyParamName       string
	ProviderRefreshInterval time.Duration

	// GraceDuration is how long the disconnect cascade waits after the
	// final notice before terminating the surviving call.
	GraceDuration time.Duration

	WSWriteTimeout     time.Duration
	WSHandshakeTimeout time.Duration

	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration

	MetricsNamespace string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                    envOr("CALLBRIDGE_ADDR", ":8080"),
		PublicBaseURL:           strings.TrimRight(envOr("CALLBRIDGE_PUBLIC_BASE_URL", ""), "/"),
		TableName:               envOr("CALLBRIDGE_TABLE_NAME", "callbridge-sessions"),
		AWSRegion:               envOr("CALLBRIDGE_AWS_REGION", ""),
		DefaultFrom:             envOr("CALLBRIDGE_DEFAULT_FROM", ""),
		AgentNumber:             envOr("CALLBRIDGE_AGENT_NUMBER", ""),
		TwilioAccountSid:        envOr("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:         envOr("TWILIO_AUTH_TOKEN", ""),
		ProviderParamName:       envOr("CALLBRIDGE_PROVIDER_PARAM", "/translation/PROVIDER"),
		DeepLKeyParamName:       envOr("CALLBRIDGE_DEEPL_KEY_PARAM", "/translation/DEEPL_API_KEY"),
		ProviderRefreshInterval: envDurationOr("CALLBRIDGE_PROVIDER_REFRESH_INTERVAL", time.Minute),
		GraceDuration:           envDurationOr("CALLBRIDGE_GRACE_DURATION", 2*time.Second),
		WSWriteTimeout:          envDurationOr("CALLBRIDGE_WS_WRITE_TIMEOUT", 5*time.Second),
		WSHandshakeTimeout:      envDurationOr("CALLBRIDGE_WS_HANDSHAKE_TIMEOUT", 5*time.Second),
		ReadHeaderTimeout:       envDurationOr("CALLBRIDGE_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:             envDurationOr("CALLBRIDGE_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:     envDurationOr("CALLBRIDGE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		MetricsNamespace:        envOr("CALLBRIDGE_METRICS_NAMESPACE", "callbridge"),
	}

	if cfg.PublicBaseURL == "" {
		return Config{}, fmt.Errorf("CALLBRIDGE_PUBLIC_BASE_URL must be set")
	}
	if !strings.HasPrefix(cfg.PublicBaseURL, "https://") && !strings.HasPrefix(cfg.PublicBaseURL, "http://") {
		return Config{}, fmt.Errorf("CALLBRIDGE_PUBLIC_BASE_URL must be an http(s) URL")
	}
	if strings.TrimSpace(cfg.TableName) == "" {
		return Config{}, fmt.Errorf("CALLBRIDGE_TABLE_NAME must not be empty")
	}
	if cfg.AgentNumber == "" {
		return Config{}, fmt.Errorf("CALLBRIDGE_AGENT_NUMBER must be set")
	}
	if cfg.ProviderRefreshInterval <= 0 {
		return Config{}, fmt.Errorf("CALLBRIDGE_PROVIDER_REFRESH_INTERVAL must be > 0")
	}
	if cfg.GraceDuration <= 0 {
		return Config{}, fmt.Errorf("CALLBRIDGE_GRACE_DURATION must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("CALLBRIDGE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("CALLBRIDGE_WS_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("CALLBRIDGE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("CALLBRIDGE_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("CALLBRIDGE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

// RelayURL is the websocket URL telephony connects each leg's realtime
// channel to.
func (c Config) RelayURL() string {
	base := c.PublicBaseURL
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + "/relay"
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
