package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Instance  InstanceConfig
	Policy    PolicyConfig
	Token     TokenConfig
	Breaker   BreakerConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Tracing   TracingConfig
	// TopologyFile points at the YAML file describing peer instances,
	// bilateral trust edges and classification mappings.
	TopologyFile string
	Environment  string
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

// InstanceConfig identifies the local instance within the federation.
type InstanceConfig struct {
	ID             string
	Code           string
	Country        string
	SigningKeyFile string
}

type PolicyConfig struct {
	EngineURL  string
	PolicyPath string
	Timeout    time.Duration
}

type TokenConfig struct {
	ExchangeTTL      time.Duration
	IntrospectionTTL time.Duration
	JWKSTTL          time.Duration
	RemoteTimeout    time.Duration
}

type BreakerConfig struct {
	FailureThreshold int
	FailureWindow    time.Duration
	RecoveryTimeout  time.Duration
	HalfOpenTimeout  time.Duration
	SuccessThreshold int
	// HalfOpenRatio is the fraction of calls admitted as probes while
	// half-open, in [0, 1].
	HalfOpenRatio float64
}

type RateLimitConfig struct {
	FederationPerMinute int
	AdminPerMinute      int
	TrustedProxyCIDRs   []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvInt("SERVER_PORT", 8080),
			BaseURL: getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Instance: InstanceConfig{
			ID:             getEnv("FEDERATION_INSTANCE_ID", ""),
			Code:           getEnv("FEDERATION_INSTANCE_CODE", ""),
			Country:        getEnv("FEDERATION_INSTANCE_COUNTRY", ""),
			SigningKeyFile: getEnv("FEDERATION_SIGNING_KEY_FILE", ""),
		},
		Policy: PolicyConfig{
			EngineURL:  getEnv("POLICY_ENGINE_URL", "http://localhost:8181"),
			PolicyPath: getEnv("POLICY_PATH", "coalition/authz"),
			Timeout:    getEnvDuration("POLICY_TIMEOUT", 5*time.Second),
		},
		Token: TokenConfig{
			ExchangeTTL:      getEnvDuration("TOKEN_EXCHANGE_TTL", 15*time.Minute),
			IntrospectionTTL: getEnvDuration("INTROSPECTION_CACHE_TTL", 30*time.Second),
			JWKSTTL:          getEnvDuration("JWKS_CACHE_TTL", time.Hour),
			RemoteTimeout:    getEnvDuration("TOKEN_REMOTE_TIMEOUT", 10*time.Second),
		},
		Breaker: BreakerConfig{
			FailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
			FailureWindow:    getEnvDuration("BREAKER_FAILURE_WINDOW", time.Minute),
			RecoveryTimeout:  getEnvDuration("BREAKER_RECOVERY_TIMEOUT", 30*time.Second),
			HalfOpenTimeout:  getEnvDuration("BREAKER_HALF_OPEN_TIMEOUT", 60*time.Second),
			SuccessThreshold: getEnvInt("BREAKER_SUCCESS_THRESHOLD", 3),
			HalfOpenRatio:    getEnvFloat("BREAKER_HALF_OPEN_RATIO", 0.2),
		},
		RateLimit: RateLimitConfig{
			FederationPerMinute: getEnvInt("RATE_LIMIT_FEDERATION", 300),
			AdminPerMinute:      getEnvInt("RATE_LIMIT_ADMIN", 0),
			TrustedProxyCIDRs:   splitList(getEnv("TRUSTED_PROXY_CIDRS", "")),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "stdout"),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "federation-core"),
			OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		TopologyFile: getEnv("FEDERATION_TOPOLOGY_FILE", "topology.yaml"),
		Environment:  getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Instance.ID == "" {
		return Config{}, fmt.Errorf("FEDERATION_INSTANCE_ID is required")
	}
	if cfg.Instance.Code == "" {
		return Config{}, fmt.Errorf("FEDERATION_INSTANCE_CODE is required")
	}
	if cfg.Breaker.HalfOpenRatio < 0 || cfg.Breaker.HalfOpenRatio > 1 {
		return Config{}, fmt.Errorf("BREAKER_HALF_OPEN_RATIO must be between 0 and 1")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
