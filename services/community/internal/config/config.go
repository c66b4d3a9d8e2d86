package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location relative to the working dir.
const ConfigPath = "config.yaml"

// ChannelSeed declares one administratively provisioned channel.
type ChannelSeed struct {
	Slug     string `yaml:"slug"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Position int    `yaml:"position"`
	Type     string `yaml:"type"`
	Readonly bool   `yaml:"readonly"`
	MinRole  string `yaml:"minRole"`
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// Empty databaseURL selects the in-memory store (dev/test only).
	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	EventTopic    string `yaml:"eventTopic"`

	IdentityServiceURL  string `yaml:"identityServiceURL"`
	IdentityJWKSURL     string `yaml:"identityJwksURL"`
	JWTIssuer           string `yaml:"jwtIssuer"`
	JWTAudience         string `yaml:"jwtAudience"`
	JWTLeeway           string `yaml:"jwtLeeway"`
	BillingServiceURL   string `yaml:"billingServiceURL"`
	AssistantServiceURL string `yaml:"assistantServiceURL"`
	AssistantAPIKey     string `yaml:"assistantAPIKey"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	AMQPURL        string `yaml:"amqpURL"`
	AMQPExchange   string `yaml:"amqpExchange"`
	DeliveryStream string `yaml:"deliveryStream"`

	SendRateLimitPerMinute     int `yaml:"sendRateLimitPerMinute"`
	PostRateLimitPerMinute     int `yaml:"postRateLimitPerMinute"`
	ReactionRateLimitPerMinute int `yaml:"reactionRateLimitPerMinute"`
	ReportRateLimitPerMinute   int `yaml:"reportRateLimitPerMinute"`

	TrustedProxyCIDRs []string      `yaml:"trustedProxyCidrs"`
	AllowedOrigins    []string      `yaml:"allowedOrigins"`
	Channels          []ChannelSeed `yaml:"channels"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("COMMUNITY_IDENTITY_JWKS_URL"); v != "" {
		cfg.IdentityJWKSURL = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if v := os.Getenv("JWT_LEEWAY"); v != "" {
		cfg.JWTLeeway = v
	}
	if v := os.Getenv("ASSISTANT_API_KEY"); v != "" {
		cfg.AssistantAPIKey = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("COMMUNITY_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("COMMUNITY_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("COMMUNITY_SEND_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SendRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("COMMUNITY_POST_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PostRateLimitPerMinute = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.IdentityServiceURL) == "" {
		return errors.New("config: identityServiceURL is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.IdentityJWKSURL) == "" {
		return errors.New("config: identityJwksURL is required (set in config.yaml or COMMUNITY_IDENTITY_JWKS_URL)")
	}
	if cfg.SendRateLimitPerMinute < 0 || cfg.PostRateLimitPerMinute < 0 ||
		cfg.ReactionRateLimitPerMinute < 0 || cfg.ReportRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	for _, ch := range cfg.Channels {
		if strings.TrimSpace(ch.Slug) == "" || strings.TrimSpace(ch.Name) == "" {
			return fmt.Errorf("config: channel seed needs slug and name (got slug=%q)", ch.Slug)
		}
		switch ch.Type {
		case "", "chat", "forum":
		default:
			return fmt.Errorf("config: channel %q has unknown type %q", ch.Slug, ch.Type)
		}
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}
