package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App          AppSettings          `mapstructure:"app"`
	Postgres     PostgresSettings     `mapstructure:"postgres"`
	Redis        RedisSettings        `mapstructure:"redis"`
	Kafka        KafkaSettings        `mapstructure:"kafka"`
	JWT          JWTSettings          `mapstructure:"jwt"`
	CSRF         CSRFSettings         `mapstructure:"csrf"`
	Verification VerificationSettings `mapstructure:"verification"`
	Mail         MailSettings         `mapstructure:"mail"`
	RateLimit    RateLimitSettings    `mapstructure:"rate_limit"`
	Argon2       Argon2Settings       `mapstructure:"argon2"`
	Metrics      MetricsSettings      `mapstructure:"metrics"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and operation deadlines
type RedisSettings struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	DB           int           `mapstructure:"db"`
	Password     string        `mapstructure:"password"`
	TLSEnabled   bool          `mapstructure:"tls_enabled"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaSettings configures the event producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

type JWTSettings struct {
	Secret               string        `mapstructure:"secret"`
	AccessTokenTTL       time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL      time.Duration `mapstructure:"refresh_token_ttl"`
	RefreshTokenShortTTL time.Duration `mapstructure:"refresh_token_short_ttl"`
}

// CSRFSettings governs the double-submit cookie defense.
type CSRFSettings struct {
	CookieTTL      time.Duration `mapstructure:"cookie_ttl"`
	MinTTL         time.Duration `mapstructure:"min_ttl"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// VerificationSettings governs code issuance, cooldowns and ban escalation.
type VerificationSettings struct {
	CodeTTL           time.Duration `mapstructure:"code_ttl"`
	CooldownTTL       time.Duration `mapstructure:"cooldown_ttl"`
	MaxVerifyFailures int           `mapstructure:"max_verify_failures"`
	FailureWindow     time.Duration `mapstructure:"failure_window"`
	AbuseThreshold    int           `mapstructure:"abuse_threshold"`
	AbuseWindow       time.Duration `mapstructure:"abuse_window"`
	BanTTL            time.Duration `mapstructure:"ban_ttl"`
	ExistsCacheTTL    time.Duration `mapstructure:"exists_cache_ttl"`
	CodePepper        string        `mapstructure:"code_pepper"`
}

// MailSettings configures the SMTP relay used for verification codes.
type MailSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// DevMode logs messages instead of delivering them.
	DevMode bool `mapstructure:"dev_mode"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint
type RateLimitSettings struct {
	WindowDuration      time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts    int           `mapstructure:"login_max_attempts"`
	RegisterMaxAttempts int           `mapstructure:"register_max_attempts"`
	RefreshMaxAttempts  int           `mapstructure:"refresh_max_attempts"`
	SendCodeMaxAttempts int           `mapstructure:"send_code_max_attempts"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type MetricsSettings struct {
	Port int `mapstructure:"port"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("IDENTITY")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.dial_timeout",
		"redis.read_timeout",
		"redis.write_timeout",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"jwt.secret",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"jwt.refresh_token_short_ttl",
		"csrf.cookie_ttl",
		"csrf.min_ttl",
		"csrf.allowed_origins",
		"verification.code_ttl",
		"verification.cooldown_ttl",
		"verification.max_verify_failures",
		"verification.failure_window",
		"verification.abuse_threshold",
		"verification.abuse_window",
		"verification.ban_ttl",
		"verification.exists_cache_ttl",
		"verification.code_pepper",
		"mail.host",
		"mail.port",
		"mail.username",
		"mail.password",
		"mail.from",
		"mail.dev_mode",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.register_max_attempts",
		"rate_limit.refresh_max_attempts",
		"rate_limit.send_code_max_attempts",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"metrics.port",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.JWT.Secret == "" && cfg.App.Env != "development" {
		return nil, fmt.Errorf("jwt.secret is required outside development")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "identity-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "identity")
	v.SetDefault("postgres.password", "identity_password")
	v.SetDefault("postgres.database", "identity")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.dial_timeout", "2s")
	v.SetDefault("redis.read_timeout", "500ms")
	v.SetDefault("redis.write_timeout", "500ms")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "identity")
	v.SetDefault("kafka.async", true)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_token_ttl", "2h")
	v.SetDefault("jwt.refresh_token_ttl", "720h")
	v.SetDefault("jwt.refresh_token_short_ttl", "24h")

	v.SetDefault("csrf.cookie_ttl", "24h")
	v.SetDefault("csrf.min_ttl", "5m")
	v.SetDefault("csrf.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("verification.code_ttl", "5m")
	v.SetDefault("verification.cooldown_ttl", "60s")
	v.SetDefault("verification.max_verify_failures", 6)
	v.SetDefault("verification.failure_window", "10m")
	v.SetDefault("verification.abuse_threshold", 6)
	v.SetDefault("verification.abuse_window", "10m")
	v.SetDefault("verification.ban_ttl", "30m")
	v.SetDefault("verification.exists_cache_ttl", "60s")
	v.SetDefault("verification.code_pepper", "")

	v.SetDefault("mail.host", "localhost")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "no-reply@rimsurge.example")
	v.SetDefault("mail.dev_mode", true)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.register_max_attempts", 3)
	v.SetDefault("rate_limit.refresh_max_attempts", 10)
	v.SetDefault("rate_limit.send_code_max_attempts", 3)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("metrics.port", 9090)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "IDENTITY_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
