package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

type HTTPConfig struct {
	Addr           string `mapstructure:"addr"`
	BodyLimitBytes int    `mapstructure:"body_limit_bytes"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	InvitationTopic string   `mapstructure:"invitation_topic"`
}

type NotifyConfig struct {
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

type S3Config struct {
	Bucket        string `mapstructure:"bucket"`
	Region        string `mapstructure:"region"`
	Endpoint      string `mapstructure:"endpoint"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type SessionConfig struct {
	OutboxSize    int           `mapstructure:"outbox_size"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	HistorySize   int           `mapstructure:"history_size"`
	CloseTimeout  time.Duration `mapstructure:"close_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

type Config struct {
	GRPC    GRPCConfig    `mapstructure:"grpc"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	S3      S3Config      `mapstructure:"s3"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("grpc.addr", ":50051")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.body_limit_bytes", 10<<20)
	v.SetDefault("db.path", "./huddle.db")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "huddle")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "huddle")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.invitation_topic", "invitations")
	v.SetDefault("notify.breaker_failures", 5)
	v.SetDefault("notify.breaker_timeout", 30*time.Second)
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.public_base_url", "")
	v.SetDefault("session.outbox_size", 64)
	v.SetDefault("session.rate_per_second", 20)
	v.SetDefault("session.burst", 40)
	v.SetDefault("session.history_size", 50)
	v.SetDefault("session.close_timeout", 5*time.Second)
	v.SetDefault("session.write_timeout", 10*time.Second)
	v.SetDefault("log.development", false)
	v.SetDefault("log.level", "info")
}

// Load reads .env, HUDDLE_* environment variables and the optional config
// file at path, in increasing precedence of file over defaults and env over file.
func Load(path string) (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if brokers := v.GetStringSlice("kafka.brokers"); len(brokers) == 1 && strings.Contains(brokers[0], ",") {
		c.Kafka.Brokers = strings.Split(brokers[0], ",")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Session.OutboxSize <= 0 {
		return fmt.Errorf("session.outbox_size must be positive, got %d", c.Session.OutboxSize)
	}
	if c.Session.RatePerSecond <= 0 || c.Session.Burst <= 0 {
		return errors.New("session.rate_per_second and session.burst must be positive")
	}
	return nil
}
