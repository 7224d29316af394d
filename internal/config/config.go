package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`

	JWTSecret string `mapstructure:"jwt_secret"`

	PostgresDSN   string `mapstructure:"postgres_dsn"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// Matching queue expiry.
	QueueTTL        time.Duration `mapstructure:"queue_ttl"`
	QueueSweepEvery time.Duration `mapstructure:"queue_sweep_every"`

	// Call session timing. RingTimeout bounds how long a call may stay
	// unanswered; CallTTL bounds how long a pre-connect session may live.
	RingTimeout    time.Duration `mapstructure:"ring_timeout"`
	CallTTL        time.Duration `mapstructure:"call_ttl"`
	CallSweepEvery time.Duration `mapstructure:"call_sweep_every"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("jwt_secret", os.Getenv("JWT_SECRET"))
	v.SetDefault("postgres_dsn", os.Getenv("POSTGRES_DSN"))
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("queue_ttl", "5m")
	v.SetDefault("queue_sweep_every", "60s")
	v.SetDefault("ring_timeout", "45s")
	v.SetDefault("call_ttl", "5m")
	v.SetDefault("call_sweep_every", "5m")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
