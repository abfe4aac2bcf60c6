package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"f12mqtt"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`
	TopicPrefix   string `env:"TOPIC_PREFIX" envDefault:"f12mqtt"`

	DiscoveryPrefix string `env:"DISCOVERY_PREFIX" envDefault:"homeassistant"`
	Favourites      string `env:"FAVOURITE_DRIVERS"` // comma-separated racing numbers
	NotifierEnabled bool   `env:"NOTIFIER_ENABLED" envDefault:"false"`
	NotifierPrefix  string `env:"NOTIFIER_PREFIX" envDefault:"awtrix"`

	LiveEnabled bool   `env:"LIVE_ENABLED" envDefault:"true"`
	FeedURL     string `env:"FEED_URL" envDefault:"https://livetiming.formula1.com"`
	ArchiveURL  string `env:"ARCHIVE_URL" envDefault:"https://livetiming.formula1.com/static"`

	RecordingsDir string `env:"RECORDINGS_DIR" envDefault:"./recordings"`
	SettingsDB    string `env:"SETTINGS_DB" envDefault:"./f12mqtt.db"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	S3ArchiveEnabled bool   `env:"S3_ARCHIVE_ENABLED" envDefault:"false"`
	S3Bucket         string `env:"S3_BUCKET"`
	S3Region         string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint       string `env:"S3_ENDPOINT"`
	S3AccessKey      string `env:"S3_ACCESS_KEY"`
	S3SecretKey      string `env:"S3_SECRET_KEY"`
	S3RetentionDays  int    `env:"S3_RETENTION_DAYS" envDefault:"0"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// FavouriteDrivers splits the comma-separated favourites list, dropping
// empty entries.
func (c *Config) FavouriteDrivers() []string {
	if c.Favourites == "" {
		return nil
	}
	var nums []string
	for _, n := range strings.Split(c.Favourites, ",") {
		if n = strings.TrimSpace(n); n != "" {
			nums = append(nums, n)
		}
	}
	return nums
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	MQTTBrokerURL string
	RecordingsDir string
	Favourites    string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// Parse environment variables into config struct
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.MQTTBrokerURL != "" {
		cfg.MQTTBrokerURL = overrides.MQTTBrokerURL
	}
	if overrides.RecordingsDir != "" {
		cfg.RecordingsDir = overrides.RecordingsDir
	}
	if overrides.Favourites != "" {
		cfg.Favourites = overrides.Favourites
	}

	// Required fields are checked after the merge so a CLI flag alone can
	// satisfy them.
	if cfg.MQTTBrokerURL == "" {
		return nil, fmt.Errorf("MQTT_BROKER_URL is required (env var or -mqtt-broker flag)")
	}

	return cfg, nil
}
