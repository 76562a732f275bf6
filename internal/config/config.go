package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	MQTT struct {
		Host      string `yaml:"host"`
		Port      int    `yaml:"port"`
		Username  string `yaml:"username"`
		Password  string `yaml:"password"`
		UseTLS    bool   `yaml:"use_tls"`
		Topic     string `yaml:"topic"`
		Separator string `yaml:"separator"`
	} `yaml:"mqtt"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Bank struct {
		Path string `yaml:"path"`
	} `yaml:"bank"`
	Consumer struct {
		MaxInflight    int    `yaml:"max_inflight"`
		BackoffInitial string `yaml:"backoff_initial"`
		BackoffMax     string `yaml:"backoff_max"`
	} `yaml:"consumer"`
}

// Load reads YAML config from path, then applies environment overrides. A
// missing file is fine; the service can run from environment alone.
func Load(path string) (Config, error) {
	cfg := Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnv layers SUBSCRIBER_* variables over the file, matching the
// deployment convention of the publisher-side tooling.
func (c *Config) applyEnv() {
	setString(&c.MQTT.Host, "SUBSCRIBER_MQTT_HOSTNAME")
	setInt(&c.MQTT.Port, "SUBSCRIBER_MQTT_PORT")
	setString(&c.MQTT.Username, "SUBSCRIBER_MQTT_USERNAME")
	setString(&c.MQTT.Password, "SUBSCRIBER_MQTT_PASSWORD")
	setBool(&c.MQTT.UseTLS, "SUBSCRIBER_MQTT_USE_TLS")
	setString(&c.MQTT.Topic, "SUBSCRIBER_TOPIC")
	setString(&c.Postgres.URL, "SUBSCRIBER_POSTGRES_URL")
	setString(&c.Redis.Addr, "SUBSCRIBER_REDIS_ADDR")
	setString(&c.Redis.Password, "SUBSCRIBER_REDIS_PASSWORD")
	setString(&c.Server.Port, "SUBSCRIBER_HTTP_PORT")
	setString(&c.Bank.Path, "SUBSCRIBER_BANK_PATH")
}

func (c *Config) applyDefaults() {
	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "answer"
	}
	if c.MQTT.Separator == "" {
		c.MQTT.Separator = "|"
	}
	if c.Consumer.MaxInflight == 0 {
		c.Consumer.MaxInflight = 128
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Duration parses a duration string or returns the fallback if empty or
// invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
