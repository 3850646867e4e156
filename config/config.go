package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
	JWT      JWTConfig      `json:"jwt" yaml:"jwt"`
	Geocode  GeocodeConfig  `json:"geocode" yaml:"geocode"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Outbox   OutboxConfig   `json:"outbox" yaml:"outbox"`
}

type ServerConfig struct {
	Port string `json:"port" yaml:"port"`
}

type StoreConfig struct {
	Driver   string         `json:"driver" yaml:"driver"`
	Postgres DatabaseConfig `json:"postgres" yaml:"postgres"`
	Mongo    MongoConfig    `json:"mongo" yaml:"mongo"`
}

type DatabaseConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     string `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"dbname" yaml:"dbname"`
	SSLMode  string `json:"sslmode" yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type MongoConfig struct {
	URI      string `json:"uri" yaml:"uri"`
	Database string `json:"database" yaml:"database"`
}

// RabbitMQConfig is optional. With no host the outbox drops events.
type RabbitMQConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     string `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
}

func (r RabbitMQConfig) Enabled() bool { return r.Host != "" }

func (r RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", r.User, r.Password, r.Host, r.Port)
}

// JWTConfig holds the HMAC secret of the identity provider. TrustHeaders
// lets gateway headers stand in for a token; disable it when clients can
// reach the service directly.
type JWTConfig struct {
	Secret       string `json:"secret" yaml:"secret"`
	TrustHeaders bool   `json:"trust_headers" yaml:"trust_headers"`
}

type GeocodeConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	BaseURL        string `json:"base_url" yaml:"base_url"`
	Language       string `json:"language" yaml:"language"`
	UserAgent      string `json:"user_agent" yaml:"user_agent"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

func (g GeocodeConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

type OutboxConfig struct {
	IntervalMs      int  `json:"interval_ms" yaml:"interval_ms"`
	BatchSize       int  `json:"batch_size" yaml:"batch_size"`
	PublishAttempts uint `json:"publish_attempts" yaml:"publish_attempts"`
}

func (o OutboxConfig) Interval() time.Duration {
	return time.Duration(o.IntervalMs) * time.Millisecond
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Store: StoreConfig{
			Driver: DriverMemory,
			Postgres: DatabaseConfig{
				Host:    "localhost",
				Port:    "5432",
				User:    "postgres",
				DBName:  "reports",
				SSLMode: "disable",
			},
			Mongo: MongoConfig{URI: "mongodb://localhost:27017", Database: "reports"},
		},
		RabbitMQ: RabbitMQConfig{Port: "5672", User: "guest", Password: "guest"},
		JWT:      JWTConfig{TrustHeaders: true},
		Geocode:  GeocodeConfig{Language: "bn", TimeoutSeconds: 5},
		Log:      LogConfig{Level: "info", Format: "text"},
		Outbox:   OutboxConfig{IntervalMs: 1000, BatchSize: 50, PublishAttempts: 3},
	}
}

// LoadConfig reads a JSON or YAML file, chosen by extension, over the
// defaults.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return config, config.Validate()
}

// Parse reads the command line. Flags override the config file.
func Parse(args []string) (*Config, error) {
	flagSet := pflag.NewFlagSet("corruption-report-service", pflag.ContinueOnError)
	path := flagSet.String("config", "", "path to a JSON or YAML config file")
	driver := flagSet.String("store", "", "store driver: memory, postgres or mongo")
	port := flagSet.String("port", "", "HTTP listen port")
	level := flagSet.String("log-level", "", "log level: debug, info, warn, error")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	config := Default()
	if *path != "" {
		loaded, err := LoadConfig(*path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}
	if *driver != "" {
		config.Store.Driver = *driver
	}
	if *port != "" {
		config.Server.Port = *port
	}
	if *level != "" {
		config.Log.Level = *level
	}
	return config, config.Validate()
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverPostgres, DriverMongo:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}
