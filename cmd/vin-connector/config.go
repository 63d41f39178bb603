package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/WessleyAI/vinsync/engine/record"
	"github.com/WessleyAI/vinsync/engine/vpic"
)

const (
	configPathEnv = "VINSYNC_CONFIG"
	vinsEnv       = "VINSYNC_VINS"
	vpicURLEnv    = "VPIC_BASE_URL"
	natsURLEnv    = "NATS_URL"
	neo4jURLEnv   = "NEO4J_URL"
	neo4jUserEnv  = "NEO4J_USER"
	neo4jPassEnv  = "NEO4J_PASS"
	databaseDSN   = "DATABASE_DSN"
)

// Sink names.
const (
	sinkStdout   = "stdout"
	sinkNATS     = "nats"
	sinkNeo4j    = "neo4j"
	sinkPostgres = "postgres"
)

// defaultVINs are synced when nothing else is configured.
var defaultVINs = []string{"5UXCW2C09L9C15882", "WBAHF3C03NWX42344"}

// Config is the connector's runtime configuration.
type Config struct {
	VINs         []string       `yaml:"vins"`
	Tables       []string       `yaml:"tables"`
	ValidateVINs bool           `yaml:"validate_vins"`
	VPIC         VPICConfig     `yaml:"vpic"`
	Sink         string         `yaml:"sink"`
	NATS         NATSConfig     `yaml:"nats"`
	Neo4j        Neo4jConfig    `yaml:"neo4j"`
	Postgres     PostgresConfig `yaml:"postgres"`
	Interval     time.Duration  `yaml:"interval"`
	Serve        string         `yaml:"serve"`
	MetricsPort  int            `yaml:"metrics_port"`
	LogLevel     string         `yaml:"log_level"`
	LogFormat    string         `yaml:"log_format"`
}

// VPICConfig tunes the vPIC client.
type VPICConfig struct {
	BaseURL          string        `yaml:"base_url"`
	Timeout          time.Duration `yaml:"timeout"`
	RateLimit        float64       `yaml:"rate_limit"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerTimeout   time.Duration `yaml:"breaker_timeout"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type Neo4jConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Pass     string `yaml:"pass"`
	Database string `yaml:"database"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

func defaultConfig() Config {
	return Config{
		Tables: []string{record.TableVehicles},
		VPIC: VPICConfig{
			BaseURL:        vpic.DefaultBaseURL,
			Timeout:        30 * time.Second,
			BreakerTimeout: 30 * time.Second,
		},
		Sink:        sinkStdout,
		NATS:        NATSConfig{URL: "nats://localhost:4222", Subject: "vinsync.ops"},
		Neo4j:       Neo4jConfig{URL: "neo4j://localhost:7687", User: "neo4j", Pass: "password"},
		MetricsPort: 9094,
		LogLevel:    "info",
		LogFormat:   "json",
	}
}

// loadConfig resolves configuration from, in increasing precedence:
// defaults, the YAML file, the environment (after loading .env) and flags.
func loadConfig(args []string) (Config, error) {
	fs := flag.NewFlagSet("vin-connector", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	path := fs.String("config", "", "YAML config file (or $"+configPathEnv+")")
	envFile := fs.String("env-file", ".env", "dotenv file loaded when present")
	vins := fs.String("vins", "", "comma-separated VINs to sync")
	tables := fs.String("tables", "", "comma-separated tables to sync")
	validate := fs.Bool("validate", false, "reject malformed or non-BMW VINs before calling vPIC")
	baseURL := fs.String("vpic-url", "", "vPIC API base URL")
	sinkName := fs.String("sink", "", "destination: stdout, nats, neo4j or postgres")
	interval := fs.Duration("interval", 0, "polling interval (0 = one-shot)")
	serve := fs.String("serve", "", "listen address for the HTTP surface (empty = none); -sink and -interval are ignored when set")
	metricsPort := fs.Int("metrics-port", 0, "port for /metrics (0 = config value)")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg := defaultConfig()
	if *path == "" {
		*path = os.Getenv(configPathEnv)
	}
	if *path != "" {
		raw, err := os.ReadFile(*path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", *path, err)
		}
	}

	cfg.applyEnvOverrides()

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "vins":
			cfg.VINs = splitList(*vins)
		case "tables":
			cfg.Tables = splitList(*tables)
		case "validate":
			cfg.ValidateVINs = *validate
		case "vpic-url":
			cfg.VPIC.BaseURL = *baseURL
		case "sink":
			cfg.Sink = *sinkName
		case "interval":
			cfg.Interval = *interval
		case "serve":
			cfg.Serve = *serve
		case "metrics-port":
			cfg.MetricsPort = *metricsPort
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if len(cfg.VINs) == 0 {
		cfg.VINs = append([]string(nil), defaultVINs...)
	}
	if len(cfg.Tables) == 0 {
		cfg.Tables = []string{record.TableVehicles}
	}
	return cfg, cfg.validate()
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(vinsEnv); v != "" {
		c.VINs = splitList(v)
	}
	if v := os.Getenv(vpicURLEnv); v != "" {
		c.VPIC.BaseURL = v
	}
	if v := os.Getenv(natsURLEnv); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv(neo4jURLEnv); v != "" {
		c.Neo4j.URL = v
	}
	if v := os.Getenv(neo4jUserEnv); v != "" {
		c.Neo4j.User = v
	}
	if v := os.Getenv(neo4jPassEnv); v != "" {
		c.Neo4j.Pass = v
	}
	if v := os.Getenv(databaseDSN); v != "" {
		c.Postgres.DSN = v
	}
}

func (c Config) validate() error {
	switch c.Sink {
	case sinkStdout, sinkNATS, sinkNeo4j:
	case sinkPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("postgres sink needs postgres.dsn or $" + databaseDSN)
		}
	default:
		return fmt.Errorf("unknown sink %q", c.Sink)
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative, got %s", c.Interval)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func (c Config) vpicConfig() vpic.Config {
	return vpic.Config{
		BaseURL:          c.VPIC.BaseURL,
		Timeout:          c.VPIC.Timeout,
		RateLimit:        c.VPIC.RateLimit,
		ValidateVINs:     c.ValidateVINs,
		BreakerThreshold: c.VPIC.BreakerThreshold,
		BreakerTimeout:   c.VPIC.BreakerTimeout,
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

// newLogger builds the process logger. Logs go to w, which is stderr in
// the binary since stdout may carry the operation stream.
func newLogger(cfg Config, w io.Writer) *slog.Logger {
	level, _ := parseLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
