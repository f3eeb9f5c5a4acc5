package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// DefaultBaseURL is the raw-file root of the CSSE US daily reports.
const DefaultBaseURL = "https://raw.githubusercontent.com/CSSEGISandData/COVID-19/master/csse_covid_19_data/csse_covid_19_daily_reports_us"

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Range bounds in MM-DD-YYYY. Empty means derive from the checkpoint.
	StartDate    string
	EndDate      string
	LookbackDays int

	BaseURL       string
	CacheDir      string
	CheckpointDir string

	FetchTimeout    time.Duration
	FetchAttempts   int
	FetchBackoff    time.Duration
	FetchMaxBackoff time.Duration
	FetchRate       float64
	PrefetchWorkers int

	RulesFile      string
	MatchThreshold float64
	MatchScorer    string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	Schedule        string
	OTLPEndpoint    string

	// Optional sinks.
	KafkaBrokers []string
	KafkaTopic   string
	PostgresDSN  string
	SQLitePath   string

	// Run-summary email. Disabled when SMTPHost is empty.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	NotifyFrom   string
	NotifyTo     []string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is loaded first when
// present; real environment variables take precedence over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	fetchBackoff, err := parseDuration("FETCH_BACKOFF", "200ms")
	if err != nil {
		return nil, err
	}
	fetchMaxBackoff, err := parseDuration("FETCH_MAX_BACKOFF", "5s")
	if err != nil {
		return nil, err
	}
	fetchAttempts, err := parseInt("FETCH_ATTEMPTS", 3, 1)
	if err != nil {
		return nil, err
	}
	prefetchWorkers, err := parseInt("PREFETCH_WORKERS", 4, 0)
	if err != nil {
		return nil, err
	}
	lookback, err := parseInt("LOOKBACK_DAYS", 30, 0)
	if err != nil {
		return nil, err
	}
	smtpPort, err := parseInt("SMTP_PORT", 587, 1)
	if err != nil {
		return nil, err
	}
	fetchRate, err := parseFloat("FETCH_RATE", 2)
	if err != nil {
		return nil, err
	}
	threshold, err := parseFloat("MATCH_THRESHOLD", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		StartDate:    os.Getenv("START_DATE"),
		EndDate:      os.Getenv("END_DATE"),
		LookbackDays: lookback,

		BaseURL:       strings.TrimRight(sharedcfg.EnvOrDefault("SOURCE_BASE_URL", DefaultBaseURL), "/"),
		CacheDir:      sharedcfg.EnvOrDefault("CACHE_DIR", "data/cache"),
		CheckpointDir: sharedcfg.EnvOrDefault("CHECKPOINT_DIR", "data/checkpoint"),

		FetchTimeout:    fetchTimeout,
		FetchAttempts:   fetchAttempts,
		FetchBackoff:    fetchBackoff,
		FetchMaxBackoff: fetchMaxBackoff,
		FetchRate:       fetchRate,
		PrefetchWorkers: prefetchWorkers,

		RulesFile:      os.Getenv("RULES_FILE"),
		MatchThreshold: threshold,
		MatchScorer:    sharedcfg.EnvOrDefault("MATCH_SCORER", "ratcliff"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		Schedule:        sharedcfg.EnvOrDefault("SCHEDULE", "06:00"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		KafkaTopic:  sharedcfg.EnvOrDefault("KAFKA_TOPIC", "covid-daily-reports"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		SQLitePath:  sharedcfg.EnvOrDefault("SQLITE_PATH", "data/covid.db"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     smtpPort,
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		NotifyFrom:   os.Getenv("NOTIFY_FROM"),
		NotifyTo:     splitList(os.Getenv("NOTIFY_TO")),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if (cfg.StartDate == "") != (cfg.EndDate == "") {
		return nil, errors.New("START_DATE and END_DATE must be set together")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("SOURCE_BASE_URL is required")
	}
	if cfg.CacheDir == "" {
		return nil, errors.New("CACHE_DIR is required")
	}
	if cfg.CheckpointDir == "" {
		return nil, errors.New("CHECKPOINT_DIR is required")
	}
	if cfg.FetchRate <= 0 {
		return nil, errors.New("FETCH_RATE must be positive")
	}
	if cfg.MatchThreshold < 0 || cfg.MatchThreshold > 100 {
		return nil, errors.New("MATCH_THRESHOLD must be between 0 and 100")
	}
	if cfg.MatchScorer != "ratcliff" && cfg.MatchScorer != "jarowinkler" {
		return nil, fmt.Errorf("invalid MATCH_SCORER %q", cfg.MatchScorer)
	}
	if _, err := time.Parse("15:04", cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid SCHEDULE %q: want HH:MM", cfg.Schedule)
	}
	if cfg.SMTPHost != "" && (cfg.NotifyFrom == "" || len(cfg.NotifyTo) == 0) {
		return nil, errors.New("SMTP_HOST is set but NOTIFY_FROM or NOTIFY_TO is not")
	}

	return cfg, nil
}

// NotifyEnabled reports whether run summaries should be emailed.
func (c *Config) NotifyEnabled() bool { return c.SMTPHost != "" }

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def, minimum int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
