package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"filevault-client/apiclient"
	"filevault-client/governor/domain"

	"gopkg.in/yaml.v3"
)

// config é a configuração do fsclient. Precedência: padrões, arquivo YAML
// (--config ou FSCLIENT_CONFIG), variáveis de ambiente e por fim flags.
type config struct {
	BaseURL string        `yaml:"baseURL"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
	HTTP2   bool          `yaml:"http2"`

	Governor governorConfig `yaml:"governor"`
	Stats    statsConfig    `yaml:"stats"`

	MetricsAddr string `yaml:"metricsAddr"`
}

type governorConfig struct {
	MinInterval     time.Duration `yaml:"minInterval"`
	MaxRetries      int           `yaml:"maxRetries"`
	BaseDelay       time.Duration `yaml:"baseDelay"`
	UploadCooldown  time.Duration `yaml:"uploadCooldown"`
	UploadRetryWait time.Duration `yaml:"uploadRetryWait"`
	PaceRetries     bool          `yaml:"paceRetries"`
	MaxInFlight     int           `yaml:"maxInFlight"`
	InFlightTimeout time.Duration `yaml:"inFlightTimeout"`

	// RetryRPS > 0 liga o teto de retries (token bucket por tipo de operação).
	RetryRPS   float64 `yaml:"retryRPS"`
	RetryBurst int     `yaml:"retryBurst"`
}

type statsConfig struct {
	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB"`
	Prefix        string        `yaml:"prefix"`
	TTL           time.Duration `yaml:"ttl"`
	Bucket        string        `yaml:"bucket"`
	Timeout       time.Duration `yaml:"timeout"`
}

func defaultConfig() config {
	p := domain.DefaultPolicy
	return config{
		BaseURL: apiclient.DefaultBaseURL,
		Timeout: apiclient.DefaultTimeout,
		Governor: governorConfig{
			MinInterval:     p.MinInterval,
			MaxRetries:      p.MaxRetries,
			BaseDelay:       p.BaseDelay,
			UploadCooldown:  p.UploadCooldown,
			UploadRetryWait: p.UploadRetryWait,
			RetryBurst:      1,
		},
		Stats: statsConfig{
			Prefix:  "governor:stats",
			TTL:     24 * time.Hour,
			Bucket:  "minute",
			Timeout: 250 * time.Millisecond,
		},
	}
}

// loadConfig monta a configuração a partir do arquivo (path vazio = sem
// arquivo) e do ambiente. Flags são aplicadas depois, por quem chama.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *config) {
	cfg.BaseURL = getenvDefault("FSCLIENT_BASE_URL", cfg.BaseURL)
	cfg.Token = getenvDefault("FSCLIENT_TOKEN", cfg.Token)
	cfg.Timeout = getenvDurationDefault("FSCLIENT_TIMEOUT", cfg.Timeout)
	cfg.HTTP2 = getenvBoolDefault("FSCLIENT_HTTP2", cfg.HTTP2)
	cfg.MetricsAddr = getenvDefault("FSCLIENT_METRICS_ADDR", cfg.MetricsAddr)

	g := &cfg.Governor
	g.MinInterval = getenvDurationDefault("GOVERNOR_MIN_INTERVAL", g.MinInterval)
	g.MaxRetries = getenvIntDefault("GOVERNOR_MAX_RETRIES", g.MaxRetries)
	g.BaseDelay = getenvDurationDefault("GOVERNOR_BASE_DELAY", g.BaseDelay)
	g.UploadCooldown = getenvDurationDefault("GOVERNOR_UPLOAD_COOLDOWN", g.UploadCooldown)
	g.UploadRetryWait = getenvDurationDefault("GOVERNOR_UPLOAD_RETRY_WAIT", g.UploadRetryWait)
	g.PaceRetries = getenvBoolDefault("GOVERNOR_PACE_RETRIES", g.PaceRetries)
	g.MaxInFlight = getenvIntDefault("GOVERNOR_MAX_IN_FLIGHT", g.MaxInFlight)
	g.InFlightTimeout = getenvDurationDefault("GOVERNOR_IN_FLIGHT_TIMEOUT", g.InFlightTimeout)
	g.RetryRPS = getenvFloatDefault("GOVERNOR_RETRY_RPS", g.RetryRPS)
	// com RPS < 1 um burst alto esconde o limite.
	if burst, ok := getenvInt("GOVERNOR_RETRY_BURST"); ok {
		g.RetryBurst = burst
	} else if getenvIsSet("GOVERNOR_RETRY_RPS") && g.RetryRPS > 0 && g.RetryRPS < 1 {
		g.RetryBurst = 1
	}

	s := &cfg.Stats
	s.RedisAddr = getenvDefault("GOVERNOR_STATS_REDIS_ADDR", s.RedisAddr)
	s.RedisPassword = getenvDefault("GOVERNOR_STATS_REDIS_PASSWORD", s.RedisPassword)
	s.RedisDB = getenvIntDefault("GOVERNOR_STATS_REDIS_DB", s.RedisDB)
	s.Prefix = getenvDefault("GOVERNOR_STATS_PREFIX", s.Prefix)
	s.TTL = getenvDurationDefault("GOVERNOR_STATS_TTL", s.TTL)
	s.Bucket = getenvDefault("GOVERNOR_STATS_BUCKET", s.Bucket)
	s.Timeout = getenvDurationDefault("GOVERNOR_STATS_TIMEOUT", s.Timeout)
}

func (c config) policy() domain.Policy {
	return domain.Policy{
		MinInterval:     c.Governor.MinInterval,
		MaxRetries:      c.Governor.MaxRetries,
		BaseDelay:       c.Governor.BaseDelay,
		UploadCooldown:  c.Governor.UploadCooldown,
		UploadRetryWait: c.Governor.UploadRetryWait,
		PaceRetries:     c.Governor.PaceRetries,
		MaxInFlight:     c.Governor.MaxInFlight,
		InFlightTimeout: c.Governor.InFlightTimeout,
	}
}

func (c config) client() apiclient.Config {
	return apiclient.Config{
		BaseURL: c.BaseURL,
		Token:   c.Token,
		Timeout: c.Timeout,
		HTTP2:   c.HTTP2,
	}
}

func (c config) validate() error {
	if err := c.client().Validate(); err != nil {
		return fmt.Errorf("FSCLIENT_BASE_URL: %w", err)
	}
	if err := c.policy().Validate(); err != nil {
		return fmt.Errorf("governor: %w", err)
	}
	if c.Governor.RetryRPS < 0 {
		return errors.New("GOVERNOR_RETRY_RPS must be >= 0")
	}
	if c.Governor.RetryRPS > 0 && c.Governor.RetryBurst <= 0 {
		return errors.New("GOVERNOR_RETRY_BURST must be > 0")
	}
	switch c.Stats.Bucket {
	case "minute", "none":
	default:
		return fmt.Errorf("GOVERNOR_STATS_BUCKET must be minute or none, got %q", c.Stats.Bucket)
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
