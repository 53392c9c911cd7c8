package main

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// rootOptions são as flags globais. Só as flags alteradas pelo usuário
// sobrescrevem arquivo/ambiente.
type rootOptions struct {
	ConfigPath string
	Format     string
	Summary    bool

	BaseURL     string
	Token       string
	Timeout     time.Duration
	HTTP2       bool
	MinInterval time.Duration
	MaxRetries  int
	MaxInFlight int
	PaceRetries bool
	Cooldown    time.Duration
	MetricsAddr string
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "fsclient",
		Short: "Command-line client for the File Vault API",
		Long: `fsclient talks to a File Vault server through a request governor:
calls are queued in arrival order, dispatched at most once per
minimum interval, and retried with exponential backoff on 429 or
network failures. Uploads share the same queue and hold it for a
cooldown after each success.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.ConfigPath, "config", os.Getenv("FSCLIENT_CONFIG"), "path to a YAML config file")
	f.StringVar(&opts.Format, "format", "text", "output format (text|json)")
	f.BoolVar(&opts.Summary, "summary", false, "print governor counters to stderr when done")
	f.StringVar(&opts.BaseURL, "base-url", "", "API base URL (env FSCLIENT_BASE_URL)")
	f.StringVar(&opts.Token, "token", "", "bearer token (env FSCLIENT_TOKEN)")
	f.DurationVar(&opts.Timeout, "timeout", 0, "per-attempt HTTP timeout (env FSCLIENT_TIMEOUT)")
	f.BoolVar(&opts.HTTP2, "http2", false, "negotiate HTTP/2 over TLS (env FSCLIENT_HTTP2)")
	f.DurationVar(&opts.MinInterval, "min-interval", 0, "minimum gap between dispatches (env GOVERNOR_MIN_INTERVAL)")
	f.IntVar(&opts.MaxRetries, "max-retries", 0, "retries for rate-limited or network failures (env GOVERNOR_MAX_RETRIES)")
	f.IntVar(&opts.MaxInFlight, "max-in-flight", 0, "cap on concurrently running requests, 0 = unbounded (env GOVERNOR_MAX_IN_FLIGHT)")
	f.BoolVar(&opts.PaceRetries, "pace-retries", false, "send retries back through the paced queue (env GOVERNOR_PACE_RETRIES)")
	f.DurationVar(&opts.Cooldown, "upload-cooldown", 0, "pause after each successful upload (env GOVERNOR_UPLOAD_COOLDOWN)")
	f.StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running (env FSCLIENT_METRICS_ADDR)")

	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newSearchCommand(opts))
	cmd.AddCommand(newUploadCommand(opts))
	cmd.AddCommand(newRemoveCommand(opts))
	cmd.AddCommand(newTagCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newLoginCommand(opts))

	return cmd
}

// resolveConfig carrega arquivo + ambiente e aplica as flags alteradas.
func resolveConfig(cmd *cobra.Command, opts *rootOptions) (config, error) {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return config{}, err
	}

	changed := cmd.Flags().Changed
	if changed("base-url") {
		cfg.BaseURL = opts.BaseURL
	}
	if changed("token") {
		cfg.Token = opts.Token
	}
	if changed("timeout") {
		cfg.Timeout = opts.Timeout
	}
	if changed("http2") {
		cfg.HTTP2 = opts.HTTP2
	}
	if changed("min-interval") {
		cfg.Governor.MinInterval = opts.MinInterval
	}
	if changed("max-retries") {
		cfg.Governor.MaxRetries = opts.MaxRetries
	}
	if changed("max-in-flight") {
		cfg.Governor.MaxInFlight = opts.MaxInFlight
	}
	if changed("pace-retries") {
		cfg.Governor.PaceRetries = opts.PaceRetries
	}
	if changed("upload-cooldown") {
		cfg.Governor.UploadCooldown = opts.Cooldown
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	return cfg, nil
}

// withRuntime monta o runtime, roda fn e fecha tudo (esperando a fila drenar).
func withRuntime(cmd *cobra.Command, opts *rootOptions, fn func(rt *runtime) error) (err error) {
	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cmd.Context(), cfg, klog.Background())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if opts.Summary {
			printSummary(cmd.ErrOrStderr(), rt.summary)
		}
	}()

	return fn(rt)
}
