package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"filevault-client/governor/infra"

	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	cfg, err := readConfig()
	if err != nil {
		klog.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	requests := infra.NewStore(cfg.rateRPS, cfg.rateBurst)
	uploads := infra.NewStore(cfg.uploadRPS, cfg.uploadBurst)
	requests.StartJanitor(ctx)
	uploads.StartJanitor(ctx)

	v := newVault()
	if cfg.demoUser != "" {
		v.users[cfg.demoUser] = cfg.demoPassword
	}

	h := http.Handler(v.routes(cfg.prefix))
	h = concurrencyLimit(cfg.concurrencyMax, cfg.concurrencyTimeout)(h)
	h = throttle(throttleOptions{
		Store:      requests,
		Uploads:    uploads,
		UploadPath: cfg.prefix + "/files",
		KeyFn:      clientKey(cfg.trustXFF),
		RetryAfter: cfg.retryAfter,
		AddHeaders: cfg.addHeaders,
	})(h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	klog.Infof("vault-stub listening on %s%s", cfg.listenAddr, cfg.prefix)
	klog.Infof("rate: rps=%.3f burst=%d upload rps=%.3f burst=%d retryAfter=%s", cfg.rateRPS, cfg.rateBurst, cfg.uploadRPS, cfg.uploadBurst, cfg.retryAfter)
	klog.Infof("concurrency: max=%d acquireTimeout=%s", cfg.concurrencyMax, cfg.concurrencyTimeout)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		klog.Fatalf("server error: %v", err)
	}
}

type config struct {
	listenAddr         string
	prefix             string
	rateRPS            float64
	rateBurst          int
	uploadRPS          float64
	uploadBurst        int
	retryAfter         time.Duration
	trustXFF           bool
	addHeaders         bool
	concurrencyMax     int
	concurrencyTimeout time.Duration
	demoUser           string
	demoPassword       string
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.prefix = getenvDefault("API_PREFIX", "/api/v1")
	cfg.rateRPS = getenvFloatDefault("RATE_RPS", 2)
	cfg.rateBurst = getenvIntDefault("RATE_BURST", 4)
	cfg.uploadRPS = getenvFloatDefault("UPLOAD_RPS", 0.5)
	cfg.uploadBurst = getenvIntDefault("UPLOAD_BURST", 1)
	cfg.retryAfter = getenvDurationDefault("RETRY_AFTER", 2*time.Second)
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", true)
	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 50)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)
	cfg.demoUser = os.Getenv("DEMO_USER")
	cfg.demoPassword = os.Getenv("DEMO_PASSWORD")

	if cfg.rateRPS <= 0 || cfg.uploadRPS <= 0 {
		return config{}, errors.New("RATE_RPS and UPLOAD_RPS must be > 0")
	}
	if cfg.rateBurst <= 0 || cfg.uploadBurst <= 0 {
		return config{}, errors.New("RATE_BURST and UPLOAD_BURST must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if cfg.demoUser != "" && cfg.demoPassword == "" {
		return config{}, errors.New("DEMO_PASSWORD is required when DEMO_USER is set")
	}
	return cfg, nil
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
	v := os.Getenv(k)
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
