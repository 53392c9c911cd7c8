package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"filevault-client/apiclient"
	"filevault-client/governor"
	"filevault-client/governor/domain"
	"filevault-client/governor/infra"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

// runtime junta o que um comando precisa: governor, cliente e os stores de stats.
type runtime struct {
	gov     *governor.Governor
	client  *apiclient.Client
	summary *infra.MemoryStatsStore

	closers []func() error
}

func (rt *runtime) Close() error {
	var err error
	// governor primeiro: espera as operações pendentes antes de fechar Redis/metrics.
	if rt.gov != nil {
		err = multierr.Append(err, rt.gov.Close())
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, rt.closers[i]())
	}
	return err
}

func buildRuntime(ctx context.Context, cfg config, log logr.Logger) (*runtime, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rt := &runtime{summary: infra.NewMemoryStatsStore()}
	stats := infra.MultiStatsStore{rt.summary}

	if cfg.Stats.RedisAddr != "" {
		rs, closeRedis, err := redisStats(ctx, cfg.Stats)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, closeRedis)
		stats = append(stats, rs)
	}

	if cfg.MetricsAddr != "" {
		ps, stop, err := serveMetrics(cfg.MetricsAddr, log)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, stop)
		stats = append(stats, ps)
	}

	opts := []governor.Option{
		governor.WithPolicy(cfg.policy()),
		governor.WithLogger(log.WithName("governor")),
		governor.WithStats(stats),
	}
	if cfg.Governor.RetryRPS > 0 {
		store := infra.NewStore(cfg.Governor.RetryRPS, cfg.Governor.RetryBurst)
		jctx, cancel := context.WithCancel(ctx)
		store.StartJanitor(jctx)
		rt.closers = append(rt.closers, func() error { cancel(); return nil })
		opts = append(opts, governor.WithRetryLimiter(store))
	}

	g, err := governor.New(opts...)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("governor: %w", err)
	}
	rt.gov = g

	c, err := apiclient.New(cfg.client(), g, apiclient.WithLogger(log.WithName("apiclient")))
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.client = c

	log.V(2).Info("runtime ready",
		"baseURL", cfg.BaseURL, "minInterval", cfg.Governor.MinInterval,
		"maxRetries", cfg.Governor.MaxRetries, "retryRPS", cfg.Governor.RetryRPS,
		"redisStats", cfg.Stats.RedisAddr != "", "metrics", cfg.MetricsAddr)
	return rt, nil
}

func redisStats(ctx context.Context, sc statsConfig) (domain.StatsStore, func() error, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:                  sc.RedisAddr,
		Password:              sc.RedisPassword,
		DB:                    sc.RedisDB,
		ContextTimeoutEnabled: true,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	_, err := rdb.Ping(pingCtx).Result()
	cancel()
	if err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis stats ping: %w", err)
	}

	store := infra.NewRedisStatsStore(
		rdb,
		infra.WithStatsPrefix(sc.Prefix),
		infra.WithStatsTTL(sc.TTL),
		infra.WithStatsBucket(sc.Bucket),
		infra.WithStatsTimeout(sc.Timeout),
	)
	return store, rdb.Close, nil
}

// serveMetrics expõe /metrics num registry próprio enquanto o comando roda.
func serveMetrics(addr string, log logr.Logger) (domain.StatsStore, func() error, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ps, err := infra.NewPrometheusStatsStore(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "metrics server stopped", "addr", addr)
		}
	}()

	stop := func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
	return ps, stop, nil
}
