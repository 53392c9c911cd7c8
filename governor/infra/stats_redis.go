package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"filevault-client/governor/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava os eventos do governor em hashes do Redis:
//
//	<prefix>:total              state -> contagem (cumulativo, não expira)
//	<prefix>:minute:YYYYMMDDhhmm state -> contagem (com TTL)
//	<prefix>:kind:<kind>        state -> contagem
//	<prefix>:class              <state>:<class> -> contagem (retries/falhas)
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	// ttl aplica apenas em chaves de série temporal.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	// timeout limita cada Record; o governor grava de dentro do drain loop.
	timeout time.Duration
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

// WithStatsTimeout limita quanto um Record espera pelo Redis. Zero desliga.
// O client precisa de ContextTimeoutEnabled para o limite valer na leitura.
func WithStatsTimeout(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.timeout = d }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:     rdb,
		prefix:  "governor:stats",
		ttl:     24 * time.Hour,
		bucket:  "minute",
		timeout: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.State)
	if field == "" {
		return nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if kind := strings.TrimSpace(string(ev.Kind)); kind != "" {
		pipe.HIncrBy(ctx, s.prefix+":kind:"+kind, field, 1)
	}

	if ev.State == domain.StateRetryScheduled || ev.State == domain.StateFailed {
		pipe.HIncrBy(ctx, s.prefix+":class", field+":"+ev.Class.String(), 1)
	}

	_, err := pipe.Exec(ctx)
	return err
}
