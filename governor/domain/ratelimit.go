package domain

import "context"

type Key string

// Limiter representa um token bucket consultado antes de iniciar uma tentativa.
//
// A camada de infra usa golang.org/x/time/rate.
type Limiter interface {
	Allow() bool
	Wait(ctx context.Context) error
}

// LimiterStore obtém um limiter por chave (ex: tipo de operação, rota, cliente).
// A implementação pode manter cache, TTL, etc.
type LimiterStore interface {
	Get(Key) Limiter
}
