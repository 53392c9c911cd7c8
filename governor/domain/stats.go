package domain

import (
	"context"
	"time"
)

// Kind separa os dois caminhos governados.
type Kind string

const (
	KindRequest Kind = "request"
	KindUpload  Kind = "upload"
)

// AttemptState é uma etapa do ciclo de vida de uma operação:
//
//	Pending -> Dispatched -> {Succeeded | RetryScheduled -> Dispatched | Failed}
type AttemptState string

const (
	StatePending        AttemptState = "pending"
	StateDispatched     AttemptState = "dispatched"
	StateSucceeded      AttemptState = "succeeded"
	StateRetryScheduled AttemptState = "retry_scheduled"
	StateFailed         AttemptState = "failed"
)

// StatsEvent é emitido a cada transição de estado de uma operação governada.
//
// Observação: OpID é por submissão; não use como label de métrica (cardinalidade).
type StatsEvent struct {
	OpID  string
	Kind  Kind
	State AttemptState

	// Attempt é o contador de retries no momento do evento (0 = primeira tentativa).
	Attempt int
	// Class é preenchido em RetryScheduled e Failed.
	Class ErrorClass
	// Delay é a espera até a próxima tentativa (apenas RetryScheduled).
	Delay time.Duration

	At time.Time
}

// StatsStore é a estratégia de persistência para eventos do governor.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// O governor trata erro como best-effort (não derruba a operação).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
