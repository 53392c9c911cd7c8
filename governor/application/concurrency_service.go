package application

import (
	"context"
	"errors"
	"time"

	"filevault-client/governor/domain"
)

// ErrSlotTimeout indica que nenhuma vaga em voo foi liberada a tempo.
var ErrSlotTimeout = errors.New("no in-flight slot available")

// ConcurrencyService concentra a regra de aquisição de vagas em voo com timeout.
// O governor chama Acquire no drain loop, antes de despachar, e libera quando
// a cadeia de tentativas da operação termina.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
// - Sem Pool, sempre consegue (release é no-op).
// - Se `AcquireTimeout <= 0`, espera até ctx encerrar.
// - Se `AcquireTimeout > 0`, espera no máximo o timeout.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(ctx)
	if !ok {
		return nil, ErrSlotTimeout
	}
	return release, nil
}
