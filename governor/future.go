package governor

import (
	"context"
	"sync"
)

// Future é o slot de resultado de uma operação governada.
// É resolvido exatamente uma vez, pelo drain loop ou pelo laço de retry.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) settle(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Done fecha quando o resultado estiver disponível.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait bloqueia até o resultado ou até ctx encerrar.
//
// ctx limita apenas a espera de quem chama: a operação continua e o
// resultado fica disponível para chamadas futuras.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Get bloqueia até o resultado.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.val, f.err
}

// Settled informa, sem bloquear, se o resultado já está disponível.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
