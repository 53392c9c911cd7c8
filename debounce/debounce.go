// Package debounce junta rajadas de chamadas (ex: digitação na busca) em uma
// única chamada no fim de um período de silêncio.
//
// Não tem relação com o governor: ele embrulha callbacks de UI/CLI antes que
// eles virem requisições.
package debounce

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

type config struct {
	clock clock.Clock
}

type Option func(*config)

func WithClock(c clock.Clock) Option {
	return func(cfg *config) { cfg.clock = c }
}

// Debouncer executa fn com o argumento da última chamada a Call, `wait`
// depois dela, desde que nenhuma outra chamada chegue nesse intervalo.
type Debouncer[A any] struct {
	wait  time.Duration
	fn    func(A)
	clock clock.Clock

	mu      sync.Mutex
	pending *call[A]
	stopped bool

	wg sync.WaitGroup
}

type call[A any] struct {
	arg    A
	timer  clock.Timer
	cancel chan struct{}
}

func (c *call[A]) stop() {
	c.timer.Stop()
	close(c.cancel)
}

func New[A any](wait time.Duration, fn func(A), opts ...Option) *Debouncer[A] {
	cfg := config{clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Debouncer[A]{wait: wait, fn: fn, clock: cfg.clock}
}

// Func é o atalho fire-and-forget: devolve só a função embrulhada.
func Func[A any](wait time.Duration, fn func(A), opts ...Option) func(A) {
	return New(wait, fn, opts...).Call
}

// Call cancela a chamada agendada (se houver) e agenda uma nova com arg.
func (d *Debouncer[A]) Call(arg A) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.pending != nil {
		d.pending.stop()
	}

	c := &call[A]{arg: arg, timer: d.clock.NewTimer(d.wait), cancel: make(chan struct{})}
	d.pending = c
	d.wg.Add(1)
	go d.await(c)
}

func (d *Debouncer[A]) await(c *call[A]) {
	defer d.wg.Done()

	select {
	case <-c.timer.C():
	case <-c.cancel:
		return
	}

	d.mu.Lock()
	if d.pending != c {
		d.mu.Unlock()
		return
	}
	d.pending = nil
	d.mu.Unlock()

	d.fn(c.arg)
}

// Pending informa se há uma chamada agendada.
func (d *Debouncer[A]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Flush executa agora a chamada agendada, se houver.
func (d *Debouncer[A]) Flush() {
	d.mu.Lock()
	c := d.pending
	if c == nil {
		d.mu.Unlock()
		return
	}
	d.pending = nil
	c.stop()
	d.mu.Unlock()

	d.fn(c.arg)
}

// Stop descarta a chamada agendada, ignora chamadas futuras e espera um fn
// em execução terminar. Não chame Stop de dentro de fn.
func (d *Debouncer[A]) Stop() {
	d.mu.Lock()
	d.stopped = true
	if d.pending != nil {
		d.pending.stop()
		d.pending = nil
	}
	d.mu.Unlock()

	d.wg.Wait()
}
