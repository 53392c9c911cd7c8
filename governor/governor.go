package governor

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"filevault-client/governor/application"
	"filevault-client/governor/domain"
	"filevault-client/governor/infra"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

// Operation é a unidade governada: uma chamada de rede que devolve T.
//
// O ctx recebido carrega os valores do ctx de submissão mas nunca é
// cancelado pelo governor.
type Operation[T any] func(ctx context.Context) (T, error)

// Governor é a fila + pacer + retry. Crie com New e compartilhe o ponteiro
// entre quem faz chamadas de rede; cada Governor tem no máximo um drain loop.
type Governor struct {
	policy   domain.Policy
	retry    application.RetryPolicy
	upload   application.UploadPolicy
	slots    application.ConcurrencyService
	limiters domain.LimiterStore
	stats    domain.StatsStore
	clock    clock.Clock
	log      logr.Logger

	// mu protege queue, draining, lastDispatch e closed.
	mu           sync.Mutex
	queue        []*entry
	draining     bool
	lastDispatch time.Time
	closed       bool

	// pending conta entradas aceitas e ainda não resolvidas, mais o drain loop.
	pending sync.WaitGroup
}

// entry é uma operação aceita, com o tipo apagado.
type entry struct {
	id       string
	kind     domain.Kind
	ctx      context.Context
	op       func(context.Context) (any, error)
	settle   func(any, error)
	cooldown time.Duration
	retries  int
	release  func()
}

type Option func(*Governor)

// WithPolicy troca as constantes de tempo (padrão: domain.DefaultPolicy).
func WithPolicy(p domain.Policy) Option {
	return func(g *Governor) { g.policy = p }
}

func WithClock(c clock.Clock) Option {
	return func(g *Governor) { g.clock = c }
}

func WithLogger(l logr.Logger) Option {
	return func(g *Governor) { g.log = l }
}

// WithStats registra cada transição de estado em s (best-effort).
func WithStats(s domain.StatsStore) Option {
	return func(g *Governor) { g.stats = s }
}

// WithRetryLimiter faz cada retry esperar um token do limiter da chave
// domain.Key(kind) antes de rodar. Retries não passam pelo pacer; isto põe
// um teto nas rajadas que eles podem gerar.
func WithRetryLimiter(s domain.LimiterStore) Option {
	return func(g *Governor) { g.limiters = s }
}

// WithSlotPool troca o semáforo usado quando Policy.MaxInFlight > 0.
func WithSlotPool(p domain.SlotPool) Option {
	return func(g *Governor) { g.slots.Pool = p }
}

func New(opts ...Option) (*Governor, error) {
	g := &Governor{
		policy: domain.DefaultPolicy,
		clock:  clock.RealClock{},
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if err := g.policy.Validate(); err != nil {
		return nil, err
	}

	g.retry = application.RetryPolicy{MaxRetries: g.policy.MaxRetries, BaseDelay: g.policy.BaseDelay}
	g.upload = application.UploadPolicy{RetryWait: g.policy.UploadRetryWait}
	if g.policy.MaxInFlight > 0 {
		if g.slots.Pool == nil {
			g.slots.Pool = infra.NewChanPool(g.policy.MaxInFlight)
		}
		g.slots.AcquireTimeout = g.policy.InFlightTimeout
	} else {
		g.slots.Pool = nil
	}
	return g, nil
}

func (g *Governor) Policy() domain.Policy { return g.policy }

// Len devolve quantas operações aguardam o primeiro despacho.
func (g *Governor) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// Close recusa novas submissões com ErrClosed e espera todas as operações
// já aceitas terminarem (inclusive retries e cooldowns pendentes).
func (g *Governor) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.pending.Wait()
	return nil
}

// Submit enfileira op no caminho comum: pacing + retry com backoff exponencial.
func Submit[T any](g *Governor, ctx context.Context, op Operation[T]) *Future[T] {
	return submit(g, ctx, domain.KindRequest, 0, op)
}

// SubmitUpload enfileira op no caminho de upload: mesmo pacing, um único
// retry após Policy.UploadRetryWait se o erro for rate limit, e um cooldown
// segurando a fila depois do sucesso. cooldown <= 0 usa Policy.UploadCooldown.
func SubmitUpload[T any](g *Governor, ctx context.Context, op Operation[T], cooldown time.Duration) *Future[T] {
	if cooldown <= 0 {
		cooldown = g.policy.UploadCooldown
	}
	return submit(g, ctx, domain.KindUpload, cooldown, op)
}

func submit[T any](g *Governor, ctx context.Context, kind domain.Kind, cooldown time.Duration, op Operation[T]) *Future[T] {
	f := newFuture[T]()
	if op == nil {
		var zero T
		f.settle(zero, ErrNilOperation)
		return f
	}
	if ctx == nil {
		ctx = context.Background()
	}

	e := &entry{
		id:       uuid.NewString(),
		kind:     kind,
		ctx:      context.WithoutCancel(ctx),
		cooldown: cooldown,
		op: func(ctx context.Context) (any, error) {
			return op(ctx)
		},
		settle: func(v any, err error) {
			t, _ := v.(T)
			f.settle(t, err)
		},
	}
	g.enqueue(e)
	return f
}

func (g *Governor) enqueue(e *entry) {
	g.record(e, domain.StatePending, domain.ClassNone, 0, g.clock.Now())

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.record(e, domain.StateFailed, domain.ClassFatal, 0, g.clock.Now())
		e.settle(nil, ErrClosed)
		return
	}
	g.pending.Add(1)
	g.pushLocked(e)
	g.mu.Unlock()
}

// pushLocked põe e no fim da fila e garante que o drain loop esteja rodando.
// Chamar com g.mu travado.
func (g *Governor) pushLocked(e *entry) {
	g.queue = append(g.queue, e)
	if g.draining {
		return
	}
	g.draining = true
	g.pending.Add(1)
	go g.drain()
}

// drain despacha a fila em ordem, no máximo um item a cada MinInterval.
// Sai quando a fila esvazia; a próxima submissão o reinicia.
func (g *Governor) drain() {
	defer g.pending.Done()

	for {
		g.mu.Lock()
		if len(g.queue) == 0 {
			g.draining = false
			g.mu.Unlock()
			return
		}
		head := g.queue[0]
		wait := g.policy.MinInterval - g.clock.Since(g.lastDispatch)
		g.mu.Unlock()

		if wait > 0 {
			<-g.clock.After(wait)
			continue
		}

		// só o drain loop tira itens da fila: head continua sendo a cabeça.
		if head.release == nil {
			release, err := g.slots.Acquire(context.Background())
			if err != nil {
				g.pop(false)
				g.fail(head, err, domain.ClassFatal)
				continue
			}
			head.release = release
		}

		now := g.pop(true)
		g.record(head, domain.StateDispatched, domain.ClassNone, 0, now)

		if head.kind == domain.KindUpload {
			g.runUpload(head)
			continue
		}
		go g.runRequest(head)
	}
}

// pop remove a cabeça da fila; com dispatched, marca o instante do despacho.
func (g *Governor) pop(dispatched bool) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.queue[0] = nil
	g.queue = g.queue[1:]
	if len(g.queue) == 0 {
		g.queue = nil
	}
	if dispatched {
		g.lastDispatch = g.clock.Now()
	}
	return g.lastDispatch
}

// runRequest é o laço de retry das operações comuns. A primeira chamada já
// foi registrada como despachada pelo drain loop.
func (g *Governor) runRequest(e *entry) {
	for {
		v, err := g.call(e)
		if err == nil {
			g.succeed(e, v)
			return
		}

		dec := g.retry.Decide(err, e.retries)
		if !dec.Retry {
			g.fail(e, err, dec.Class)
			return
		}

		g.scheduleRetry(e, err, dec)
		if g.policy.PaceRetries {
			// devolve o slot: o retry volta para o fim da fila e disputa um
			// novo slot na vez dele, senão a cabeça espera por este para sempre.
			if e.release != nil {
				e.release()
				e.release = nil
			}
			g.mu.Lock()
			g.pushLocked(e)
			g.mu.Unlock()
			return
		}
		g.record(e, domain.StateDispatched, domain.ClassNone, 0, g.clock.Now())
	}
}

// runUpload roda dentro do drain loop: a fila fica parada durante a
// tentativa, o eventual retry e o cooldown.
func (g *Governor) runUpload(e *entry) {
	v, err := g.call(e)
	if err != nil {
		dec := g.upload.Decide(err, e.retries)
		if !dec.Retry {
			g.fail(e, err, dec.Class)
			return
		}
		g.scheduleRetry(e, err, dec)
		g.record(e, domain.StateDispatched, domain.ClassNone, 0, g.clock.Now())
		if v, err = g.call(e); err != nil {
			g.fail(e, err, application.Classify(err))
			return
		}
	}

	// o cooldown vale para qualquer sucesso, inclusive o do retry.
	g.succeed(e, v)
	if e.cooldown > 0 {
		<-g.clock.After(e.cooldown)
	}
}

// scheduleRetry registra o retry, espera o atraso decidido (e o token do
// limiter de retries, se houver) e incrementa o contador.
func (g *Governor) scheduleRetry(e *entry, err error, dec application.Decision) {
	g.record(e, domain.StateRetryScheduled, dec.Class, dec.Delay, g.clock.Now())
	g.log.V(1).Info("retrying operation",
		"op", e.id, "kind", e.kind, "class", dec.Class.String(),
		"retry", e.retries+1, "delay", dec.Delay, "err", err.Error())

	if dec.Delay > 0 {
		<-g.clock.After(dec.Delay)
	}
	if g.limiters != nil {
		if lim := g.limiters.Get(domain.Key(e.kind)); lim != nil {
			if werr := lim.Wait(e.ctx); werr != nil {
				g.log.V(4).Info("retry limiter wait failed", "op", e.id, "err", werr.Error())
			}
		}
	}
	e.retries++
}

// call executa a operação convertendo panic em *PanicError.
func (g *Governor) call(e *entry) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return e.op(e.ctx)
}

func (g *Governor) succeed(e *entry, v any) {
	g.record(e, domain.StateSucceeded, domain.ClassNone, 0, g.clock.Now())
	g.settle(e, v, nil)
}

func (g *Governor) fail(e *entry, err error, class domain.ErrorClass) {
	g.record(e, domain.StateFailed, class, 0, g.clock.Now())
	g.log.V(4).Info("operation failed", "op", e.id, "kind", e.kind, "class", class.String(), "retries", e.retries, "err", err.Error())
	g.settle(e, nil, err)
}

func (g *Governor) settle(e *entry, v any, err error) {
	if e.release != nil {
		e.release()
		e.release = nil
	}
	e.settle(v, err)
	g.pending.Done()
}

func (g *Governor) record(e *entry, st domain.AttemptState, class domain.ErrorClass, delay time.Duration, at time.Time) {
	if g.stats == nil {
		return
	}
	err := g.stats.Record(e.ctx, domain.StatsEvent{
		OpID:    e.id,
		Kind:    e.kind,
		State:   st,
		Attempt: e.retries,
		Class:   class,
		Delay:   delay,
		At:      at,
	})
	if err != nil {
		g.log.V(4).Info("stats record failed", "op", e.id, "state", string(st), "err", err.Error())
	}
}
