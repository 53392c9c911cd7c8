package infra

import (
	"context"
	"sync"

	"filevault-client/governor/domain"
)

type Counters struct {
	Dispatched int64
	Succeeded  int64
	Retried    int64
	Failed     int64
}

func (c *Counters) add(st domain.AttemptState) {
	switch st {
	case domain.StateDispatched:
		c.Dispatched++
	case domain.StateSucceeded:
		c.Succeeded++
	case domain.StateRetryScheduled:
		c.Retried++
	case domain.StateFailed:
		c.Failed++
	}
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e para o --summary do fsclient.
//
// Não faz expiração; com WithKeepEvents guarda só os últimos N eventos.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byKind  map[domain.Kind]Counters
	byClass map[domain.ErrorClass]int64

	keep   int
	events []domain.StatsEvent
}

type MemoryStatsOption func(*MemoryStatsStore)

// WithKeepEvents guarda os últimos n eventos (0 = nenhum).
func WithKeepEvents(n int) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.keep = n }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byKind:  make(map[domain.Kind]Counters),
		byClass: make(map[domain.ErrorClass]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.State)
	c := s.byKind[ev.Kind]
	c.add(ev.State)
	s.byKind[ev.Kind] = c

	if ev.State == domain.StateRetryScheduled || ev.State == domain.StateFailed {
		s.byClass[ev.Class]++
	}

	if s.keep > 0 {
		if len(s.events) == s.keep {
			copy(s.events, s.events[1:])
			s.events = s.events[:len(s.events)-1]
		}
		s.events = append(s.events, ev)
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByKind() map[domain.Kind]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Kind]Counters, len(s.byKind))
	for k, v := range s.byKind {
		out[k] = v
	}
	return out
}

// ByClass conta retries agendados e falhas finais por classe de erro.
func (s *MemoryStatsStore) ByClass() map[domain.ErrorClass]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.ErrorClass]int64, len(s.byClass))
	for k, v := range s.byClass {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) Events() []domain.StatsEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.StatsEvent, len(s.events))
	copy(out, s.events)
	return out
}
