package apiclient

import (
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/net/http2"
)

// buildHTTPClient cria o *http.Client do cliente. Com useHTTP2, o transporte
// é configurado via golang.org/x/net/http2 (h2 sobre TLS).
func buildHTTPClient(cfg Config, tokens *tokenSource) (*http.Client, error) {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("unexpected default transport %T", http.DefaultTransport)
	}
	t := base.Clone()

	if cfg.HTTP2 {
		if err := http2.ConfigureTransport(t); err != nil {
			return nil, fmt.Errorf("failed to configure HTTP/2: %w", err)
		}
	}

	return &http.Client{
		Transport: &authTransport{base: t, tokens: tokens},
		Timeout:   cfg.Timeout,
	}, nil
}

// tokenSource guarda o token bearer atual (pode mudar após Login).
type tokenSource struct {
	mu    sync.RWMutex
	token string
}

func (s *tokenSource) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *tokenSource) Set(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = tok
}

// authTransport anexa "Authorization: Bearer <token>" quando há token.
type authTransport struct {
	base   http.RoundTripper
	tokens *tokenSource
}

func (t *authTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	tok := t.tokens.Get()
	if tok == "" || r.Header.Get("Authorization") != "" {
		return t.base.RoundTrip(r)
	}
	r2 := r.Clone(r.Context())
	r2.Header.Set("Authorization", "Bearer "+tok)
	return t.base.RoundTrip(r2)
}
