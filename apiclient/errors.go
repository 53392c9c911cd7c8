package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// HTTPError é uma resposta bem formada com status fora de 2xx.
// Implementa StatusCode() para a classificação do governor (429 = rate limit).
type HTTPError struct {
	Method string
	Path   string
	Status int
	// Message vem do campo "error" do corpo JSON, quando existir.
	Message string
	Body    []byte
	// RetryAfter é o cabeçalho Retry-After (0 se ausente ou inválido).
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

func (e *HTTPError) StatusCode() int { return e.Status }

// TransportError é uma falha sem resposta (conexão recusada, DNS, timeout...).
// Code segue a nomenclatura errno ("ECONNREFUSED", "ETIMEDOUT", ...) e vazio
// quando a causa não é de rede.
type TransportError struct {
	Method string
	Path   string
	Code   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Path, e.Code, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) TransportCode() string { return e.Code }

func (e *TransportError) Unwrap() error { return e.Err }

// IsStatus retorna true se err (ou algum erro embrulhado) é um *HTTPError com status.
func IsStatus(err error, status int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == status
}

// transportCode traduz o erro de http.Client.Do em um código errno.
func transportCode(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error
	var opErr *net.OpError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ""
	case errors.Is(err, syscall.ECONNREFUSED):
		return "ECONNREFUSED"
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return "ECONNRESET"
	case errors.As(err, &dnsErr):
		return "ENOTFOUND"
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return "ETIMEDOUT"
	case errors.As(err, &opErr):
		return "ENETWORK"
	default:
		return ""
	}
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
