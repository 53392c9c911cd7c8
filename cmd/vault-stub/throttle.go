package main

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"filevault-client/governor/application"
	"filevault-client/governor/domain"
	"filevault-client/governor/infra"
)

type keyFunc func(r *http.Request) string

// clientKey identifica o cliente: token bearer, depois primeiro IP do
// X-Forwarded-For (se confiável), depois RemoteAddr.
func clientKey(trustXFF bool) keyFunc {
	return func(r *http.Request) string {
		if tok, ok := bearerToken(r); ok {
			return "token:" + tok
		}

		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

type throttleOptions struct {
	// Store decide as requisições comuns; Uploads decide POST em UploadPath.
	Store      domain.LimiterStore
	Uploads    domain.LimiterStore
	UploadPath string
	KeyFn      keyFunc
	RetryAfter time.Duration
	AddHeaders bool
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

// throttle responde 429 com Retry-After quando o bucket da chave esvazia.
func throttle(opts throttleOptions) func(next http.Handler) http.Handler {
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = clientKey(false)
	}
	retryAfter := strconv.Itoa(int(math.Ceil(opts.RetryAfter.Seconds())))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store, key := opts.Store, opts.KeyFn(r)
			if opts.Uploads != nil && r.Method == http.MethodPost && r.URL.Path == opts.UploadPath {
				store, key = opts.Uploads, "upload:"+key
			}

			if opts.AddHeaders {
				if ri, ok := store.(rateInfo); ok {
					w.Header().Set("X-RateLimit-RPS", strconv.FormatFloat(ri.RPS(), 'f', -1, 64))
					w.Header().Set("X-RateLimit-Burst", strconv.Itoa(ri.Burst()))
				}
			}

			if store != nil {
				if lim := store.Get(domain.Key(key)); lim != nil && !lim.Allow() {
					w.Header().Set("Retry-After", retryAfter)
					writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// concurrencyLimit responde 503 quando não há vaga em até timeout.
func concurrencyLimit(max int, timeout time.Duration) func(next http.Handler) http.Handler {
	if max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(max),
		AcquireTimeout: timeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, "server busy")
				return
			}
			defer release()
			next.ServeHTTP(w, r)
		})
	}
}
