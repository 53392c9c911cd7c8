package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"filevault-client/governor"
	"filevault-client/governor/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = domain.Policy{
	MinInterval:     5 * time.Millisecond,
	MaxRetries:      3,
	BaseDelay:       5 * time.Millisecond,
	UploadCooldown:  5 * time.Millisecond,
	UploadRetryWait: 10 * time.Millisecond,
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	g, err := governor.New(governor.WithPolicy(fastPolicy))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	c, err := New(Config{BaseURL: baseURL, Timeout: 2 * time.Second}, g, opts...)
	require.NoError(t, err)
	return c
}

func ctxTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"default", Config{BaseURL: DefaultBaseURL}, true},
		{"https", Config{BaseURL: "https://vault.example.com/api/v1", Timeout: time.Second}, true},
		{"empty", Config{}, false},
		{"scheme", Config{BaseURL: "ftp://vault/api"}, false},
		{"no host", Config{BaseURL: "http:///api"}, false},
		{"negative timeout", Config{BaseURL: DefaultBaseURL, Timeout: -time.Second}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNew_RequiresGovernor(t *testing.T) {
	_, err := New(Config{BaseURL: DefaultBaseURL}, nil)
	require.Error(t, err)
}

func TestClient_ResolveKeepsBasePathAndQuery(t *testing.T) {
	c := newTestClient(t, "http://vault.local/api/v1/")
	assert.Equal(t, "http://vault.local/api/v1/search", c.resolve("/search"))
	assert.Equal(t, "http://vault.local/api/v1/files/7/tags", c.resolve("files/7/tags"))
	assert.Equal(t, "http://vault.local/api/v1/search?tags=a", c.resolve("/search?tags=a"))
}

func TestClient_RetriesRateLimited(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/search", r.URL.Path)
		if hits.Add(1) <= 2 {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "slow down"})
			return
		}
		writeJSON(w, http.StatusOK, []File{{ID: 1, Filename: "relatorio.pdf", SizeBytes: 2048, Tags: []string{"trabalho"}}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api/v1")
	files, err := c.ListFiles(ctxTimeout(t))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "relatorio.pdf", files[0].Filename)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_RateLimitExhaustedSurfacesHTTPError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "3")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "slow down"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Stats(ctxTimeout(t))
	require.Error(t, err)

	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusTooManyRequests, he.StatusCode())
	assert.Equal(t, "slow down", he.Message)
	assert.Equal(t, 3*time.Second, he.RetryAfter)
	assert.Equal(t, int32(1+fastPolicy.MaxRetries), hits.Load())
}

func TestClient_NotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/files/42", r.URL.Path)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "file not found"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.DeleteFile(ctxTimeout(t), 42)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.Contains(t, err.Error(), "file not found")
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_ConnectionRefusedIsNetwork(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := newTestClient(t, "http://"+addr)
	_, err = c.Get(ctxTimeout(t), "/stats")
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "ECONNREFUSED", te.TransportCode())
	assert.NotNil(t, errors.Unwrap(te))
}

func TestClient_LoginSetsBearerToken(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			var cred credentials
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&cred))
			assert.Equal(t, "ana@example.com", cred.Email)
			assert.Empty(t, r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, map[string]string{"token": "tok-123"})
		case "/stats":
			gotAuth.Store(r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, Stats{FilesUploaded: 4, StorageSavingsPercent: 12.5})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := ctxTimeout(t)

	tok, err := c.Login(ctx, "ana@example.com", "segredo")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok)
	assert.Equal(t, "tok-123", c.Token())

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.FilesUploaded)
	assert.InDelta(t, 12.5, st.StorageSavingsPercent, 0.001)
	assert.Equal(t, "Bearer tok-123", gotAuth.Load())
}

func TestClient_TagBodies(t *testing.T) {
	type call struct{ method, path, tag string }
	calls := make(chan call, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body tagBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		calls <- call{r.Method, r.URL.Path, body.Tag}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := ctxTimeout(t)
	require.NoError(t, c.AddTag(ctx, 9, "fotos"))
	require.NoError(t, c.RemoveTag(ctx, 9, "fotos"))
	require.Error(t, c.AddTag(ctx, 9, "  "))

	assert.Equal(t, call{http.MethodPost, "/files/9/tags", "fotos"}, <-calls)
	assert.Equal(t, call{http.MethodDelete, "/files/9/tags", "fotos"}, <-calls)
}

func TestClient_UploadRetriesOnceOnRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		assert.Equal(t, "/files", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))

		f, hdr, err := r.FormFile("files")
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "notas.txt", hdr.Filename)
		assert.Equal(t, "conteúdo", string(data))

		if n == 1 {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "upload limit"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"uploaded": 1})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.UploadFile(ctxTimeout(t), "notas.txt", strings.NewReader("conteúdo"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_UploadSecondRateLimitRejects(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "upload limit"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Upload(ctxTimeout(t), "/files", "a.bin", strings.NewReader("x"), map[string]string{"description": "teste"})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusTooManyRequests))
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_SearchFilesFiltersLocally(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []File{
			{ID: 1, Filename: "Relatorio.PDF", MimeType: "application/pdf"},
			{ID: 2, Filename: "foto.jpg", MimeType: "image/jpeg", Tags: []string{"Ferias"}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	files, err := c.SearchFiles(ctxTimeout(t), "férias")
	require.NoError(t, err)
	assert.Empty(t, files)

	files, err = c.SearchFiles(ctxTimeout(t), "ferias")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, int64(2), files[0].ID)
}

func TestMatchFiles(t *testing.T) {
	day := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	files := []File{
		{ID: 1, Filename: "orcamento.xlsx", MimeType: "application/vnd.ms-excel", SizeBytes: 123456, UploadDate: day},
		{ID: 2, Filename: "logo.png", MimeType: "image/png", SizeBytes: 999, Tags: []string{"Marca"}},
		{ID: 3, Filename: "readme"},
	}
	ids := func(fs []File) []int64 {
		var out []int64
		for _, f := range fs {
			out = append(out, f.ID)
		}
		return out
	}

	assert.Equal(t, []int64{1, 2, 3}, ids(MatchFiles(files, "  ")))
	assert.Equal(t, []int64{1}, ids(MatchFiles(files, "ORCA")))
	assert.Equal(t, []int64{2}, ids(MatchFiles(files, "image/")))
	assert.Equal(t, []int64{2}, ids(MatchFiles(files, "marca")))
	assert.Equal(t, []int64{1}, ids(MatchFiles(files, "2025-03")))
	assert.Equal(t, []int64{1}, ids(MatchFiles(files, "3456")))
	assert.Empty(t, MatchFiles(files, "zzz"))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, parseRetryAfter("2"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-1"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("amanhã"))

	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(future)
	assert.Greater(t, d, 50*time.Minute)
}
