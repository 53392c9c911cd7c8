package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"filevault-client/apiclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVault responde /search, /stats, /files e /files/{id}.
type fakeVault struct {
	mu       sync.Mutex
	searches atomic.Int32
	uploads  []string
	deleted  []string
}

func (v *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/search":
		v.searches.Add(1)
		_ = json.NewEncoder(w).Encode([]apiclient.File{
			{ID: 1, Filename: "relatorio.pdf", MimeType: "application/pdf", SizeBytes: 1536},
			{ID: 2, Filename: "foto.png", MimeType: "image/png", Tags: []string{"ferias"}},
		})
	case r.Method == http.MethodGet && r.URL.Path == "/stats":
		_ = json.NewEncoder(w).Encode(apiclient.Stats{DeduplicatedUsageBytes: 2048, StorageSavingsPercent: 50})
	case r.Method == http.MethodPost && r.URL.Path == "/files":
		_, hdr, err := r.FormFile("files")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		v.mu.Lock()
		v.uploads = append(v.uploads, hdr.Filename)
		v.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/files/"):
		v.mu.Lock()
		v.deleted = append(v.deleted, strings.TrimPrefix(r.URL.Path, "/files/"))
		v.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	}
}

func runCLI(t *testing.T, baseURL, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{
		"--base-url", baseURL,
		"--min-interval", "1ms",
		"--upload-cooldown", "1ms",
	}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestCLI_ListJSON(t *testing.T) {
	srv := httptest.NewServer(&fakeVault{})
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "", "ls", "--format", "json")
	require.NoError(t, err)

	var files []apiclient.File
	require.NoError(t, json.Unmarshal([]byte(out), &files))
	require.Len(t, files, 2)
	assert.Equal(t, "foto.png", files[1].Filename)
}

func TestCLI_RejectsUnknownFormat(t *testing.T) {
	_, err := runCLI(t, "http://127.0.0.1:1", "", "ls", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestCLI_SearchTerm(t *testing.T) {
	srv := httptest.NewServer(&fakeVault{})
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "", "search", "FERIAS")
	require.NoError(t, err)
	assert.Contains(t, out, "foto.png")
	assert.NotContains(t, out, "relatorio.pdf")
}

func TestCLI_InteractiveSearchOnlySendsLastOfBurst(t *testing.T) {
	v := &fakeVault{}
	srv := httptest.NewServer(v)
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "r\nre\nrel\n", "search", "-i", "--debounce", "2s")
	require.NoError(t, err)

	assert.Equal(t, int32(1), v.searches.Load())
	assert.Contains(t, out, `# "rel": 1 match(es)`)
	assert.Contains(t, out, "relatorio.pdf")
	assert.NotContains(t, out, `# "re":`)
}

func TestCLI_UploadPreservesOrder(t *testing.T) {
	v := &fakeVault{}
	srv := httptest.NewServer(v)
	defer srv.Close()

	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"c.txt", "a.txt", "b.txt"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0o600))
		paths = append(paths, p)
	}

	out, err := runCLI(t, srv.URL, "", append([]string{"upload"}, paths...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "ok   "+paths[0])

	v.mu.Lock()
	defer v.mu.Unlock()
	assert.Equal(t, []string{"c.txt", "a.txt", "b.txt"}, v.uploads)
}

func TestCLI_UploadMissingFileFails(t *testing.T) {
	srv := httptest.NewServer(&fakeVault{})
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "", "upload", filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.Contains(t, out, "FAIL")
}

func TestCLI_RemoveAndStats(t *testing.T) {
	v := &fakeVault{}
	srv := httptest.NewServer(v)
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "", "rm", "3", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 4")
	v.mu.Lock()
	assert.Equal(t, []string{"3", "4"}, v.deleted)
	v.mu.Unlock()

	_, err = runCLI(t, srv.URL, "", "rm", "abc")
	require.Error(t, err)

	out, err = runCLI(t, srv.URL, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "2 KB")
	assert.Contains(t, out, "50.00%")
}

func TestCLI_SummaryCountsDispatches(t *testing.T) {
	srv := httptest.NewServer(&fakeVault{})
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "", "--summary", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "request")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 Bytes", formatBytes(0))
	assert.Equal(t, "512 Bytes", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "1 MB", formatBytes(1<<20))
}
