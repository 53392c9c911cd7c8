package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxUploadBytes = 32 << 20

// vault é um backend File Vault em memória: usuários, tokens, arquivos com
// tags e deduplicação por SHA-256 do conteúdo.
type vault struct {
	mu     sync.Mutex
	now    func() time.Time
	nextID int64
	users  map[string]string // email -> senha
	tokens map[string]string // token -> email
	files  map[int64]*storedFile
}

type storedFile struct {
	File
	owner string
	hash  string
}

// File segue o formato de /search (chaves capitalizadas).
type File struct {
	ID         int64     `json:"ID"`
	Filename   string    `json:"Filename"`
	MimeType   string    `json:"MimeType"`
	UploadDate time.Time `json:"UploadDate"`
	SizeBytes  int64     `json:"SizeBytes"`
	Tags       []string  `json:"Tags"`
}

type userStats struct {
	FilesUploaded          int64   `json:"files_uploaded_count"`
	TotalDownloadsOnShares int64   `json:"total_downloads_on_shares"`
	PublicShares           int64   `json:"public_shares_count"`
	PrivateShares          int64   `json:"private_shares_count"`
	DeduplicatedUsageBytes int64   `json:"deduplicated_storage_usage_bytes"`
	OriginalUsageBytes     int64   `json:"original_storage_usage_bytes"`
	StorageSavingsBytes    int64   `json:"storage_savings_bytes"`
	StorageSavingsPercent  float64 `json:"storage_savings_percentage"`
}

func newVault() *vault {
	return &vault{
		now:    time.Now,
		users:  make(map[string]string),
		tokens: make(map[string]string),
		files:  make(map[int64]*storedFile),
	}
}

// routes monta as rotas sob prefix (ex: "/api/v1").
func (v *vault) routes(prefix string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+prefix+"/register", v.register)
	mux.HandleFunc("POST "+prefix+"/login", v.login)
	mux.HandleFunc("GET "+prefix+"/search", v.authed(v.search))
	mux.HandleFunc("GET "+prefix+"/stats", v.authed(v.stats))
	mux.HandleFunc("POST "+prefix+"/files", v.authed(v.upload))
	mux.HandleFunc("DELETE "+prefix+"/files/{id}", v.authed(v.deleteFile))
	mux.HandleFunc("POST "+prefix+"/files/{id}/tags", v.authed(v.addTag))
	mux.HandleFunc("DELETE "+prefix+"/files/{id}/tags", v.authed(v.removeTag))
	return mux
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (v *vault) register(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil || c.Email == "" || c.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.users[c.Email]; ok {
		writeError(w, http.StatusConflict, "user already exists")
		return
	}
	v.users[c.Email] = c.Password
	writeJSON(w, http.StatusCreated, map[string]string{"message": "user created"})
}

func (v *vault) login(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if pw, ok := v.users[c.Email]; !ok || pw != c.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	tok := uuid.NewString()
	v.tokens[tok] = c.Email
	writeJSON(w, http.StatusOK, map[string]string{"token": tok})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, owner string)

func (v *vault) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, ok := bearerToken(r)
		v.mu.Lock()
		owner, known := v.tokens[tok]
		v.mu.Unlock()
		if !ok || !known {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next(w, r, owner)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	tok, ok := strings.CutPrefix(h, "Bearer ")
	tok = strings.TrimSpace(tok)
	return tok, ok && tok != ""
}

func (v *vault) search(w http.ResponseWriter, r *http.Request, owner string) {
	v.mu.Lock()
	out := make([]File, 0)
	for _, f := range v.files {
		if f.owner == owner {
			cp := f.File
			cp.Tags = slices.Clone(f.Tags)
			out = append(out, cp)
		}
	}
	v.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (v *vault) stats(w http.ResponseWriter, r *http.Request, owner string) {
	v.mu.Lock()
	var st userStats
	seen := make(map[string]bool)
	for _, f := range v.files {
		if f.owner != owner {
			continue
		}
		st.FilesUploaded++
		st.OriginalUsageBytes += f.SizeBytes
		if !seen[f.hash] {
			seen[f.hash] = true
			st.DeduplicatedUsageBytes += f.SizeBytes
		}
	}
	v.mu.Unlock()

	st.StorageSavingsBytes = st.OriginalUsageBytes - st.DeduplicatedUsageBytes
	if st.OriginalUsageBytes > 0 {
		st.StorageSavingsPercent = float64(st.StorageSavingsBytes) * 100 / float64(st.OriginalUsageBytes)
	}
	writeJSON(w, http.StatusOK, st)
}

func (v *vault) upload(w http.ResponseWriter, r *http.Request, owner string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided")
		return
	}

	created := make([]File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "cannot read "+fh.Filename)
			return
		}
		h := sha256.New()
		n, err := io.Copy(h, f)
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "cannot read "+fh.Filename)
			return
		}

		mime := fh.Header.Get("Content-Type")
		if mime == "" {
			mime = "application/octet-stream"
		}

		v.mu.Lock()
		v.nextID++
		sf := &storedFile{
			File: File{
				ID:         v.nextID,
				Filename:   fh.Filename,
				MimeType:   mime,
				UploadDate: v.now().UTC(),
				SizeBytes:  n,
				Tags:       []string{},
			},
			owner: owner,
			hash:  hex.EncodeToString(h.Sum(nil)),
		}
		v.files[sf.ID] = sf
		v.mu.Unlock()
		created = append(created, sf.File)
	}
	writeJSON(w, http.StatusCreated, created)
}

// ownedFile devolve o arquivo {id} do owner ou escreve o erro.
// Chamar com v.mu travado.
func (v *vault) ownedFile(w http.ResponseWriter, r *http.Request, owner string) *storedFile {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file id")
		return nil
	}
	f, ok := v.files[id]
	if !ok || f.owner != owner {
		writeError(w, http.StatusNotFound, "file not found")
		return nil
	}
	return f
}

func (v *vault) deleteFile(w http.ResponseWriter, r *http.Request, owner string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f := v.ownedFile(w, r, owner)
	if f == nil {
		return
	}
	delete(v.files, f.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "file deleted"})
}

type tagBody struct {
	Tag string `json:"tag"`
}

func (v *vault) addTag(w http.ResponseWriter, r *http.Request, owner string) {
	v.editTag(w, r, owner, true)
}

func (v *vault) removeTag(w http.ResponseWriter, r *http.Request, owner string) {
	v.editTag(w, r, owner, false)
}

func (v *vault) editTag(w http.ResponseWriter, r *http.Request, owner string, add bool) {
	var body tagBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Tag) == "" {
		writeError(w, http.StatusBadRequest, "tag is required")
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	f := v.ownedFile(w, r, owner)
	if f == nil {
		return
	}

	idx := -1
	for i, t := range f.Tags {
		if t == body.Tag {
			idx = i
			break
		}
	}
	switch {
	case add && idx < 0:
		f.Tags = append(f.Tags, body.Tag)
	case !add && idx >= 0:
		f.Tags = append(f.Tags[:idx], f.Tags[idx+1:]...)
	case !add:
		writeError(w, http.StatusNotFound, "tag not found")
		return
	}
	writeJSON(w, http.StatusOK, f.File)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
