package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// File é um arquivo como a API devolve em /search (chaves capitalizadas).
type File struct {
	ID         int64     `json:"ID"`
	Filename   string    `json:"Filename"`
	MimeType   string    `json:"MimeType"`
	UploadDate time.Time `json:"UploadDate"`
	SizeBytes  int64     `json:"SizeBytes"`
	Tags       []string  `json:"Tags"`
}

// Stats é o uso de armazenamento do usuário (GET /stats).
type Stats struct {
	FilesUploaded          int64   `json:"files_uploaded_count"`
	TotalDownloadsOnShares int64   `json:"total_downloads_on_shares"`
	PublicShares           int64   `json:"public_shares_count"`
	PrivateShares          int64   `json:"private_shares_count"`
	DeduplicatedUsageBytes int64   `json:"deduplicated_storage_usage_bytes"`
	OriginalUsageBytes     int64   `json:"original_storage_usage_bytes"`
	StorageSavingsBytes    int64   `json:"storage_savings_bytes"`
	StorageSavingsPercent  float64 `json:"storage_savings_percentage"`
}

type tagBody struct {
	Tag string `json:"tag"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ListFiles devolve todos os arquivos do usuário.
func (c *Client) ListFiles(ctx context.Context) ([]File, error) {
	resp, err := c.Get(ctx, "/search")
	if err != nil {
		return nil, err
	}
	var files []File
	if err := resp.Decode(&files); err != nil {
		return nil, err
	}
	return files, nil
}

// SearchFiles lista os arquivos e filtra localmente por term (ver MatchFiles).
func (c *Client) SearchFiles(ctx context.Context, term string) ([]File, error) {
	files, err := c.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	return MatchFiles(files, term), nil
}

// MatchFiles filtra files por substring, sem diferenciar maiúsculas, em nome,
// tags, data de upload (YYYY-MM-DD), tamanho em bytes e MIME type.
// term vazio devolve files inteiro.
func MatchFiles(files []File, term string) []File {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return files
	}
	out := make([]File, 0, len(files))
	for _, f := range files {
		if fileMatches(f, term) {
			out = append(out, f)
		}
	}
	return out
}

func fileMatches(f File, term string) bool {
	if strings.Contains(strings.ToLower(f.Filename), term) ||
		strings.Contains(strings.ToLower(f.MimeType), term) {
		return true
	}
	for _, t := range f.Tags {
		if strings.Contains(strings.ToLower(t), term) {
			return true
		}
	}
	if !f.UploadDate.IsZero() && strings.Contains(f.UploadDate.Format(time.DateOnly), term) {
		return true
	}
	return f.SizeBytes > 0 && strings.Contains(strconv.FormatInt(f.SizeBytes, 10), term)
}

func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	resp, err := c.Get(ctx, "/stats")
	if err != nil {
		return nil, err
	}
	var st Stats
	if err := resp.Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) DeleteFile(ctx context.Context, id int64) error {
	_, err := c.Delete(ctx, filePath(id, ""))
	return err
}

func (c *Client) AddTag(ctx context.Context, id int64, tag string) error {
	if strings.TrimSpace(tag) == "" {
		return errors.New("tag must not be empty")
	}
	_, err := c.Post(ctx, filePath(id, "tags"), tagBody{Tag: tag})
	return err
}

func (c *Client) RemoveTag(ctx context.Context, id int64, tag string) error {
	_, err := c.Do(ctx, http.MethodDelete, filePath(id, "tags"), tagBody{Tag: tag})
	return err
}

// UploadFile envia um arquivo por POST /files (caminho de upload do governor).
func (c *Client) UploadFile(ctx context.Context, filename string, r io.Reader) (*Response, error) {
	return c.Upload(ctx, "/files", filename, r, nil)
}

// Login autentica e passa a usar o token devolvido nas próximas chamadas.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	resp, err := c.Post(ctx, "/login", credentials{Email: email, Password: password})
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errors.New("login response carried no token")
	}
	c.SetToken(out.Token)
	return out.Token, nil
}

func (c *Client) Register(ctx context.Context, email, password string) error {
	_, err := c.Post(ctx, "/register", credentials{Email: email, Password: password})
	return err
}

func filePath(id int64, sub string) string {
	if sub == "" {
		return fmt.Sprintf("/files/%d", id)
	}
	return fmt.Sprintf("/files/%d/%s", id, sub)
}
