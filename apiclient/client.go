package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"filevault-client/governor"

	"github.com/go-logr/logr"
)

const (
	DefaultBaseURL = "http://localhost:8080/api/v1"
	DefaultTimeout = 30 * time.Second

	// maxErrorBody limita quanto do corpo de erro é guardado em HTTPError.
	maxErrorBody = 64 << 10
)

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	HTTP2   bool
}

func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("base url %q has no host", c.BaseURL)
	}
	if c.Timeout < 0 {
		return errors.New("timeout must be >= 0")
	}
	return nil
}

// Client fala com a API do File Vault. Toda chamada passa pelo governor:
// as comuns por governor.Submit e os uploads por governor.SubmitUpload.
type Client struct {
	base     *url.URL
	hc       *http.Client
	gov      *governor.Governor
	tokens   *tokenSource
	cooldown time.Duration
	log      logr.Logger
}

type Option func(*Client)

// WithHTTPClient troca o *http.Client. O token bearer só é anexado
// automaticamente pelo cliente padrão.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithUploadCooldown sobrescreve Policy.UploadCooldown para os uploads deste cliente.
func WithUploadCooldown(d time.Duration) Option {
	return func(c *Client) { c.cooldown = d }
}

func WithLogger(l logr.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(cfg Config, g *governor.Governor, opts ...Option) (*Client, error) {
	if g == nil {
		return nil, errors.New("governor is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, _ := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))

	c := &Client{
		base:   base,
		gov:    g,
		tokens: &tokenSource{token: cfg.Token},
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hc == nil {
		if cfg.Timeout == 0 {
			cfg.Timeout = DefaultTimeout
		}
		hc, err := buildHTTPClient(cfg, c.tokens)
		if err != nil {
			return nil, err
		}
		c.hc = hc
	}
	return c, nil
}

// SetToken troca o token bearer usado nas próximas tentativas.
func (c *Client) SetToken(tok string) { c.tokens.Set(tok) }

func (c *Client) Token() string { return c.tokens.Get() }

// Response é uma resposta 2xx já lida por completo.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode faz o unmarshal do corpo JSON em v. Corpo vazio não é erro.
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, path, body)
}

// Do envia uma requisição JSON pelo caminho comum do governor e espera o
// resultado. body nil não envia corpo. ctx limita a espera; a operação já
// enfileirada segue até o fim.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = b
	}

	f := governor.Submit(c.gov, ctx, func(opCtx context.Context) (*Response, error) {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		return c.roundTrip(opCtx, method, path, rd, "application/json")
	})
	return f.Wait(ctx)
}

// Upload envia um multipart/form-data com o arquivo no campo "files" e os
// campos extras em fields, pelo caminho de upload do governor.
func (c *Client) Upload(ctx context.Context, path, filename string, r io.Reader, fields map[string]string) (*Response, error) {
	f, err := c.SubmitUpload(ctx, path, filename, r, fields)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

// SubmitUpload é o Upload sem esperar: devolve o Future assim que a operação
// entra na fila. O conteúdo é lido por inteiro antes, para que o retry possa
// reenviá-lo e r possa ser fechado logo em seguida.
func (c *Client) SubmitUpload(ctx context.Context, path, filename string, r io.Reader, fields map[string]string) (*governor.Future[*Response], error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %q: %w", k, err)
		}
	}
	fw, err := mw.CreateFormFile("files", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}
	payload := buf.Bytes()
	contentType := mw.FormDataContentType()

	return governor.SubmitUpload(c.gov, ctx, func(opCtx context.Context) (*Response, error) {
		return c.roundTrip(opCtx, http.MethodPost, path, bytes.NewReader(payload), contentType)
	}, c.cooldown), nil
}

// roundTrip é uma única tentativa. Devolve *HTTPError para status fora de 2xx
// e *TransportError quando não há resposta.
func (c *Client) roundTrip(ctx context.Context, method, path string, body io.Reader, contentType string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Code: transportCode(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		he := &HTTPError{
			Method:     method,
			Path:       path,
			Status:     resp.StatusCode,
			Body:       raw,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
		var msg struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &msg) == nil {
			he.Message = msg.Error
		}
		c.log.V(4).Info("request failed", "method", method, "path", path, "status", resp.StatusCode)
		return nil, he
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Code: transportCode(err), Err: err}
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: raw}, nil
}

// resolve junta path ao BaseURL, preservando a query de path.
func (c *Client) resolve(path string) string {
	p, q, _ := strings.Cut(path, "?")
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(p, "/")
	u.RawQuery = q
	return u.String()
}
