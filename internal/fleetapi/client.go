// Пакет fleetapi — HTTP-клиент REST backend системы управления автопарком.
// Поддерживает TLS с кастомным CA (FA_CA_CERT_PATH), bearer-авторизацию,
// кодировки form-urlencoded, JSON и multipart. Все ошибки нормализуются
// в *Error на границе сети.
package fleetapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/fleetdesk/internal/session"
)

var backendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fd_backend_requests_total",
	Help: "Количество запросов к REST backend по методу и классу ответа.",
}, []string{"method", "status"})

// Credentials — источник bearer-токена и реакция на 401.
// Реализуется *session.Session.
type Credentials interface {
	Token(ctx context.Context) (string, error)
	Invalidate(ctx context.Context, reason session.Reason)
}

// LoginResponse — ответ POST /auth/login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	RoleID      int    `json:"role_id"`
}

// FormFile — файл для multipart-запроса.
type FormFile struct {
	Field    string
	Filename string
	Content  io.Reader
}

// Download — скачиваемый файл. Body закрывает вызывающий.
type Download struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
}

// Client — клиент backend. Экземпляр без Credentials выполняет
// только публичные вызовы (Login); WithCredentials возвращает копию
// для конкретной сессии.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
	logger     *slog.Logger
}

// New создаёт клиент backend.
// timeout — таймаут запроса (0 — без ограничения, отмена через контекст).
// caCertPath — путь к CA-сертификату (пустая строка — системный пул).
func New(baseURL string, timeout time.Duration, caCertPath string, logger *slog.Logger) (*Client, error) {
	httpClient := &http.Client{Timeout: timeout}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата backend: %w", err)
		}
		httpClient.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат backend добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "fleet_api")),
	}, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("файл %s не содержит PEM-сертификатов", caCertPath)
	}

	return &tls.Config{RootCAs: caCertPool}, nil
}

// WithCredentials возвращает копию клиента, авторизующую запросы creds.
func (c *Client) WithCredentials(creds Credentials) *Client {
	cp := *c
	cp.creds = creds
	return &cp
}

// BaseURL возвращает базовый URL backend.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login выполняет вход: POST /auth/login (form-urlencoded username/password).
// Неверные учётные данные возвращаются как KindBusiness.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("создание запроса Login: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out LoginResponse
	if err := c.do(req, false, &out); err != nil {
		var e *Error
		if errors.As(err, &e) && e.Kind == KindSession {
			msg := e.Message
			if msg == "" {
				msg = "Неверное имя пользователя или пароль"
			}
			return nil, &Error{Kind: KindBusiness, Status: e.Status, Message: msg}
		}
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, &Error{Kind: KindTransport, Err: errors.New("ответ входа без access_token")}
	}
	return &out, nil
}

// Me запрашивает профиль текущего пользователя: GET /users/me.
func (c *Client) Me(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.GetJSON(ctx, "/users/me", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetJSON выполняет авторизованный GET и декодирует JSON-ответ в out.
func (c *Client) GetJSON(ctx context.Context, p string, query url.Values, out any) error {
	u := c.baseURL + p
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("создание запроса GET %s: %w", p, err)
	}
	return c.do(req, true, out)
}

// PostJSON выполняет авторизованный POST с JSON-телом body (nil — пустое тело).
func (c *Client) PostJSON(ctx context.Context, p string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("сериализация тела POST %s: %w", p, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+p, reader)
	if err != nil {
		return fmt.Errorf("создание запроса POST %s: %w", p, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, true, out)
}

// PostMultipart выполняет авторизованный POST multipart/form-data.
// Границу задаёт multipart.Writer; поля пишутся в порядке имён.
func (c *Client) PostMultipart(ctx context.Context, p string, fields url.Values, files []FormFile, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range fields[k] {
			if err := w.WriteField(k, v); err != nil {
				return fmt.Errorf("запись поля %s: %w", k, err)
			}
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return fmt.Errorf("создание части %s: %w", f.Field, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return fmt.Errorf("запись файла %s: %w", f.Filename, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("завершение multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+p, &buf)
	if err != nil {
		return fmt.Errorf("создание запроса POST %s: %w", p, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req, true, out)
}

// Fetch скачивает файл по абсолютному URL или пути относительно backend.
// Имя файла берётся из Content-Disposition, иначе из пути URL.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Download, error) {
	u := c.ResolveURL(rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса загрузки: %w", err)
	}

	resp, err := c.send(req, true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, c.failure(req, resp)
	}

	name := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		name = plainFilename(params["filename"])
	}
	if name == "" {
		name = plainFilename(req.URL.Path)
	}
	if name == "" {
		name = "download"
	}

	return &Download{
		Body:        resp.Body,
		Filename:    name,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// plainFilename оставляет последний элемент пути; имена, указывающие
// на каталог (".", "..", "/"), дают пустую строку.
func plainFilename(p string) string {
	name := path.Base(strings.ReplaceAll(p, "\\", "/"))
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}

// ResolveURL превращает путь документа в абсолютный URL backend.
func (c *Client) ResolveURL(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return c.baseURL + "/" + strings.TrimLeft(raw, "/")
}

// send выполняет запрос, при auth добавляя bearer-токен.
func (c *Client) send(req *http.Request, auth bool) (*http.Response, error) {
	if auth {
		if c.creds == nil {
			return nil, &Error{Kind: KindSession, Err: session.ErrSessionInvalid}
		}
		token, err := c.creds.Token(req.Context())
		if err != nil {
			return nil, &Error{Kind: KindSession, Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		backendRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		c.logger.Warn("Backend недоступен",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	backendRequestsTotal.WithLabelValues(req.Method, statusClass(resp.StatusCode)).Inc()
	return resp, nil
}

// do выполняет запрос и декодирует успешный JSON-ответ в out.
func (c *Client) do(req *http.Request, auth bool, out any) error {
	resp, err := c.send(req, auth)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.failure(req, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindTransport, Status: resp.StatusCode, Err: err}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{
			Kind:   KindTransport,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("декодирование ответа %s %s: %w", req.Method, req.URL.Path, err),
		}
	}
	return nil
}

// failure нормализует неуспешный ответ; 401 очищает сессию.
func (c *Client) failure(req *http.Request, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	e := Normalize(resp.StatusCode, body)

	if e.Kind == KindSession && c.creds != nil {
		c.creds.Invalidate(req.Context(), session.ReasonRejected)
	}

	c.logger.Debug("Backend вернул ошибку",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.String("kind", string(e.Kind)),
	)
	return e
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
