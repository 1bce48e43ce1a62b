package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/fleetdesk/internal/fleetapi"
	"github.com/bigkaa/fleetdesk/internal/resource"
	"github.com/bigkaa/fleetdesk/internal/session"
	uimiddleware "github.com/bigkaa/fleetdesk/internal/ui/middleware"
	"github.com/bigkaa/fleetdesk/internal/ui/workspace"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func makeToken(t *testing.T, exp time.Time) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("Ошибка подписи токена: %v", err)
	}
	return signed
}

// fakeBackend — REST backend автопарка для тестов консоли.
type fakeBackend struct {
	mu         sync.Mutex
	token      string
	roleID     int
	listStatus int
	drivers    []map[string]any
	meCalls    int
	requests   []string
	created    url.Values
	files      map[string]string
}

func (b *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	authorized := func(r *http.Request) bool {
		return r.Header.Get("Authorization") == "Bearer "+b.token
	}

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("password") != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Неверный пароль"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": b.token,
			"token_type":   "bearer",
			"role_id":      b.roleID,
		})
	})
	mux.HandleFunc("GET /users/me", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.meCalls++
		b.mu.Unlock()
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"name": "Анна Смирнова", "email": "anna@fleet.io"})
	})
	mux.HandleFunc("GET /drivers/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.requests = append(b.requests, r.Method+" "+r.URL.Path)
		if b.listStatus != 0 {
			writeJSON(w, b.listStatus, map[string]string{"detail": "Not authenticated"})
			return
		}
		writeJSON(w, http.StatusOK, b.drivers)
	})
	mux.HandleFunc("POST /drivers/deactivate/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, r.Method+" "+r.URL.Path)
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	mux.HandleFunc("POST /drivers/create", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("create: ожидался multipart: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.created = url.Values(r.MultipartForm.Value)
		b.files = map[string]string{}
		for field, headers := range r.MultipartForm.File {
			b.files[field] = headers[0].Filename
		}
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "Водитель добавлен"})
	})
	mux.HandleFunc("GET /uploads/", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 licence"))
	})
	return mux
}

func sampleDrivers(n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		d := map[string]any{
			"id":             i,
			"name":           "Водитель " + string(rune('A'+i-1)),
			"email":          "d" + string(rune('a'+i-1)) + "@fleet.io",
			"contact_number": "900",
			"licence_number": "L-" + string(rune('A'+i-1)),
			"status":         "Active",
		}
		if i == 1 {
			d["name"] = "Иван Петров"
			d["licence_document"] = "/uploads/licence-1.pdf"
		}
		out = append(out, d)
	}
	return out
}

type testEnv struct {
	backend *fakeBackend
	store   *session.MemoryStore
	router  http.Handler
	cookie  *http.Cookie
}

func setupEnv(t *testing.T, b *fakeBackend) *testEnv {
	t.Helper()
	if b.token == "" {
		b.token = makeToken(t, time.Now().Add(time.Hour))
	}
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)

	logger := testLogger()
	client, err := fleetapi.New(srv.URL, 5*time.Second, "", logger)
	if err != nil {
		t.Fatalf("fleetapi.New() ошибка: %v", err)
	}
	codec, err := session.NewCookieCodec("test-cookie-key", false, time.Hour)
	if err != nil {
		t.Fatalf("NewCookieCodec() ошибка: %v", err)
	}
	store := session.NewMemoryStore(10, time.Hour)
	manager := workspace.NewManager(store, client, resource.Default(), workspace.Config{
		Size:          10,
		TTL:           time.Hour,
		PageSize:      10,
		RedirectDelay: time.Second,
	}, logger)

	ui := &UI{
		Auth:      NewAuthHandler(client, codec, manager, logger),
		Landing:   NewLandingHandler(manager, logger),
		Resources: NewResourcesHandler(codec, manager, logger),
		Guard:     uimiddleware.NewGuard(codec, manager, logger).Middleware(),
	}
	r := chi.NewRouter()
	ui.Mount(r)

	return &testEnv{backend: b, store: store, router: r}
}

func (e *testEnv) do(method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"username": {"anna"}, "password": {"secret"}}
	rec := e.do(http.MethodPost, "/login", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.SessionCookieName && c.Value != "" {
			e.cookie = c
		}
	}
	return rec
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for field, name := range files {
		fw, err := w.CreateFormFile(field, name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte("file " + name))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func TestRouteForRole(t *testing.T) {
	tests := []struct {
		role int
		want string
	}{
		{1, "/dashboard"},
		{2, "/supervisor"},
		{3, "/driver"},
		{4, "/attendee"},
		{0, "/dashboard"},
		{99, "/dashboard"},
	}
	for _, tt := range tests {
		if got := RouteForRole(tt.role); got != tt.want {
			t.Errorf("RouteForRole(%d) = %q, ожидалось %q", tt.role, got, tt.want)
		}
	}
}

func TestLogin_RedirectsByRole(t *testing.T) {
	env := setupEnv(t, &fakeBackend{roleID: RoleDriver})

	rec := env.login(t)
	if rec.Code != http.StatusFound {
		t.Fatalf("POST /login: статус %d, ожидался 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/driver" {
		t.Errorf("Location = %q, ожидалось /driver", loc)
	}
	if env.cookie == nil {
		t.Fatal("cookie сессии не установлен")
	}
	if env.store.Len() != 1 {
		t.Errorf("в хранилище %d сессий, ожидалась 1", env.store.Len())
	}
	if env.backend.meCalls != 1 {
		t.Errorf("/users/me вызван %d раз, ожидался 1", env.backend.meCalls)
	}

	page := env.do(http.MethodGet, "/driver", nil, "")
	if page.Code != http.StatusOK {
		t.Fatalf("GET /driver: статус %d", page.Code)
	}
	body := page.Body.String()
	if !strings.Contains(body, "Анна Смирнова") || !strings.Contains(body, "anna@fleet.io") {
		t.Error("стартовая страница не показывает профиль пользователя")
	}

	home := env.do(http.MethodGet, "/", nil, "")
	if loc := home.Header().Get("Location"); loc != "/driver" {
		t.Errorf("GET /: Location = %q, ожидалось /driver", loc)
	}
}

func TestLogin_Rejected(t *testing.T) {
	env := setupEnv(t, &fakeBackend{roleID: RoleAdmin})

	form := url.Values{"username": {"anna"}, "password": {"wrong"}}
	rec := env.do(http.MethodPost, "/login", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус %d, ожидался 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Неверный пароль") {
		t.Error("сообщение backend не показано на странице входа")
	}
	if env.store.Len() != 0 {
		t.Error("после неудачного входа создана сессия")
	}
}

func TestLogout(t *testing.T) {
	env := setupEnv(t, &fakeBackend{roleID: RoleAdmin})
	env.login(t)

	rec := env.do(http.MethodPost, "/logout", nil, "")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Errorf("POST /logout: %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if env.store.Len() != 0 {
		t.Error("сессия не удалена после выхода")
	}

	after := env.do(http.MethodGet, "/dashboard", nil, "")
	if after.Code != http.StatusFound || after.Header().Get("Location") != "/login" {
		t.Errorf("после выхода GET /dashboard: %d %q", after.Code, after.Header().Get("Location"))
	}
}

func TestGuard_WithoutCookie(t *testing.T) {
	env := setupEnv(t, &fakeBackend{})

	rec := env.do(http.MethodGet, "/resources/drivers", nil, "")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Errorf("без cookie: %d %q, ожидался redirect на /login", rec.Code, rec.Header().Get("Location"))
	}
}

func TestGuard_ExpiredToken(t *testing.T) {
	b := &fakeBackend{roleID: RoleAdmin}
	env := setupEnv(t, b)
	env.login(t)

	// Токен истёк после входа.
	codec, err := session.NewCookieCodec("test-cookie-key", false, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	sessID, err := codec.Decode(env.cookie.Value)
	if err != nil {
		t.Fatal(err)
	}
	_ = env.store.Save(context.Background(), sessID, &session.Credential{
		Token:    makeToken(t, time.Now().Add(-time.Minute)),
		LoggedIn: true,
		RoleID:   RoleAdmin,
	})

	rec := env.do(http.MethodGet, "/resources/drivers", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус %d, ожидался 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Сессия истекла") {
		t.Error("не показан диалог истёкшей сессии")
	}
	if env.store.Len() != 0 {
		t.Error("просроченная сессия не очищена")
	}
	if len(b.requests) != 0 {
		t.Errorf("с просроченным токеном выполнены запросы: %v", b.requests)
	}
}

func TestList_SearchAndPagination(t *testing.T) {
	env := setupEnv(t, &fakeBackend{roleID: RoleAdmin, drivers: sampleDrivers(12)})
	env.login(t)

	rec := env.do(http.MethodGet, "/resources/drivers", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Страница 1 из 2 · всего 12") {
		t.Error("ожидалась первая страница из двух")
	}

	rec = env.do(http.MethodGet, "/resources/drivers?size=5&page=3", nil, "")
	if !strings.Contains(rec.Body.String(), "Страница 3 из 3") {
		t.Error("ожидалась третья страница при размере 5")
	}

	rec = env.do(http.MethodGet, "/resources/drivers?q="+url.QueryEscape("петров")+"&size=5", nil, "")
	body := rec.Body.String()
	if !strings.Contains(body, "Иван Петров") || !strings.Contains(body, "всего 1</span>") {
		t.Error("поиск без учёта регистра не нашёл запись")
	}

	if n := len(env.backend.requests); n != 1 {
		t.Errorf("список загружен %d раз, ожидалась одна загрузка", n)
	}
	env.do(http.MethodGet, "/resources/drivers?reload=1", nil, "")
	if n := len(env.backend.requests); n != 2 {
		t.Errorf("reload=1 не перезагрузил список, загрузок %d", n)
	}
}

func TestList_SessionExpired(t *testing.T) {
	b := &fakeBackend{roleID: RoleAdmin, listStatus: http.StatusUnauthorized}
	env := setupEnv(t, b)
	env.login(t)

	rec := env.do(http.MethodGet, "/resources/drivers", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус %d, ожидался 401", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Сессия истекла") {
		t.Error("не показан диалог истёкшей сессии")
	}
	if strings.Contains(body, "<table>") {
		t.Error("после 401 показана таблица")
	}
	if env.store.Len() != 0 {
		t.Error("сессия не очищена после 401")
	}

	again := env.do(http.MethodGet, "/resources/drivers", nil, "")
	if again.Code != http.StatusFound || again.Header().Get("Location") != "/login" {
		t.Errorf("повторный запрос: %d %q, ожидался redirect на /login", again.Code, again.Header().Get("Location"))
	}
	if len(b.requests) != 1 {
		t.Errorf("после 401 выполнены запросы: %v", b.requests)
	}
}

func TestList_UnknownResource(t *testing.T) {
	env := setupEnv(t, &fakeBackend{roleID: RoleAdmin})
	env.login(t)

	rec := env.do(http.MethodGet, "/resources/spaceships", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("статус %d, ожидался 404", rec.Code)
	}
}

func TestAction_Deactivate(t *testing.T) {
	b := &fakeBackend{roleID: RoleAdmin, drivers: sampleDrivers(3)}
	env := setupEnv(t, b)
	env.login(t)
	env.do(http.MethodGet, "/resources/drivers", nil, "")

	rec := env.do(http.MethodPost, "/resources/drivers/2/actions/deactivate", nil, "")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("статус %d, ожидался 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/resources/drivers?done=deactivate" {
		t.Errorf("Location = %q", loc)
	}
	if got := b.requests[len(b.requests)-1]; got != "POST /drivers/deactivate/2" {
		t.Errorf("последний запрос backend = %q", got)
	}

	list := env.do(http.MethodGet, "/resources/drivers?done=deactivate", nil, "")
	body := list.Body.String()
	if !strings.Contains(body, "Деактивировать: выполнено") {
		t.Error("нет сообщения об успехе действия")
	}
	if !strings.Contains(body, "всего 2") {
		t.Error("запись не удалена из списка без перезагрузки")
	}
	if n := len(b.requests); n != 2 {
		t.Errorf("запросов к backend %d, ожидалось 2 (загрузка и действие)", n)
	}
}

func TestExport_CSV(t *testing.T) {
	env := setupEnv(t, &fakeBackend{roleID: RoleAdmin, drivers: sampleDrivers(2)})
	env.login(t)

	rec := env.do(http.MethodGet, "/resources/drivers/export.csv", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") || !strings.Contains(cd, "drivers") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "Иван Петров") {
		t.Error("в CSV нет записи")
	}

	if bad := env.do(http.MethodGet, "/resources/drivers/export.pdf", nil, ""); bad.Code != http.StatusNotFound {
		t.Errorf("неизвестный формат: статус %d, ожидался 404", bad.Code)
	}
}

func TestForm_CreateDriver(t *testing.T) {
	b := &fakeBackend{roleID: RoleAdmin, drivers: sampleDrivers(1)}
	env := setupEnv(t, b)
	env.login(t)

	if rec := env.do(http.MethodGet, "/resources/drivers/new", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("GET new: статус %d", rec.Code)
	}

	// Шаг 1 с ошибкой email: остаёмся на шаге.
	body, ct := multipartBody(t, map[string]string{
		"op": "next", "name": " Олег ", "email": "oleg", "contact_number": "911",
	}, nil)
	rec := env.do(http.MethodPost, "/resources/drivers/new", body, ct)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("шаг 1 с ошибкой: статус %d, ожидался 422", rec.Code)
	}

	body, ct = multipartBody(t, map[string]string{"op": "next", "email": "oleg@fleet.io"}, nil)
	if rec = env.do(http.MethodPost, "/resources/drivers/new", body, ct); rec.Code != http.StatusOK {
		t.Fatalf("шаг 1: статус %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `name="licence_number"`) {
		t.Fatal("не открылся шаг документов")
	}

	body, ct = multipartBody(t, map[string]string{
		"op": "next", "licence_number": "L-77", "licence_expiry": "2030-01-31",
	}, map[string]string{"licence_document": "licence.pdf"})
	if rec = env.do(http.MethodPost, "/resources/drivers/new", body, ct); rec.Code != http.StatusOK {
		t.Fatalf("шаг 2: статус %d", rec.Code)
	}

	body, ct = multipartBody(t, map[string]string{"op": "submit", "group_id": "3", "status": "Active"}, nil)
	rec = env.do(http.MethodPost, "/resources/drivers/new", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("отправка: статус %d", rec.Code)
	}
	page := rec.Body.String()
	if !strings.Contains(page, "Водитель добавлен") {
		t.Error("нет сообщения backend об успехе")
	}
	if !strings.Contains(page, "/resources/drivers?reload=1") {
		t.Error("нет перехода к обновлённому списку")
	}

	if got := b.created.Get("name"); got != "Олег" {
		t.Errorf("name = %q, ожидалось обрезанное значение", got)
	}
	if got := b.created.Get("group_id"); got != "3" {
		t.Errorf("group_id = %q", got)
	}
	if b.files["licence_document"] != "licence.pdf" {
		t.Errorf("файлы запроса: %v", b.files)
	}

	// Черновик закрыт: новая форма начинается с первого шага.
	fresh := env.do(http.MethodGet, "/resources/drivers/new", nil, "")
	if !strings.Contains(fresh.Body.String(), `name="name" type="text" value=""`) {
		t.Error("черновик не сброшен после успешной отправки")
	}
}

func TestDetailAndDocument(t *testing.T) {
	env := setupEnv(t, &fakeBackend{roleID: RoleAdmin, drivers: sampleDrivers(2)})
	env.login(t)

	rec := env.do(http.MethodGet, "/resources/drivers/1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Иван Петров") {
		t.Error("карточка не содержит имени")
	}
	if !strings.Contains(body, "/resources/drivers/1/documents/licence_document") {
		t.Error("нет ссылки на документ")
	}

	doc := env.do(http.MethodGet, "/resources/drivers/1/documents/licence_document", nil, "")
	if doc.Code != http.StatusOK {
		t.Fatalf("документ: статус %d", doc.Code)
	}
	if cd := doc.Header().Get("Content-Disposition"); !strings.Contains(cd, "licence-1.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.HasPrefix(doc.Body.String(), "%PDF") {
		t.Error("содержимое документа не передано")
	}

	if missing := env.do(http.MethodGet, "/resources/drivers/42", nil, ""); missing.Code != http.StatusNotFound {
		t.Errorf("несуществующая запись: статус %d", missing.Code)
	}
	if none := env.do(http.MethodGet, "/resources/drivers/2/documents/licence_document", nil, ""); none.Code != http.StatusNotFound {
		t.Errorf("незагруженный документ: статус %d", none.Code)
	}
}

func TestPrint(t *testing.T) {
	env := setupEnv(t, &fakeBackend{roleID: RoleAdmin, drivers: sampleDrivers(1)})
	env.login(t)

	rec := env.do(http.MethodGet, "/resources/drivers/1/print", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/resources/drivers/1/print/1.png") {
		t.Fatal("нет ссылки на первую страницу")
	}

	img := env.do(http.MethodGet, "/resources/drivers/1/print/1.png", nil, "")
	if img.Code != http.StatusOK || img.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("страница печати: %d %q", img.Code, img.Header().Get("Content-Type"))
	}
	cfg, err := png.DecodeConfig(img.Body)
	if err != nil {
		t.Fatalf("страница не является PNG: %v", err)
	}
	if cfg.Width != 794 || cfg.Height != 1123 {
		t.Errorf("размер страницы %dx%d, ожидался A4", cfg.Width, cfg.Height)
	}

	if out := env.do(http.MethodGet, "/resources/drivers/1/print/99.png", nil, ""); out.Code != http.StatusNotFound {
		t.Errorf("несуществующая страница: статус %d", out.Code)
	}
}
