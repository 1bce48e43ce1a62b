package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/fleetdesk/internal/config"
	"github.com/bigkaa/fleetdesk/internal/database"
)

// exerciseStore проверяет общий контракт Store.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() отсутствующей записи = %v, ожидалась ErrNotFound", err)
	}

	cred := &Credential{
		Token:     "a.b.c",
		LoggedIn:  true,
		RoleID:    4,
		Profile:   json.RawMessage(`{"name":"Иван"}`),
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := store.Save(ctx, "k1", cred); err != nil {
		t.Fatalf("Save() ошибка: %v", err)
	}

	got, err := store.Load(ctx, "k1")
	if err != nil {
		t.Fatalf("Load() ошибка: %v", err)
	}
	if got.Token != cred.Token || !got.LoggedIn || got.RoleID != 4 {
		t.Errorf("Load() = %+v", got)
	}
	var profile map[string]string
	if err := json.Unmarshal(got.Profile, &profile); err != nil || profile["name"] != "Иван" {
		t.Errorf("Profile = %s", got.Profile)
	}
	if !got.CreatedAt.Equal(cred.CreatedAt) {
		t.Errorf("CreatedAt = %v, ожидалось %v", got.CreatedAt, cred.CreatedAt)
	}

	if err := store.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if err := store.Delete(ctx, "k1"); err != nil {
		t.Fatalf("повторный Delete() ошибка: %v", err)
	}
	if _, err := store.Load(ctx, "k1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() после Delete = %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(10, time.Hour))
}

func TestMemoryStore_Eviction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(1, time.Hour)
	_ = store.Save(ctx, "a", &Credential{Token: "1"})
	_ = store.Save(ctx, "b", &Credential{Token: "2"})

	if _, err := store.Load(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("старейшая запись не вытеснена: %v", err)
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.toml")
	exerciseStore(t, NewFileStore(path, testLogger()))
}

func TestFileStore_PermissionsAndProfiles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.toml")
	store := NewFileStore(path, testLogger())

	_ = store.Save(ctx, "default", &Credential{Token: "t1", LoggedIn: true})
	_ = store.Save(ctx, "staging", &Credential{Token: "t2", LoggedIn: true})

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("файл не создан: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("права файла = %o, ожидалось 600", perm)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "[profiles.staging]") {
		t.Errorf("в файле нет таблицы профиля:\n%s", data)
	}

	// Новый экземпляр читает то же содержимое.
	other := NewFileStore(path, testLogger())
	got, err := other.Load(ctx, "staging")
	if err != nil || got.Token != "t2" {
		t.Errorf("Load() = %+v, %v", got, err)
	}
}

func TestFileStore_Corrupted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.toml")
	if err := os.WriteFile(path, []byte("garbage = [[["), 0o600); err != nil {
		t.Fatal(err)
	}
	store := NewFileStore(path, testLogger())

	if _, err := store.Load(ctx, "default"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, ожидалась ErrNotFound", err)
	}
	if err := store.Delete(ctx, "default"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}

	s := New(store, "default", WithLogger(testLogger()))
	if v := s.Guard(ctx); v.Valid || v.Reason != ReasonAbsent {
		t.Errorf("Guard() = %+v, ожидалась причина absent", v)
	}
	token := makeToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	if err := s.Establish(ctx, token, 1, nil); err != nil {
		t.Fatalf("Establish() после повреждения файла: %v", err)
	}
	if v := s.Guard(ctx); !v.Valid {
		t.Errorf("Guard() после входа: причина %q", v.Reason)
	}

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "garbage") {
		t.Errorf("повреждённое содержимое не перезаписано:\n%s", data)
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("FA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Пропуск теста Redis: FA_TEST_REDIS_ADDR не установлена")
	}
	client, err := NewRedisClient(context.Background(), addr, "", 0)
	if err != nil {
		t.Fatalf("NewRedisClient() ошибка: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, time.Minute)
	exerciseStore(t, store)

	if status, msg := store.CheckReady(); status != "ok" {
		t.Errorf("CheckReady() = %q (%s)", status, msg)
	}
}

// setupTestPool запускает PostgreSQL через testcontainers и применяет миграции.
func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("fleetdesk_test"),
		postgres.WithUsername("fleetdesk"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, _ := container.Host(ctx)
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("FA_API_BASE_URL", "http://localhost:8000")
	t.Setenv("FA_SESSION_STORE", "postgres")
	t.Setenv("FA_DB_HOST", host)
	t.Setenv("FA_DB_PORT", port.Port())
	t.Setenv("FA_DB_NAME", "fleetdesk_test")
	t.Setenv("FA_DB_USER", "fleetdesk")
	t.Setenv("FA_DB_PASSWORD", "test-password")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresStore(t *testing.T) {
	pool := setupTestPool(t)
	exerciseStore(t, NewPostgresStore(pool, time.Hour))
}

func TestPostgresStore_PurgeExpired(t *testing.T) {
	pool := setupTestPool(t)
	ctx := context.Background()

	expired := NewPostgresStore(pool, -time.Minute)
	if err := expired.Save(ctx, "old", &Credential{Token: "t", LoggedIn: true}); err != nil {
		t.Fatalf("Save() ошибка: %v", err)
	}
	if _, err := expired.Load(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("просроченная запись читается: %v", err)
	}

	n, err := expired.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired() ошибка: %v", err)
	}
	if n != 1 {
		t.Errorf("PurgeExpired() = %d, ожидалось 1", n)
	}
}

func TestCookieCodec(t *testing.T) {
	codec, err := NewCookieCodec("my-secret", false, time.Hour)
	if err != nil {
		t.Fatalf("NewCookieCodec() ошибка: %v", err)
	}

	rec := httptest.NewRecorder()
	id := NewID()
	if err := codec.SetCookie(rec, id); err != nil {
		t.Fatalf("SetCookie() ошибка: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != SessionCookieName {
		t.Fatalf("cookies = %+v", cookies)
	}
	if strings.Contains(cookies[0].Value, id) {
		t.Error("идентификатор сессии виден в открытом виде")
	}
	if !cookies[0].HttpOnly {
		t.Error("cookie без HttpOnly")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	got, err := codec.FromRequest(req)
	if err != nil || got != id {
		t.Errorf("FromRequest() = %q, %v; ожидалось %q", got, err, id)
	}

	// Другой ключ не расшифровывает cookie.
	other, _ := NewCookieCodec("other-secret", false, time.Hour)
	if _, err := other.FromRequest(req); err == nil {
		t.Error("ожидалась ошибка дешифрования чужим ключом")
	}

	empty := httptest.NewRequest(http.MethodGet, "/", nil)
	if got, err := codec.FromRequest(empty); got != "" || err != nil {
		t.Errorf("FromRequest() без cookie = %q, %v", got, err)
	}

	clear := httptest.NewRecorder()
	codec.ClearCookie(clear)
	if c := clear.Result().Cookies(); len(c) != 1 || c[0].MaxAge != -1 {
		t.Errorf("ClearCookie() = %+v", c)
	}
}
