// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Консоль мониторит:
//   - fleet backend — HTTP checker к FA_API_BASE_URL + FA_API_HEALTH_PATH (critical)
//   - PostgreSQL — SQL checker через pgxpool (только при FA_SESSION_STORE=postgres)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для backend
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// BackendDependency — имя зависимости backend в метриках.
const BackendDependency = "fleet-backend"

// DephealthConfig — параметры мониторинга.
type DephealthConfig struct {
	// ServiceID — имя вершины графа текущего приложения.
	ServiceID string
	// Group — группа в метриках (FA_DEPHEALTH_GROUP).
	Group string
	// BackendURL — базовый URL backend.
	BackendURL string
	// BackendHealthPath — путь проверки относительно BackendURL.
	BackendHealthPath string
	// DB — пул PostgreSQL через stdlib.OpenDBFromPool (nil — без проверки PG).
	DB *sql.DB
	// PGConnURL — URL PostgreSQL для лейблов метрик.
	PGConnURL     string
	CheckInterval time.Duration
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис; метрики регистрируются в
// глобальном Prometheus registry.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(cfg, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(cfg DephealthConfig, logger *slog.Logger, registerer prometheus.Registerer) (*DephealthService, error) {
	return newDephealthService(cfg, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(cfg DephealthConfig, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	backendOpts := []dephealth.DependencyOption{
		dephealth.FromURL(cfg.BackendURL),
		dephealth.WithHTTPHealthPath(backendHealthPath(cfg.BackendURL, cfg.BackendHealthPath)),
		dephealth.CheckInterval(cfg.CheckInterval),
		dephealth.Critical(true),
	}
	if parsed, err := url.Parse(cfg.BackendURL); err == nil && parsed.Scheme == "https" {
		backendOpts = append(backendOpts, dephealth.WithHTTPTLSSkipVerify(false))
	}

	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.HTTP(BackendDependency, backendOpts...),
	}
	if cfg.DB != nil {
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.PGConnURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(false),
		))
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}
	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// backendHealthPath склеивает путь базового URL с путём проверки:
// https://host/api + /docs → /api/docs.
func backendHealthPath(baseURL, healthPath string) string {
	base := ""
	if parsed, err := url.Parse(baseURL); err == nil {
		base = parsed.Path
	}
	p := path.Join("/", base, healthPath)
	if strings.HasSuffix(healthPath, "/") && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — "имя:host:port", значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// CheckReady — readiness backend по последним результатам проверок.
// Пока проверка не выполнялась, статус degraded.
func (ds *DephealthService) CheckReady() (string, string) {
	seen := false
	for key, ok := range ds.Health() {
		if !strings.HasPrefix(key, BackendDependency+":") {
			continue
		}
		seen = true
		if !ok {
			return "fail", "backend недоступен"
		}
	}
	if !seen {
		return "degraded", "проверка backend ещё не выполнена"
	}
	return "ok", ""
}
