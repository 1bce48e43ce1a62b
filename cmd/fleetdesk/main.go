// Точка входа Fleet Desk — веб-консоль администратора автопарка.
// Загружает конфигурацию, выбирает хранилище сессий (memory, Redis
// или PostgreSQL), создаёт клиент REST backend и рабочие области
// сессий, запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/fleetdesk/internal/api/handlers"
	"github.com/bigkaa/fleetdesk/internal/config"
	"github.com/bigkaa/fleetdesk/internal/database"
	"github.com/bigkaa/fleetdesk/internal/fleetapi"
	"github.com/bigkaa/fleetdesk/internal/resource"
	"github.com/bigkaa/fleetdesk/internal/server"
	"github.com/bigkaa/fleetdesk/internal/service"
	"github.com/bigkaa/fleetdesk/internal/session"
	uihandlers "github.com/bigkaa/fleetdesk/internal/ui/handlers"
	uimiddleware "github.com/bigkaa/fleetdesk/internal/ui/middleware"
	"github.com/bigkaa/fleetdesk/internal/ui/workspace"
)

func main() {
	// 1. Конфигурация и логирование
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("Fleet Desk запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("api", cfg.APIBaseURL),
		slog.String("session_store", cfg.SessionStore),
	)

	ctx := context.Background()
	var checks []handlers.NamedChecker

	// 2. Хранилище сессий
	var store session.Store
	var pgDB *sql.DB
	var purgeSvc *service.SessionPurgeService

	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		client, err := session.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Error("Ошибка подключения к Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer client.Close()
		redisStore := session.NewRedisStore(client, cfg.SessionTTL)
		store = redisStore
		checks = append(checks, handlers.NamedChecker{Name: "redis", Checker: redisStore})

	case config.SessionStorePostgres:
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		// Проверка PostgreSQL в topologymetrics идёт через тот же пул.
		pgDB = stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		pgStore := session.NewPostgresStore(pool, cfg.SessionTTL)
		store = pgStore
		checks = append(checks, handlers.NamedChecker{Name: "postgresql", Checker: database.NewReadinessChecker(pool)})

		purgeSvc = service.NewSessionPurgeService(pgStore, cfg.SessionPurgeInterval, logger)
		purgeSvc.Start(ctx)
		defer purgeSvc.Stop()

	default:
		store = session.NewMemoryStore(cfg.SessionCacheSize, cfg.SessionTTL)
	}

	// 3. Клиент REST backend
	api, err := fleetapi.New(cfg.APIBaseURL, cfg.APITimeout, cfg.CACertPath, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента backend", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.CACertPath != "" {
		logger.Info("CA-сертификат загружен", slog.String("path", cfg.CACertPath))
	}

	// 4. Cookie и рабочие области сессий
	secureCookie := strings.HasPrefix(cfg.APIBaseURL, "https")
	codec, err := session.NewCookieCodec(cfg.SessionSecret, secureCookie, cfg.SessionTTL)
	if err != nil {
		logger.Error("Ошибка создания кодека cookie", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.SessionSecret == "" {
		logger.Warn("FA_SESSION_SECRET не задан, сессии не сохраняются между рестартами")
	}

	workspaces := workspace.NewManager(store, api, resource.Default(), workspace.Config{
		Size:          cfg.SessionCacheSize,
		TTL:           cfg.SessionTTL,
		PageSize:      cfg.DefaultPageSize,
		RedirectDelay: cfg.SuccessRedirectDelay,
	}, logger)

	// 5. topologymetrics — мониторинг backend (и PostgreSQL, если используется)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:         "fleetdesk",
		Group:             cfg.DephealthGroup,
		BackendURL:        cfg.APIBaseURL,
		BackendHealthPath: cfg.APIHealthPath,
		DB:                pgDB,
		PGConnURL:         pgConnURL(cfg),
		CheckInterval:     cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		checks = append(checks, handlers.NamedChecker{Name: "backend"})
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
		defer dephealthSvc.Stop()
		checks = append(checks, handlers.NamedChecker{Name: "backend", Checker: dephealthSvc})
	}

	// 6. HTTP-сервер
	ui := &uihandlers.UI{
		Auth:      uihandlers.NewAuthHandler(api, codec, workspaces, logger),
		Landing:   uihandlers.NewLandingHandler(workspaces, logger),
		Resources: uihandlers.NewResourcesHandler(codec, workspaces, logger),
		Guard:     uimiddleware.NewGuard(codec, workspaces, logger).Middleware(),
	}
	srv := server.New(cfg, logger, handlers.NewHealthHandler(checks...), ui)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Fleet Desk остановлен")
}

// pgConnURL возвращает URL PostgreSQL для лейблов метрик или "".
func pgConnURL(cfg *config.Config) string {
	if cfg.SessionStore != config.SessionStorePostgres {
		return ""
	}
	return cfg.DatabaseURL()
}
