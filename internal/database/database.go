// Пакет database — PostgreSQL для хранилища сессий консоли
// (FA_SESSION_STORE=postgres): пул pgxpool, схема console_sessions
// через golang-migrate и проверка готовности для /health/ready.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/fleetdesk/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SessionsTable — таблица сессий, создаваемая миграциями.
const SessionsTable = "console_sessions"

// applicationName видна в pg_stat_activity.
const applicationName = "fleetdesk-sessions"

// Пул обслуживает только короткие запросы сессий.
const (
	maxConns        = 8
	maxConnIdleTime = 5 * time.Minute
	readyTimeout    = 3 * time.Second
)

// Connect создаёт пул подключений хранилища сессий и проверяет его ping.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolCfg.MaxConns = maxConns
	poolCfg.MaxConnIdleTime = maxConnIdleTime
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("хранилище сессий PostgreSQL недоступно: %w", err)
	}

	logger.Info("Хранилище сессий подключено к PostgreSQL",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return pool, nil
}

// migrationURL — URL базы для golang-migrate, который регистрирует
// драйвер pgx/v5 под схемой pgx5.
func migrationURL(cfg *config.Config) (string, error) {
	u, err := url.Parse(cfg.DatabaseURL())
	if err != nil {
		return "", fmt.Errorf("ошибка разбора URL базы: %w", err)
	}
	u.Scheme = "pgx5"
	return u.String(), nil
}

// Migrate приводит схему console_sessions к последней версии.
// Повторный запуск без новых миграций не считается ошибкой.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}
	dbURL, err := migrationURL(cfg)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций %s: %w", SessionsTable, err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Схема хранилища сессий актуальна",
		slog.String("table", SessionsTable),
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// ReadinessChecker — готовность хранилища сессий: база отвечает
// и таблица сессий существует.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

// NewReadinessChecker создаёт проверку готовности хранилища сессий.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

// CheckReady возвращает "ok" с числом живых сессий либо "fail".
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	var present bool
	if err := c.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, SessionsTable).Scan(&present); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	if !present {
		return "fail", fmt.Sprintf("таблица %s отсутствует, миграции не применены", SessionsTable)
	}

	var live int64
	if err := c.pool.QueryRow(ctx,
		`SELECT count(*) FROM `+SessionsTable+` WHERE expires_at > now()`).Scan(&live); err != nil {
		return "fail", fmt.Sprintf("ошибка чтения %s: %v", SessionsTable, err)
	}
	return "ok", fmt.Sprintf("активных сессий: %d", live)
}
