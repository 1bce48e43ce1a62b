package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var purgedSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "fd_sessions_purged_total",
	Help: "Количество просроченных сессий, удалённых из PostgreSQL.",
})

// ExpiredPurger — хранилище, умеющее удалять просроченные сессии.
// Реализуется *session.PostgresStore.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// SessionPurgeService — периодическая очистка просроченных сессий.
type SessionPurgeService struct {
	store    ExpiredPurger
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSessionPurgeService создаёт сервис очистки с периодом interval.
func NewSessionPurgeService(store ExpiredPurger, interval time.Duration, logger *slog.Logger) *SessionPurgeService {
	return &SessionPurgeService{
		store:    store,
		interval: interval,
		logger:   logger.With(slog.String("component", "session_purge")),
	}
}

// Start запускает фоновую очистку.
func (s *SessionPurgeService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Очистка просроченных сессий запущена",
			slog.String("interval", s.interval.String()),
		)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Очистка просроченных сессий остановлена")
				return
			case <-ticker.C:
				s.PurgeNow(ctx)
			}
		}
	}()
}

// PurgeNow выполняет одну очистку и возвращает число удалённых сессий.
func (s *SessionPurgeService) PurgeNow(ctx context.Context) int64 {
	n, err := s.store.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error("Ошибка очистки сессий", slog.String("error", err.Error()))
		return 0
	}
	if n > 0 {
		purgedSessionsTotal.Add(float64(n))
		s.logger.Info("Просроченные сессии удалены", slog.Int64("count", n))
	}
	return n
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (s *SessionPurgeService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}
