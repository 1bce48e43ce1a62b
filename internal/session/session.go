package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var invalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fd_session_invalidations_total",
	Help: "Количество принудительно очищенных сессий по причинам.",
}, []string{"reason"})

// InvalidateHook вызывается после очистки слота сессии.
type InvalidateHook func(ctx context.Context, reason Reason)

// Session — явный объект сессии, передаваемый каждому защищённому
// обработчику вместо чтения общего хранилища.
type Session struct {
	store  Store
	key    string
	now    func() time.Time
	logger *slog.Logger
	hooks  []InvalidateHook
}

// Option — параметр конструктора Session.
type Option func(*Session)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger задаёт логгер сессии.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// OnInvalidate добавляет обработчик очистки сессии.
func OnInvalidate(hook InvalidateHook) Option {
	return func(s *Session) { s.hooks = append(s.hooks, hook) }
}

// New создаёт сессию, привязанную к ключу key в хранилище store.
func New(store Store, key string, opts ...Option) *Session {
	s := &Session{
		store:  store,
		key:    key,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key возвращает ключ сессии в хранилище.
func (s *Session) Key() string {
	return s.key
}

// Guard загружает учётные данные и проверяет токен.
// Недействительная сессия (включая повреждённую) очищается целиком,
// действительная не трогает хранилище.
func (s *Session) Guard(ctx context.Context) Verdict {
	v, _ := s.guard(ctx)
	return v
}

func (s *Session) guard(ctx context.Context) (Verdict, *Credential) {
	cred, err := s.store.Load(ctx, s.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("Ошибка чтения сессии, считаем её отсутствующей",
				slog.String("error", err.Error()),
			)
		}
		return Verdict{Reason: ReasonAbsent}, nil
	}

	var v Verdict
	if !cred.LoggedIn {
		v = Verdict{Reason: ReasonAbsent}
	} else {
		v = Check(cred.Token, s.now())
	}
	if v.Valid {
		return v, cred
	}

	s.clear(ctx, v.Reason)
	return v, nil
}

// Invalidate очищает слот сессии и вызывает обработчики.
// Используется при ответе backend 401 и явном выходе.
func (s *Session) Invalidate(ctx context.Context, reason Reason) {
	s.clear(ctx, reason)
}

func (s *Session) clear(ctx context.Context, reason Reason) {
	if err := s.store.Delete(ctx, s.key); err != nil {
		s.logger.Warn("Ошибка удаления сессии",
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()),
		)
	}
	invalidationsTotal.WithLabelValues(string(reason)).Inc()
	s.logger.Debug("Сессия очищена", slog.String("reason", string(reason)))
	for _, hook := range s.hooks {
		hook(ctx, reason)
	}
}

// Establish сохраняет учётные данные после успешного входа.
// Токен, не прошедший проверку, не сохраняется.
func (s *Session) Establish(ctx context.Context, token string, roleID int, profile json.RawMessage) error {
	if v := Check(token, s.now()); !v.Valid {
		return fmt.Errorf("%w: %s", ErrSessionInvalid, v.Reason)
	}
	cred := &Credential{
		Token:     token,
		LoggedIn:  true,
		RoleID:    roleID,
		Profile:   profile,
		CreatedAt: s.now(),
	}
	if err := s.store.Save(ctx, s.key, cred); err != nil {
		return fmt.Errorf("ошибка сохранения сессии: %w", err)
	}
	return nil
}

// SetProfile обновляет кэшированный профиль пользователя.
func (s *Session) SetProfile(ctx context.Context, profile json.RawMessage) error {
	v, cred := s.guard(ctx)
	if !v.Valid {
		return fmt.Errorf("%w: %s", ErrSessionInvalid, v.Reason)
	}
	cred.Profile = profile
	if err := s.store.Save(ctx, s.key, cred); err != nil {
		return fmt.Errorf("ошибка сохранения профиля: %w", err)
	}
	return nil
}

// Credential возвращает учётные данные действительной сессии.
func (s *Session) Credential(ctx context.Context) (*Credential, error) {
	v, cred := s.guard(ctx)
	if !v.Valid {
		return nil, fmt.Errorf("%w: %s", ErrSessionInvalid, v.Reason)
	}
	return cred, nil
}

// Token — TokenProvider для клиента backend. Просроченный токен
// не отправляется в сеть: возвращается ErrSessionInvalid.
func (s *Session) Token(ctx context.Context) (string, error) {
	cred, err := s.Credential(ctx)
	if err != nil {
		return "", err
	}
	return cred.Token, nil
}
