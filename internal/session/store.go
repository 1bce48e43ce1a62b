package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound — в хранилище нет записи для ключа.
var ErrNotFound = errors.New("сессия не найдена")

// ErrSessionInvalid — сессия отсутствует, просрочена или повреждена.
var ErrSessionInvalid = errors.New("сессия недействительна")

// Credential — содержимое «слота» локального хранилища:
// токен, флаг входа, роль и кэшированный профиль пользователя.
// Все поля создаются и удаляются вместе.
type Credential struct {
	Token     string          `json:"token"`
	LoggedIn  bool            `json:"logged_in"`
	RoleID    int             `json:"role_id"`
	Profile   json.RawMessage `json:"profile,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store — хранилище учётных данных по ключу сессии.
// Реализации безопасны для конкурентного использования.
type Store interface {
	// Load возвращает запись или ErrNotFound.
	Load(ctx context.Context, key string) (*Credential, error)
	// Save создаёт или перезаписывает запись.
	Save(ctx context.Context, key string, cred *Credential) error
	// Delete удаляет запись; отсутствие записи не ошибка.
	Delete(ctx context.Context, key string) error
}
