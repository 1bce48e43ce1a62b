package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется *pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore — хранилище сессий в таблице console_sessions.
// Схема создаётся миграциями пакета database.
type PostgresStore struct {
	db  DBTX
	ttl time.Duration
}

// NewPostgresStore создаёт хранилище с временем жизни записи ttl.
func NewPostgresStore(db DBTX, ttl time.Duration) *PostgresStore {
	return &PostgresStore{db: db, ttl: ttl}
}

// Load возвращает непросроченную запись.
func (p *PostgresStore) Load(ctx context.Context, key string) (*Credential, error) {
	query := `
		SELECT token, logged_in, role_id, profile, created_at
		FROM console_sessions
		WHERE id = $1 AND expires_at > now()`

	var cred Credential
	var profile []byte
	err := p.db.QueryRow(ctx, query, key).Scan(
		&cred.Token, &cred.LoggedIn, &cred.RoleID, &profile, &cred.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения сессии: %w", err)
	}
	if len(profile) > 0 {
		cred.Profile = profile
	}
	return &cred, nil
}

// Save выполняет upsert записи и продлевает её срок жизни.
func (p *PostgresStore) Save(ctx context.Context, key string, cred *Credential) error {
	query := `
		INSERT INTO console_sessions (id, token, logged_in, role_id, profile, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			token = EXCLUDED.token,
			logged_in = EXCLUDED.logged_in,
			role_id = EXCLUDED.role_id,
			profile = EXCLUDED.profile,
			expires_at = EXCLUDED.expires_at`

	createdAt := cred.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var profile any
	if len(cred.Profile) > 0 {
		profile = string(cred.Profile)
	}

	_, err := p.db.Exec(ctx, query,
		key, cred.Token, cred.LoggedIn, cred.RoleID, profile, createdAt,
		time.Now().Add(p.ttl),
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения сессии: %w", err)
	}
	return nil
}

// Delete удаляет запись.
func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM console_sessions WHERE id = $1`, key); err != nil {
		return fmt.Errorf("ошибка удаления сессии: %w", err)
	}
	return nil
}

// PurgeExpired удаляет просроченные записи и возвращает их количество.
func (p *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM console_sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки просроченных сессий: %w", err)
	}
	return tag.RowsAffected(), nil
}
