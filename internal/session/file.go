package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// FileStore — хранилище сессий CLI в TOML-файле, по таблице на профиль.
// Файл создаётся с правами 0600. Неразбираемый файл считается пустым:
// сессии в нём теряются, следующая запись перезаписывает его целиком.
type FileStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// fileDocument — содержимое файла сессий.
type fileDocument struct {
	Profiles map[string]fileEntry `toml:"profiles"`
}

type fileEntry struct {
	Token     string    `toml:"token"`
	LoggedIn  bool      `toml:"logged_in"`
	RoleID    int       `toml:"role_id"`
	Profile   string    `toml:"profile,omitempty"`
	CreatedAt time.Time `toml:"created_at"`
}

// NewFileStore создаёт хранилище в файле path. Файл может не существовать.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger.With(slog.String("component", "session_file"))}
}

// DefaultFilePath возвращает путь к файлу сессий в каталоге конфигурации пользователя.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("не удалось определить каталог конфигурации: %w", err)
	}
	return filepath.Join(dir, "fleetctl", "session.toml"), nil
}

// Path возвращает путь к файлу.
func (f *FileStore) Path() string {
	return f.path
}

// Load читает запись профиля key.
func (f *FileStore) Load(_ context.Context, key string) (*Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return nil, err
	}
	e, ok := doc.Profiles[key]
	if !ok {
		return nil, ErrNotFound
	}
	cred := &Credential{
		Token:     e.Token,
		LoggedIn:  e.LoggedIn,
		RoleID:    e.RoleID,
		CreatedAt: e.CreatedAt,
	}
	if e.Profile != "" {
		cred.Profile = []byte(e.Profile)
	}
	return cred, nil
}

// Save записывает запись профиля key.
func (f *FileStore) Save(_ context.Context, key string, cred *Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.Profiles[key] = fileEntry{
		Token:     cred.Token,
		LoggedIn:  cred.LoggedIn,
		RoleID:    cred.RoleID,
		Profile:   string(cred.Profile),
		CreatedAt: cred.CreatedAt,
	}
	return f.write(doc)
}

// Delete удаляет запись профиля key.
func (f *FileStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := doc.Profiles[key]; !ok {
		return nil
	}
	delete(doc.Profiles, key)
	return f.write(doc)
}

func (f *FileStore) read() (*fileDocument, error) {
	doc := &fileDocument{Profiles: map[string]fileEntry{}}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return doc, nil
		}
		return nil, fmt.Errorf("ошибка чтения файла сессий: %w", err)
	}
	if err := toml.Unmarshal(data, doc); err != nil {
		f.logger.Warn("Файл сессий повреждён, содержимое отброшено",
			slog.String("path", f.path),
			slog.String("error", err.Error()),
		)
		return &fileDocument{Profiles: map[string]fileEntry{}}, nil
	}
	if doc.Profiles == nil {
		doc.Profiles = map[string]fileEntry{}
	}
	return doc, nil
}

// write атомарно заменяет файл через временный файл в том же каталоге.
func (f *FileStore) write(doc *fileDocument) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("ошибка сериализации файла сессий: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("ошибка создания каталога %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.toml")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // после rename файла уже нет

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("ошибка установки прав: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("ошибка записи файла сессий: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ошибка записи файла сессий: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("ошибка замены файла сессий: %w", err)
	}
	return nil
}
