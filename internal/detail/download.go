package detail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bigkaa/fleetdesk/internal/fleetapi"
)

// Fetcher — загрузка файла с backend. Реализуется *fleetapi.Client.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fleetapi.Download, error)
	ResolveURL(raw string) string
}

// Outcome — итог загрузки документа. Заполнено ровно одно поле:
// SavedPath при успехе или FallbackURL, если файл надо открыть
// по удалённой ссылке.
type Outcome struct {
	SavedPath   string
	FallbackURL string
}

// Downloader загружает документы записей.
type Downloader struct {
	api    Fetcher
	logger *slog.Logger
}

// NewDownloader создаёт Downloader.
func NewDownloader(api Fetcher, logger *slog.Logger) *Downloader {
	return &Downloader{
		api:    api,
		logger: logger.With(slog.String("component", "downloader")),
	}
}

// Open начинает загрузку документа. При ошибке backend или сети
// возвращает ссылку для открытия напрямую; ошибка сессии
// возвращается как есть. Вызывающий закрывает Body.
func (d *Downloader) Open(ctx context.Context, rawURL string) (*fleetapi.Download, string, error) {
	dl, err := d.api.Fetch(ctx, rawURL)
	if err == nil {
		return dl, "", nil
	}
	if errors.Is(err, fleetapi.ErrSession) {
		return nil, "", err
	}
	fallback := d.api.ResolveURL(rawURL)
	d.logger.Warn("Загрузка документа не удалась, открываем по ссылке",
		slog.String("url", fallback),
		slog.String("error", err.Error()),
	)
	return nil, fallback, nil
}

// Download сохраняет документ в каталог dir под именем, предложенным
// сервером или взятым из URL.
func (d *Downloader) Download(ctx context.Context, rawURL, dir string) (Outcome, error) {
	dl, fallback, err := d.Open(ctx, rawURL)
	if err != nil {
		return Outcome{}, err
	}
	if dl == nil {
		return Outcome{FallbackURL: fallback}, nil
	}
	defer dl.Body.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Outcome{}, fmt.Errorf("создание каталога %s: %w", dir, err)
	}
	name := filepath.Base(dl.Filename)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		name = "download"
	}
	target := filepath.Join(dir, name)
	f, err := os.Create(target)
	if err != nil {
		return Outcome{}, fmt.Errorf("создание файла %s: %w", target, err)
	}
	if _, err := io.Copy(f, dl.Body); err != nil {
		f.Close()
		os.Remove(target)
		return Outcome{FallbackURL: d.api.ResolveURL(rawURL)}, nil
	}
	if err := f.Close(); err != nil {
		return Outcome{}, fmt.Errorf("закрытие файла %s: %w", target, err)
	}

	d.logger.Debug("Документ сохранён", slog.String("path", target))
	return Outcome{SavedPath: target}, nil
}
