// Пакет pages — HTML-страницы консоли как templ-компоненты.
package pages

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// html — построчная запись разметки с экранированием текста.
// Первая ошибка записи сохраняется, последующие вызовы игнорируются.
type html struct {
	w   io.Writer
	err error
}

// raw пишет разметку как есть.
func (h *html) raw(s string) {
	if h.err != nil {
		return
	}
	_, h.err = io.WriteString(h.w, s)
}

// rawf пишет разметку по формату; аргументы экранируются.
func (h *html) rawf(format string, args ...any) {
	escaped := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case string:
			escaped[i] = templ.EscapeString(v)
		case templ.SafeURL:
			escaped[i] = templ.EscapeString(string(v))
		default:
			escaped[i] = v
		}
	}
	h.raw(fmt.Sprintf(format, escaped...))
}

// text пишет экранированный текст.
func (h *html) text(s string) {
	h.raw(templ.EscapeString(s))
}

// child отрисовывает вложенный компонент.
func (h *html) child(ctx context.Context, c templ.Component) {
	if h.err != nil || c == nil {
		return
	}
	h.err = c.Render(ctx, h.w)
}

// component превращает функцию отрисовки в templ.Component.
func component(fn func(ctx context.Context, h *html)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		fn(ctx, h)
		return h.err
	})
}

// href санитизирует ссылку для атрибута href/action.
func href(format string, args ...any) templ.SafeURL {
	return templ.URL(fmt.Sprintf(format, args...))
}
