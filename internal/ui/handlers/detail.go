// detail.go — карточка записи, загрузка документов и печать.
package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/fleetdesk/internal/detail"
	"github.com/bigkaa/fleetdesk/internal/resource"
	"github.com/bigkaa/fleetdesk/internal/ui/pages"
)

// record находит запись {id} в загруженном списке ресурса.
// При ошибке ответ уже записан.
func (h *ResourcesHandler) record(w http.ResponseWriter, r *http.Request, t *target) (int, resource.Record, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		h.notFound(w, r, t.ws, "Запись не найдена")
		return 0, nil, false
	}
	if err := h.ensureLoaded(r, t); err != nil || t.loader.SessionExpired() {
		sessionExpired(w, r, h.codec)
		return 0, nil, false
	}
	rec, ok := t.loader.Record(id)
	if !ok {
		h.notFound(w, r, t.ws, fmt.Sprintf("Запись #%d не найдена", id))
		return 0, nil, false
	}
	return id, rec, true
}

// HandleDetail — GET /resources/{kind}/{id}.
func (h *ResourcesHandler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	t, ok := h.resolve(w, r)
	if !ok {
		return
	}
	defer t.ws.Unlock()

	id, rec, ok := h.record(w, r, t)
	if !ok {
		return
	}
	base := fmt.Sprintf("%s/%d", resourcePath(t.def.Kind), id)

	data := pages.DetailData{
		Title: fmt.Sprintf("%s #%d", t.def.Singular, id),
		Back:  resourcePath(t.def.Kind),
		Edit:  base + "/edit",
		Print: base + "/print",
	}
	for _, it := range detail.Visible(rec, t.def) {
		item := pages.DetailItem{Label: it.Label, Value: it.Value}
		if it.Document {
			item.DocumentHref = base + "/documents/" + it.Field
		}
		data.Items = append(data.Items, item)
	}

	render(w, r, h.logger, http.StatusOK, data.Title,
		navFor(r.Context(), t.ws, h.workspaces.Catalogue()), pages.Detail(data))
}

// HandleDocument — GET /resources/{kind}/{id}/documents/{field}.
// Файл проксируется с backend; при ошибке загрузки браузер
// перенаправляется на исходный URL документа.
func (h *ResourcesHandler) HandleDocument(w http.ResponseWriter, r *http.Request) {
	t, ok := h.resolve(w, r)
	if !ok {
		return
	}
	defer t.ws.Unlock()

	_, rec, ok := h.record(w, r, t)
	if !ok {
		return
	}
	field := chi.URLParam(r, "field")
	raw, _ := rec[field].(string)
	if !t.def.IsDocument(field) || resource.IsBlank(raw) {
		h.notFound(w, r, t.ws, "Документ не загружен")
		return
	}

	dl, fallback, err := detail.NewDownloader(t.ws.API, h.logger).Open(r.Context(), raw)
	switch {
	case isSessionError(err):
		sessionExpired(w, r, h.codec)
		return
	case fallback != "":
		http.Redirect(w, r, fallback, http.StatusFound)
		return
	case err != nil:
		http.Error(w, "Не удалось загрузить документ", http.StatusBadGateway)
		return
	}
	defer dl.Body.Close()

	contentType := dl.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, dl.Body); err != nil {
		h.logger.Warn("Передача документа прервана",
			slog.String("field", field),
			slog.String("error", err.Error()),
		)
	}
}

// HandlePrint — GET /resources/{kind}/{id}/print: предпросмотр страниц.
func (h *ResourcesHandler) HandlePrint(w http.ResponseWriter, r *http.Request) {
	t, ok := h.resolve(w, r)
	if !ok {
		return
	}
	defer t.ws.Unlock()

	id, rec, ok := h.record(w, r, t)
	if !ok {
		return
	}
	base := fmt.Sprintf("%s/%d", resourcePath(t.def.Kind), id)
	n := len(detail.Pages(printTitle(t.def, id), detail.Visible(rec, t.def), detail.A4))

	hrefs := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		hrefs = append(hrefs, fmt.Sprintf("%s/print/%d.png", base, i))
	}
	title := fmt.Sprintf("Печать: %s #%d", t.def.Singular, id)
	render(w, r, h.logger, http.StatusOK, title,
		navFor(r.Context(), t.ws, h.workspaces.Catalogue()), pages.PrintPreview(title, hrefs, base))
}

// HandlePrintPage — GET /resources/{kind}/{id}/print/{page}.png.
func (h *ResourcesHandler) HandlePrintPage(w http.ResponseWriter, r *http.Request) {
	t, ok := h.resolve(w, r)
	if !ok {
		return
	}
	defer t.ws.Unlock()

	id, rec, ok := h.record(w, r, t)
	if !ok {
		return
	}
	pageNum, err := strconv.Atoi(chi.URLParam(r, "page"))
	printed := detail.Pages(printTitle(t.def, id), detail.Visible(rec, t.def), detail.A4)
	if err != nil || pageNum < 1 || pageNum > len(printed) {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{
		"filename": fmt.Sprintf("%s-%d-%d.png", t.def.Kind, id, pageNum),
	}))
	if err := detail.EncodePNG(w, printed[pageNum-1]); err != nil {
		h.logger.Error("Ошибка кодирования страницы печати",
			slog.Int("id", id),
			slog.Int("page", pageNum),
			slog.String("error", err.Error()),
		)
	}
}

// printTitle — заголовок печатной страницы латиницей: шрифт печати
// не содержит кириллицы.
func printTitle(def *resource.Definition, id int) string {
	return fmt.Sprintf("%s #%d", def.Kind, id)
}
