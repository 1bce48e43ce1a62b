// resources.go — списки ресурсов: загрузка, поиск, пагинация, экспорт
// и действия над строками.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/fleetdesk/internal/config"
	"github.com/bigkaa/fleetdesk/internal/listing"
	"github.com/bigkaa/fleetdesk/internal/resource"
	"github.com/bigkaa/fleetdesk/internal/session"
	uimiddleware "github.com/bigkaa/fleetdesk/internal/ui/middleware"
	"github.com/bigkaa/fleetdesk/internal/ui/pages"
	"github.com/bigkaa/fleetdesk/internal/ui/workspace"
)

const dateLayout = "2006-01-02"

var exportContentTypes = map[string]string{
	"csv":  "text/csv; charset=utf-8",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// ResourcesHandler — страницы ресурсов: список, формы, карточка.
type ResourcesHandler struct {
	codec      *session.CookieCodec
	workspaces *workspace.Manager
	now        func() time.Time
	logger     *slog.Logger
}

// NewResourcesHandler создаёт ResourcesHandler.
func NewResourcesHandler(codec *session.CookieCodec, workspaces *workspace.Manager, logger *slog.Logger) *ResourcesHandler {
	return &ResourcesHandler{
		codec:      codec,
		workspaces: workspaces,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "ui_resources")),
	}
}

// target — рабочая область и загрузчик ресурса из URL запроса.
type target struct {
	ws     *workspace.Workspace
	def    *resource.Definition
	loader *listing.Loader
}

// resolve находит ресурс {kind}. При ошибке ответ уже записан.
// Вызывающий должен освободить рабочую область через ws.Unlock.
func (h *ResourcesHandler) resolve(w http.ResponseWriter, r *http.Request) (*target, bool) {
	ws := uimiddleware.WorkspaceFromContext(r.Context())
	if ws == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return nil, false
	}
	ws.Lock()
	loader, err := ws.Loader(resource.Kind(chi.URLParam(r, "kind")))
	if err != nil {
		ws.Unlock()
		h.notFound(w, r, ws, "Раздел не найден")
		return nil, false
	}
	return &target{ws: ws, def: loader.Definition(), loader: loader}, true
}

func (h *ResourcesHandler) notFound(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, text string) {
	render(w, r, h.logger, http.StatusNotFound, "Не найдено",
		navFor(r.Context(), ws, h.workspaces.Catalogue()),
		pages.Message("Не найдено", text, "/", "На главную"))
}

// ensureLoaded загружает коллекцию, если она ещё не загружалась.
// Ошибка сессии возвращается, прочие остаются в loader.Err.
func (h *ResourcesHandler) ensureLoaded(r *http.Request, t *target) error {
	if t.loader.Loaded() {
		return nil
	}
	err := t.loader.Load(r.Context(), listing.Query{})
	if isSessionError(err) {
		return err
	}
	return nil
}

// parseQuery читает диапазон дат списка. Некорректные даты игнорируются.
func parseQuery(v url.Values) listing.Query {
	var q listing.Query
	if t, err := time.Parse(dateLayout, v.Get("from")); err == nil {
		q.From = t
	}
	if t, err := time.Parse(dateLayout, v.Get("to")); err == nil {
		q.To = t
	}
	return q
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// HandleList — GET /resources/{kind}.
// Параметры: q — поиск, size — размер страницы, page — номер,
// from/to — диапазон дат, reload=1 — повторная загрузка.
func (h *ResourcesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	t, ok := h.resolve(w, r)
	if !ok {
		return
	}
	defer t.ws.Unlock()

	ctx := r.Context()
	params := r.URL.Query()

	var query listing.Query
	if t.def.DateRange {
		query = parseQuery(params)
	}
	last := t.loader.LastQuery()
	reload := !t.loader.Loaded() || params.Get("reload") == "1" ||
		!query.From.Equal(last.From) || !query.To.Equal(last.To)
	if reload {
		if err := t.loader.Load(ctx, query); isSessionError(err) {
			sessionExpired(w, r, h.codec)
			return
		}
	}
	if t.loader.SessionExpired() {
		sessionExpired(w, r, h.codec)
		return
	}

	_ = t.loader.SetSearch(params.Get("q"))
	if size, err := strconv.Atoi(params.Get("size")); err == nil && size != t.loader.Page().Size {
		if err := t.loader.SetPageSize(size); err != nil {
			h.logger.Debug("Размер страницы отклонён", slog.String("error", err.Error()))
		}
	}
	if n, err := strconv.Atoi(params.Get("page")); err == nil {
		_ = t.loader.SetPage(n)
	}

	page := t.loader.Page()
	data := pages.ListData{
		Title:     t.def.Title,
		Singular:  t.def.Singular,
		BasePath:  resourcePath(t.def.Kind),
		Search:    t.loader.Search(),
		Page:      page.Number,
		Pages:     page.TotalPages,
		Total:     page.Total,
		PageSize:  page.Size,
		PageSizes: config.PageSizes,
		DateRange: t.def.DateRange,
		From:      formatDate(query.From),
		To:        formatDate(query.To),
		Error:     t.loader.Err(),
	}
	if a, ok := t.def.Action(params.Get("done")); ok {
		data.Flash = a.Label + ": выполнено"
	}
	for _, c := range t.def.Columns {
		data.Columns = append(data.Columns, c.Label)
	}
	for _, rec := range page.Records {
		id, _ := rec.ID()
		row := pages.Row{ID: id}
		for _, c := range t.def.Columns {
			row.Cells = append(row.Cells, resource.Format(rec[c.Field]))
		}
		for _, a := range t.def.Actions {
			row.Actions = append(row.Actions, pages.RowAction{Name: a.Name, Label: a.Label, Confirm: a.Confirm})
		}
		data.Rows = append(data.Rows, row)
	}

	render(w, r, h.logger, http.StatusOK, t.def.Title,
		navFor(ctx, t.ws, h.workspaces.Catalogue()), pages.ResourceList(data))
}

// HandleExport — GET /resources/{kind}/export.{format}.
// Выгружается отфильтрованная коллекция целиком.
func (h *ResourcesHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	t, ok := h.resolve(w, r)
	if !ok {
		return
	}
	defer t.ws.Unlock()

	format := chi.URLParam(r, "format")
	contentType, known := exportContentTypes[format]
	if !known {
		h.notFound(w, r, t.ws, "Формат экспорта не поддерживается")
		return
	}
	if err := h.ensureLoaded(r, t); err != nil || t.loader.SessionExpired() {
		sessionExpired(w, r, h.codec)
		return
	}
	if q, present := r.URL.Query()["q"]; present && len(q) > 0 {
		_ = t.loader.SetSearch(q[0])
	}

	name, data, err := t.loader.Export(format, h.now())
	if err != nil {
		h.logger.Error("Ошибка экспорта",
			slog.String("resource", string(t.def.Kind)),
			slog.String("format", format),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Не удалось сформировать файл", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleAction — POST /resources/{kind}/{id}/actions/{action}.
// После действия redirect на список; ошибка остаётся в загрузчике.
func (h *ResourcesHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	t, ok := h.resolve(w, r)
	if !ok {
		return
	}
	defer t.ws.Unlock()

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		h.notFound(w, r, t.ws, "Запись не найдена")
		return
	}
	name := chi.URLParam(r, "action")
	if err := h.ensureLoaded(r, t); err != nil {
		sessionExpired(w, r, h.codec)
		return
	}

	listURL := resourcePath(t.def.Kind)
	err = t.loader.Apply(r.Context(), id, name)
	switch {
	case err == nil:
		listURL += "?done=" + url.QueryEscape(name)
	case isSessionError(err):
		sessionExpired(w, r, h.codec)
		return
	case errors.Is(err, listing.ErrUnknownAction), errors.Is(err, listing.ErrRecordNotFound):
		h.notFound(w, r, t.ws, fmt.Sprintf("Действие недоступно: %s", err.Error()))
		return
	default:
		h.logger.Warn("Действие не выполнено",
			slog.String("action", name),
			slog.Int("id", id),
			slog.String("error", err.Error()),
		)
	}
	http.Redirect(w, r, listURL, http.StatusSeeOther)
}
