// forms.go — пошаговые формы создания и редактирования записей.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/fleetdesk/internal/fleetapi"
	"github.com/bigkaa/fleetdesk/internal/form"
	"github.com/bigkaa/fleetdesk/internal/resource"
	"github.com/bigkaa/fleetdesk/internal/ui/pages"
)

// maxUploadSize — предел тела multipart-запроса формы.
const maxUploadSize = 32 << 20

// draftKey — ключ черновика: "<kind>/new" или "<kind>/<id>".
func draftKey(kind resource.Kind, id int) string {
	if id == 0 {
		return string(kind) + "/new"
	}
	return fmt.Sprintf("%s/%d", kind, id)
}

// openDraft возвращает черновик формы запроса, создавая его при
// необходимости. Для редактирования запись берётся из загруженного списка.
func (h *ResourcesHandler) openDraft(w http.ResponseWriter, r *http.Request, t *target) (*form.Controller, string, bool) {
	idParam := chi.URLParam(r, "id")
	id := 0
	if idParam != "" {
		var err error
		if id, err = strconv.Atoi(idParam); err != nil || id <= 0 {
			h.notFound(w, r, t.ws, "Запись не найдена")
			return nil, "", false
		}
	}

	key := draftKey(t.def.Kind, id)
	if c, ok := t.ws.Draft(key); ok {
		return c, key, true
	}

	if id == 0 {
		c := form.New(t.def, t.ws.FormOptions()...)
		t.ws.OpenDraft(key, c)
		return c, key, true
	}

	if err := h.ensureLoaded(r, t); err != nil {
		sessionExpired(w, r, h.codec)
		return nil, "", false
	}
	rec, ok := t.loader.Record(id)
	if !ok {
		h.notFound(w, r, t.ws, "Запись не найдена")
		return nil, "", false
	}
	c, err := form.NewEdit(t.def, rec, t.ws.FormOptions()...)
	if err != nil {
		h.notFound(w, r, t.ws, err.Error())
		return nil, "", false
	}
	t.ws.OpenDraft(key, c)
	return c, key, true
}

// HandleForm — GET /resources/{kind}/new и /resources/{kind}/{id}/edit.
func (h *ResourcesHandler) HandleForm(w http.ResponseWriter, r *http.Request) {
	t, ok := h.resolve(w, r)
	if !ok {
		return
	}
	defer t.ws.Unlock()

	c, _, ok := h.openDraft(w, r, t)
	if !ok {
		return
	}
	h.renderForm(w, r, t, c, http.StatusOK, "")
}

// HandleFormSubmit — POST /resources/{kind}/new и /resources/{kind}/{id}/edit.
// Поле op: next, back, jump:<шаг>, submit.
func (h *ResourcesHandler) HandleFormSubmit(w http.ResponseWriter, r *http.Request) {
	t, ok := h.resolve(w, r)
	if !ok {
		return
	}
	defer t.ws.Unlock()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, "Некорректная форма", http.StatusBadRequest)
		return
	}

	c, key, ok := h.openDraft(w, r, t)
	if !ok {
		return
	}

	countChanged, err := h.applyStep(r, c)
	if err != nil {
		h.renderForm(w, r, t, c, http.StatusBadRequest, err.Error())
		return
	}

	op := r.FormValue("op")
	switch {
	case op == "back":
		c.Back()
	case strings.HasPrefix(op, "jump:"):
		i, convErr := strconv.Atoi(strings.TrimPrefix(op, "jump:"))
		if convErr != nil {
			i = -1
		}
		if err := c.JumpTo(i); err != nil {
			h.renderForm(w, r, t, c, http.StatusBadRequest, err.Error())
			return
		}
	case countChanged:
		// Показываем пользователю изменившийся список шин.
	case op == "next":
		if !c.Next() {
			h.renderForm(w, r, t, c, http.StatusUnprocessableEntity, "")
			return
		}
	case op == "submit":
		h.submit(w, r, t, c, key)
		return
	}
	h.renderForm(w, r, t, c, http.StatusOK, "")
}

// applyStep переносит значения текущего шага из запроса в черновик.
// Возвращает true, если изменилось количество шин.
func (h *ResourcesHandler) applyStep(r *http.Request, c *form.Controller) (bool, error) {
	tyres := c.Definition().Form.Tyres
	if tyres != nil {
		for i := range c.ExtraTyres() {
			if v, ok := formValue(r, fmt.Sprintf("%s.%d", tyres.ListField, i)); ok {
				_ = c.SetExtraTyre(i, v)
			}
		}
	}

	countChanged := false
	for _, f := range c.CurrentStep().Fields {
		switch f.Type {
		case resource.FieldFile:
			file, header, err := r.FormFile(f.Name)
			if err != nil {
				continue
			}
			data, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				return false, fmt.Errorf("не удалось прочитать файл %s: %w", header.Filename, err)
			}
			if err := c.Attach(f.Name, header.Filename, data); err != nil {
				return false, err
			}
		case resource.FieldPassword:
			if v, ok := formValue(r, f.Name); ok && v != "" {
				_ = c.Set(f.Name, v)
			}
		default:
			v, ok := formValue(r, f.Name)
			if !ok {
				continue
			}
			if tyres != nil && f.Name == tyres.CountField && v != c.Value(f.Name) {
				countChanged = true
			}
			if err := c.Set(f.Name, v); err != nil {
				return false, err
			}
		}
	}
	return countChanged, nil
}

func formValue(r *http.Request, name string) (string, bool) {
	if r.MultipartForm != nil {
		if vs, ok := r.MultipartForm.Value[name]; ok && len(vs) > 0 {
			return vs[0], true
		}
	}
	if vs, ok := r.PostForm[name]; ok && len(vs) > 0 {
		return vs[0], true
	}
	return "", false
}

// submit отправляет черновик. При успехе черновик закрывается и
// показывается сообщение с переходом к обновлённому списку.
func (h *ResourcesHandler) submit(w http.ResponseWriter, r *http.Request, t *target, c *form.Controller, key string) {
	listRoute := resourcePath(t.def.Kind) + "?reload=1"
	res, err := c.Submit(r.Context(), t.ws.API, listRoute)
	if err == nil {
		t.ws.CloseDraft(key)
		h.logger.Info("Форма отправлена",
			slog.String("resource", string(t.def.Kind)),
			slog.String("draft", key),
		)
		render(w, r, h.logger, http.StatusOK, res.Message,
			navFor(r.Context(), t.ws, h.workspaces.Catalogue()),
			pages.FormSuccess(res.Message, res.RedirectTo, res.After.Seconds()))
		return
	}

	var apiErr *fleetapi.Error
	switch {
	case isSessionError(err):
		sessionExpired(w, r, h.codec)
	case errors.Is(err, form.ErrInvalidDraft), errors.Is(err, form.ErrNotTerminalStep):
		h.renderForm(w, r, t, c, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &apiErr) && apiErr.Kind == fleetapi.KindValidation:
		h.renderForm(w, r, t, c, http.StatusUnprocessableEntity, fleetapi.Message(err))
	default:
		h.logger.Warn("Ошибка отправки формы",
			slog.String("resource", string(t.def.Kind)),
			slog.String("error", err.Error()),
		)
		h.renderForm(w, r, t, c, http.StatusBadGateway, fleetapi.Message(err))
	}
}

// renderForm показывает текущий шаг черновика.
func (h *ResourcesHandler) renderForm(w http.ResponseWriter, r *http.Request, t *target, c *form.Controller, status int, errMsg string) {
	base := resourcePath(t.def.Kind)
	data := pages.FormData{
		Action:   base + "/new",
		Cancel:   base,
		Current:  c.Step(),
		Terminal: c.IsTerminal(),
		Error:    errMsg,
	}
	if c.IsEdit() {
		data.Title = fmt.Sprintf("Изменение: %s #%d", t.def.Singular, c.EditID())
		data.Action = fmt.Sprintf("%s/%d/edit", base, c.EditID())
	} else {
		data.Title = "Новая запись: " + t.def.Singular
	}
	for _, st := range t.def.Form.Steps {
		data.Steps = append(data.Steps, st.Title)
	}

	tyres := t.def.Form.Tyres
	showTyres := false
	for _, f := range c.CurrentStep().Fields {
		data.Fields = append(data.Fields, pages.FormField{
			Name:     f.Name,
			Label:    f.Label,
			Type:     string(f.Type),
			Value:    c.Value(f.Name),
			Error:    c.Error(f.Name),
			Required: f.Required,
			Options:  f.Options,
			Stored:   c.Stored(f.Name),
			Attached: c.Attached(f.Name),
		})
		if tyres != nil && f.Name == tyres.CountField {
			showTyres = true
		}
	}
	if showTyres {
		data.ExtraTyres = c.ExtraTyres()
		data.ExtraTyreField = tyres.ListField
		data.TyreBase = tyres.Base
		data.TyreOptions = tyres.StatusOptions
	}

	render(w, r, h.logger, status, data.Title,
		navFor(r.Context(), t.ws, h.workspaces.Catalogue()), pages.Form(data))
}
