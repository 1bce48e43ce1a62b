// auth.go — вход, выход и стартовые страницы ролей.
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/bigkaa/fleetdesk/internal/fleetapi"
	"github.com/bigkaa/fleetdesk/internal/session"
	uimiddleware "github.com/bigkaa/fleetdesk/internal/ui/middleware"
	"github.com/bigkaa/fleetdesk/internal/ui/pages"
	"github.com/bigkaa/fleetdesk/internal/ui/workspace"
)

// AuthHandler — обработчики входа и выхода консоли.
type AuthHandler struct {
	api        *fleetapi.Client
	codec      *session.CookieCodec
	workspaces *workspace.Manager
	logger     *slog.Logger
}

// NewAuthHandler создаёт AuthHandler. api — клиент без учётных данных.
func NewAuthHandler(api *fleetapi.Client, codec *session.CookieCodec, workspaces *workspace.Manager, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		api:        api,
		codec:      codec,
		workspaces: workspaces,
		logger:     logger.With(slog.String("component", "ui_auth")),
	}
}

// HandleLoginPage — GET /login.
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, h.logger, http.StatusOK, "Вход", nil, pages.Login(pages.LoginData{}))
}

// HandleLogin — POST /login.
// Токен сохраняется в новой сессии, профиль /users/me кэшируется,
// затем redirect на стартовую страницу роли.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Некорректная форма", http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")

	loginFailed := func(status int, msg string) {
		render(w, r, h.logger, status, "Вход", nil,
			pages.Login(pages.LoginData{Username: username, Error: msg}))
	}
	if username == "" || password == "" {
		loginFailed(http.StatusUnprocessableEntity, "Введите имя пользователя и пароль")
		return
	}

	ctx := r.Context()
	resp, err := h.api.Login(ctx, username, password)
	if err != nil {
		h.logger.Info("Вход отклонён",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		loginFailed(http.StatusUnauthorized, fleetapi.Message(err))
		return
	}

	// Прежняя сессия браузера больше не нужна.
	if oldID, err := h.codec.FromRequest(r); err == nil && oldID != "" {
		h.workspaces.Get(oldID).Session.Invalidate(ctx, session.ReasonLogout)
	}

	id := session.NewID()
	ws := h.workspaces.Get(id)
	if err := ws.Session.Establish(ctx, resp.AccessToken, resp.RoleID, nil); err != nil {
		h.logger.Warn("Backend выдал непригодный токен",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		loginFailed(http.StatusBadGateway, fleetapi.MessageTransport)
		return
	}

	if profile, err := ws.API.Me(ctx); err != nil {
		h.logger.Warn("Не удалось получить профиль пользователя",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
	} else if err := ws.Session.SetProfile(ctx, profile); err != nil {
		h.logger.Warn("Не удалось сохранить профиль", slog.String("error", err.Error()))
	}

	if err := h.codec.SetCookie(w, id); err != nil {
		h.logger.Error("Ошибка записи cookie сессии", slog.String("error", err.Error()))
		loginFailed(http.StatusInternalServerError, fleetapi.MessageTransport)
		return
	}

	h.logger.Info("Пользователь вошёл",
		slog.String("username", username),
		slog.Int("role_id", resp.RoleID),
	)
	http.Redirect(w, r, RouteForRole(resp.RoleID), http.StatusFound)
}

// HandleLogout — POST /logout. Очищает сессию и cookie.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if id, err := h.codec.FromRequest(r); err == nil && id != "" {
		h.workspaces.Get(id).Session.Invalidate(r.Context(), session.ReasonLogout)
	}
	h.codec.ClearCookie(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// LandingHandler — стартовые страницы ролей.
type LandingHandler struct {
	workspaces *workspace.Manager
	logger     *slog.Logger
}

// NewLandingHandler создаёт LandingHandler.
func NewLandingHandler(workspaces *workspace.Manager, logger *slog.Logger) *LandingHandler {
	return &LandingHandler{
		workspaces: workspaces,
		logger:     logger.With(slog.String("component", "ui_landing")),
	}
}

// HandleHome — GET /: redirect на стартовую страницу роли.
func (h *LandingHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	target := RouteForRole(0)
	if ws := uimiddleware.WorkspaceFromContext(r.Context()); ws != nil {
		if cred, err := ws.Session.Credential(r.Context()); err == nil {
			target = RouteForRole(cred.RoleID)
		}
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleLanding — GET /dashboard, /supervisor, /driver, /attendee.
func (h *LandingHandler) HandleLanding(w http.ResponseWriter, r *http.Request) {
	ws := uimiddleware.WorkspaceFromContext(r.Context())
	if ws == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	catalogue := h.workspaces.Catalogue()
	nav := navFor(r.Context(), ws, catalogue)

	data := pages.LandingData{
		Title:    landingTitle(r.URL.Path),
		UserName: nav.UserName,
	}
	if cred, err := ws.Session.Credential(r.Context()); err == nil {
		data.Email = parseProfile(cred.Profile).Email
	}
	data.Resources = nav.Items

	render(w, r, h.logger, http.StatusOK, data.Title, nav, pages.Landing(data))
}
