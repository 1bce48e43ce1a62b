// Пакет handlers — HTTP-обработчики консоли Fleet Desk: вход и выход,
// стартовые страницы ролей, списки ресурсов, формы и карточки записей.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/bigkaa/fleetdesk/internal/fleetapi"
	"github.com/bigkaa/fleetdesk/internal/resource"
	"github.com/bigkaa/fleetdesk/internal/session"
	uimiddleware "github.com/bigkaa/fleetdesk/internal/ui/middleware"
	"github.com/bigkaa/fleetdesk/internal/ui/pages"
	"github.com/bigkaa/fleetdesk/internal/ui/workspace"
)

// Роли backend.
const (
	RoleAdmin      = 1
	RoleSupervisor = 2
	RoleDriver     = 3
	RoleAttendee   = 4
)

// landing — стартовая страница роли.
type landing struct {
	Path  string
	Title string
}

var landings = map[int]landing{
	RoleAdmin:      {"/dashboard", "Панель администратора"},
	RoleSupervisor: {"/supervisor", "Кабинет супервайзера"},
	RoleDriver:     {"/driver", "Кабинет водителя"},
	RoleAttendee:   {"/attendee", "Кабинет сопровождающего"},
}

// RouteForRole возвращает стартовый маршрут роли. Неизвестные роли
// попадают на панель администратора.
func RouteForRole(roleID int) string {
	if l, ok := landings[roleID]; ok {
		return l.Path
	}
	return landings[RoleAdmin].Path
}

// LandingPaths возвращает маршруты всех стартовых страниц.
func LandingPaths() []string {
	return []string{"/dashboard", "/supervisor", "/driver", "/attendee"}
}

func landingTitle(path string) string {
	for _, l := range landings {
		if l.Path == path {
			return l.Title
		}
	}
	return landings[RoleAdmin].Title
}

// profile — поля профиля /users/me, нужные для отображения.
type profile struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func parseProfile(raw json.RawMessage) profile {
	var p profile
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &p)
	}
	if p.Name == "" {
		p.Name = p.Username
	}
	return p
}

// navFor строит шапку для сессии рабочей области.
func navFor(ctx context.Context, ws *workspace.Workspace, catalogue *resource.Catalogue) *pages.Nav {
	nav := &pages.Nav{Home: landings[RoleAdmin].Path}
	if cred, err := ws.Session.Credential(ctx); err == nil {
		nav.Home = RouteForRole(cred.RoleID)
		nav.UserName = parseProfile(cred.Profile).Name
	}
	for _, def := range catalogue.All() {
		nav.Items = append(nav.Items, pages.NavItem{Title: def.Title, Href: resourcePath(def.Kind)})
	}
	return nav
}

func resourcePath(kind resource.Kind) string {
	return "/resources/" + string(kind)
}

// render отвечает HTML-страницей в общем каркасе.
func render(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, title string, nav *pages.Nav, body templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.Layout(title, nav, body).Render(r.Context(), w); err != nil {
		logger.Error("Ошибка рендеринга страницы",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
	}
}

// sessionExpired очищает cookie и показывает диалог истёкшей сессии.
func sessionExpired(w http.ResponseWriter, r *http.Request, codec *session.CookieCodec) {
	codec.ClearCookie(w)
	uimiddleware.RenderSessionExpired(w, r)
}

// isSessionError сообщает, что ошибка означает конец сессии.
func isSessionError(err error) bool {
	return errors.Is(err, fleetapi.ErrSession) || errors.Is(err, session.ErrSessionInvalid)
}
