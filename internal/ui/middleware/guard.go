// Пакет middleware — HTTP middleware консоли.
// guard.go — проверка сессии на входе в каждый защищённый маршрут.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	apimiddleware "github.com/bigkaa/fleetdesk/internal/api/middleware"
	"github.com/bigkaa/fleetdesk/internal/session"
	"github.com/bigkaa/fleetdesk/internal/ui/pages"
	"github.com/bigkaa/fleetdesk/internal/ui/workspace"
)

// contextKey — тип для ключей контекста консоли.
type contextKey string

const (
	contextKeyWorkspace contextKey = "workspace"
	contextKeyVerdict   contextKey = "verdict"
	contextKeySessionID contextKey = "session_id"
)

// Guard — проверка сессии консоли. Идентификатор сессии берётся из
// зашифрованного cookie, учётные данные из хранилища сессий.
type Guard struct {
	codec      *session.CookieCodec
	workspaces *workspace.Manager
	logger     *slog.Logger
}

// NewGuard создаёт Guard.
func NewGuard(codec *session.CookieCodec, workspaces *workspace.Manager, logger *slog.Logger) *Guard {
	return &Guard{
		codec:      codec,
		workspaces: workspaces,
		logger:     logger.With(slog.String("component", "ui_guard")),
	}
}

// Middleware возвращает middleware проверки сессии.
// Нет сессии — redirect на /login. Истёкшая, повреждённая или
// отклонённая backend сессия очищается, и показывается диалог
// «Сессия истекла» со статусом 401.
func (g *Guard) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := g.codec.FromRequest(r)
			if err != nil {
				g.logger.Debug("Повреждённый cookie сессии",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				g.codec.ClearCookie(w)
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			if id == "" {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}

			ws := g.workspaces.Get(id)
			verdict := ws.Session.Guard(r.Context())
			apimiddleware.TraceSession(r.Context(), id, string(verdict.Reason))
			if !verdict.Valid {
				g.codec.ClearCookie(w)
				if verdict.Reason == session.ReasonAbsent {
					http.Redirect(w, r, "/login", http.StatusFound)
					return
				}
				g.logger.Info("Сессия недействительна",
					slog.String("reason", string(verdict.Reason)),
				)
				RenderSessionExpired(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyWorkspace, ws)
			ctx = context.WithValue(ctx, contextKeyVerdict, verdict)
			ctx = context.WithValue(ctx, contextKeySessionID, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RenderSessionExpired отвечает 401 с диалогом истёкшей сессии.
func RenderSessionExpired(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = pages.Layout("Сессия истекла", nil, pages.SessionExpired()).Render(r.Context(), w)
}

// WorkspaceFromContext возвращает рабочую область проверенной сессии.
func WorkspaceFromContext(ctx context.Context) *workspace.Workspace {
	ws, _ := ctx.Value(contextKeyWorkspace).(*workspace.Workspace)
	return ws
}

// VerdictFromContext возвращает результат проверки сессии.
func VerdictFromContext(ctx context.Context) session.Verdict {
	v, _ := ctx.Value(contextKeyVerdict).(session.Verdict)
	return v
}

// SessionIDFromContext возвращает идентификатор сессии.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeySessionID).(string)
	return id
}
