package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// UI — обработчики консоли для монтирования в роутер.
type UI struct {
	Auth      *AuthHandler
	Landing   *LandingHandler
	Resources *ResourcesHandler
	// Guard — middleware проверки сессии защищённых маршрутов.
	Guard func(http.Handler) http.Handler
}

// Mount регистрирует маршруты консоли. /login и /logout публичные,
// остальные проходят через Guard.
func (ui *UI) Mount(r chi.Router) {
	r.Get("/login", ui.Auth.HandleLoginPage)
	r.Post("/login", ui.Auth.HandleLogin)
	r.Post("/logout", ui.Auth.HandleLogout)

	r.Group(func(r chi.Router) {
		r.Use(ui.Guard)

		r.Get("/", ui.Landing.HandleHome)
		for _, path := range LandingPaths() {
			r.Get(path, ui.Landing.HandleLanding)
		}

		res := ui.Resources
		r.Route("/resources/{kind}", func(r chi.Router) {
			r.Get("/", res.HandleList)
			r.Get("/export.{format}", res.HandleExport)
			r.Get("/new", res.HandleForm)
			r.Post("/new", res.HandleFormSubmit)
			r.Get("/{id}", res.HandleDetail)
			r.Get("/{id}/edit", res.HandleForm)
			r.Post("/{id}/edit", res.HandleFormSubmit)
			r.Post("/{id}/actions/{action}", res.HandleAction)
			r.Get("/{id}/documents/{field}", res.HandleDocument)
			r.Get("/{id}/print", res.HandlePrint)
			r.Get("/{id}/print/{page}.png", res.HandlePrintPage)
		})
	})
}
