package pages

import (
	"context"

	"github.com/a-h/templ"
)

// LoginData — данные страницы входа.
type LoginData struct {
	Username string
	Error    string
}

// Login — форма входа.
func Login(data LoginData) templ.Component {
	return component(func(ctx context.Context, h *html) {
		h.raw(`<div class="dialog"><h2>Вход в Fleet Desk</h2>`)
		if data.Error != "" {
			h.rawf(`<p class="error" role="alert">%s</p>`, data.Error)
		}
		h.raw(`<form method="post" action="/login">`)
		h.rawf(`<div class="field"><label for="username">Имя пользователя</label>`+
			`<input id="username" name="username" value="%s" required autofocus></div>`, data.Username)
		h.raw(`<div class="field"><label for="password">Пароль</label>` +
			`<input id="password" name="password" type="password" required></div>`)
		h.raw(`<button type="submit">Войти</button></form></div>`)
	})
}

// SessionExpired — диалог истёкшей сессии с единственной кнопкой
// перехода ко входу.
func SessionExpired() templ.Component {
	return component(func(ctx context.Context, h *html) {
		h.raw(`<div class="dialog" role="alertdialog" aria-labelledby="expired-title">`)
		h.raw(`<h2 id="expired-title">Сессия истекла</h2>`)
		h.raw(`<p>Срок действия входа закончился. Войдите снова, чтобы продолжить.</p>`)
		h.raw(`<a href="/login"><button type="button">Войти снова</button></a></div>`)
	})
}

// LandingData — данные стартовой страницы роли.
type LandingData struct {
	Title     string
	UserName  string
	Email     string
	Resources []NavItem
}

// Landing — стартовая страница после входа.
func Landing(data LandingData) templ.Component {
	return component(func(ctx context.Context, h *html) {
		h.rawf(`<h1>%s</h1>`, data.Title)
		if data.UserName != "" {
			h.rawf(`<p>Здравствуйте, %s`, data.UserName)
			if data.Email != "" {
				h.rawf(` (%s)`, data.Email)
			}
			h.raw(`</p>`)
		}
		h.raw(`<ul>`)
		for _, it := range data.Resources {
			h.rawf(`<li><a href="%s">%s</a></li>`, templ.URL(it.Href), it.Title)
		}
		h.raw(`</ul>`)
	})
}
