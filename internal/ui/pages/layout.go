package pages

import (
	"context"

	"github.com/a-h/templ"
)

// NavItem — пункт меню.
type NavItem struct {
	Title string
	Href  string
}

// Nav — шапка страницы для вошедшего пользователя.
type Nav struct {
	UserName string
	Home     string
	Items    []NavItem
}

const styles = `body{font-family:system-ui,sans-serif;margin:0;color:#212529}
header{display:flex;gap:1rem;align-items:center;padding:.75rem 1.5rem;background:#0d6efd}
header a,header button{color:#fff;text-decoration:none;background:none;border:0;font:inherit;cursor:pointer}
main{padding:1.5rem}
table{border-collapse:collapse;width:100%}
th,td{border-bottom:1px solid #dee2e6;padding:.4rem .6rem;text-align:left}
.error{color:#b02a37}.success{color:#146c43}
.field{margin:.5rem 0}.field label{display:block;font-weight:600}
.dialog{max-width:28rem;margin:4rem auto;padding:1.5rem;border:1px solid #dee2e6;border-radius:.5rem}
.steps span{margin-right:.75rem}.steps .current{font-weight:700}
.pager a,.pager span{margin-right:.5rem}`

// Layout — общий каркас страницы. nav равен nil для публичных страниц.
func Layout(title string, nav *Nav, body templ.Component) templ.Component {
	return component(func(ctx context.Context, h *html) {
		h.raw(`<!DOCTYPE html><html lang="ru"><head><meta charset="utf-8">`)
		h.rawf(`<title>%s · Fleet Desk</title>`, title)
		h.raw(`<style>` + styles + `</style></head><body>`)
		if nav != nil {
			h.raw(`<header>`)
			h.rawf(`<a href="%s"><strong>Fleet Desk</strong></a>`, templ.URL(nav.Home))
			for _, it := range nav.Items {
				h.rawf(`<a href="%s">%s</a>`, templ.URL(it.Href), it.Title)
			}
			h.rawf(`<span style="margin-left:auto">%s</span>`, nav.UserName)
			h.raw(`<form method="post" action="/logout"><button type="submit">Выйти</button></form>`)
			h.raw(`</header>`)
		}
		h.raw(`<main>`)
		h.child(ctx, body)
		h.raw(`</main></body></html>`)
	})
}

// Message — страница с одним сообщением и ссылкой.
func Message(title, text, linkHref, linkText string) templ.Component {
	return component(func(ctx context.Context, h *html) {
		h.rawf(`<div class="dialog"><h2>%s</h2><p>%s</p>`, title, text)
		if linkHref != "" {
			h.rawf(`<a href="%s">%s</a>`, templ.URL(linkHref), linkText)
		}
		h.raw(`</div>`)
	})
}
