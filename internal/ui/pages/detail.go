package pages

import (
	"context"

	"github.com/a-h/templ"
)

// DetailItem — строка карточки.
type DetailItem struct {
	Label string
	Value string
	// DocumentHref — ссылка загрузки, если значение — документ.
	DocumentHref string
}

// DetailData — данные карточки записи.
type DetailData struct {
	Title string
	Items []DetailItem
	Back  string
	Edit  string
	Print string
	Error string
}

// Detail — карточка записи.
func Detail(d DetailData) templ.Component {
	return component(func(ctx context.Context, h *html) {
		h.rawf(`<h1>%s</h1>`, d.Title)
		if d.Error != "" {
			h.rawf(`<p class="error" role="alert">%s</p>`, d.Error)
		}
		h.raw(`<table><tbody>`)
		for _, it := range d.Items {
			h.rawf(`<tr><th>%s</th><td>`, it.Label)
			if it.DocumentHref != "" {
				h.rawf(`<a href="%s">Скачать</a>`, templ.URL(it.DocumentHref))
			} else {
				h.text(it.Value)
			}
			h.raw(`</td></tr>`)
		}
		h.raw(`</tbody></table>`)
		h.rawf(`<p><a href="%s">К списку</a> · <a href="%s">Изменить</a> · <a href="%s">Печать</a></p>`,
			templ.URL(d.Back), templ.URL(d.Edit), templ.URL(d.Print))
	})
}

// PrintPreview — страницы печати записи в виде изображений.
func PrintPreview(title string, pageHrefs []string, back string) templ.Component {
	return component(func(ctx context.Context, h *html) {
		h.rawf(`<h1>%s</h1>`, title)
		for i, src := range pageHrefs {
			h.rawf(`<p><a href="%s" download><img src="%s" alt="Страница %d" width="397"></a></p>`,
				templ.URL(src), templ.URL(src), i+1)
		}
		h.rawf(`<p><a href="%s">Назад</a></p>`, templ.URL(back))
	})
}
