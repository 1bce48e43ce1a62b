package pages

import (
	"context"
	"net/url"
	"strconv"

	"github.com/a-h/templ"
)

// RowAction — кнопка действия в строке.
type RowAction struct {
	Name    string
	Label   string
	Confirm string
}

// Row — строка таблицы списка.
type Row struct {
	ID      int
	Cells   []string
	Actions []RowAction
}

// ListData — данные страницы списка ресурса.
type ListData struct {
	Title    string
	Singular string
	// BasePath — /resources/<kind>.
	BasePath  string
	Columns   []string
	Rows      []Row
	Search    string
	Page      int
	Pages     int
	Total     int
	PageSize  int
	PageSizes []int
	DateRange bool
	From      string
	To        string
	Error     string
	Flash     string
}

func (d ListData) query(page, size int) string {
	q := url.Values{}
	if d.Search != "" {
		q.Set("q", d.Search)
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	return q.Encode()
}

// ResourceList — таблица ресурса с поиском, пагинацией, экспортом и действиями.
func ResourceList(d ListData) templ.Component {
	return component(func(ctx context.Context, h *html) {
		h.rawf(`<h1>%s</h1>`, d.Title)
		if d.Flash != "" {
			h.rawf(`<p class="success" role="status">%s</p>`, d.Flash)
		}
		if d.Error != "" {
			h.rawf(`<p class="error" role="alert">%s</p>`, d.Error)
		}

		h.rawf(`<form method="get" action="%s">`, templ.URL(d.BasePath))
		h.rawf(`<input type="search" name="q" value="%s" placeholder="Поиск">`, d.Search)
		h.raw(`<select name="size">`)
		for _, n := range d.PageSizes {
			sel := ""
			if n == d.PageSize {
				sel = " selected"
			}
			h.rawf(`<option value="%d"%s>%d</option>`, n, sel, n)
		}
		h.raw(`</select>`)
		if d.DateRange {
			h.rawf(` с <input type="date" name="from" value="%s"> по <input type="date" name="to" value="%s">`, d.From, d.To)
		}
		h.raw(` <button type="submit">Найти</button>`)
		h.raw(` <button type="submit" name="reload" value="1">Обновить</button></form>`)

		exportQuery := ""
		if d.Search != "" {
			exportQuery = "?" + url.Values{"q": {d.Search}}.Encode()
		}
		h.rawf(`<p><a href="%s">Добавить: %s</a> · `, href("%s/new", d.BasePath), d.Singular)
		h.rawf(`<a href="%s">CSV</a> · `, href("%s/export.csv%s", d.BasePath, exportQuery))
		h.rawf(`<a href="%s">XLSX</a></p>`, href("%s/export.xlsx%s", d.BasePath, exportQuery))

		if len(d.Rows) == 0 {
			h.raw(`<p>Записей нет</p>`)
		} else {
			h.raw(`<table><thead><tr>`)
			for _, c := range d.Columns {
				h.rawf(`<th>%s</th>`, c)
			}
			h.raw(`<th></th></tr></thead><tbody>`)
			for _, r := range d.Rows {
				h.raw(`<tr>`)
				for _, cell := range r.Cells {
					h.rawf(`<td>%s</td>`, cell)
				}
				h.raw(`<td>`)
				h.rawf(`<a href="%s">Открыть</a> `, href("%s/%d", d.BasePath, r.ID))
				h.rawf(`<a href="%s">Изменить</a> `, href("%s/%d/edit", d.BasePath, r.ID))
				for _, a := range r.Actions {
					h.rawf(`<form method="post" action="%s" style="display:inline" onsubmit="return confirm('%s')">`,
						href("%s/%d/actions/%s", d.BasePath, r.ID, a.Name), a.Confirm)
					h.rawf(`<button type="submit">%s</button></form> `, a.Label)
				}
				h.raw(`</td></tr>`)
			}
			h.raw(`</tbody></table>`)
		}

		h.raw(`<p class="pager">`)
		if d.Page > 1 {
			h.rawf(`<a href="%s">‹ Назад</a>`, href("%s?%s", d.BasePath, d.query(d.Page-1, d.PageSize)))
		}
		h.rawf(`<span>Страница %d из %d · всего %d</span>`, d.Page, d.Pages, d.Total)
		if d.Page < d.Pages {
			h.rawf(`<a href="%s">Вперёд ›</a>`, href("%s?%s", d.BasePath, d.query(d.Page+1, d.PageSize)))
		}
		h.raw(`</p>`)
	})
}
