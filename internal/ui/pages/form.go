package pages

import (
	"context"
	"fmt"

	"github.com/a-h/templ"
)

// FormField — поле текущего шага формы.
type FormField struct {
	Name     string
	Label    string
	Type     string
	Value    string
	Error    string
	Required bool
	Options  []string
	// Stored — документ уже хранится на backend.
	Stored bool
	// Attached — имя приложенного, но ещё не отправленного файла.
	Attached string
}

// FormData — данные страницы мастера формы.
type FormData struct {
	Title    string
	Action   string
	Cancel   string
	Steps    []string
	Current  int
	Terminal bool
	Fields   []FormField
	// ExtraTyres — статусы дополнительных шин (на шаге с количеством шин).
	ExtraTyres     []string
	ExtraTyreField string
	TyreBase       int
	TyreOptions    []string
	Error          string
}

// Form — шаг мастера формы.
func Form(d FormData) templ.Component {
	return component(func(ctx context.Context, h *html) {
		h.rawf(`<h1>%s</h1>`, d.Title)

		h.rawf(`<form method="post" action="%s" enctype="multipart/form-data">`, templ.URL(d.Action))
		h.raw(`<p class="steps">`)
		for i, title := range d.Steps {
			switch {
			case i == d.Current:
				h.rawf(`<span class="current">%d. %s</span>`, i+1, title)
			case i < d.Current:
				h.rawf(`<span><button type="submit" name="op" value="jump:%d" formnovalidate>%d. %s</button></span>`, i, i+1, title)
			default:
				h.rawf(`<span>%d. %s</span>`, i+1, title)
			}
		}
		h.raw(`</p>`)

		if d.Error != "" {
			h.rawf(`<p class="error" role="alert">%s</p>`, d.Error)
		}

		for _, f := range d.Fields {
			renderField(h, f)
		}
		for i, status := range d.ExtraTyres {
			name := fmt.Sprintf("%s.%d", d.ExtraTyreField, i)
			h.rawf(`<div class="field"><label for="%s">Шина %d</label>`, name, d.TyreBase+i+1)
			renderSelect(h, name, status, d.TyreOptions)
			h.raw(`</div>`)
		}

		h.raw(`<p>`)
		if d.Current > 0 {
			h.raw(`<button type="submit" name="op" value="back" formnovalidate>Назад</button> `)
		}
		if d.Terminal {
			h.raw(`<button type="submit" name="op" value="submit">Сохранить</button>`)
		} else {
			h.raw(`<button type="submit" name="op" value="next">Далее</button>`)
		}
		h.rawf(` <a href="%s">Отмена</a></p></form>`, templ.URL(d.Cancel))
	})
}

func renderField(h *html, f FormField) {
	h.rawf(`<div class="field"><label for="%s">%s`, f.Name, f.Label)
	if f.Required {
		h.raw(` *`)
	}
	h.raw(`</label>`)

	switch f.Type {
	case "select":
		renderSelect(h, f.Name, f.Value, f.Options)
	case "file":
		h.rawf(`<input id="%s" name="%s" type="file">`, f.Name, f.Name)
		switch {
		case f.Attached != "":
			h.rawf(` <small>приложен: %s</small>`, f.Attached)
		case f.Stored:
			h.raw(` <small>документ загружен ранее</small>`)
		}
	case "password":
		h.rawf(`<input id="%s" name="%s" type="password" autocomplete="new-password">`, f.Name, f.Name)
	default:
		inputType := "text"
		switch f.Type {
		case "email":
			inputType = "email"
		case "int":
			inputType = "number"
		case "date":
			inputType = "date"
		}
		h.rawf(`<input id="%s" name="%s" type="%s" value="%s">`, f.Name, f.Name, inputType, f.Value)
	}

	if f.Error != "" {
		h.rawf(`<div class="error">%s</div>`, f.Error)
	}
	h.raw(`</div>`)
}

func renderSelect(h *html, name, value string, options []string) {
	h.rawf(`<select id="%s" name="%s"><option value=""></option>`, name, name)
	for _, o := range options {
		sel := ""
		if o == value {
			sel = " selected"
		}
		h.rawf(`<option value="%s"%s>%s</option>`, o, sel, o)
	}
	h.raw(`</select>`)
}

// FormSuccess — сообщение об успехе с переходом к списку через delay.
func FormSuccess(message, redirectTo string, delaySeconds float64) templ.Component {
	return component(func(ctx context.Context, h *html) {
		h.rawf(`<meta http-equiv="refresh" content="%.1f;url=%s">`, delaySeconds, templ.URL(redirectTo))
		h.rawf(`<div class="dialog"><p class="success" role="status">%s</p>`, message)
		h.rawf(`<a href="%s">К списку</a></div>`, templ.URL(redirectTo))
	})
}
