package form

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"github.com/bigkaa/fleetdesk/internal/fleetapi"
	"github.com/bigkaa/fleetdesk/internal/resource"
)

// Payload — собранное тело запроса.
type Payload struct {
	// JSON — значения полей; целые поля уже приведены к int.
	JSON map[string]any
	// Files — приложенные файлы (multipart, если не пусто).
	Files []fleetapi.FormFile
}

// Multipart сообщает, что запрос надо отправлять как multipart/form-data.
func (p Payload) Multipart() bool {
	return len(p.Files) > 0
}

// Form возвращает поля для multipart: списки раскладываются на
// повторяющиеся ключи, nil — пустая строка.
func (p Payload) Form() url.Values {
	form := url.Values{}
	for k, v := range p.JSON {
		switch x := v.(type) {
		case nil:
			form.Set(k, "")
		case []string:
			for _, s := range x {
				form.Add(k, s)
			}
		default:
			form.Set(k, resource.Format(x))
		}
	}
	return form
}

// Payload собирает тело запроса из черновика. Пустые поля
// пропускаются, кроме AlwaysSend; целые поля приводятся к int;
// статусы дополнительных шин уходят списком.
func (c *Controller) Payload() Payload {
	schema := c.def.Form
	p := Payload{JSON: map[string]any{}}

	for _, f := range schema.Fields() {
		if f.Type == resource.FieldFile {
			if file, ok := c.files[f.Name]; ok {
				p.Files = append(p.Files, fleetapi.FormFile{
					Field:    f.Name,
					Filename: file.Filename,
					Content:  bytes.NewReader(file.Data),
				})
			}
			continue
		}

		v := strings.TrimSpace(c.values[f.Name])
		if v == "" {
			if schema.IsAlwaysSent(f.Name) {
				if f.Type == resource.FieldInt {
					p.JSON[f.Name] = nil
				} else {
					p.JSON[f.Name] = ""
				}
			}
			continue
		}

		if f.Type == resource.FieldInt {
			if n, err := strconv.Atoi(v); err == nil {
				p.JSON[f.Name] = n
				continue
			}
		}
		p.JSON[f.Name] = v
	}

	if t := schema.Tyres; t != nil && len(c.extraTyres) > 0 {
		p.JSON[t.ListField] = append([]string(nil), c.extraTyres...)
	}
	return p
}
