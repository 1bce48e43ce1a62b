// Пакет detail — просмотр записи: видимые поля, загрузка документов
// и растровые страницы для печати.
package detail

import (
	"sort"

	"github.com/bigkaa/fleetdesk/internal/resource"
)

// Item — строка карточки записи.
type Item struct {
	Field string
	Label string
	Value string
	// Document — значение является ссылкой на загруженный документ.
	Document bool
}

// Visible возвращает заполненные поля записи в порядке: колонки
// ресурса, поля формы, остальные ключи по алфавиту. Пустые значения,
// ноль и заглушки вида null/none/undefined/nil пропускаются.
func Visible(rec resource.Record, def *resource.Definition) []Item {
	seen := make(map[string]bool, len(rec))
	var order []string
	add := func(field string) {
		if seen[field] {
			return
		}
		if _, ok := rec[field]; !ok {
			return
		}
		seen[field] = true
		order = append(order, field)
	}

	for _, c := range def.Columns {
		add(c.Field)
	}
	for _, f := range def.Form.Fields() {
		add(f.Name)
	}
	rest := make([]string, 0, len(rec))
	for k := range rec {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)

	items := make([]Item, 0, len(order))
	for _, field := range order {
		v := rec[field]
		if resource.IsBlank(v) {
			continue
		}
		items = append(items, Item{
			Field:    field,
			Label:    def.Label(field),
			Value:    resource.Format(v),
			Document: def.IsDocument(field),
		})
	}
	return items
}

// Documents возвращает только строки-документы.
func Documents(items []Item) []Item {
	var out []Item
	for _, it := range items {
		if it.Document {
			out = append(out, it)
		}
	}
	return out
}
