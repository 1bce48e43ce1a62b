package listing

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/bigkaa/fleetdesk/internal/resource"
)

// Filter возвращает записи, у которых хотя бы одно из полей fields
// содержит term без учёта регистра (Unicode case folding).
// Пустой term возвращает всю коллекцию в исходном порядке; пробелы
// в term значимы и участвуют в сравнении.
func Filter(records []resource.Record, term string, fields []string) []resource.Record {
	if term == "" {
		return records
	}

	fold := cases.Fold()
	needle := fold.String(term)

	out := make([]resource.Record, 0, len(records))
	for _, r := range records {
		for _, f := range fields {
			if strings.Contains(fold.String(r.Text(f)), needle) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Page — страница отфильтрованной коллекции.
type Page struct {
	Records []resource.Record
	// Number — номер страницы, начиная с 1.
	Number     int
	Size       int
	TotalPages int
	// Total — число записей после фильтрации.
	Total int
}

// HasPrev сообщает, есть ли предыдущая страница.
func (p Page) HasPrev() bool { return p.Number > 1 }

// HasNext сообщает, есть ли следующая страница.
func (p Page) HasNext() bool { return p.Number < p.TotalPages }

// Paginate вырезает страницу number размера size.
// Номер вне диапазона приводится к ближайшей существующей странице.
func Paginate(records []resource.Record, number, size int) Page {
	if size < 1 {
		size = 1
	}
	total := len(records)
	totalPages := (total + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	if number < 1 {
		number = 1
	}
	if number > totalPages {
		number = totalPages
	}

	start := (number - 1) * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return Page{
		Records:    records[start:end],
		Number:     number,
		Size:       size,
		TotalPages: totalPages,
		Total:      total,
	}
}
