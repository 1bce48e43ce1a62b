package listing

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/bigkaa/fleetdesk/internal/resource"
)

// ExportColumns возвращает колонки экспорта: сначала объявленные
// ресурсом, затем остальные ключи записей по алфавиту. Исключённые
// поля (документы, хеши паролей) пропускаются.
func ExportColumns(def *resource.Definition, records []resource.Record) []string {
	seen := map[string]bool{}
	var cols []string
	for _, c := range def.Columns {
		if def.IsExportExcluded(c.Field) || seen[c.Field] {
			continue
		}
		seen[c.Field] = true
		cols = append(cols, c.Field)
	}

	var extra []string
	for _, r := range records {
		for k := range r {
			if seen[k] || def.IsExportExcluded(k) {
				continue
			}
			seen[k] = true
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(cols, extra...)
}

// ExportFilename возвращает имя файла вида <kind>_<YYYY-MM-DD>.<ext>.
func ExportFilename(kind resource.Kind, now time.Time, ext string) string {
	return fmt.Sprintf("%s_%s.%s", kind, now.Format(dateLayout), ext)
}

// ExportCSV формирует CSV: заголовок и по строке на запись, строки
// разделены \n без завершающего перевода строки. Значения с запятой,
// кавычкой или переводом строки заключаются в двойные кавычки.
func ExportCSV(def *resource.Definition, records []resource.Record) ([]byte, error) {
	cols := ExportColumns(def, records)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(cols); err != nil {
		return nil, fmt.Errorf("запись заголовка CSV: %w", err)
	}
	row := make([]string, len(cols))
	for _, r := range records {
		for i, c := range cols {
			row[i] = r.Text(c)
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("запись строки CSV: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("формирование CSV: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ExportXLSX формирует книгу Excel с одним листом: заголовок из
// подписей колонок и по строке на запись.
func ExportXLSX(def *resource.Definition, records []resource.Record) ([]byte, error) {
	cols := ExportColumns(def, records)

	f := excelize.NewFile()
	defer f.Close()

	sheet := string(def.Kind)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("переименование листа: %w", err)
	}

	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = def.Label(c)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("запись заголовка XLSX: %w", err)
	}

	for n, r := range records {
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i] = cellValue(r[c])
		}
		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return nil, fmt.Errorf("адрес ячейки: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("запись строки XLSX: %w", err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("закрепление заголовка: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("сохранение XLSX: %w", err)
	}
	return buf.Bytes(), nil
}

// cellValue оставляет числа и логические значения родными типами Excel.
func cellValue(v any) any {
	switch x := v.(type) {
	case float64, bool:
		return x
	case nil:
		return ""
	default:
		return strings.TrimSpace(resource.Format(x))
	}
}

// Export формирует файл отфильтрованной коллекции в формате format
// ("csv" или "xlsx") и возвращает имя файла и содержимое.
func (l *Loader) Export(format string, now time.Time) (string, []byte, error) {
	records := l.Filtered()
	switch format {
	case "csv":
		data, err := ExportCSV(l.def, records)
		return ExportFilename(l.def.Kind, now, "csv"), data, err
	case "xlsx":
		data, err := ExportXLSX(l.def, records)
		return ExportFilename(l.def.Kind, now, "xlsx"), data, err
	default:
		return "", nil, fmt.Errorf("неизвестный формат экспорта %q", format)
	}
}
