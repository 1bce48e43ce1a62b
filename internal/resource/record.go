// Пакет resource — каталог ресурсов автопарка: endpoints backend,
// поля поиска, исключения экспорта, схемы форм и действия над строками.
package resource

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Record — запись ресурса в том виде, в каком её вернул backend.
type Record map[string]any

// ID возвращает числовой идентификатор записи.
func (r Record) ID() (int, bool) {
	switch v := r["id"].(type) {
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// Text возвращает значение поля строкой (см. Format).
func (r Record) Text(field string) string {
	return Format(r[field])
}

// Format приводит значение JSON к строке: целые числа без дробной
// части, nil — пустая строка, вложенные объекты — компактный JSON.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// IsBlank сообщает, что значение пустое, нулевое ("0") или
// заглушка вида null/none/undefined/nil.
func IsBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	s := strings.TrimSpace(Format(v))
	if s == "" || s == "0" {
		return true
	}
	switch strings.ToLower(s) {
	case "null", "none", "undefined", "nil":
		return true
	}
	return false
}
