package form

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/fleetdesk/internal/resource"
)

// Сообщения локальной валидации.
const (
	msgRequired = "Обязательное поле"
	msgEmail    = "Некорректный email"
	msgInt      = "Введите целое число"
	msgDate     = "Дата в формате ГГГГ-ММ-ДД"
	msgOption   = "Выберите значение из списка"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// required сообщает, обязательно ли поле при текущих значениях.
func (c *Controller) required(f resource.Field) bool {
	if f.Required {
		return true
	}
	if f.RequiredWhen != nil {
		return strings.TrimSpace(c.values[f.RequiredWhen.Field]) == f.RequiredWhen.Equals
	}
	return false
}

// present сообщает, заполнено ли поле. Файл считается заполненным,
// если он приложен или уже хранится в редактируемой записи.
func (c *Controller) present(f resource.Field) bool {
	if f.Type == resource.FieldFile {
		_, attached := c.files[f.Name]
		return attached || c.stored[f.Name]
	}
	return strings.TrimSpace(c.values[f.Name]) != ""
}

// checkField возвращает сообщение об ошибке поля или "".
func (c *Controller) checkField(f resource.Field) string {
	if !c.present(f) {
		if c.required(f) {
			return msgRequired
		}
		return ""
	}
	if f.Type == resource.FieldFile {
		return ""
	}

	v := strings.TrimSpace(c.values[f.Name])
	switch f.Type {
	case resource.FieldEmail:
		if !emailRe.MatchString(v) {
			return msgEmail
		}
	case resource.FieldInt:
		if _, err := strconv.Atoi(v); err != nil {
			return msgInt
		}
	case resource.FieldDate:
		if _, err := time.Parse("2006-01-02", v); err != nil {
			return msgDate
		}
	case resource.FieldSelect:
		if len(f.Options) > 0 && !slices.Contains(f.Options, v) {
			return msgOption
		}
	}
	return ""
}

// validateStep проверяет поля шага i и записывает ошибки.
// Возвращает true, если ошибок нет.
func (c *Controller) validateStep(i int) bool {
	ok := true
	for _, f := range c.def.Form.Steps[i].Fields {
		if msg := c.checkField(f); msg != "" {
			c.errors[f.Name] = msg
			ok = false
		} else {
			delete(c.errors, f.Name)
		}
	}
	return ok
}

// validateAll проверяет все шаги и возвращает индекс первого шага
// с ошибкой или -1.
func (c *Controller) validateAll() int {
	first := -1
	for i := range c.def.Form.Steps {
		if !c.validateStep(i) && first < 0 {
			first = i
		}
	}
	return first
}
