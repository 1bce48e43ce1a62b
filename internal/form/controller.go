// Пакет form — контроллер формы ресурса: пошаговый мастер,
// локальная валидация, расширение списка шин, сборка и отправка запроса.
package form

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/fleetdesk/internal/fleetapi"
	"github.com/bigkaa/fleetdesk/internal/resource"
)

// Ошибки контроллера формы.
var (
	// ErrNotTerminalStep — отправка возможна только с последнего шага.
	ErrNotTerminalStep = errors.New("отправка доступна только на последнем шаге")
	// ErrInvalidJump — переход вперёд по заголовку шага запрещён.
	ErrInvalidJump = errors.New("переход к шагу недоступен")
	// ErrInvalidDraft — черновик не прошёл локальную проверку.
	ErrInvalidDraft = errors.New("форма заполнена с ошибками")
	// ErrUnknownField — в схеме нет такого поля.
	ErrUnknownField = errors.New("неизвестное поле")
)

// DefaultRedirectDelay — задержка перехода к списку после успеха.
const DefaultRedirectDelay = 1500 * time.Millisecond

// Submitter — вызовы backend для отправки формы. Реализуется *fleetapi.Client.
type Submitter interface {
	PostJSON(ctx context.Context, path string, body any, out any) error
	PostMultipart(ctx context.Context, path string, fields url.Values, files []fleetapi.FormFile, out any) error
}

// File — приложенный к черновику файл.
type File struct {
	Filename string
	Data     []byte
}

// Result — итог успешной отправки.
type Result struct {
	Message    string
	RedirectTo string
	After      time.Duration
}

// Controller — черновик формы одного ресурса.
// Не безопасен для конкурентного использования: вызывающий
// сериализует действия пользователя.
type Controller struct {
	def   *resource.Definition
	delay time.Duration

	editID     int
	values     map[string]string
	files      map[string]File
	stored     map[string]bool
	extraTyres []string
	step       int
	errors     map[string]string

	// initial — исходное состояние для сброса после успеха.
	initial *Controller
}

// Option — параметр контроллера.
type Option func(*Controller)

// WithRedirectDelay задаёт задержку перехода после успеха.
func WithRedirectDelay(d time.Duration) Option {
	return func(c *Controller) { c.delay = d }
}

// New создаёт контроллер формы создания записи.
func New(def *resource.Definition, opts ...Option) *Controller {
	c := &Controller{
		def:    def,
		delay:  DefaultRedirectDelay,
		values: map[string]string{},
		files:  map[string]File{},
		stored: map[string]bool{},
		errors: map[string]string{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.initial = c.snapshot()
	return c
}

// NewEdit создаёт контроллер формы редактирования, заполненный из
// ранее загруженной записи. Уже сохранённые документы считаются
// приложенными для проверки обязательности.
func NewEdit(def *resource.Definition, rec resource.Record, opts ...Option) (*Controller, error) {
	id, ok := rec.ID()
	if !ok {
		return nil, errors.New("у записи нет числового id")
	}
	c := New(def, opts...)
	c.editID = id

	for _, f := range def.Form.Fields() {
		v, exists := rec[f.Name]
		if !exists {
			continue
		}
		switch f.Type {
		case resource.FieldFile:
			if !resource.IsBlank(v) {
				c.stored[f.Name] = true
			}
		case resource.FieldPassword:
			// Хеш пароля в форму не переносится.
		default:
			if v != nil {
				c.values[f.Name] = resource.Format(v)
			}
		}
	}

	if t := def.Form.Tyres; t != nil {
		if list, ok := rec[t.ListField].([]any); ok {
			for _, v := range list {
				c.extraTyres = append(c.extraTyres, resource.Format(v))
			}
		}
		c.resizeTyres(c.values[t.CountField])
	}

	c.initial = c.snapshot()
	return c, nil
}

func (c *Controller) snapshot() *Controller {
	return &Controller{
		values:     maps.Clone(c.values),
		files:      maps.Clone(c.files),
		stored:     maps.Clone(c.stored),
		extraTyres: append([]string(nil), c.extraTyres...),
	}
}

// Reset возвращает черновик к исходному состоянию.
func (c *Controller) Reset() {
	c.values = maps.Clone(c.initial.values)
	c.files = maps.Clone(c.initial.files)
	c.stored = maps.Clone(c.initial.stored)
	c.extraTyres = append([]string(nil), c.initial.extraTyres...)
	c.errors = map[string]string{}
	c.step = 0
}

// Definition возвращает описание ресурса.
func (c *Controller) Definition() *resource.Definition { return c.def }

// IsEdit сообщает, что форма редактирует существующую запись.
func (c *Controller) IsEdit() bool { return c.editID != 0 }

// EditID возвращает id редактируемой записи (0 для новой).
func (c *Controller) EditID() int { return c.editID }

// Step возвращает индекс текущего шага.
func (c *Controller) Step() int { return c.step }

// StepCount возвращает число шагов.
func (c *Controller) StepCount() int { return c.def.Form.StepCount() }

// IsTerminal сообщает, что текущий шаг последний.
func (c *Controller) IsTerminal() bool { return c.step == c.StepCount()-1 }

// CurrentStep возвращает описание текущего шага.
func (c *Controller) CurrentStep() resource.Step { return c.def.Form.Steps[c.step] }

// Value возвращает значение поля.
func (c *Controller) Value(name string) string { return c.values[name] }

// Attached возвращает имя приложенного файла поля или "".
func (c *Controller) Attached(name string) string { return c.files[name].Filename }

// Stored сообщает, что документ поля уже хранится на backend.
func (c *Controller) Stored(name string) bool { return c.stored[name] }

// Errors возвращает копию ошибок по полям.
func (c *Controller) Errors() map[string]string { return maps.Clone(c.errors) }

// Error возвращает ошибку поля.
func (c *Controller) Error(name string) string { return c.errors[name] }

// ExtraTyres возвращает копию статусов дополнительных шин.
func (c *Controller) ExtraTyres() []string { return append([]string(nil), c.extraTyres...) }

// Set задаёт значение поля и снимает его ошибку. Изменение
// количества шин перестраивает список дополнительных статусов.
func (c *Controller) Set(name, value string) error {
	f, ok := c.def.Form.Field(name)
	if !ok || f.Type == resource.FieldFile {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	c.values[name] = value
	delete(c.errors, name)

	if t := c.def.Form.Tyres; t != nil && t.CountField == name {
		c.resizeTyres(value)
	}
	return nil
}

// Attach прикладывает файл к полю и снимает его ошибку.
func (c *Controller) Attach(name, filename string, data []byte) error {
	f, ok := c.def.Form.Field(name)
	if !ok || f.Type != resource.FieldFile {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	c.files[name] = File{Filename: filename, Data: data}
	delete(c.errors, name)
	return nil
}

// SetExtraTyre задаёт статус дополнительной шины i.
func (c *Controller) SetExtraTyre(i int, status string) error {
	if i < 0 || i >= len(c.extraTyres) {
		return fmt.Errorf("нет дополнительной шины с номером %d", i+1)
	}
	c.extraTyres[i] = status
	return nil
}

// resizeTyres приводит длину списка к max(0, n-Base), сохраняя
// введённые значения. Нечисловое количество оставляет список как есть.
func (c *Controller) resizeTyres(raw string) {
	t := c.def.Form.Tyres
	if t == nil {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return
	}
	want := max(0, n-t.Base)
	switch {
	case len(c.extraTyres) < want:
		c.extraTyres = append(c.extraTyres, make([]string, want-len(c.extraTyres))...)
	case len(c.extraTyres) > want:
		c.extraTyres = c.extraTyres[:want]
	}
}

// Next переходит на следующий шаг, если текущий заполнен верно.
// Иначе шаг не меняется и ошибки полей записываются.
func (c *Controller) Next() bool {
	if !c.validateStep(c.step) {
		return false
	}
	if c.step < c.StepCount()-1 {
		c.step++
	}
	return true
}

// Back возвращается на предыдущий шаг без проверки.
func (c *Controller) Back() {
	if c.step > 0 {
		c.step--
	}
}

// JumpTo переходит на шаг i, если он раньше текущего.
func (c *Controller) JumpTo(i int) error {
	if i < 0 || i >= c.step {
		return fmt.Errorf("%w: %d", ErrInvalidJump, i+1)
	}
	c.step = i
	return nil
}

// Submit отправляет черновик: create для новой записи, update для
// редактируемой. При успехе черновик сбрасывается и возвращается
// Result с переходом на listRoute. При ошибке черновик сохраняется,
// ошибки 422 раскладываются по полям.
func (c *Controller) Submit(ctx context.Context, api Submitter, listRoute string) (*Result, error) {
	if !c.IsTerminal() {
		return nil, ErrNotTerminalStep
	}
	if first := c.validateAll(); first >= 0 {
		c.step = first
		return nil, ErrInvalidDraft
	}

	p := c.Payload()
	path := c.def.CreatePath
	if c.IsEdit() {
		path = c.def.UpdatePathFor(c.editID)
	}

	var out map[string]any
	var err error
	if p.Multipart() {
		err = api.PostMultipart(ctx, path, p.Form(), p.Files, &out)
	} else {
		err = api.PostJSON(ctx, path, p.JSON, &out)
	}
	if err != nil {
		c.applyServerErrors(err)
		return nil, err
	}

	msg, _ := out["message"].(string)
	if msg == "" {
		if c.IsEdit() {
			msg = "Изменения сохранены"
		} else {
			msg = "Запись создана"
		}
	}
	c.Reset()
	return &Result{Message: msg, RedirectTo: listRoute, After: c.delay}, nil
}

// applyServerErrors переносит ошибки 422 на поля схемы.
func (c *Controller) applyServerErrors(err error) {
	var e *fleetapi.Error
	if !errors.As(err, &e) || e.Kind != fleetapi.KindValidation {
		return
	}
	for _, fe := range e.Fields {
		if _, ok := c.def.Form.Field(fe.Field); ok && fe.Message != "" {
			c.errors[fe.Field] = fe.Message
		}
	}
}
