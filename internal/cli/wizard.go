package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bigkaa/fleetdesk/internal/fleetapi"
	"github.com/bigkaa/fleetdesk/internal/form"
	"github.com/bigkaa/fleetdesk/internal/resource"
	"github.com/bigkaa/fleetdesk/internal/session"
)

// Особые ответы мастера формы.
const (
	answerBack  = "<"
	answerClear = "-"
)

func runCreate(ctx context.Context, a *App, args []string) error {
	rest, err := parseArgs(a.flagSet("create"), args, 1)
	if err != nil {
		return err
	}
	def, err := a.lookup(rest[0])
	if err != nil {
		return err
	}
	return a.wizard(ctx, form.New(def, form.WithRedirectDelay(0)))
}

func runEdit(ctx context.Context, a *App, args []string) error {
	rest, err := parseArgs(a.flagSet("edit"), args, 2)
	if err != nil {
		return err
	}
	def, err := a.lookup(rest[0])
	if err != nil {
		return err
	}
	id, err := parseID(rest[1])
	if err != nil {
		return err
	}
	rec, err := a.record(ctx, def, id)
	if err != nil {
		return err
	}
	c, err := form.NewEdit(def, rec, form.WithRedirectDelay(0))
	if err != nil {
		return err
	}
	return a.wizard(ctx, c)
}

// wizard проводит пользователя по шагам формы и отправляет черновик.
// Ошибки полей показываются, шаг повторяется; 401 прерывает мастер.
func (a *App) wizard(ctx context.Context, c *form.Controller) error {
	def := c.Definition()
	if c.IsEdit() {
		fmt.Fprintf(a.out, "Изменение: %s #%d\n", def.Singular, c.EditID())
	} else {
		fmt.Fprintf(a.out, "Новая запись: %s\n", def.Singular)
	}
	fmt.Fprintf(a.out, "Enter — оставить значение, %q — очистить, %q — предыдущий шаг\n", answerClear, answerBack)

	for {
		step := c.CurrentStep()
		fmt.Fprintf(a.out, "\nШаг %d из %d: %s\n", c.Step()+1, c.StepCount(), step.Title)

		back, err := a.fillStep(c, step)
		if err != nil {
			return err
		}
		if back {
			c.Back()
			continue
		}

		terminal := c.IsTerminal()
		if !c.Next() {
			a.printErrors(c)
			continue
		}
		if !terminal {
			continue
		}

		answer, err := a.ask("Отправить? [Y/n/<]: ")
		if err != nil {
			return err
		}
		switch strings.ToLower(answer) {
		case answerBack:
			c.Back()
			continue
		case "n", "no", "н", "нет":
			return errCancelled
		}

		res, err := c.Submit(ctx, a.client(), "")
		switch {
		case err == nil:
			fmt.Fprintln(a.out, res.Message)
			return nil
		case errors.Is(err, fleetapi.ErrSession), errors.Is(err, session.ErrSessionInvalid):
			return err
		case errors.Is(err, form.ErrInvalidDraft):
			a.printErrors(c)
			continue
		}

		fmt.Fprintf(a.errOut, "ОШИБКА: %s\n", fleetapi.Message(err))
		if len(c.Errors()) > 0 {
			a.printErrors(c)
			if first := firstErrorStep(c); first >= 0 && first < c.Step() {
				_ = c.JumpTo(first)
			}
			continue
		}
		retry, askErr := a.ask("Повторить отправку? [Y/n]: ")
		if askErr != nil {
			return askErr
		}
		if r := strings.ToLower(retry); r == "n" || r == "no" || r == "н" || r == "нет" {
			return err
		}
	}
}

// fillStep опрашивает поля шага. Возвращает true, если пользователь
// попросил вернуться на предыдущий шаг.
func (a *App) fillStep(c *form.Controller, step resource.Step) (bool, error) {
	tyres := c.Definition().Form.Tyres
	for _, f := range step.Fields {
		back, err := a.fillField(c, f)
		if err != nil || back {
			return back, err
		}
		if tyres != nil && tyres.CountField == f.Name {
			if back, err := a.fillTyres(c, tyres); err != nil || back {
				return back, err
			}
		}
	}
	return false, nil
}

func (a *App) fillField(c *form.Controller, f resource.Field) (bool, error) {
	prompt := fieldPrompt(c, f)

	for {
		var answer string
		var err error
		if f.Type == resource.FieldPassword {
			if answer, err = a.prompt.Password(prompt); errors.Is(err, io.EOF) {
				err = errCancelled
			}
		} else {
			answer, err = a.ask(prompt)
		}
		if err != nil {
			return false, err
		}

		switch answer {
		case "":
			return false, nil
		case answerBack:
			return true, nil
		case answerClear:
			if f.Type != resource.FieldFile {
				_ = c.Set(f.Name, "")
			}
			return false, nil
		}

		switch f.Type {
		case resource.FieldFile:
			data, err := os.ReadFile(answer)
			if err != nil {
				fmt.Fprintf(a.errOut, "Не удалось прочитать файл: %s\n", err.Error())
				continue
			}
			if err := c.Attach(f.Name, filepath.Base(answer), data); err != nil {
				return false, err
			}
		case resource.FieldSelect:
			v, ok := pickOption(f.Options, answer)
			if !ok {
				fmt.Fprintf(a.errOut, "Выберите одно из: %s\n", strings.Join(f.Options, ", "))
				continue
			}
			if err := c.Set(f.Name, v); err != nil {
				return false, err
			}
		default:
			if err := c.Set(f.Name, answer); err != nil {
				return false, err
			}
		}
		return false, nil
	}
}

// fillTyres опрашивает статусы шин сверх базового количества.
func (a *App) fillTyres(c *form.Controller, t *resource.TyreRule) (bool, error) {
	for i, cur := range c.ExtraTyres() {
		prompt := fmt.Sprintf("Шина %d (%s) [%s]: ", t.Base+i+1, strings.Join(t.StatusOptions, "/"), cur)
		for {
			answer, err := a.ask(prompt)
			if err != nil {
				return false, err
			}
			if answer == answerBack {
				return true, nil
			}
			if answer == "" {
				break
			}
			v, ok := pickOption(t.StatusOptions, answer)
			if !ok {
				fmt.Fprintf(a.errOut, "Выберите одно из: %s\n", strings.Join(t.StatusOptions, ", "))
				continue
			}
			if err := c.SetExtraTyre(i, v); err != nil {
				return false, err
			}
			break
		}
	}
	return false, nil
}

// ask читает ответ; конец ввода прерывает мастер.
func (a *App) ask(prompt string) (string, error) {
	answer, err := a.prompt.Line(prompt)
	if errors.Is(err, io.EOF) {
		return "", errCancelled
	}
	return answer, err
}

func fieldPrompt(c *form.Controller, f resource.Field) string {
	var b strings.Builder
	b.WriteString(f.Label)
	if f.Required {
		b.WriteString("*")
	}
	if f.Type == resource.FieldSelect && len(f.Options) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(f.Options, "/"))
	}

	var current string
	switch f.Type {
	case resource.FieldPassword:
	case resource.FieldFile:
		current = c.Attached(f.Name)
		if current == "" && c.Stored(f.Name) {
			current = "загружен"
		}
		b.WriteString(", путь к файлу")
	default:
		current = c.Value(f.Name)
	}
	if current != "" {
		fmt.Fprintf(&b, " [%s]", current)
	}
	b.WriteString(": ")
	return b.String()
}

// pickOption принимает значение из списка без учёта регистра или его номер.
func pickOption(options []string, answer string) (string, bool) {
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(options) {
		return options[n-1], true
	}
	for _, o := range options {
		if strings.EqualFold(o, answer) {
			return o, true
		}
	}
	return "", false
}

func (a *App) printErrors(c *form.Controller) {
	errs := c.Errors()
	for _, f := range c.Definition().Form.Fields() {
		if msg, ok := errs[f.Name]; ok {
			fmt.Fprintf(a.errOut, "  ! %s: %s\n", f.Label, msg)
		}
	}
}

func firstErrorStep(c *form.Controller) int {
	first := -1
	for name := range c.Errors() {
		if i := c.Definition().Form.StepOf(name); i >= 0 && (first < 0 || i < first) {
			first = i
		}
	}
	return first
}
