package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dekarrin/rosed"
	"github.com/spf13/pflag"

	"github.com/bigkaa/fleetdesk/internal/detail"
	"github.com/bigkaa/fleetdesk/internal/listing"
	"github.com/bigkaa/fleetdesk/internal/resource"
	"github.com/bigkaa/fleetdesk/internal/session"
)

const (
	dateLayout = "2006-01-02"
	tableWidth = 120
)

func (a *App) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

// parseArgs разбирает флаги команды и проверяет число позиционных аргументов.
func parseArgs(fs *pflag.FlagSet, args []string, n int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %s", errUsage, err.Error())
	}
	if fs.NArg() != n {
		return nil, fmt.Errorf("%w: ожидалось аргументов: %d, получено: %d", errUsage, n, fs.NArg())
	}
	return fs.Args(), nil
}

func (a *App) lookup(name string) (*resource.Definition, error) {
	def, err := a.catalogue.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	return def, nil
}

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: некорректный id %q", errUsage, raw)
	}
	return id, nil
}

func parseDate(name, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: --%s: ожидается ГГГГ-ММ-ДД", errUsage, name)
	}
	return t, nil
}

// load загружает коллекцию ресурса за период q.
func (a *App) load(ctx context.Context, def *resource.Definition, q listing.Query) (*listing.Loader, error) {
	l := listing.NewLoader(def, a.client(), a.pageSize, a.logger)
	if err := l.Load(ctx, q); err != nil {
		return nil, err
	}
	return l, nil
}

// record находит запись id в загруженной коллекции ресурса.
func (a *App) record(ctx context.Context, def *resource.Definition, id int) (resource.Record, error) {
	l, err := a.load(ctx, def, listing.Query{})
	if err != nil {
		return nil, err
	}
	rec, ok := l.Record(id)
	if !ok {
		return nil, fmt.Errorf("%s: запись #%d не найдена", def.Title, id)
	}
	return rec, nil
}

func renderTable(w io.Writer, data [][]string) {
	out := rosed.Edit("").
		InsertTableOpts(0, data, tableWidth, rosed.Options{
			TableHeaders:             true,
			NoTrailingLineSeparators: true,
		}).
		String()
	fmt.Fprintln(w, out)
}

// profile — поля профиля /users/me, которые показывает клиент.
type profile struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func parseProfile(raw json.RawMessage) profile {
	var p profile
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &p)
	}
	if p.Name == "" {
		p.Name = p.Username
	}
	return p
}

func runLogin(ctx context.Context, a *App, args []string) error {
	fs := a.flagSet("login")
	username := fs.StringP("username", "u", "", "имя пользователя")
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}

	var err error
	if *username == "" {
		if *username, err = a.prompt.Line("Имя пользователя: "); err != nil {
			return fmt.Errorf("чтение имени пользователя: %w", err)
		}
	}
	password, err := a.prompt.Password("Пароль: ")
	if err != nil {
		return fmt.Errorf("чтение пароля: %w", err)
	}
	if *username == "" || password == "" {
		return fmt.Errorf("%w: имя пользователя и пароль обязательны", errUsage)
	}

	resp, err := a.api.Login(ctx, *username, password)
	if err != nil {
		return err
	}
	if err := a.sess.Establish(ctx, resp.AccessToken, resp.RoleID, nil); err != nil {
		return err
	}

	me, err := a.client().Me(ctx)
	if err != nil {
		a.logger.Warn("Профиль пользователя не получен", slog.String("error", err.Error()))
	} else if err := a.sess.SetProfile(ctx, me); err != nil {
		a.logger.Warn("Профиль не сохранён", slog.String("error", err.Error()))
	}

	name := parseProfile(me).Name
	if name == "" {
		name = *username
	}
	fmt.Fprintf(a.out, "Вход выполнен: %s (роль %d, профиль %s)\n", name, resp.RoleID, a.sess.Key())
	return nil
}

func runLogout(ctx context.Context, a *App, args []string) error {
	if _, err := parseArgs(a.flagSet("logout"), args, 0); err != nil {
		return err
	}
	a.sess.Invalidate(ctx, session.ReasonLogout)
	fmt.Fprintf(a.out, "Сессия профиля %s удалена\n", a.sess.Key())
	return nil
}

func runWhoami(ctx context.Context, a *App, args []string) error {
	if _, err := parseArgs(a.flagSet("whoami"), args, 0); err != nil {
		return err
	}
	cred, err := a.sess.Credential(ctx)
	if err != nil {
		return err
	}
	if len(cred.Profile) == 0 {
		me, err := a.client().Me(ctx)
		if err != nil {
			return err
		}
		cred.Profile = me
		if err := a.sess.SetProfile(ctx, me); err != nil {
			a.logger.Warn("Профиль не сохранён", slog.String("error", err.Error()))
		}
	}

	p := parseProfile(cred.Profile)
	v := a.sess.Guard(ctx)
	renderTable(a.out, [][]string{
		{"Поле", "Значение"},
		{"Имя", p.Name},
		{"Email", p.Email},
		{"Роль", strconv.Itoa(cred.RoleID)},
		{"Профиль", a.sess.Key()},
		{"Сессия до", v.ExpiresAt.Local().Format("2006-01-02 15:04")},
	})
	return nil
}

func runList(ctx context.Context, a *App, args []string) error {
	fs := a.flagSet("list")
	term := fs.StringP("query", "q", "", "строка поиска")
	page := fs.Int("page", 1, "номер страницы")
	size := fs.Int("size", a.pageSize, "размер страницы")
	fromRaw := fs.String("from", "", "начало периода (ГГГГ-ММ-ДД)")
	toRaw := fs.String("to", "", "конец периода (ГГГГ-ММ-ДД)")
	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	def, err := a.lookup(rest[0])
	if err != nil {
		return err
	}
	from, err := parseDate("from", *fromRaw)
	if err != nil {
		return err
	}
	to, err := parseDate("to", *toRaw)
	if err != nil {
		return err
	}

	l, err := a.load(ctx, def, listing.Query{From: from, To: to})
	if err != nil {
		return err
	}
	if err := l.SetSearch(*term); err != nil {
		return err
	}
	if err := l.SetPageSize(*size); err != nil {
		return fmt.Errorf("%w: --size: %w", errUsage, err)
	}
	if err := l.SetPage(*page); err != nil {
		return err
	}

	p := l.Page()
	if p.Total == 0 {
		fmt.Fprintf(a.out, "%s: записей нет\n", def.Title)
		return nil
	}

	header := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		header[i] = c.Label
	}
	data := [][]string{header}
	for _, rec := range p.Records {
		row := make([]string, len(def.Columns))
		for i, c := range def.Columns {
			row[i] = rec.Text(c.Field)
		}
		data = append(data, row)
	}
	renderTable(a.out, data)
	fmt.Fprintf(a.out, "Страница %d из %d · всего %d\n", p.Number, p.TotalPages, p.Total)
	return nil
}

func runExport(ctx context.Context, a *App, args []string) error {
	fs := a.flagSet("export")
	format := fs.StringP("format", "f", "csv", "формат: csv или xlsx")
	term := fs.StringP("query", "q", "", "строка поиска")
	dir := fs.StringP("output", "o", ".", "каталог для файла")
	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	def, err := a.lookup(rest[0])
	if err != nil {
		return err
	}
	if *format != "csv" && *format != "xlsx" {
		return fmt.Errorf("%w: неизвестный формат %q", errUsage, *format)
	}

	l, err := a.load(ctx, def, listing.Query{})
	if err != nil {
		return err
	}
	if err := l.SetSearch(*term); err != nil {
		return err
	}
	name, data, err := l.Export(*format, a.now())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		return fmt.Errorf("создание каталога %s: %w", *dir, err)
	}
	target := filepath.Join(*dir, name)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("запись файла %s: %w", target, err)
	}
	fmt.Fprintf(a.out, "Экспортировано записей: %d → %s\n", len(l.Filtered()), target)
	return nil
}

func runAction(ctx context.Context, a *App, args []string) error {
	rest, err := parseArgs(a.flagSet("action"), args, 3)
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
	action, ok := def.Action(rest[2])
	if !ok {
		return fmt.Errorf("%w: у ресурса %s нет действия %q", errUsage, def.Kind, rest[2])
	}

	l, err := a.load(ctx, def, listing.Query{})
	if err != nil {
		return err
	}
	if err := l.Apply(ctx, id, action.Name); err != nil {
		if errors.Is(err, listing.ErrRecordNotFound) {
			return fmt.Errorf("%s: запись #%d не найдена", def.Title, id)
		}
		return err
	}
	fmt.Fprintf(a.out, "%s #%d: %s — выполнено\n", def.Title, id, action.Label)
	return nil
}

func runShow(ctx context.Context, a *App, args []string) error {
	rest, err := parseArgs(a.flagSet("show"), args, 2)
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

	items := detail.Visible(rec, def)
	data := [][]string{{"Поле", "Значение"}}
	for _, it := range items {
		data = append(data, []string{it.Label, it.Value})
	}
	renderTable(a.out, data)

	for _, doc := range detail.Documents(items) {
		fmt.Fprintf(a.out, "Документ %q: fleetctl download %s %d %s\n", doc.Label, def.Kind, id, doc.Field)
	}
	return nil
}

func runDownload(ctx context.Context, a *App, args []string) error {
	fs := a.flagSet("download")
	dir := fs.StringP("output", "o", ".", "каталог для файла")
	rest, err := parseArgs(fs, args, 3)
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
	field := rest[2]
	if !def.IsDocument(field) {
		return fmt.Errorf("%w: поле %q не является документом", errUsage, field)
	}

	rec, err := a.record(ctx, def, id)
	if err != nil {
		return err
	}
	if resource.IsBlank(rec[field]) {
		return fmt.Errorf("%s #%d: документ %q не загружен", def.Title, id, def.Label(field))
	}

	out, err := detail.NewDownloader(a.client(), a.logger).Download(ctx, rec.Text(field), *dir)
	if err != nil {
		return err
	}
	if out.FallbackURL != "" {
		fmt.Fprintf(a.out, "Файл не загружен, откройте по ссылке: %s\n", out.FallbackURL)
		return nil
	}
	fmt.Fprintf(a.out, "Сохранено: %s\n", out.SavedPath)
	return nil
}

func runPrint(ctx context.Context, a *App, args []string) error {
	fs := a.flagSet("print")
	dir := fs.StringP("output", "o", ".", "каталог для страниц")
	rest, err := parseArgs(fs, args, 2)
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

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		return fmt.Errorf("создание каталога %s: %w", *dir, err)
	}
	title := fmt.Sprintf("%s #%d", def.Kind, id)
	for i, page := range detail.Pages(title, detail.Visible(rec, def), detail.A4) {
		target := filepath.Join(*dir, fmt.Sprintf("%s-%d-%d.png", def.Kind, id, i+1))
		if err := writePNG(target, page); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Страница %d: %s\n", i+1, target)
	}
	return nil
}

func writePNG(path string, page image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("создание файла %s: %w", path, err)
	}
	if err := detail.EncodePNG(f, page); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("закрытие файла %s: %w", path, err)
	}
	return nil
}
