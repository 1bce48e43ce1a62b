// Пакет cli — терминальный клиент backend автопарка (fleetctl):
// вход и выход, списки, экспорт, действия, карточки, загрузка
// документов, печать и пошаговые формы.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bigkaa/fleetdesk/internal/config"
	"github.com/bigkaa/fleetdesk/internal/fleetapi"
	"github.com/bigkaa/fleetdesk/internal/resource"
	"github.com/bigkaa/fleetdesk/internal/session"
)

// Коды завершения fleetctl.
const (
	ExitSuccess = iota
	// ExitError — ошибка backend или ввода-вывода.
	ExitError
	// ExitUsage — неверные аргументы.
	ExitUsage
	// ExitSessionExpired — нет входа или сессия истекла: нужен fleetctl login.
	ExitSessionExpired
)

// Переменные окружения fleetctl.
const (
	EnvAPIURL      = "FLEETCTL_API_URL"
	EnvProfile     = "FLEETCTL_PROFILE"
	EnvSessionFile = "FLEETCTL_SESSION_FILE"
	EnvCACert      = "FLEETCTL_CA_CERT"
)

// errUsage — ошибка аргументов команды.
var errUsage = errors.New("неверные аргументы")

// errCancelled — пользователь прервал форму.
var errCancelled = errors.New("отменено пользователем")

// App — состояние одного запуска fleetctl.
type App struct {
	api       *fleetapi.Client
	store     session.Store
	sess      *session.Session
	catalogue *resource.Catalogue
	prompt    Prompter
	out       io.Writer
	errOut    io.Writer
	logger    *slog.Logger
	now       func() time.Time
	pageSize  int
}

// command — подкоманда fleetctl.
type command struct {
	usage string
	help  string
	// public — команда работает без действующей сессии.
	public bool
	run    func(ctx context.Context, a *App, args []string) error
}

var commands = map[string]command{
	"login":    {usage: "login [-u ИМЯ]", help: "вход в backend", public: true, run: runLogin},
	"logout":   {usage: "logout", help: "выход и очистка сохранённой сессии", public: true, run: runLogout},
	"whoami":   {usage: "whoami", help: "профиль текущего пользователя", run: runWhoami},
	"list":     {usage: "list РЕСУРС [-q ПОИСК] [--page N] [--size N] [--from ДАТА] [--to ДАТА]", help: "список записей", run: runList},
	"export":   {usage: "export РЕСУРС [--format csv|xlsx] [-q ПОИСК] [-o КАТАЛОГ]", help: "экспорт списка в файл", run: runExport},
	"action":   {usage: "action РЕСУРС ID ДЕЙСТВИЕ", help: "действие над записью", run: runAction},
	"show":     {usage: "show РЕСУРС ID", help: "карточка записи", run: runShow},
	"download": {usage: "download РЕСУРС ID ПОЛЕ [-o КАТАЛОГ]", help: "загрузка документа записи", run: runDownload},
	"print":    {usage: "print РЕСУРС ID [-o КАТАЛОГ]", help: "страницы печати записи в PNG", run: runPrint},
	"create":   {usage: "create РЕСУРС", help: "пошаговое создание записи", run: runCreate},
	"edit":     {usage: "edit РЕСУРС ID", help: "пошаговое изменение записи", run: runEdit},
}

var commandOrder = []string{"login", "logout", "whoami", "list", "export", "action", "show", "download", "print", "create", "edit"}

// Run разбирает аргументы, выполняет подкоманду и возвращает код завершения.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("fleetctl", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.SetInterspersed(false)

	apiURL := flags.String("api-url", os.Getenv(EnvAPIURL), "базовый URL backend (или "+EnvAPIURL+")")
	profile := flags.StringP("profile", "p", envDefault(EnvProfile, "default"), "имя профиля сессии")
	sessionFile := flags.String("session-file", os.Getenv(EnvSessionFile), "файл сохранённых сессий (TOML)")
	caCert := flags.String("ca-cert", os.Getenv(EnvCACert), "CA-сертификат backend")
	timeout := flags.Duration("timeout", 0, "таймаут запросов к backend (0 — без ограничения)")
	pageSize := flags.Int("size", 10, "размер страницы списков по умолчанию")
	direct := flags.BoolP("direct", "d", false, "читать ввод напрямую, без readline")
	verbose := flags.BoolP("verbose", "v", false, "подробный журнал в stderr")
	version := flags.Bool("version", false, "версия и выход")
	flags.Usage = func() { printUsage(stderr, flags) }

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitSuccess
		}
		return ExitUsage
	}
	if *version {
		fmt.Fprintln(stdout, config.Version)
		return ExitSuccess
	}

	rest := flags.Args()
	if len(rest) == 0 {
		printUsage(stderr, flags)
		return ExitUsage
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "Неизвестная команда %q\nСправка: fleetctl -h\n", rest[0])
		return ExitUsage
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if *apiURL == "" {
		fmt.Fprintf(stderr, "Не задан адрес backend: --api-url или %s\n", EnvAPIURL)
		return ExitUsage
	}
	if *sessionFile == "" {
		path, err := session.DefaultFilePath()
		if err != nil {
			fmt.Fprintf(stderr, "ОШИБКА: %s\n", err.Error())
			return ExitError
		}
		*sessionFile = path
	}
	if !config.IsPageSize(*pageSize) {
		fmt.Fprintf(stderr, "--size: значение %d не из набора %v\n", *pageSize, config.PageSizes)
		return ExitUsage
	}

	api, err := fleetapi.New(*apiURL, *timeout, *caCert, logger)
	if err != nil {
		fmt.Fprintf(stderr, "ОШИБКА: %s\n", err.Error())
		return ExitError
	}

	prompt, err := newPrompter(stdin, stdout, *direct)
	if err != nil {
		fmt.Fprintf(stderr, "ОШИБКА: %s\n", err.Error())
		return ExitError
	}
	defer prompt.Close()

	store := session.NewFileStore(*sessionFile, logger)
	a := &App{
		api:       api,
		store:     store,
		sess:      session.New(store, *profile, session.WithLogger(logger)),
		catalogue: resource.Default(),
		prompt:    prompt,
		out:       stdout,
		errOut:    stderr,
		logger:    logger,
		now:       time.Now,
		pageSize:  *pageSize,
	}
	return a.exec(ctx, cmd, rest[1:])
}

// exec проверяет сессию (кроме публичных команд) и выполняет команду.
func (a *App) exec(ctx context.Context, cmd command, args []string) int {
	if !cmd.public {
		if v := a.sess.Guard(ctx); !v.Valid {
			a.sessionExpired(v.Reason)
			return ExitSessionExpired
		}
	}

	err := cmd.run(ctx, a, args)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, errUsage):
		fmt.Fprintf(a.errOut, "%s\nИспользование: fleetctl %s\n", err.Error(), cmd.usage)
		return ExitUsage
	case errors.Is(err, fleetapi.ErrSession), errors.Is(err, session.ErrSessionInvalid):
		a.sessionExpired(session.ReasonRejected)
		return ExitSessionExpired
	case errors.Is(err, errCancelled):
		fmt.Fprintln(a.errOut, "Отменено")
		return ExitError
	default:
		fmt.Fprintf(a.errOut, "ОШИБКА: %s\n", userMessage(err))
		return ExitError
	}
}

func (a *App) sessionExpired(reason session.Reason) {
	if reason == session.ReasonAbsent {
		fmt.Fprintln(a.errOut, "Вход не выполнен. Выполните: fleetctl login")
		return
	}
	fmt.Fprintf(a.errOut, "%s. Выполните: fleetctl login\n", fleetapi.MessageSession)
}

// client возвращает клиент backend с учётными данными сессии профиля.
func (a *App) client() *fleetapi.Client {
	return a.api.WithCredentials(a.sess)
}

// userMessage — текст ошибки для терминала: ошибки backend через
// fleetapi.Message, прочие как есть.
func userMessage(err error) string {
	var e *fleetapi.Error
	if errors.As(err, &e) {
		return fleetapi.Message(err)
	}
	return err.Error()
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printUsage(w io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintf(w, "Использование: fleetctl [флаги] КОМАНДА [аргументы]\n\nКоманды:\n")
	for _, name := range commandOrder {
		c := commands[name]
		fmt.Fprintf(w, "  %-9s %s\n            fleetctl %s\n", name, c.help, c.usage)
	}
	kinds := make([]string, 0, 6)
	for _, def := range resource.Default().All() {
		kinds = append(kinds, string(def.Kind))
	}
	fmt.Fprintf(w, "\nРесурсы: %s\n\nФлаги:\n", strings.Join(kinds, ", "))
	fmt.Fprint(w, flags.FlagUsages())
}
