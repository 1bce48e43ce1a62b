// Пакет listing — загрузка коллекции ресурса, поиск, пагинация,
// экспорт и действия над строками.
package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/fleetdesk/internal/config"
	"github.com/bigkaa/fleetdesk/internal/fleetapi"
	"github.com/bigkaa/fleetdesk/internal/resource"
)

// Ошибки загрузчика.
var (
	// ErrSessionExpired — после 401 загрузчик заблокирован до повторного входа.
	// Совпадает с fleetapi.ErrSession через errors.Is.
	ErrSessionExpired error = &fleetapi.Error{Kind: fleetapi.KindSession}
	// ErrUnknownAction — у ресурса нет такого действия.
	ErrUnknownAction = errors.New("неизвестное действие")
	// ErrRecordNotFound — записи нет в последней загруженной коллекции.
	ErrRecordNotFound = errors.New("запись не найдена в списке")
	// ErrPageSize — размер страницы не из допустимого набора.
	ErrPageSize = errors.New("недопустимый размер страницы")
)

const dateLayout = "2006-01-02"

// API — вызовы backend, нужные загрузчику. Реализуется *fleetapi.Client.
type API interface {
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
	PostJSON(ctx context.Context, path string, body any, out any) error
}

// Query — параметры загрузки. Нулевые даты не передаются.
type Query struct {
	From time.Time
	To   time.Time
}

// Loader — состояние списка одного ресурса: последняя загруженная
// коллекция, строка поиска, страница и локальная ошибка.
type Loader struct {
	def    *resource.Definition
	api    API
	logger *slog.Logger

	mu       sync.Mutex
	records  []resource.Record
	loaded   bool
	term     string
	page     int
	pageSize int
	query    Query
	errMsg   string
	expired  bool
}

// NewLoader создаёт загрузчик ресурса def с размером страницы pageSize.
func NewLoader(def *resource.Definition, api API, pageSize int, logger *slog.Logger) *Loader {
	if !config.IsPageSize(pageSize) {
		pageSize = 10
	}
	return &Loader{
		def:      def,
		api:      api,
		pageSize: pageSize,
		page:     1,
		logger:   logger.With(slog.String("component", "listing"), slog.String("resource", string(def.Kind))),
	}
}

// Definition возвращает описание ресурса.
func (l *Loader) Definition() *resource.Definition {
	return l.def
}

// Load запрашивает коллекцию. 2xx заменяет коллекцию, 404 — пустая
// коллекция, 401 — коллекция очищается и загрузчик блокируется,
// прочие ошибки сохраняют коллекцию и дают локальное сообщение.
func (l *Loader) Load(ctx context.Context, q Query) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.expired {
		return ErrSessionExpired
	}

	var query url.Values
	if l.def.DateRange {
		query = url.Values{}
		if !q.From.IsZero() {
			query.Set("start_date", q.From.Format(dateLayout))
		}
		if !q.To.IsZero() {
			query.Set("end_date", q.To.Format(dateLayout))
		}
	}

	var raw json.RawMessage
	err := l.api.GetJSON(ctx, l.def.ListPath, query, &raw)
	switch {
	case err == nil:
		records, decodeErr := decodeCollection(raw)
		if decodeErr != nil {
			l.errMsg = fleetapi.MessageTransport
			l.logger.Warn("Некорректный ответ списка", slog.String("error", decodeErr.Error()))
			return &fleetapi.Error{Kind: fleetapi.KindTransport, Err: decodeErr}
		}
		l.setRecords(records)
	case errors.Is(err, fleetapi.ErrSession):
		l.expire()
		return err
	case fleetapi.IsNotFound(err):
		l.setRecords(nil)
	default:
		l.errMsg = fleetapi.Message(err)
		l.logger.Warn("Ошибка загрузки списка", slog.String("error", err.Error()))
		return err
	}

	l.query = q
	return nil
}

func (l *Loader) setRecords(records []resource.Record) {
	if records == nil {
		records = []resource.Record{}
	}
	l.records = records
	l.loaded = true
	l.errMsg = ""
}

func (l *Loader) expire() {
	l.records = []resource.Record{}
	l.expired = true
	l.errMsg = fleetapi.MessageSession
	l.logger.Info("Сессия истекла, список заблокирован")
}

// decodeCollection принимает массив записей или объект с одним массивом.
func decodeCollection(raw json.RawMessage) ([]resource.Record, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var records []resource.Record
	if err := json.Unmarshal(raw, &records); err == nil {
		return records, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("ответ не является списком: %w", err)
	}
	keys := make([]string, 0, len(wrapper))
	for k := range wrapper {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := json.Unmarshal(wrapper[k], &records); err == nil {
			return records, nil
		}
	}
	return nil, errors.New("ответ не содержит списка записей")
}

// SetSearch задаёт строку поиска и возвращает на первую страницу.
func (l *Loader) SetSearch(term string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.expired {
		return ErrSessionExpired
	}
	if term != l.term {
		l.term = term
		l.page = 1
	}
	return nil
}

// SetPageSize меняет размер страницы и возвращает на первую страницу.
func (l *Loader) SetPageSize(n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.expired {
		return ErrSessionExpired
	}
	if !config.IsPageSize(n) {
		return fmt.Errorf("%w: %d", ErrPageSize, n)
	}
	l.pageSize = n
	l.page = 1
	return nil
}

// SetPage переходит на страницу n (с ограничением диапазона при чтении).
func (l *Loader) SetPage(n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.expired {
		return ErrSessionExpired
	}
	l.page = Paginate(Filter(l.records, l.term, l.def.SearchFields), n, l.pageSize).Number
	return nil
}

// Page возвращает текущую страницу отфильтрованной коллекции.
func (l *Loader) Page() Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Paginate(Filter(l.records, l.term, l.def.SearchFields), l.page, l.pageSize)
}

// Filtered возвращает всю отфильтрованную коллекцию.
func (l *Loader) Filtered() []resource.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Filter(l.records, l.term, l.def.SearchFields)
}

// Search возвращает текущую строку поиска.
func (l *Loader) Search() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.term
}

// LastQuery возвращает параметры последней успешной загрузки.
func (l *Loader) LastQuery() Query {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.query
}

// Loaded сообщает, была ли успешная загрузка.
func (l *Loader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Err возвращает локальное сообщение об ошибке последней операции.
func (l *Loader) Err() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errMsg
}

// SessionExpired сообщает, что загрузчик заблокирован после 401.
func (l *Loader) SessionExpired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expired
}

// Record возвращает запись id из последней загрузки.
func (l *Loader) Record(id int) (resource.Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexOf(id)
	if i < 0 {
		return nil, false
	}
	return l.records[i], true
}

func (l *Loader) indexOf(id int) int {
	for i, r := range l.records {
		if rid, ok := r.ID(); ok && rid == id {
			return i
		}
	}
	return -1
}

// Apply выполняет действие над записью id и при успехе удаляет или
// изменяет её в памяти без перезагрузки списка.
func (l *Loader) Apply(ctx context.Context, id int, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.expired {
		return ErrSessionExpired
	}
	action, ok := l.def.Action(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	if l.indexOf(id) < 0 {
		return fmt.Errorf("%w: %d", ErrRecordNotFound, id)
	}

	if err := l.api.PostJSON(ctx, l.def.ActionPath(name, id), nil, nil); err != nil {
		if errors.Is(err, fleetapi.ErrSession) {
			l.expire()
			return err
		}
		l.errMsg = fleetapi.Message(err)
		return err
	}

	i := l.indexOf(id)
	switch action.Effect {
	case resource.EffectRemove:
		// Новый срез: выданные ранее страницы ссылаются на старый массив.
		l.records = append(l.records[:i:i], l.records[i+1:]...)
	case resource.EffectPatch:
		patched := make(resource.Record, len(l.records[i]))
		for k, v := range l.records[i] {
			patched[k] = v
		}
		patched[action.PatchField] = action.PatchValue
		l.records[i] = patched
	}
	l.errMsg = ""
	l.logger.Info("Действие выполнено",
		slog.String("action", name),
		slog.Int("id", id),
	)
	return nil
}
