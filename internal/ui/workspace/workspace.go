// Пакет workspace — рабочие области сессий консоли: объект сессии,
// клиент backend с её учётными данными, загрузчики списков и
// черновики форм. Области живут в LRU с TTL и удаляются при
// очистке сессии.
package workspace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/fleetdesk/internal/fleetapi"
	"github.com/bigkaa/fleetdesk/internal/form"
	"github.com/bigkaa/fleetdesk/internal/listing"
	"github.com/bigkaa/fleetdesk/internal/resource"
	"github.com/bigkaa/fleetdesk/internal/session"
)

var lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fd_workspace_lookups_total",
	Help: "Обращения к кэшу рабочих областей сессий (hit/miss).",
}, []string{"result"})

// Workspace — состояние одной сессии консоли. Обработчики берут
// Lock на время действия пользователя: одно действие за раз.
type Workspace struct {
	mu sync.Mutex

	Session *session.Session
	API     *fleetapi.Client

	catalogue *resource.Catalogue
	pageSize  int
	delay     time.Duration
	logger    *slog.Logger

	loaders map[resource.Kind]*listing.Loader
	drafts  map[string]*form.Controller
}

// Lock захватывает рабочую область.
func (w *Workspace) Lock() { w.mu.Lock() }

// Unlock освобождает рабочую область.
func (w *Workspace) Unlock() { w.mu.Unlock() }

// Loader возвращает загрузчик списка ресурса, создавая его при
// первом обращении. Вызывается под Lock.
func (w *Workspace) Loader(kind resource.Kind) (*listing.Loader, error) {
	if l, ok := w.loaders[kind]; ok {
		return l, nil
	}
	def, err := w.catalogue.Get(kind)
	if err != nil {
		return nil, err
	}
	l := listing.NewLoader(def, w.API, w.pageSize, w.logger)
	w.loaders[kind] = l
	return l, nil
}

// Draft возвращает открытый черновик формы по ключу.
func (w *Workspace) Draft(key string) (*form.Controller, bool) {
	c, ok := w.drafts[key]
	return c, ok
}

// OpenDraft сохраняет новый черновик под ключом.
func (w *Workspace) OpenDraft(key string, c *form.Controller) {
	w.drafts[key] = c
}

// CloseDraft удаляет черновик.
func (w *Workspace) CloseDraft(key string) {
	delete(w.drafts, key)
}

// FormOptions возвращает параметры контроллеров форм.
func (w *Workspace) FormOptions() []form.Option {
	return []form.Option{form.WithRedirectDelay(w.delay)}
}

// Config — параметры менеджера рабочих областей.
type Config struct {
	// Size — максимальное число областей в памяти.
	Size int
	// TTL — время жизни области без обращений.
	TTL time.Duration
	// PageSize — размер страницы списков по умолчанию.
	PageSize int
	// RedirectDelay — задержка перехода после успешной формы.
	RedirectDelay time.Duration
}

// Manager — кэш рабочих областей по идентификатору сессии.
type Manager struct {
	cache     *expirable.LRU[string, *Workspace]
	mu        sync.Mutex
	store     session.Store
	client    *fleetapi.Client
	catalogue *resource.Catalogue
	cfg       Config
	logger    *slog.Logger
}

// NewManager создаёт менеджер рабочих областей.
func NewManager(store session.Store, client *fleetapi.Client, catalogue *resource.Catalogue, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		cache:     expirable.NewLRU[string, *Workspace](cfg.Size, nil, cfg.TTL),
		store:     store,
		client:    client,
		catalogue: catalogue,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "workspace")),
	}
}

// Catalogue возвращает каталог ресурсов.
func (m *Manager) Catalogue() *resource.Catalogue {
	return m.catalogue
}

// Get возвращает рабочую область сессии id, создавая её при
// отсутствии в кэше. Учётные данные при этом не проверяются.
func (m *Manager) Get(id string) *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ws, ok := m.cache.Get(id); ok {
		lookupsTotal.WithLabelValues("hit").Inc()
		return ws
	}
	lookupsTotal.WithLabelValues("miss").Inc()

	sess := session.New(m.store, id,
		session.WithLogger(m.logger),
		session.OnInvalidate(func(_ context.Context, reason session.Reason) {
			m.Drop(id)
		}),
	)
	ws := &Workspace{
		Session:   sess,
		API:       m.client.WithCredentials(sess),
		catalogue: m.catalogue,
		pageSize:  m.cfg.PageSize,
		delay:     m.cfg.RedirectDelay,
		logger:    m.logger.With(slog.String("session", shortID(id))),
		loaders:   map[resource.Kind]*listing.Loader{},
		drafts:    map[string]*form.Controller{},
	}
	m.cache.Add(id, ws)
	return ws
}

// Drop удаляет рабочую область. Ссылки, уже выданные обработчикам,
// остаются рабочими до конца запроса.
func (m *Manager) Drop(id string) {
	m.cache.Remove(id)
}

// Len возвращает число областей в кэше.
func (m *Manager) Len() int {
	return m.cache.Len()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
