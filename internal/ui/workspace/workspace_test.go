package workspace

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bigkaa/fleetdesk/internal/fleetapi"
	"github.com/bigkaa/fleetdesk/internal/form"
	"github.com/bigkaa/fleetdesk/internal/resource"
	"github.com/bigkaa/fleetdesk/internal/session"
)

func newManager(t *testing.T) (*Manager, *session.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	client, err := fleetapi.New("http://127.0.0.1:1", 0, "", logger)
	if err != nil {
		t.Fatal(err)
	}
	store := session.NewMemoryStore(10, time.Hour)
	m := NewManager(store, client, resource.Default(), Config{
		Size:          10,
		TTL:           time.Hour,
		PageSize:      25,
		RedirectDelay: time.Second,
	}, logger)
	return m, store
}

func TestManager_GetReturnsSameWorkspace(t *testing.T) {
	m, _ := newManager(t)

	a := m.Get("id-1")
	b := m.Get("id-1")
	if a != b {
		t.Error("повторный Get() создал новую область")
	}
	if m.Get("id-2") == a {
		t.Error("разные сессии делят область")
	}
	if a.Session.Key() != "id-1" {
		t.Errorf("Key() = %q", a.Session.Key())
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d", m.Len())
	}
}

func TestManager_InvalidateDropsWorkspace(t *testing.T) {
	m, store := newManager(t)
	ws := m.Get("id-1")
	_ = store.Save(context.Background(), "id-1", &session.Credential{Token: "x", LoggedIn: true})

	ws.Session.Invalidate(context.Background(), session.ReasonRejected)

	if m.Len() != 0 {
		t.Errorf("область не удалена после очистки сессии, Len() = %d", m.Len())
	}
	if store.Len() != 0 {
		t.Error("учётные данные не удалены")
	}
	if m.Get("id-1") == ws {
		t.Error("после очистки возвращена старая область")
	}
}

func TestWorkspace_LoadersAndDrafts(t *testing.T) {
	m, _ := newManager(t)
	ws := m.Get("id-1")
	ws.Lock()
	defer ws.Unlock()

	l1, err := ws.Loader(resource.Drivers)
	if err != nil {
		t.Fatal(err)
	}
	l2, _ := ws.Loader(resource.Drivers)
	if l1 != l2 {
		t.Error("Loader() создал второй загрузчик")
	}
	if l1.Page().Size != 25 {
		t.Errorf("размер страницы = %d, ожидалось 25", l1.Page().Size)
	}
	if _, err := ws.Loader("trucks"); err == nil {
		t.Error("неизвестный ресурс без ошибки")
	}

	def, _ := m.Catalogue().Get(resource.Groups)
	c := form.New(def, ws.FormOptions()...)
	ws.OpenDraft("groups/new", c)
	if got, ok := ws.Draft("groups/new"); !ok || got != c {
		t.Error("черновик не найден")
	}
	ws.CloseDraft("groups/new")
	if _, ok := ws.Draft("groups/new"); ok {
		t.Error("черновик не удалён")
	}
}
