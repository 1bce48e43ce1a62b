package form

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bigkaa/fleetdesk/internal/fleetapi"
	"github.com/bigkaa/fleetdesk/internal/resource"
	"github.com/bigkaa/fleetdesk/internal/session"
)

func def(t *testing.T, kind resource.Kind) *resource.Definition {
	t.Helper()
	d, err := resource.Default().Get(kind)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func mustSet(t *testing.T, c *Controller, kv ...string) {
	t.Helper()
	for i := 0; i+1 < len(kv); i += 2 {
		if err := c.Set(kv[i], kv[i+1]); err != nil {
			t.Fatalf("Set(%s) ошибка: %v", kv[i], err)
		}
	}
}

// fillVehicle проходит все шаги формы транспорта до последнего.
func fillVehicle(t *testing.T, c *Controller) {
	t.Helper()
	mustSet(t, c, "vehicle_number", "KA01AB1234", "model", "Tata Starbus", "capacity", "40")
	if !c.Next() {
		t.Fatalf("шаг 1: %v", c.Errors())
	}
	mustSet(t, c, "tyre_count", "6")
	if !c.Next() {
		t.Fatalf("шаг 2: %v", c.Errors())
	}
	mustSet(t, c, "loan_status", "No")
	if !c.Next() {
		t.Fatalf("шаг 3: %v", c.Errors())
	}
}

func TestWizard_NextBackJump(t *testing.T) {
	c := New(def(t, resource.Vehicles))

	if c.Next() {
		t.Fatal("Next() прошёл с пустыми обязательными полями")
	}
	if c.Step() != 0 {
		t.Errorf("Step() = %d после отказа", c.Step())
	}
	if len(c.Errors()) == 0 || c.Error("vehicle_number") == "" {
		t.Errorf("нет ошибок полей: %v", c.Errors())
	}

	mustSet(t, c, "vehicle_number", "KA01")
	if c.Error("vehicle_number") != "" {
		t.Error("Set() не снял ошибку поля")
	}
	if c.Error("model") == "" {
		t.Error("Set() снял ошибку чужого поля")
	}

	mustSet(t, c, "model", "Bus", "capacity", "40")
	if !c.Next() || c.Step() != 1 {
		t.Fatalf("Next() не продвинул: шаг %d, ошибки %v", c.Step(), c.Errors())
	}

	// Назад без проверки, даже с ошибками на текущем шаге.
	c.Back()
	if c.Step() != 0 {
		t.Errorf("Back() = %d", c.Step())
	}
	c.Back()
	if c.Step() != 0 {
		t.Errorf("Back() на первом шаге = %d", c.Step())
	}

	if err := c.JumpTo(1); !errors.Is(err, ErrInvalidJump) {
		t.Errorf("JumpTo(вперёд) = %v", err)
	}
	_ = c.Next()
	mustSet(t, c, "tyre_count", "4")
	_ = c.Next()
	if c.Step() != 2 {
		t.Fatalf("Step() = %d", c.Step())
	}
	if err := c.JumpTo(0); err != nil || c.Step() != 0 {
		t.Errorf("JumpTo(0) = %v, шаг %d", err, c.Step())
	}
	if err := c.JumpTo(0); !errors.Is(err, ErrInvalidJump) {
		t.Errorf("JumpTo(текущий) = %v", err)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		kind   resource.Kind
		values []string
		field  string
		want   string
	}{
		{"email", resource.Supervisors, []string{"email", "not-an-email"}, "email", msgEmail},
		{"целое", resource.Groups, []string{"group_name", "G", "supervisor_id", "12a"}, "supervisor_id", msgInt},
		{"дата", resource.Drivers, []string{"date_of_birth", "31.12.1990"}, "date_of_birth", msgDate},
		{"список", resource.Tickets, []string{"title", "x", "description", "y", "priority", "Urgent"}, "priority", msgOption},
		{"необязательное пустое", resource.Groups, []string{"group_name", "G"}, "supervisor_id", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(def(t, tt.kind))
			mustSet(t, c, tt.values...)
			c.Next()
			if got := c.Error(tt.field); got != tt.want {
				t.Errorf("ошибка %s = %q, ожидалась %q", tt.field, got, tt.want)
			}
		})
	}
}

func TestConditionalRequirement(t *testing.T) {
	c := New(def(t, resource.Vehicles))
	mustSet(t, c, "vehicle_number", "KA01", "model", "Bus", "capacity", "40")
	c.Next()
	mustSet(t, c, "tyre_count", "4")
	c.Next()

	mustSet(t, c, "loan_status", "Yes")
	if c.Next() {
		t.Fatal("Next() прошёл без кредитора при loan_status=Yes")
	}
	if c.Error("loan_provider") != msgRequired || c.Error("loan_amount") != msgRequired {
		t.Errorf("ошибки: %v", c.Errors())
	}

	mustSet(t, c, "loan_status", "No")
	if !c.Next() {
		t.Errorf("Next() не прошёл при loan_status=No: %v", c.Errors())
	}
}

func TestTyreExpansion(t *testing.T) {
	c := New(def(t, resource.Vehicles))

	mustSet(t, c, "tyre_count", "4")
	if n := len(c.ExtraTyres()); n != 0 {
		t.Fatalf("при 4 шинах дополнительных %d", n)
	}

	mustSet(t, c, "tyre_count", "6")
	extra := c.ExtraTyres()
	if len(extra) != 2 || extra[0] != "" || extra[1] != "" {
		t.Fatalf("при 6 шинах: %q", extra)
	}

	_ = c.SetExtraTyre(0, "Good")
	_ = c.SetExtraTyre(1, "Worn")
	mustSet(t, c, "tyre_count", "5")
	extra = c.ExtraTyres()
	if len(extra) != 1 || extra[0] != "Good" {
		t.Fatalf("при 5 шинах: %q", extra)
	}

	mustSet(t, c, "tyre_count", "шесть")
	if len(c.ExtraTyres()) != 1 {
		t.Errorf("нечисловое количество изменило список: %q", c.ExtraTyres())
	}

	mustSet(t, c, "tyre_count", "8")
	extra = c.ExtraTyres()
	if len(extra) != 4 || extra[0] != "Good" || extra[3] != "" {
		t.Errorf("при 8 шинах: %q", extra)
	}

	mustSet(t, c, "tyre_count", "2")
	if len(c.ExtraTyres()) != 0 {
		t.Errorf("при 2 шинах: %q", c.ExtraTyres())
	}
	if err := c.SetExtraTyre(0, "New"); err == nil {
		t.Error("SetExtraTyre() вне диапазона без ошибки")
	}
}

func TestPayload(t *testing.T) {
	c := New(def(t, resource.Vehicles))
	mustSet(t, c, "vehicle_number", " KA01 ", "capacity", "40", "tyre_count", "5", "make", "")
	_ = c.SetExtraTyre(0, "New")

	p := c.Payload()
	if p.Multipart() {
		t.Error("без файлов ожидался JSON")
	}
	if p.JSON["vehicle_number"] != "KA01" {
		t.Errorf("vehicle_number = %#v", p.JSON["vehicle_number"])
	}
	if p.JSON["capacity"] != 40 {
		t.Errorf("capacity = %#v, ожидалось целое 40", p.JSON["capacity"])
	}
	if _, ok := p.JSON["make"]; ok {
		t.Error("пустое поле make отправляется")
	}
	if v, ok := p.JSON["loan_provider"]; !ok || v != "" {
		t.Errorf("loan_provider (AlwaysSend) = %#v, %v", v, ok)
	}
	if v, ok := p.JSON["loan_amount"]; !ok || v != nil {
		t.Errorf("loan_amount (AlwaysSend) = %#v, %v", v, ok)
	}
	if tyres, ok := p.JSON["extra_tyre_status"].([]string); !ok || len(tyres) != 1 || tyres[0] != "New" {
		t.Errorf("extra_tyre_status = %#v", p.JSON["extra_tyre_status"])
	}

	_ = c.Attach("rc_document", "rc.pdf", []byte("%PDF"))
	p = c.Payload()
	if !p.Multipart() || len(p.Files) != 1 {
		t.Fatalf("ожидался multipart с одним файлом")
	}
	form := p.Form()
	if form.Get("capacity") != "40" || form.Get("loan_amount") != "" || form["extra_tyre_status"][0] != "New" {
		t.Errorf("Form() = %v", form)
	}
}

func TestSubmit_NotTerminal(t *testing.T) {
	c := New(def(t, resource.Vehicles))
	if _, err := c.Submit(context.Background(), nil, "/x"); !errors.Is(err, ErrNotTerminalStep) {
		t.Errorf("Submit() на первом шаге = %v", err)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type staticCreds struct{}

func (staticCreds) Token(context.Context) (string, error)      { return "tok", nil }
func (staticCreds) Invalidate(context.Context, session.Reason) {}

func setupMockBackend(t *testing.T, handler http.HandlerFunc) *fleetapi.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := fleetapi.New(server.URL, 0, "", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return client.WithCredentials(staticCreds{})
}

func TestSubmit_CreateMultipart(t *testing.T) {
	var gotPath, gotTyres string
	client := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		gotTyres = r.FormValue("extra_tyre_status")
		_, _ = w.Write([]byte(`{"message":"Vehicle added"}`))
	})

	c := New(def(t, resource.Vehicles), WithRedirectDelay(2*time.Second))
	fillVehicle(t, c)
	if !c.IsTerminal() {
		t.Fatalf("не последний шаг: %d", c.Step())
	}

	// Обязательный документ не приложен.
	if _, err := c.Submit(context.Background(), client, "/resources/vehicles"); !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("Submit() без документа = %v", err)
	}
	if c.Step() != 3 || c.Error("rc_document") == "" {
		t.Errorf("шаг %d, ошибки %v", c.Step(), c.Errors())
	}

	_ = c.Attach("rc_document", "rc.pdf", []byte("%PDF"))
	_ = c.SetExtraTyre(1, "Worn")
	res, err := c.Submit(context.Background(), client, "/resources/vehicles")
	if err != nil {
		t.Fatalf("Submit() ошибка: %v", err)
	}
	if gotPath != "/vehicles/create" {
		t.Errorf("путь = %q", gotPath)
	}
	if gotTyres != "" {
		t.Errorf("первый статус дополнительной шины = %q, ожидалась пустая строка", gotTyres)
	}
	if res.Message != "Vehicle added" || res.RedirectTo != "/resources/vehicles" || res.After != 2*time.Second {
		t.Errorf("Result = %+v", res)
	}
	if c.Step() != 0 || c.Value("vehicle_number") != "" || c.Attached("rc_document") != "" {
		t.Error("черновик не сброшен после успеха")
	}
}

func TestSubmit_FailureKeepsDraft(t *testing.T) {
	client := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"loc":["body","email"],"msg":"Email already registered"}]}`))
	})

	c := New(def(t, resource.Supervisors))
	mustSet(t, c, "name", "Ivan", "email", "ivan@fleet.io", "contact_number", "123", "group_id", "3")

	_, err := c.Submit(context.Background(), client, "/resources/supervisors")
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if fleetapi.Message(err) != "Email already registered" {
		t.Errorf("Message() = %q", fleetapi.Message(err))
	}
	if c.Error("email") != "Email already registered" {
		t.Errorf("ошибка поля email = %q", c.Error("email"))
	}
	if c.Value("name") != "Ivan" {
		t.Error("черновик потерян после ошибки")
	}
}

func TestEdit_PrefillAndUpdate(t *testing.T) {
	var body map[string]any
	var gotPath string
	client := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{}`))
	})

	rec := resource.Record{
		"id":                 float64(5),
		"vehicle_number":     "KA05",
		"model":              "Bus",
		"capacity":           float64(30),
		"tyre_count":         float64(6),
		"extra_tyre_status":  []any{"Good", "New"},
		"loan_status":        "No",
		"rc_document":        "/uploads/rc5.pdf",
		"insurance_document": nil,
	}
	c, err := NewEdit(def(t, resource.Vehicles), rec)
	if err != nil {
		t.Fatalf("NewEdit() ошибка: %v", err)
	}
	if c.Value("capacity") != "30" || !c.Stored("rc_document") || c.Stored("insurance_document") {
		t.Errorf("заполнение: capacity=%q rc=%v ins=%v", c.Value("capacity"), c.Stored("rc_document"), c.Stored("insurance_document"))
	}
	if extra := c.ExtraTyres(); len(extra) != 2 || extra[1] != "New" {
		t.Errorf("ExtraTyres() = %q", extra)
	}

	for c.Next() && !c.IsTerminal() {
	}
	if !c.IsTerminal() {
		t.Fatalf("не дошли до последнего шага: %v", c.Errors())
	}
	res, err := c.Submit(context.Background(), client, "/resources/vehicles")
	if err != nil {
		t.Fatalf("Submit() ошибка: %v", err)
	}
	if gotPath != "/vehicles/update/5" {
		t.Errorf("путь = %q", gotPath)
	}
	if body["capacity"] != float64(30) {
		t.Errorf("capacity = %#v", body["capacity"])
	}
	if res.Message != "Изменения сохранены" || res.After != DefaultRedirectDelay {
		t.Errorf("Result = %+v", res)
	}
	if c.Value("vehicle_number") != "KA05" {
		t.Error("после сброса форма редактирования потеряла исходные значения")
	}

	if _, err := NewEdit(def(t, resource.Vehicles), resource.Record{"name": "x"}); err == nil {
		t.Error("NewEdit() без id без ошибки")
	}
}

func TestSetUnknownField(t *testing.T) {
	c := New(def(t, resource.Groups))
	if err := c.Set("nope", "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("Set(nope) = %v", err)
	}
	if err := c.Attach("group_name", "a.txt", nil); !errors.Is(err, ErrUnknownField) {
		t.Errorf("Attach(текстовое поле) = %v", err)
	}
}
