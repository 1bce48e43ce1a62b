package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type staticChecker struct {
	status, message string
}

func (c staticChecker) CheckReady() (string, string) { return c.status, c.message }

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler()
	w := httptest.NewRecorder()
	h.HealthLive(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d", w.Code)
	}
	var resp healthLiveResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Service != "fleetdesk" {
		t.Errorf("ответ = %+v", resp)
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     []NamedChecker
		wantCode   int
		wantStatus string
	}{
		{
			name:       "все ok",
			checks:     []NamedChecker{{"backend", staticChecker{"ok", ""}}, {"sessions", staticChecker{"ok", ""}}},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "degraded",
			checks:     []NamedChecker{{"backend", staticChecker{"degraded", "ещё не проверен"}}, {"sessions", staticChecker{"ok", ""}}},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
		},
		{
			name:       "fail",
			checks:     []NamedChecker{{"backend", staticChecker{"fail", "недоступен"}}, {"sessions", staticChecker{"degraded", ""}}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
		},
		{
			name:       "не инициализирован",
			checks:     []NamedChecker{{"backend", nil}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHealthHandler(tt.checks...).HealthReady(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if w.Code != tt.wantCode {
				t.Errorf("код = %d, ожидался %d", w.Code, tt.wantCode)
			}
			var resp healthReadyResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("статус = %q, ожидался %q", resp.Status, tt.wantStatus)
			}
			if len(resp.Checks) != len(tt.checks) {
				t.Errorf("проверок = %d", len(resp.Checks))
			}
		})
	}
}

func TestGetMetrics(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler().GetMetrics(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Errorf("метрики: код %d", w.Code)
	}
}
