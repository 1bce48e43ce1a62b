package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBackendHealthPath(t *testing.T) {
	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{"корень", "https://fleet.example.com", "/", "/"},
		{"путь проверки", "https://fleet.example.com", "/docs", "/docs"},
		{"базовый путь", "https://fleet.example.com/api", "/health", "/api/health"},
		{"базовый путь и корень", "https://fleet.example.com/api", "/", "/api/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := backendHealthPath(tt.base, tt.path); got != tt.want {
				t.Errorf("backendHealthPath(%q, %q) = %q, ожидалось %q", tt.base, tt.path, got, tt.want)
			}
		})
	}
}

func runDephealth(t *testing.T, status int, id string) *DephealthService {
	t.Helper()
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(mockServer.Close)

	ds, err := NewDephealthServiceWithRegisterer(DephealthConfig{
		ServiceID:         id,
		Group:             "fleetdesk",
		BackendURL:        mockServer.URL,
		BackendHealthPath: "/",
		CheckInterval:     1 * time.Second,
	}, testLogger(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := ds.Start(ctx); err != nil {
		t.Fatalf("Ошибка запуска: %v", err)
	}
	t.Cleanup(ds.Stop)

	// Даём время на первую проверку (интервал 1s + запас)
	time.Sleep(3 * time.Second)
	return ds
}

func TestDephealthService_HealthyBackend(t *testing.T) {
	ds := runDephealth(t, http.StatusOK, "test-fd-01")
	if status, msg := ds.CheckReady(); status != "ok" {
		t.Errorf("CheckReady() = %q (%s), ожидалось ok; health=%v", status, msg, ds.Health())
	}
}

func TestDephealthService_UnhealthyBackend(t *testing.T) {
	ds := runDephealth(t, http.StatusInternalServerError, "test-fd-02")
	if status, _ := ds.CheckReady(); status != "fail" {
		t.Errorf("CheckReady() = %q, ожидалось fail; health=%v", status, ds.Health())
	}
}
