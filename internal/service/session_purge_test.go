package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakePurger struct {
	calls atomic.Int32
	n     int64
	err   error
}

func (f *fakePurger) PurgeExpired(context.Context) (int64, error) {
	f.calls.Add(1)
	return f.n, f.err
}

func TestSessionPurge_PurgeNow(t *testing.T) {
	ok := &fakePurger{n: 3}
	if got := NewSessionPurgeService(ok, time.Minute, testLogger()).PurgeNow(context.Background()); got != 3 {
		t.Errorf("PurgeNow() = %d, ожидалось 3", got)
	}

	failing := &fakePurger{err: errors.New("connection refused")}
	if got := NewSessionPurgeService(failing, time.Minute, testLogger()).PurgeNow(context.Background()); got != 0 {
		t.Errorf("PurgeNow() при ошибке = %d, ожидался 0", got)
	}
}

func TestSessionPurge_StartStop(t *testing.T) {
	p := &fakePurger{n: 1}
	svc := NewSessionPurgeService(p, 10*time.Millisecond, testLogger())

	svc.Start(context.Background())
	time.Sleep(80 * time.Millisecond)
	svc.Stop()

	calls := p.calls.Load()
	if calls == 0 {
		t.Fatal("очистка ни разу не выполнена")
	}
	time.Sleep(30 * time.Millisecond)
	if p.calls.Load() != calls {
		t.Error("очистка продолжается после Stop()")
	}
}
