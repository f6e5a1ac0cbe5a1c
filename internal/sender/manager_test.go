package sender

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/whatsapp-sender/internal/session"
	"github.com/shehryarbajwa/whatsapp-sender/pkg/models"
)

// blockingSession holds Open until released so a run stays active
type blockingSession struct {
	fakeSession
	release chan struct{}
}

func (b *blockingSession) Open(ctx context.Context) error {
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return &models.SessionInitError{Err: ctx.Err()}
	}
}

func testBatch() *models.Batch {
	return &models.Batch{
		Source: "contacts.csv",
		Rows:   []models.Row{row(2, "111111111", "a")},
	}
}

func testManagerOptions() ManagerOptions {
	return ManagerOptions{MinDelay: 0, MaxDelay: time.Minute}
}

func TestManager_OneRunAtATime(t *testing.T) {
	sess := &blockingSession{release: make(chan struct{})}
	rep := &fakeReporter{}
	m := NewManager(func() Session { return sess }, rep, testManagerOptions(), zap.NewNop())

	info, err := m.Start(testBatch(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if info.ID == "" || info.Total != 1 {
		t.Errorf("info = %+v, want id and total", info)
	}
	if !m.Running() {
		t.Error("Running() = false during a run")
	}

	if _, err := m.Start(testBatch(), 0); !errors.Is(err, models.ErrRunInProgress) {
		t.Errorf("second Start() error = %v, want ErrRunInProgress", err)
	}

	close(sess.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	if m.Running() {
		t.Error("Running() = true after shutdown")
	}
	if sess.closes != 1 {
		t.Errorf("closes = %d, want 1", sess.closes)
	}
	if _, err := m.Start(testBatch(), 0); err != nil {
		t.Errorf("Start() after finished run = %v, want nil", err)
	}
	m.Shutdown(ctx)
}

func TestManager_StopDuringOpen(t *testing.T) {
	sess := &blockingSession{release: make(chan struct{})}
	rep := &fakeReporter{}
	m := NewManager(func() Session { return sess }, rep, testManagerOptions(), zap.NewNop())

	if _, err := m.Start(testBatch(), 0); err != nil {
		t.Fatal(err)
	}
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	rep.mu.Lock()
	defer rep.mu.Unlock()
	if rep.finished != models.RunStopped {
		t.Errorf("finished = %s, want STOPPED", rep.finished)
	}
	if len(sess.sent) != 0 {
		t.Errorf("sends = %v, want none", sess.sent)
	}
}

func TestManager_Validation(t *testing.T) {
	m := NewManager(func() Session { return &fakeSession{} }, &fakeReporter{},
		ManagerOptions{MinDelay: 3 * time.Second, MaxDelay: 30 * time.Second}, zap.NewNop())

	if _, err := m.Start(testBatch(), time.Second); err == nil {
		t.Error("Start() accepted a delay below the minimum")
	}
	if _, err := m.Start(&models.Batch{}, 5*time.Second); err == nil {
		t.Error("Start() accepted an empty batch")
	}
	if err := m.Stop(); !errors.Is(err, ErrNoActiveRun) {
		t.Errorf("Stop() = %v, want ErrNoActiveRun", err)
	}
	if _, err := m.Screenshot(context.Background()); !errors.Is(err, ErrNoActiveRun) {
		t.Errorf("Screenshot() = %v, want ErrNoActiveRun", err)
	}
	if m.LoginState() != session.StateIdle {
		t.Errorf("LoginState() = %s, want IDLE", m.LoginState())
	}
}
