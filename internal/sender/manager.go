package sender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/whatsapp-sender/internal/session"
	"github.com/shehryarbajwa/whatsapp-sender/pkg/models"
)

// ErrNoActiveRun is returned by Stop and Screenshot when nothing is running
var ErrNoActiveRun = errors.New("no run in progress")

// SessionFactory builds a fresh session handle for each run
type SessionFactory func() Session

// inspectable is implemented by sessions that can show their page
type inspectable interface {
	Screenshot(ctx context.Context) ([]byte, error)
	LoginState() session.LoginState
}

// ManagerOptions bounds what an operator may ask for
type ManagerOptions struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Manager runs at most one send run at a time
type Manager struct {
	factory  SessionFactory
	reporter Reporter
	opts     ManagerOptions
	logger   *zap.Logger

	// slot holds the single session a run may own
	slot *semaphore.Weighted

	mu      sync.Mutex
	runID   string
	cancel  context.CancelFunc
	session Session
	done    chan struct{}
}

// NewManager creates a run manager
func NewManager(factory SessionFactory, reporter Reporter, opts ManagerOptions, logger *zap.Logger) *Manager {
	return &Manager{
		factory:  factory,
		reporter: reporter,
		opts:     opts,
		logger:   logger.Named("sender"),
		slot:     semaphore.NewWeighted(1),
	}
}

// ValidateDelay checks a requested pause against the configured bounds
func (m *Manager) ValidateDelay(delay time.Duration) error {
	if delay < m.opts.MinDelay || delay > m.opts.MaxDelay {
		return fmt.Errorf("delay must be between %s and %s", m.opts.MinDelay, m.opts.MaxDelay)
	}
	return nil
}

// Start launches a run in the background and returns its description
func (m *Manager) Start(batch *models.Batch, delay time.Duration) (RunInfo, error) {
	if err := m.ValidateDelay(delay); err != nil {
		return RunInfo{}, err
	}
	if batch == nil || len(batch.Rows) == 0 {
		return RunInfo{}, errors.New("batch has no rows")
	}

	if !m.slot.TryAcquire(1) {
		return RunInfo{}, models.ErrRunInProgress
	}

	info := RunInfo{
		ID:     uuid.New().String(),
		Source: batch.Source,
		Total:  len(batch.Rows),
		Delay:  delay,
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess := m.factory()
	done := make(chan struct{})

	m.mu.Lock()
	m.runID = info.ID
	m.cancel = cancel
	m.session = sess
	m.done = done
	m.mu.Unlock()

	m.logger.Info("run started",
		zap.String("run", info.ID),
		zap.String("source", info.Source),
		zap.Int("rows", info.Total),
		zap.Duration("delay", delay))

	go func() {
		defer close(done)
		defer m.slot.Release(1)
		defer cancel()

		loop := NewLoop(delay, m.logger)
		loop.Execute(ctx, info, batch.Rows, sess, m.reporter)

		m.mu.Lock()
		m.cancel = nil
		m.mu.Unlock()
	}()

	return info, nil
}

// Stop asks the active run to halt after its in-flight send
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return ErrNoActiveRun
	}
	m.logger.Info("stop requested", zap.String("run", m.runID))
	m.cancel()
	return nil
}

// Running reports whether a run is in progress
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// LoginState reports the login state of the current or last session
func (m *Manager) LoginState() session.LoginState {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()

	if s, ok := sess.(inspectable); ok {
		return s.LoginState()
	}
	return session.StateIdle
}

// Screenshot captures the page of the active session
func (m *Manager) Screenshot(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	sess, running := m.session, m.cancel != nil
	m.mu.Unlock()

	if !running {
		return nil, ErrNoActiveRun
	}
	s, ok := sess.(inspectable)
	if !ok {
		return nil, errors.New("session cannot take screenshots")
	}
	return s.Screenshot(ctx)
}

// Shutdown stops the active run and waits for its session to close
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()

	if err := m.Stop(); err != nil && !errors.Is(err, ErrNoActiveRun) {
		return err
	}
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("run did not stop in time: %w", ctx.Err())
	}
}
