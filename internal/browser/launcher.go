package browser

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

// Instance is a running Chrome that chromedp can attach tabs to
type Instance struct {
	ID          string
	ContainerID string // empty for a local browser
	ConnectURL  string // empty for a local browser
	UserDataDir string

	// AllocCtx is the chromedp allocator context; tabs derive from it
	AllocCtx context.Context

	cancel    context.CancelFunc
	stop      func(ctx context.Context) error
	running   func(ctx context.Context) bool
	closeOnce sync.Once
	closeErr  error
}

// Close shuts the browser down. Safe to call more than once.
func (i *Instance) Close(ctx context.Context) error {
	i.closeOnce.Do(func() {
		if i.cancel != nil {
			i.cancel()
		}
		if i.stop != nil {
			i.closeErr = i.stop(ctx)
		}
	})
	return i.closeErr
}

// Alive reports whether the browser is still there to talk to
func (i *Instance) Alive(ctx context.Context) bool {
	if i.AllocCtx.Err() != nil {
		return false
	}
	if i.running != nil {
		return i.running(ctx)
	}
	return true
}

// LaunchOptions controls a single browser launch
type LaunchOptions struct {
	UserDataDir string
}

// Launcher provisions browsers for automation sessions
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (*Instance, error)
}

// LocalLauncher starts Chrome on this machine through chromedp's exec allocator
type LocalLauncher struct {
	ExecPath string
	Headless bool
}

// NewLocalLauncher creates a launcher for a locally installed Chrome
func NewLocalLauncher(execPath string, headless bool) *LocalLauncher {
	return &LocalLauncher{ExecPath: execPath, Headless: headless}
}

// Launch starts Chrome with a persistent user-data directory
func (l *LocalLauncher) Launch(ctx context.Context, opts LaunchOptions) (*Instance, error) {
	if opts.UserDataDir != "" {
		if err := os.MkdirAll(opts.UserDataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create user data directory: %w", err)
		}
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1200, 800),
	)
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}
	if l.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.ExecPath))
	}

	// The allocator must outlive the launch request, so it is not derived from ctx
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	return &Instance{
		ID:          uuid.New().String(),
		UserDataDir: opts.UserDataDir,
		AllocCtx:    allocCtx,
		cancel:      cancel,
	}, nil
}
