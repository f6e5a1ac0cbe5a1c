package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/whatsapp-sender/internal/browser"
	"github.com/shehryarbajwa/whatsapp-sender/internal/profile"
	"github.com/shehryarbajwa/whatsapp-sender/pkg/models"
)

// LoginState is how far WhatsApp Web got towards a usable session
type LoginState string

const (
	StateIdle     LoginState = "IDLE"
	StateStarting LoginState = "STARTING"
	StateQRNeeded LoginState = "QR_NEEDED"
	StateLoggedIn LoginState = "LOGGED_IN"
	StateClosed   LoginState = "CLOSED"
)

const closeTimeout = 30 * time.Second

// Options tunes a Controller
type Options struct {
	BaseURL      string
	LoginTimeout time.Duration
	SendTimeout  time.Duration
	PollInterval time.Duration
	UserDataDir  string
	ProfileName  string
}

// Controller owns the single browser session of a run. It is the session
// handle: once closed it cannot be opened again.
type Controller struct {
	launcher browser.Launcher
	profiles *profile.Store
	opts     Options
	logger   *zap.Logger

	// mu serialises every browser action; a send holds it end to end
	mu        sync.Mutex
	inst      *browser.Instance
	page      page
	tabCtx    context.Context
	tabCancel context.CancelFunc
	opened    bool

	stateMu sync.RWMutex
	state   LoginState

	closeOnce sync.Once
	closeErr  error
}

// NewController creates an unopened session handle. profiles may be nil.
func NewController(launcher browser.Launcher, profiles *profile.Store, opts Options, logger *zap.Logger) *Controller {
	return &Controller{
		launcher: launcher,
		profiles: profiles,
		opts:     opts,
		logger:   logger.Named("session"),
		state:    StateIdle,
	}
}

// LoginState returns the last observed login state
func (c *Controller) LoginState() LoginState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Controller) setState(s LoginState) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state != s && c.state != StateClosed {
		c.logger.Info("login state changed", zap.String("from", string(c.state)), zap.String("to", string(s)))
		c.state = s
	}
}

// Open launches the browser and waits until WhatsApp Web shows the chat
// list. It returns a *models.SessionInitError when that does not happen
// within the login timeout.
func (c *Controller) Open(ctx context.Context) error {
	// launch, navigation and login share one deadline
	deadline := time.Now().Add(c.opts.LoginTimeout)

	if err := c.start(ctx, deadline); err != nil {
		c.Close()
		return &models.SessionInitError{Err: err}
	}

	if err := c.waitForLogin(ctx, deadline); err != nil {
		c.Close()
		return &models.SessionInitError{Err: err}
	}

	c.logger.Info("whatsapp web ready")
	return nil
}

func (c *Controller) start(ctx context.Context, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.LoginState() == StateClosed {
		return models.ErrHandleClosed
	}
	if c.opened {
		return errors.New("session already open")
	}
	c.setState(StateStarting)

	if c.profiles != nil && c.opts.UserDataDir != "" {
		restored, err := c.profiles.Restore(c.opts.ProfileName, c.opts.UserDataDir)
		switch {
		case errors.Is(err, profile.ErrNoSnapshot):
		case err != nil:
			c.logger.Warn("failed to restore browser profile", zap.Error(err))
		case restored:
			c.logger.Info("browser profile restored", zap.String("profile", c.opts.ProfileName))
		}
	}

	inst, err := c.launcher.Launch(ctx, browser.LaunchOptions{UserDataDir: c.opts.UserDataDir})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	c.inst = inst
	c.tabCtx, c.tabCancel = chromedp.NewContext(inst.AllocCtx)

	// The first Run allocates the tab and must use the tab context itself,
	// otherwise a timeout on the call would tear the browser down
	if err := chromedp.Run(c.tabCtx); err != nil {
		return fmt.Errorf("failed to start browser tab: %w", err)
	}
	c.page = tabPage{}
	c.opened = true

	actx, cancel := c.actionCtx(ctx, time.Until(deadline))
	defer cancel()
	if err := c.page.Navigate(actx, c.opts.BaseURL); err != nil {
		return fmt.Errorf("failed to open %s: %w", c.opts.BaseURL, err)
	}
	return nil
}

func (c *Controller) waitForLogin(ctx context.Context, deadline time.Time) error {
	last := pageLoading

	for {
		state, err := c.evaluate(ctx, loginStateScript())
		if err == nil {
			last = state
			switch state {
			case pageLoggedIn:
				c.setState(StateLoggedIn)
				return nil
			case pageQR:
				c.setState(StateQRNeeded)
			}
		} else if ctx.Err() == nil && !c.inst.Alive(ctx) {
			return fmt.Errorf("browser exited during login: %w", err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("whatsapp web not ready after %s (last page state %s)", c.opts.LoginTimeout, last)
		}
		if err := sleep(ctx, min(c.opts.PollInterval, remaining)); err != nil {
			return fmt.Errorf("login wait cancelled: %w", err)
		}
	}
}

// SendMessage opens the chat for number and submits message. Per-contact
// problems come back as failed outcomes; a dead browser comes back with
// Err wrapping models.ErrSessionLost.
func (c *Controller) SendMessage(ctx context.Context, number, message string) models.Outcome {
	phone, err := NormalizeNumber(number)
	if err != nil {
		return models.Failed("invalid number", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opened || c.LoginState() == StateClosed {
		return models.Failed("session not open", models.ErrSessionLost)
	}

	actx, cancel := c.actionCtx(ctx, c.opts.SendTimeout)
	defer cancel()

	log := c.logger.With(zap.String("number", phone))
	log.Debug("opening chat")

	if err := c.page.Navigate(actx, ChatURL(c.opts.BaseURL, phone, message)); err != nil {
		return c.failure(ctx, "failed to open chat", err)
	}

	// Only a compose box holding the text counts as ready, so the empty
	// check below proves the text left it
	state, err := c.pollUntil(actx, composeStateScript(), pageReady, pageInvalid)
	if err != nil {
		if state == pageComposeEmpty {
			return c.failure(ctx, "message not prefilled", err)
		}
		return c.failure(ctx, "compose box not found", err)
	}
	if state == pageInvalid {
		return models.Failed("invalid number", fmt.Errorf("%s is not on WhatsApp", phone))
	}

	var clicked bool
	if err := c.page.Eval(actx, clickSendScript(), &clicked); err != nil {
		return c.failure(ctx, "failed to click send", err)
	}
	if !clicked {
		log.Debug("send button not found, pressing enter")
		if err := c.page.PressEnter(actx); err != nil {
			return c.failure(ctx, "send button not found", err)
		}
	}

	if _, err := c.pollUntil(actx, composeEmptyScript(), "true"); err != nil {
		return c.failure(ctx, "submission not confirmed", err)
	}

	log.Info("message sent")
	return models.Sent()
}

// Screenshot captures the visible page, e.g. for scanning the QR code
// of a headless browser
func (c *Controller) Screenshot(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opened || c.LoginState() == StateClosed {
		return nil, errors.New("session not open")
	}

	actx, cancel := c.actionCtx(ctx, 10*time.Second)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(actx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// Close releases the browser and saves the profile. Only the first call
// does anything.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.stateMu.Lock()
		c.state = StateClosed
		c.stateMu.Unlock()

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.tabCancel != nil {
			c.tabCancel()
		}

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()

		var errs []error
		if c.inst != nil {
			if err := c.inst.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop browser: %w", err))
			}
		}

		if c.opened && c.profiles != nil && c.opts.UserDataDir != "" {
			if p, err := c.profiles.Save(c.opts.ProfileName, c.opts.UserDataDir); err != nil {
				errs = append(errs, fmt.Errorf("failed to save profile: %w", err))
			} else {
				c.logger.Info("browser profile saved", zap.String("profile", p.Name), zap.Int64("bytes", p.Size))
			}
		}

		c.closeErr = errors.Join(errs...)
		c.logger.Info("session closed")
	})
	return c.closeErr
}

// actionCtx derives a bounded context from the tab that also ends when
// parent does
func (c *Controller) actionCtx(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	actx, cancel := context.WithTimeout(c.tabCtx, timeout)
	stop := context.AfterFunc(parent, cancel)
	return actx, func() {
		stop()
		cancel()
	}
}

func (c *Controller) evaluate(ctx context.Context, script string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	actx, cancel := c.actionCtx(ctx, c.opts.PollInterval*4)
	defer cancel()

	var res string
	err := c.page.Eval(actx, script, &res)
	return res, err
}

// pollUntil evaluates script until it yields one of want. On error it
// returns the last value seen. Callers hold mu.
func (c *Controller) pollUntil(ctx context.Context, script string, want ...string) (string, error) {
	last := ""
	for {
		var res any
		if err := c.page.Eval(ctx, script, &res); err != nil {
			return last, err
		}
		last = fmt.Sprint(res)
		for _, w := range want {
			if last == w {
				return last, nil
			}
		}
		if err := sleep(ctx, c.opts.PollInterval); err != nil {
			return last, err
		}
	}
}

// failure turns an automation error into an outcome, telling a dead
// browser apart from a page that did not behave
func (c *Controller) failure(ctx context.Context, detail string, err error) models.Outcome {
	aliveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if c.tabCtx.Err() != nil || !c.inst.Alive(aliveCtx) {
		c.logger.Error("browser session lost", zap.String("detail", detail), zap.Error(err))
		return models.Failed("session lost", fmt.Errorf("%s: %w: %v", detail, models.ErrSessionLost, err))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		detail += " (timeout)"
	}
	c.logger.Warn("send failed", zap.String("detail", detail), zap.Error(err))
	return models.Failed(detail, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
