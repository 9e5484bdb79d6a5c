package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/network"
	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/msgdump/internal/config"
	"github.com/ibeckermayer/msgdump/internal/poll"
	"github.com/ibeckermayer/msgdump/internal/types"
)

// ErrLoginFailed is returned when the login form is still showing after submit
var ErrLoginFailed = errors.New("login failed")

// Browser is the slice of the browser session login needs
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Exists(ctx context.Context, sel string) (bool, error)
	Click(ctx context.Context, sel string) error
	SendKeys(ctx context.Context, sel, keys string) error
	Eval(ctx context.Context, expr string, res any) error
	SetCookies(ctx context.Context, cookies []*network.Cookie) error
	Cookies(ctx context.Context) ([]*network.Cookie, error)
}

// Manager logs the browser into Facebook
type Manager struct {
	cookieStore *CookieStore
	site        config.SiteConfig
	sel         config.Selectors
	polling     config.PollingConfig
	reuse       bool
	log         *logrus.Entry
}

// NewManager creates a new auth manager
func NewManager(cookieStore *CookieStore, cfg *config.Config) *Manager {
	return &Manager{
		cookieStore: cookieStore,
		site:        cfg.Site,
		sel:         cfg.Selectors,
		polling:     cfg.Polling,
		reuse:       cfg.Session.Reuse,
		log:         logrus.WithField("component", "auth"),
	}
}

// Login leaves b logged in. A stored session is tried first when reuse is
// enabled; otherwise, or if the site rejects it, the login form is filled.
func (m *Manager) Login(ctx context.Context, b Browser, creds types.Credentials) error {
	if m.reuse && m.cookieStore.IsValid() {
		ok, err := m.resumeSession(ctx, b)
		if err != nil {
			return err
		}
		if ok {
			m.log.Info("Reused stored session")
			return nil
		}
		m.log.Info("Stored session rejected, logging in with credentials")
	}

	if err := m.formLogin(ctx, b, creds); err != nil {
		return err
	}
	m.log.Info("Login successful")

	if m.reuse {
		cookies, err := b.Cookies(ctx)
		if err != nil {
			return fmt.Errorf("failed to extract cookies: %w", err)
		}
		if err := m.cookieStore.Save(cookies); err != nil {
			m.log.WithError(err).Warn("Failed to save session cookies")
		} else {
			m.log.WithField("path", m.cookieStore.Path()).Debug("Saved session cookies")
		}
	}
	return nil
}

// resumeSession injects stored cookies and reports whether the site
// accepted them, which it shows by redirecting away from the login form.
func (m *Manager) resumeSession(ctx context.Context, b Browser) (bool, error) {
	stored, err := m.cookieStore.Load()
	if err != nil {
		return false, fmt.Errorf("failed to load cookies: %w", err)
	}
	if err := b.SetCookies(ctx, stored.Cookies); err != nil {
		return false, fmt.Errorf("failed to inject cookies: %w", err)
	}
	if err := b.Navigate(ctx, m.site.LoginURL()); err != nil {
		return false, err
	}
	if err := WaitDocumentReady(ctx, b, m.polling); err != nil {
		return false, err
	}

	formShown, err := b.Exists(ctx, m.sel.EmailInput)
	if err != nil {
		return false, err
	}
	return !formShown, nil
}

func (m *Manager) formLogin(ctx context.Context, b Browser, creds types.Credentials) error {
	if err := b.Navigate(ctx, m.site.LoginURL()); err != nil {
		return fmt.Errorf("failed to navigate to login page: %w", err)
	}

	// Keystrokes go to the focused element, so the fields are typed in turn
	if err := b.SendKeys(ctx, m.sel.EmailInput, creds.Email); err != nil {
		return fmt.Errorf("failed to fill email: %w", err)
	}
	if err := b.SendKeys(ctx, m.sel.PasswordInput, creds.Password); err != nil {
		return fmt.Errorf("failed to fill password: %w", err)
	}
	if err := b.Click(ctx, m.sel.LoginButton); err != nil {
		return fmt.Errorf("failed to submit login form: %w", err)
	}

	p := poll.NewPresence(func(ctx context.Context) (bool, error) {
		ready, err := documentReady(ctx, b)
		if err != nil || !ready {
			return false, err
		}
		formShown, err := b.Exists(ctx, m.sel.EmailInput)
		return !formShown, err
	}, nil)
	p.MaxTicks = m.polling.MaxTicks
	p.Interval = m.polling.Interval.Duration

	if _, err := p.Run(ctx); err != nil {
		if errors.Is(err, poll.ErrStabilizationTimeout) {
			return fmt.Errorf("%w: login form still shown: %v", ErrLoginFailed, err)
		}
		return fmt.Errorf("failed waiting for login: %w", err)
	}
	return nil
}

// Logout clears the stored session
func (m *Manager) Logout() error {
	return m.cookieStore.Clear()
}

// WaitDocumentReady polls until document.readyState is "complete"
func WaitDocumentReady(ctx context.Context, b Browser, polling config.PollingConfig) error {
	p := poll.NewPresence(func(ctx context.Context) (bool, error) {
		return documentReady(ctx, b)
	}, nil)
	p.MaxTicks = polling.MaxTicks
	p.Interval = polling.Interval.Duration

	if _, err := p.Run(ctx); err != nil {
		return fmt.Errorf("failed waiting for document: %w", err)
	}
	return nil
}

func documentReady(ctx context.Context, b Browser) (bool, error) {
	var ready bool
	err := b.Eval(ctx, `document.readyState === "complete"`, &ready)
	return ready, err
}
