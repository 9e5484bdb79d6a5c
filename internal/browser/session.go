package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/msgdump/internal/config"
)

// Session is the single browser tab an export run drives. It is passed
// explicitly to everything that touches the page; only one caller uses it
// at a time.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession launches the browser and opens one tab
func NewSession(parent context.Context, cfg config.BrowserConfig, logf func(string, ...any)) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, Options(cfg)...)

	ctxOpts := []chromedp.ContextOption{}
	if logf != nil {
		ctxOpts = append(ctxOpts, chromedp.WithLogf(logf), chromedp.WithErrorf(logf))
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	cancel := func() {
		browserCancel()
		allocCancel()
	}

	// An empty Run starts the browser so launch failures surface here
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &Session{ctx: browserCtx, cancel: cancel}, nil
}

// Close shuts the browser down
func (s *Session) Close() {
	s.cancel()
}

// run executes actions on the tab, honoring ctx's deadline and cancellation.
// chromedp needs its own context for the tab, so ctx is bridged onto it.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the load event
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Exists reports whether any element matches sel right now, without waiting
func (s *Session) Exists(ctx context.Context, sel string) (bool, error) {
	quoted, err := json.Marshal(sel)
	if err != nil {
		return false, err
	}

	var found bool
	js := fmt.Sprintf(`document.querySelector(%s) !== null`, quoted)
	if err := s.run(ctx, chromedp.Evaluate(js, &found)); err != nil {
		return false, fmt.Errorf("failed to query %s: %w", sel, err)
	}
	return found, nil
}

// Click waits for sel to be visible and clicks it
func (s *Session) Click(ctx context.Context, sel string) error {
	if err := s.run(ctx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("failed to click %s: %w", sel, err)
	}
	return nil
}

// SendKeys types keys into sel. Special keys come from chromedp/kb.
func (s *Session) SendKeys(ctx context.Context, sel, keys string) error {
	if err := s.run(ctx, chromedp.SendKeys(sel, keys, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to send keys to %s: %w", sel, err)
	}
	return nil
}

// Eval runs an inline script and decodes its result into res
func (s *Session) Eval(ctx context.Context, expr string, res any) error {
	if err := s.run(ctx, chromedp.Evaluate(expr, res)); err != nil {
		return fmt.Errorf("failed to evaluate script: %w", err)
	}
	return nil
}

// Screenshot captures the full page as PNG
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// HTML returns the outer HTML of the current document
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page HTML: %w", err)
	}
	return html, nil
}

// SetCookies injects cookies into the browser before navigation
func (s *Session) SetCookies(ctx context.Context, cookies []*network.Cookie) error {
	return s.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range cookies {
				err := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly).
					WithSameSite(c.SameSite).
					Do(ctx)

				if err != nil {
					return fmt.Errorf("failed to set cookie %s: %w", c.Name, err)
				}
			}
			return nil
		}),
	)
}

// Cookies returns all cookies the browser holds
func (s *Session) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie

	err := s.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)

	return cookies, err
}
