package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/msgdump/internal/config"
	"github.com/ibeckermayer/msgdump/internal/types"
)

// fakeBrowser shows the login form until the login button is clicked with
// the right password, or until valid cookies are injected.
type fakeBrowser struct {
	password  string
	loggedIn  bool
	typed     map[string]string
	injected  []*network.Cookie
	navigated []string
}

func newFakeBrowser(password string) *fakeBrowser {
	return &fakeBrowser{password: password, typed: map[string]string{}}
}

func (f *fakeBrowser) Navigate(ctx context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *fakeBrowser) Exists(ctx context.Context, sel string) (bool, error) {
	if sel == "#email" {
		return !f.loggedIn, nil
	}
	return false, nil
}

func (f *fakeBrowser) Click(ctx context.Context, sel string) error {
	if sel == "#loginbutton" && f.typed["#pass"] == f.password {
		f.loggedIn = true
	}
	return nil
}

func (f *fakeBrowser) SendKeys(ctx context.Context, sel, keys string) error {
	f.typed[sel] += keys
	return nil
}

func (f *fakeBrowser) Eval(ctx context.Context, expr string, res any) error {
	*(res.(*bool)) = true
	return nil
}

func (f *fakeBrowser) SetCookies(ctx context.Context, cookies []*network.Cookie) error {
	f.injected = cookies
	for _, c := range cookies {
		if c.Name == "xs" && c.Value == "good" {
			f.loggedIn = true
		}
	}
	return nil
}

func (f *fakeBrowser) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	exp := float64(time.Now().Add(24 * time.Hour).Unix())
	return []*network.Cookie{
		{Name: "c_user", Value: "42", Domain: ".facebook.com", Expires: exp},
		{Name: "xs", Value: "good", Domain: ".facebook.com", Expires: exp},
		{Name: "tracker", Value: "x", Domain: ".example.com", Expires: exp},
	}, nil
}

func testConfig(t *testing.T) (*config.Config, *CookieStore) {
	cfg := config.Default()
	cfg.Polling.Interval = config.Duration{}
	cfg.Polling.MaxTicks = 5
	return cfg, NewCookieStore(filepath.Join(t.TempDir(), "session.json"))
}

func TestFormLoginSavesCookies(t *testing.T) {
	cfg, store := testConfig(t)
	b := newFakeBrowser("hunter2")

	err := NewManager(store, cfg).Login(context.Background(), b, types.Credentials{Email: "me@example.com", Password: "hunter2"})
	require.NoError(t, err)

	assert.Equal(t, "me@example.com", b.typed["#email"])
	assert.Equal(t, []string{"https://www.facebook.com/login.php/"}, b.navigated)
	assert.True(t, store.IsValid())

	stored, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, stored.Cookies, 2, "only facebook cookies are kept")
}

func TestWrongPasswordFails(t *testing.T) {
	cfg, store := testConfig(t)
	b := newFakeBrowser("hunter2")

	err := NewManager(store, cfg).Login(context.Background(), b, types.Credentials{Email: "me@example.com", Password: "nope"})
	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.False(t, store.IsValid())
}

func TestStoredSessionIsReused(t *testing.T) {
	cfg, store := testConfig(t)
	seed := newFakeBrowser("")
	cookies, _ := seed.Cookies(context.Background())
	require.NoError(t, store.Save(cookies))

	b := newFakeBrowser("hunter2")
	err := NewManager(store, cfg).Login(context.Background(), b, types.Credentials{})
	require.NoError(t, err)

	assert.Len(t, b.injected, 2)
	assert.Empty(t, b.typed, "form must not be filled")
}

func TestRejectedSessionFallsBackToForm(t *testing.T) {
	cfg, store := testConfig(t)
	exp := float64(time.Now().Add(time.Hour).Unix())
	require.NoError(t, store.Save([]*network.Cookie{
		{Name: "c_user", Value: "42", Domain: ".facebook.com", Expires: exp},
		{Name: "xs", Value: "revoked", Domain: ".facebook.com", Expires: exp},
	}))

	b := newFakeBrowser("hunter2")
	err := NewManager(store, cfg).Login(context.Background(), b, types.Credentials{Email: "me", Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, "hunter2", b.typed["#pass"])
}

func TestCookieStoreValidity(t *testing.T) {
	store := NewCookieStore(filepath.Join(t.TempDir(), "s.json"))
	assert.False(t, store.IsValid(), "missing file")

	past := float64(time.Now().Add(-time.Hour).Unix())
	require.NoError(t, store.Save([]*network.Cookie{
		{Name: "c_user", Value: "42", Domain: "www.facebook.com", Expires: past},
		{Name: "xs", Value: "v", Domain: "www.facebook.com", Expires: past},
	}))
	assert.False(t, store.IsValid(), "expired")

	future := float64(time.Now().Add(time.Hour).Unix())
	require.NoError(t, store.Save([]*network.Cookie{
		{Name: "c_user", Value: "42", Domain: ".facebook.com", Expires: future},
	}))
	assert.False(t, store.IsValid(), "xs missing")

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear(), "clearing twice is fine")
}
