package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ibeckermayer/msgdump/internal/types"
)

// ErrInvalid is returned by Validate for unusable settings
var ErrInvalid = errors.New("invalid config")

// Config holds all application configuration
type Config struct {
	Version   int            `toml:"version"`
	Browser   BrowserConfig  `toml:"browser"`
	Site      SiteConfig     `toml:"site"`
	Selectors Selectors      `toml:"selectors"`
	Polling   PollingConfig  `toml:"polling"`
	Export    ExportConfig   `toml:"export"`
	Session   SessionConfig  `toml:"session"`
	Journal   JournalConfig  `toml:"journal"`
	Schedule  ScheduleConfig `toml:"schedule"`
}

type BrowserConfig struct {
	Headless     bool   `toml:"headless"`
	ExecPath     string `toml:"exec_path"`
	UserAgent    string `toml:"user_agent"`
	WindowWidth  int    `toml:"window_width"`
	WindowHeight int    `toml:"window_height"`
	NoSandbox    bool   `toml:"no_sandbox"`
}

type SiteConfig struct {
	BaseURL      string `toml:"base_url"`
	LoginPath    string `toml:"login_path"`
	MessagesPath string `toml:"messages_path"`
}

// Selectors maps logical page elements to CSS selectors.
// Facebook renames its classes often; override them here when exports break.
type Selectors struct {
	EmailInput    string `toml:"email_input"`
	PasswordInput string `toml:"password_input"`
	LoginButton   string `toml:"login_button"`

	DialogDismiss    string `toml:"dialog_dismiss"`
	ComposeInput     string `toml:"compose_input"`
	ThreadTop        string `toml:"thread_top"`
	LoadingIndicator string `toml:"loading_indicator"`

	MessageContainer string `toml:"message_container"`
	MessageSender    string `toml:"message_sender"`
	MessageTimestamp string `toml:"message_timestamp"`
	TimestampAttr    string `toml:"timestamp_attr"`
	MessageContent   string `toml:"message_content"`
}

type PollingConfig struct {
	// MaxTicks bounds every stabilization loop; 0 means unbounded
	MaxTicks          int      `toml:"max_ticks"`
	Interval          Duration `toml:"interval"`
	ConvergenceWindow int      `toml:"convergence_window"`
	DialogTicks       int      `toml:"dialog_ticks"`
	StepTimeout       Duration `toml:"step_timeout"`
}

type ExportConfig struct {
	Mode      types.Mode `toml:"mode"`
	OutputDir string     `toml:"output_dir"`
	Open      bool       `toml:"open"`
}

type SessionConfig struct {
	Reuse      bool   `toml:"reuse"`
	CookieFile string `toml:"cookie_file"`
}

type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type ScheduleConfig struct {
	Cron     string `toml:"cron"`
	Timezone string `toml:"timezone"`
}

// Duration is a time.Duration that reads "2s" style strings from TOML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Browser: BrowserConfig{
			Headless:     true,
			WindowWidth:  1280,
			WindowHeight: 1024,
		},
		Site: SiteConfig{
			BaseURL:      "https://www.facebook.com/",
			LoginPath:    "login.php/",
			MessagesPath: "messages/t/",
		},
		Selectors: Selectors{
			EmailInput:       "#email",
			PasswordInput:    "#pass",
			LoginButton:      "#loginbutton",
			DialogDismiss:    ".layerCancel._4jy0._4jy3._517h._51sy._42ft",
			ComposeInput:     "._1mf._1mj",
			ThreadTop:        "._1n-e",
			LoadingIndicator: "._3u55._3qh2.img.sp_dWkVmyYN8i1.sx_2563d0",
			MessageContainer: "._41ud",
			MessageSender:    "h5",
			MessageTimestamp: "[data-tooltip-content]",
			TimestampAttr:    "data-tooltip-content",
			MessageContent:   "._3oh-",
		},
		Polling: PollingConfig{
			MaxTicks:          500,
			Interval:          Duration{750 * time.Millisecond},
			ConvergenceWindow: 3,
			DialogTicks:       3,
			StepTimeout:       Duration{10 * time.Minute},
		},
		Export: ExportConfig{
			Mode:      types.ModeText,
			OutputDir: ".",
		},
		Session: SessionConfig{
			Reuse: true,
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		Schedule: ScheduleConfig{
			Timezone: "Local",
		},
	}
}

// Validate checks the settings the exporter cannot run without
func (c *Config) Validate() error {
	if !c.Export.Mode.Valid() {
		return fmt.Errorf("%w: unknown export mode %q", ErrInvalid, c.Export.Mode)
	}
	if c.Site.BaseURL == "" {
		return fmt.Errorf("%w: site.base_url is empty", ErrInvalid)
	}
	if c.Polling.ConvergenceWindow < 1 {
		return fmt.Errorf("%w: polling.convergence_window must be at least 1", ErrInvalid)
	}
	if c.Polling.MaxTicks < 0 || c.Polling.DialogTicks < 0 {
		return fmt.Errorf("%w: tick bounds must not be negative", ErrInvalid)
	}
	required := map[string]string{
		"compose_input":     c.Selectors.ComposeInput,
		"thread_top":        c.Selectors.ThreadTop,
		"message_container": c.Selectors.MessageContainer,
	}
	for name, sel := range required {
		if sel == "" {
			return fmt.Errorf("%w: selectors.%s is empty", ErrInvalid, name)
		}
	}
	return nil
}

// LoginURL returns the absolute login page URL
func (s SiteConfig) LoginURL() string {
	return s.BaseURL + s.LoginPath
}

// ThreadURL returns the Messenger thread URL for a target id
func (s SiteConfig) ThreadURL(targetID string) string {
	return s.BaseURL + s.MessagesPath + targetID + "/"
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "msgdump"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads config from path, layered over the defaults
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault reads the config at path (or the default path when empty).
// A missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes config to path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

// CookiePath resolves where session cookies are stored
func (c *Config) CookiePath() (string, error) {
	if c.Session.CookieFile != "" {
		return c.Session.CookieFile, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.json"), nil
}

// JournalPath resolves the export journal database path
func (c *Config) JournalPath() (string, error) {
	if c.Journal.Path != "" {
		return c.Journal.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "journal.db"), nil
}
