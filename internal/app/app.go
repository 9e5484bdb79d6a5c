// Package app wires login, the export pipeline and the journal into one
// batch run.
package app

import (
	"context"
	"fmt"
	"time"

	pkgbrowser "github.com/pkg/browser"
	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/msgdump/internal/auth"
	"github.com/ibeckermayer/msgdump/internal/batch"
	"github.com/ibeckermayer/msgdump/internal/browser"
	"github.com/ibeckermayer/msgdump/internal/config"
	"github.com/ibeckermayer/msgdump/internal/export"
	"github.com/ibeckermayer/msgdump/internal/store"
	"github.com/ibeckermayer/msgdump/internal/target"
	"github.com/ibeckermayer/msgdump/internal/types"
)

// Session is a live browser tab that can log in and export threads
type Session interface {
	export.Driver
	auth.Browser
	Close()
}

// Launcher opens a browser session
type Launcher func(ctx context.Context, cfg config.BrowserConfig) (Session, error)

// Journal records runs and per-target attempts. *store.Store implements it.
type Journal interface {
	BeginRun(mode types.Mode, targets int) (string, error)
	FinishRun(runID string, runErr error) error
	BeginExport(runID string, t types.Target) (int64, error)
	FinishExport(id int64, out store.Outcome, exportErr error) error
}

// LaunchChrome starts a chromedp session, routing its logs through logrus
func LaunchChrome(ctx context.Context, cfg config.BrowserConfig) (Session, error) {
	logf := logrus.WithField("component", "chromedp").Debugf
	s, err := browser.NewSession(ctx, cfg, logf)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// App holds the application state for one or more batch runs.
type App struct {
	config  *config.Config
	auth    *auth.Manager
	journal Journal // nil disables journaling
	launch  Launcher
	open    func(path string) error
	log     *logrus.Entry
}

// New creates a new App instance. journal may be nil.
func New(cfg *config.Config, authManager *auth.Manager, journal Journal) *App {
	return &App{
		config:  cfg,
		auth:    authManager,
		journal: journal,
		launch:  LaunchChrome,
		open:    pkgbrowser.OpenFile,
		log:     logrus.WithField("component", "app"),
	}
}

// WithLauncher replaces how browser sessions are opened
func (a *App) WithLauncher(l Launcher) *App {
	a.launch = l
	return a
}

// WithOpener replaces how the output directory is shown to the user
func (a *App) WithOpener(open func(path string) error) *App {
	a.open = open
	return a
}

// Run exports every target in order through one logged-in browser
// session. The first failing target aborts the rest; its error is
// returned and artifacts already written stay on disk.
func (a *App) Run(ctx context.Context, creds types.Credentials, rawTargets []string) error {
	targets, err := target.ParseAll(rawTargets)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		a.log.Info("No targets given, nothing to export")
		return nil
	}

	runID := a.beginRun(len(targets))
	err = a.run(ctx, creds, runID, targets)
	a.finishRun(runID, err)
	if err != nil {
		return err
	}

	if a.config.Export.Open {
		if err := a.open(a.config.Export.OutputDir); err != nil {
			a.log.WithError(err).Warn("Failed to open output directory")
		}
	}
	return nil
}

func (a *App) run(ctx context.Context, creds types.Credentials, runID string, targets []types.Target) error {
	start := time.Now()
	a.log.WithFields(logrus.Fields{
		"targets": len(targets),
		"mode":    a.config.Export.Mode,
		"output":  a.config.Export.OutputDir,
	}).Info("Starting export run")

	sess, err := a.launch(ctx, a.config.Browser)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer sess.Close()

	if err := a.auth.Login(ctx, sess, creds); err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}

	p := export.New(sess, a.config)
	err = batch.Run(ctx, targets, func(ctx context.Context, t types.Target) error {
		id := a.beginExport(runID, t)
		report, err := p.Export(ctx, t)
		a.finishExport(id, report, err)
		return err
	})
	if err != nil {
		return err
	}

	a.log.WithFields(logrus.Fields{
		"targets": len(targets),
		"elapsed": time.Since(start).Round(time.Second),
	}).Info("Export run complete")
	return nil
}

// Journal failures are logged and never fail the export itself.

func (a *App) beginRun(n int) string {
	if a.journal == nil {
		return ""
	}
	id, err := a.journal.BeginRun(a.config.Export.Mode, n)
	if err != nil {
		a.log.WithError(err).Warn("Journal unavailable for this run")
		return ""
	}
	return id
}

func (a *App) finishRun(runID string, runErr error) {
	if a.journal == nil || runID == "" {
		return
	}
	if err := a.journal.FinishRun(runID, runErr); err != nil {
		a.log.WithError(err).Warn("Failed to journal run result")
	}
}

func (a *App) beginExport(runID string, t types.Target) int64 {
	if a.journal == nil || runID == "" {
		return 0
	}
	id, err := a.journal.BeginExport(runID, t)
	if err != nil {
		a.log.WithError(err).WithField("target", t.ID).Warn("Failed to journal export start")
		return 0
	}
	return id
}

func (a *App) finishExport(id int64, r export.Report, exportErr error) {
	if a.journal == nil || id == 0 {
		return
	}
	out := store.Outcome{
		Stage:    r.Stage.String(),
		Artifact: r.Artifact,
		Records:  r.Records,
		Frames:   r.Frames,
	}
	if err := a.journal.FinishExport(id, out, exportErr); err != nil {
		a.log.WithError(err).WithField("target", r.Target.ID).Warn("Failed to journal export result")
	}
}
