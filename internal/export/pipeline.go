// Package export runs the per-target extraction pipeline: open the thread,
// get past interstitials, load history, capture it, and write the artifact.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp/kb"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/msgdump/internal/archive"
	"github.com/ibeckermayer/msgdump/internal/config"
	"github.com/ibeckermayer/msgdump/internal/extract"
	"github.com/ibeckermayer/msgdump/internal/poll"
	"github.com/ibeckermayer/msgdump/internal/types"
)

// Driver is the browser capability set the pipeline needs
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Exists(ctx context.Context, sel string) (bool, error)
	Click(ctx context.Context, sel string) error
	SendKeys(ctx context.Context, sel, keys string) error
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
}

// Report summarizes one target's export
type Report struct {
	Target   types.Target
	Mode     types.Mode
	Stage    Stage
	Artifact string
	Records  int
	Frames   int
}

// Pipeline exports targets one at a time through a single Driver
type Pipeline struct {
	driver  Driver
	site    config.SiteConfig
	sel     config.Selectors
	polling config.PollingConfig
	export  config.ExportConfig
	decoder *extract.Decoder
	now     func() time.Time
	log     *logrus.Entry
}

// New creates a pipeline driven by d
func New(d Driver, cfg *config.Config) *Pipeline {
	return &Pipeline{
		driver:  d,
		site:    cfg.Site,
		sel:     cfg.Selectors,
		polling: cfg.Polling,
		export:  cfg.Export,
		decoder: extract.New(cfg.Selectors),
		now:     time.Now,
		log:     logrus.WithField("component", "export"),
	}
}

// WithClock overrides the time used for log headers
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// job carries one target's state between stages
type job struct {
	target  types.Target
	log     *logrus.Entry
	report  *Report
	records []types.Record
	frames  *archive.FrameDir
	writes  *errgroup.Group
	nframes int
}

type step struct {
	reaches Stage
	run     func(ctx context.Context, j *job) error
}

// Export runs every stage for t. On failure the report holds the last
// stage reached and the error is a *StageError. Nothing is rolled back.
func (p *Pipeline) Export(ctx context.Context, t types.Target) (Report, error) {
	report := Report{Target: t, Mode: p.export.Mode, Stage: NotStarted}
	j := &job{
		target: t,
		log:    p.log.WithField("target", t.ID),
		report: &report,
	}

	j.log.WithField("mode", report.Mode).Info("Exporting thread")
	start := time.Now()

	for _, s := range p.steps() {
		if err := p.runStep(ctx, j, s); err != nil {
			if j.writes != nil {
				// let queued frame writes land so the partial artifact is consistent
				if werr := j.writes.Wait(); werr != nil {
					err = errors.Join(err, werr)
				}
				j.writes = nil
				report.Frames = j.frames.Count()
				report.Artifact = j.frames.Path()
			}
			j.log.WithError(err).WithField("stage", report.Stage).Error("Export failed")
			return report, &StageError{TargetID: t.ID, Stage: report.Stage, Err: err}
		}
		report.Stage = s.reaches
		j.log.WithField("stage", report.Stage).Debug("Stage complete")
	}
	report.Stage = Done

	j.log.WithFields(logrus.Fields{
		"artifact": report.Artifact,
		"records":  report.Records,
		"frames":   report.Frames,
		"elapsed":  time.Since(start).Round(time.Millisecond),
	}).Info("Export complete")

	return report, nil
}

func (p *Pipeline) steps() []step {
	extractStep, persistStep := p.extractText, p.persistText
	if p.export.Mode == types.ModeScreenshot {
		extractStep, persistStep = p.captureFrames, p.persistFrames
	}

	return []step{
		{Navigated, p.navigate},
		{DialogResolved, p.dismissDialog},
		{Focused, p.focusCompose},
		{Preloaded, p.preload},
		{Extracted, extractStep},
		{Persisted, persistStep},
	}
}

func (p *Pipeline) runStep(ctx context.Context, j *job, s step) error {
	if timeout := p.polling.StepTimeout.Duration; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.run(ctx, j)
}

func (p *Pipeline) navigate(ctx context.Context, j *job) error {
	return p.driver.Navigate(ctx, p.site.ThreadURL(j.target.ID))
}

// dismissDialog clicks away the one-shot interstitial if it shows up
// within the dialog tick budget. Its absence is not an error.
func (p *Pipeline) dismissDialog(ctx context.Context, j *job) error {
	if p.sel.DialogDismiss == "" {
		return nil
	}

	poller := poll.NewPresence(func(ctx context.Context) (bool, error) {
		return p.driver.Exists(ctx, p.sel.DialogDismiss)
	}, nil)
	poller.MaxTicks = max(p.polling.DialogTicks, 1)
	poller.Interval = p.polling.Interval.Duration

	if _, err := poller.Run(ctx); err != nil {
		if errors.Is(err, poll.ErrStabilizationTimeout) {
			j.log.Debug("No interstitial dialog")
			return nil
		}
		return err
	}

	j.log.Debug("Dismissing interstitial dialog")
	return p.driver.Click(ctx, p.sel.DialogDismiss)
}

func (p *Pipeline) focusCompose(ctx context.Context, j *job) error {
	return p.driver.Click(ctx, p.sel.ComposeInput)
}

// preload scrolls up until the start-of-thread marker is mounted and no
// older messages are still loading.
func (p *Pipeline) preload(ctx context.Context, j *job) error {
	poller := poll.NewPresence(p.historyLoaded, func(ctx context.Context) error {
		return p.driver.SendKeys(ctx, p.sel.ComposeInput, kb.PageUp)
	})
	poller.MaxTicks = p.polling.MaxTicks
	poller.Interval = p.polling.Interval.Duration

	res, err := poller.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to preload history: %w", err)
	}
	j.log.WithField("ticks", res.Ticks).Debug("History preloaded")
	return nil
}

func (p *Pipeline) historyLoaded(ctx context.Context) (bool, error) {
	top, err := p.driver.Exists(ctx, p.sel.ThreadTop)
	if err != nil || !top {
		return false, err
	}
	if p.sel.LoadingIndicator == "" {
		return true, nil
	}
	loading, err := p.driver.Exists(ctx, p.sel.LoadingIndicator)
	return !loading, err
}

func (p *Pipeline) extractText(ctx context.Context, j *job) error {
	html, err := p.driver.HTML(ctx)
	if err != nil {
		return err
	}
	records, err := p.decoder.Decode(html)
	if err != nil {
		return err
	}
	j.records = records
	j.report.Records = len(records)
	return nil
}

func (p *Pipeline) persistText(ctx context.Context, j *job) error {
	path, n, err := archive.WriteHTMLLog(p.export.OutputDir, j.target.ID, p.now(), j.records)
	j.report.Artifact = path
	j.report.Records = n
	return err
}

// captureFrames screenshots the thread until three consecutive probes are
// identical. A rerun never writes into an earlier capture's directory; see
// archive.FrameDir. Each non-final tick pages down and takes one more frame. Frame
// n is written while the browser moves on to frame n+1.
func (p *Pipeline) captureFrames(ctx context.Context, j *job) error {
	j.frames = archive.NewFrameDir(p.export.OutputDir, j.target.ID)
	j.report.Artifact = j.frames.Path()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(1)
	j.writes = g

	capture := func(ctx context.Context) ([]byte, error) {
		img, err := p.driver.Screenshot(ctx)
		if err != nil {
			return nil, err
		}
		n := j.nframes
		j.nframes++
		g.Go(func() error {
			return j.frames.Write(n, img)
		})
		return img, nil
	}

	poller := poll.NewConvergence(p.polling.ConvergenceWindow, capture, bytes.Equal, func(ctx context.Context) error {
		if err := p.driver.SendKeys(ctx, p.sel.ComposeInput, kb.PageDown); err != nil {
			return err
		}
		_, err := capture(ctx)
		return err
	})
	poller.MaxTicks = p.polling.MaxTicks
	poller.Interval = p.polling.Interval.Duration

	res, err := poller.Run(ctx)
	if err != nil {
		// a failed write cancels ctx; surface the write, not the cancellation
		if werr := g.Wait(); werr != nil {
			if errors.Is(err, context.Canceled) {
				err = werr
			} else {
				err = errors.Join(err, werr)
			}
		}
		j.writes = nil
		j.report.Frames = j.frames.Count()
		j.report.Artifact = j.frames.Path()
		return fmt.Errorf("failed to capture thread: %w", err)
	}
	j.log.WithFields(logrus.Fields{"ticks": res.Ticks, "frames": j.nframes}).Debug("Thread capture converged")
	return nil
}

func (p *Pipeline) persistFrames(ctx context.Context, j *job) error {
	err := j.writes.Wait()
	j.writes = nil
	j.report.Frames = j.frames.Count()
	j.report.Artifact = j.frames.Path()
	return err
}
