// Command msgdump logs into Facebook and saves Messenger threads with the
// given users to local files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/msgdump/internal/app"
	"github.com/ibeckermayer/msgdump/internal/auth"
	"github.com/ibeckermayer/msgdump/internal/config"
	"github.com/ibeckermayer/msgdump/internal/scheduler"
	"github.com/ibeckermayer/msgdump/internal/store"
	"github.com/ibeckermayer/msgdump/internal/types"
)

// options is a parsed command line
type options struct {
	configPath string
	verbose    bool
	creds      types.Credentials
	targets    []string
	// overrides applies only the flags given on the command line
	overrides func(cfg *config.Config)
}

// parseArgs parses args (without the program name). When it returns
// ok == false usage has been written to out and the process should exit 0.
func parseArgs(args []string, out io.Writer) (*options, bool, error) {
	fs := flag.NewFlagSet("msgdump", flag.ContinueOnError)
	fs.SetOutput(out)

	configPath := fs.String("config", "", "config file (default: user config dir)")
	mode := fs.String("mode", "", "export mode: text or screenshot")
	outDir := fs.String("out", "", "output directory")
	headless := fs.Bool("headless", true, "run the browser without a window")
	schedule := fs.String("schedule", "", `re-run the batch on a cron schedule, e.g. "0 3 * * *"`)
	open := fs.Bool("open", false, "open the output directory when done")
	verbose := fs.Bool("verbose", false, "debug logging")

	fs.Usage = func() {
		fmt.Fprintln(out, "Usage: msgdump [flags] <email> <password> <target-url>...")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Targets are profile URLs such as https://www.facebook.com/jane.doe")
		fmt.Fprintln(out, "or https://www.facebook.com/profile.php?id=123, or bare profile ids.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Flags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if fs.NArg() < 2 {
		fs.Usage()
		return nil, false, nil
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	overrides := func(cfg *config.Config) {
		if set["mode"] {
			cfg.Export.Mode = types.Mode(*mode)
		}
		if set["out"] {
			cfg.Export.OutputDir = *outDir
		}
		if set["headless"] {
			cfg.Browser.Headless = *headless
		}
		if set["schedule"] {
			cfg.Schedule.Cron = *schedule
		}
		if set["open"] {
			cfg.Export.Open = *open
		}
	}

	return &options{
		configPath: *configPath,
		verbose:    *verbose,
		creds:      types.Credentials{Email: fs.Arg(0), Password: fs.Arg(1)},
		targets:    fs.Args()[2:],
		overrides:  overrides,
	}, true, nil
}

func main() {
	opts, ok, err := parseArgs(os.Args[1:], os.Stdout)
	if err != nil {
		os.Exit(2)
	}
	if !ok {
		return
	}

	setupLogging(opts.verbose)

	if err := run(opts.configPath, opts.overrides, opts.creds, opts.targets); err != nil {
		logrus.WithField("component", "main").WithError(err).Error("Export failed")
		os.Exit(1)
	}
}

func run(configPath string, overrides func(*config.Config), creds types.Credentials, targets []string) error {
	log := logrus.WithField("component", "main")

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	overrides(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	cookiePath, err := cfg.CookiePath()
	if err != nil {
		return fmt.Errorf("failed to resolve cookie store path: %w", err)
	}
	authManager := auth.NewManager(auth.NewCookieStore(cookiePath), cfg)

	var journal app.Journal
	if cfg.Journal.Enabled {
		if st, err := openJournal(cfg); err != nil {
			log.WithError(err).Warn("Export journal disabled")
		} else {
			defer st.Close()
			journal = st
		}
	}

	a := app.New(cfg, authManager, journal)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Schedule.Cron == "" {
		return a.Run(ctx, creds, targets)
	}

	return runScheduled(ctx, cfg, func(ctx context.Context) error {
		return a.Run(ctx, creds, targets)
	})
}

func setupLogging(verbose bool) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func openJournal(cfg *config.Config) (*store.Store, error) {
	path, err := cfg.JournalPath()
	if err != nil {
		return nil, err
	}
	return store.New(path)
}

// runScheduled runs job once right away and then on every cron tick until
// ctx ends. Failed runs are logged and retried on the next tick.
func runScheduled(ctx context.Context, cfg *config.Config, job scheduler.Job) error {
	s, err := scheduler.New(cfg.Schedule.Timezone, 0)
	if err != nil {
		return err
	}
	if err := s.AddJob("export", cfg.Schedule.Cron, job); err != nil {
		return err
	}

	if err := s.RunNow(ctx, "export", job); err != nil {
		logrus.WithField("component", "main").WithError(err).Error("Initial export failed")
	}

	s.Run(ctx)
	return nil
}
