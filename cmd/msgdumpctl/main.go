// Command msgdumpctl is a dev CLI for msgdump maintenance and debugging tasks.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/msgdump/internal/auth"
	msgbrowser "github.com/ibeckermayer/msgdump/internal/browser"
	"github.com/ibeckermayer/msgdump/internal/config"
	"github.com/ibeckermayer/msgdump/internal/store"
)

var log = logrus.WithField("component", "msgdumpctl")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault(os.Getenv("MSGDUMP_CONFIG"))
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	switch os.Args[1] {
	case "bot-test":
		err = runBotTest(cfg)
	case "open":
		if len(os.Args) < 3 {
			fmt.Println("Usage: msgdumpctl open <config|output>")
			os.Exit(1)
		}
		err = runOpen(cfg, os.Args[2])
	case "history":
		limit := 20
		if len(os.Args) >= 3 {
			if limit, err = strconv.Atoi(os.Args[2]); err != nil || limit < 1 {
				fmt.Printf("Invalid count: %s\n", os.Args[2])
				os.Exit(1)
			}
		}
		err = runHistory(cfg, limit)
	case "logout":
		err = runLogout(cfg)
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.WithError(err).Fatal("Command failed")
	}
}

func printUsage() {
	fmt.Println("Usage: msgdumpctl <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  bot-test       Open bot.sannysoft.com to audit the browser fingerprint")
	fmt.Println("  open config    Open config file in default editor")
	fmt.Println("  open output    Open the export output directory")
	fmt.Println("  history [n]    Show the last n export attempts (default 20)")
	fmt.Println("  logout         Forget the stored Facebook session")
	fmt.Println()
	fmt.Println("MSGDUMP_CONFIG overrides the config file location.")
}

func runBotTest(cfg *config.Config) error {
	log.Info("Opening bot.sannysoft.com with the configured browser options...")

	bcfg := cfg.Browser
	bcfg.Headless = false // visible so the report can be read

	sess, err := msgbrowser.NewSession(context.Background(), bcfg, log.Debugf)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := sess.Navigate(ctx, "https://bot.sannysoft.com"); err != nil {
		return err
	}

	fmt.Println("Press Enter to close the browser...")
	bufio.NewReader(os.Stdin).ReadString('\n')

	log.Info("Done.")
	return nil
}

func runOpen(cfg *config.Config, target string) error {
	var path string
	var err error

	switch target {
	case "config":
		path = os.Getenv("MSGDUMP_CONFIG")
		if path == "" {
			path, err = config.ConfigPath()
		}
		if err == nil {
			if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
				log.WithField("path", path).Info("Writing default config")
				err = cfg.Save(path)
			}
		}
	case "output":
		path = cfg.Export.OutputDir
	default:
		return fmt.Errorf("unknown target: %s", target)
	}

	if err != nil {
		return fmt.Errorf("failed to get path: %w", err)
	}
	return browser.OpenFile(path)
}

func runHistory(cfg *config.Config, limit int) error {
	path, err := cfg.JournalPath()
	if err != nil {
		return err
	}
	st, err := store.New(path)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.RecentExports(limit)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No exports recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tTARGET\tSTATUS\tSTAGE\tRECORDS\tFRAMES\tARTIFACT\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			e.StartedAt.Local().Format(time.DateTime), e.TargetID, e.Status, e.Stage,
			e.Records, e.Frames, e.Artifact, e.Error)
	}
	return w.Flush()
}

func runLogout(cfg *config.Config) error {
	path, err := cfg.CookiePath()
	if err != nil {
		return err
	}
	if err := auth.NewManager(auth.NewCookieStore(path), cfg).Logout(); err != nil {
		return err
	}
	log.Info("Stored session cleared")
	return nil
}
