// Package archive writes the per-target output artifacts: an append-only
// HTML text log, or a directory of numbered screenshot frames.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ibeckermayer/msgdump/internal/types"
)

// HeaderTimeFormat stamps each export section in the HTML log
const HeaderTimeFormat = "Mon Jan 02 2006 15:04:05 GMT-0700 (MST)"

// FormatRecord renders one message line of the text log
func FormatRecord(r types.Record) string {
	return fmt.Sprintf("%s (%s): %s<br><br>", r.Sender, r.Timestamp, r.Content)
}

// Header opens an export section of the text log
func Header(t time.Time) string {
	return `<meta charset="utf-8">` + t.Format(HeaderTimeFormat) + "<br><br><br>"
}

// HTMLPath returns the text log path for a target
func HTMLPath(dir, targetID string) string {
	return filepath.Join(dir, targetID+".html")
}

// FramesPath returns the screenshot directory for a target
func FramesPath(dir, targetID string) string {
	return filepath.Join(dir, targetID)
}

// HTMLLog is an open text log. Existing content is never rewritten.
type HTMLLog struct {
	f       *os.File
	path    string
	records int
}

// OpenHTMLLog opens (or creates) the target's log for appending and writes
// a timestamped section header.
func OpenHTMLLog(dir, targetID string, now time.Time) (*HTMLLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	path := HTMLPath(dir, targetID)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	if _, err := f.WriteString(Header(now)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header to %s: %w", path, err)
	}

	return &HTMLLog{f: f, path: path}, nil
}

// Append writes one formatted record
func (l *HTMLLog) Append(r types.Record) error {
	if _, err := l.f.WriteString(FormatRecord(r)); err != nil {
		return fmt.Errorf("failed to append to %s: %w", l.path, err)
	}
	l.records++
	return nil
}

// Path returns the log file path
func (l *HTMLLog) Path() string {
	return l.path
}

// Records returns how many records this handle appended
func (l *HTMLLog) Records() int {
	return l.records
}

// Close flushes and closes the log
func (l *HTMLLog) Close() error {
	return l.f.Close()
}

// WriteHTMLLog appends one complete section (header plus records) to the
// target's log and returns its path and how many records were written.
func WriteHTMLLog(dir, targetID string, now time.Time, records []types.Record) (string, int, error) {
	log, err := OpenHTMLLog(dir, targetID, now)
	if err != nil {
		return "", 0, err
	}

	for _, r := range records {
		if err := log.Append(r); err != nil {
			log.Close()
			return log.Path(), log.Records(), err
		}
	}

	return log.Path(), log.Records(), log.Close()
}

// maxFrameDirs bounds the <id>.N suffixes tried when claiming a frame dir
const maxFrameDirs = 1000

// FrameDir stores screenshots as files named 0, 1, 2, ... The directory is
// claimed on the first write: <id> when it is absent or empty, otherwise the
// first free <id>.1, <id>.2, ... so an earlier capture is never touched.
type FrameDir struct {
	path    string
	created bool
	count   int
}

// NewFrameDir prepares the frame directory for a target without touching disk
func NewFrameDir(dir, targetID string) *FrameDir {
	return &FrameDir{path: FramesPath(dir, targetID)}
}

// Write stores frame n
func (d *FrameDir) Write(n int, img []byte) error {
	if !d.created {
		path, err := claimFrameDir(d.path)
		if err != nil {
			return err
		}
		d.path = path
		d.created = true
	}

	path := filepath.Join(d.path, strconv.Itoa(n))
	if err := os.WriteFile(path, img, 0644); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", n, err)
	}
	d.count++
	return nil
}

func claimFrameDir(base string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(base), 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	for i := 0; i < maxFrameDirs; i++ {
		path := base
		if i > 0 {
			path = base + "." + strconv.Itoa(i)
		}

		err := os.Mkdir(path, 0755)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to create frame dir: %w", err)
		}
		if isEmptyDir(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("failed to create frame dir: %s through %s.%d are taken", base, base, maxFrameDirs-1)
}

func isEmptyDir(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) == 0
}

// Path returns the frame directory. Before the first write it is the
// preferred path; afterwards it is the directory actually claimed.
func (d *FrameDir) Path() string {
	return d.path
}

// Count returns how many frames were written
func (d *FrameDir) Count() int {
	return d.count
}
