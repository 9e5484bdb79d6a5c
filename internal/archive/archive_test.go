package archive

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/msgdump/internal/types"
)

func TestFormatRecord(t *testing.T) {
	got := FormatRecord(types.Record{
		Sender:    "Alice",
		Timestamp: "Jan 1, 2020 10:00am",
		Content:   "Hi",
	})
	assert.Equal(t, "Alice (Jan 1, 2020 10:00am): Hi<br><br>", got)
}

func TestHeader(t *testing.T) {
	now := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, `<meta charset="utf-8">Wed Jan 01 2020 10:00:00 GMT+0000 (UTC)<br><br><br>`, Header(now))
}

func TestWriteHTMLLogAppends(t *testing.T) {
	dir := t.TempDir()
	first := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)

	path, n, err := WriteHTMLLog(dir, "jane.doe", first, []types.Record{
		{Sender: "Alice", Timestamp: "t1", Content: "Hi"},
		{Sender: "Jane", Timestamp: "t2", Content: "Hey"},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "jane.doe.html"), path)
	assert.Equal(t, 2, n)

	_, n, err = WriteHTMLLog(dir, "jane.doe", second, []types.Record{
		{Sender: "Alice", Timestamp: "t3", Content: "Again"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	want := Header(first) +
		"Alice (t1): Hi<br><br>" +
		"Jane (t2): Hey<br><br>" +
		Header(second) +
		"Alice (t3): Again<br><br>"
	assert.Equal(t, want, string(data))
}

func TestHTMLLogPerTarget(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	a, err := OpenHTMLLog(dir, "a", now)
	require.NoError(t, err)
	b, err := OpenHTMLLog(dir, "b", now)
	require.NoError(t, err)

	require.NoError(t, a.Append(types.Record{Sender: "x", Timestamp: "1", Content: "only a"}))
	require.NoError(t, a.Close())
	require.NoError(t, b.Close())

	dataB, err := os.ReadFile(filepath.Join(dir, "b.html"))
	require.NoError(t, err)
	assert.NotContains(t, string(dataB), "only a")
	assert.Equal(t, 1, a.Records())
	assert.Zero(t, b.Records())
}

func TestFrameDirIsLazy(t *testing.T) {
	dir := t.TempDir()
	frames := NewFrameDir(dir, "123")

	_, err := os.Stat(frames.Path())
	assert.True(t, os.IsNotExist(err))

	for i, img := range []string{"png0", "png1", "png2"} {
		require.NoError(t, frames.Write(i, []byte(img)))
	}
	assert.Equal(t, 3, frames.Count())

	entries, err := os.ReadDir(frames.Path())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, "0,1,2", strings.Join(names, ","))

	data, err := os.ReadFile(filepath.Join(frames.Path(), "1"))
	require.NoError(t, err)
	assert.Equal(t, "png1", string(data))
}

func TestFrameDirNeverReusesEarlierCapture(t *testing.T) {
	dir := t.TempDir()

	first := NewFrameDir(dir, "123")
	for i := 0; i < 4; i++ {
		require.NoError(t, first.Write(i, []byte("first")))
	}
	assert.Equal(t, filepath.Join(dir, "123"), first.Path())

	second := NewFrameDir(dir, "123")
	require.NoError(t, second.Write(0, []byte("second")))
	assert.Equal(t, filepath.Join(dir, "123.1"), second.Path())

	entries, err := os.ReadDir(first.Path())
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	data, err := os.ReadFile(filepath.Join(first.Path(), "0"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	third := NewFrameDir(dir, "123")
	require.NoError(t, third.Write(0, []byte("third")))
	assert.Equal(t, filepath.Join(dir, "123.2"), third.Path())
}

func TestFrameDirClaimsEmptyOrSkipsFile(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.Mkdir(filepath.Join(dir, "empty"), 0755))
	frames := NewFrameDir(dir, "empty")
	require.NoError(t, frames.Write(0, []byte("png")))
	assert.Equal(t, filepath.Join(dir, "empty"), frames.Path())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), []byte("x"), 0644))
	frames = NewFrameDir(dir, "file")
	require.NoError(t, frames.Write(0, []byte("png")))
	assert.Equal(t, filepath.Join(dir, "file.1"), frames.Path())
}

func TestFrameDirReportsBlockedOutputDir(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(out, []byte("not a dir"), 0644))

	err := NewFrameDir(out, "123").Write(0, []byte("png"))
	assert.ErrorIs(t, err, syscall.ENOTDIR)
}
