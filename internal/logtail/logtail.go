// Package logtail renders per-slot log sinks: a last-N-lines view and a
// follow mode built on filesystem notifications instead of shelling out to
// tail.
package logtail

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Tail returns the last n lines of the file at path. A missing file is an
// error the caller can present; an empty file yields no lines.
func Tail(path string, n int) ([]string, error) {
	if n <= 0 {
		n = 20
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read log %s: %w", path, err)
	}
	content := strings.TrimRight(string(b), "\n")
	if content == "" {
		return nil, nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Follow streams appended log content to w until ctx is canceled. It starts
// with the last n lines, then relays new writes as they happen. Rotation
// (the sink file being recreated) is handled by reopening from the start.
func Follow(ctx context.Context, path string, n int, w io.Writer) error {
	lines, err := Tail(path, n)
	if err != nil {
		return err
	}
	for _, l := range lines {
		_, _ = io.WriteString(w, l+"\n")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch log %s: %w", path, err)
	}
	defer func() { _ = watcher.Close() }()
	// Watch the directory: rotation replaces the file, and some platforms
	// drop watches on the old inode.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch log dir: %w", err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			switch {
			case ev.Op.Has(fsnotify.Create):
				// rotated: reopen and restart from the top
				_ = f.Close()
				f, err = os.Open(path)
				if err != nil {
					return fmt.Errorf("reopen rotated log: %w", err)
				}
				offset = 0
				fallthrough
			case ev.Op.Has(fsnotify.Write):
				offset, err = copyNew(f, offset, w)
				if err != nil {
					return err
				}
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("log watch: %w", werr)
		}
	}
}

func copyNew(f *os.File, offset int64, w io.Writer) (int64, error) {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}
	n, err := io.Copy(w, f)
	if err != nil {
		return offset, err
	}
	return offset + n, nil
}
