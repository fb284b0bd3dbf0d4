package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ActionLog is the append-only, timestamped record of one installation run.
// It implements io.Writer so it can back a zap core, and is safe for
// concurrent use. The file only ever grows, which the activity monitor
// relies on.
type ActionLog struct {
	mu       sync.Mutex
	file     *os.File
	filePath string
	written  int64
	now      func() time.Time
}

// NewActionLog opens (or creates) the log at filePath in append mode.
func NewActionLog(filePath string) (*ActionLog, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	al := &ActionLog{
		filePath: filePath,
		now:      time.Now,
	}
	if err := al.openFile(); err != nil {
		return nil, err
	}
	return al, nil
}

// DefaultActionLogPath returns dir/install_YYYYMMDD_HHMMSS.log for t.
func DefaultActionLogPath(dir string, t time.Time) string {
	return filepath.Join(dir, "install_"+t.Format("20060102_150405")+".log")
}

// Write implements io.Writer.
func (al *ActionLog) Write(p []byte) (int, error) {
	al.mu.Lock()
	defer al.mu.Unlock()

	if al.file == nil {
		return 0, os.ErrClosed
	}
	n, err := al.file.Write(p)
	al.written += int64(n)
	return n, err
}

// Record appends one "[timestamp] message" line per line of msg.
func (al *ActionLog) Record(msg string) {
	stamp := "[" + al.now().Format(TimeLayout) + "] "
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(msg, "\n"), "\n") {
		b.WriteString(stamp)
		b.WriteString(strings.TrimRight(line, "\r"))
		b.WriteByte('\n')
	}
	_, _ = al.Write([]byte(b.String()))
}

// Size returns the number of bytes in the log, including bytes present
// before it was opened.
func (al *ActionLog) Size() (int64, error) {
	al.mu.Lock()
	defer al.mu.Unlock()
	return al.written, nil
}

// Path returns the file backing the log.
func (al *ActionLog) Path() string {
	return al.filePath
}

// Close closes the underlying file.
func (al *ActionLog) Close() error {
	al.mu.Lock()
	defer al.mu.Unlock()

	if al.file == nil {
		return nil
	}
	err := al.file.Close()
	al.file = nil
	return err
}

// TeeWriter returns an io.Writer that writes to both w1 and w2.
func TeeWriter(w1, w2 io.Writer) io.Writer {
	return io.MultiWriter(w1, w2)
}

// FileSize reports the current size of path; a missing file is size 0.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

func (al *ActionLog) openFile() error {
	f, err := os.OpenFile(al.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	al.file = f
	al.written = info.Size()
	return nil
}
