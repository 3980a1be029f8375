package log

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/term"
)

var (
	mu     sync.Mutex
	file   *os.File
	buffer *bufio.Writer
)

type lockedWriter struct{}

func (lockedWriter) Write(p []byte) (int, error) {
	mu.Lock()
	defer mu.Unlock()
	if buffer == nil {
		return len(p), nil
	}
	return buffer.Write(p)
}

// NewLogger writes to a new file under logDir and mirrors to stderr. Each run
// gets its own file; name is used as prefix, "launcher" when empty.
func NewLogger(debug bool, logDir, name string) (*slog.Logger, error) {
	if logDir == "" {
		logDir = "logs"
	}
	if name == "" {
		name = "launcher"
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating log directory: %w", err)
	}

	// keep room for the file opened below
	_ = pruneOldLogs(logDir, name, MaxLogFiles-1)

	fileName := fmt.Sprintf("%s-%s.txt", name, time.Now().Format("2006-01-02-15-04-05"))
	f, err := os.OpenFile(filepath.Join(logDir, fileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	mu.Lock()
	file = f
	buffer = bufio.NewWriterSize(f, 8192)
	mu.Unlock()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(a.Key, a.Value.Time().Format(time.TimeOnly))
			}
			return a
		},
	}

	var console io.Writer = os.Stderr
	if !term.IsTerminal(int(os.Stderr.Fd())) && !debug {
		console = io.Discard
	}

	handler := slog.NewTextHandler(io.MultiWriter(lockedWriter{}, console), opts)
	return slog.New(handler), nil
}

func FlushLog() {
	mu.Lock()
	defer mu.Unlock()
	if buffer != nil {
		_ = buffer.Flush()
	}
}

func FlushAndClose() error {
	mu.Lock()
	defer mu.Unlock()
	if buffer == nil {
		return nil
	}
	_ = buffer.Flush()
	err := file.Close()
	buffer, file = nil, nil

	return err
}
