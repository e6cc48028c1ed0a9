package runner

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
)

const logLineMaxBytes = 32 * 1024

// lineWriter turns a tool's output stream into one log record per line.
type lineWriter struct {
	logger *slog.Logger
	mu     sync.Mutex
	buf    bytes.Buffer
}

func newLineWriter(logger *slog.Logger) *lineWriter {
	return &lineWriter{logger: logger}
}

func (l *lineWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Write(p)
	for {
		data := l.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx == -1 {
			if l.buf.Len() >= logLineMaxBytes {
				l.emit(string(data))
				l.buf.Reset()
			}
			break
		}
		line := string(data[:idx])
		l.buf.Next(idx + 1)
		l.emit(line)
	}
	return len(p), nil
}

// Flush logs whatever is left without a trailing newline.
func (l *lineWriter) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() > 0 {
		l.emit(l.buf.String())
		l.buf.Reset()
	}
}

func (l *lineWriter) emit(line string) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return
	}
	l.logger.Info(line)
}
