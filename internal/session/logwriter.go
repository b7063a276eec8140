package session

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const logQueueSize = 256

// LogWriter appends a session's traffic to a log file without ever blocking
// the output path: entries go through a bounded queue drained by one worker,
// and the oldest entry is dropped when the queue is full.
//
// The file format is advisory: a started/ended header pair, "[INPUT] " lines
// for bytes written to the PTY, and raw PTY output interleaved.
type LogWriter struct {
	sessionID string
	file      *os.File
	queue     chan []byte
	done      chan struct{}
	wg        sync.WaitGroup
	logger    *slog.Logger

	closeOnce sync.Once
}

// NewLogWriter opens (appending) the log file and writes the session header.
func NewLogWriter(path, sessionID string, logger *slog.Logger) (*LogWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session log %s: %w", path, err)
	}

	w := &LogWriter{
		sessionID: sessionID,
		file:      f,
		queue:     make(chan []byte, logQueueSize),
		done:      make(chan struct{}),
		logger:    logger,
	}

	header := fmt.Sprintf("--- session %s started at %s ---\n", sessionID, time.Now().UTC().Format(time.RFC3339))
	w.enqueue([]byte(header))

	w.wg.Add(1)
	go w.drain()
	return w, nil
}

// Output queues raw PTY output bytes.
func (w *LogWriter) Output(p []byte) {
	data := make([]byte, len(p))
	copy(data, p)
	w.enqueue(data)
}

// Input queues an "[INPUT]" record for bytes written to the PTY.
func (w *LogWriter) Input(p []byte) {
	w.enqueue([]byte(fmt.Sprintf("[INPUT] %q\n", p)))
}

func (w *LogWriter) enqueue(data []byte) {
	select {
	case <-w.done:
		return
	default:
	}
	select {
	case w.queue <- data:
	default:
		// Queue full: drop the oldest entry so logging never stalls I/O.
		select {
		case <-w.queue:
		default:
		}
		select {
		case w.queue <- data:
		default:
		}
	}
}

func (w *LogWriter) drain() {
	defer w.wg.Done()
	for {
		select {
		case data := <-w.queue:
			if _, err := w.file.Write(data); err != nil {
				w.logger.Warn("session log write failed", "session_id", w.sessionID, "error", err)
			}
		case <-w.done:
			// Flush what is left.
			for {
				select {
				case data := <-w.queue:
					_, _ = w.file.Write(data)
				default:
					return
				}
			}
		}
	}
}

// Close writes the session footer, flushes, and closes the file.
func (w *LogWriter) Close() error {
	var err error
	w.closeOnce.Do(func() {
		footer := fmt.Sprintf("--- session %s ended at %s ---\n", w.sessionID, time.Now().UTC().Format(time.RFC3339))
		select {
		case w.queue <- []byte(footer):
		default:
		}
		close(w.done)
		w.wg.Wait()
		err = w.file.Close()
	})
	return err
}
