// Package speaker carries compiled flow route directives to the exabgp
// process over its stdio API channel and keeps an audit trail of everything
// that was sent.
package speaker

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxAuditEntries bounds the in-memory audit trail so a long-running
// process doesn't grow it without limit.
const maxAuditEntries = 10000

// auditEntry records one line written to the exabgp channel.
type auditEntry struct {
	Timestamp time.Time
	Line      string
}

// Writer serializes writes to an exabgp stdio channel. exabgp reads one
// directive per line from its own stdin, so concurrent callers (the REST
// handlers and the bootstrap step) must not interleave partial lines; the
// mutex here is what makes that safe.
type Writer struct {
	log *zap.Logger

	mu       sync.Mutex
	out      io.Writer
	auditLog []auditEntry
}

// New wraps out (typically os.Stdout when exabgp is the parent process) as
// a serialized line writer.
func New(log *zap.Logger, out io.Writer) *Writer {
	return &Writer{log: log, out: out}
}

// Write sends a single directive line to exabgp and appends it to the audit
// trail. line should not include a trailing newline.
func (w *Writer) Write(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.out, "%s\n", line); err != nil {
		w.log.Error("failed writing to exabgp channel", zap.Error(err))
		return fmt.Errorf("writing to exabgp channel: %w", err)
	}

	w.auditLog = append(w.auditLog, auditEntry{Timestamp: time.Now(), Line: line})
	if len(w.auditLog) > maxAuditEntries {
		w.auditLog = w.auditLog[len(w.auditLog)-maxAuditEntries:]
	}

	return nil
}

// AuditLog returns a copy of the lines sent so far, oldest first.
func (w *Writer) AuditLog() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, len(w.auditLog))
	for i, e := range w.auditLog {
		out[i] = e.Line
	}
	return out
}

// lineWriter adapts Writer to io.Writer so callers that already format
// "line\n" at a time (flow.Flow.Announce/Withdraw) can use it directly
// without splitting on newlines themselves.
type lineWriter struct {
	w *Writer
}

// AsIOWriter returns an io.Writer view of w. Each Write call must carry
// exactly one newline-terminated line, matching what flow.Flow.Announce and
// flow.Flow.Withdraw produce.
func (w *Writer) AsIOWriter() io.Writer {
	return lineWriter{w: w}
}

func (lw lineWriter) Write(p []byte) (int, error) {
	line := string(p)
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	if err := lw.w.Write(line); err != nil {
		return 0, err
	}
	return len(p), nil
}
