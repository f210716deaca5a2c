package deb

import (
	"io"
	"log/slog"
)

// countingWriter wraps an io.Writer and counts the bytes written.
// It is typically used to calculate the size of a file or archive entry
// as it is being written.
type countingWriter struct {
	w io.Writer
	n int64
}

// Write writes p to the underlying io.Writer and increments the byte count.
func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// discardLogger is used when no logger is configured.
var discardLogger = slog.New(slog.DiscardHandler)
