// Package utils holds small helpers shared by the command line entry point.
package utils

import (
	"bytes"
	"io"
	"sync"
)

// DeferredWriter buffers writes until Flush. It holds log output while an
// interactive prompt owns the terminal.
type DeferredWriter struct {
	mu     sync.Mutex
	chunks [][]byte
}

// Write records a copy of p.
func (w *DeferredWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chunks = append(w.chunks, bytes.Clone(p))
	return len(p), nil
}

// Flush writes every buffered chunk to dst in order and empties the buffer.
// Each chunk is written separately so line-oriented writers such as
// zerolog.ConsoleWriter see one event per call.
func (w *DeferredWriter) Flush(dst io.Writer) error {
	w.mu.Lock()
	chunks := w.chunks
	w.chunks = nil
	w.mu.Unlock()

	for _, c := range chunks {
		if _, err := dst.Write(c); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of buffered chunks.
func (w *DeferredWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.chunks)
}
