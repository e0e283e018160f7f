// Package logbook persists session artifacts as plain text files.
//
// Books are append-only; nothing in the program reads a book back. Callers
// format their own blocks, so the files stay human-readable transcripts.
package logbook

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Book writes to a single artifact file.
type Book struct {
	path string
	mu   sync.Mutex
}

// New creates a book that writes to the provided path, creating parent
// directories as needed.
func New(path string) (*Book, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Book{path: path}, nil
}

// Path returns the file backing this book.
func (b *Book) Path() string {
	if b == nil {
		return ""
	}
	return b.path
}

// Append writes text to the book. A nil book drops the write, so callers can
// run without an artifact file configured. Write failures are dropped too;
// artifact logging never fails a turn.
func (b *Book) Append(text string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	file, err := os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(text)
}

// Appendf formats and appends a block.
func (b *Book) Appendf(format string, args ...any) {
	b.Append(fmt.Sprintf(format, args...))
}
