package logbook

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAppendAccumulates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "session.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	book.Append("Session started\n")
	book.Appendf("Query #%d: %s\n", 1, "commutativity of addition")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read book: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "Session started\n") {
		t.Errorf("first block missing or out of order: %q", content)
	}
	if !strings.Contains(content, "Query #1: commutativity of addition") {
		t.Errorf("second block missing: %q", content)
	}
}

func TestNewCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if book.Path() != path {
		t.Errorf("Path() = %q, want %q", book.Path(), path)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("parent dir not created: %v", err)
	}
}

func TestNilBookIsSafe(t *testing.T) {
	var book *Book
	book.Append("dropped")
	book.Appendf("dropped %d", 1)
	if book.Path() != "" {
		t.Errorf("nil Path() = %q, want empty", book.Path())
	}
}
