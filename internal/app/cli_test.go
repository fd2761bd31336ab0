package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
)

func TestNewCLIOpener_SQLitePersistsAcrossInvocations(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "cli.db"))

	var logs bytes.Buffer
	open := NewCLIOpener(&logs)

	wf, closeFn, err := open(context.Background())
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}
	if _, err := wf.ListCourses(context.Background()); err != nil {
		t.Fatalf("ListCourses() error: %v", err)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close error: %v", err)
	}

	// 2回目のオープンでも同じファイルを使う
	wf, closeFn, err = open(context.Background())
	if err != nil {
		t.Fatalf("second open() error: %v", err)
	}
	defer closeFn()
	courses, err := wf.ListCourses(context.Background())
	if err != nil {
		t.Fatalf("ListCourses() error: %v", err)
	}
	if len(courses) != 0 {
		t.Errorf("len(courses) = %d, want 0", len(courses))
	}
}

func TestNewCLIOpener_ConfigError(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")

	var logs bytes.Buffer
	_, _, err := NewCLIOpener(&logs)(context.Background())
	if err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}
}
