package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherFiresOnChangeForPageWrite(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan string, 1)

	w, err := New(dir, func(path string) error {
		changed <- path
		return nil
	}, false)
	require.NoError(t, err)
	w.Start()
	defer w.Close()

	target := filepath.Join(dir, "home.pyw")
	require.NoError(t, os.WriteFile(target, []byte("!path \"/\"\n<div>hi</div>\n"), 0o644))

	select {
	case got := <-changed:
		assert.Equal(t, target, got)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher to report the change")
	}
}

func TestWatcherIgnoresNonPageFiles(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan string, 1)

	w, err := New(dir, func(path string) error {
		changed <- path
		return nil
	}, false)
	require.NoError(t, err)
	w.Start()
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))

	select {
	case got := <-changed:
		t.Fatalf("unexpected change event for non-page file: %s", got)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherWatchesNewlyCreatedSubdirectories(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan string, 1)

	w, err := New(dir, func(path string) error {
		changed <- path
		return nil
	}, false)
	require.NoError(t, err)
	w.Start()
	defer w.Close()

	sub := filepath.Join(dir, "admin")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// Give the watcher's Create-event handler time to register the new
	// directory before writing into it.
	time.Sleep(200 * time.Millisecond)

	target := filepath.Join(sub, "dashboard.pyw")
	require.NoError(t, os.WriteFile(target, []byte("!path \"/admin\"\n<div>admin</div>\n"), 0o644))

	select {
	case got := <-changed:
		assert.Equal(t, target, got)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher to report the change in a new subdirectory")
	}
}
