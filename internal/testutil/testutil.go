// Package testutil provides shared test helpers for setting up note stores,
// services, and file trees.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/notegraph/internal/nodeid"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/refindex"
	"github.com/starford/notegraph/internal/storage"
	"github.com/starford/notegraph/internal/store"
)

// Quiet is a logger that discards everything.
var Quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// TestDB creates a temporary SQLite note store that is automatically cleaned up.
func TestDB(t *testing.T) *store.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "notegraph-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.OpenSQLite(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestService loads a note service over st. A nil st means a fresh
// in-memory store.
func TestService(t *testing.T, st store.Store, opts ...noteservice.Option) *noteservice.Service {
	t.Helper()
	if st == nil {
		st = store.NewMemory()
	}
	opts = append([]noteservice.Option{noteservice.WithLogger(Quiet)}, opts...)
	svc := noteservice.NewService(st, nodeid.NewRegistry(Quiet), refindex.New(st, Quiet), opts...)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return svc
}

// TestFiles creates a temporary directory with a storage.FS over it.
func TestFiles(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, files
}
