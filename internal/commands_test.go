package internal

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func commandOptions(t *testing.T) []Option {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.SQLite.Path = filepath.Join(dir, "notes.db")
	cfg.Export.Dir = filepath.Join(dir, "export")
	cfg.Attachments.Dir = filepath.Join(dir, "attachments")
	return []Option{WithConfig(cfg), WithLogOutput(io.Discard)}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestImportExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	opts := commandOptions(t)

	inbox := t.TempDir()
	writeFile(t, filepath.Join(inbox, "alpha.md"), "---\ntitle: Alpha\n---\n\nfirst note\n")
	writeFile(t, filepath.Join(inbox, "sub", "beta.md"), "---\ntitle: Beta\n---\n\nsecond note\n")

	results, err := Import(ctx, inbox, false, opts...)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("import %s: %v", r.Path, r.Err)
		}
		if !r.Created {
			t.Errorf("%s: expected a new note", r.Path)
		}
	}
	if _, err := os.Stat(filepath.Join(inbox, "alpha.md")); err != nil {
		t.Errorf("source file should be kept without archive: %v", err)
	}

	// A second import of the same titles updates in place.
	results, err = Import(ctx, inbox, true, opts...)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	for _, r := range results {
		if r.Err != nil || r.Created {
			t.Errorf("%s: expected update, got created=%v err=%v", r.Path, r.Created, r.Err)
		}
	}
	if _, err := os.Stat(filepath.Join(inbox, ".imported", "sub", "beta.md")); err != nil {
		t.Errorf("archived file missing: %v", err)
	}

	out := t.TempDir()
	written, err := Export(ctx, out, opts...)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("expected 2 exported files, got %d", len(written))
	}
	for _, name := range []string{"alpha.md", "beta.md"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("exported %s missing: %v", name, err)
		}
	}
}

func TestExportDefaultsToConfiguredDir(t *testing.T) {
	ctx := context.Background()
	opts := commandOptions(t)

	written, err := Export(ctx, "", opts...)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(written) != 0 {
		t.Errorf("expected nothing exported from an empty store, got %d", len(written))
	}
}

func TestDoctorOnCleanStore(t *testing.T) {
	ctx := context.Background()
	opts := commandOptions(t)

	inbox := t.TempDir()
	writeFile(t, filepath.Join(inbox, "note.md"), "# Note\n\n- one\n- two\n")
	if _, err := Import(ctx, inbox, false, opts...); err != nil {
		t.Fatalf("Import: %v", err)
	}

	report, err := Doctor(ctx, false, opts...)
	if err != nil {
		t.Fatalf("Doctor: %v", err)
	}
	if report.Notes != 1 {
		t.Errorf("expected 1 note, got %d", report.Notes)
	}
	if len(report.Duplicates) != 0 {
		t.Errorf("expected no duplicates, got %v", report.Duplicates)
	}
}

func TestCommandsRequireConfig(t *testing.T) {
	if _, err := Doctor(context.Background(), false); err == nil {
		t.Fatal("expected error without config")
	}
}
