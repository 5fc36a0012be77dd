package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/models"
)

func testSQLite(t *testing.T) *SQLite {
	t.Helper()
	f, err := os.CreateTemp("", "notegraph-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := OpenSQLite(f.Name())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// forEachStore runs fn against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, testSQLite(t)) })
}

func linkedDoc(target string) *doc.Document {
	p := doc.NewElement(doc.KindParagraph, doc.NewText("see "), doc.NoteLink(target, "Target"), doc.NewText(""))
	p.ID = "p-" + target
	return doc.FromNodes(p)
}

func TestSchemaCreation(t *testing.T) {
	db := testSQLite(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&count); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM links`).Scan(&count); err != nil {
		t.Fatalf("links table missing: %v", err)
	}
}

func TestCreateAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.CreateNote(ctx, &models.Note{ID: "a", Title: "Alpha", Content: linkedDoc("b")}); err != nil {
			t.Fatalf("CreateNote: %v", err)
		}
		n, err := s.GetNote(ctx, "a")
		if err != nil {
			t.Fatalf("GetNote: %v", err)
		}
		if n.Title != "Alpha" {
			t.Errorf("title = %q, want %q", n.Title, "Alpha")
		}
		if got := n.Content.PlainText(); got != "see Target" {
			t.Errorf("text = %q, want %q", got, "see Target")
		}
		if n.CreatedAt.IsZero() || n.UpdatedAt.IsZero() {
			t.Error("timestamps not set")
		}

		if _, err := s.GetNote(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("missing note err = %v, want ErrNotFound", err)
		}
	})
}

func TestDuplicateTitleIsCaseInsensitive(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_ = s.CreateNote(ctx, &models.Note{ID: "a", Title: "Alpha"})
		_ = s.CreateNote(ctx, &models.Note{ID: "b", Title: "Beta"})

		err := s.CreateNote(ctx, &models.Note{ID: "c", Title: "ALPHA"})
		if !errors.Is(err, apperr.ErrDuplicateTitle) {
			t.Errorf("create err = %v, want ErrDuplicateTitle", err)
		}
		if !errors.Is(err, apperr.ErrConflict) {
			t.Errorf("create err = %v, want it to match ErrConflict", err)
		}
		if err := s.ApplyTitleChange(ctx, "b", "alpha"); !errors.Is(err, apperr.ErrDuplicateTitle) {
			t.Errorf("rename err = %v, want ErrDuplicateTitle", err)
		}
		if err := s.ApplyTitleChange(ctx, "a", "ALPHA"); err != nil {
			t.Errorf("recasing own title: %v", err)
		}
		n, err := s.FindByTitle(ctx, "alpha")
		if err != nil {
			t.Fatalf("FindByTitle: %v", err)
		}
		if n.ID != "a" || n.Title != "ALPHA" {
			t.Errorf("found %s %q, want a ALPHA", n.ID, n.Title)
		}
	})
}

func TestContentChangeAndAllNotes(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_ = s.CreateNote(ctx, &models.Note{ID: "a", Title: "Alpha"})
		_ = s.CreateNote(ctx, &models.Note{ID: "b", Title: "Beta"})

		if err := s.ApplyContentChange(ctx, "a", linkedDoc("b")); err != nil {
			t.Fatalf("ApplyContentChange: %v", err)
		}
		if err := s.ApplyContentChange(ctx, "zzz", doc.New()); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("unknown note err = %v, want ErrNotFound", err)
		}

		all, err := s.AllNotes(ctx)
		if err != nil {
			t.Fatalf("AllNotes: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("len(all) = %d, want 2", len(all))
		}
		if got := all["a"].Content.Children[0].ID; got != "p-b" {
			t.Errorf("block id = %q, want %q", got, "p-b")
		}

		// Mutating the returned copy must not leak into the store.
		all["a"].Content.Children[0].ID = "changed"
		again, _ := s.GetNote(ctx, "a")
		if again.Content.Children[0].ID != "p-b" {
			t.Error("store returned shared document")
		}

		count, _ := s.Count(ctx)
		if count != 2 {
			t.Errorf("count = %d, want 2", count)
		}
		list, _ := s.ListNotes(ctx)
		if len(list) != 2 || list[0].Title != "Alpha" || list[0].Checksum == "" {
			t.Errorf("list = %+v", list)
		}
	})
}

func TestDeleteAndSearch(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_ = s.CreateNote(ctx, &models.Note{ID: "a", Title: "Alpha", Content: doc.FromNodes(doc.Paragraph("powerful search here"))})
		_ = s.CreateNote(ctx, &models.Note{ID: "b", Title: "Beta"})

		results, err := s.Search(ctx, "powerful", 10)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 1 || results[0].ID != "a" {
			t.Fatalf("results = %+v, want one hit for a", results)
		}

		if err := s.DeleteNote(ctx, "a"); err != nil {
			t.Fatalf("DeleteNote: %v", err)
		}
		if err := s.DeleteNote(ctx, "a"); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("second delete err = %v, want ErrNotFound", err)
		}
		// The title is free again.
		if err := s.CreateNote(ctx, &models.Note{ID: "c", Title: "alpha"}); err != nil {
			t.Errorf("reuse title after delete: %v", err)
		}
	})
}

func TestLinksTableFollowsContent(t *testing.T) {
	db := testSQLite(t)
	ctx := context.Background()
	_ = db.CreateNote(ctx, &models.Note{ID: "a", Title: "Alpha", Content: linkedDoc("b")})
	_ = db.CreateNote(ctx, &models.Note{ID: "b", Title: "Beta"})

	links, err := db.Links(ctx)
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	if len(links) != 1 || links[0].Target != "b" || links[0].Type != "note-link" {
		t.Fatalf("links = %+v", links)
	}

	_ = db.ApplyContentChange(ctx, "a", doc.New())
	links, _ = db.Links(ctx)
	if len(links) != 0 {
		t.Errorf("links after edit = %+v, want none", links)
	}
}

func TestOutgoingLinksDeduplicates(t *testing.T) {
	d := doc.FromNodes(doc.NewElement(doc.KindParagraph,
		doc.NoteLink("x", "X"), doc.NoteLink("x", "X"), doc.BlockRef("blk", "quoted"), doc.NoteLink("", "Dangling")))
	links := OutgoingLinks("src", d)
	if len(links) != 2 {
		t.Fatalf("links = %+v, want 2", links)
	}
	if links[1].Type != "block-reference" || links[1].Target != "blk" {
		t.Errorf("second link = %+v", links[1])
	}
}
