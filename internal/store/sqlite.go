package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/checksum"
	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/models"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	title_key  TEXT NOT NULL UNIQUE,
	content    TEXT NOT NULL DEFAULT '[]',
	body       TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS links (
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	type   TEXT NOT NULL DEFAULT 'note-link',
	UNIQUE(source, target, type)
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target);
`

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	conn *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) AllNotes(ctx context.Context) (map[string]*models.Note, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, title, content, created_at, updated_at FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("store: all notes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*models.Note)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out[n.ID] = n
	}
	return out, rows.Err()
}

func (s *SQLite) GetNote(ctx context.Context, id string) (*models.Note, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, title, content, created_at, updated_at FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: note %s: %w", id, apperr.ErrNotFound)
	}
	return n, err
}

func (s *SQLite) FindByTitle(ctx context.Context, title string) (*models.Note, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, title, content, created_at, updated_at FROM notes WHERE title_key = ?`, TitleKey(title))
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: title %q: %w", title, apperr.ErrNotFound)
	}
	return n, err
}

func (s *SQLite) ListNotes(ctx context.Context) ([]models.NoteMetadata, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, title, checksum, updated_at FROM notes ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("store: list notes: %w", err)
	}
	defer rows.Close()

	var out []models.NoteMetadata
	for rows.Next() {
		var m models.NoteMetadata
		if err := rows.Scan(&m.ID, &m.Title, &m.Checksum, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT count(*) FROM notes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

func (s *SQLite) CreateNote(ctx context.Context, n *models.Note) error {
	content := n.Content
	if content == nil {
		content = doc.New()
	}
	data, err := doc.Encode(content)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	created := n.CreatedAt
	if created.IsZero() {
		created = now
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	body := content.PlainText()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO notes (id, title, title_key, content, body, checksum, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.Title, TitleKey(n.Title), string(data), body, checksum.Sum(data), created, now)
	if err != nil {
		return mapConstraint(err, n)
	}
	if err := ftsUpsert(tx, n.ID, n.Title, body); err != nil {
		return err
	}
	if err := replaceLinks(ctx, tx, n.ID, content); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) ApplyContentChange(ctx context.Context, id string, content *doc.Document) error {
	data, err := doc.Encode(content)
	if err != nil {
		return err
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var title string
	if err := tx.QueryRowContext(ctx, `SELECT title FROM notes WHERE id = ?`, id).Scan(&title); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("store: note %s: %w", id, apperr.ErrNotFound)
		}
		return fmt.Errorf("store: load note: %w", err)
	}
	body := content.PlainText()
	_, err = tx.ExecContext(ctx, `
		UPDATE notes SET content = ?, body = ?, checksum = ?, updated_at = ? WHERE id = ?
	`, string(data), body, checksum.Sum(data), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update content: %w", err)
	}
	if err := ftsUpsert(tx, id, title, body); err != nil {
		return err
	}
	if err := replaceLinks(ctx, tx, id, content); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) ApplyTitleChange(ctx context.Context, id, title string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var body string
	if err := tx.QueryRowContext(ctx, `SELECT body FROM notes WHERE id = ?`, id).Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("store: note %s: %w", id, apperr.ErrNotFound)
		}
		return fmt.Errorf("store: load note: %w", err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE notes SET title = ?, title_key = ?, updated_at = ? WHERE id = ?`,
		title, TitleKey(title), time.Now().UTC(), id)
	if err != nil {
		return mapConstraint(err, &models.Note{ID: id, Title: title})
	}
	if err := ftsUpsert(tx, id, title, body); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) DeleteNote(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: note %s: %w", id, apperr.ErrNotFound)
	}
	ftsDelete(tx, id)
	_, _ = tx.ExecContext(ctx, `DELETE FROM links WHERE source = ?`, id)
	return tx.Commit()
}

// Links returns every stored link, for graph views.
func (s *SQLite) Links(ctx context.Context) ([]models.Link, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT source, target, type FROM links ORDER BY source, target`)
	if err != nil {
		return nil, fmt.Errorf("store: links: %w", err)
	}
	defer rows.Close()

	var out []models.Link
	for rows.Next() {
		var l models.Link
		if err := rows.Scan(&l.Source, &l.Target, &l.Type); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(r rowScanner) (*models.Note, error) {
	var n models.Note
	var content string
	if err := r.Scan(&n.ID, &n.Title, &content, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := doc.Decode([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("store: note %s: %w", n.ID, err)
	}
	n.Content = d
	return &n, nil
}

func replaceLinks(ctx context.Context, tx *sql.Tx, id string, content *doc.Document) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM links WHERE source = ?`, id)
	links := OutgoingLinks(id, content)
	if len(links) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO links (source, target, type) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare link insert: %w", err)
	}
	defer stmt.Close()
	for _, l := range links {
		if _, err := stmt.ExecContext(ctx, l.Source, l.Target, l.Type); err != nil {
			return fmt.Errorf("store: insert link: %w", err)
		}
	}
	return nil
}

func mapConstraint(err error, n *models.Note) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique:
			return fmt.Errorf("store: title %q: %w", n.Title, apperr.ErrDuplicateTitle)
		case sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("store: note %s: %w", n.ID, apperr.ErrAlreadyExists)
		}
	}
	return fmt.Errorf("store: write note: %w", err)
}
