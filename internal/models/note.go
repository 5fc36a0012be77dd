// Package models defines the domain types for notegraph.
package models

import (
	"time"

	"github.com/starford/notegraph/internal/doc"
)

// Note is a titled document.
type Note struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Content   *doc.Document `json:"content"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Clone returns a deep copy of the note.
func (n *Note) Clone() *Note {
	c := *n
	if n.Content != nil {
		c.Content = n.Content.Clone()
	}
	return &c
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Link represents a directed edge between two notes.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"` // "note-link" or "block-reference"
}
