package api

import (
	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/refindex"
)

// CreateNoteRequest is the request body for creating a note. Markdown is
// optional; without it the note starts with an empty paragraph.
type CreateNoteRequest struct {
	Title    string `json:"title" example:"Weekly standup" validate:"required"`
	Markdown string `json:"markdown,omitempty" example:"See [[Roadmap]]"`
}

// UpdateNoteRequest replaces a note's content with either markdown or a
// document tree.
type UpdateNoteRequest struct {
	Markdown *string       `json:"markdown,omitempty" example:"# Updated"`
	Content  *doc.Document `json:"content,omitempty"`
}

// RenameRequest is the request body for renaming a note.
type RenameRequest struct {
	Title string `json:"title" example:"New title" validate:"required"`
}

// ImageRequest inserts an image block at the cursor.
type ImageRequest struct {
	URL     string `json:"url" example:"/attachments/diagram.png" validate:"required"`
	Caption string `json:"caption,omitempty" example:"Architecture"`
}

// RetryRequest lists the notes whose propagated rewrite should be stored
// again. An empty list retries every pending note.
type RetryRequest struct {
	NoteIDs []string `json:"note_ids"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// EditResult is returned after every input.
type EditResult = noteservice.EditResult

// BacklinksResponse is the reference panel of a note.
type BacklinksResponse = noteservice.Backlinks

// BlockResponse is the live target of a block reference.
type BlockResponse struct {
	BlockID string    `json:"block_id"`
	NoteID  string    `json:"note_id"`
	Path    doc.Path  `json:"path"`
	Node    *doc.Node `json:"node"`
}

// BlockBacklinksResponse lists the notes embedding a block.
type BlockBacklinksResponse struct {
	Backlinks []refindex.Backlink `json:"backlinks"`
}

// FailedNote is one note whose rewrite could not be stored.
type FailedNote struct {
	NoteID string `json:"note_id"`
	Error  string `json:"error"`
}

// BatchResponse reports a rename, delete or retry.
type BatchResponse struct {
	Updated []string     `json:"updated"`
	Failed  []FailedNote `json:"failed"`
}

func batchResponse(b *noteservice.Batch) BatchResponse {
	out := BatchResponse{Updated: b.Updated, Failed: make([]FailedNote, 0, len(b.Failed))}
	if out.Updated == nil {
		out.Updated = []string{}
	}
	for _, f := range b.Failed {
		out.Failed = append(out.Failed, FailedNote{NoteID: f.NoteID, Error: failureText(f)})
	}
	return out
}

func failureText(f *apperr.PersistenceError) string {
	if f.Err == nil {
		return "unknown error"
	}
	return f.Err.Error()
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	ID      string `json:"id" validate:"required"`
	Title   string `json:"title" example:"Hello" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// AttachmentUploadResponse is returned after a successful attachment upload.
type AttachmentUploadResponse struct {
	Filename string `json:"filename" example:"image.png" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
	URL      string `json:"url" example:"/attachments/image.png" validate:"required"`
}
