package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/noteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes ordered by title
//	@Tags			notes
//	@Produce		json
//	@Success		200		{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListNotes(r.Context())
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notes": items,
		"total": len(items),
	})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note with its backlinks
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	NoteDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.GetNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	w.Header().Set("ETag", `"`+note.Checksum+`"`)
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var content *doc.Document
	if strings.TrimSpace(req.Markdown) != "" {
		content = h.svc.ParseMarkdown(r.Context(), req.Markdown)
	}
	note, err := h.svc.CreateNote(r.Context(), req.Title, content)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/{id}.
//
//	@Summary		Replace a note's content with optimistic concurrency
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id			path	string				true	"Note id"
//	@Param			If-Match	header	string				false	"Checksum for optimistic concurrency"
//	@Param			body		body	UpdateNoteRequest	true	"Markdown or document tree"
//	@Success		200		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req UpdateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var content *doc.Document
	switch {
	case req.Content != nil:
		content = req.Content
	case req.Markdown != nil:
		content = h.svc.ParseMarkdown(r.Context(), *req.Markdown)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("markdown or content is required"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	note, err := h.svc.ReplaceContent(r.Context(), chi.URLParam(r, "id"), content, ifMatch)
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	w.Header().Set("ETag", `"`+note.Checksum+`"`)
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note and dissolve references to it
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	BatchResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	batch, err := h.svc.DeleteNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "delete note", err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse(batch))
}

// RenameNote handles POST /api/notes/{id}/rename.
//
//	@Summary		Rename a note and update every link to it
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Note id"
//	@Param			body	body		RenameRequest	true	"New title"
//	@Success		200		{object}	BatchResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/rename [post]
func (h *Handler) RenameNote(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	batch, err := h.svc.RenameNote(r.Context(), chi.URLParam(r, "id"), req.Title)
	if err != nil {
		writeError(w, "rename note", err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse(batch))
}

// Input handles POST /api/notes/{id}/input.
//
//	@Summary		Apply one editing action
//	@Tags			editor
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Note id"
//	@Param			body	body		noteservice.Input	true	"Editing action"
//	@Success		200		{object}	EditResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/input [post]
func (h *Handler) Input(w http.ResponseWriter, r *http.Request) {
	var in noteservice.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.svc.Input(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, "input", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// InsertImage handles POST /api/notes/{id}/images.
//
//	@Summary		Insert an image block at the cursor
//	@Tags			editor
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Note id"
//	@Param			body	body		ImageRequest	true	"Image"
//	@Success		200		{object}	EditResult
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/images [post]
func (h *Handler) InsertImage(w http.ResponseWriter, r *http.Request) {
	var req ImageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.InsertImage(r.Context(), chi.URLParam(r, "id"), req.URL, req.Caption)
	if err != nil {
		writeError(w, "insert image", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Backlinks handles GET /api/notes/{id}/backlinks.
//
//	@Summary		Linked and unlinked references to a note
//	@Tags			references
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	BacklinksResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	bl, err := h.svc.Backlinks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, bl)
}

// Markdown handles GET /api/notes/{id}/markdown.
//
//	@Summary		Export one note as markdown
//	@Tags			notes
//	@Produce		text/markdown
//	@Param			id			path	string	true	"Note id"
//	@Param			keep_refs	query	bool	false	"Keep block references as ((id))"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/markdown [get]
func (h *Handler) Markdown(w http.ResponseWriter, r *http.Request) {
	keep, _ := strconv.ParseBool(r.URL.Query().Get("keep_refs"))
	text, err := h.svc.ExportNote(r.Context(), chi.URLParam(r, "id"), keep)
	if err != nil {
		writeError(w, "export note", err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

// GetBlock handles GET /api/blocks/{id}.
//
//	@Summary		Resolve a block reference to its live node
//	@Tags			references
//	@Produce		json
//	@Param			id	path		string	true	"Block id"
//	@Success		200	{object}	BlockResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks/{id} [get]
func (h *Handler) GetBlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.svc.ResolveBlock(r.Context(), id)
	if err != nil {
		writeError(w, "resolve block", err)
		return
	}
	writeJSON(w, http.StatusOK, BlockResponse{BlockID: id, NoteID: res.NoteID, Path: res.Path, Node: res.Node})
}

// BlockBacklinks handles GET /api/blocks/{id}/backlinks.
//
//	@Summary		Notes embedding a block
//	@Tags			references
//	@Produce		json
//	@Param			id	path		string	true	"Block id"
//	@Success		200	{object}	BlockBacklinksResponse
//	@Security		BearerAuth
//	@Router			/blocks/{id}/backlinks [get]
func (h *Handler) BlockBacklinks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BlockBacklinksResponse{
		Backlinks: h.svc.BlockBacklinks(chi.URLParam(r, "id")),
	})
}

// Retry handles POST /api/retry.
//
//	@Summary		Store propagated rewrites that failed earlier
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RetryRequest	false	"Notes to retry"
//	@Success		200		{object}	BatchResponse
//	@Security		BearerAuth
//	@Router			/retry [post]
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	var req RetryRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	batch, err := h.svc.Retry(r.Context(), req.NoteIDs...)
	if err != nil {
		writeError(w, "retry", err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse(batch))
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	out := SearchResponse{Results: make([]SearchResult, 0, len(results))}
	for _, res := range results {
		out.Results = append(out.Results, SearchResult{ID: res.ID, Title: res.Title, Snippet: res.Snippet})
	}
	writeJSON(w, http.StatusOK, out)
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the note graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, links, err := h.svc.Graph(r.Context())
	if err != nil {
		writeError(w, "graph", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"links": links,
	})
}
