package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/storage"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// attachments, if non-nil, receives uploads at POST /attachments.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler, attachments storage.Provider) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Route("/notes/{id}", func(r chi.Router) {
		r.Get("/", h.GetNote)
		r.Put("/", h.UpdateNote)
		r.Delete("/", h.DeleteNote)
		r.Post("/rename", h.RenameNote)
		r.Post("/input", h.Input)
		r.Post("/images", h.InsertImage)
		r.Get("/backlinks", h.Backlinks)
		r.Get("/markdown", h.Markdown)
	})
	r.Post("/retry", h.Retry)

	// Block references.
	r.Get("/blocks/{id}", h.GetBlock)
	r.Get("/blocks/{id}/backlinks", h.BlockBacklinks)

	r.Get("/search", h.Search)
	r.Get("/graph", h.Graph)

	if attachments != nil {
		r.Post("/attachments", NewAttachmentHandler(attachments).Upload)
	}

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
