// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes notegraph tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/storage"
)

const formatURI = "notegraph://note-format"

// Server wraps the MCP server with notegraph tools.
type Server struct {
	mcp         *server.MCPServer
	svc         *noteservice.Service
	attachments storage.Provider
	exports     storage.Provider
}

// Option configures a Server.
type Option func(*Server)

// WithAttachments enables upload_asset, saving into files.
func WithAttachments(files storage.Provider) Option {
	return func(s *Server) { s.attachments = files }
}

// WithExports enables export_notes, writing into files.
func WithExports(files storage.Provider) Option {
	return func(s *Server) { s.exports = files }
}

// New creates a new MCP server with all notegraph tools registered.
func New(svc *noteservice.Service, opts ...Option) *Server {
	s := &Server{svc: svc}
	for _, o := range opts {
		o(s)
	}

	s.mcp = server.NewMCPServer(
		"notegraph",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note as Markdown. Block references are expanded into the text they point to."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title (case-insensitive)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note. The body MUST follow the note format contract: "+
			"[[Title]] links, #tags and ((block-id)) references. Read the contract first via "+
			"the get_note_contract tool or the "+formatURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Unique note title")),
		mcp.WithString("markdown", mcp.Description("Markdown body following the note format contract")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("rename_note",
		mcp.WithDescription("Rename a note. Every link to it is updated."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Current note title")),
		mcp.WithString("new_title", mcp.Required(), mcp.Description("New unique title")),
	), s.renameNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note. Links to it become plain text and references to its blocks keep their last text."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the note format contract. "+
			"Call this before creating or importing notes to ensure correct structure."),
	), s.getNoteContract)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List all note titles."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find notes that link to the specified note, and notes that mention its title without linking."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Title of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("import_markdown",
		mcp.WithDescription("Import a Markdown file. A note with the same title is replaced; otherwise a note is created."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("File name, used as the title when the file has no frontmatter title or heading")),
		mcp.WithString("content", mcp.Required(), mcp.Description("File content, optionally with YAML frontmatter")),
	), s.importMarkdown)

	if s.exports != nil {
		s.mcp.AddTool(mcp.NewTool("export_notes",
			mcp.WithDescription("Export every note as a Markdown file into the export directory."),
		), s.exportNotes)
	}

	if s.attachments != nil {
		s.mcp.AddTool(mcp.NewTool("upload_asset",
			mcp.WithDescription("Save an image from an http(s) URL or a base64 data URI into the attachments "+
				"directory. With note_title the image is also inserted into that note."),
			mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data URI")),
			mcp.WithString("filename", mcp.Description("Optional file name")),
			mcp.WithString("note_title", mcp.Description("Optional note to insert the image into")),
			mcp.WithString("caption", mcp.Description("Optional image caption")),
		), s.uploadAsset)
	}

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Note Format Contract",
			mcp.WithResourceDescription("Markdown syntax understood by notegraph."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError turns a service error into a tool result the model can act on.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("note not found")
	case errors.Is(err, apperr.ErrDuplicateTitle):
		return mcp.NewToolResultError("a note with this title already exists")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) noteByTitle(ctx context.Context, req mcp.CallToolRequest, arg string) (*noteservice.NoteDetail, *mcp.CallToolResult) {
	title, err := req.RequireString(arg)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	n, err := s.svc.FindByTitle(ctx, title)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, mcp.NewToolResultError(fmt.Sprintf("not found: %s", title))
		}
		return nil, toolError(err)
	}
	return n, nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, res := s.noteByTitle(ctx, req, "title")
	if res != nil {
		return res, nil
	}
	text, err := s.svc.ExportNote(ctx, n.ID, false)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var content *doc.Document
	if body := req.GetString("markdown", ""); strings.TrimSpace(body) != "" {
		content = s.svc.ParseMarkdown(ctx, body)
	}

	n, err := s.svc.CreateNote(ctx, title, content)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (%s)", n.Title, n.ID)), nil
}

func (s *Server) renameNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, res := s.noteByTitle(ctx, req, "title")
	if res != nil {
		return res, nil
	}
	newTitle, err := req.RequireString("new_title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	batch, err := s.svc.RenameNote(ctx, n.ID, newTitle)
	if err != nil {
		return toolError(err), nil
	}
	return batchResult("renamed", batch), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, res := s.noteByTitle(ctx, req, "title")
	if res != nil {
		return res, nil
	}
	batch, err := s.svc.DeleteNote(ctx, n.ID)
	if err != nil {
		return toolError(err), nil
	}
	return batchResult("deleted", batch), nil
}

// batchResult reports how many linking notes were rewritten. Failed notes
// make the result an error so the model does not assume success.
func batchResult(verb string, b *noteservice.Batch) *mcp.CallToolResult {
	msg := fmt.Sprintf("%s; %d linking notes updated", verb, len(b.Updated))
	if len(b.Failed) > 0 {
		return mcp.NewToolResultError(fmt.Sprintf("%s; %d could not be saved and are pending retry: %s",
			msg, len(b.Failed), strings.Join(b.FailedIDs(), ", ")))
	}
	return mcp.NewToolResultText(msg)
}

func (s *Server) listNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metas, err := s.svc.ListNotes(ctx)
	if err != nil {
		return toolError(err), nil
	}
	titles := make([]string, 0, len(metas))
	for _, m := range metas {
		titles = append(titles, m.Title)
	}
	return mcp.NewToolResultText(strings.Join(titles, "\n")), nil
}

func (s *Server) getNoteContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, res := s.noteByTitle(ctx, req, "title")
	if res != nil {
		return res, nil
	}
	bl, err := s.svc.Backlinks(ctx, n.ID)
	if err != nil {
		return toolError(err), nil
	}
	if bl.LinkedCount == 0 && bl.UnlinkedCount == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}

	var b strings.Builder
	for _, l := range bl.Linked {
		fmt.Fprintf(&b, "linked: %s (%d)\n", l.SourceTitle, len(l.Matches))
	}
	for _, l := range bl.Unlinked {
		fmt.Fprintf(&b, "unlinked: %s (%d)\n", l.SourceTitle, len(l.Matches))
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (s *Server) importMarkdown(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := s.svc.ImportFile(ctx, filename, []byte(content))
	if res.Err != nil {
		return toolError(res.Err), nil
	}
	verb := "updated"
	if res.Created {
		verb = "created"
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s (%s)", verb, res.Title, res.NoteID)), nil
}

func (s *Server) exportNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files, err := s.svc.Export(ctx, s.exports)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(files), nil
}
