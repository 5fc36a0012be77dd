// Package autoformat turns markdown-like syntax typed or pasted into a note
// into structured elements. It runs as an after-interceptor of an editing
// session: block shortcuts are tried first, then inline shortcuts, and the
// first matcher that accepts the text wins.
package autoformat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/editor"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/refindex"
)

// Notes resolves the targets of note links.
type Notes interface {
	// LinkTarget returns the note titled title, compared case-insensitively,
	// creating it when there is none. It fails with apperr.ErrNoteLimit when
	// a note would have to be created but the corpus is full.
	LinkTarget(ctx context.Context, title string) (models.NoteMetadata, error)
}

// Blocks resolves the targets of block references.
type Blocks interface {
	ResolveBlock(ctx context.Context, blockID string) (refindex.Resolution, error)
}

// errAbstain is returned by a transform that declines after all, before it
// changed anything.
var errAbstain = errors.New("autoformat: abstained")

type Option func(*Pipeline)

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline is the ordered matcher list.
type Pipeline struct {
	matchers []Matcher
	notes    Notes
	blocks   Blocks
	logger   *slog.Logger
}

// New returns the pipeline with the built-in block and inline shortcuts.
// Either collaborator may be nil; the matchers that need it then decline.
func New(notes Notes, blocks Blocks, opts ...Option) *Pipeline {
	p := &Pipeline{notes: notes, blocks: blocks, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	p.matchers = append(blockMatchers(), p.inlineMatchers()...)
	return p
}

// Matchers returns the matchers in priority order.
func (p *Pipeline) Matchers() []Matcher {
	return append([]Matcher(nil), p.matchers...)
}

func (p *Pipeline) Name() string { return "autoformat" }

// Intercept implements editor.Interceptor. At most one transform runs per
// input and the pipeline never sees its own output.
func (p *Pipeline) Intercept(tx *editor.Tx, in editor.Input) (bool, error) {
	if in.Kind != editor.InputText && in.Kind != editor.InputData {
		return false, nil
	}
	if tx.InCodeBlock() || inInlineElement(tx) {
		return false, nil
	}
	text := tx.TextBefore()
	if text == "" {
		return false, nil
	}

	var stages []Stage
	if inFirstLeaf(tx) {
		stages = append(stages, StageBlock)
	}
	stages = append(stages, StageInline)
	for _, stage := range stages {
		m, out := First(p.stage(stage), tx, text)
		if !out.Ok() {
			continue
		}
		err := out.transform(tx)
		if errors.Is(err, errAbstain) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("autoformat: %s: %w", m.Name, err)
		}
		p.logger.Debug("autoformat: applied",
			slog.String("note", tx.NoteID()),
			slog.String("matcher", m.Name),
			slog.String("stage", stage.String()))
		return true, nil
	}
	return false, nil
}

func (p *Pipeline) stage(s Stage) []Matcher {
	var out []Matcher
	for _, m := range p.matchers {
		if m.Stage == s {
			out = append(out, m)
		}
	}
	return out
}

func inInlineElement(tx *editor.Tx) bool {
	_, _, ok := tx.Doc().Above(tx.Cursor().Path, func(n *doc.Node) bool { return n.Type.Inline() })
	return ok
}

// inFirstLeaf reports whether the cursor sits in the first text leaf of its
// block, so the text before it starts the line.
func inFirstLeaf(tx *editor.Tx) bool {
	_, bp, err := tx.Block()
	if err != nil {
		return false
	}
	start, err := tx.Doc().Start(bp)
	if err != nil {
		return false
	}
	return start.Path.Equal(tx.Cursor().Path)
}
