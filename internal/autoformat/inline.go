package autoformat

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/editor"
	"github.com/starford/notegraph/internal/models"
)

// Group 1 of every pattern spans the text that is replaced; an optional
// guard before it keeps delimiters of longer shortcuts from matching early.
var (
	aliasedLinkRe  = regexp.MustCompile(`(\[([^\[\]]+)\]\(\[\[([^\[\]]+)\]\]\))$`)
	externalLinkRe = regexp.MustCompile(`(\[([^\[\]]+)\]\(([^()\s]+)\))$`)
	noteLinkRe     = regexp.MustCompile(`(?:^|[^(])((#?)\[\[([^\[\]]+)\]\])$`)
	blockRefRe     = regexp.MustCompile(`(\(\(([^()\s]+)\)\))$`)
	boldStarRe     = regexp.MustCompile(`(\*\*([^*\s](?:[^*]*[^*\s])?)\*\*)$`)
	boldLineRe     = regexp.MustCompile(`(__([^_\s](?:[^_]*[^_\s])?)__)$`)
	italicStarRe   = regexp.MustCompile(`(?:^|[^*])(\*([^*\s](?:[^*]*[^*\s])?)\*)$`)
	italicLineRe   = regexp.MustCompile(`(?:^|[^_\w])(_([^_\s](?:[^_]*[^_\s])?)_)$`)
	codeRe         = regexp.MustCompile("(`([^`]+)`)$")
	strikeRe       = regexp.MustCompile(`(~~([^~\s](?:[^~]*[^~\s])?)~~)$`)
	tagRe          = regexp.MustCompile(`(?:^|\s)(#([A-Za-z][A-Za-z0-9_/-]*)) $`)
)

// build returns the node replacing the matched span. groups[0] is the whole
// span, the rest are the pattern's inner groups.
type build func(tx *editor.Tx, groups []string) (*doc.Node, error)

func (p *Pipeline) inlineMatchers() []Matcher {
	return []Matcher{
		inline("aliased-note-link", aliasedLinkRe, nil, p.aliasedNoteLink),
		inline("external-link", externalLinkRe, validURL, externalLink),
		inline("note-link", noteLinkRe, nil, p.noteLink),
		inline("block-reference", blockRefRe, nil, p.blockReference),
		inline("bold", boldStarRe, nil, withMark(doc.Bold)),
		inline("bold", boldLineRe, nil, withMark(doc.Bold)),
		inline("italic", italicStarRe, nil, withMark(doc.Italic)),
		inline("italic", italicLineRe, nil, withMark(doc.Italic)),
		inline("code", codeRe, nil, withMark(doc.Code)),
		inline("strikethrough", strikeRe, nil, withMark(doc.Strikethrough)),
		inline("tag", tagRe, nil, tag),
	}
}

func inline(name string, re *regexp.Regexp, accept func(groups []string) bool, b build) Matcher {
	return Matcher{
		Name:  name,
		Stage: StageInline,
		Match: func(tx *editor.Tx, text string) Outcome {
			loc := re.FindStringSubmatchIndex(text)
			if loc == nil {
				return NoMatch
			}
			groups := make([]string, 0, len(loc)/2-1)
			for i := 2; i < len(loc); i += 2 {
				if loc[i] < 0 {
					groups = append(groups, "")
					continue
				}
				groups = append(groups, text[loc[i]:loc[i+1]])
			}
			if accept != nil && !accept(groups) {
				return NoMatch
			}
			start, end := loc[2], loc[3]
			return Matched(func(tx *editor.Tx) error {
				n, err := b(tx, groups)
				if err != nil {
					return err
				}
				return replaceSpan(tx, start, end, n)
			})
		},
	}
}

// replaceSpan swaps bytes [start, end) of the cursor's leaf for n. The cursor
// follows into the leaf after n, so typing continues outside it.
func replaceSpan(tx *editor.Tx, start, end int, n *doc.Node) error {
	lp := tx.Cursor().Path
	return tx.Apply(
		&doc.RemoveText{Path: lp.Copy(), Offset: start, Length: end - start},
		&doc.SplitNode{Path: lp.Copy(), Position: start},
		&doc.InsertNode{Path: lp.Next(), Node: n},
	)
}

func withMark(m doc.Mark) build {
	return func(tx *editor.Tx, g []string) (*doc.Node, error) {
		leaf, err := tx.Leaf()
		if err != nil {
			return nil, err
		}
		n := doc.NewText(g[1])
		n.Marks = leaf.Marks.With(m)
		return n, nil
	}
}

func validURL(g []string) bool {
	return validation.Validate(g[2], validation.Required, is.URL) == nil
}

func externalLink(_ *editor.Tx, g []string) (*doc.Node, error) {
	n := doc.NewElement(doc.KindExternalLink, doc.NewText(g[1]))
	n.URL = g[2]
	return n, nil
}

func tag(_ *editor.Tx, g []string) (*doc.Node, error) {
	n := doc.NewElement(doc.KindTag, doc.NewText(g[0]))
	n.Name = g[1]
	return n, nil
}

// noteLink handles [[Title]], [[Title|text]] and #[[Title]].
func (p *Pipeline) noteLink(tx *editor.Tx, g []string) (*doc.Node, error) {
	title, alias := g[2], ""
	isTag := g[1] == "#"
	if !isTag {
		title, alias, _ = strings.Cut(title, "|")
		alias = strings.TrimSpace(alias)
	}
	target, err := p.target(tx, title)
	if err != nil {
		return nil, err
	}
	n := doc.NoteLink(target.ID, target.Title)
	n.IsTag = isTag
	if alias != "" && alias != target.Title {
		n.CustomText = alias
		n.Children[0].Text = alias
	}
	return n, nil
}

func (p *Pipeline) aliasedNoteLink(tx *editor.Tx, g []string) (*doc.Node, error) {
	target, err := p.target(tx, g[2])
	if err != nil {
		return nil, err
	}
	n := doc.NoteLink(target.ID, target.Title)
	if g[1] != target.Title {
		n.CustomText = g[1]
		n.Children[0].Text = g[1]
	}
	return n, nil
}

// target finds or creates the note a link points to. At the note limit the
// matcher abstains and the input gets a warning.
func (p *Pipeline) target(tx *editor.Tx, title string) (models.NoteMetadata, error) {
	title = strings.TrimSpace(title)
	if p.notes == nil || title == "" {
		return models.NoteMetadata{}, errAbstain
	}
	target, err := p.notes.LinkTarget(tx.Context(), title)
	if errors.Is(err, apperr.ErrNoteLimit) {
		tx.Warn(fmt.Sprintf("cannot link to %q: note limit reached", title))
		return models.NoteMetadata{}, errAbstain
	}
	if err != nil {
		return models.NoteMetadata{}, err
	}
	return target, nil
}

// blockReference embeds a block by id. An unresolved target keeps the typed
// markup as its last-known text and warns.
func (p *Pipeline) blockReference(tx *editor.Tx, g []string) (*doc.Node, error) {
	id := g[1]
	if p.blocks != nil {
		r, err := p.blocks.ResolveBlock(tx.Context(), id)
		if err == nil {
			text := r.Node.PlainText()
			if r.Node.Type == doc.KindImage {
				text = r.Node.Caption
			}
			if text == "" {
				text = g[0]
			}
			return doc.BlockRef(id, text), nil
		}
	}
	tx.Warn(fmt.Sprintf("unresolved block reference %s", g[0]))
	return doc.BlockRef(id, g[0]), nil
}
