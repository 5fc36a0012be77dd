package markdown

import (
	"strings"
	"unicode/utf8"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"

	"github.com/starford/notegraph/internal/doc"
)

// Autolinks and intra-word emphasis rules are left off: the serializer
// escapes everything it needs and relies on plain CommonMark-style runs.
const extensions = parser.FencedCode | parser.Strikethrough | parser.SpaceHeadings | parser.NoEmptyLineBeforeBlock

// Parse converts markdown into a document. Nested lists are lifted out of
// their items and images are split into blocks of their own before the
// markdown tree is mapped onto note nodes. Unknown constructs degrade to
// paragraphs of raw text.
func Parse(src string, opts ...Option) *doc.Document {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	text, tokens := tokenize(src)
	root := parser.NewWithExtensions(extensions).Parse([]byte(text))

	normalizeLists(root)
	splitImages(root)

	b := &builder{tokens: tokens, opts: collect(opts)}
	blocks := b.blocks(root.GetChildren(), true)
	if len(blocks) == 0 {
		return doc.New()
	}
	return doc.FromNodes(blocks...)
}

// normalizeLists rewrites every list so that items hold inline content
// directly and nested lists follow the item they belonged to.
func normalizeLists(n ast.Node) {
	for _, c := range n.GetChildren() {
		normalizeLists(c)
	}
	list, ok := n.(*ast.List)
	if !ok {
		return
	}
	var out []ast.Node
	for _, c := range list.Children {
		item, ok := c.(*ast.ListItem)
		if !ok {
			out = append(out, c)
			continue
		}
		var inline, lifted []ast.Node
		for _, ic := range item.Children {
			switch ic := ic.(type) {
			case *ast.List:
				lifted = append(lifted, ic)
			case *ast.Paragraph, *ast.Heading:
				if len(inline) > 0 {
					inline = append(inline, &ast.Hardbreak{})
				}
				inline = append(inline, ic.GetChildren()...)
			default:
				inline = append(inline, ic)
			}
		}
		setChildren(item, inline)
		out = append(out, item)
		out = append(out, lifted...)
	}
	setChildren(list, out)
}

// splitImages moves images that sit directly in a paragraph into blocks of
// their own, splitting the paragraph around them.
func splitImages(n ast.Node) {
	var out []ast.Node
	changed := false
	for _, c := range n.GetChildren() {
		p, ok := c.(*ast.Paragraph)
		if !ok || !hasImage(p) {
			splitImages(c)
			out = append(out, c)
			continue
		}
		changed = true
		var run []ast.Node
		flush := func() {
			if !blank(run) {
				para := &ast.Paragraph{}
				setChildren(para, run)
				out = append(out, para)
			}
			run = nil
		}
		for _, ic := range p.Children {
			if img, ok := ic.(*ast.Image); ok {
				flush()
				out = append(out, img)
				continue
			}
			run = append(run, ic)
		}
		flush()
	}
	if changed {
		setChildren(n, out)
	}
}

func hasImage(p *ast.Paragraph) bool {
	for _, c := range p.Children {
		if _, ok := c.(*ast.Image); ok {
			return true
		}
	}
	return false
}

func blank(nodes []ast.Node) bool {
	for _, n := range nodes {
		t, ok := n.(*ast.Text)
		if !ok || strings.TrimSpace(string(t.Literal)) != "" {
			return false
		}
	}
	return true
}

func setChildren(parent ast.Node, children []ast.Node) {
	for _, c := range children {
		c.SetParent(parent)
	}
	parent.SetChildren(children)
}

type builder struct {
	tokens []token
	opts   options
	// marks toggled by inline html tags, which the parser leaves flat
	html doc.Marks
}

func (b *builder) blocks(nodes []ast.Node, top bool) []*doc.Node {
	var out []*doc.Node
	for _, n := range nodes {
		out = append(out, b.block(n, top)...)
	}
	return out
}

func (b *builder) block(n ast.Node, top bool) []*doc.Node {
	switch n := n.(type) {
	case *ast.Paragraph:
		return []*doc.Node{b.element(doc.KindParagraph, n.Children)}
	case *ast.Heading:
		return []*doc.Node{b.element(doc.HeadingKind(n.Level), n.Children)}
	case *ast.BlockQuote:
		var out []*doc.Node
		for _, c := range n.Children {
			if p, ok := c.(*ast.Paragraph); ok {
				out = append(out, b.element(doc.KindBlockquote, p.Children))
				continue
			}
			out = append(out, b.block(c, top)...)
		}
		return out
	case *ast.CodeBlock:
		text := strings.TrimSuffix(detokenize(string(n.Literal), b.tokens), "\n")
		return []*doc.Node{doc.NewElement(doc.KindCodeBlock, doc.NewText(text))}
	case *ast.HorizontalRule:
		return []*doc.Node{doc.NewElement(doc.KindThematicBreak)}
	case *ast.Image:
		img := doc.NewElement(doc.KindImage)
		img.URL = string(n.Destination)
		img.Caption = b.plain(n)
		return []*doc.Node{img}
	case *ast.List:
		return b.list(n, top)
	case *ast.ListItem:
		return []*doc.Node{b.item(n)}
	case *ast.HTMLBlock:
		text := strings.TrimSpace(detokenize(string(n.Literal), b.tokens))
		if isComment(text) {
			return nil
		}
		if isBreak(text) {
			text = ""
		}
		return []*doc.Node{doc.Paragraph(text)}
	default:
		text := strings.TrimSpace(b.plain(n))
		if text == "" {
			return nil
		}
		return []*doc.Node{doc.Paragraph(text)}
	}
}

// list maps a markdown list. Check items at the top level become blocks of
// their own, splitting the surrounding list.
func (b *builder) list(l *ast.List, top bool) []*doc.Node {
	kind := doc.KindBulletedList
	if l.ListFlags&ast.ListTypeOrdered != 0 {
		kind = doc.KindNumberedList
	}
	var out []*doc.Node
	var cur *doc.Node
	flush := func() {
		if cur != nil {
			out = append(out, cur)
			cur = nil
		}
	}
	afterCheck := false
	for _, c := range l.Children {
		var n *doc.Node
		switch c := c.(type) {
		case *ast.ListItem:
			n = b.item(c)
		case *ast.List:
			nested := b.list(c, false)
			if len(nested) == 0 {
				continue
			}
			n = nested[0]
		default:
			continue
		}
		if top && (n.Type == doc.KindCheckListItem || (afterCheck && n.Type.List())) {
			flush()
			out = append(out, n)
			afterCheck = n.Type == doc.KindCheckListItem || afterCheck
			continue
		}
		afterCheck = false
		if cur == nil {
			cur = &doc.Node{Type: kind}
		}
		cur.Children = append(cur.Children, n)
	}
	flush()
	return out
}

func (b *builder) item(li *ast.ListItem) *doc.Node {
	b.html = 0
	n := &doc.Node{Type: doc.KindListItem, Children: b.inline(li.Children, 0, nil)}
	if first := n.Children[0]; first.IsText() {
		r, size := utf8.DecodeRuneInString(first.Text)
		if r == taskOpen || r == taskDone {
			n.Type = doc.KindCheckListItem
			n.Checked = r == taskDone
			first.Text = first.Text[size:]
		}
	}
	n.Children = doc.CompactInline(n.Children)
	trimEdges(n.Children)
	return n
}

func (b *builder) element(kind doc.Kind, children []ast.Node) *doc.Node {
	b.html = 0
	inline := doc.CompactInline(b.inline(children, 0, nil))
	if kind == doc.KindParagraph && len(inline) == 1 && inline[0].Text == "\n" {
		inline[0].Text = ""
	}
	trimEdges(inline)
	return &doc.Node{Type: kind, Children: inline}
}

// inline maps inline markdown nodes carrying marks onto text leaves and
// inline elements.
func (b *builder) inline(nodes []ast.Node, marks doc.Marks, out []*doc.Node) []*doc.Node {
	for _, n := range nodes {
		cur := marks | b.html
		switch n := n.(type) {
		case *ast.Text:
			out = b.text(strings.ReplaceAll(string(n.Literal), "\n", " "), cur, out)
		case *ast.Softbreak:
			out = append(out, leaf(" ", cur))
		case *ast.Hardbreak:
			out = append(out, leaf("\n", cur))
		case *ast.Strong:
			out = b.inline(n.Children, marks.With(doc.Bold), out)
		case *ast.Emph:
			out = b.inline(n.Children, marks.With(doc.Italic), out)
		case *ast.Del:
			out = b.inline(n.Children, marks.With(doc.Strikethrough), out)
		case *ast.Code:
			out = append(out, leaf(detokenize(string(n.Literal), b.tokens), cur.With(doc.Code)))
		case *ast.HTMLSpan:
			out = b.htmlSpan(string(n.Literal), cur, out)
		case *ast.Link:
			link := &doc.Node{Type: doc.KindExternalLink, URL: string(n.Destination)}
			link.Children = doc.CompactInline(b.inline(n.Children, marks, nil))
			out = append(out, link)
		case *ast.Image:
			out = append(out, leaf(b.plain(n), cur))
		case *ast.Paragraph, *ast.Heading:
			out = b.inline(n.GetChildren(), marks, out)
		default:
			if leafNode := n.AsLeaf(); leafNode != nil {
				out = b.text(string(leafNode.Literal), cur, out)
				continue
			}
			out = b.inline(n.GetChildren(), marks, out)
		}
	}
	if len(out) == 0 {
		out = append(out, doc.NewText(""))
	}
	return out
}

func leaf(text string, marks doc.Marks) *doc.Node {
	return &doc.Node{Text: text, Marks: marks}
}

func (b *builder) htmlSpan(tag string, marks doc.Marks, out []*doc.Node) []*doc.Node {
	switch strings.ToLower(tag) {
	case "<u>":
		b.html = b.html.With(doc.Underline)
	case "</u>":
		b.html = b.html.Without(doc.Underline)
	case "<mark>":
		b.html = b.html.With(doc.Highlight)
	case "</mark>":
		b.html = b.html.Without(doc.Highlight)
	default:
		if isBreak(tag) {
			return append(out, leaf("\n", marks))
		}
		return append(out, leaf(detokenize(tag, b.tokens), marks))
	}
	return out
}

func isComment(html string) bool {
	return strings.HasPrefix(html, "<!--") && strings.HasSuffix(html, "-->")
}

func isBreak(tag string) bool {
	switch strings.ToLower(strings.ReplaceAll(tag, " ", "")) {
	case "<br>", "<br/>":
		return true
	}
	return false
}

// text expands placeholders in s into inline elements.
func (b *builder) text(s string, marks doc.Marks, out []*doc.Node) []*doc.Node {
	for {
		loc := placeholder.FindStringIndex(s)
		if loc == nil {
			break
		}
		tok, ok := lookupToken(s[loc[0]:loc[1]], b.tokens)
		if !ok {
			out = append(out, leaf(s[:loc[1]], marks))
			s = s[loc[1]:]
			continue
		}
		if loc[0] > 0 {
			out = append(out, leaf(s[:loc[0]], marks))
		}
		out = append(out, b.tokenNode(tok, marks))
		s = s[loc[1]:]
	}
	if s != "" {
		out = append(out, leaf(s, marks))
	}
	return out
}

func (b *builder) tokenNode(tok token, marks doc.Marks) *doc.Node {
	switch tok.kind {
	case tokNoteLink, tokTagLink:
		n := doc.NoteLink(b.opts.resolveTitle(tok.value), tok.value)
		n.IsTag = tok.kind == tokTagLink
		if tok.alias != "" && tok.alias != tok.value {
			n.CustomText = tok.alias
			n.Children[0].Text = tok.alias
		}
		n.Children[0].Marks = marks
		return n
	case tokTag:
		n := doc.NewElement(doc.KindTag, leaf("#"+tok.value, marks))
		n.Name = tok.value
		return n
	default:
		n := doc.BlockRef(tok.value, BlockText(b.opts.blocks, tok.value))
		n.Children[0].Marks = marks
		return n
	}
}

// BlockText returns the current plain text of the block with the given id,
// or the id itself when it cannot be resolved.
func BlockText(r BlockResolver, blockID string) string {
	if r != nil {
		if n, ok := r.LookupBlock(blockID); ok {
			if n.Type == doc.KindImage {
				return n.Caption
			}
			return n.PlainText()
		}
	}
	return blockID
}

// plain returns the visible text under n with placeholders restored.
func (b *builder) plain(n ast.Node) string {
	var sb strings.Builder
	ast.WalkFunc(n, func(c ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		if l := c.AsLeaf(); l != nil {
			sb.Write(l.Literal)
		}
		return ast.GoToNext
	})
	return detokenize(sb.String(), b.tokens)
}

// trimEdges drops whitespace at the start and end of a block's content.
func trimEdges(nodes []*doc.Node) {
	if first := nodes[0]; first.IsText() {
		first.Text = strings.TrimLeft(first.Text, " \t")
	}
	if last := nodes[len(nodes)-1]; last.IsText() {
		last.Text = strings.TrimRight(last.Text, " \t\n")
	}
}
