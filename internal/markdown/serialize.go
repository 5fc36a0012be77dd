package markdown

import (
	"sort"
	"strconv"
	"strings"

	"github.com/starford/notegraph/internal/doc"
)

// Serialize renders d as markdown. Top-level blocks are separated by a blank
// line; the output ends with a newline unless it is empty.
func Serialize(d *doc.Document, opts ...Option) string {
	w := &writer{opts: collect(opts), expanding: make(map[string]bool)}
	var blocks []string
	var prev *doc.Node
	for _, n := range d.Children {
		s, ok := w.block(n)
		if !ok {
			continue
		}
		// Markdown joins adjacent lists of one kind; a comment keeps them apart.
		if prev != nil && n.Type.List() && prev.Type == n.Type {
			blocks = append(blocks, listSeparator)
		}
		blocks = append(blocks, s)
		prev = n
	}
	if len(blocks) == 0 {
		return ""
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

// SerializeInline renders the inline content of a single block.
func SerializeInline(n *doc.Node, opts ...Option) string {
	w := &writer{opts: collect(opts), expanding: make(map[string]bool)}
	return w.inline(n.Children)
}

// listSeparator is emitted between adjacent lists of the same kind and
// dropped again by Parse.
const listSeparator = "<!-- -->"

type writer struct {
	opts options
	// block ids currently being flattened, for cycle detection
	expanding map[string]bool
}

func (w *writer) block(n *doc.Node) (string, bool) {
	switch {
	case n.IsText():
		s := w.inline([]*doc.Node{n})
		return s, s != ""
	case n.Type == doc.KindParagraph:
		s := w.inline(n.Children)
		if s == "" {
			return "<br>", true
		}
		return s, true
	case n.Type.Heading() > 0:
		s := w.inline(n.Children)
		return strings.Repeat("#", n.Type.Heading()) + " " + s, s != ""
	case n.Type == doc.KindBlockquote:
		s := w.inline(n.Children)
		return "> " + s, s != ""
	case n.Type == doc.KindCodeBlock:
		return codeBlock(n.PlainText())
	case n.Type == doc.KindThematicBreak:
		return "---", true
	case n.Type == doc.KindImage:
		return image(n), true
	case n.Type.List():
		return w.list(n, "")
	case n.Type == doc.KindListItem:
		s := w.inline(n.Children)
		return "- " + s, s != ""
	case n.Type == doc.KindCheckListItem:
		s := w.inline(n.Children)
		return "- " + checkbox(n) + " " + s, s != ""
	default:
		s := w.inline([]*doc.Node{n})
		return s, s != ""
	}
}

// list renders a list; nested lists are indented to the content column of
// the item before them.
func (w *writer) list(n *doc.Node, indent string) (string, bool) {
	var lines []string
	num := 0
	width := 2
	for _, c := range n.Children {
		if c.Type.List() {
			if s, ok := w.list(c, indent+strings.Repeat(" ", width)); ok {
				lines = append(lines, s)
			}
			continue
		}
		content := w.itemContent(c)
		if content == "" {
			continue
		}
		marker := "- "
		if n.Type == doc.KindNumberedList {
			num++
			marker = strconv.Itoa(num) + ". "
		}
		if c.Type == doc.KindCheckListItem {
			content = checkbox(c) + " " + content
		}
		lines = append(lines, indent+marker+content)
		width = len(marker)
	}
	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

func (w *writer) itemContent(n *doc.Node) string {
	if n.IsText() || n.Type.Inline() {
		return w.inline([]*doc.Node{n})
	}
	if n.Type.Void() {
		s, _ := w.block(n)
		return s
	}
	return w.inline(n.Children)
}

func checkbox(n *doc.Node) string {
	if n.Checked {
		return "[x]"
	}
	return "[ ]"
}

func codeBlock(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	fence := strings.Repeat("`", max(3, longestRun(text, '`')+1))
	return fence + "\n" + text + "\n" + fence, true
}

func image(n *doc.Node) string {
	return "![" + escape(n.Caption, false) + "](" + destination(n.URL) + ")"
}

func destination(url string) string {
	if strings.ContainsAny(url, " ()<>") {
		return "<" + url + ">"
	}
	return url
}

// segment is a run of inline content with uniform marks. Markup segments
// hold already rendered syntax and are never escaped or split.
type segment struct {
	text   string
	marks  doc.Marks
	markup bool
}

func (w *writer) segments(nodes []*doc.Node, out []segment) []segment {
	for _, n := range nodes {
		switch {
		case n.IsText():
			if n.Text != "" {
				out = append(out, segment{text: n.Text, marks: n.Marks})
			}
		case n.Type == doc.KindExternalLink:
			inner := w.inline(n.Children)
			if inner == "" {
				continue
			}
			out = append(out, segment{text: "[" + inner + "](" + destination(n.URL) + ")", markup: true})
		case n.Type == doc.KindNoteLink:
			text := n.PlainText()
			if text == "" {
				continue
			}
			out = append(out, segment{text: noteLink(n, text), marks: commonMarks(n), markup: true})
		case n.Type == doc.KindTag:
			name := n.Name
			if name == "" {
				name = strings.TrimPrefix(n.PlainText(), "#")
			}
			if name == "" {
				continue
			}
			out = append(out, segment{text: "#" + name, marks: commonMarks(n), markup: true})
		case n.Type == doc.KindBlockReference:
			out = w.blockRef(n, out)
		case n.Type == doc.KindImage:
			out = append(out, segment{text: image(n), markup: true})
		default:
			out = w.segments(n.Children, out)
		}
	}
	return out
}

func noteLink(n *doc.Node, text string) string {
	title := n.NoteTitle
	if title == "" {
		title = text
	}
	switch {
	case n.IsTag:
		return "#[[" + title + "]]"
	case text != title:
		return "[" + text + "]([[" + title + "]])"
	default:
		return "[[" + title + "]]"
	}
}

// blockRef flattens a block reference into the content of its target. An
// unresolved or cyclic reference falls back to its own last-known text.
func (w *writer) blockRef(n *doc.Node, out []segment) []segment {
	if w.opts.keepRefs {
		if n.BlockID == "" {
			return w.segments(n.Children, out)
		}
		return append(out, segment{text: "((" + n.BlockID + "))", marks: commonMarks(n), markup: true})
	}
	target, ok := w.opts.lookupBlock(n.BlockID)
	if !ok || w.expanding[n.BlockID] {
		return w.segments(n.Children, out)
	}
	w.expanding[n.BlockID] = true
	defer delete(w.expanding, n.BlockID)
	if target.Type.Void() {
		return w.segments([]*doc.Node{target}, out)
	}
	return w.segments(target.Children, out)
}

// commonMarks returns the marks shared by every non-empty leaf under n.
func commonMarks(n *doc.Node) doc.Marks {
	var ms doc.Marks
	first := true
	n.Walk(nil, func(c *doc.Node, _ doc.Path) bool {
		if c.IsText() && c.Text != "" {
			if first {
				ms, first = c.Marks, false
			} else {
				ms &= c.Marks
			}
		}
		return true
	})
	return ms.Without(doc.Code)
}

var delimiters = map[doc.Mark][2]string{
	doc.Underline:     {"<u>", "</u>"},
	doc.Highlight:     {"<mark>", "</mark>"},
	doc.Bold:          {"**", "**"},
	doc.Italic:        {"_", "_"},
	doc.Strikethrough: {"~~", "~~"},
}

// openOrder breaks ties between marks opened at the same position.
var openOrder = []doc.Mark{doc.Underline, doc.Highlight, doc.Bold, doc.Italic, doc.Strikethrough}

// inline renders inline content. Marks are emitted from a delimiter stack so
// that marks shared by neighbouring leaves open once, and whitespace at the
// edge of a formatted run is moved outside of its delimiters.
func (w *writer) inline(nodes []*doc.Node) string {
	segs := mergeSegments(w.segments(nodes, nil))
	e := &emitter{}
	for i := range segs {
		e.emit(segs, i)
	}
	e.closeFrom(0)
	return strings.Trim(e.b.String(), " \t")
}

func mergeSegments(segs []segment) []segment {
	var out []segment
	for _, s := range segs {
		if n := len(out); n > 0 && !s.markup && !out[n-1].markup && out[n-1].marks == s.marks {
			out[n-1].text += s.text
			continue
		}
		out = append(out, s)
	}
	return out
}

type emitter struct {
	b       strings.Builder
	stack   []doc.Mark
	pending string
	wrote   bool
}

func (e *emitter) emit(segs []segment, i int) {
	s := segs[i]
	lead, core, trail := "", s.text, ""
	if !s.markup {
		lead, core, trail = splitSpace(s.text)
	}
	if core == "" {
		e.pending += s.text
		return
	}
	want := s.marks.Without(doc.Code)

	// Close everything above the lowest open mark that no longer applies.
	for j, m := range e.stack {
		if !want.Has(m) {
			e.closeFrom(j)
			break
		}
	}
	e.b.WriteString(e.pending)
	e.b.WriteString(lead)
	e.pending = ""

	var open []doc.Mark
	for _, m := range openOrder {
		if want.Has(m) && !e.isOpen(m) {
			open = append(open, m)
		}
	}
	// Marks that run longer are opened first so they close last.
	sort.SliceStable(open, func(a, b int) bool {
		return runLength(segs, i, open[a]) > runLength(segs, i, open[b])
	})
	for _, m := range open {
		e.b.WriteString(delimiters[m][0])
		e.stack = append(e.stack, m)
		e.wrote = true
	}

	switch {
	case s.markup:
		e.b.WriteString(core)
	case s.marks.Has(doc.Code):
		e.b.WriteString(codeSpan(core))
	default:
		e.b.WriteString(escape(core, !e.wrote))
	}
	e.wrote = true
	e.pending = trail
}

func (e *emitter) isOpen(m doc.Mark) bool {
	for _, o := range e.stack {
		if o == m {
			return true
		}
	}
	return false
}

func (e *emitter) closeFrom(j int) {
	for k := len(e.stack) - 1; k >= j; k-- {
		e.b.WriteString(delimiters[e.stack[k]][1])
	}
	e.stack = e.stack[:j]
}

// runLength counts the consecutive segments from i on that carry m.
// Whitespace-only segments do not interrupt a run.
func runLength(segs []segment, i int, m doc.Mark) int {
	n := 0
	for ; i < len(segs); i++ {
		s := segs[i]
		if !s.markup && strings.Trim(s.text, " \t") == "" {
			continue
		}
		if !s.marks.Has(m) {
			break
		}
		n++
	}
	return n
}

func splitSpace(s string) (lead, core, trail string) {
	core = strings.TrimLeft(s, " \t")
	lead = s[:len(s)-len(core)]
	trimmed := strings.TrimRight(core, " \t")
	trail = core[len(trimmed):]
	return lead, trimmed, trail
}

func codeSpan(text string) string {
	fence := strings.Repeat("`", longestRun(text, '`')+1)
	if strings.HasPrefix(text, "`") || strings.HasSuffix(text, "`") {
		text = " " + text + " "
	}
	return fence + strings.ReplaceAll(text, "\n", " ") + fence
}

func longestRun(s string, c byte) int {
	best, cur := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			cur++
			best = max(best, cur)
		} else {
			cur = 0
		}
	}
	return best
}

// escape backslash-escapes markdown syntax in plain text. At the start of a
// line it also escapes characters that would open a block.
func escape(s string, lineStart bool) string {
	var b strings.Builder
	b.Grow(len(s))
	if lineStart {
		digits := 0
		for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
			digits++
		}
		switch {
		case strings.HasPrefix(s, "-"), strings.HasPrefix(s, "+"):
			b.WriteByte('\\')
		case digits > 0 && digits < len(s) && s[digits] == '.':
			b.WriteString(s[:digits])
			b.WriteByte('\\')
			s = s[digits:]
		}
	}
	for _, r := range s {
		switch r {
		case '\\', '*', '_', '~', '`', '[', ']', '(', ')', '<', '>', '#', '&', '!', '|':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString("<br>")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
