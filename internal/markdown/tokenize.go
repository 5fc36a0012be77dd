package markdown

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Wiki syntax is swapped for private-use placeholders before the markdown
// parser runs, so that emphasis and link rules cannot tear it apart.
const (
	tokenOpen   = '\uE000'
	tokenClose  = '\uE001'
	taskOpen    = '\uE002'
	taskDone    = '\uE003'
	taskOpenRaw = "[ ]"
	taskDoneRaw = "[x]"
)

type tokenKind int

const (
	tokNoteLink tokenKind = iota
	tokTagLink
	tokTag
	tokBlockRef
)

type token struct {
	kind  tokenKind
	value string // title, tag name or block id
	alias string // custom link text
	raw   string
}

var (
	aliasLinkRe = regexp.MustCompile(`^\[([^\[\]\n]+)\]\(\[\[([^\[\]\n]+)\]\]\)`)
	noteLinkRe  = regexp.MustCompile(`^\[\[([^\[\]\n]+)\]\]`)
	tagLinkRe   = regexp.MustCompile(`^#\[\[([^\[\]\n]+)\]\]`)
	tagRe       = regexp.MustCompile(`^#([A-Za-z][A-Za-z0-9_/-]*)`)
	blockRefRe  = regexp.MustCompile(`^\(\(([^()\s]+)\)\)`)
	fenceRe     = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})")
	taskRe      = regexp.MustCompile(`^(\s*(?:[-*+]|\d+[.)])\s+)\[([ xX])\](\s|$)`)
	placeholder = regexp.MustCompile(`\x{E000}([0-9]+)\x{E001}`)
)

type tokenizer struct {
	out    strings.Builder
	tokens []token
}

// tokenize replaces wiki links, tags, block references and task markers
// outside code with placeholders and returns the rewritten source.
func tokenize(src string) (string, []token) {
	t := &tokenizer{}
	fence := ""
	for _, line := range strings.SplitAfter(src, "\n") {
		if fence != "" {
			t.out.WriteString(line)
			if closesFence(line, fence) {
				fence = ""
			}
			continue
		}
		if m := fenceRe.FindStringSubmatch(line); m != nil {
			fence = m[1]
			t.out.WriteString(line)
			continue
		}
		if m := taskRe.FindStringSubmatchIndex(line); m != nil {
			t.out.WriteString(line[:m[3]])
			if line[m[4]:m[5]] == " " {
				t.out.WriteRune(taskOpen)
			} else {
				t.out.WriteRune(taskDone)
			}
			line = line[m[6]:]
		}
		t.scan(line)
	}
	return t.out.String(), t.tokens
}

func closesFence(line, fence string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, fence) && strings.Trim(trimmed, fence[:1]) == ""
}

func (t *tokenizer) scan(line string) {
	for i := 0; i < len(line); {
		rest := line[i:]
		switch c := line[i]; c {
		case '\\':
			n := 1
			if i+1 < len(line) {
				_, size := utf8.DecodeRuneInString(line[i+1:])
				n += size
			}
			t.out.WriteString(line[i : i+n])
			i += n
			continue
		case '`':
			run := len(rest) - len(strings.TrimLeft(rest, "`"))
			end := strings.Index(rest[run:], strings.Repeat("`", run))
			if end < 0 {
				t.out.WriteString(rest[:run])
				i += run
				continue
			}
			n := run + end + run
			t.out.WriteString(rest[:n])
			i += n
			continue
		case '<':
			if end := strings.IndexByte(rest, '>'); end > 0 {
				t.out.WriteString(rest[:end+1])
				i += end + 1
				continue
			}
		case ']':
			// link destination
			if strings.HasPrefix(rest, "](") {
				n := destinationEnd(rest)
				t.out.WriteString(rest[:n])
				i += n
				continue
			}
		case '[':
			if m := aliasLinkRe.FindStringSubmatch(rest); m != nil {
				t.emit(token{kind: tokNoteLink, value: m[2], alias: m[1], raw: m[0]})
				i += len(m[0])
				continue
			}
			if m := noteLinkRe.FindStringSubmatch(rest); m != nil {
				title, alias, _ := strings.Cut(m[1], "|")
				t.emit(token{kind: tokNoteLink, value: strings.TrimSpace(title), alias: strings.TrimSpace(alias), raw: m[0]})
				i += len(m[0])
				continue
			}
		case '#':
			if m := tagLinkRe.FindStringSubmatch(rest); m != nil {
				t.emit(token{kind: tokTagLink, value: m[1], raw: m[0]})
				i += len(m[0])
				continue
			}
			if m := tagRe.FindStringSubmatch(rest); m != nil && tagBoundary(line[:i]) {
				t.emit(token{kind: tokTag, value: m[1], raw: m[0]})
				i += len(m[0])
				continue
			}
		case '(':
			if m := blockRefRe.FindStringSubmatch(rest); m != nil {
				t.emit(token{kind: tokBlockRef, value: m[1], raw: m[0]})
				i += len(m[0])
				continue
			}
		}
		t.out.WriteByte(line[i])
		i++
	}
}

func (t *tokenizer) emit(tok token) {
	t.out.WriteRune(tokenOpen)
	t.out.WriteString(strconv.Itoa(len(t.tokens)))
	t.out.WriteRune(tokenClose)
	t.tokens = append(t.tokens, tok)
}

// destinationEnd returns the length of "](...)" at the start of s, balancing
// nested parentheses. Without a closing parenthesis only "]" is consumed.
func destinationEnd(s string) int {
	depth := 0
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		case '\n':
			return 1
		}
	}
	return 1
}

// tagBoundary reports whether a #tag may start after before.
func tagBoundary(before string) bool {
	if before == "" {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(before)
	return unicode.IsSpace(r) || strings.ContainsRune("*_~>(", r) || r == tokenClose
}

// detokenize restores the original text of every placeholder in s.
func detokenize(s string, tokens []token) string {
	s = placeholder.ReplaceAllStringFunc(s, func(m string) string {
		if tok, ok := lookupToken(m, tokens); ok {
			return tok.raw
		}
		return m
	})
	s = strings.ReplaceAll(s, string(taskOpen), taskOpenRaw)
	return strings.ReplaceAll(s, string(taskDone), taskDoneRaw)
}

func lookupToken(m string, tokens []token) (token, bool) {
	sub := placeholder.FindStringSubmatch(m)
	if sub == nil {
		return token{}, false
	}
	i, err := strconv.Atoi(sub[1])
	if err != nil || i < 0 || i >= len(tokens) {
		return token{}, false
	}
	return tokens[i], true
}
