package markdown

import (
	"bytes"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/notegraph/internal/doc"
)

// Frontmatter is the YAML header of a markdown file.
type Frontmatter map[string]any

// File is an imported markdown file.
type File struct {
	Title       string
	Tags        []string
	Frontmatter Frontmatter
	Content     *doc.Document
}

// ParseFile splits the frontmatter off data, derives the note title and
// parses the body.
func ParseFile(filename string, data []byte, opts ...Option) *File {
	fm, body := SplitFrontmatter(data)
	return &File{
		Title:       DeriveTitle(fm, body, filename),
		Tags:        fm.Tags(),
		Frontmatter: fm,
		Content:     Parse(body, opts...),
	}
}

// SplitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the body. Without a valid header the entire content is body.
func SplitFrontmatter(data []byte) (Frontmatter, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm Frontmatter
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

// DeriveTitle returns the frontmatter "title", otherwise the first H1
// heading, otherwise the file name without its extension.
func DeriveTitle(fm Frontmatter, body, filename string) string {
	if t, ok := fm["title"].(string); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Tags returns the string entries of the "tags" field.
func (fm Frontmatter) Tags() []string {
	raw, ok := fm["tags"].([]any)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if _, dup := seen[s]; s == "" || dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// WithFrontmatter prefixes body with a YAML header holding the title.
func WithFrontmatter(title, body string) (string, error) {
	header, err := yaml.Marshal(map[string]string{"title": title})
	if err != nil {
		return "", err
	}
	return "---\n" + string(header) + "---\n\n" + body, nil
}
