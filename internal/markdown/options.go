// Package markdown converts note documents to markdown and back.
package markdown

import "github.com/starford/notegraph/internal/doc"

// BlockResolver finds the current node carrying a block id.
type BlockResolver interface {
	LookupBlock(blockID string) (*doc.Node, bool)
}

// TitleResolver maps a note title to its note id.
type TitleResolver interface {
	ResolveTitle(title string) (string, bool)
}

// Option configures Serialize and Parse.
type Option func(*options)

type options struct {
	blocks   BlockResolver
	titles   TitleResolver
	keepRefs bool
}

// WithBlockResolver flattens block references into their target's content
// when serializing, and fills in their text when parsing.
func WithBlockResolver(r BlockResolver) Option {
	return func(o *options) { o.blocks = r }
}

// WithTitleResolver links parsed [[Title]] syntax to existing notes.
func WithTitleResolver(r TitleResolver) Option {
	return func(o *options) { o.titles = r }
}

// KeepBlockReferences serializes block references as ((id)) instead of
// flattening them.
func KeepBlockReferences() Option {
	return func(o *options) { o.keepRefs = true }
}

func collect(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o options) lookupBlock(id string) (*doc.Node, bool) {
	if o.blocks == nil || id == "" {
		return nil, false
	}
	return o.blocks.LookupBlock(id)
}

func (o options) resolveTitle(title string) string {
	if o.titles == nil {
		return ""
	}
	id, _ := o.titles.ResolveTitle(title)
	return id
}
