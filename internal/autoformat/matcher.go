package autoformat

import "github.com/starford/notegraph/internal/editor"

// Transform rewrites the document around the cursor.
type Transform func(tx *editor.Tx) error

// Outcome is what a matcher returns: either Matched with the transform to
// run, or NoMatch.
type Outcome struct {
	transform Transform
}

// NoMatch declines the text.
var NoMatch = Outcome{}

// Matched accepts the text with transform t.
func Matched(t Transform) Outcome { return Outcome{transform: t} }

// Ok reports whether the outcome carries a transform.
func (o Outcome) Ok() bool { return o.transform != nil }

// Stage tells which part of the text a matcher looks at.
type Stage int

const (
	// StageBlock matchers see the text from the start of the block and run
	// only when the cursor is in the block's first leaf.
	StageBlock Stage = iota
	// StageInline matchers see the text of the cursor's leaf up to the cursor.
	StageInline
)

func (s Stage) String() string {
	if s == StageBlock {
		return "block"
	}
	return "inline"
}

// Matcher is one entry of the pipeline.
type Matcher struct {
	Name  string
	Stage Stage
	Match func(tx *editor.Tx, text string) Outcome
}

// First tries ms in order and returns the first matcher that accepts text.
func First(ms []Matcher, tx *editor.Tx, text string) (Matcher, Outcome) {
	for _, m := range ms {
		if out := m.Match(tx, text); out.Ok() {
			return m, out
		}
	}
	return Matcher{}, NoMatch
}
