package autoformat

import (
	"regexp"
	"strings"

	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/editor"
)

func blockMatchers() []Matcher {
	return []Matcher{
		blockShortcut("bulleted-list", `^[*+-] $`, nil, listItem(doc.KindBulletedList)),
		blockShortcut("numbered-list", `^\d+\. $`, nil, listItem(doc.KindNumberedList)),
		blockShortcut("block-quote", `^> $`, nil, setKind(doc.KindBlockquote)),
		blockShortcut("heading", `^#{1,3} $`, nil, heading),
		blockShortcut("code-block", "^```$", nil, setKind(doc.KindCodeBlock)),
		blockShortcut("thematic-break", `^(?:---|\*\*\*)$`, (*editor.Tx).AtBlockEnd, thematicBreak),
		blockShortcut("check-list-item", `^\[\]$`, nil, setKind(doc.KindCheckListItem)),
	}
}

// blockShortcut matches the whole text before the cursor against pattern.
// The markup is deleted before apply runs.
func blockShortcut(name, pattern string, guard func(*editor.Tx) bool, apply func(tx *editor.Tx, markup string) error) Matcher {
	re := regexp.MustCompile(pattern)
	return Matcher{
		Name:  name,
		Stage: StageBlock,
		Match: func(tx *editor.Tx, text string) Outcome {
			if !re.MatchString(text) || (guard != nil && !guard(tx)) {
				return NoMatch
			}
			return Matched(func(tx *editor.Tx) error {
				cur := tx.Cursor()
				if err := tx.Apply(&doc.RemoveText{Path: cur.Path, Offset: 0, Length: len(text)}); err != nil {
					return err
				}
				return apply(tx, text)
			})
		},
	}
}

func kindProps(k doc.Kind) doc.Props {
	return doc.Props{Type: doc.Ptr(k), Checked: doc.Ptr(false)}
}

// setKind turns the cursor's block into a top-level block of kind k.
func setKind(k doc.Kind) func(*editor.Tx, string) error {
	return func(tx *editor.Tx, _ string) error {
		if err := tx.Unwrap(); err != nil {
			return err
		}
		_, bp, err := tx.Block()
		if err != nil {
			return err
		}
		return tx.Apply(&doc.SetNode{Path: bp, Props: kindProps(k)})
	}
}

func heading(tx *editor.Tx, markup string) error {
	return setKind(doc.HeadingKind(strings.Count(markup, "#")))(tx, markup)
}

func thematicBreak(tx *editor.Tx, markup string) error {
	if err := setKind(doc.KindThematicBreak)(tx, markup); err != nil {
		return err
	}
	_, bp, err := tx.Block()
	if err != nil {
		return err
	}
	at := bp.Next()
	if err := tx.Apply(&doc.InsertNode{Path: at, Node: doc.Paragraph("")}); err != nil {
		return err
	}
	tx.SetCursor(doc.Point{Path: at.Child(0)})
	return nil
}

// listItem makes the cursor's block an item of a list of kind k, joining the
// lists of that kind around it.
func listItem(k doc.Kind) func(*editor.Tx, string) error {
	return func(tx *editor.Tx, _ string) error {
		d := tx.Doc()
		_, bp, err := tx.Block()
		if err != nil {
			return err
		}
		if len(bp) > 1 {
			if parent, err := d.Get(bp.Parent()); err == nil && parent.Type == k {
				return tx.Apply(&doc.SetNode{Path: bp, Props: kindProps(doc.KindListItem)})
			}
		}
		if err := tx.Unwrap(); err != nil {
			return err
		}
		if _, bp, err = tx.Block(); err != nil {
			return err
		}
		ops := append([]doc.Operation{&doc.SetNode{Path: bp, Props: kindProps(doc.KindListItem)}},
			doc.WrapOps(bp, &doc.Node{Type: k})...)
		if err := tx.Apply(ops...); err != nil {
			return err
		}

		at := bp[0]
		if next := at + 1; next < len(d.Children) && d.Children[next].Type == k {
			if err := tx.Apply(&doc.MergeNode{Path: doc.Path{next}}); err != nil {
				return err
			}
		}
		if at > 0 && d.Children[at-1].Type == k {
			return tx.Apply(&doc.MergeNode{Path: doc.Path{at}})
		}
		return nil
	}
}
