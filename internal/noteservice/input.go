package noteservice

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/editor"
	"github.com/starford/notegraph/internal/markdown"
)

// Input kinds accepted by Service.Input.
const (
	InputText           = "insert_text"
	InputData           = "insert_data"
	InputFragment       = "insert_fragment"
	InputBreak          = "insert_break"
	InputDeleteBackward = "delete_backward"
)

// Input is one editing action sent by a client. At, when set, moves the
// cursor before the action runs.
type Input struct {
	Kind  string      `json:"kind"`
	Text  string      `json:"text,omitempty"`
	Nodes []*doc.Node `json:"nodes,omitempty"`
	At    *doc.Point  `json:"at,omitempty"`
}

// EditResult is what a client needs to redraw after an input.
type EditResult struct {
	Ops      int           `json:"ops"`
	Warnings []string      `json:"warnings"`
	Cursor   doc.Point     `json:"cursor"`
	Content  *doc.Document `json:"content"`
}

// Input applies one editing action to a note.
func (s *Service) Input(ctx context.Context, id string, in Input) (*EditResult, error) {
	var cursor doc.Point
	var content *doc.Document
	res, err := s.Edit(ctx, id, func(ctx context.Context, sess *editor.Session) (editor.Result, error) {
		if in.At != nil {
			if err := sess.Select(*in.At); err != nil {
				return editor.Result{}, err
			}
		}
		res, err := dispatch(ctx, sess, in)
		cursor, content = sess.Cursor(), sess.Document()
		return res, err
	})
	if err != nil {
		return nil, err
	}
	return &EditResult{
		Ops:      len(res.Ops),
		Warnings: nonNilSlice(res.Warnings),
		Cursor:   cursor,
		Content:  content,
	}, nil
}

func dispatch(ctx context.Context, sess *editor.Session, in Input) (editor.Result, error) {
	switch in.Kind {
	case InputText:
		return sess.InsertText(ctx, in.Text)
	case InputData:
		return sess.InsertData(ctx, in.Text)
	case InputFragment:
		return sess.InsertFragment(ctx, in.Nodes)
	case InputBreak:
		return sess.InsertBreak(ctx)
	case InputDeleteBackward:
		return sess.DeleteBackward(ctx)
	}
	return editor.Result{}, fmt.Errorf("%w: unknown input kind %q", apperr.ErrInvalidInput, in.Kind)
}

// InsertImage places an image block at the cursor of a note.
func (s *Service) InsertImage(ctx context.Context, id, url, caption string) (*EditResult, error) {
	url = strings.TrimSpace(url)
	if err := validation.Validate(url, validation.Required, validation.Length(1, 2048), validation.By(imageURL)); err != nil {
		return nil, fmt.Errorf("%w: image url %v", apperr.ErrInvalidInput, err)
	}
	img := doc.NewElement(doc.KindImage)
	img.URL = url
	img.Caption = strings.TrimSpace(caption)
	return s.Input(ctx, id, Input{Kind: InputFragment, Nodes: []*doc.Node{img}})
}

// imageURL accepts absolute URLs and paths served by this process.
func imageURL(v any) error {
	u, _ := v.(string)
	if strings.HasPrefix(u, "/") {
		return nil
	}
	return is.URL.Validate(u)
}

// ParseMarkdown converts markdown to a document, linking [[Title]] syntax to
// existing notes.
func (s *Service) ParseMarkdown(ctx context.Context, text string) *doc.Document {
	return markdown.Parse(text,
		markdown.WithTitleResolver(titleResolver{ctx: ctx, s: s}),
		markdown.WithBlockResolver(s.index))
}
