// Package editor runs single-writer editing sessions over a note document.
// Every input passes an explicit, ordered list of interceptors before and
// after the default edit; normalisation runs last.
package editor

import "github.com/starford/notegraph/internal/doc"

// InputKind identifies what the user did.
type InputKind int

const (
	InputText InputKind = iota
	InputData
	InputFragment
	InputBreak
	InputDeleteBackward
	InputExternal
)

func (k InputKind) String() string {
	switch k {
	case InputText:
		return "insert_text"
	case InputData:
		return "insert_data"
	case InputFragment:
		return "insert_fragment"
	case InputBreak:
		return "insert_break"
	case InputDeleteBackward:
		return "delete_backward"
	case InputExternal:
		return "external"
	}
	return "unknown"
}

// Input is one user action.
type Input struct {
	Kind  InputKind
	Text  string      // InputText, InputData
	Nodes []*doc.Node // InputFragment
}

// Interceptor takes part in handling an input. Returning true stops the
// rest of its list; a before-interceptor that handles an input also
// suppresses the default edit and the after list.
type Interceptor interface {
	Name() string
	Intercept(tx *Tx, in Input) (bool, error)
}

type funcInterceptor struct {
	name string
	fn   func(tx *Tx, in Input) (bool, error)
}

func (f funcInterceptor) Name() string                            { return f.name }
func (f funcInterceptor) Intercept(tx *Tx, in Input) (bool, error) { return f.fn(tx, in) }

// Func adapts a function to an Interceptor.
func Func(name string, fn func(tx *Tx, in Input) (bool, error)) Interceptor {
	return funcInterceptor{name: name, fn: fn}
}
