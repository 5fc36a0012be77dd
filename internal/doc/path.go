package doc

import (
	"strconv"
	"strings"
)

// Path addresses a node as the sequence of child indices from the root.
// The empty path is the document itself.
type Path []int

// Copy returns an independent copy of p.
func (p Path) Copy() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Child returns the path of the i-th child of p.
func (p Path) Child(i int) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = i
	return out
}

// Parent returns the parent path. The parent of the root is the root.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Path{}
	}
	return p[:len(p)-1].Copy()
}

// Last returns the index of p within its parent.
func (p Path) Last() int {
	if len(p) == 0 {
		return -1
	}
	return p[len(p)-1]
}

// Next returns the path of the following sibling.
func (p Path) Next() Path {
	out := p.Copy()
	out[len(out)-1]++
	return out
}

// Previous returns the path of the preceding sibling, or nil at index 0.
func (p Path) Previous() Path {
	if len(p) == 0 || p[len(p)-1] == 0 {
		return nil
	}
	out := p.Copy()
	out[len(out)-1]--
	return out
}

// Equal reports whether p and o address the same position.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Compare orders paths in document order. A path and its ancestor compare
// equal.
func (p Path) Compare(o Path) int {
	n := min(len(p), len(o))
	for i := 0; i < n; i++ {
		if p[i] < o[i] {
			return -1
		}
		if p[i] > o[i] {
			return 1
		}
	}
	return 0
}

// IsAncestor reports whether p is a strict ancestor of o.
func (p Path) IsAncestor(o Path) bool {
	return len(p) < len(o) && p.Compare(o) == 0
}

// IsSibling reports whether p and o are distinct children of the same parent.
func (p Path) IsSibling(o Path) bool {
	if len(p) == 0 || len(p) != len(o) {
		return false
	}
	return p[:len(p)-1].Equal(o[:len(o)-1]) && p[len(p)-1] != o[len(o)-1]
}

// EndsBefore reports whether p ends before o at p's depth: both share p's
// parent prefix and p's last index is lower than o's index at that depth.
func (p Path) EndsBefore(o Path) bool {
	i := len(p) - 1
	if i < 0 || len(o) <= i {
		return false
	}
	return Path(p[:i]).Equal(o[:i]) && p[i] < o[i]
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Affinity decides which side a point sticks to when text is inserted or a
// node is split exactly at its offset.
type Affinity int

const (
	Forward Affinity = iota
	Backward
)

// Point is a text offset inside the leaf at Path.
type Point struct {
	Path   Path `json:"path"`
	Offset int  `json:"offset"`
}

func (pt Point) Equal(o Point) bool { return pt.Offset == o.Offset && pt.Path.Equal(o.Path) }
