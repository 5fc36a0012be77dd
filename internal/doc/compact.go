package doc

// CompactInline returns inline content in canonical form: adjacent text
// leaves with equal marks are merged, empty leaves are dropped unless they
// separate inline elements, and every inline element has a text leaf on both
// sides. The result always holds at least one node.
func CompactInline(nodes []*Node) []*Node {
	var out []*Node
	last := func() *Node {
		if len(out) == 0 {
			return nil
		}
		return out[len(out)-1]
	}
	for _, n := range nodes {
		if n.IsText() {
			prev := last()
			switch {
			case prev == nil || !prev.IsText():
				out = append(out, n)
			case prev.Marks == n.Marks || n.Text == "":
				prev.Text += n.Text
			case prev.Text == "":
				out[len(out)-1] = n
			default:
				out = append(out, n)
			}
			continue
		}
		if n.Type.Inline() {
			n.Children = CompactInline(n.Children)
		}
		if prev := last(); prev == nil || !prev.IsText() {
			out = append(out, NewText(""))
		}
		out = append(out, n)
	}
	if prev := last(); prev == nil || !prev.IsText() {
		out = append(out, NewText(""))
	}
	return out
}
