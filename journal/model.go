package journal

// Model is the forest of top-level lines in the order they were appended.
type Model struct {
	Lines []*Line
}

// Append adds l to the model. Lines with Depth 1 become children of the last
// top-level header; without one they stay top-level.
func (m *Model) Append(l *Line) {
	if l.Depth > 0 && len(m.Lines) > 0 {
		if last := m.Lines[len(m.Lines)-1]; last.Type == Header {
			last.Children = append(last.Children, l)
			return
		}
	}
	m.Lines = append(m.Lines, l)
}

// Walk calls fn for every line in file order. scope is the enclosing header,
// nil for top-level lines. Walk stops at the first error fn returns.
func (m *Model) Walk(fn func(scope, l *Line) error) error {
	for _, top := range m.Lines {
		if err := fn(nil, top); err != nil {
			return err
		}
		for _, child := range top.Children {
			if err := fn(top, child); err != nil {
				return err
			}
		}
	}
	return nil
}

// Len returns the number of lines in the model, children included.
func (m *Model) Len() int {
	n := len(m.Lines)
	for _, top := range m.Lines {
		n += len(top.Children)
	}
	return n
}

// Headers returns the number of header lines.
func (m *Model) Headers() int {
	var n int
	for _, top := range m.Lines {
		if top.Type == Header {
			n++
		}
	}
	return n
}
