// Package view renders a replayed state as pages of text lines, one page
// per scope.
package view

import (
	"bufio"
	"io"
	"slices"
	"strings"

	"github.com/pellux-network/clog/journal"
)

// Page is the rendered content of one scope.
type Page struct {
	Scope   string
	Columns []string
	Lines   []string
}

// Display is a set of pages in output order.
type Display struct {
	Pages []Page
}

func NewPage(scope string) Page {
	return Page{Scope: scope, Lines: []string{}}
}

// Add adds a line to the page
func (p *Page) Add(line string) {
	p.Lines = append(p.Lines, line)
}

// Copy returns a deep copy, so a kept display is not changed by later renders.
func (d Display) Copy() Display {
	pages := slices.Clone(d.Pages)
	for i, p := range pages {
		pages[i].Columns = slices.Clone(p.Columns)
		pages[i].Lines = slices.Clone(p.Lines)
	}
	return Display{Pages: pages}
}

// Len returns the number of entry lines across all pages.
func (d Display) Len() int {
	var n int
	for _, p := range d.Pages {
		n += len(p.Lines)
	}
	return n
}

// Render lays out st: the root page first (when it has entries), then one
// page per scope in lexical order. Each line is the composite key followed
// by the values, tab separated.
func Render(st *journal.State) Display {
	pages := map[string]*Page{}
	var d Display

	root := NewPage("")
	pages[""] = &root
	for _, scope := range st.Scopes() {
		p := NewPage(scope)
		p.Columns = st.Columns(scope)
		pages[scope] = &p
	}

	for _, key := range st.Keys() {
		scope, _ := journal.SplitKey(key)
		values, _ := st.Get(key)
		pages[scope].Add(entryLine(key, values))
	}

	if len(root.Lines) > 0 {
		d.Pages = append(d.Pages, root)
	}
	for _, scope := range st.Scopes() {
		d.Pages = append(d.Pages, *pages[scope])
	}
	return d
}

func entryLine(key string, values journal.Fields) string {
	if len(values) == 0 {
		return key
	}
	return key + "\t" + values.Join("\t")
}

// Write prints every page line. With titles set, each scoped page starts
// with "[scope]" and its tab-separated columns.
func Write(w io.Writer, d Display, titles bool) error {
	bw := bufio.NewWriter(w)
	for _, p := range d.Pages {
		if titles && p.Scope != "" {
			bw.WriteString(title(p))
			bw.WriteByte('\n')
		}
		for _, line := range p.Lines {
			bw.WriteString(line)
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

func title(p Page) string {
	t := "[" + p.Scope + "]"
	if len(p.Columns) > 0 {
		t += "\t" + strings.Join(p.Columns, "\t")
	}
	return t
}
