package journal

import (
	"bufio"
	"io"
	"sort"
	"strings"
)

// ScopeSeparator joins a header key and a record key into a composite key.
const ScopeSeparator = "/"

// State is the materialized result of a replay: composite key → values,
// plus the column names declared by each header.
type State struct {
	entries map[string]Fields
	columns map[string]Fields
}

func NewState() *State {
	return &State{
		entries: make(map[string]Fields),
		columns: make(map[string]Fields),
	}
}

// CompositeKey namespaces key under scope. An empty scope leaves key as is.
func CompositeKey(scope, key string) string {
	if scope == "" {
		return key
	}
	return scope + ScopeSeparator + key
}

// SplitKey is the inverse of CompositeKey. Keys without a usable separator
// belong to the root scope.
func SplitKey(composite string) (scope, key string) {
	i := strings.LastIndex(composite, ScopeSeparator)
	if i <= 0 || i == len(composite)-len(ScopeSeparator) {
		return "", composite
	}
	return composite[:i], composite[i+len(ScopeSeparator):]
}

// Get returns a copy of the values stored under a composite key.
func (s *State) Get(key string) (Fields, bool) {
	v, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

func (s *State) Len() int {
	return len(s.entries)
}

// Keys returns all composite keys in lexical order.
func (s *State) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Columns returns the column names the header of scope declared.
func (s *State) Columns(scope string) Fields {
	return s.columns[scope].Clone()
}

// Scopes returns every non-root scope that has entries or columns, sorted.
func (s *State) Scopes() []string {
	seen := make(map[string]bool)
	for k := range s.entries {
		if scope, _ := SplitKey(k); scope != "" {
			seen[scope] = true
		}
	}
	for scope := range s.columns {
		seen[scope] = true
	}
	scopes := make([]string, 0, len(seen))
	for scope := range seen {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes
}

// Map returns a copy of the entries. Entries without values map to an empty slice.
func (s *State) Map() map[string][]string {
	m := make(map[string][]string, len(s.entries))
	for k, v := range s.entries {
		m[k] = append([]string{}, v...)
	}
	return m
}

// Encode writes the state back as log lines: root records first, then one
// header per scope followed by its records. Replaying the output yields an
// equal state.
func (s *State) Encode(w io.Writer, o Options) error {
	bw := bufio.NewWriter(w)
	lw := NewWriter(bw, o)

	grouped := make(map[string][]string)
	for _, k := range s.Keys() {
		scope, _ := SplitKey(k)
		grouped[scope] = append(grouped[scope], k)
	}

	for _, k := range grouped[""] {
		if err := lw.WriteLine(s.recordLine(k, k)); err != nil {
			return err
		}
	}
	for _, scope := range s.Scopes() {
		header := &Line{Type: Header, Fields: append(Fields{scope}, s.columns[scope]...)}
		if err := lw.WriteLine(header); err != nil {
			return err
		}
		for _, k := range grouped[scope] {
			_, local := SplitKey(k)
			if err := lw.WriteLine(s.recordLine(local, k)); err != nil {
				return err
			}
		}
		if err := lw.CloseScope(); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (s *State) recordLine(key, composite string) *Line {
	return &Line{Type: Record, Fields: append(Fields{key}, s.entries[composite]...)}
}
