package journal

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// DuplicatePolicy decides what a record does to an existing key.
type DuplicatePolicy int

const (
	// LastWriteWins replaces the existing entry.
	LastWriteWins DuplicatePolicy = iota
	// RejectDuplicates fails the replay with ErrDuplicateKey.
	RejectDuplicates
)

type ReplayOptions struct {
	Duplicates DuplicatePolicy
}

// Replayer applies lines to a State one at a time, in file order.
type Replayer struct {
	opts  ReplayOptions
	state *State
}

func NewReplayer(o ReplayOptions) *Replayer {
	return &Replayer{opts: o, state: NewState()}
}

// State returns the state built so far. It is not copied.
func (r *Replayer) State() *State {
	return r.state
}

// Apply applies l. scope is the header l belongs to, or nil at the top
// level. Headers only record their columns.
func (r *Replayer) Apply(scope, l *Line) error {
	switch l.Type {
	case Header:
		if cols := l.Values(); len(cols) > 0 {
			r.state.columns[l.Key()] = cols.Clone()
		}
		return nil

	case Record:
		if err := checkKey(l); err != nil {
			return err
		}
		key := CompositeKey(scopeKey(scope), l.Key())
		if _, exists := r.state.entries[key]; exists && r.opts.Duplicates == RejectDuplicates {
			return &LineError{Line: l.Number, Key: key, Err: ErrDuplicateKey}
		}
		r.state.entries[key] = l.Values().Clone()
		return nil

	case Update:
		if err := checkKey(l); err != nil {
			return err
		}
		key := CompositeKey(scopeKey(scope), l.Key())
		current, ok := r.state.entries[key]
		if !ok {
			return &LineError{Line: l.Number, Key: key, Err: ErrUnresolvedUpdate}
		}
		merged := current.Clone()
		for i, v := range l.Values() {
			switch {
			case v == KeepField:
				if i >= len(merged) {
					return &LineError{Line: l.Number, Key: key, Err: ErrMalformedLine,
						Msg: fmt.Sprintf("cannot keep value %d, entry has %d", i+1, len(merged))}
				}
			case i < len(merged):
				merged[i] = v
			default:
				merged = append(merged, v)
			}
		}
		r.state.entries[key] = merged
		return nil

	default:
		return &LineError{Line: l.Number, Char: rune(l.Type), Err: ErrUnknownRecordType}
	}
}

// checkKey rejects record and update keys containing ScopeSeparator, so a
// top-level key can never name an entry inside a scope.
func checkKey(l *Line) error {
	if strings.Contains(l.Key(), ScopeSeparator) {
		return lineErrf(l.Number, ErrMalformedLine, "key %q contains %q", l.Key(), ScopeSeparator)
	}
	return nil
}

func scopeKey(scope *Line) string {
	if scope == nil {
		return ""
	}
	return scope.Key()
}

// Replay walks m in file order and returns the materialized state. The first
// failing line aborts the replay.
func Replay(m *Model, o ReplayOptions) (*State, error) {
	r := NewReplayer(o)
	if err := m.Walk(r.Apply); err != nil {
		return nil, err
	}
	log.Debug().Int("lines", m.Len()).Int("keys", r.state.Len()).Msg("Log replayed")
	return r.state, nil
}
