package journal

import (
	"strings"
)

// DefaultMaxLineLength is the number of bytes of field text allowed after
// the type character and separator.
const DefaultMaxLineLength = 50

// KeepField in an update leaves the existing value at its position unchanged.
const KeepField = "-"

// Options control how lines are split and bounded.
type Options struct {
	// MaxLineLength bounds the field text of a line in bytes. Zero means
	// DefaultMaxLineLength, negative means unlimited.
	MaxLineLength int

	// Delimiter separates fields. Empty means runs of whitespace.
	Delimiter string
}

func (o Options) maxLineLength() int {
	if o.MaxLineLength == 0 {
		return DefaultMaxLineLength
	}
	return o.MaxLineLength
}

func (o Options) joiner() string {
	if o.Delimiter == "" {
		return " "
	}
	return o.Delimiter
}

// Fields is the ordered payload of a line. Fields[0] is the key.
type Fields []string

// ParseFields splits raw field text into Fields.
func ParseFields(raw string, o Options) (Fields, error) {
	if limit := o.maxLineLength(); limit >= 0 && len(raw) > limit {
		return nil, lineErrf(0, ErrMalformedLine, "field text exceeds %d bytes", limit)
	}
	var fields Fields
	if o.Delimiter == "" {
		fields = strings.Fields(raw)
	} else {
		fields = strings.Split(raw, o.Delimiter)
	}
	if len(fields) == 0 || fields[0] == "" {
		return nil, lineErrf(0, ErrMalformedLine, "missing key")
	}
	return fields, nil
}

// Key returns the first field, or "" for empty Fields.
func (f Fields) Key() string {
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

// Values returns the fields after the key.
func (f Fields) Values() Fields {
	if len(f) < 2 {
		return nil
	}
	return f[1:]
}

func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	return append(Fields(make([]string, 0, len(f))), f...)
}

func (f Fields) Join(sep string) string {
	return strings.Join(f, sep)
}
