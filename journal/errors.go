package journal

import (
	"errors"
	"fmt"
	"strings"
)

// Errors reported while reading or replaying a log. Match them with errors.Is.
var (
	// ErrMalformedLine is returned when a line does not have the
	// "<type> <fields>" shape or exceeds the configured length.
	ErrMalformedLine = errors.New("malformed line")

	// ErrUnknownRecordType is returned for a type character outside '!', '*' and '$'.
	ErrUnknownRecordType = errors.New("unknown record type")

	// ErrUnresolvedUpdate is returned when an update names a key no record declared.
	ErrUnresolvedUpdate = errors.New("unresolved update")

	// ErrDuplicateKey is returned when duplicates are rejected and a record
	// repeats an existing key.
	ErrDuplicateKey = errors.New("duplicate key")
)

// LineError ties a read or replay failure to a position in the log.
type LineError struct {
	Line int
	Char rune
	Key  string
	Msg  string
	Err  error
}

func lineErrf(line int, err error, format string, args ...any) *LineError {
	return &LineError{Line: line, Err: err, Msg: fmt.Sprintf(format, args...)}
}

func (e *LineError) Unwrap() error {
	return e.Err
}

func (e *LineError) Error() string {
	var buf strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&buf, "line %d: ", e.Line)
	}
	if e.Err != nil {
		buf.WriteString(e.Err.Error())
	}
	if e.Char != 0 {
		fmt.Fprintf(&buf, " %q", e.Char)
	}
	if e.Key != "" {
		fmt.Fprintf(&buf, ": key %q", e.Key)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	return buf.String()
}
