package journal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

// EncodeLine renders l in the on-disk format without the trailing newline.
// It rejects lines the reader would not decode back to the same fields.
func EncodeLine(l *Line, o Options) (string, error) {
	if _, ok := ParseRecordType(byte(l.Type)); !ok {
		return "", &LineError{Line: l.Number, Char: rune(l.Type), Err: ErrUnknownRecordType}
	}
	if l.Key() == "" {
		return "", lineErrf(l.Number, ErrMalformedLine, "missing key")
	}
	for _, f := range l.Fields {
		if strings.ContainsAny(f, "\r\n") {
			return "", lineErrf(l.Number, ErrMalformedLine, "field %q contains a line break", f)
		}
		if o.Delimiter == "" {
			if f == "" || strings.IndexFunc(f, unicode.IsSpace) >= 0 {
				return "", lineErrf(l.Number, ErrMalformedLine, "field %q is empty or contains whitespace", f)
			}
		} else if strings.Contains(f, o.Delimiter) {
			return "", lineErrf(l.Number, ErrMalformedLine, "field %q contains the delimiter", f)
		}
	}

	text := l.Fields.Join(o.joiner())
	if limit := o.maxLineLength(); limit >= 0 && len(text) > limit {
		return "", lineErrf(l.Number, ErrMalformedLine, "field text exceeds %d bytes", limit)
	}
	return string(rune(l.Type)) + " " + text, nil
}

// Writer appends encoded lines to an io.Writer.
type Writer struct {
	w    io.Writer
	opts Options
}

func NewWriter(w io.Writer, o Options) *Writer {
	return &Writer{w: w, opts: o}
}

func (w *Writer) WriteLine(l *Line) error {
	text, err := EncodeLine(l, w.opts)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w.w, text+"\n")
	return err
}

// CloseScope ends the current header scope with a blank line.
func (w *Writer) CloseScope() error {
	_, err := io.WriteString(w.w, "\n")
	return err
}

// AppendFile appends lines to the log at path, creating it if needed. With
// closeScope set, a blank line is written first so the lines land at the
// top level.
func AppendFile(path string, o Options, closeScope bool, lines ...*Line) error {
	return AppendFunc(path, o, func(w *Writer) error {
		if closeScope {
			if err := w.CloseScope(); err != nil {
				return err
			}
		}
		for _, l := range lines {
			if err := w.WriteLine(l); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendFunc appends whatever fn writes to the log at path, creating it if
// needed. Nothing is written when fn fails.
func AppendFunc(path string, o Options, fn func(w *Writer) error) error {
	var buf strings.Builder
	if err := fn(NewWriter(&buf, o)); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open log %q: %w", path, err)
	}
	text := buf.String()
	if terminated, err := endsWithNewline(f); err != nil {
		f.Close()
		return fmt.Errorf("append to log %q: %w", path, err)
	} else if !terminated {
		text = "\n" + text
	}
	if _, err := io.WriteString(f, text); err != nil {
		f.Close()
		return fmt.Errorf("append to log %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("append to log %q: %w", path, err)
	}
	return nil
}

// endsWithNewline reports whether f is empty or its last byte is a newline.
func endsWithNewline(f *os.File) (bool, error) {
	st, err := f.Stat()
	if err != nil {
		return false, err
	}
	if st.Size() == 0 {
		return true, nil
	}
	var last [1]byte
	if _, err := f.ReadAt(last[:], st.Size()-1); err != nil {
		return false, err
	}
	return last[0] == '\n', nil
}
