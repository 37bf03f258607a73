package journal

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// Reader decodes a log one line at a time.
//
// A header line opens a scope. Records and updates after it belong to that
// scope until a blank line or the next header. Headers never nest.
type Reader struct {
	scanner *bufio.Scanner
	opts    Options
	number  int
	scope   *Line
	err     error

	bufSize int
	// longBlank is set while a blank line that fills the buffer is skipped.
	longBlank bool
}

// NewReader returns a Reader over r. Lines longer than the configured bound
// fail with ErrMalformedLine instead of growing the read buffer. Blank lines
// end a scope whatever their length.
func NewReader(r io.Reader, o Options) *Reader {
	reader := &Reader{scanner: bufio.NewScanner(r), opts: o, bufSize: 1 << 30}
	if limit := o.maxLineLength(); limit >= 0 {
		// type char, separator, text, "\r\n"
		reader.bufSize = limit + 4
		reader.scanner.Buffer(make([]byte, 0, min(reader.bufSize, 4096)), reader.bufSize)
	} else {
		reader.scanner.Buffer(nil, reader.bufSize)
	}
	reader.scanner.Split(reader.scanLines)
	return reader
}

// scanLines is bufio.ScanLines, except that a full buffer holding only
// whitespace is dropped instead of failing with bufio.ErrTooLong.
func (r *Reader) scanLines(data []byte, atEOF bool) (int, []byte, error) {
	advance, token, err := bufio.ScanLines(data, atEOF)
	if advance == 0 && token == nil && err == nil && len(data) >= r.bufSize && isBlank(data) {
		r.longBlank = true
		return len(data), nil, nil
	}
	return advance, token, err
}

func isBlank(data []byte) bool {
	return len(bytes.TrimSpace(data)) == 0
}

// Next returns the next line, or io.EOF once the log is exhausted. Any other
// error is sticky.
func (r *Reader) Next() (*Line, error) {
	if r.err != nil {
		return nil, r.err
	}
	for r.scanner.Scan() {
		r.number++
		text := strings.TrimSuffix(r.scanner.Text(), "\r")
		if r.longBlank {
			r.longBlank = false
			if strings.TrimSpace(text) != "" {
				r.err = lineErrf(r.number, ErrMalformedLine, "field text exceeds %d bytes", r.opts.maxLineLength())
				return nil, r.err
			}
		}
		if strings.TrimSpace(text) == "" {
			r.scope = nil
			continue
		}
		line, err := r.decode(text)
		if err != nil {
			r.err = err
			return nil, err
		}
		return line, nil
	}
	if err := r.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			r.err = lineErrf(r.number+1, ErrMalformedLine, "field text exceeds %d bytes", r.opts.maxLineLength())
		} else {
			r.err = fmt.Errorf("read log: %w", err)
		}
		return nil, r.err
	}
	if r.longBlank {
		// a long blank last line without a newline
		r.longBlank = false
		r.number++
		r.scope = nil
	}
	r.err = io.EOF
	return nil, io.EOF
}

// All yields lines until the end of the log or the first error.
func (r *Reader) All() iter.Seq2[*Line, error] {
	return func(yield func(*Line, error) bool) {
		for {
			line, err := r.Next()
			if err == io.EOF {
				return
			}
			if !yield(line, err) || err != nil {
				return
			}
		}
	}
}

// Scope returns the header whose scope is open after the last line read.
func (r *Reader) Scope() *Line {
	return r.scope
}

// Lines returns the number of physical lines consumed so far.
func (r *Reader) Lines() int {
	return r.number
}

func (r *Reader) decode(text string) (*Line, error) {
	typ, ok := ParseRecordType(text[0])
	if !ok {
		c, _ := utf8.DecodeRuneInString(text)
		return nil, &LineError{Line: r.number, Char: c, Err: ErrUnknownRecordType}
	}
	if len(text) < 2 || text[1] != ' ' {
		return nil, lineErrf(r.number, ErrMalformedLine, "expected a space after %q", rune(typ))
	}
	fields, err := ParseFields(text[2:], r.opts)
	if err != nil {
		var le *LineError
		if errors.As(err, &le) {
			le.Line = r.number
		}
		return nil, err
	}

	line := &Line{Type: typ, Fields: fields, Number: r.number}
	if typ == Header {
		r.scope = line
	} else if r.scope != nil {
		line.Depth = 1
	}
	return line, nil
}

// ReadLog reads a whole log into a Model.
func ReadLog(r io.Reader, o Options) (*Model, error) {
	reader := NewReader(r, o)
	m := &Model{}
	for line, err := range reader.All() {
		if err != nil {
			return nil, err
		}
		m.Append(line)
	}
	log.Debug().Int("lines", reader.Lines()).Int("top", len(m.Lines)).Msg("Log read")
	return m, nil
}

// ReadLogFile reads the log at path into a Model.
func ReadLogFile(path string, o Options) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log %q: %w", path, err)
	}
	defer f.Close()

	log.Debug().Str("path", path).Msg("Reading log")
	return ReadLog(f, o)
}
