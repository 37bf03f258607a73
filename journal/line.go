package journal

// RecordType is the type character at the start of every line
type RecordType byte

const (
	// Header opens a scope that namespaces the records and updates after it
	Header RecordType = '!'
	// Record declares or replaces a keyed entry
	Record RecordType = '*'
	// Update overwrites some values of an existing entry
	Update RecordType = '$'
)

// ParseRecordType decodes a type character.
func ParseRecordType(c byte) (RecordType, bool) {
	switch t := RecordType(c); t {
	case Header, Record, Update:
		return t, true
	}
	return 0, false
}

func (t RecordType) String() string {
	switch t {
	case Header:
		return "header"
	case Record:
		return "record"
	case Update:
		return "update"
	default:
		return "RecordType(" + string(rune(t)) + ")"
	}
}

// Line is one decoded log line. Only headers have children.
type Line struct {
	Type     RecordType
	Fields   Fields
	Children []*Line

	// Number is the 1-based line number in the file, 0 for lines built in memory.
	Number int
	// Depth is 1 for records and updates inside a header scope.
	Depth int
}

// NewLine builds an in-memory line of type t.
func NewLine(t RecordType, fields ...string) *Line {
	return &Line{Type: t, Fields: Fields(fields)}
}

func (l *Line) Key() string {
	return l.Fields.Key()
}

func (l *Line) Values() Fields {
	return l.Fields.Values()
}
