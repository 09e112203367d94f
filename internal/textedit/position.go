package textedit

import (
	"unicode/utf16"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Lines indexes the line structure of a text. Lines end at "\n", "\r\n" or
// a lone "\r"; the text after the last terminator is the final line, so a
// text ending in a newline has a trailing empty line.
type Lines struct {
	text   string
	starts []int // byte offset of each line's first byte
	ends   []int // byte offset of each line's terminator (or len(text))
}

// NewLines indexes text.
func NewLines(text string) *Lines {
	l := &Lines{text: text, starts: []int{0}}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			l.ends = append(l.ends, i)
			l.starts = append(l.starts, i+1)
		case '\r':
			l.ends = append(l.ends, i)
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			l.starts = append(l.starts, i+1)
		}
	}
	l.ends = append(l.ends, len(text))
	return l
}

// Count returns the number of lines.
func (l *Lines) Count() int {
	return len(l.starts)
}

// Line returns the content of line n without its terminator.
func (l *Lines) Line(n int) string {
	return l.text[l.starts[n]:l.ends[n]]
}

// Start returns the byte offset at which line n begins.
func (l *Lines) Start(n int) int {
	return l.starts[n]
}

// Offset converts an LSP position to a byte offset into the text.
//
// The character is counted in UTF-16 code units. A character equal to the
// line length addresses the end of the line. A character falling inside a
// surrogate pair resolves to the start of that code point.
func (l *Lines) Offset(pos protocol.Position) (int, error) {
	line := int(pos.Line)
	if line >= len(l.starts) {
		return 0, &InvalidPositionError{Position: pos, Lines: len(l.starts), Length: -1}
	}

	start, end := l.starts[line], l.ends[line]
	want := int(pos.Character)
	units := 0
	for i, r := range l.text[start:end] {
		if units >= want {
			return start + i, nil
		}
		n := utf16.RuneLen(r)
		if n < 1 {
			n = 1
		}
		if units+n > want {
			return start + i, nil
		}
		units += n
	}
	if units == want {
		return end, nil
	}
	return 0, &InvalidPositionError{Position: pos, Lines: len(l.starts), Length: units}
}

// OffsetAt converts pos to a byte offset into text.
func OffsetAt(text string, pos protocol.Position) (int, error) {
	return NewLines(text).Offset(pos)
}

// UTF16Len returns the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if k := utf16.RuneLen(r); k > 0 {
			n += k
		} else {
			n++
		}
	}
	return n
}

// UTF16Column converts a byte column within line to UTF-16 code units.
func UTF16Column(line string, byteCol int) int {
	if byteCol > len(line) {
		byteCol = len(line)
	}
	return UTF16Len(line[:byteCol])
}
