package format

import (
	"strings"

	"pylon/internal/textedit"

	"github.com/sergi/go-diff/diffmatchpatch"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// LineEdits returns line based edits turning before into after: inserted
// lines become insertions at the start of a line and removed lines become
// deletions up to the start of the next line. Equal texts yield no edits.
func LineEdits(before, after string) []protocol.TextEdit {
	if before == after {
		return nil
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var edits []protocol.TextEdit
	var at protocol.Position
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			at = advance(at, d.Text)
		case diffmatchpatch.DiffDelete:
			end := advance(at, d.Text)
			edits = append(edits, protocol.TextEdit{
				Range: protocol.Range{Start: at, End: end},
			})
			at = end
		case diffmatchpatch.DiffInsert:
			edits = append(edits, protocol.TextEdit{
				Range:   protocol.Range{Start: at, End: at},
				NewText: d.Text,
			})
		}
	}
	return edits
}

// advance returns the position just after text when it starts at p.
func advance(p protocol.Position, text string) protocol.Position {
	lines := textedit.NewLines(text)
	last := lines.Count() - 1
	if last == 0 {
		p.Character += uint32(textedit.UTF16Len(text))
		return p
	}
	return protocol.Position{
		Line:      p.Line + uint32(last),
		Character: uint32(textedit.UTF16Len(lines.Line(last))),
	}
}

// WithinLines keeps the edits lying inside lines first through last,
// where last may be touched only by insertions at its start.
func WithinLines(edits []protocol.TextEdit, first, last uint32) []protocol.TextEdit {
	lo := protocol.Position{Line: first}
	hi := protocol.Position{Line: last}

	var kept []protocol.TextEdit
	for _, e := range edits {
		r := textedit.NormalizeRange(e.Range)
		if textedit.ComparePositions(r.Start, lo) >= 0 && textedit.ComparePositions(r.End, hi) <= 0 {
			kept = append(kept, e)
		}
	}
	return kept
}

// eol returns the line terminator used by text, "\n" if it has none.
func eol(text string) string {
	i := strings.IndexAny(text, "\r\n")
	switch {
	case i < 0:
		return "\n"
	case text[i] == '\n':
		return "\n"
	case i+1 < len(text) && text[i+1] == '\n':
		return "\r\n"
	}
	return "\r"
}
