package textedit

import (
	sitter "github.com/smacker/go-tree-sitter"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// EditInputs describes a batch as tree-sitter edits for an incremental
// syntax tree of text.
//
// The inputs are returned in descending document order. Each one only moves
// text after the edits that follow it, so every input is valid against the
// tree state left by the previous one and can be fed to Tree.Edit in order.
func EditInputs(text string, edits []protocol.TextEdit) ([]sitter.EditInput, error) {
	lines := NewLines(text)
	spans, err := plan(lines, edits)
	if err != nil {
		return nil, err
	}

	inputs := make([]sitter.EditInput, 0, len(spans))
	for i := len(spans) - 1; i >= 0; i-- {
		s := spans[i]
		startPoint := point(lines, s.edit.Range.Start, s.start)
		inputs = append(inputs, sitter.EditInput{
			StartIndex:  uint32(s.start),
			OldEndIndex: uint32(s.end),
			NewEndIndex: uint32(s.start + len(s.edit.NewText)),
			StartPoint:  startPoint,
			OldEndPoint: point(lines, s.edit.Range.End, s.end),
			NewEndPoint: endPoint(startPoint, s.edit.NewText),
		})
	}
	return inputs, nil
}

// point converts a resolved position to a tree-sitter point. Tree-sitter
// columns are byte offsets within the line.
func point(lines *Lines, pos protocol.Position, offset int) sitter.Point {
	return sitter.Point{
		Row:    pos.Line,
		Column: uint32(offset - lines.Start(int(pos.Line))),
	}
}

// endPoint returns the point just after text inserted at start.
func endPoint(start sitter.Point, text string) sitter.Point {
	inserted := NewLines(text)
	last := inserted.Count() - 1
	if last == 0 {
		return sitter.Point{Row: start.Row, Column: start.Column + uint32(len(text))}
	}
	return sitter.Point{
		Row:    start.Row + uint32(last),
		Column: uint32(len(text) - inserted.Start(last)),
	}
}
