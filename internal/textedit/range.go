// Package textedit applies batches of LSP text edits to document text.
//
// A batch is normalized (backwards ranges swapped), stably sorted by start
// position and then walked once over the base text. Overlapping edits reject
// the whole batch; nothing is applied partially.
package textedit

import (
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// ComparePositions orders positions by line, then character.
func ComparePositions(a, b protocol.Position) int {
	switch {
	case a.Line < b.Line:
		return -1
	case a.Line > b.Line:
		return 1
	case a.Character < b.Character:
		return -1
	case a.Character > b.Character:
		return 1
	}
	return 0
}

// NormalizeRange returns r with start <= end, swapping the ends if needed.
func NormalizeRange(r protocol.Range) protocol.Range {
	if ComparePositions(r.Start, r.End) > 0 {
		return protocol.Range{Start: r.End, End: r.Start}
	}
	return r
}

// NormalizeEdit returns e with a normalized range. NewText stays with it.
func NormalizeEdit(e protocol.TextEdit) protocol.TextEdit {
	return protocol.TextEdit{
		Range:   NormalizeRange(e.Range),
		NewText: e.NewText,
	}
}

// NormalizeEdits returns a normalized copy of edits.
func NormalizeEdits(edits []protocol.TextEdit) []protocol.TextEdit {
	out := make([]protocol.TextEdit, len(edits))
	for i, e := range edits {
		out[i] = NormalizeEdit(e)
	}
	return out
}
