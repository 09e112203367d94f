package textedit

import (
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// span is a resolved edit: byte offsets into the base text.
type span struct {
	edit       protocol.TextEdit
	start, end int
}

// plan normalizes, sorts and resolves a batch against lines.
//
// The batch is rejected on the first edit that starts before the end of the
// previously accepted one. Accepted spans are disjoint and ascending, so
// lastEnd is the furthest end seen so far and the check covers every pair,
// not only neighbours.
func plan(lines *Lines, edits []protocol.TextEdit) ([]span, error) {
	sorted := SortEdits(NormalizeEdits(edits))
	spans := make([]span, 0, len(sorted))

	lastEnd := 0
	for i, e := range sorted {
		start, err := lines.Offset(e.Range.Start)
		if err != nil {
			return nil, err
		}
		end, err := lines.Offset(e.Range.End)
		if err != nil {
			return nil, err
		}
		if i > 0 && start < lastEnd {
			return nil, &OverlapError{Previous: spans[i-1].edit, Current: e}
		}
		spans = append(spans, span{edit: e, start: start, end: end})
		lastEnd = end
	}
	return spans, nil
}

// Apply applies a batch of edits to text and returns the new text.
//
// Edits may come in any order and with backwards ranges. All edits address
// the same base text. On error text is not modified and the returned string
// is empty; callers must keep their previous state.
func Apply(text string, edits []protocol.TextEdit) (string, error) {
	if len(edits) == 0 {
		return text, nil
	}

	spans, err := plan(NewLines(text), edits)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(text))
	lastEnd := 0
	for _, s := range spans {
		if s.start > lastEnd {
			b.WriteString(text[lastEnd:s.start])
		}
		if s.edit.NewText != "" {
			b.WriteString(s.edit.NewText)
		}
		lastEnd = s.end
	}
	b.WriteString(text[lastEnd:])
	return b.String(), nil
}

// Validate reports whether edits form a valid batch for text.
func Validate(text string, edits []protocol.TextEdit) error {
	_, err := plan(NewLines(text), edits)
	return err
}
