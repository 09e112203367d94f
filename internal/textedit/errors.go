package textedit

import (
	"errors"
	"fmt"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

var (
	// ErrOverlap is wrapped by every *OverlapError.
	ErrOverlap = errors.New("textedit: overlapping edits")

	// ErrInvalidPosition is wrapped by every *InvalidPositionError.
	ErrInvalidPosition = errors.New("textedit: invalid position")
)

// OverlapError reports two edits of one batch that claim overlapping source
// ranges. The whole batch is rejected.
type OverlapError struct {
	Previous protocol.TextEdit
	Current  protocol.TextEdit
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf(
		"overlapping edits: %s and %s",
		FormatRange(e.Previous.Range),
		FormatRange(e.Current.Range),
	)
}

func (e *OverlapError) Unwrap() error {
	return ErrOverlap
}

// InvalidPositionError reports a position outside of the document.
type InvalidPositionError struct {
	Position protocol.Position
	Lines    int // number of lines in the document
	Length   int // UTF-16 length of the addressed line, -1 if the line does not exist
}

func (e *InvalidPositionError) Error() string {
	if e.Length < 0 {
		return fmt.Sprintf(
			"invalid position %s: line %d does not exist (document has %d lines)",
			FormatPosition(e.Position), e.Position.Line, e.Lines,
		)
	}
	return fmt.Sprintf(
		"invalid position %s: character %d past end of line (length %d)",
		FormatPosition(e.Position), e.Position.Character, e.Length,
	)
}

func (e *InvalidPositionError) Unwrap() error {
	return ErrInvalidPosition
}

// FormatPosition renders a position as line:character.
func FormatPosition(p protocol.Position) string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// FormatRange renders a range as line:character-line:character.
func FormatRange(r protocol.Range) string {
	return FormatPosition(r.Start) + "-" + FormatPosition(r.End)
}
