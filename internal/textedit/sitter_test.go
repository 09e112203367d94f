package textedit_test

import (
	"errors"
	"testing"

	"pylon/internal/textedit"

	sitter "github.com/smacker/go-tree-sitter"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"kr.dev/diff"
)

func TestEditInputs(t *testing.T) {
	text := "def f(a):\n    return 'é'\n"
	edits := []protocol.TextEdit{
		edit(0, 6, 0, 7, "alpha, beta"),
		edit(1, 12, 1, 13, "ü\nx"),
	}

	got, err := textedit.EditInputs(text, edits)
	if err != nil {
		t.Fatal(err)
	}

	want := []sitter.EditInput{
		{
			// 'é' is two bytes; line 1 starts at byte 10.
			StartIndex:  22,
			OldEndIndex: 24,
			NewEndIndex: 26,
			StartPoint:  sitter.Point{Row: 1, Column: 12},
			OldEndPoint: sitter.Point{Row: 1, Column: 14},
			NewEndPoint: sitter.Point{Row: 2, Column: 1},
		},
		{
			StartIndex:  6,
			OldEndIndex: 7,
			NewEndIndex: 17,
			StartPoint:  sitter.Point{Row: 0, Column: 6},
			OldEndPoint: sitter.Point{Row: 0, Column: 7},
			NewEndPoint: sitter.Point{Row: 0, Column: 17},
		},
	}
	diff.Test(t, t.Errorf, got, want)
}

func TestEditInputsRejectsOverlap(t *testing.T) {
	_, err := textedit.EditInputs("0123456789", []protocol.TextEdit{
		edit(0, 0, 0, 5, ""),
		edit(0, 3, 0, 8, ""),
	})
	if !errors.Is(err, textedit.ErrOverlap) {
		t.Fatalf("err = %v, want overlap", err)
	}
}
