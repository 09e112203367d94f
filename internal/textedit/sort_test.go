package textedit_test

import (
	"math/rand"
	"testing"

	"pylon/internal/textedit"

	protocol "github.com/tliron/glsp/protocol_3_16"
	"kr.dev/diff"
)

func TestNormalizeRange(t *testing.T) {
	backwards := protocol.Range{Start: pos(5, 2), End: pos(3, 0)}
	want := protocol.Range{Start: pos(3, 0), End: pos(5, 2)}
	diff.Test(t, t.Errorf, textedit.NormalizeRange(backwards), want)

	// Well formed and empty ranges are returned as is.
	for _, r := range []protocol.Range{want, {Start: pos(1, 1), End: pos(1, 1)}} {
		diff.Test(t, t.Errorf, textedit.NormalizeRange(r), r)
	}

	// Same line, characters reversed.
	got := textedit.NormalizeRange(protocol.Range{Start: pos(2, 9), End: pos(2, 4)})
	diff.Test(t, t.Errorf, got, protocol.Range{Start: pos(2, 4), End: pos(2, 9)})
}

func TestNormalizeEditKeepsText(t *testing.T) {
	got := textedit.NormalizeEdit(edit(5, 2, 3, 0, "payload"))
	diff.Test(t, t.Errorf, got, edit(3, 0, 5, 2, "payload"))
}

func TestSortEdits(t *testing.T) {
	tests := []struct {
		name  string
		edits []protocol.TextEdit
		want  []protocol.TextEdit
	}{
		{name: "empty"},
		{
			name:  "single",
			edits: []protocol.TextEdit{edit(3, 0, 3, 1, "a")},
			want:  []protocol.TextEdit{edit(3, 0, 3, 1, "a")},
		},
		{
			name: "by line then character",
			edits: []protocol.TextEdit{
				edit(2, 0, 2, 0, "c"),
				edit(0, 5, 0, 5, "b"),
				edit(0, 1, 0, 1, "a"),
			},
			want: []protocol.TextEdit{
				edit(0, 1, 0, 1, "a"),
				edit(0, 5, 0, 5, "b"),
				edit(2, 0, 2, 0, "c"),
			},
		},
		{
			name: "stable on equal starts",
			edits: []protocol.TextEdit{
				edit(1, 0, 1, 4, "first"),
				edit(0, 0, 0, 0, "zero"),
				edit(1, 0, 1, 0, "second"),
				edit(1, 0, 1, 2, "third"),
			},
			want: []protocol.TextEdit{
				edit(0, 0, 0, 0, "zero"),
				edit(1, 0, 1, 4, "first"),
				edit(1, 0, 1, 0, "second"),
				edit(1, 0, 1, 2, "third"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := textedit.SortEdits(tt.edits)
			diff.Test(t, t.Errorf, got, tt.want)
		})
	}
}

func TestSortEditsStableRandom(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	edits := make([]protocol.TextEdit, 500)
	for i := range edits {
		line := uint32(r.Intn(5))
		char := uint32(r.Intn(3))
		// The text records the input index.
		edits[i] = edit(line, char, line, char, string(rune('0'+i%10))+string(rune(i)))
	}
	index := make(map[string]int, len(edits))
	for i, e := range edits {
		index[e.NewText] = i
	}

	sorted := textedit.SortEdits(append([]protocol.TextEdit(nil), edits...))
	for i := 1; i < len(sorted); i++ {
		a, b := sorted[i-1], sorted[i]
		c := textedit.ComparePositions(a.Range.Start, b.Range.Start)
		if c > 0 {
			t.Fatalf("edits %d and %d out of order", i-1, i)
		}
		if c == 0 && index[a.NewText] > index[b.NewText] {
			t.Fatalf("equal starts at %d lost input order", i)
		}
	}
}
