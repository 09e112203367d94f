package textedit

import (
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// compareEdits orders edits by start position only. Ends are ignored so that
// edits sharing a start keep their input order.
func compareEdits(a, b protocol.TextEdit) int {
	return ComparePositions(a.Range.Start, b.Range.Start)
}

// SortEdits sorts edits in place by start position using a merge sort.
// Edits with equal starts keep their relative order. The slice is returned
// for convenience.
func SortEdits(edits []protocol.TextEdit) []protocol.TextEdit {
	if len(edits) <= 1 {
		return edits
	}
	buf := make([]protocol.TextEdit, len(edits))
	mergeSort(edits, buf)
	return edits
}

func mergeSort(edits, buf []protocol.TextEdit) {
	if len(edits) <= 1 {
		return
	}
	mid := len(edits) / 2
	mergeSort(edits[:mid], buf[:mid])
	mergeSort(edits[mid:], buf[mid:])

	copy(buf, edits)
	left, right := buf[:mid], buf[mid:len(edits)]

	i, l, r := 0, 0, 0
	for l < len(left) && r < len(right) {
		// Take from the left on ties.
		if compareEdits(left[l], right[r]) <= 0 {
			edits[i] = left[l]
			l++
		} else {
			edits[i] = right[r]
			r++
		}
		i++
	}
	i += copy(edits[i:], left[l:])
	copy(edits[i:], right[r:])
}
