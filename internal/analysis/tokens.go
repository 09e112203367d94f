package analysis

import (
	"context"
	"sort"

	"pylon/internal/semtok"
	"pylon/internal/textedit"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Tokens returns a token for every identifier of text in document order.
// Identifiers that refer to modules, classes, functions, parameters and
// attributes are classified; all others are Unclassified.
func (a *Analyzer) Tokens(ctx context.Context, uri string, text string) ([]semtok.Token, error) {
	f, err := a.index(ctx, uri, text)
	if err != nil {
		return nil, err
	}

	lines := textedit.NewLines(text)
	tokens := make([]semtok.Token, 0, len(f.idents))
	for _, id := range f.idents {
		pos := position(lines, text, int(id.start))
		tokens = append(tokens, semtok.Token{
			Line:      pos.Line,
			StartChar: pos.Character,
			Length:    uint32(textedit.UTF16Len(id.name)),
			Type:      id.kind,
		})
	}
	log.Debugf("%s: %d identifiers", uri, len(tokens))
	return tokens, nil
}

// position converts a byte offset to an LSP position. Lines are split the
// way the edit engine splits them, so lone carriage returns end a line.
func position(lines *textedit.Lines, text string, off int) protocol.Position {
	n := sort.Search(lines.Count(), func(i int) bool {
		return lines.Start(i) > off
	}) - 1
	if n < 0 {
		n = 0
	}
	start := lines.Start(n)
	return protocol.Position{
		Line:      uint32(n),
		Character: uint32(textedit.UTF16Len(text[start:off])),
	}
}

// offset converts an LSP position to a byte offset.
func offset(text string, pos protocol.Position) (uint32, error) {
	off, err := textedit.OffsetAt(text, pos)
	if err != nil {
		return 0, err
	}
	return uint32(off), nil
}
