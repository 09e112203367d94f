package analysis

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"

	"pylon/internal/textedit"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Definition returns where the identifier at pos is defined. Imported
// names are followed into modules on the search path; if that fails the
// import binding the name is returned instead.
func (a *Analyzer) Definition(ctx context.Context, uri string, text string, pos protocol.Position) (protocol.Location, bool, error) {
	off, err := offset(text, pos)
	if err != nil {
		return protocol.Location{}, false, err
	}
	f, err := a.index(ctx, uri, text)
	if err != nil {
		return protocol.Location{}, false, err
	}

	id, ok := f.identAt(off)
	if !ok {
		return protocol.Location{}, false, nil
	}
	sym, full := id.sym, id.full
	if sym == nil && full == "" {
		sym = f.symbolAt(rowCol(f.text, id.start))
	}
	if sym != nil && !sym.Imported {
		return f.location(uri, sym), true, nil
	}
	if sym != nil {
		full = sym.Full
	}

	// Relative imports of the document itself are not on the search path.
	if full != "" && !strings.HasPrefix(full, ".") {
		target, err := a.resolve(ctx, full, 0)
		if err == nil {
			if loc, ok := target.location(); ok {
				return loc, true, nil
			}
		} else {
			log.Debugf("definition of %s: %v", full, err)
		}
	}
	if sym != nil {
		return f.location(uri, sym), true, nil
	}
	return protocol.Location{}, false, nil
}

// location returns the range of the defining identifier of sym in f.
func (f *file) location(uri string, sym *symbol) protocol.Location {
	lines := textedit.NewLines(f.text)
	return protocol.Location{
		URI: uri,
		Range: protocol.Range{
			Start: position(lines, f.text, int(sym.start)),
			End:   position(lines, f.text, int(sym.start)+len(sym.Name)),
		},
	}
}

// location returns where sym is defined: its identifier, or the start of
// the module it names.
func (sym *symbol) location() (protocol.Location, bool) {
	switch {
	case sym.file != nil:
		return sym.file.location(uriOf(sym.file.path), sym), true
	case sym.path != "":
		return protocol.Location{URI: uriOf(sym.path)}, true
	}
	return protocol.Location{}, false
}

// uriOf returns the file URI of a path.
func uriOf(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}
