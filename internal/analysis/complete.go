package analysis

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"pylon/internal/resolver"
	"pylon/internal/semtok"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Candidate is a completion candidate. Key identifies it for detail
// resolution.
type Candidate struct {
	Name string
	Kind semtok.Type
	Key  resolver.Key
}

func (f *file) candidate(sym *symbol) Candidate {
	c := Candidate{Name: sym.Name, Kind: sym.Kind}
	if sym.Imported {
		c.Key = resolver.Key{FullName: sym.Full}
		return c
	}
	c.Key = resolver.Key{
		FullName:   sym.Full,
		ModulePath: f.path,
		Line:       int(sym.Row),
		Column:     int(sym.Col),
	}
	return c
}

// Completions returns the candidates for the word ending at pos, sorted
// by name. After a dot the members of the object before it are offered
// when it names a class or an importable module.
func (a *Analyzer) Completions(ctx context.Context, uri string, text string, pos protocol.Position) ([]Candidate, error) {
	off, err := offset(text, pos)
	if err != nil {
		return nil, err
	}
	f, err := a.index(ctx, uri, text)
	if err != nil {
		return nil, err
	}

	prefix, object := word(text[:off])
	var cands []Candidate
	if object != "" {
		cands, err = a.members(ctx, f, f.scopeAt(off), object)
		if err != nil {
			return nil, err
		}
	} else {
		cands = f.visible(f.scopeAt(off))
	}

	kept := cands[:0]
	for _, c := range cands {
		if strings.HasPrefix(c.Name, prefix) {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Name < kept[j].Name })
	return kept, nil
}

// visible returns the symbols visible from sc, inner bindings first.
func (f *file) visible(sc *scope) []Candidate {
	seen := make(map[string]bool)
	var cands []Candidate
	for s, first := sc, true; s != nil; s, first = s.parent, false {
		if s.class && !first {
			continue
		}
		for _, sym := range s.order {
			if seen[sym.Name] {
				continue
			}
			seen[sym.Name] = true
			cands = append(cands, f.candidate(sym))
		}
	}
	return cands
}

// members returns the attributes of the dotted expression object.
func (a *Analyzer) members(ctx context.Context, f *file, sc *scope, object string) ([]Candidate, error) {
	head, rest, _ := strings.Cut(object, ".")
	sym := f.lookup(sc, head)
	if sym == nil {
		return nil, nil
	}

	if !sym.Imported {
		var path []string
		if rest != "" {
			path = strings.Split(rest, ".")
		}
		for _, name := range path {
			if sym.body == nil {
				return nil, nil
			}
			if sym = sym.body.names[name]; sym == nil {
				return nil, nil
			}
		}
		if sym.body == nil {
			return nil, nil
		}
		var cands []Candidate
		for _, m := range sym.body.order {
			cands = append(cands, f.candidate(m))
		}
		return cands, nil
	}

	full := sym.Full
	if rest != "" {
		full += "." + rest
	}
	mod, err := a.module(ctx, full)
	if err != nil {
		log.Debugf("no members for %s: %v", full, err)
		return nil, nil
	}
	var cands []Candidate
	for _, m := range mod.module.order {
		cands = append(cands, Candidate{
			Name: m.Name,
			Kind: m.Kind,
			Key:  resolver.Key{FullName: full + "." + m.Name},
		})
	}
	return cands, nil
}

// word splits the text before the cursor into the identifier being typed
// and, after a dot, the dotted expression before it.
func word(before string) (prefix, object string) {
	start := identStart(before)
	prefix = before[start:]
	if start == 0 || before[start-1] != '.' {
		return prefix, ""
	}

	end := start - 1
	i := end
	for i > 0 {
		j := identStart(before[:i])
		if j == i {
			break
		}
		i = j
		if i == 0 || before[i-1] != '.' {
			break
		}
		i--
	}
	return prefix, strings.TrimPrefix(before[i:end], ".")
}

// identStart returns the offset at which the identifier ending s begins.
func identStart(s string) int {
	i := len(s)
	for i > 0 {
		r, n := utf8.DecodeLastRuneInString(s[:i])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		i -= n
	}
	return i
}

// Lookup returns the candidate for the identifier at pos.
func (a *Analyzer) Lookup(ctx context.Context, uri string, text string, pos protocol.Position) (Candidate, bool, error) {
	off, err := offset(text, pos)
	if err != nil {
		return Candidate{}, false, err
	}
	f, err := a.index(ctx, uri, text)
	if err != nil {
		return Candidate{}, false, err
	}

	id, ok := f.identAt(off)
	switch {
	case !ok:
		return Candidate{}, false, nil
	case id.sym != nil:
		return f.candidate(id.sym), true, nil
	case id.full != "":
		return Candidate{
			Name: id.name,
			Kind: id.kind,
			Key:  resolver.Key{FullName: id.full},
		}, true, nil
	}
	// Defining occurrences without a binding, e.g. parameters of lambdas.
	if sym := f.symbolAt(rowCol(f.text, id.start)); sym != nil {
		return f.candidate(sym), true, nil
	}
	return Candidate{}, false, nil
}

// rowCol returns the tree-sitter point of a byte offset.
func rowCol(text string, off uint32) (uint32, uint32) {
	before := text[:off]
	row := uint32(strings.Count(before, "\n"))
	col := off
	if i := strings.LastIndexByte(before, '\n'); i >= 0 {
		col = off - uint32(i) - 1
	}
	return row, col
}
