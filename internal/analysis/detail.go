package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pylon/internal/resolver"
	"pylon/internal/semtok"
)

var ErrUnresolved = errors.New("analysis: name not resolved")

// maxHops bounds how many re-exports are followed.
const maxHops = 8

// Detail returns the label of a candidate: name(p1, p2) for functions,
// the bare name otherwise. It has the signature of resolver.Func.
func (a *Analyzer) Detail(ctx context.Context, key resolver.Key) (string, error) {
	name, sym, err := a.target(ctx, key)
	if err != nil {
		return "", err
	}
	return labelAs(name, sym), nil
}

// Doc returns the docstring of the function or class a candidate refers
// to, or "" if it has none.
func (a *Analyzer) Doc(ctx context.Context, key resolver.Key) (string, error) {
	_, sym, err := a.target(ctx, key)
	if err != nil {
		return "", err
	}
	return sym.Doc, nil
}

// target returns the definition a key refers to and the name it is known
// by at the key. Local imports are followed when their module is found.
func (a *Analyzer) target(ctx context.Context, key resolver.Key) (string, *symbol, error) {
	if key.ModulePath == "" {
		sym, err := a.resolve(ctx, key.FullName, 0)
		if err != nil {
			return "", nil, err
		}
		return sym.Name, sym, nil
	}

	f, err := a.load(ctx, key.ModulePath)
	if err != nil {
		return "", nil, err
	}
	sym := f.symbolAt(uint32(key.Line), uint32(key.Column))
	if sym == nil {
		return "", nil, fmt.Errorf("%w: nothing defined at %s:%d:%d", ErrUnresolved, key.ModulePath, key.Line, key.Column)
	}
	if sym.Imported {
		if target, err := a.resolve(ctx, sym.Full, 0); err == nil {
			return sym.Name, target, nil
		}
	}
	return sym.Name, sym, nil
}

func labelAs(name string, sym *symbol) string {
	if sym.Kind != semtok.Function {
		return name
	}
	return name + "(" + strings.Join(sym.Params, ", ") + ")"
}

// load indexes the module at path, preferring a tracked document.
func (a *Analyzer) load(ctx context.Context, path string) (*file, error) {
	src, ok := a.source(path)
	if !ok {
		var err error
		if src, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read module: %w", err)
		}
	}
	tree, err := a.parse(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer tree.Close()
	return build(tree.RootNode(), src, path), nil
}

// module indexes the module with the dotted name full.
func (a *Analyzer) module(ctx context.Context, full string) (*file, error) {
	path, ok := a.find(strings.Split(full, "."))
	if !ok {
		return nil, fmt.Errorf("%w: module %s not found", ErrUnresolved, full)
	}
	return a.load(ctx, path)
}

// resolve finds the definition a dotted name refers to: the longest
// prefix naming a module on the search path, then the rest as attributes
// of that module.
func (a *Analyzer) resolve(ctx context.Context, full string, hops int) (*symbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	segs := strings.Split(full, ".")
	for i := len(segs); i >= 1; i-- {
		path, ok := a.find(segs[:i])
		if !ok {
			continue
		}
		if i == len(segs) {
			return &symbol{Name: segs[i-1], Kind: semtok.Namespace, Full: full, path: path}, nil
		}

		f, err := a.load(ctx, path)
		if err != nil {
			return nil, err
		}
		sym := f.member(segs[i:])
		if sym == nil {
			return nil, fmt.Errorf("%w: %s has no attribute %s", ErrUnresolved, strings.Join(segs[:i], "."), strings.Join(segs[i:], "."))
		}
		if !sym.Imported || hops >= maxHops {
			return sym, nil
		}

		pkg := segs[:i]
		if filepath.Base(path) != "__init__.py" {
			pkg = segs[:i-1]
		}
		target, err := a.resolve(ctx, absolute(pkg, sym.Full), hops+1)
		if err != nil {
			return nil, err
		}
		return target, nil
	}
	return nil, fmt.Errorf("%w: module %s not found", ErrUnresolved, segs[0])
}

// absolute turns a relative import name into a dotted name within pkg.
func absolute(pkg []string, name string) string {
	if !strings.HasPrefix(name, ".") {
		return name
	}
	rest := strings.TrimLeft(name, ".")
	up := len(name) - len(rest) - 1
	if up > len(pkg) {
		up = len(pkg)
	}
	base := pkg[:len(pkg)-up]
	if len(base) == 0 {
		return rest
	}
	return strings.Join(base, ".") + "." + rest
}

// find looks a module up on the search path.
func (a *Analyzer) find(segs []string) (string, bool) {
	for _, dir := range a.searchPath {
		base := filepath.Join(append([]string{dir}, segs...)...)
		for _, path := range []string{
			base + ".py",
			base + ".pyi",
			filepath.Join(base, "__init__.py"),
		} {
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, true
			}
		}
	}
	return "", false
}
