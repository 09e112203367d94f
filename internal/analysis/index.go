package analysis

import (
	"path/filepath"
	"strings"

	"pylon/internal/semtok"

	sitter "github.com/smacker/go-tree-sitter"
)

// symbol is a name bound in a scope.
type symbol struct {
	Name string
	Kind semtok.Type
	Full string // dotted name the binding refers to

	// Position of the defining identifier; tree-sitter rows and byte
	// columns. Zero for bindings found through imports of other files.
	Row, Col uint32

	Params   []string // for functions
	Doc      string   // docstring of functions and classes
	Imported bool
	body     *scope // for classes

	start uint32 // byte offset of the defining identifier
	file  *file
	path  string // module file, for symbols naming a module
}

type scope struct {
	parent     *scope
	class      bool
	qual       string
	start, end uint32
	names      map[string]*symbol
	order      []*symbol
}

// ident is one identifier occurrence.
type ident struct {
	start, end uint32
	name       string
	kind       semtok.Type
	sym        *symbol
	full       string // dotted name for attribute chains on imports
}

// file is the index of one parsed module. It holds no tree-sitter nodes so
// it outlives the tree it was built from.
type file struct {
	path    string
	text    string
	src     []byte
	module  *scope
	scopes  []*scope
	symbols []*symbol
	idents  []ident
}

func build(root *sitter.Node, src []byte, path string) *file {
	f := &file{path: path, text: string(src), src: src}
	f.module = f.open(nil, root, false, moduleName(path))
	f.declare(f.module, root)
	f.walk(root, f.module)
	return f
}

func moduleName(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "__init__" {
		return filepath.Base(filepath.Dir(path))
	}
	return name
}

func same(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

func (f *file) open(parent *scope, n *sitter.Node, class bool, qual string) *scope {
	sc := &scope{
		parent: parent,
		class:  class,
		qual:   qual,
		start:  n.StartByte(),
		end:    n.EndByte(),
		names:  make(map[string]*symbol),
	}
	f.scopes = append(f.scopes, sc)
	return sc
}

func (f *file) qualify(sc *scope, name string) string {
	if sc.qual == "" {
		return name
	}
	return sc.qual + "." + name
}

// bind adds sym to sc. Later bindings replace earlier ones unless weak.
func (f *file) bind(sc *scope, sym *symbol, weak bool) {
	if prev, ok := sc.names[sym.Name]; ok {
		if weak {
			return
		}
		for i, s := range sc.order {
			if s == prev {
				sc.order = append(sc.order[:i], sc.order[i+1:]...)
				break
			}
		}
	}
	sym.file = f
	sc.names[sym.Name] = sym
	sc.order = append(sc.order, sym)
	f.symbols = append(f.symbols, sym)
}

func (f *file) define(sc *scope, name *sitter.Node, kind semtok.Type) *symbol {
	if name == nil || name.Type() != "identifier" {
		return nil
	}
	text := name.Content(f.src)
	sym := &symbol{
		Name:  text,
		Kind:  kind,
		Full:  f.qualify(sc, text),
		Row:   name.StartPoint().Row,
		Col:   name.StartPoint().Column,
		start: name.StartByte(),
	}
	f.bind(sc, sym, false)
	return sym
}

// declare binds the names defined directly in the block n, without
// entering nested scopes.
func (f *file) declare(sc *scope, n *sitter.Node) {
	if n == nil {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "function_definition":
			if sym := f.define(sc, c.ChildByFieldName("name"), semtok.Function); sym != nil {
				sym.Params = f.params(nil, c.ChildByFieldName("parameters"))
				sym.Doc = docstring(c.ChildByFieldName("body"), f.src)
			}
		case "class_definition":
			if sym := f.define(sc, c.ChildByFieldName("name"), semtok.Class); sym != nil {
				sym.Doc = docstring(c.ChildByFieldName("body"), f.src)
			}
		case "import_statement", "import_from_statement":
			f.imports(sc, c)
		case "assignment":
			left := c.ChildByFieldName("left")
			if left != nil && left.Type() == "identifier" {
				name := left.Content(f.src)
				f.bind(sc, &symbol{
					Name:  name,
					Kind:  semtok.Unclassified,
					Full:  f.qualify(sc, name),
					Row:   left.StartPoint().Row,
					Col:   left.StartPoint().Column,
					start: left.StartByte(),
				}, true)
			}
		case "lambda":
		default:
			f.declare(sc, c)
		}
	}
}

func (f *file) imports(sc *scope, n *sitter.Node) {
	from := n.Type() == "import_from_statement"
	module := ""
	if from {
		m := n.ChildByFieldName("module_name")
		if m == nil {
			return
		}
		module = m.Content(f.src)
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) != "name" {
			continue
		}
		c := n.Child(i)
		target, bound := c, c
		if c.Type() == "aliased_import" {
			target = c.ChildByFieldName("name")
			bound = c.ChildByFieldName("alias")
		}
		if target == nil || bound == nil {
			continue
		}

		name := bound.Content(f.src)
		full := target.Content(f.src)
		kind := semtok.Namespace
		if from {
			kind = semtok.Unclassified
			full = join(module, full)
		} else if bound == target {
			// import a.b binds a.
			name, _, _ = strings.Cut(full, ".")
			full = name
		}
		f.bind(sc, &symbol{
			Name:     name,
			Kind:     kind,
			Full:     full,
			Row:      bound.StartPoint().Row,
			Col:      bound.StartPoint().Column,
			Imported: true,
			start:    bound.StartByte(),
		}, false)
	}
}

// docstring returns the string literal opening a block, unquoted and
// with its common indentation removed.
func docstring(body *sitter.Node, src []byte) string {
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	stmt := body.NamedChild(0)
	if stmt.Type() != "expression_statement" || stmt.NamedChildCount() == 0 {
		return ""
	}
	lit := stmt.NamedChild(0)
	if lit.Type() != "string" {
		return ""
	}
	return cleandoc(unquote(lit.Content(src)))
}

func unquote(s string) string {
	s = strings.TrimLeft(s, "rRuUbBfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

// cleandoc strips the first line and removes the indentation shared by
// the following lines.
func cleandoc(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	indent := -1
	for _, l := range lines[1:] {
		t := strings.TrimLeft(l, " \t")
		if t == "" {
			continue
		}
		if n := len(l) - len(t); indent < 0 || n < indent {
			indent = n
		}
	}
	lines[0] = strings.TrimLeft(lines[0], " \t")
	for i := 1; i < len(lines); i++ {
		if indent > 0 && len(lines[i]) >= indent {
			lines[i] = lines[i][indent:]
		} else {
			lines[i] = strings.TrimLeft(lines[i], " \t")
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func join(module, name string) string {
	if strings.HasSuffix(module, ".") {
		return module + name
	}
	return module + "." + name
}

// params returns the parameter names of a parameter list and, if sc is
// set, binds them there.
func (f *file) params(sc *scope, n *sitter.Node) []string {
	if n == nil {
		return nil
	}
	var names []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		id := paramName(n.NamedChild(i))
		if id == nil {
			continue
		}
		names = append(names, id.Content(f.src))
		if sc != nil {
			f.define(sc, id, semtok.Parameter)
		}
	}
	return names
}

func paramName(n *sitter.Node) *sitter.Node {
	switch n.Type() {
	case "identifier":
		return n
	case "typed_parameter", "list_splat_pattern", "dictionary_splat_pattern":
		if n.NamedChildCount() == 0 {
			return nil
		}
		return paramName(n.NamedChild(0))
	case "default_parameter", "typed_default_parameter":
		if name := n.ChildByFieldName("name"); name != nil {
			return paramName(name)
		}
	}
	return nil
}

func (f *file) walk(n *sitter.Node, sc *scope) {
	switch n.Type() {
	case "identifier":
		f.visit(n, sc)
		return
	case "function_definition", "lambda":
		name := n.ChildByFieldName("name")
		qual := f.qualify(sc, "<lambda>")
		if name != nil {
			qual = f.qualify(sc, name.Content(f.src))
		}
		inner := f.open(sc, n, false, qual)
		f.params(inner, n.ChildByFieldName("parameters"))
		f.declare(inner, n.ChildByFieldName("body"))
		f.children(n, sc, inner, name)
		return
	case "class_definition":
		name := n.ChildByFieldName("name")
		if name == nil {
			break
		}
		inner := f.open(sc, n, true, f.qualify(sc, name.Content(f.src)))
		if sym, ok := sc.names[name.Content(f.src)]; ok && sym.Kind == semtok.Class {
			sym.body = inner
		}
		f.declare(inner, n.ChildByFieldName("body"))
		f.children(n, sc, inner, name)
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		f.walk(n.Child(i), sc)
	}
}

// children walks the children of a scope node; the defining name belongs
// to the enclosing scope.
func (f *file) children(n *sitter.Node, outer, inner *scope, name *sitter.Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if same(c, name) {
			f.walk(c, outer)
			continue
		}
		f.walk(c, inner)
	}
}

func (f *file) visit(n *sitter.Node, sc *scope) {
	id := ident{
		start: n.StartByte(),
		end:   n.EndByte(),
		name:  n.Content(f.src),
		kind:  semtok.Unclassified,
	}

	parent := n.Parent()
	switch {
	case parent == nil:
	case parent.Type() == "attribute" && same(parent.ChildByFieldName("attribute"), n):
		id.kind = semtok.Property
		if obj := f.chain(parent.ChildByFieldName("object"), sc); obj != "" {
			id.full = obj + "." + id.name
		}
		f.idents = append(f.idents, id)
		return
	case parent.Type() == "dotted_name":
		id.kind = importKind(parent)
		f.idents = append(f.idents, id)
		return
	case parent.Type() == "keyword_argument" && same(parent.ChildByFieldName("name"), n):
		id.kind = semtok.Parameter
		f.idents = append(f.idents, id)
		return
	}

	if id.sym = f.lookup(sc, id.name); id.sym != nil {
		id.kind = id.sym.Kind
	}
	if kind, ok := defining(n, parent); ok {
		id.kind = kind
	}
	f.idents = append(f.idents, id)
}

// defining returns the kind of n when it is the defining occurrence of a
// function, class or parameter.
func defining(n, parent *sitter.Node) (semtok.Type, bool) {
	if parent == nil {
		return 0, false
	}
	switch parent.Type() {
	case "function_definition":
		if same(parent.ChildByFieldName("name"), n) {
			return semtok.Function, true
		}
	case "class_definition":
		if same(parent.ChildByFieldName("name"), n) {
			return semtok.Class, true
		}
	case "parameters", "lambda_parameters", "typed_parameter":
		return semtok.Parameter, true
	case "default_parameter", "typed_default_parameter":
		if same(parent.ChildByFieldName("name"), n) {
			return semtok.Parameter, true
		}
	case "list_splat_pattern", "dictionary_splat_pattern":
		if gp := parent.Parent(); gp != nil {
			switch gp.Type() {
			case "parameters", "lambda_parameters", "typed_parameter":
				return semtok.Parameter, true
			}
		}
	}
	return 0, false
}

// importKind classifies an identifier inside a dotted name: module paths
// are namespaces, names imported from a module are not known.
func importKind(dotted *sitter.Node) semtok.Type {
	p := dotted.Parent()
	if p == nil {
		return semtok.Unclassified
	}
	switch p.Type() {
	case "import_statement", "relative_import":
		return semtok.Namespace
	case "aliased_import":
		if gp := p.Parent(); gp != nil && gp.Type() == "import_statement" {
			return semtok.Namespace
		}
	case "import_from_statement":
		if same(p.ChildByFieldName("module_name"), dotted) {
			return semtok.Namespace
		}
	}
	return semtok.Unclassified
}

// chain returns the dotted name an expression like np.linalg refers to
// when it starts at an import.
func (f *file) chain(n *sitter.Node, sc *scope) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "identifier":
		if sym := f.lookup(sc, n.Content(f.src)); sym != nil && sym.Imported {
			return sym.Full
		}
	case "attribute":
		obj := f.chain(n.ChildByFieldName("object"), sc)
		attr := n.ChildByFieldName("attribute")
		if obj != "" && attr != nil {
			return obj + "." + attr.Content(f.src)
		}
	}
	return ""
}

// lookup resolves name from sc outwards. Class bodies are only visible
// from the class body itself.
func (f *file) lookup(sc *scope, name string) *symbol {
	for s, first := sc, true; s != nil; s, first = s.parent, false {
		if s.class && !first {
			continue
		}
		if sym, ok := s.names[name]; ok {
			return sym
		}
	}
	return nil
}

// scopeAt returns the innermost scope containing the byte offset.
func (f *file) scopeAt(off uint32) *scope {
	sc := f.module
	for _, s := range f.scopes {
		if s.start <= off && off <= s.end && s.end-s.start <= sc.end-sc.start {
			sc = s
		}
	}
	return sc
}

// identAt returns the identifier touching the byte offset.
func (f *file) identAt(off uint32) (ident, bool) {
	for _, id := range f.idents {
		if id.start <= off && off <= id.end {
			return id, true
		}
	}
	return ident{}, false
}

// symbolAt returns the symbol defined by the identifier at row and col.
func (f *file) symbolAt(row, col uint32) *symbol {
	for _, sym := range f.symbols {
		if sym.Row == row && sym.Col == col {
			return sym
		}
	}
	return nil
}

// member walks a dotted path of names through the module and class bodies.
func (f *file) member(path []string) *symbol {
	sc := f.module
	for i, name := range path {
		sym, ok := sc.names[name]
		if !ok {
			return nil
		}
		if i == len(path)-1 {
			return sym
		}
		if sym.body == nil {
			return nil
		}
		sc = sym.body
	}
	return nil
}
