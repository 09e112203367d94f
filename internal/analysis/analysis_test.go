package analysis_test

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"pylon/internal/analysis"
	"pylon/internal/resolver"
	"pylon/internal/semtok"
	"pylon/internal/textedit"

	protocol "github.com/tliron/glsp/protocol_3_16"
	"kr.dev/diff"
)

const app = `import numpy as np
from os import path


class Greeter:
    def greet(self, name, *rest):
        return name + self.suffix


def main(argv):
    g = Greeter()
    g.greet(argv)
    np.array(argv)
`

func tok(line, char, length uint32, typ semtok.Type) semtok.Token {
	return semtok.Token{Line: line, StartChar: char, Length: length, Type: typ}
}

func newAnalyzer(t *testing.T, searchPath ...string) *analysis.Analyzer {
	t.Helper()
	a := analysis.New(2, searchPath)
	t.Cleanup(a.Close)
	return a
}

// writeFiles creates files under a temporary directory and returns it.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestTokens(t *testing.T) {
	a := newAnalyzer(t)
	got, err := a.Tokens(context.Background(), "file:///work/app.py", app)
	if err != nil {
		t.Fatal(err)
	}

	want := []semtok.Token{
		tok(0, 7, 5, semtok.Namespace),
		tok(0, 16, 2, semtok.Namespace),
		tok(1, 5, 2, semtok.Namespace),
		tok(1, 15, 4, semtok.Unclassified),
		tok(4, 6, 7, semtok.Class),
		tok(5, 8, 5, semtok.Function),
		tok(5, 14, 4, semtok.Parameter),
		tok(5, 20, 4, semtok.Parameter),
		tok(5, 27, 4, semtok.Parameter),
		tok(6, 15, 4, semtok.Parameter),
		tok(6, 22, 4, semtok.Parameter),
		tok(6, 27, 6, semtok.Property),
		tok(9, 4, 4, semtok.Function),
		tok(9, 9, 4, semtok.Parameter),
		tok(10, 4, 1, semtok.Unclassified),
		tok(10, 8, 7, semtok.Class),
		tok(11, 4, 1, semtok.Unclassified),
		tok(11, 6, 5, semtok.Property),
		tok(11, 12, 4, semtok.Parameter),
		tok(12, 4, 2, semtok.Namespace),
		tok(12, 7, 5, semtok.Property),
		tok(12, 13, 4, semtok.Parameter),
	}
	diff.Test(t, t.Errorf, got, want)
}

func TestTokensUTF16(t *testing.T) {
	a := newAnalyzer(t)
	got, err := a.Tokens(context.Background(), "", "s = \"😀\"; x = s\n")
	if err != nil {
		t.Fatal(err)
	}
	want := []semtok.Token{
		tok(0, 0, 1, semtok.Unclassified),
		tok(0, 10, 1, semtok.Unclassified),
		tok(0, 14, 1, semtok.Unclassified),
	}
	diff.Test(t, t.Errorf, got, want)
}

func TestTokensAfterEdit(t *testing.T) {
	ctx := context.Background()
	const uri = "file:///work/app.py"
	a := newAnalyzer(t)
	if err := a.Track(ctx, uri, app); err != nil {
		t.Fatal(err)
	}

	edits := []protocol.TextEdit{
		{
			Range: protocol.Range{
				Start: protocol.Position{Line: 9, Character: 4},
				End:   protocol.Position{Line: 9, Character: 8},
			},
			NewText: "run",
		},
		{
			Range: protocol.Range{
				Start: protocol.Position{Line: 5, Character: 20},
				End:   protocol.Position{Line: 5, Character: 24},
			},
			NewText: "who",
		},
	}
	inputs, err := textedit.EditInputs(app, edits)
	if err != nil {
		t.Fatal(err)
	}
	text, err := textedit.Apply(app, edits)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Edit(ctx, uri, inputs, text); err != nil {
		t.Fatal(err)
	}

	got, err := a.Tokens(ctx, uri, text)
	if err != nil {
		t.Fatal(err)
	}
	want, err := newAnalyzer(t).Tokens(ctx, uri, text)
	if err != nil {
		t.Fatal(err)
	}
	diff.Test(t, t.Errorf, got, want)

	// name in the method body no longer refers to a parameter.
	for _, tk := range got {
		if tk.Line == 6 && tk.StartChar == 15 && tk.Type != semtok.Unclassified {
			t.Errorf("stale reference classified as %v", tk.Type)
		}
	}
	a.Forget(uri)
}

func TestCompletions(t *testing.T) {
	ctx := context.Background()
	dir := writeFiles(t, map[string]string{"app.py": app + "    G\n"})
	path := filepath.Join(dir, "app.py")
	uri := "file://" + filepath.ToSlash(path)
	text := app + "    G\n"

	a := newAnalyzer(t)
	got, err := a.Completions(ctx, uri, text, protocol.Position{Line: 13, Character: 5})
	if err != nil {
		t.Fatal(err)
	}
	want := []analysis.Candidate{{
		Name: "Greeter",
		Kind: semtok.Class,
		Key:  resolver.Key{FullName: "app.Greeter", ModulePath: path, Line: 4, Column: 6},
	}}
	diff.Test(t, t.Errorf, got, want)

	// Locals come before globals but the result is sorted by name.
	all, err := a.Completions(ctx, uri, text, protocol.Position{Line: 13, Character: 4})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, c := range all {
		names = append(names, c.Name)
	}
	diff.Test(t, t.Errorf, names, []string{"Greeter", "argv", "g", "main", "np", "path"})

	np := all[4]
	if np.Key != (resolver.Key{FullName: "numpy"}) {
		t.Errorf("np key = %v", np.Key)
	}
}

func TestCompletionsMembers(t *testing.T) {
	ctx := context.Background()
	dir := writeFiles(t, map[string]string{
		"app.py": app,
		"lib/numpy/__init__.py": "from .linalg import norm\n\ndef array(obj, dtype=None):\n    pass\n",
		"lib/numpy/linalg.py":   "def norm(x, ord=None, axis=None):\n    pass\n",
	})
	path := filepath.Join(dir, "app.py")
	uri := "file://" + filepath.ToSlash(path)
	a := newAnalyzer(t, filepath.Join(dir, "lib"))

	text := app + "    Greeter.\n"
	got, err := a.Completions(ctx, uri, text, protocol.Position{Line: 13, Character: 12})
	if err != nil {
		t.Fatal(err)
	}
	want := []analysis.Candidate{{
		Name: "greet",
		Kind: semtok.Function,
		Key:  resolver.Key{FullName: "app.Greeter.greet", ModulePath: path, Line: 5, Column: 8},
	}}
	diff.Test(t, t.Errorf, got, want)

	detail, err := a.Detail(ctx, got[0].Key)
	if err != nil {
		t.Fatal(err)
	}
	if detail != "greet(self, name, rest)" {
		t.Errorf("Detail = %q", detail)
	}

	text = "import numpy as np\nnp.a"
	got, err = a.Completions(ctx, "", text, protocol.Position{Line: 1, Character: 4})
	if err != nil {
		t.Fatal(err)
	}
	want = []analysis.Candidate{{
		Name: "array",
		Kind: semtok.Function,
		Key:  resolver.Key{FullName: "numpy.array"},
	}}
	diff.Test(t, t.Errorf, got, want)
}

func TestDetailExternal(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"numpy/__init__.py": "from .linalg import norm\n\ndef array(obj, dtype=None):\n    pass\n",
		"numpy/linalg.py":   "def norm(x, ord=None, axis=None):\n    pass\n\nclass LinAlgError(Exception):\n    pass\n",
	})
	a := newAnalyzer(t, dir)
	ctx := context.Background()

	tests := []struct {
		name string
		want string
	}{
		{"numpy.array", "array(obj, dtype)"},
		{"numpy.norm", "norm(x, ord, axis)"},
		{"numpy.linalg", "linalg"},
		{"numpy.linalg.norm", "norm(x, ord, axis)"},
		{"numpy.linalg.LinAlgError", "LinAlgError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.Detail(ctx, resolver.Key{FullName: tt.name})
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Detail(%s) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}

	for _, name := range []string{"numpy.missing", "scipy.stats"} {
		if _, err := a.Detail(ctx, resolver.Key{FullName: name}); !errors.Is(err, analysis.ErrUnresolved) {
			t.Errorf("Detail(%s) err = %v, want ErrUnresolved", name, err)
		}
	}
}

func TestLookup(t *testing.T) {
	a := newAnalyzer(t)
	ctx := context.Background()
	text := "import numpy as np\nnp.linalg.norm(1)\n"

	got, ok, err := a.Lookup(ctx, "", text, protocol.Position{Line: 1, Character: 11})
	if err != nil || !ok {
		t.Fatalf("Lookup = %v, %v", ok, err)
	}
	if got.Key != (resolver.Key{FullName: "numpy.linalg.norm"}) {
		t.Errorf("Key = %v", got.Key)
	}

	if _, ok, _ := a.Lookup(ctx, "", text, protocol.Position{Line: 1, Character: 15}); ok {
		t.Error("Lookup found an identifier inside the call parentheses")
	}
	if _, _, err := a.Lookup(ctx, "", text, protocol.Position{Line: 9}); !errors.Is(err, textedit.ErrInvalidPosition) {
		t.Errorf("err = %v, want invalid position", err)
	}
}

func TestDetailAsResolver(t *testing.T) {
	dir := writeFiles(t, map[string]string{"pandas/__init__.py": "def read_csv(path, sep=','):\n    pass\n"})
	a := newAnalyzer(t, dir)
	cache := resolver.New(a.Detail)

	r := cache.GetOrCreate(context.Background(), resolver.Key{FullName: "pandas.read_csv"})
	if !r.OK() || r.Value != "read_csv(path, sep)" {
		t.Errorf("GetOrCreate = %+v", r)
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}
}

func fileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

func loc(uri string, sl, sc, el, ec uint32) protocol.Location {
	return protocol.Location{URI: uri, Range: protocol.Range{
		Start: protocol.Position{Line: sl, Character: sc},
		End:   protocol.Position{Line: el, Character: ec},
	}}
}

func TestDefinition(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"numpy/__init__.py": "from .linalg import norm\n\ndef array(obj):\n    pass\n",
		"numpy/linalg.py":   "def norm(x):\n    pass\n",
	})
	a := newAnalyzer(t, dir)
	ctx := context.Background()
	const doc = "file:///work/app.py"
	text := `import numpy as np
from numpy import norm
import scipy


def twice(x):
    return x * 2


twice(np.array(1))
norm(2)
scipy
h = lambda y: y
`
	if err := a.Track(ctx, doc, text); err != nil {
		t.Fatal(err)
	}
	numpy := fileURI(filepath.Join(dir, "numpy", "__init__.py"))
	linalg := fileURI(filepath.Join(dir, "numpy", "linalg.py"))

	tests := []struct {
		name string
		pos  protocol.Position
		want protocol.Location
	}{
		{"function", protocol.Position{Line: 9, Character: 1}, loc(doc, 5, 4, 5, 9)},
		{"definition itself", protocol.Position{Line: 5, Character: 6}, loc(doc, 5, 4, 5, 9)},
		{"parameter", protocol.Position{Line: 6, Character: 11}, loc(doc, 5, 10, 5, 11)},
		{"lambda parameter", protocol.Position{Line: 12, Character: 14}, loc(doc, 12, 11, 12, 12)},
		{"module alias", protocol.Position{Line: 9, Character: 7}, protocol.Location{URI: numpy}},
		{"module attribute", protocol.Position{Line: 9, Character: 10}, loc(numpy, 2, 4, 2, 9)},
		{"re-exported name", protocol.Position{Line: 10, Character: 0}, loc(linalg, 0, 4, 0, 8)},
		{"unresolved import", protocol.Position{Line: 11, Character: 2}, loc(doc, 2, 7, 2, 12)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := a.Definition(ctx, doc, text, tt.pos)
			if err != nil || !ok {
				t.Fatalf("Definition = %v, %v", ok, err)
			}
			diff.Test(t, t.Errorf, got, tt.want)
		})
	}

	if _, ok, err := a.Definition(ctx, doc, text, protocol.Position{Line: 9, Character: 16}); ok || err != nil {
		t.Errorf("Definition on a literal = %v, %v", ok, err)
	}
}

func TestDefinitionUTF16(t *testing.T) {
	a := newAnalyzer(t)
	text := "s = '\U0001F600'; π = 1\nπ\n"
	got, ok, err := a.Definition(context.Background(), "", text, protocol.Position{Line: 1, Character: 0})
	if err != nil || !ok {
		t.Fatalf("Definition = %v, %v", ok, err)
	}
	// The emoji counts two UTF-16 units.
	diff.Test(t, t.Errorf, got, loc("", 0, 10, 0, 11))
}

func TestDoc(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"numpy/__init__.py": `def array(obj):
    """Create an array.

    obj may be any sequence.
    """
    pass

class ndarray:
    'An array object.'

def zeros(shape):
    return shape
`,
	})
	a := newAnalyzer(t, dir)
	ctx := context.Background()

	tests := []struct {
		name string
		want string
	}{
		{"numpy.array", "Create an array.\n\nobj may be any sequence."},
		{"numpy.ndarray", "An array object."},
		{"numpy.zeros", ""},
		{"numpy", ""},
	}
	for _, tt := range tests {
		got, err := a.Doc(ctx, resolver.Key{FullName: tt.name})
		if err != nil {
			t.Fatalf("Doc(%s): %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("Doc(%s) = %q, want %q", tt.name, got, tt.want)
		}
	}

	const doc = "file:///work/app.py"
	text := "def hello():\n    r'''Say hi.'''\n\nhello()\n"
	if err := a.Track(ctx, doc, text); err != nil {
		t.Fatal(err)
	}
	cand, ok, err := a.Lookup(ctx, doc, text, protocol.Position{Line: 3, Character: 1})
	if err != nil || !ok {
		t.Fatalf("Lookup = %v, %v", ok, err)
	}
	if got, err := a.Doc(ctx, cand.Key); err != nil || got != "Say hi." {
		t.Errorf("Doc(%v) = %q, %v", cand.Key, got, err)
	}
}

func TestEditConcurrentWithForget(t *testing.T) {
	a := newAnalyzer(t)
	ctx := context.Background()
	const doc = "file:///work/app.py"
	before := "x = 1\n"
	edits := []protocol.TextEdit{{Range: protocol.Range{
		Start: protocol.Position{Line: 0, Character: 4},
		End:   protocol.Position{Line: 0, Character: 5},
	}, NewText: "22"}}
	after, err := textedit.Apply(before, edits)
	if err != nil {
		t.Fatal(err)
	}
	inputs, err := textedit.EditInputs(before, edits)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 50; i++ {
		if err := a.Track(ctx, doc, before); err != nil {
			t.Fatal(err)
		}
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := a.Edit(ctx, doc, inputs, after); err != nil {
				t.Error(err)
			}
		}()
		go func() {
			defer wg.Done()
			a.Forget(doc)
		}()
		wg.Wait()
	}

	got, err := a.Tokens(ctx, doc, after)
	if err != nil {
		t.Fatal(err)
	}
	diff.Test(t, t.Errorf, got, []semtok.Token{tok(0, 0, 1, semtok.Unclassified)})
}
