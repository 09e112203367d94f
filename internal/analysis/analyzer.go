// Package analysis answers reference questions about Python sources: which
// names are defined where, what kind each identifier refers to and how a
// completion candidate is labelled.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("pylon.analysis")

var lang = python.GetLanguage()

var ErrNotTracked = errors.New("analysis: document not tracked")

// Analyzer parses Python sources with a pool of tree-sitter parsers. Open
// documents are tracked with an incremental syntax tree each.
type Analyzer struct {
	parsers    chan *sitter.Parser
	searchPath []string

	mu   sync.Mutex
	docs map[string]*tracked
}

type tracked struct {
	tree *sitter.Tree
	src  []byte
}

// New returns an Analyzer with n parsers. Imported modules are looked up
// in searchPath.
func New(n int, searchPath []string) *Analyzer {
	if n < 1 {
		n = 1
	}
	a := &Analyzer{
		parsers:    make(chan *sitter.Parser, n),
		searchPath: searchPath,
		docs:       make(map[string]*tracked),
	}
	for i := 0; i < n; i++ {
		p := sitter.NewParser()
		p.SetLanguage(lang)
		a.parsers <- p
	}
	return a
}

func (a *Analyzer) parse(ctx context.Context, old *sitter.Tree, src []byte) (*sitter.Tree, error) {
	p := <-a.parsers
	defer func() { a.parsers <- p }()

	tree, err := p.ParseCtx(ctx, old, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	return tree, nil
}

// Track parses a document and keeps its tree for later edits.
func (a *Analyzer) Track(ctx context.Context, uri string, text string) error {
	src := []byte(text)
	tree, err := a.parse(ctx, nil, src)
	if err != nil {
		return fmt.Errorf("%s: %w", uri, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.docs[uri]; ok {
		prev.tree.Close()
	}
	a.docs[uri] = &tracked{tree: tree, src: src}
	return nil
}

// Edit brings the tree of a tracked document up to date with text. Inputs
// describe the edits from the previous text; without them the document is
// parsed from scratch.
func (a *Analyzer) Edit(ctx context.Context, uri string, inputs []sitter.EditInput, text string) error {
	// The tracked tree may be closed by Forget or Track as soon as the
	// lock is released; the copy is ours.
	a.mu.Lock()
	doc, ok := a.docs[uri]
	if !ok || len(inputs) == 0 {
		a.mu.Unlock()
		return a.Track(ctx, uri, text)
	}
	old := doc.tree.Copy()
	a.mu.Unlock()

	for _, in := range inputs {
		old.Edit(in)
	}
	src := []byte(text)
	tree, err := a.parse(ctx, old, src)
	old.Close()
	if err != nil {
		a.Forget(uri)
		return fmt.Errorf("%s: %w", uri, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if cur, ok := a.docs[uri]; ok {
		cur.tree.Close()
	}
	a.docs[uri] = &tracked{tree: tree, src: src}
	log.Debugf("reparsed %s after %d edits", uri, len(inputs))
	return nil
}

// Forget drops the tree of a document.
func (a *Analyzer) Forget(uri string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if doc, ok := a.docs[uri]; ok {
		doc.tree.Close()
		delete(a.docs, uri)
	}
}

// Close releases all trees and parsers.
func (a *Analyzer) Close() {
	a.mu.Lock()
	for uri, doc := range a.docs {
		doc.tree.Close()
		delete(a.docs, uri)
	}
	a.mu.Unlock()

	for i := 0; i < cap(a.parsers); i++ {
		p := <-a.parsers
		p.Close()
	}
}

// index returns the index of text, reusing the tracked tree of uri when it
// matches.
func (a *Analyzer) index(ctx context.Context, uri string, text string) (*file, error) {
	a.mu.Lock()
	if doc, ok := a.docs[uri]; ok && string(doc.src) == text {
		f := build(doc.tree.RootNode(), doc.src, pathOf(uri))
		a.mu.Unlock()
		return f, nil
	}
	a.mu.Unlock()

	src := []byte(text)
	tree, err := a.parse(ctx, nil, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	return build(tree.RootNode(), src, pathOf(uri)), nil
}

// source returns the text of the module at path, preferring a tracked
// document.
func (a *Analyzer) source(path string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for uri, doc := range a.docs {
		if pathOf(uri) == path {
			return doc.src, true
		}
	}
	return nil, false
}

// pathOf returns the file system path of a file URI, or uri itself.
func pathOf(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	return filepath.FromSlash(u.Path)
}
