// Package document keeps the text of open documents consistent with the
// edits the editor sends.
package document

import (
	"errors"
	"fmt"
	"sync"

	"pylon/internal/textedit"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

var log = commonlog.GetLogger("pylon.document")

var (
	ErrDocumentNotOpen     = errors.New("document not open")
	ErrDocumentAlreadyOpen = errors.New("document already open")
)

// Document is a snapshot of an open document.
type Document struct {
	URI     protocol.DocumentUri
	Version protocol.Integer
	Text    string
}

// Update is the outcome of a successful edit.
type Update struct {
	Document Document

	// Inputs describe the edit for an incremental syntax tree of the
	// previous text, in the order they must be applied.
	Inputs []sitter.EditInput

	// Replaced is set when the whole text was replaced; Inputs is then
	// empty and trees must be rebuilt.
	Replaced bool
}

type entry struct {
	mu  sync.Mutex
	doc Document
}

// Store holds open documents. Edits to one document are serialized; edits
// to different documents run independently.
type Store struct {
	mu   sync.RWMutex
	docs map[protocol.DocumentUri]*entry
}

func NewStore() *Store {
	return &Store{docs: make(map[protocol.DocumentUri]*entry)}
}

// Open registers a document.
func (s *Store) Open(uri protocol.DocumentUri, version protocol.Integer, text string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[uri]; ok {
		return Document{}, fmt.Errorf("%w: %s", ErrDocumentAlreadyOpen, uri)
	}
	doc := Document{URI: uri, Version: version, Text: text}
	s.docs[uri] = &entry{doc: doc}
	return doc, nil
}

// Close forgets a document.
func (s *Store) Close(uri protocol.DocumentUri) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[uri]; !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotOpen, uri)
	}
	delete(s.docs, uri)
	return nil
}

// Get returns the current snapshot of a document.
func (s *Store) Get(uri protocol.DocumentUri) (Document, bool) {
	e, ok := s.entry(uri)
	if !ok {
		return Document{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc, true
}

// URIs returns the open documents.
func (s *Store) URIs() []protocol.DocumentUri {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uris := make([]protocol.DocumentUri, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	return uris
}

func (s *Store) entry(uri protocol.DocumentUri) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[uri]
	return e, ok
}

// ApplyEdits applies one batch of edits, all addressing the current text.
// On error the stored document is left untouched.
func (s *Store) ApplyEdits(
	uri protocol.DocumentUri,
	version protocol.Integer,
	edits []protocol.TextEdit,
) (Update, error) {
	e, ok := s.entry(uri)
	if !ok {
		return Update{}, fmt.Errorf("%w: %s", ErrDocumentNotOpen, uri)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	text, inputs, err := batch(e.doc.Text, edits)
	if err != nil {
		return Update{}, fmt.Errorf("%s: %w", uri, err)
	}

	e.doc.Text = text
	e.doc.Version = version
	log.Debugf("applied %d edits to %s (version %d)", len(edits), uri, version)
	return Update{Document: e.doc, Inputs: inputs}, nil
}

// ApplyChanges applies the content changes of a didChange notification.
//
// Unlike a batch, each change addresses the text left by the previous one,
// so every ranged change is applied as its own single edit batch. A change
// without a range replaces the whole text. If any change fails none of them
// is kept.
func (s *Store) ApplyChanges(
	uri protocol.DocumentUri,
	version protocol.Integer,
	changes []any,
) (Update, error) {
	e, ok := s.entry(uri)
	if !ok {
		return Update{}, fmt.Errorf("%w: %s", ErrDocumentNotOpen, uri)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	text := e.doc.Text
	var inputs []sitter.EditInput
	replaced := false

	for i, raw := range changes {
		switch change := raw.(type) {
		case protocol.TextDocumentContentChangeEvent:
			if change.Range == nil {
				text, inputs, replaced = change.Text, nil, true
				continue
			}
			next, in, err := batch(text, []protocol.TextEdit{{Range: *change.Range, NewText: change.Text}})
			if err != nil {
				return Update{}, fmt.Errorf("%s: change %d: %w", uri, i, err)
			}
			text = next
			if !replaced {
				inputs = append(inputs, in...)
			}
		case protocol.TextDocumentContentChangeEventWhole:
			text, inputs, replaced = change.Text, nil, true
		default:
			return Update{}, fmt.Errorf("%s: unexpected change event type %T", uri, raw)
		}
	}

	e.doc.Text = text
	e.doc.Version = version
	return Update{Document: e.doc, Inputs: inputs, Replaced: replaced}, nil
}

// batch applies edits to text and describes them for a syntax tree of
// text.
func batch(text string, edits []protocol.TextEdit) (string, []sitter.EditInput, error) {
	inputs, err := textedit.EditInputs(text, edits)
	if err != nil {
		return "", nil, err
	}
	next, err := textedit.Apply(text, edits)
	if err != nil {
		return "", nil, err
	}
	return next, inputs, nil
}
