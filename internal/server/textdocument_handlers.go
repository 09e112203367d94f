package server

import (
	"errors"
	"fmt"

	"pylon/internal/document"
	"pylon/internal/textedit"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) textDocumentDidOpen(
	context *glsp.Context,
	params *protocol.DidOpenTextDocumentParams,
) error {
	item := params.TextDocument
	if _, ok := s.docs.Get(item.URI); ok {
		// Reopened without a close, e.g. after a resync.
		s.docs.Close(item.URI)
	}
	doc, err := s.docs.Open(item.URI, item.Version, item.Text)
	if err != nil {
		return err
	}
	return s.analyzer.Track(s.ctx, doc.URI, doc.Text)
}

func (s *Server) textDocumentDidChange(
	context *glsp.Context,
	params *protocol.DidChangeTextDocumentParams,
) error {
	uri := params.TextDocument.URI
	up, err := s.docs.ApplyChanges(uri, params.TextDocument.Version, params.ContentChanges)
	if err != nil {
		// Each change is a single edit, so a bad position is the only way
		// the client's view of the document can differ from ours. Drop it
		// so the client has to open it again.
		if errors.Is(err, textedit.ErrInvalidPosition) {
			log.Errorf("dropping %s: %v", uri, err)
			s.drop(context, uri)
		}
		return err
	}
	return s.analyzer.Edit(s.ctx, uri, up.Inputs, up.Document.Text)
}

func (s *Server) textDocumentDidClose(
	context *glsp.Context,
	params *protocol.DidCloseTextDocumentParams,
) error {
	uri := params.TextDocument.URI
	s.analyzer.Forget(uri)
	return s.docs.Close(uri)
}

func (s *Server) drop(context *glsp.Context, uri protocol.DocumentUri) {
	s.docs.Close(uri)
	s.analyzer.Forget(uri)
	notify(context, "window/showMessage", protocol.ShowMessageParams{
		Type:    protocol.MessageTypeWarning,
		Message: fmt.Sprintf("%s is out of sync, reopen it", uri),
	})
}

// open returns an open document or ErrDocumentNotOpen.
func (s *Server) open(uri protocol.DocumentUri) (document.Document, error) {
	doc, ok := s.docs.Get(uri)
	if !ok {
		return document.Document{}, fmt.Errorf("%w: %s", document.ErrDocumentNotOpen, uri)
	}
	return doc, nil
}

func notify(context *glsp.Context, method string, params any) {
	if context == nil || context.Notify == nil {
		return
	}
	context.Notify(method, params)
}
