package server

import (
	"pylon/internal/format"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) textDocumentFormatting(
	context *glsp.Context,
	params *protocol.DocumentFormattingParams,
) ([]protocol.TextEdit, error) {
	doc, err := s.open(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	return format.Document(s.ctx, s.formatter, uriToPath(doc.URI), doc.Text)
}

func (s *Server) textDocumentRangeFormatting(
	context *glsp.Context,
	params *protocol.DocumentRangeFormattingParams,
) ([]protocol.TextEdit, error) {
	doc, err := s.open(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	return format.Range(s.ctx, s.formatter, uriToPath(doc.URI), doc.Text, params.Range)
}
