package server

import (
	"encoding/json"
	"fmt"

	"pylon/internal/analysis"
	"pylon/internal/resolver"
	"pylon/internal/semtok"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) textDocumentSemanticTokensFull(
	context *glsp.Context,
	params *protocol.SemanticTokensParams,
) (*protocol.SemanticTokens, error) {
	doc, err := s.open(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	tokens, err := s.analyzer.Tokens(s.ctx, doc.URI, doc.Text)
	if err != nil {
		return nil, err
	}
	return &protocol.SemanticTokens{Data: semtok.Encode(tokens)}, nil
}

func (s *Server) textDocumentCompletion(
	context *glsp.Context,
	params *protocol.CompletionParams,
) (any, error) {
	doc, err := s.open(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	cands, err := s.analyzer.Completions(s.ctx, doc.URI, doc.Text, params.Position)
	if err != nil {
		return nil, err
	}

	items := make([]protocol.CompletionItem, 0, len(cands))
	for i, c := range cands {
		item := completionItem(c)
		if i < s.config.ResolveAtMost {
			if r := s.cache.GetOrCreate(s.ctx, c.Key); r.OK() && r.Value != "" {
				name := c.Name
				item.Label = r.Value
				item.InsertText = &name
				item.FilterText = &name
			}
		}
		items = append(items, item)
	}
	return protocol.CompletionList{Items: items}, nil
}

func completionItem(c analysis.Candidate) protocol.CompletionItem {
	kind := completionKind(c.Kind)
	return protocol.CompletionItem{
		Label: c.Name,
		Kind:  &kind,
		Data:  c.Key,
	}
}

func completionKind(t semtok.Type) protocol.CompletionItemKind {
	switch t {
	case semtok.Namespace:
		return protocol.CompletionItemKindModule
	case semtok.Class:
		return protocol.CompletionItemKindClass
	case semtok.Function:
		return protocol.CompletionItemKindFunction
	case semtok.Property:
		return protocol.CompletionItemKindProperty
	}
	return protocol.CompletionItemKindVariable
}

func (s *Server) completionItemResolve(
	context *glsp.Context,
	params *protocol.CompletionItem,
) (*protocol.CompletionItem, error) {
	key, err := itemKey(params.Data)
	if err != nil {
		return nil, err
	}
	r := s.cache.GetOrCreate(s.ctx, key)
	if !r.OK() {
		log.Debugf("no detail for %s: %v", key, r.Err)
		return params, nil
	}
	detail := r.Value
	params.Detail = &detail
	return params, nil
}

// itemKey recovers the key stored in a completion item. The client hands
// the data back as decoded JSON.
func itemKey(data any) (resolver.Key, error) {
	if key, ok := data.(resolver.Key); ok {
		return key, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return resolver.Key{}, fmt.Errorf("invalid completion item data: %w", err)
	}
	var key resolver.Key
	if err := json.Unmarshal(raw, &key); err != nil {
		return resolver.Key{}, fmt.Errorf("invalid completion item data: %w", err)
	}
	if key.FullName == "" {
		return resolver.Key{}, fmt.Errorf("invalid completion item data: %s", raw)
	}
	return key, nil
}

func (s *Server) textDocumentHover(
	context *glsp.Context,
	params *protocol.HoverParams,
) (*protocol.Hover, error) {
	doc, err := s.open(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	cand, ok, err := s.analyzer.Lookup(s.ctx, doc.URI, doc.Text, params.Position)
	if err != nil || !ok {
		return nil, err
	}
	r := s.cache.GetOrCreate(s.ctx, cand.Key)
	if !r.OK() {
		return nil, nil
	}

	value := fmt.Sprintf("```python\n%s\n```\n%s", r.Value, cand.Key.FullName)
	if text, err := s.analyzer.Doc(s.ctx, cand.Key); err != nil {
		log.Debugf("no docstring for %s: %v", cand.Key, err)
	} else if text != "" {
		value += "\n\n" + text
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: value,
		},
	}, nil
}

func (s *Server) textDocumentDefinition(
	context *glsp.Context,
	params *protocol.DefinitionParams,
) (any, error) {
	doc, err := s.open(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	loc, ok, err := s.analyzer.Definition(s.ctx, doc.URI, doc.Text, params.Position)
	if err != nil || !ok {
		return nil, err
	}
	return loc, nil
}
