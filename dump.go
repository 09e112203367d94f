package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"pylon/internal/analysis"
	"pylon/internal/config"
	"pylon/internal/semtok"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

type tokensDump struct {
	Legend protocol.SemanticTokensLegend `json:"legend"`
	Data   []protocol.UInteger           `json:"data"`
	Tokens []tokenDump                   `json:"tokens"`
}

// tokenDump is one token decoded back from the wire data.
type tokenDump struct {
	Line   uint32 `json:"line"`
	Start  uint32 `json:"start"`
	Length uint32 `json:"length"`
	Type   string `json:"type"`
}

// runTokens prints the semantic tokens of a Python file in wire format,
// followed by the tokens a client decodes from it.
func runTokens(cfg config.Config, path string) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	a := analysis.New(1, cfg.PythonPath)
	defer a.Close()
	tokens, err := a.Tokens(context.Background(), "file://"+filepath.ToSlash(abs), string(text))
	if err != nil {
		return err
	}

	dump := tokensDump{Legend: semtok.Legend(), Data: semtok.Encode(tokens)}
	for _, t := range semtok.Decode(dump.Data) {
		dump.Tokens = append(dump.Tokens, tokenDump{
			Line:   t.Line,
			Start:  t.StartChar,
			Length: t.Length,
			Type:   t.Type.String(),
		})
	}
	out, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
