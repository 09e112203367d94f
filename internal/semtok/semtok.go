// Package semtok encodes semantic tokens into the LSP relative wire format.
package semtok

import (
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Type indexes into the token type legend.
type Type int

// Token types, in legend order.
const (
	Namespace Type = iota
	TypeName
	Class
	Enum
	Interface
	Struct
	TypeParameter
	Parameter
	Variable
	Property
	EnumMember
	Event
	Function
	Method
	Macro
	Keyword
	Modifier
	Comment
	String
	Number
	Regexp
	Operator
	Decorator

	// Unclassified marks a token the encoder skips.
	Unclassified Type = -1
)

// Modifier bits.
const (
	Declaration uint32 = 1 << iota
	Definition
	Readonly
	Static
	Deprecated
	Abstract
	Async
	Modification
	Documentation
	DefaultLibrary
)

var typeNames = []string{
	string(protocol.SemanticTokenTypeNamespace),
	string(protocol.SemanticTokenTypeType),
	string(protocol.SemanticTokenTypeClass),
	string(protocol.SemanticTokenTypeEnum),
	string(protocol.SemanticTokenTypeInterface),
	string(protocol.SemanticTokenTypeStruct),
	string(protocol.SemanticTokenTypeTypeParameter),
	string(protocol.SemanticTokenTypeParameter),
	string(protocol.SemanticTokenTypeVariable),
	string(protocol.SemanticTokenTypeProperty),
	string(protocol.SemanticTokenTypeEnumMember),
	string(protocol.SemanticTokenTypeEvent),
	string(protocol.SemanticTokenTypeFunction),
	string(protocol.SemanticTokenTypeMethod),
	string(protocol.SemanticTokenTypeMacro),
	string(protocol.SemanticTokenTypeKeyword),
	string(protocol.SemanticTokenTypeModifier),
	string(protocol.SemanticTokenTypeComment),
	string(protocol.SemanticTokenTypeString),
	string(protocol.SemanticTokenTypeNumber),
	string(protocol.SemanticTokenTypeRegexp),
	string(protocol.SemanticTokenTypeOperator),
	"decorator", // LSP 3.17, not in protocol_3_16
}

var modifierNames = []string{
	string(protocol.SemanticTokenModifierDeclaration),
	string(protocol.SemanticTokenModifierDefinition),
	string(protocol.SemanticTokenModifierReadonly),
	string(protocol.SemanticTokenModifierStatic),
	string(protocol.SemanticTokenModifierDeprecated),
	string(protocol.SemanticTokenModifierAbstract),
	string(protocol.SemanticTokenModifierAsync),
	string(protocol.SemanticTokenModifierModification),
	string(protocol.SemanticTokenModifierDocumentation),
	string(protocol.SemanticTokenModifierDefaultLibrary),
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "unclassified"
	}
	return typeNames[t]
}

// Legend describes the type and modifier indexes used by Encode.
func Legend() protocol.SemanticTokensLegend {
	return protocol.SemanticTokensLegend{
		TokenTypes:     append([]string(nil), typeNames...),
		TokenModifiers: append([]string(nil), modifierNames...),
	}
}

// Token is a semantic token in absolute coordinates. Columns and lengths are
// in UTF-16 code units.
type Token struct {
	Line      uint32
	StartChar uint32
	Length    uint32
	Type      Type
	Modifiers uint32
}

// Classified reports whether the token carries a legend type.
func (t Token) Classified() bool {
	return t.Type >= 0 && int(t.Type) < len(typeNames)
}

// Encode converts tokens to the flat relative wire array, five integers per
// emitted token.
//
// Tokens must be ordered by line, then start character; Encode does not sort
// and the output is undefined otherwise. Unclassified tokens are dropped and
// do not move the baseline the next token is encoded against.
func Encode(tokens []Token) []protocol.UInteger {
	data := make([]protocol.UInteger, 0, 5*len(tokens))
	var prevLine, prevStart uint32
	for _, t := range tokens {
		if !t.Classified() {
			continue
		}
		deltaStart := t.StartChar
		if t.Line == prevLine {
			deltaStart = t.StartChar - prevStart
		}
		data = append(data,
			t.Line-prevLine,
			deltaStart,
			t.Length,
			protocol.UInteger(t.Type),
			t.Modifiers,
		)
		prevLine, prevStart = t.Line, t.StartChar
	}
	return data
}

// Decode is the inverse of Encode for well formed data.
func Decode(data []protocol.UInteger) []Token {
	tokens := make([]Token, 0, len(data)/5)
	var line, start uint32
	for i := 0; i+5 <= len(data); i += 5 {
		if data[i] > 0 {
			line += data[i]
			start = data[i+1]
		} else {
			start += data[i+1]
		}
		tokens = append(tokens, Token{
			Line:      line,
			StartChar: start,
			Length:    data[i+2],
			Type:      Type(data[i+3]),
			Modifiers: data[i+4],
		})
	}
	return tokens
}
