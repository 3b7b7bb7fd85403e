package lexer

import "fmt"

type TokenType int

const (
	// Special tokens
	Illegal TokenType = iota
	EOF

	// Identifiers and basic type literals
	// (these tokens stand for classes of literals)
	Ident   // my_label, R3, V1
	Keyword // fn let return if else for in step
	Number  // 12345
	String  // "abc"
	Attr    // #[reversible] #[power=low]

	LParen   // (
	RParen   // )
	LBracket // [
	RBracket // ]
	LBrace   // {
	RBrace   // }
	Comma    // ,
	Semi     // ;
	Colon    // :
	Arrow    // ->
	DotDot   // ..
	Assign   // =

	Plus    // +
	Minus   // -
	Star    // *
	Slash   // /
	Percent // %

	EqEq  // ==
	NotEq // !=
	Lt    // <
	LtEq  // <=
	Gt    // >
	GtEq  // >=
)

var keywords = map[string]struct{}{
	"fn":     {},
	"let":    {},
	"return": {},
	"if":     {},
	"else":   {},
	"for":    {},
	"in":     {},
	"step":   {},
}

type Token struct {
	ty   TokenType
	text string
	span Span
}

func (tok Token) Type() TokenType { return tok.ty }

func (tok Token) Text() string {
	return tok.text
}

func (tok Token) String() string {
	switch tok.ty {
	case EOF:
		return "EOF"
	}
	return fmt.Sprintf("%q", tok.text)
}

func (tok Token) Span() Span {
	return tok.span
}

func (tok Token) IsEOF() bool {
	return tok.Type() == EOF
}

// Is reports whether the token is a keyword or punctuation with the given text.
func (tok Token) Is(ty TokenType, text string) bool {
	return tok.ty == ty && tok.text == text
}

// Pos is a rune offset within the input.
type Pos uint32

// Span is a region of the input.
type Span struct {
	Begin Pos
	End   Pos
}
