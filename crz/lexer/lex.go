// Package lexer turns CRZ64I source text into a token stream. Comments
// are consumed here; everything else, attributes included, comes out as
// tokens with rune-offset spans that LocOf converts to line/column.
package lexer

import (
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/HamidrezaReyhani/CRZ64I/crz/diag"
)

type stateFunc func() stateFunc

type Lexer struct {
	r io.RuneReader

	peeking   []rune
	err       error
	state     stateFunc
	bufOffset Pos
	buf       []rune
	output    chan Token
}

func NewLexer(r io.RuneReader) *Lexer {
	l := &Lexer{
		r: r,

		output: make(chan Token, 2),
	}
	l.state = l.lexInit
	return l
}

func (l *Lexer) Next() (Token, error) {
	for len(l.output) == 0 && l.err == nil {
		nextState := l.state()
		l.state = nextState
	}
	if l.err != nil {
		return Token{}, l.err
	}
	tok := <-l.output
	return tok, nil
}

// emit creates a token from the current buffer with type ty and emits it.
// emit clears the buffer
func (l *Lexer) emit(ty TokenType) {
	if ty == EOF {
		l.buf = l.buf[:0]
	}
	tokSize := Pos(len(l.buf))
	l.output <- Token{
		ty: ty,
		span: Span{
			Begin: l.bufOffset,
			End:   l.bufOffset + tokSize,
		},
		text: string(l.buf),
	}
	l.bufOffset += tokSize
	l.buf = l.buf[:0]
}

// read consumes input
// if an error is encountered it sets l.err and returns eofRune
func (l *Lexer) read() rune {
	if len(l.peeking) > 0 {
		var r rune
		l.peeking, r = pop(l.peeking)
		l.buf = append(l.buf, r)
		return r
	}
	r, _, err := l.r.ReadRune()
	if err != nil {
		if err != io.EOF {
			l.err = err
			return eofRune
		} else {
			r = eofRune
		}
	}
	l.buf = append(l.buf, r)
	return r
}

// back puts r back into the input, ahead of everything.
// it can only be called once per call of read.
func (l *Lexer) back() {
	var r rune
	l.buf, r = pop(l.buf)
	l.peeking = append(l.peeking, r)
}

// peek returns the result of the next call to read without affecting the lexer's position.
func (l *Lexer) peek() rune {
	if len(l.peeking) == 0 {
		l.read()
		l.back()
	}
	return l.peeking[len(l.peeking)-1]
}

// lexInit is the initial state of the lexer
func (l *Lexer) lexInit() stateFunc {
	r := l.read()
	switch {
	case r == eofRune:
		return l.lexEnd
	case isWhitespace(r):
		l.back()
		return l.skipWhitespace
	case r == '(':
		l.emit(LParen)
	case r == ')':
		l.emit(RParen)
	case r == '[':
		l.emit(LBracket)
	case r == ']':
		l.emit(RBracket)
	case r == '{':
		l.emit(LBrace)
	case r == '}':
		l.emit(RBrace)
	case r == ',':
		l.emit(Comma)
	case r == ';':
		l.emit(Semi)
	case r == ':':
		l.emit(Colon)
	case r == '#':
		if l.accept("[") {
			return l.lexAttr
		}
		l.back()
		return l.skipComment
	case r == '/':
		if l.accept("/") {
			return l.skipComment
		}
		l.emit(Slash)
	case r == '-':
		if isDecimal(l.peek()) {
			l.back()
			return l.lexNumber
		}
		if l.accept(">") {
			l.emit(Arrow)
		} else {
			l.emit(Minus)
		}
	case isDecimal(r):
		l.back()
		return l.lexNumber
	case r == '"':
		l.back()
		return l.lexString
	case r == '.':
		if l.accept(".") {
			l.emit(DotDot)
		} else {
			l.emit(Illegal)
			return l.lexEnd
		}
	case r == '=':
		if l.accept("=") {
			l.emit(EqEq)
		} else {
			l.emit(Assign)
		}
	case r == '!':
		if l.accept("=") {
			l.emit(NotEq)
		} else {
			l.emit(Illegal)
			return l.lexEnd
		}
	case r == '<':
		if l.accept("=") {
			l.emit(LtEq)
		} else {
			l.emit(Lt)
		}
	case r == '>':
		if l.accept("=") {
			l.emit(GtEq)
		} else {
			l.emit(Gt)
		}
	case r == '+':
		l.emit(Plus)
	case r == '*':
		l.emit(Star)
	case r == '%':
		l.emit(Percent)
	case isLetter(r):
		l.back()
		return l.lexIdent
	default:
		l.emit(Illegal)
		return l.lexEnd
	}
	return l.lexInit
}

func (l *Lexer) lexIdent() stateFunc {
	l.accum(isAlphanum)
	if _, ok := keywords[string(l.buf)]; ok {
		l.emit(Keyword)
	} else {
		l.emit(Ident)
	}
	return l.lexInit
}

func (l *Lexer) lexNumber() stateFunc {
	l.accept("-")

	digits := "0123456789"
	if l.accept("0") {
		// check for hex and octal
		if l.accept("x") {
			digits = "0123456789abcdefABCDEF"
		} else if l.accept("o") {
			digits = "01234567"
		}
	}
	digits += "_"
	l.acceptRun(digits)
	l.emit(Number)
	return l.lexInit
}

func (l *Lexer) lexString() stateFunc {
	if !l.accept(`"`) {
		panic("not the beginning of a string")
	}
	for {
		r := l.read()
		if r == '\n' || r < 0 {
			return l.errorf("string literal not terminated")
		}
		if r == '"' {
			break
		}
		if r == '\\' {
			l.read()
		}
	}
	l.emit(String)
	return l.lexInit
}

// lexAttr consumes the body of a #[...] attribute. The opening #[ is
// already in the buffer; everything up to the matching ] is kept verbatim
// so the parser can split name and value.
func (l *Lexer) lexAttr() stateFunc {
	for {
		r := l.read()
		if r == eofRune || r == '\n' {
			return l.errorf("attribute not terminated")
		}
		if r == ']' {
			break
		}
	}
	l.emit(Attr)
	return l.lexInit
}

// skipComment advances through a line comment without emitting any tokens.
func (l *Lexer) skipComment() stateFunc {
	l.accum(func(r rune) bool {
		switch r {
		case '\n', eofRune:
			return false
		default:
			return true
		}
	})
	l.ignoreBuf()
	return l.lexInit
}

// lexEnd is the terminal state of the lexer, indicating that it will only return EOF tokens.
func (l *Lexer) lexEnd() stateFunc {
	l.emit(EOF)
	return l.lexEnd
}

func (l *Lexer) accept(valid string) bool {
	if r := l.read(); strings.ContainsRune(valid, r) {
		return true
	} else {
		l.back()
		return false
	}
}

func (l *Lexer) acceptRun(valid string) {
	for l.accept(valid) {
	}
}

func (l *Lexer) ignore() {
	l.buf, _ = pop(l.buf)
	l.bufOffset++
}

func (l *Lexer) ignoreBuf() {
	l.bufOffset += Pos(len(l.buf))
	l.buf = l.buf[:0]
}

func (l *Lexer) accum(fn func(rune) bool) {
	for {
		r := l.read()
		if !fn(r) {
			l.back()
			return
		}
	}
}

// skipWhitespace advances through the whitespace without emitting any tokens.
func (l *Lexer) skipWhitespace() stateFunc {
	for {
		r := l.read()
		if isWhitespace(r) {
			l.ignore()
		} else {
			l.back()
			return l.lexInit
		}
	}
}

func (l *Lexer) errorf(fstr string, args ...any) stateFunc {
	l.err = fmt.Errorf(fstr, args...)
	return l.lexEnd
}

// LocOf converts a rune offset into a line/column location within src.
// Lines and columns are 1-based.
func LocOf(src string, p Pos) diag.Loc {
	line, col := 1, 1
	var i Pos
	for _, r := range src {
		if i >= p {
			break
		}
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
		i++
	}
	return diag.Loc{Line: line, Column: col}
}

func isWhitespace(ch rune) bool {
	return unicode.IsSpace(ch)
}
func isAlphanum(ch rune) bool {
	return isLetter(ch) || isDigit(ch)
}
func isLetter(ch rune) bool {
	return 'a' <= lower(ch) && lower(ch) <= 'z' || ch == '_' || ch >= utf8.RuneSelf && unicode.IsLetter(ch)
}
func isDigit(ch rune) bool {
	return isDecimal(ch) || ch >= utf8.RuneSelf && unicode.IsDigit(ch)
}
func lower(ch rune) rune     { return ('a' - 'A') | ch } // returns lower-case ch iff ch is ASCII letter
func isDecimal(ch rune) bool { return '0' <= ch && ch <= '9' }

func pop[E any, S ~[]E](s S) (S, E) {
	l := len(s)
	return s[:l-1], s[l-1]
}

const eofRune = -1
