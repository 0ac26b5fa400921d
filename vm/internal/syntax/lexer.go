package syntax

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenKind classifies a token.
type TokenKind int

const (
	EOF TokenKind = iota
	Newline
	Semi
	Comma
	LParen
	RParen
	LBracket
	RBracket
	Int
	Float
	String
	Symbol
	Name
	Op
	Dot
	Const
)

var kindNames = [...]string{
	EOF:      "end of input",
	Newline:  "newline",
	Semi:     "\";\"",
	Comma:    "\",\"",
	LParen:   "\"(\"",
	RParen:   "\")\"",
	LBracket: "\"[\"",
	RBracket: "\"]\"",
	Int:      "integer",
	Float:    "float",
	String:   "string",
	Symbol:   "symbol",
	Name:     "identifier",
	Op:       "operator",
	Dot:      "\".\"",
	Const:    "const",
}

func (k TokenKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// Token is one lexeme. Text holds the decoded value for strings and symbols.
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
}

// Error is a lexing or parsing failure.
type Error struct {
	Msg  string
	Pos  int
	Line int
	Col  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at line %d, column %d", e.Msg, e.Line, e.Col)
}

func newError(src string, pos int, format string, args ...any) *Error {
	if pos > len(src) {
		pos = len(src)
	}
	line := 1 + strings.Count(src[:pos], "\n")
	col := pos - strings.LastIndexByte(src[:pos], '\n')
	return &Error{Msg: fmt.Sprintf(format, args...), Pos: pos, Line: line, Col: col}
}

// two-character operators, checked before single characters
var ops2 = []string{"==", "!=", "<=", ">="}

const ops1 = "+-*/\\^<>="

// Lex splits src into tokens. Newlines inside parentheses and brackets are
// dropped so expressions may span lines there.
func Lex(src string) ([]Token, error) {
	var (
		toks  []Token
		depth int
		i     int
	)

	emit := func(kind TokenKind, text string, pos int) {
		toks = append(toks, Token{Kind: kind, Text: text, Pos: pos})
	}

	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '\n':
			if depth == 0 {
				emit(Newline, "\n", i)
			}
			i++
		case c == ';':
			emit(Semi, ";", i)
			i++
		case c == ',':
			emit(Comma, ",", i)
			i++
		case c == '(':
			depth++
			emit(LParen, "(", i)
			i++
		case c == ')':
			depth--
			emit(RParen, ")", i)
			i++
		case c == '[':
			depth++
			emit(LBracket, "[", i)
			i++
		case c == ']':
			depth--
			emit(RBracket, "]", i)
			i++
		case c == '"':
			s, n, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			emit(String, s, i)
			i += n
		case c == ':':
			start := i
			i++
			r, _ := utf8.DecodeRuneInString(src[i:])
			if i >= len(src) || !isIdentStart(r) {
				return nil, newError(src, start, "unexpected \":\"")
			}
			name, n := lexIdent(src, i)
			emit(Symbol, name, start)
			i += n
		case c >= '0' && c <= '9' || c == '.' && i+1 < len(src) && isDigit(src[i+1]) && !afterOperand(toks):
			kind, n := lexNumber(src, i)
			emit(kind, src[i:i+n], i)
			i += n
		case c == '.':
			emit(Dot, ".", i)
			i++
		default:
			if op, ok := matchOp(src[i:]); ok {
				emit(Op, op, i)
				i += len(op)
				continue
			}
			r, _ := utf8.DecodeRuneInString(src[i:])
			if !isIdentStart(r) {
				return nil, newError(src, i, "unexpected character %q", r)
			}
			name, n := lexIdent(src, i)
			if name == "const" {
				emit(Const, name, i)
			} else {
				emit(Name, name, i)
			}
			i += n
		}
	}
	emit(EOF, "", len(src))
	return toks, nil
}

func matchOp(s string) (string, bool) {
	for _, op := range ops2 {
		if strings.HasPrefix(s, op) {
			return op, true
		}
	}
	if len(s) > 0 && strings.IndexByte(ops1, s[0]) >= 0 {
		return s[:1], true
	}
	return "", false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

// afterOperand reports whether a "." at this point is field access rather
// than the start of a number such as .5.
func afterOperand(toks []Token) bool {
	if len(toks) == 0 {
		return false
	}
	switch toks[len(toks)-1].Kind {
	case Name, RParen, RBracket, Int, Float, String:
		return true
	}
	return false
}

// lexIdent reads an identifier. A trailing ! belongs to the name unless it
// starts a != operator.
func lexIdent(src string, i int) (string, int) {
	start := i
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		i += size
	}
	for i < len(src) && src[i] == '!' && (i+1 >= len(src) || src[i+1] != '=') {
		i++
	}
	return src[start:i], i - start
}

func lexNumber(src string, i int) (TokenKind, int) {
	start := i
	kind := Int
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	if i < len(src) && src[i] == '.' && !(i+1 < len(src) && isIdentStart(rune(src[i+1]))) {
		kind = Float
		i++
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			kind = Float
			i = j
			for i < len(src) && isDigit(src[i]) {
				i++
			}
		}
	}
	return kind, i - start
}

func lexString(src string, i int) (string, int, error) {
	start := i
	i++
	var b strings.Builder
	for {
		if i >= len(src) {
			return "", 0, newError(src, start, "unterminated string literal")
		}
		c := src[i]
		switch c {
		case '"':
			return b.String(), i + 1 - start, nil
		case '\\':
			if i+1 >= len(src) {
				return "", 0, newError(src, start, "unterminated string literal")
			}
			switch e := src[i+1]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			case '\\', '"', '$':
				b.WriteByte(e)
			default:
				return "", 0, newError(src, i, "invalid escape sequence \\%c", e)
			}
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
}

// ParseInt converts an Int token, reporting overflow.
func ParseInt(text string) (int64, error) {
	return strconv.ParseInt(text, 10, 64)
}

// ParseFloat converts a Float token.
func ParseFloat(text string) (float64, error) {
	return strconv.ParseFloat(text, 64)
}
