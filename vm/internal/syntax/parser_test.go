package syntax

import (
	"errors"
	"strconv"
	"strings"
	"testing"
)

// render prints a node in a compact prefix form for comparisons.
func render(n Node) string {
	var b strings.Builder
	var walk func(Node)
	list := func(ns []Node) {
		for i, e := range ns {
			if i > 0 {
				b.WriteByte(' ')
			}
			walk(e)
		}
	}
	walk = func(n Node) {
		switch n := n.(type) {
		case *IntLit:
			b.WriteString("i:")
			b.WriteString(strconv.FormatInt(n.Value, 10))
		case *FloatLit:
			b.WriteString("f")
		case *StringLit:
			b.WriteString("\"" + n.Value + "\"")
		case *SymbolLit:
			b.WriteString(":" + n.Name)
		case *Ident:
			b.WriteString(n.Name)
		case *Call:
			b.WriteString("(call ")
			walk(n.Fn)
			if len(n.Args) > 0 {
				b.WriteByte(' ')
				list(n.Args)
			}
			b.WriteByte(')')
		case *Index:
			b.WriteString("(ref ")
			walk(n.Target)
			b.WriteByte(' ')
			list(n.Indices)
			b.WriteByte(')')
		case *Field:
			b.WriteString("(. ")
			walk(n.Target)
			b.WriteString(" " + n.Name + ")")
		case *Binary:
			b.WriteString("(" + n.Op + " ")
			walk(n.Left)
			b.WriteByte(' ')
			walk(n.Right)
			b.WriteByte(')')
		case *Unary:
			b.WriteString("(neg ")
			walk(n.Operand)
			b.WriteByte(')')
		case *VectorLit:
			if n.Vcat {
				b.WriteString("(vcat")
			} else {
				b.WriteString("(vect")
			}
			if len(n.Elems) > 0 {
				b.WriteByte(' ')
				list(n.Elems)
			}
			b.WriteByte(')')
		case *TupleLit:
			b.WriteString("(tuple")
			if len(n.Elems) > 0 {
				b.WriteByte(' ')
				list(n.Elems)
			}
			b.WriteByte(')')
		case *Assign:
			if n.Const {
				b.WriteString("(const ")
			} else {
				b.WriteString("(= ")
			}
			walk(n.Target)
			b.WriteByte(' ')
			walk(n.Value)
			b.WriteByte(')')
		case *FuncDef:
			b.WriteString("(function " + n.Name + " [" + strings.Join(n.Params, " ") + "] ")
			walk(n.Body)
			b.WriteByte(')')
		}
	}
	walk(n)
	return b.String()
}

func TestParse(t *testing.T) {
	tests := []struct {
		src  string
		want []string
	}{
		{"sin(2.34)", []string{"(call sin f)"}},
		{"1.3 + 2", []string{"(+ f i:2)"}},
		{"1 + 2 * 3", []string{"(+ i:1 (* i:2 i:3))"}},
		{"2 ^ 3 ^ 2", []string{"(^ i:2 (^ i:3 i:2))"}},
		{"-2^2", []string{"(neg (^ i:2 i:2))"}},
		{"a - b - c", []string{"(- (- a b) c)"}},
		{"A \\ b", []string{"(\\ A b)"}},
		{"x == 1 + 1", []string{"(== x (+ i:1 i:1))"}},
		{"[1, 2, 3]", []string{"(vect i:1 i:2 i:3)"}},
		{"[sqrt(2.0); sqrt(4.0)]", []string{"(vcat (call sqrt f) (call sqrt f))"}},
		{"[]", []string{"(vect)"}},
		{"(1, 2)", []string{"(tuple i:1 i:2)"}},
		{"(1,)", []string{"(tuple i:1)"}},
		{"(1 + 2) * 3", []string{"(* (+ i:1 i:2) i:3)"}},
		{"const REFS = IdDict()", []string{"(const REFS (call IdDict))"}},
		{"setindex!", []string{"setindex!"}},
		{"\\", []string{"\\"}},
		{"(\\)", []string{"\\"}},
		{"reduce(+, xs)", []string{"(call reduce + xs)"}},
		{"a[1, 2] = 5", []string{"(= (ref a i:1 i:2) i:5)"}},
		{"Base.sin(x)", []string{"(call (. Base sin) x)"}},
		{"w.value", []string{"(. w value)"}},
		{"f(x, y) = x * y", []string{"(function f [x y] (* x y))"}},
		{"x = 1; y = 2", []string{"(= x i:1)", "(= y i:2)"}},
		{"x = 1 # comment\n\ny = [1,\n 2]", []string{"(= x i:1)", "(= y (vect i:1 i:2))"}},
		{"x != y", []string{"(!= x y)"}},
		{"getfield(w, :value)", []string{"(call getfield w :value)"}},
		{"\"a\\nb\"", []string{"\"a\nb\""}},
		{"GC.gc()", []string{"(call (. GC gc))"}},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			prog, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.src, err)
			}
			if len(prog.Stmts) != len(tt.want) {
				t.Fatalf("got %d statements, want %d", len(prog.Stmts), len(tt.want))
			}
			for i, s := range prog.Stmts {
				if got := render(s); got != tt.want[i] {
					t.Errorf("stmt %d = %s, want %s", i, got, tt.want[i])
				}
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 +", "unexpected end of input"},
		{"f(1, 2", "expected \")\""},
		{"\"open", "unterminated string"},
		{"[1, 2; 3]", "cannot mix"},
		{"const x", "expected assignment"},
		{"1 = 2", "invalid assignment target"},
		{"f(1) = 2", "parameters must be names"},
		{"x = 99999999999999999999", "out of range"},
		{"x = @", "unexpected character"},
		{"a b", "unexpected"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := Parse(tt.src)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded", tt.src)
			}
			var serr *Error
			if !errors.As(err, &serr) {
				t.Fatalf("error %T is not *Error", err)
			}
			if !strings.Contains(serr.Msg, tt.want) {
				t.Errorf("message %q does not contain %q", serr.Msg, tt.want)
			}
		})
	}
}

func TestErrorPosition(t *testing.T) {
	_, err := Parse("x = 1\ny = (2 +")
	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if serr.Line != 2 {
		t.Errorf("Line = %d, want 2", serr.Line)
	}
	if !strings.Contains(serr.Error(), "line 2") {
		t.Errorf("Error() = %q", serr.Error())
	}
}

func TestLexBangIdentifiers(t *testing.T) {
	toks, err := Lex("reverse!(a) != push!")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, tok := range toks {
		if tok.Kind == Name || tok.Kind == Op {
			names = append(names, tok.Text)
		}
	}
	want := "reverse! a != push!"
	if got := strings.Join(names, " "); got != want {
		t.Errorf("tokens = %q, want %q", got, want)
	}
}
