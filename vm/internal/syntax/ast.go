package syntax

// Node is any expression or statement.
type Node interface {
	Pos() int
}

type (
	IntLit struct {
		At    int
		Value int64
	}

	FloatLit struct {
		At    int
		Value float64
	}

	StringLit struct {
		At    int
		Value string
	}

	// SymbolLit is a quoted symbol, :name.
	SymbolLit struct {
		At   int
		Name string
	}

	// Ident names a binding. Bare operators used as values are Idents too.
	Ident struct {
		At   int
		Name string
	}

	Call struct {
		At   int
		Fn   Node
		Args []Node
	}

	Index struct {
		At      int
		Target  Node
		Indices []Node
	}

	// Field is a dotted access, Module.name or value.field.
	Field struct {
		At     int
		Target Node
		Name   string
	}

	Binary struct {
		At    int
		Op    string
		Left  Node
		Right Node
	}

	Unary struct {
		At      int
		Op      string
		Operand Node
	}

	// VectorLit is [a, b] or, with Vcat set, [a; b].
	VectorLit struct {
		At    int
		Elems []Node
		Vcat  bool
	}

	TupleLit struct {
		At    int
		Elems []Node
	}

	// Assign binds Target, an Ident, Index or Field, to Value.
	Assign struct {
		At     int
		Target Node
		Value  Node
		Const  bool
	}

	// FuncDef is the short form f(x, y) = body.
	FuncDef struct {
		At     int
		Name   string
		Params []string
		Body   Node
	}

	Program struct {
		Stmts []Node
	}
)

func (n *IntLit) Pos() int    { return n.At }
func (n *FloatLit) Pos() int  { return n.At }
func (n *StringLit) Pos() int { return n.At }
func (n *SymbolLit) Pos() int { return n.At }
func (n *Ident) Pos() int     { return n.At }
func (n *Call) Pos() int      { return n.At }
func (n *Index) Pos() int     { return n.At }
func (n *Field) Pos() int     { return n.At }
func (n *Binary) Pos() int    { return n.At }
func (n *Unary) Pos() int     { return n.At }
func (n *VectorLit) Pos() int { return n.At }
func (n *TupleLit) Pos() int  { return n.At }
func (n *Assign) Pos() int    { return n.At }
func (n *FuncDef) Pos() int   { return n.At }
func (n *Program) Pos() int   { return 0 }
