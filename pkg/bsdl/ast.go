package bsdl

import "strings"

// File is a parsed BSDL file: a single entity.
type File struct {
	Entity *Entity `@@`
}

// Entity is `entity NAME is ... end NAME;`.
type Entity struct {
	Name     string     `KwEntity @Ident KwIs`
	Generics []*Generic `( KwGeneric LParen @@ ( Semicolon @@ )* RParen Semicolon )?`
	Ports    []*Port    `( KwPort LParen @@ ( Semicolon @@ )* Semicolon? RParen Semicolon )?`
	Decls    []*Decl    `@@*`
	EndName  string     `KwEnd KwEntity? @Ident? Semicolon`
}

// Generic is one generic parameter, e.g. PHYSICAL_PIN_MAP : string := "TQFP".
type Generic struct {
	Name    string `@Ident`
	Type    string `Colon @( Ident | KwString | KwInteger | KwReal | KwBoolean )`
	Default *Expr  `( Assign @@ )?`
}

// Port declares one or more signals sharing a mode and type.
type Port struct {
	Names []string `@Ident ( Comma @Ident )*`
	Mode  string   `Colon @( KwIn | KwOut | KwInout | KwBuffer | KwLinkage )`
	Type  string   `@( KwBit | KwBitVector )`
	Range *Range   `@@?`
}

// Range is a bit_vector index range, (1 to 4) or (7 downto 0).
type Range struct {
	From      int    `LParen @Integer`
	Direction string `@Ident`
	To        int    `@Integer RParen`
}

// Decl is an entity-level declaration.
type Decl struct {
	Use       *Use       `  @@`
	Constant  *Constant  `| @@`
	Attribute *Attribute `| @@`
}

// Use is `use STD_1149_1_2001.all;`.
type Use struct {
	Package string `KwUse @Ident`
	Item    string `Dot @( Ident | KwAll ) Semicolon`
}

// Constant is a named constant, typically a PIN_MAP_STRING.
type Constant struct {
	Name  string `KwConstant @Ident`
	Type  string `Colon @Ident`
	Value *Expr  `Assign @@ Semicolon`
}

// Attribute is `attribute NAME of TARGET : CLASS is VALUE;`.
type Attribute struct {
	Name  string `KwAttribute @Ident`
	Of    string `KwOf @Ident`
	Class string `Colon @( Ident | KwEntity | KwConstant )`
	Value *Expr  `KwIs @@ Semicolon`
}

// Expr is one term or a string concatenation.
type Expr struct {
	Terms []*Term `@@ ( Concat @@ )*`
}

// Term is a single value.
type Term struct {
	String  *string  `  @String`
	Real    *float64 `| @Real`
	Integer *int     `| @Integer`
	Ident   *string  `| @Ident`
	Tuple   []*Expr  `| LParen @@ ( Comma @@ )* RParen`
	Bool    *bool    `| ( @KwTrue | KwFalse )`
}

// Text joins the string literals of e without their quotes.
func (e *Expr) Text() string {
	if e == nil {
		return ""
	}
	var sb strings.Builder
	for _, t := range e.Terms {
		if t.String != nil {
			sb.WriteString(strings.Trim(*t.String, `"`))
		}
	}
	return sb.String()
}

// Int returns the value of a lone integer term.
func (e *Expr) Int() (int, bool) {
	if e == nil || len(e.Terms) != 1 || e.Terms[0].Integer == nil {
		return 0, false
	}
	return *e.Terms[0].Integer, true
}

// Attributes returns the attribute specifications in declaration order.
func (e *Entity) Attributes() []*Attribute {
	var out []*Attribute
	for _, d := range e.Decls {
		if d.Attribute != nil {
			out = append(out, d.Attribute)
		}
	}
	return out
}

// Attribute returns the first attribute with the given name, ignoring case.
func (e *Entity) Attribute(name string) *Attribute {
	for _, a := range e.Attributes() {
		if strings.EqualFold(a.Name, name) {
			return a
		}
	}
	return nil
}
