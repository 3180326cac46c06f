// Package token defines the lexical vocabulary of the RASM assembly dialect.
package token

import "fmt"

// Kind identifies the category of a lexed Token.
type Kind int

const (
	Size Kind = iota
	BinaryOp
	Mov
	Push
	Pop
	Jump
	Ret
	Test
	Call
	Int
	Integer
	Label
	Register
	Comma
	Plus
	Minus
	LBracket
	RBracket
	Colon
	Eol
	Eof
	Unknown
)

var kindNames = [...]string{
	Size:     "Size",
	BinaryOp: "BinaryOp",
	Mov:      "Mov",
	Push:     "Push",
	Pop:      "Pop",
	Jump:     "Jump",
	Ret:      "Ret",
	Test:     "Test",
	Call:     "Call",
	Int:      "Int",
	Integer:  "Integer",
	Label:    "Label",
	Register: "Register",
	Comma:    "Comma",
	Plus:     "Plus",
	Minus:    "Minus",
	LBracket: "LBracket",
	RBracket: "RBracket",
	Colon:    "Colon",
	Eol:      "Eol",
	Eof:      "Eof",
	Unknown:  "Unknown",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token is a single lexical unit produced by the Lexer.
//
// Which of Text/Num/Mode carries meaningful data depends on Kind:
//
//	Label, Unknown   -> Text (the raw lexeme)
//	Integer          -> Num  (the parsed value)
//	Register         -> Num  (register id 0..12)
//	BinaryOp         -> Num  (opcode byte, including Cmp's 13)
//	Mov, Push, Pop,
//	Call, Ret, Int,
//	Test             -> Num  (fixed opcode byte for the mnemonic)
//	Size             -> Num  (MemSize tag 0..3)
//	Jump             -> Mode (3-bit code: bit 2 = negate, bits 1:0 = mode)
type Token struct {
	Kind Kind
	Row  int
	Text string
	Num  uint64
	Mode uint8
}

func (t Token) String() string {
	return fmt.Sprintf("%-8s row %d %q %d", t.Kind, t.Row, t.Text, t.Num)
}
