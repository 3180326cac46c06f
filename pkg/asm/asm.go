// Package asm translates RASM source into a flat bytecode image in a single
// pass, resolving forward label references by patching earlier-emitted
// fixups in place once the label's address becomes known.
package asm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"rasmvm/pkg/token"
)

const (
	opAdd  = 0
	opSub  = 1
	opAnd  = 2
	opOr   = 3
	opXor  = 4
	opNot  = 5
	opMov  = 6
	opPush = 7
	opPop  = 8
	opJmp  = 9
	opCall = 10
	opRet  = 11
	opInt  = 12
	opCmp  = 13
	opTest = 14
)

// Diagnostics accumulates the messages produced by a Translate call. A
// non-empty Diagnostics means the translation's bytecode was discarded.
type Diagnostics []string

// HasErrors reports whether any diagnostic was recorded.
func (d Diagnostics) HasErrors() bool { return len(d) > 0 }

// String renders the diagnostics in the "Errors: N" / numbered-list format.
func (d Diagnostics) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Errors: %d\n", len(d))
	for i, msg := range d {
		fmt.Fprintf(&b, "[%6d] %s\n", i+1, msg)
	}
	return b.String()
}

type fixup struct {
	label string
	at    int
	row   int
}

// Assembler translates a single RASM source string. It is single-use: call
// Translate once per Assembler.
type Assembler struct {
	lex        *token.Lexer
	buf        []byte
	ip         uint64
	labels     map[string]uint64
	unresolved []fixup
	diags      Diagnostics
}

// NewAssembler returns an Assembler ready to translate src.
func NewAssembler(src string) *Assembler {
	return &Assembler{
		lex:    token.NewLexer(src),
		labels: make(map[string]uint64),
	}
}

// Assemble translates src and returns its bytecode, or nil and the
// diagnostics that were logged along the way.
func Assemble(src string) ([]byte, Diagnostics) {
	return NewAssembler(src).Translate()
}

// Translate scans src line by line, dispatching each line to its opcode
// handler and patching label fixups in place as labels are defined. Any
// label still unresolved at end of file is reported as a diagnostic. If any
// diagnostic was logged, the bytecode is discarded and nil is returned.
func (a *Assembler) Translate() ([]byte, Diagnostics) {
	for {
		toks, eof := a.readLine()
		if len(toks) > 0 {
			c := &cursor{toks: toks, row: toks[0].Row}
			a.handleLine(c)
		}
		if eof {
			break
		}
	}
	for _, fx := range a.unresolved {
		a.errorf(fx.row, "label '%s' is never defined", fx.label)
	}
	if a.diags.HasErrors() {
		return nil, a.diags
	}
	return a.buf, a.diags
}

func (a *Assembler) readLine() (line []token.Token, eof bool) {
	for {
		tok := a.lex.Next()
		switch tok.Kind {
		case token.Eol:
			return line, false
		case token.Eof:
			return line, true
		default:
			line = append(line, tok)
		}
	}
}

func (a *Assembler) errorf(row int, format string, args ...any) {
	a.diags = append(a.diags, fmt.Sprintf("at row %d %s", row, fmt.Sprintf(format, args...)))
}

func (a *Assembler) emit(bs ...byte) {
	a.buf = append(a.buf, bs...)
	a.ip += uint64(len(bs))
}

func (a *Assembler) emit8(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	a.emit(b[:]...)
}

// emitLabelRef appends the 8-byte address of name, resolving it immediately
// if already defined or recording a fixup to patch in later.
func (a *Assembler) emitLabelRef(name string, row int) {
	if ip, ok := a.labels[name]; ok {
		a.emit8(ip)
		return
	}
	a.unresolved = append(a.unresolved, fixup{label: name, at: len(a.buf), row: row})
	a.emit8(0)
}

func (a *Assembler) defineLabel(name string, row int) {
	if _, exists := a.labels[name]; exists {
		a.errorf(row, "label '%s' was redefined", name)
	}
	a.labels[name] = a.ip
	a.resolveLabel(name)
}

func (a *Assembler) resolveLabel(name string) {
	ip := a.labels[name]
	remaining := a.unresolved[:0]
	for _, fx := range a.unresolved {
		if fx.label == name {
			binary.BigEndian.PutUint64(a.buf[fx.at:fx.at+8], ip)
		} else {
			remaining = append(remaining, fx)
		}
	}
	a.unresolved = remaining
}

// cursor walks the tokens of a single line. All tokens on a line share the
// same Row, since the lexer only advances rows on Eol.
type cursor struct {
	toks []token.Token
	pos  int
	row  int
}

func (c *cursor) peekKind() token.Kind {
	if c.pos >= len(c.toks) {
		return token.Eol
	}
	return c.toks[c.pos].Kind
}

func (c *cursor) next() token.Token {
	if c.pos >= len(c.toks) {
		return token.Token{Kind: token.Eol, Row: c.row}
	}
	t := c.toks[c.pos]
	c.pos++
	return t
}

func (c *cursor) atEnd() bool { return c.pos >= len(c.toks) }

func (a *Assembler) expect(c *cursor, k token.Kind) bool {
	if c.peekKind() != k {
		a.errorf(c.row, "expected %s", k)
		return false
	}
	c.next()
	return true
}

func (a *Assembler) expectRegister(c *cursor) (uint64, bool) {
	if c.peekKind() != token.Register {
		a.errorf(c.row, "expected register")
		return 0, false
	}
	return c.next().Num, true
}

func (a *Assembler) expectInteger(c *cursor) (uint64, bool) {
	if c.peekKind() != token.Integer {
		a.errorf(c.row, "expected integer")
		return 0, false
	}
	return c.next().Num, true
}

func (a *Assembler) expectSize(c *cursor) (uint64, bool) {
	if c.peekKind() != token.Size {
		a.errorf(c.row, "expected size")
		return 0, false
	}
	return c.next().Num, true
}

func (a *Assembler) expectLabel(c *cursor) (token.Token, bool) {
	if c.peekKind() != token.Label {
		a.errorf(c.row, "expected label")
		return token.Token{}, false
	}
	return c.next(), true
}

func (a *Assembler) expectEnd(c *cursor) bool {
	if !c.atEnd() {
		a.errorf(c.row, "unexpected trailing tokens")
		return false
	}
	return true
}

// parseMemOperand parses "[ reg (+|- int)? ]" and returns the base register
// id and the offset. A negative offset is encoded by negateInt with bit 63
// set and the magnitude in the low bits (spec.md §4.2's "Signed immediates").
func (a *Assembler) parseMemOperand(c *cursor) (base uint64, offset uint64, ok bool) {
	if !a.expect(c, token.LBracket) {
		return 0, 0, false
	}
	base, ok = a.expectRegister(c)
	if !ok {
		return 0, 0, false
	}
	switch c.peekKind() {
	case token.Plus, token.Minus:
		neg := c.peekKind() == token.Minus
		c.next()
		v, ok2 := a.expectInteger(c)
		if !ok2 {
			return 0, 0, false
		}
		offset = v
		if neg {
			offset = negateInt(offset)
		}
	}
	if !a.expect(c, token.RBracket) {
		return 0, 0, false
	}
	return base, offset, true
}

// negateInt returns the wire encoding of a negative literal magnitude parsed
// from source (e.g. the 4 in "-4"): bit 63 set, with the magnitude left in
// the low bits (spec.md §4.2's "Signed immediates"). This is not
// two's-complement: the VM loads or adds the raw 64-bit pattern verbatim, so
// a negative offset added to a base register wraps modulo 2^64 rather than
// subtracting the magnitude.
func negateInt(magnitude uint64) uint64 {
	return magnitude | (uint64(1) << 63)
}

func (a *Assembler) handleLine(c *cursor) {
	for c.peekKind() == token.Label && c.pos+1 < len(c.toks) && c.toks[c.pos+1].Kind == token.Colon {
		name := c.toks[c.pos].Text
		row := c.toks[c.pos].Row
		c.pos += 2
		a.defineLabel(name, row)
	}
	if c.atEnd() {
		return
	}
	op := c.next()
	switch op.Kind {
	case token.BinaryOp:
		a.handleArithmetic(c, op)
	case token.Jump:
		a.handleJump(c, op)
	case token.Call:
		a.handleCall(c, op)
	case token.Mov:
		a.handleMov(c, op)
	case token.Ret:
		a.emit(opRet)
		a.expectEnd(c)
	case token.Int:
		a.handleInt(c, op)
	case token.Test:
		a.handleTest(c)
	case token.Push:
		a.handlePushPop(c, opPush)
	case token.Pop:
		a.handlePushPop(c, opPop)
	default:
		a.errorf(op.Row, "unexpected token %s", op.Kind)
	}
}

func (a *Assembler) handleArithmetic(c *cursor, op token.Token) {
	dst, ok := a.expectRegister(c)
	if !ok {
		return
	}
	if !a.expect(c, token.Comma) {
		return
	}
	src, ok := a.expectRegister(c)
	if !ok {
		return
	}
	if !a.expectEnd(c) {
		return
	}
	a.emit(byte(op.Num), byte(dst<<4|src))
}

func (a *Assembler) handleJump(c *cursor, op token.Token) {
	a.emit(opJmp, op.Mode<<5)
	lbl, ok := a.expectLabel(c)
	if !ok {
		return
	}
	if !a.expectEnd(c) {
		return
	}
	a.emitLabelRef(lbl.Text, op.Row)
}

func (a *Assembler) handleCall(c *cursor, op token.Token) {
	a.emit(opCall)
	lbl, ok := a.expectLabel(c)
	if !ok {
		return
	}
	if !a.expectEnd(c) {
		return
	}
	a.emitLabelRef(lbl.Text, op.Row)
}

func (a *Assembler) handleInt(c *cursor, op token.Token) {
	n, ok := a.expectInteger(c)
	if !ok {
		return
	}
	if n > 0xFF {
		a.errorf(op.Row, "interrupt id out of range")
		return
	}
	if !a.expectEnd(c) {
		return
	}
	a.emit(opInt, byte(n))
}

func (a *Assembler) handleTest(c *cursor) {
	reg, ok := a.expectRegister(c)
	if !ok {
		return
	}
	if !a.expectEnd(c) {
		return
	}
	a.emit(opTest, byte(reg<<4))
}

// handlePushPop parses "push SIZE REG" / "pop SIZE REG" (spec.md §4.2's
// grammar: unlike Mov and the arithmetic group, there is no comma between
// operands here).
func (a *Assembler) handlePushPop(c *cursor, opcode byte) {
	size, ok := a.expectSize(c)
	if !ok {
		return
	}
	reg, ok := a.expectRegister(c)
	if !ok {
		return
	}
	if !a.expectEnd(c) {
		return
	}
	a.emit(opcode, byte(reg<<4|size<<2))
}

// handleMov implements all four Mov addressing modes (spec.md §6):
//
//	mov reg, int             -> mode 00, load immediate
//	mov reg, reg             -> mode 01, register copy
//	mov reg, size [reg+off]  -> mode 10, load from memory
//	mov size [reg+off], reg  -> mode 11, store to memory
func (a *Assembler) handleMov(c *cursor, op token.Token) {
	switch c.peekKind() {
	case token.Register:
		dst, _ := a.expectRegister(c)
		if !a.expect(c, token.Comma) {
			return
		}
		switch c.peekKind() {
		case token.Minus:
			c.next()
			imm, ok := a.expectInteger(c)
			if !ok {
				return
			}
			if !a.expectEnd(c) {
				return
			}
			a.emit(opMov, byte(dst))
			a.emit8(negateInt(imm))
		case token.Integer:
			imm, _ := a.expectInteger(c)
			if !a.expectEnd(c) {
				return
			}
			a.emit(opMov, byte(dst))
			a.emit8(imm)
		case token.Register:
			src, _ := a.expectRegister(c)
			if !a.expectEnd(c) {
				return
			}
			a.emit(opMov, byte(0x40|dst), byte(src<<4))
		case token.Size:
			size, _ := a.expectSize(c)
			base, offset, ok := a.parseMemOperand(c)
			if !ok {
				return
			}
			if !a.expectEnd(c) {
				return
			}
			a.emit(opMov, byte(0x80|dst|size<<4), byte(base<<4))
			a.emit8(offset)
		default:
			a.errorf(op.Row, "expected integer, register, or size after ','")
		}
	case token.Size:
		size, _ := a.expectSize(c)
		base, offset, ok := a.parseMemOperand(c)
		if !ok {
			return
		}
		if !a.expect(c, token.Comma) {
			return
		}
		src, ok := a.expectRegister(c)
		if !ok {
			return
		}
		if !a.expectEnd(c) {
			return
		}
		a.emit(opMov, byte(0xC0|base|size<<4), byte(src<<4))
		a.emit8(offset)
	default:
		a.errorf(op.Row, "expected register or size after mov")
	}
}
