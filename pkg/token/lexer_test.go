package token

import "testing"

func collect(src string) []Token {
	l := NewLexer(src)
	var toks []Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Kind == Eof {
			return toks
		}
	}
}

func TestLexerRegistersAndOpcodes(t *testing.T) {
	toks := collect("mov r0, 5\n")
	want := []Kind{Mov, Register, Comma, Integer, Eol, Eof}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(want), toks)
	}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d: got %s, want %s", i, toks[i].Kind, k)
		}
	}
	if toks[1].Num != 0 {
		t.Errorf("r0 register id = %d, want 0", toks[1].Num)
	}
	if toks[3].Num != 5 {
		t.Errorf("integer value = %d, want 5", toks[3].Num)
	}
}

func TestLexerCaseInsensitiveKeywords(t *testing.T) {
	for _, src := range []string{"MOV", "Mov", "mOv"} {
		toks := collect(src)
		if toks[0].Kind != Mov {
			t.Errorf("%q: got kind %s, want Mov", src, toks[0].Kind)
		}
	}
}

func TestLexerCmpIsBinaryOp(t *testing.T) {
	toks := collect("cmp r1, r2\n")
	if toks[0].Kind != BinaryOp || toks[0].Num != 13 {
		t.Errorf("cmp: got %v, want BinaryOp/13", toks[0])
	}
}

func TestLexerJumpModes(t *testing.T) {
	cases := map[string]uint8{
		"jmp": 0b000,
		"jz":  0b010,
		"jnz": 0b110,
		"jn":  0b001,
		"jnn": 0b101,
		"jp":  0b011,
		"jnp": 0b111,
		"je":  0b010,
		"jne": 0b110,
		"jl":  0b001,
		"jge": 0b101,
		"jg":  0b011,
		"jle": 0b111,
	}
	for mnemonic, want := range cases {
		toks := collect(mnemonic)
		if toks[0].Kind != Jump {
			t.Fatalf("%s: got kind %s, want Jump", mnemonic, toks[0].Kind)
		}
		if toks[0].Mode != want {
			t.Errorf("%s: mode = %03b, want %03b", mnemonic, toks[0].Mode, want)
		}
	}
}

func TestLexerLabelPreservesCase(t *testing.T) {
	toks := collect("Loop_1:\n")
	if toks[0].Kind != Label || toks[0].Text != "Loop_1" {
		t.Errorf("got %v, want Label %q", toks[0], "Loop_1")
	}
	if toks[1].Kind != Colon {
		t.Errorf("got %s, want Colon", toks[1].Kind)
	}
}

func TestLexerComment(t *testing.T) {
	toks := collect("mov r0, 1 ; set r0 to one\nret\n")
	var kinds []Kind
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	want := []Kind{Mov, Register, Comma, Integer, Eol, Ret, Eol, Eof}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
	for i, k := range want {
		if kinds[i] != k {
			t.Errorf("token %d: got %s, want %s", i, kinds[i], k)
		}
	}
}

func TestLexerRowTracking(t *testing.T) {
	toks := collect("ret\nret\n\nret\n")
	var rets []Token
	for _, tok := range toks {
		if tok.Kind == Ret {
			rets = append(rets, tok)
		}
	}
	if len(rets) != 3 {
		t.Fatalf("got %d ret tokens, want 3", len(rets))
	}
	wantRows := []int{1, 2, 4}
	for i, tok := range rets {
		if tok.Row != wantRows[i] {
			t.Errorf("ret %d: row = %d, want %d", i, tok.Row, wantRows[i])
		}
	}
}

func TestLexerNegativeSign(t *testing.T) {
	toks := collect("mov r0, -1\n")
	want := []Kind{Mov, Register, Comma, Minus, Integer, Eol, Eof}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d: got %s, want %s", i, toks[i].Kind, k)
		}
	}
}

func TestLexerBracketsAndSize(t *testing.T) {
	toks := collect("mov r0, byte [r1+4]\n")
	want := []Kind{Mov, Register, Comma, Size, LBracket, Register, Plus, Integer, RBracket, Eol, Eof}
	for i, k := range want {
		if i >= len(toks) {
			t.Fatalf("ran out of tokens at %d, want %s", i, k)
		}
		if toks[i].Kind != k {
			t.Errorf("token %d: got %s, want %s", i, toks[i].Kind, k)
		}
	}
}

func TestLexerUnknownToken(t *testing.T) {
	toks := collect("$$$\n")
	if toks[0].Kind != Unknown || toks[0].Text != "$$$" {
		t.Errorf("got %v, want Unknown %q", toks[0], "$$$")
	}
}

func TestLexerEmptySourceYieldsEof(t *testing.T) {
	toks := collect("")
	if len(toks) != 1 || toks[0].Kind != Eof {
		t.Errorf("got %v, want single Eof", toks)
	}
}
