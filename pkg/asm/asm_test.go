package asm

import (
	"encoding/binary"
	"testing"
)

func TestAssembleMinimalHalt(t *testing.T) {
	code, diags := Assemble("int 3\n")
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	want := []byte{opInt, 3}
	if string(code) != string(want) {
		t.Errorf("got % x, want % x", code, want)
	}
}

func TestAssemblePrintAByte(t *testing.T) {
	code, diags := Assemble("mov ir, 65\nint 0\nint 3\n")
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	var want []byte
	want = append(want, opMov, 8) // ir is register id 8, mode 00
	imm := make([]byte, 8)
	binary.BigEndian.PutUint64(imm, 65)
	want = append(want, imm...)
	want = append(want, opInt, 0)
	want = append(want, opInt, 3)
	if string(code) != string(want) {
		t.Errorf("got % x, want % x", code, want)
	}
}

func TestAssembleForwardReference(t *testing.T) {
	src := "jmp done\nmov r0, 1\ndone:\nint 3\n"
	code, diags := Assemble(src)
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	// jmp(2) + addr(8) + mov(2) + imm(8) + int(2) = 22
	if len(code) != 22 {
		t.Fatalf("got %d bytes, want 22: % x", len(code), code)
	}
	// "done" labels int 3, which starts after jmp(10) + mov(10) = offset 20.
	target := binary.BigEndian.Uint64(code[2:10])
	if target != 20 {
		t.Errorf("patched jump target = %d, want 20", target)
	}
}

func TestAssembleLabelRedefinition(t *testing.T) {
	code, diags := Assemble("loop:\nloop:\nret\n")
	if !diags.HasErrors() {
		t.Fatalf("expected diagnostics, got none")
	}
	if code != nil {
		t.Errorf("expected discarded bytecode, got % x", code)
	}
	found := false
	for _, msg := range diags {
		if msg == "at row 2 label 'loop' was redefined" {
			found = true
		}
	}
	if !found {
		t.Errorf("diagnostics missing redefinition message: %v", diags)
	}
}

func TestAssembleUnresolvedLabelAtEOF(t *testing.T) {
	code, diags := Assemble("jmp nowhere\n")
	if !diags.HasErrors() {
		t.Fatalf("expected diagnostics, got none")
	}
	if code != nil {
		t.Errorf("expected discarded bytecode, got % x", code)
	}
	want := "at row 1 label 'nowhere' is never defined"
	if len(diags) != 1 || diags[0] != want {
		t.Errorf("got %v, want [%q]", diags, want)
	}
}

func TestAssembleBackwardLoop(t *testing.T) {
	src := "top:\nmov r0, r0\njnz top\nret\n"
	code, diags := Assemble(src)
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	// jnz's 8-byte target should point back at offset 0 (label "top").
	jmpAt := 3 // mov reg,reg is 3 bytes
	target := binary.BigEndian.Uint64(code[jmpAt+2 : jmpAt+10])
	if target != 0 {
		t.Errorf("backward jump target = %d, want 0", target)
	}
}

func TestAssembleStackRoundTrip(t *testing.T) {
	code, diags := Assemble("push qword r0\npop qword r1\nret\n")
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	want := []byte{
		opPush, byte(0<<4 | 3<<2), // r0, qword
		opPop, byte(1<<4 | 3<<2), // r1, qword
		opRet,
	}
	if string(code) != string(want) {
		t.Errorf("got % x, want % x", code, want)
	}
}

func TestAssembleMovModes(t *testing.T) {
	t.Run("register copy", func(t *testing.T) {
		code, diags := Assemble("mov r1, r2\n")
		if diags.HasErrors() {
			t.Fatalf("unexpected diagnostics: %v", diags)
		}
		want := []byte{opMov, 0x40 | 1, 2 << 4}
		if string(code) != string(want) {
			t.Errorf("got % x, want % x", code, want)
		}
	})
	t.Run("load from memory", func(t *testing.T) {
		code, diags := Assemble("mov r1, dword [r2+4]\n")
		if diags.HasErrors() {
			t.Fatalf("unexpected diagnostics: %v", diags)
		}
		if len(code) != 11 {
			t.Fatalf("got %d bytes, want 11: % x", len(code), code)
		}
		if code[0] != opMov || code[1] != byte(0x80|1|2<<4) || code[2] != byte(2<<4) {
			t.Errorf("got % x", code[:3])
		}
		off := binary.BigEndian.Uint64(code[3:11])
		if off != 4 {
			t.Errorf("offset = %d, want 4", off)
		}
	})
	t.Run("store to memory", func(t *testing.T) {
		code, diags := Assemble("mov qword [r2-4], r1\n")
		if diags.HasErrors() {
			t.Fatalf("unexpected diagnostics: %v", diags)
		}
		if len(code) != 11 {
			t.Fatalf("got %d bytes, want 11: % x", len(code), code)
		}
		if code[0] != opMov || code[1] != byte(0xC0|2|3<<4) || code[2] != byte(1<<4) {
			t.Errorf("got % x", code[:3])
		}
		off := binary.BigEndian.Uint64(code[3:11])
		want := uint64(4) | (uint64(1) << 63)
		if off != want {
			t.Errorf("offset = %#x, want %#x", off, want)
		}
	})
}

func TestAssembleCmpIsBinaryOp(t *testing.T) {
	code, diags := Assemble("cmp r0, r1\n")
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	want := []byte{opCmp, 0<<4 | 1}
	if string(code) != string(want) {
		t.Errorf("got % x, want % x", code, want)
	}
}

func TestAssembleSyntaxErrorRecoversAtNextLine(t *testing.T) {
	code, diags := Assemble("mov r0,\nint 3\n")
	if !diags.HasErrors() {
		t.Fatalf("expected diagnostics, got none")
	}
	if code != nil {
		t.Errorf("expected discarded bytecode, got % x", code)
	}
	if len(diags) != 1 {
		t.Fatalf("expected exactly one diagnostic (recovery should skip to next line), got %v", diags)
	}
}

func TestDiagnosticsString(t *testing.T) {
	d := Diagnostics{"at row 1 boom"}
	got := d.String()
	want := "Errors: 1\n[     1] at row 1 boom\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
