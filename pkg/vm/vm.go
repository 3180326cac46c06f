// Package vm implements RVM, the register machine RASM assembles for: 13
// registers, a flat byte-addressable memory image shared between the loaded
// program and its stack, and a small fixed instruction set decoded straight
// out of that image.
package vm

// Register ids. 13, 14, and 15 are reserved and never valid operands.
const (
	R0 = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	Ir
	Fg
	Ip
	Sp
	Bp
	numRegisters = 13
)

// Flags register values. Fg holds exactly one of these at a time.
const (
	FlagNeg  = 0x1
	FlagZero = 0x2
	FlagPos  = 0x4
)

// Host interrupt ids, dispatched through HostIO.
const (
	IntPutC = 0
	IntPutS = 1
	IntGetC = 2
	IntHalt = 3
	numInts = 4
)

// Opcodes, matching the byte values pkg/asm emits.
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

// DefaultMemSize is the memory image size used when the caller doesn't
// override it (spec.md §3).
const DefaultMemSize = 10000

// Machine is one RVM instance: its registers, its memory image, and the
// host port its interrupts talk to. A Machine is not safe for concurrent
// use; Run owns it exclusively for the duration of the call (spec.md §5).
type Machine struct {
	Reg [numRegisters]uint64
	Mem []byte

	// codeEnd is the boundary between the loaded program and the stack
	// region above it: [0, codeEnd) is code, [codeEnd, len(Mem)) is stack.
	codeEnd uint64

	Halted bool
	IO     HostIO
}

// NewMachine loads program into a fresh memory image of memSize bytes and
// sets Sp, Bp, and Ip to their initial values (spec.md §3). It returns an
// error if the program doesn't fit.
func NewMachine(program []byte, memSize int, io HostIO) (*Machine, error) {
	if memSize < len(program) {
		return nil, fault(0, "program of %d bytes does not fit in %d bytes of memory", len(program), memSize)
	}
	m := &Machine{
		Mem:     make([]byte, memSize),
		codeEnd: uint64(len(program)),
		IO:      io,
	}
	copy(m.Mem, program)
	m.Reg[Sp] = m.codeEnd
	m.Reg[Bp] = m.codeEnd
	m.Reg[Ip] = 0
	return m, nil
}

// Run steps the machine until it halts, faults, or Ip reaches the end of the
// loaded program.
func (m *Machine) Run() error {
	for !m.Halted && m.Reg[Ip] < m.codeEnd {
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step decodes and executes exactly one instruction at the current Ip.
func (m *Machine) Step() error {
	if m.Halted {
		return nil
	}
	ip := m.Reg[Ip]
	opcode, ok := m.byteAt(ip)
	if !ok {
		return fault(ip, "memory access out of bounds")
	}
	ip++

	switch opcode {
	case opAdd, opSub, opAnd, opOr, opXor, opNot:
		return m.execArith(opcode, ip)
	case opMov:
		return m.execMov(ip)
	case opPush:
		return m.execPush(ip)
	case opPop:
		return m.execPop(ip)
	case opJmp:
		return m.execJmp(ip)
	case opCall:
		return m.execCall(ip)
	case opRet:
		return m.execRet(ip)
	case opInt:
		return m.execInt(ip)
	case opCmp:
		return m.execCmp(ip)
	case opTest:
		return m.execTest(ip)
	default:
		return fault(ip, "unknown opcode %d", opcode)
	}
}

func validReg(id uint64) bool { return id < numRegisters }

func sizeBytes(tag uint64) int {
	switch tag {
	case 0:
		return 1
	case 1:
		return 2
	case 2:
		return 4
	default:
		return 8
	}
}

// updateFlags reassigns Fg from scratch: exactly one of Neg/Zero/Pos is set.
func (m *Machine) updateFlags(v uint64) {
	switch {
	case v == 0:
		m.Reg[Fg] = FlagZero
	case v>>63 != 0:
		m.Reg[Fg] = FlagNeg
	default:
		m.Reg[Fg] = FlagPos
	}
}

func (m *Machine) byteAt(addr uint64) (byte, bool) {
	if addr >= uint64(len(m.Mem)) {
		return 0, false
	}
	return m.Mem[addr], true
}

// readAt reads a big-endian, size-byte value at addr.
func (m *Machine) readAt(addr uint64, size int) (uint64, bool) {
	if addr+uint64(size) > uint64(len(m.Mem)) {
		return 0, false
	}
	var v uint64
	for i := 0; i < size; i++ {
		v = v<<8 | uint64(m.Mem[addr+uint64(i)])
	}
	return v, true
}

// writeAt writes a big-endian, size-byte value at addr.
func (m *Machine) writeAt(addr uint64, size int, v uint64) bool {
	if addr+uint64(size) > uint64(len(m.Mem)) {
		return false
	}
	for i := 0; i < size; i++ {
		shift := uint(8 * (size - 1 - i))
		m.Mem[addr+uint64(i)] = byte(v >> shift)
	}
	return true
}

func (m *Machine) execArith(opcode byte, ip uint64) error {
	b, ok := m.byteAt(ip)
	if !ok {
		return fault(ip, "memory access out of bounds")
	}
	ip++
	dst := uint64(b) >> 4 & 0xF
	src := uint64(b) & 0xF
	if !validReg(dst) || !validReg(src) {
		return fault(ip, "invalid register")
	}
	switch opcode {
	case opAdd:
		m.Reg[dst] += m.Reg[src]
	case opSub:
		m.Reg[dst] -= m.Reg[src]
	case opAnd:
		m.Reg[dst] &= m.Reg[src]
	case opOr:
		m.Reg[dst] |= m.Reg[src]
	case opXor:
		m.Reg[dst] ^= m.Reg[src]
	case opNot:
		m.Reg[dst] = ^m.Reg[src]
	}
	m.updateFlags(m.Reg[dst])
	m.Reg[Ip] = ip
	return nil
}

// execCmp computes flags(fst - snd) without mutating fst. The original
// mutates fst via fst += ~snd (dropping the +1 two's-complement correction,
// so it actually computes fst - snd - 1); this is the fix spec.md's open
// question calls for.
func (m *Machine) execCmp(ip uint64) error {
	b, ok := m.byteAt(ip)
	if !ok {
		return fault(ip, "memory access out of bounds")
	}
	ip++
	fst := uint64(b) >> 4 & 0xF
	snd := uint64(b) & 0xF
	if !validReg(fst) || !validReg(snd) {
		return fault(ip, "invalid register")
	}
	m.updateFlags(m.Reg[fst] - m.Reg[snd])
	m.Reg[Ip] = ip
	return nil
}

func (m *Machine) execTest(ip uint64) error {
	b, ok := m.byteAt(ip)
	if !ok {
		return fault(ip, "memory access out of bounds")
	}
	ip++
	src := uint64(b) >> 4 & 0xF
	if !validReg(src) {
		return fault(ip, "invalid register")
	}
	m.updateFlags(m.Reg[src])
	m.Reg[Ip] = ip
	return nil
}

// execMov implements all four Mov addressing modes (spec.md §6). Mode 2
// (load) computes addr = reg[src]+offset and reads memory at addr directly;
// the original instead double-indexes stack_[reg[src]+offset] as if that
// sum were itself an index into the loaded value, which is the bug
// spec.md's open question asks a rewrite to fix.
func (m *Machine) execMov(ip uint64) error {
	fstByte, ok := m.byteAt(ip)
	if !ok {
		return fault(ip, "memory access out of bounds")
	}
	ip++
	mode := uint64(fstByte) >> 6 & 0x3
	regField := uint64(fstByte) & 0xF

	switch mode {
	case 0: // reg <- immediate
		dst := regField
		if !validReg(dst) {
			return fault(ip, "invalid register")
		}
		v, ok := m.readAt(ip, 8)
		if !ok {
			return fault(ip, "memory access out of bounds")
		}
		ip += 8
		m.Reg[dst] = v
		m.updateFlags(m.Reg[dst])

	case 1: // reg <- reg
		dst := regField
		if !validReg(dst) {
			return fault(ip, "invalid register")
		}
		b2, ok := m.byteAt(ip)
		if !ok {
			return fault(ip, "memory access out of bounds")
		}
		ip++
		src := uint64(b2) >> 4 & 0xF
		if !validReg(src) {
			return fault(ip, "invalid register")
		}
		m.Reg[dst] = m.Reg[src]
		m.updateFlags(m.Reg[dst])

	case 2: // reg <- memory
		dst := regField
		if !validReg(dst) {
			return fault(ip, "invalid register")
		}
		size := sizeBytes(uint64(fstByte) >> 4 & 0x3)
		b2, ok := m.byteAt(ip)
		if !ok {
			return fault(ip, "memory access out of bounds")
		}
		ip++
		base := uint64(b2) >> 4 & 0xF
		if !validReg(base) {
			return fault(ip, "invalid register")
		}
		offset, ok := m.readAt(ip, 8)
		if !ok {
			return fault(ip, "memory access out of bounds")
		}
		ip += 8
		addr := m.Reg[base] + offset
		v, ok := m.readAt(addr, size)
		if !ok {
			return fault(ip, "memory access out of bounds")
		}
		m.Reg[dst] = v
		m.updateFlags(m.Reg[dst])

	default: // mode 3: memory <- reg. regField holds the base register.
		base := regField
		if !validReg(base) {
			return fault(ip, "invalid register")
		}
		size := sizeBytes(uint64(fstByte) >> 4 & 0x3)
		b2, ok := m.byteAt(ip)
		if !ok {
			return fault(ip, "memory access out of bounds")
		}
		ip++
		src := uint64(b2) >> 4 & 0xF
		if !validReg(src) {
			return fault(ip, "invalid register")
		}
		offset, ok := m.readAt(ip, 8)
		if !ok {
			return fault(ip, "memory access out of bounds")
		}
		ip += 8
		addr := m.Reg[base] + offset
		if !m.writeAt(addr, size, m.Reg[src]) {
			return fault(ip, "memory access out of bounds")
		}
		v, _ := m.readAt(addr, size)
		m.updateFlags(v)
	}

	m.Reg[Ip] = ip
	return nil
}

func (m *Machine) execPush(ip uint64) error {
	b, ok := m.byteAt(ip)
	if !ok {
		return fault(ip, "memory access out of bounds")
	}
	ip++
	src := uint64(b) >> 4 & 0xF
	if !validReg(src) {
		return fault(ip, "invalid register")
	}
	size := sizeBytes(uint64(b) >> 2 & 0x3)
	if !m.writeAt(m.Reg[Sp], size, m.Reg[src]) {
		return fault(ip, "memory access out of bounds")
	}
	m.Reg[Sp] += uint64(size)
	m.Reg[Ip] = ip
	return nil
}

func (m *Machine) execPop(ip uint64) error {
	b, ok := m.byteAt(ip)
	if !ok {
		return fault(ip, "memory access out of bounds")
	}
	ip++
	dst := uint64(b) >> 4 & 0xF
	if !validReg(dst) {
		return fault(ip, "invalid register")
	}
	size := sizeBytes(uint64(b) >> 2 & 0x3)
	if uint64(size) > m.Reg[Sp] {
		return fault(ip, "stack underflow")
	}
	m.Reg[Sp] -= uint64(size)
	v, ok := m.readAt(m.Reg[Sp], size)
	if !ok {
		return fault(ip, "memory access out of bounds")
	}
	m.Reg[dst] = v
	m.updateFlags(m.Reg[dst])
	m.Reg[Ip] = ip
	return nil
}

// execJmp implements all four condition modes. Mode 00 with neg=1 is
// accepted as an unconditional no-op per spec.md's open question: it can
// only occur in hand-crafted bytecode, since no mnemonic assembles to it.
func (m *Machine) execJmp(ip uint64) error {
	b, ok := m.byteAt(ip)
	if !ok {
		return fault(ip, "memory access out of bounds")
	}
	ip++
	neg := b>>7&0x1 != 0
	mode := b >> 5 & 0x3
	dest, ok := m.readAt(ip, 8)
	if !ok {
		return fault(ip, "memory access out of bounds")
	}
	ip += 8

	var take bool
	switch mode {
	case 0:
		take = true
	case 1:
		take = logicXor(m.Reg[Fg]&FlagNeg != 0, neg)
	case 2:
		take = logicXor(m.Reg[Fg]&FlagZero != 0, neg)
	default:
		take = logicXor(m.Reg[Fg]&FlagPos != 0, neg)
	}

	if take {
		m.Reg[Ip] = dest
	} else {
		m.Reg[Ip] = ip
	}
	return nil
}

func logicXor(a, b bool) bool { return a != b }

func (m *Machine) execCall(ip uint64) error {
	dest, ok := m.readAt(ip, 8)
	if !ok {
		return fault(ip, "memory access out of bounds")
	}
	ip += 8
	if !m.writeAt(m.Reg[Sp], 8, ip) {
		return fault(ip, "memory access out of bounds")
	}
	m.Reg[Sp] += 8
	m.Reg[Ip] = dest
	return nil
}

func (m *Machine) execRet(ip uint64) error {
	if m.Reg[Sp] < 8 {
		return fault(ip, "stack underflow")
	}
	m.Reg[Sp] -= 8
	dest, ok := m.readAt(m.Reg[Sp], 8)
	if !ok {
		return fault(ip, "memory access out of bounds")
	}
	m.Reg[Ip] = dest
	return nil
}

// execInt dispatches one of the four host interrupts (spec.md §4.3) through
// m.IO.
func (m *Machine) execInt(ip uint64) error {
	b, ok := m.byteAt(ip)
	if !ok {
		return fault(ip, "memory access out of bounds")
	}
	ip++
	if uint64(b) >= numInts {
		return fault(ip, "invalid interrupt id")
	}
	switch b {
	case IntPutC:
		m.IO.PutC(byte(m.Reg[Ir]))
	case IntPutS:
		m.putS()
	case IntGetC:
		c, ok := m.IO.GetC()
		if !ok {
			m.Reg[Ir] = 0
		} else {
			m.Reg[Ir] = uint64(c)
		}
	case IntHalt:
		m.Halted = true
	}
	m.Reg[Ip] = ip
	return nil
}

// putS writes bytes starting at Ir until a zero byte or the end of memory.
func (m *Machine) putS() {
	addr := m.Reg[Ir]
	start := addr
	for addr < uint64(len(m.Mem)) && m.Mem[addr] != 0 {
		addr++
	}
	m.IO.PutS(m.Mem[start:addr])
}
