package vm

// HostIO is the abstract port the four host interrupts (spec.md §4.3) are
// dispatched through. A Machine never touches a terminal or file directly;
// it only ever calls through this interface.
type HostIO interface {
	// PutC writes a single byte, driven by Int 0 (PutC) writing register Ir.
	PutC(b byte)
	// PutS writes bs verbatim, driven by Int 1 (PutS) reading a
	// zero-terminated run of memory starting at register Ir.
	PutS(bs []byte)
	// GetC reads one byte, driven by Int 2 (GetC). ok is false at end of
	// input, in which case the caller treats end-of-stream as a zero byte
	// and loads 0 into Ir (spec.md §5).
	GetC() (b byte, ok bool)
}

// ByteReader is the minimal capability StdHostIO needs from an input
// source; *bufio.Reader satisfies it.
type ByteReader interface {
	ReadByte() (byte, error)
}

// ByteWriter is the minimal capability StdHostIO needs from an output sink;
// an io.Writer wrapped in bufio.NewWriter, or *os.File directly, satisfies
// it via Write.
type ByteWriter interface {
	Write(p []byte) (n int, err error)
}

// StdHostIO is the reference HostIO backed by a byte reader and a writer,
// the way the teacher wires concrete devices into its execution engine at
// startup rather than reaching for os.Stdin/os.Stdout inline.
type StdHostIO struct {
	In  ByteReader
	Out ByteWriter
}

// NewStdHostIO returns a StdHostIO reading from in and writing to out.
func NewStdHostIO(in ByteReader, out ByteWriter) *StdHostIO {
	return &StdHostIO{In: in, Out: out}
}

func (h *StdHostIO) PutC(b byte) {
	h.Out.Write([]byte{b})
}

func (h *StdHostIO) PutS(bs []byte) {
	h.Out.Write(bs)
}

func (h *StdHostIO) GetC() (byte, bool) {
	b, err := h.In.ReadByte()
	if err != nil {
		return 0, false
	}
	return b, true
}
