package vm

import "fmt"

// Fault is a fatal error raised by Machine.Run: unlike an assembler
// diagnostic, execution stops immediately when one occurs.
type Fault struct {
	Message string
	IP      uint64
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s at %d", f.Message, f.IP)
}

func fault(ip uint64, format string, args ...any) *Fault {
	return &Fault{Message: fmt.Sprintf(format, args...), IP: ip}
}
