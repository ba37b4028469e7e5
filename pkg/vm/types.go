package vm

import "fmt"

// ExitReason is the result code of every VM operation. ExitGo means the
// operation completed and execution continues; ExitHalt is the normal end of
// a program; everything else is a fault that stops the dispatch loop.
type ExitReason uint8

const (
	ExitGo   ExitReason = iota
	ExitHalt            // normal termination

	// Addressing faults
	ExitBadSP      // stack or string-stack pointer out of its region
	ExitBadPC      // program counter outside instruction space
	ExitBadAddress // data access outside the arena, misaligned, or into read-only data
	ExitBadFile    // file number outside the file table

	// Decode faults
	ExitIllegalOpcode
	ExitBadLongOp
	ExitBadSetOp
	ExitBadFloatOp
	ExitBadSysIO

	// Resource exhaustion
	ExitStringStackOverflow
	ExitStringOverflow
	ExitNewFailed

	// Misuse faults
	ExitDoubleDispose
	ExitBadLibCall
	ExitFileNotOpen

	// Arithmetic faults
	ExitIntegerOverflow
	ExitDivideByZero
	ExitOutOfRange

	numExitReasons
)

var exitReasonNames = [numExitReasons]string{
	ExitGo:                  "no error",
	ExitHalt:                "halt",
	ExitBadSP:               "stack pointer out of range",
	ExitBadPC:               "program counter out of range",
	ExitBadAddress:          "bad data address",
	ExitBadFile:             "bad file number",
	ExitIllegalOpcode:       "illegal opcode",
	ExitBadLongOp:           "illegal long operation",
	ExitBadSetOp:            "illegal set operation",
	ExitBadFloatOp:          "illegal floating point operation",
	ExitBadSysIO:            "illegal system I/O operation",
	ExitStringStackOverflow: "string stack overflow",
	ExitStringOverflow:      "string overflow",
	ExitNewFailed:           "heap allocation failed",
	ExitDoubleDispose:       "memory disposed twice",
	ExitBadLibCall:          "illegal library call",
	ExitFileNotOpen:         "file not open",
	ExitIntegerOverflow:     "integer overflow",
	ExitDivideByZero:        "division by zero",
	ExitOutOfRange:          "value out of range",
}

func (r ExitReason) String() string {
	if r < numExitReasons {
		return exitReasonNames[r]
	}
	return fmt.Sprintf("exit reason %d", uint8(r))
}

// IsFault reports whether r stops execution abnormally.
func (r ExitReason) IsFault() bool {
	return r != ExitGo && r != ExitHalt
}

// Fault is the error returned to Go callers when a program stops on a fault.
type Fault struct {
	Reason ExitReason
	PC     uint16
	Line   uint16
}

func (f *Fault) Error() string {
	if f.Line != 0 {
		return fmt.Sprintf("runtime error %d (%s) at pc=%d line=%d", uint8(f.Reason), f.Reason, f.PC, f.Line)
	}
	return fmt.Sprintf("runtime error %d (%s) at pc=%d", uint8(f.Reason), f.Reason, f.PC)
}
