package vm

import (
	"context"

	"pcode/pkg/pcode"
)

type InstructionHandler func(m *Machine, ins pcode.Instruction) ExitReason

var dispatchTable [256]InstructionHandler

func init() {
	for op := range dispatchTable {
		dispatchTable[op] = handleIllegal
	}

	dispatchTable[pcode.NOP] = func(*Machine, pcode.Instruction) ExitReason { return ExitGo }
	dispatchTable[pcode.END] = handleEnd
	dispatchTable[pcode.LINE] = handleLine

	for _, op := range []byte{pcode.NEG, pcode.ABS, pcode.INC, pcode.DEC, pcode.NOT,
		pcode.EQUZ, pcode.NEQZ, pcode.LTZ, pcode.GTEZ, pcode.GTZ, pcode.LTEZ} {
		dispatchTable[op] = handleUnary
	}
	for _, op := range []byte{pcode.ADD, pcode.SUB, pcode.MUL, pcode.DIV, pcode.MOD,
		pcode.SLL, pcode.SRL, pcode.SRA, pcode.OR, pcode.AND, pcode.XOR,
		pcode.UMUL, pcode.UDIV, pcode.UMOD,
		pcode.EQU, pcode.NEQ, pcode.LT, pcode.GTE, pcode.GT, pcode.LTE,
		pcode.ULT, pcode.UGTE, pcode.UGT, pcode.ULTE} {
		dispatchTable[op] = handleBinary
	}
	for _, op := range []byte{pcode.JEQUZ, pcode.JNEQZ, pcode.JLTZ, pcode.JGTEZ, pcode.JGTZ, pcode.JLTEZ,
		pcode.JMP, pcode.JEQU, pcode.JNEQ, pcode.JLT, pcode.JGTE, pcode.JGT, pcode.JLTE} {
		dispatchTable[op] = handleJump
	}
	for op := range memOps {
		dispatchTable[op] = handleMemory
	}
	for _, op := range []byte{pcode.LDI, pcode.LDIB, pcode.LDIM, pcode.STI, pcode.STIB, pcode.STIM} {
		dispatchTable[op] = handleIndirect
	}
	for _, op := range []byte{pcode.DUP, pcode.XCHG, pcode.DROP, pcode.PUSH, pcode.PUSHB,
		pcode.INDS, pcode.LAC, pcode.PUSHS, pcode.POPS} {
		dispatchTable[op] = handleStackOp
	}
	dispatchTable[pcode.PCAL] = handleCall
	dispatchTable[pcode.RET] = handleReturn

	dispatchTable[pcode.LONGOP] = handleLongOp
	dispatchTable[pcode.LONGJMP] = handleLongJump
	dispatchTable[pcode.SETOP] = handleSetOp
	dispatchTable[pcode.FLOAT] = handleFloatOp
	dispatchTable[pcode.LIB] = handleLibCall
	dispatchTable[pcode.SYSIO] = handleSysIO
}

func handleIllegal(*Machine, pcode.Instruction) ExitReason {
	return ExitIllegalOpcode
}

// Step executes one instruction. A faulting instruction leaves the
// registers as they were before it started, with PC at the instruction.
func (m *Machine) Step() ExitReason {
	saved := m.Registers

	ins, reason := m.Program.Fetch(m.PC)
	if reason != ExitGo {
		return reason
	}
	// Level 0 data lives at the stack base; use the direct form and skip
	// the frame lookup.
	if direct, ok := pcode.DirectForm(ins.Op); ok && ins.Arg1 == 0 {
		ins.Op = direct
	}

	m.PC += uint16(ins.Len)
	reason = dispatchTable[ins.Op](m, ins)

	if m.trace != nil {
		m.trace.Printf("pc=%d %s sp=%d fp=%d csp=%d level=%d -> %s",
			saved.PC, ins, m.SP, m.FP, m.CSP, m.Level, reason)
	}
	if reason.IsFault() {
		m.Registers = saved
	}
	return reason
}

// Run steps until an instruction reports anything other than ExitGo and
// returns that result.
func (m *Machine) Run() ExitReason {
	defer m.Files.flushAll()
	for {
		if reason := m.Step(); reason != ExitGo {
			return reason
		}
	}
}

// checkInterval is the number of instructions RunContext executes between
// looks at its context.
const checkInterval = 4096

// RunContext is Run for callers that must bound execution time. It returns
// ExitGo and the context's error when ctx is done first; the machine is left
// between instructions and may be resumed.
func (m *Machine) RunContext(ctx context.Context) (ExitReason, error) {
	defer m.Files.flushAll()
	for {
		if err := ctx.Err(); err != nil {
			return ExitGo, err
		}
		for range checkInterval {
			if reason := m.Step(); reason != ExitGo {
				return reason, nil
			}
		}
	}
}

func handleEnd(m *Machine, _ pcode.Instruction) ExitReason {
	m.ExitCode = 0
	if m.Depth() > 0 {
		code, r := m.Top()
		if r != ExitGo {
			return r
		}
		m.ExitCode = int16(code)
	}
	return ExitHalt
}

func handleLine(m *Machine, ins pcode.Instruction) ExitReason {
	m.Line = ins.Arg2
	return ExitGo
}
