package pcode

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalOpcode = errors.New("illegal opcode")
	ErrTruncated     = errors.New("instruction runs past end of code")
)

// OpInfo describes one of the 256 possible opcode bytes.
type OpInfo struct {
	Name     string
	Defined  bool
	HasArg8  bool
	HasArg16 bool
	Len      int // total encoded length including the opcode byte
}

// Instruction is a decoded opcode with its optional operands. Arg1 and Arg2
// are only meaningful when the corresponding flag in Table is set.
type Instruction struct {
	Op   byte
	Arg1 uint8
	Arg2 uint16
	Len  int
}

func (ins Instruction) String() string {
	info := Table[ins.Op]
	switch {
	case info.HasArg8 && info.HasArg16:
		return fmt.Sprintf("%s %d, %d", info.Name, ins.Arg1, ins.Arg2)
	case info.HasArg8:
		return fmt.Sprintf("%s %d", info.Name, ins.Arg1)
	case info.HasArg16:
		return fmt.Sprintf("%s %d", info.Name, ins.Arg2)
	default:
		return info.Name
	}
}

// Table is indexed by opcode byte.
var Table [256]OpInfo

var mnemonics = map[byte]string{
	NOP: "NOP", NEG: "NEG", ABS: "ABS", INC: "INC", DEC: "DEC", NOT: "NOT",
	ADD: "ADD", SUB: "SUB", MUL: "MUL", DIV: "DIV", MOD: "MOD",
	SLL: "SLL", SRL: "SRL", SRA: "SRA", OR: "OR", AND: "AND", XOR: "XOR",
	UMUL: "UMUL", UDIV: "UDIV", UMOD: "UMOD",
	EQUZ: "EQUZ", NEQZ: "NEQZ", LTZ: "LTZ", GTEZ: "GTEZ", GTZ: "GTZ", LTEZ: "LTEZ",
	EQU: "EQU", NEQ: "NEQ", LT: "LT", GTE: "GTE", GT: "GT", LTE: "LTE",
	ULT: "ULT", UGTE: "UGTE", UGT: "UGT", ULTE: "ULTE",
	LDI: "LDI", LDIB: "LDIB", LDIM: "LDIM", STI: "STI", STIB: "STIB", STIM: "STIM",
	DUP: "DUP", XCHG: "XCHG", DROP: "DROP", PUSHS: "PUSHS", POPS: "POPS",
	RET: "RET", END: "END",

	JEQUZ: "JEQUZ", JNEQZ: "JNEQZ", JLTZ: "JLTZ", JGTEZ: "JGTEZ", JGTZ: "JGTZ",
	JLTEZ: "JLTEZ", JMP: "JMP", JEQU: "JEQU", JNEQ: "JNEQ", JLT: "JLT",
	JGTE: "JGTE", JGT: "JGT", JLTE: "JLTE",
	LD: "LD", LDB: "LDB", LDM: "LDM", ST: "ST", STB: "STB", STM: "STM",
	LDX: "LDX", LDXB: "LDXB", LDXM: "LDXM", STX: "STX", STXB: "STXB", STXM: "STXM",
	LA: "LA", LAX: "LAX", LAC: "LAC", PUSH: "PUSH", INDS: "INDS",
	LIB: "LIB", SYSIO: "SYSIO", SETOP: "SETOP", FLOAT: "FLOAT",

	LONGOP: "LONGOP", PUSHB: "PUSHB",

	LONGJMP: "LONGJMP",
	LDS: "LDS", LDSB: "LDSB", LDSM: "LDSM", STS: "STS", STSB: "STSB", STSM: "STSM",
	LDSX: "LDSX", LDSXB: "LDSXB", LDSXM: "LDSXM", STSX: "STSX", STSXB: "STSXB",
	STSXM: "STSXM", LAS: "LAS", LASX: "LASX",
	PCAL: "PCAL", LINE: "LINE",
}

// Leveled opcodes and the direct form they reduce to at level 0.
var directForm = map[byte]byte{
	LDS: LD, LDSB: LDB, LDSM: LDM,
	STS: ST, STSB: STB, STSM: STM,
	LDSX: LDX, LDSXB: LDXB, LDSXM: LDXM,
	STSX: STX, STSXB: STXB, STSXM: STXM,
	LAS: LA, LASX: LAX,
}

func init() {
	for op := 0; op < 256; op++ {
		b := byte(op)
		info := OpInfo{
			Name:     fmt.Sprintf("OP_%02X", op),
			HasArg8:  b&Arg8Flag != 0,
			HasArg16: b&Arg16Flag != 0,
			Len:      1,
		}
		if info.HasArg8 {
			info.Len++
		}
		if info.HasArg16 {
			info.Len += 2
		}
		if name, ok := mnemonics[b]; ok {
			info.Name = name
			info.Defined = true
		}
		Table[op] = info
	}
}

// DirectForm returns the non-leveled opcode equivalent to a leveled one.
func DirectForm(op byte) (byte, bool) {
	d, ok := directForm[op]
	return d, ok
}

// Decode reads the instruction at pc. Operands are read only when their
// flag bit is set in the opcode byte.
func Decode(code []byte, pc uint16) (Instruction, error) {
	if int(pc) >= len(code) {
		return Instruction{}, ErrTruncated
	}
	op := code[pc]
	info := &Table[op]
	if !info.Defined {
		return Instruction{Op: op, Len: 1}, ErrIllegalOpcode
	}
	if int(pc)+info.Len > len(code) {
		return Instruction{Op: op}, ErrTruncated
	}

	ins := Instruction{Op: op, Len: info.Len}
	next := int(pc) + 1
	if info.HasArg8 {
		ins.Arg1 = code[next]
		next++
	}
	if info.HasArg16 {
		ins.Arg2 = uint16(code[next])<<8 | uint16(code[next+1])
	}
	return ins, nil
}

// Encode appends the encoding of ins to dst.
func Encode(dst []byte, ins Instruction) []byte {
	info := &Table[ins.Op]
	dst = append(dst, ins.Op)
	if info.HasArg8 {
		dst = append(dst, ins.Arg1)
	}
	if info.HasArg16 {
		dst = append(dst, byte(ins.Arg2>>8), byte(ins.Arg2))
	}
	return dst
}
