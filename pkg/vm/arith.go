package vm

import (
	"math"

	"pcode/pkg/pcode"
)

func boolWord(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

func handleUnary(m *Machine, ins pcode.Instruction) ExitReason {
	v, r := m.Pop()
	if r != ExitGo {
		return r
	}
	s := int16(v)
	var result uint16
	switch ins.Op {
	case pcode.NEG:
		result = uint16(-s)
	case pcode.ABS:
		if s < 0 {
			s = -s
		}
		result = uint16(s)
	case pcode.INC:
		result = v + 1
	case pcode.DEC:
		result = v - 1
	case pcode.NOT:
		result = ^v
	case pcode.EQUZ:
		result = boolWord(s == 0)
	case pcode.NEQZ:
		result = boolWord(s != 0)
	case pcode.LTZ:
		result = boolWord(s < 0)
	case pcode.GTEZ:
		result = boolWord(s >= 0)
	case pcode.GTZ:
		result = boolWord(s > 0)
	case pcode.LTEZ:
		result = boolWord(s <= 0)
	default:
		return ExitIllegalOpcode
	}
	return m.Push(result)
}

func shiftLeft(v, n uint16) uint16 {
	if n >= 16 {
		return 0
	}
	return v << n
}

func shiftRight(v, n uint16) uint16 {
	if n >= 16 {
		return 0
	}
	return v >> n
}

func shiftRightArith(v, n uint16) uint16 {
	if n >= 16 {
		n = 15
	}
	return uint16(int16(v) >> n)
}

// binaryOp computes a op b for the two-operand integer and compare
// opcodes.
func binaryOp(op byte, a, b uint16) (uint16, ExitReason) {
	sa, sb := int16(a), int16(b)
	switch op {
	case pcode.ADD:
		return a + b, ExitGo
	case pcode.SUB:
		return a - b, ExitGo
	case pcode.MUL:
		return uint16(sa * sb), ExitGo
	case pcode.DIV, pcode.MOD:
		if sb == 0 {
			return 0, ExitDivideByZero
		}
		if sa == math.MinInt16 && sb == -1 {
			if op == pcode.MOD {
				return 0, ExitGo
			}
			return 0, ExitIntegerOverflow
		}
		if op == pcode.DIV {
			return uint16(sa / sb), ExitGo
		}
		return uint16(sa % sb), ExitGo
	case pcode.SLL:
		return shiftLeft(a, b), ExitGo
	case pcode.SRL:
		return shiftRight(a, b), ExitGo
	case pcode.SRA:
		return shiftRightArith(a, b), ExitGo
	case pcode.OR:
		return a | b, ExitGo
	case pcode.AND:
		return a & b, ExitGo
	case pcode.XOR:
		return a ^ b, ExitGo
	case pcode.UMUL:
		return a * b, ExitGo
	case pcode.UDIV:
		if b == 0 {
			return 0, ExitDivideByZero
		}
		return a / b, ExitGo
	case pcode.UMOD:
		if b == 0 {
			return 0, ExitDivideByZero
		}
		return a % b, ExitGo
	case pcode.EQU:
		return boolWord(a == b), ExitGo
	case pcode.NEQ:
		return boolWord(a != b), ExitGo
	case pcode.LT:
		return boolWord(sa < sb), ExitGo
	case pcode.GTE:
		return boolWord(sa >= sb), ExitGo
	case pcode.GT:
		return boolWord(sa > sb), ExitGo
	case pcode.LTE:
		return boolWord(sa <= sb), ExitGo
	case pcode.ULT:
		return boolWord(a < b), ExitGo
	case pcode.UGTE:
		return boolWord(a >= b), ExitGo
	case pcode.UGT:
		return boolWord(a > b), ExitGo
	case pcode.ULTE:
		return boolWord(a <= b), ExitGo
	}
	return 0, ExitIllegalOpcode
}

func handleBinary(m *Machine, ins pcode.Instruction) ExitReason {
	b, r := m.Pop()
	if r != ExitGo {
		return r
	}
	a, r := m.Pop()
	if r != ExitGo {
		return r
	}
	result, r := binaryOp(ins.Op, a, b)
	if r != ExitGo {
		return r
	}
	return m.Push(result)
}

// jumpTaken pops the operands of a conditional jump and evaluates it.
func jumpTaken(m *Machine, op byte) (bool, ExitReason) {
	if op == pcode.JMP {
		return true, ExitGo
	}
	b, r := m.Pop()
	if r != ExitGo {
		return false, r
	}
	s := int16(b)
	switch op {
	case pcode.JEQUZ:
		return s == 0, ExitGo
	case pcode.JNEQZ:
		return s != 0, ExitGo
	case pcode.JLTZ:
		return s < 0, ExitGo
	case pcode.JGTEZ:
		return s >= 0, ExitGo
	case pcode.JGTZ:
		return s > 0, ExitGo
	case pcode.JLTEZ:
		return s <= 0, ExitGo
	}
	a, r := m.Pop()
	if r != ExitGo {
		return false, r
	}
	sa := int16(a)
	switch op {
	case pcode.JEQU:
		return sa == s, ExitGo
	case pcode.JNEQ:
		return sa != s, ExitGo
	case pcode.JLT:
		return sa < s, ExitGo
	case pcode.JGTE:
		return sa >= s, ExitGo
	case pcode.JGT:
		return sa > s, ExitGo
	case pcode.JLTE:
		return sa <= s, ExitGo
	}
	return false, ExitIllegalOpcode
}

func handleJump(m *Machine, ins pcode.Instruction) ExitReason {
	taken, r := jumpTaken(m, ins.Op)
	if r != ExitGo {
		return r
	}
	if taken {
		m.PC = ins.Arg2
	}
	return ExitGo
}
