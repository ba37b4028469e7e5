package vm

import (
	"math"

	"pcode/pkg/pcode"
)

// The long-operation unit works on 32-bit values held as two stack words,
// low word pushed first.

func shiftLeft32(v, n uint32) uint32 {
	if n >= 32 {
		return 0
	}
	return v << n
}

func shiftRight32(v, n uint32) uint32 {
	if n >= 32 {
		return 0
	}
	return v >> n
}

func shiftRightArith32(v, n uint32) uint32 {
	if n >= 32 {
		n = 31
	}
	return uint32(int32(v) >> n)
}

func longUnary(op byte, v uint32) (uint32, bool) {
	s := int32(v)
	switch op {
	case pcode.LongNEG:
		return uint32(-s), true
	case pcode.LongABS:
		if s < 0 {
			s = -s
		}
		return uint32(s), true
	case pcode.LongINC:
		return v + 1, true
	case pcode.LongDEC:
		return v - 1, true
	case pcode.LongNOT:
		return ^v, true
	}
	return 0, false
}

func longBinary(op byte, a, b uint32) (uint32, ExitReason) {
	sa, sb := int32(a), int32(b)
	switch op {
	case pcode.LongADD:
		return a + b, ExitGo
	case pcode.LongSUB:
		return a - b, ExitGo
	case pcode.LongMUL:
		return uint32(sa * sb), ExitGo
	case pcode.LongDIV, pcode.LongMOD:
		if sb == 0 {
			return 0, ExitDivideByZero
		}
		if sa == math.MinInt32 && sb == -1 {
			if op == pcode.LongMOD {
				return 0, ExitGo
			}
			return 0, ExitIntegerOverflow
		}
		if op == pcode.LongDIV {
			return uint32(sa / sb), ExitGo
		}
		return uint32(sa % sb), ExitGo
	case pcode.LongSLL:
		return shiftLeft32(a, b), ExitGo
	case pcode.LongSRL:
		return shiftRight32(a, b), ExitGo
	case pcode.LongSRA:
		return shiftRightArith32(a, b), ExitGo
	case pcode.LongOR:
		return a | b, ExitGo
	case pcode.LongAND:
		return a & b, ExitGo
	case pcode.LongXOR:
		return a ^ b, ExitGo
	case pcode.LongUMUL:
		return a * b, ExitGo
	case pcode.LongUDIV:
		if b == 0 {
			return 0, ExitDivideByZero
		}
		return a / b, ExitGo
	case pcode.LongUMOD:
		if b == 0 {
			return 0, ExitDivideByZero
		}
		return a % b, ExitGo
	}
	return 0, ExitBadLongOp
}

func longCompareZero(op byte, v uint32) (bool, bool) {
	s := int32(v)
	switch op {
	case pcode.LongEQUZ, pcode.LongJEQUZ + jumpBias:
		return s == 0, true
	case pcode.LongNEQZ, pcode.LongJNEQZ + jumpBias:
		return s != 0, true
	case pcode.LongLTZ, pcode.LongJLTZ + jumpBias:
		return s < 0, true
	case pcode.LongGTEZ, pcode.LongJGTEZ + jumpBias:
		return s >= 0, true
	case pcode.LongGTZ, pcode.LongJGTZ + jumpBias:
		return s > 0, true
	case pcode.LongLTEZ, pcode.LongJLTEZ + jumpBias:
		return s <= 0, true
	}
	return false, false
}

func longCompare(op byte, a, b uint32) (bool, bool) {
	sa, sb := int32(a), int32(b)
	switch op {
	case pcode.LongEQU, pcode.LongJEQU + jumpBias:
		return a == b, true
	case pcode.LongNEQ, pcode.LongJNEQ + jumpBias:
		return a != b, true
	case pcode.LongLT, pcode.LongJLT + jumpBias:
		return sa < sb, true
	case pcode.LongGTE, pcode.LongJGTE + jumpBias:
		return sa >= sb, true
	case pcode.LongGT, pcode.LongJGT + jumpBias:
		return sa > sb, true
	case pcode.LongLTE, pcode.LongJLTE + jumpBias:
		return sa <= sb, true
	case pcode.LongULT:
		return a < b, true
	case pcode.LongUGTE:
		return a >= b, true
	case pcode.LongUGT:
		return a > b, true
	case pcode.LongULTE:
		return a <= b, true
	}
	return false, false
}

// jumpBias moves the LONGJMP sub-opcode space clear of the LONGOP one so
// the compare helpers can serve both.
const jumpBias = 0x80

func handleLongOp(m *Machine, ins pcode.Instruction) ExitReason {
	op := ins.Arg1
	if op >= pcode.NumLongOps {
		return ExitBadLongOp
	}

	switch op {
	case pcode.LongDUP:
		v, r := m.PopLong()
		if r != ExitGo {
			return r
		}
		if r := m.PushLong(v); r != ExitGo {
			return r
		}
		return m.PushLong(v)
	case pcode.LongXCHG:
		b, r := m.PopLong()
		if r != ExitGo {
			return r
		}
		a, r := m.PopLong()
		if r != ExitGo {
			return r
		}
		if r := m.PushLong(b); r != ExitGo {
			return r
		}
		return m.PushLong(a)
	case pcode.LongDROP:
		return m.Discard(2)
	case pcode.LongCNV, pcode.LongUCNV:
		w, r := m.Pop()
		if r != ExitGo {
			return r
		}
		if op == pcode.LongCNV {
			return m.PushLong(uint32(int32(int16(w))))
		}
		return m.PushLong(uint32(w))
	case pcode.LongDCNV:
		v, r := m.PopLong()
		if r != ExitGo {
			return r
		}
		s := int32(v)
		if s < math.MinInt16 || s > math.MaxInt16 {
			return ExitIntegerOverflow
		}
		return m.Push(uint16(s))
	}

	b, r := m.PopLong()
	if r != ExitGo {
		return r
	}
	if v, ok := longUnary(op, b); ok {
		return m.PushLong(v)
	}
	if c, ok := longCompareZero(op, b); ok {
		return m.Push(boolWord(c))
	}
	a, r := m.PopLong()
	if r != ExitGo {
		return r
	}
	if c, ok := longCompare(op, a, b); ok {
		return m.Push(boolWord(c))
	}
	v, r := longBinary(op, a, b)
	if r != ExitGo {
		return r
	}
	return m.PushLong(v)
}

// handleLongJump pops one or two long operands and branches to Arg2 when
// the condition holds.
func handleLongJump(m *Machine, ins pcode.Instruction) ExitReason {
	if ins.Arg1 >= pcode.NumLongJumps {
		return ExitBadLongOp
	}
	op := ins.Arg1 + jumpBias

	b, r := m.PopLong()
	if r != ExitGo {
		return r
	}
	taken, ok := longCompareZero(op, b)
	if !ok {
		a, r := m.PopLong()
		if r != ExitGo {
			return r
		}
		taken, _ = longCompare(op, a, b)
	}
	if taken {
		m.PC = ins.Arg2
	}
	return ExitGo
}
