package vm

import (
	"math"

	"pcode/pkg/pcode"
)

// RealWords is the stack footprint of a real: an IEEE-754 double, low
// word first.
const RealWords = 4

func (m *Machine) PushReal(f float64) ExitReason {
	bits := math.Float64bits(f)
	for i := range RealWords {
		if r := m.Push(uint16(bits >> (16 * i))); r != ExitGo {
			return r
		}
	}
	return ExitGo
}

func (m *Machine) PopReal() (float64, ExitReason) {
	if m.Depth() < RealWords {
		return 0, ExitBadSP
	}
	var bits uint64
	for i := RealWords - 1; i >= 0; i-- {
		w, r := m.Pop()
		if r != ExitGo {
			return 0, r
		}
		bits |= uint64(w) << (16 * i)
	}
	return math.Float64frombits(bits), ExitGo
}

// toInteger narrows a real for TRUNC and ROUND.
func toInteger(f float64) (uint16, ExitReason) {
	if math.IsNaN(f) || f < math.MinInt16 || f > math.MaxInt16 {
		return 0, ExitIntegerOverflow
	}
	return uint16(int16(f)), ExitGo
}

func handleFloatOp(m *Machine, ins pcode.Instruction) ExitReason {
	switch ins.Arg2 {
	case pcode.FloatFLT:
		v, r := m.Pop()
		if r != ExitGo {
			return r
		}
		return m.PushReal(float64(int16(v)))
	case pcode.FloatFLTL:
		v, r := m.PopLong()
		if r != ExitGo {
			return r
		}
		return m.PushReal(float64(int32(v)))
	case pcode.FloatNEG, pcode.FloatABS, pcode.FloatSQR, pcode.FloatSQRT,
		pcode.FloatTRUNC, pcode.FloatROUND:
		f, r := m.PopReal()
		if r != ExitGo {
			return r
		}
		switch ins.Arg2 {
		case pcode.FloatNEG:
			return m.PushReal(-f)
		case pcode.FloatABS:
			return m.PushReal(math.Abs(f))
		case pcode.FloatSQR:
			return m.PushReal(f * f)
		case pcode.FloatSQRT:
			return m.PushReal(math.Sqrt(f))
		case pcode.FloatTRUNC:
			v, r := toInteger(math.Trunc(f))
			if r != ExitGo {
				return r
			}
			return m.Push(v)
		default:
			v, r := toInteger(math.Round(f))
			if r != ExitGo {
				return r
			}
			return m.Push(v)
		}
	case pcode.FloatADD, pcode.FloatSUB, pcode.FloatMUL, pcode.FloatDIV,
		pcode.FloatEQU, pcode.FloatNEQ, pcode.FloatLT, pcode.FloatGTE, pcode.FloatGT, pcode.FloatLTE:
		b, r := m.PopReal()
		if r != ExitGo {
			return r
		}
		a, r := m.PopReal()
		if r != ExitGo {
			return r
		}
		switch ins.Arg2 {
		case pcode.FloatADD:
			return m.PushReal(a + b)
		case pcode.FloatSUB:
			return m.PushReal(a - b)
		case pcode.FloatMUL:
			return m.PushReal(a * b)
		case pcode.FloatDIV:
			if b == 0 {
				return ExitDivideByZero
			}
			return m.PushReal(a / b)
		case pcode.FloatEQU:
			return m.Push(boolWord(a == b))
		case pcode.FloatNEQ:
			return m.Push(boolWord(a != b))
		case pcode.FloatLT:
			return m.Push(boolWord(a < b))
		case pcode.FloatGTE:
			return m.Push(boolWord(a >= b))
		case pcode.FloatGT:
			return m.Push(boolWord(a > b))
		default:
			return m.Push(boolWord(a <= b))
		}
	}
	return ExitBadFloatOp
}
