package vm

import "pcode/pkg/pcode"

// SetWords is the number of 16-bit words in a set value.
const SetWords = 4

// SetSize is the size of the set universe.
const SetSize = SetWords * 16

// Set is a 64-element bit vector; word i holds elements 16i..16i+15.
type Set [SetWords]uint16

var nibbleBits = [16]uint8{0, 1, 1, 2, 1, 2, 2, 3, 1, 2, 2, 3, 2, 3, 3, 4}

func byteBits(b uint8) int {
	return int(nibbleBits[b&0x0f] + nibbleBits[b>>4])
}

func wordBits(w uint16) int {
	return byteBits(uint8(w)) + byteBits(uint8(w>>8))
}

func (s Set) Intersection(t Set) Set {
	for i := range s {
		s[i] &= t[i]
	}
	return s
}

func (s Set) Union(t Set) Set {
	for i := range s {
		s[i] |= t[i]
	}
	return s
}

func (s Set) Difference(t Set) Set {
	for i := range s {
		s[i] &^= t[i]
	}
	return s
}

func (s Set) SymmetricDifference(t Set) Set {
	for i := range s {
		s[i] ^= t[i]
	}
	return s
}

// Contains reports whether t is a subset of s. Every word has to agree.
func (s Set) Contains(t Set) bool {
	ok := true
	for i := range s {
		ok = ok && s[i]&t[i] == t[i]
	}
	return ok
}

// Card is the number of members.
func (s Set) Card() int {
	n := 0
	for _, w := range s {
		n += wordBits(w)
	}
	return n
}

// setIndex subtracts the base of the element type and checks the result
// against the universe.
func setIndex(elem, base uint16) (int, ExitReason) {
	i := int(int16(elem)) - int(int16(base))
	if i < 0 || i >= SetSize {
		return 0, ExitOutOfRange
	}
	return i, ExitGo
}

func (s Set) Member(i int) bool {
	return s[i/16]&(1<<(i%16)) != 0
}

func (s Set) Include(i int) Set {
	s[i/16] |= 1 << (i % 16)
	return s
}

func (s Set) Exclude(i int) Set {
	s[i/16] &^= 1 << (i % 16)
	return s
}

// Singleton returns {i}.
func Singleton(i int) Set {
	var s Set
	return s.Include(i)
}

// Subrange returns {lo..hi}. Both bounds must already be inside the
// universe; lo > hi gives the empty set.
func Subrange(lo, hi int) Set {
	var s Set
	if lo > hi {
		return s
	}
	first, last := lo/16, hi/16
	lead := uint16(0xffff) << (lo % 16)
	trail := uint16(0xffff) >> (15 - hi%16)
	if first == last {
		s[first] = lead & trail
		return s
	}
	s[first] = lead
	for w := first + 1; w < last; w++ {
		s[w] = 0xffff
	}
	s[last] = trail
	return s
}

func (m *Machine) PushSet(s Set) ExitReason {
	for _, w := range s {
		if r := m.Push(w); r != ExitGo {
			return r
		}
	}
	return ExitGo
}

func (m *Machine) PopSet() (Set, ExitReason) {
	var s Set
	if m.Depth() < SetWords {
		return s, ExitBadSP
	}
	for i := SetWords - 1; i >= 0; i-- {
		w, r := m.Pop()
		if r != ExitGo {
			return s, r
		}
		s[i] = w
	}
	return s, ExitGo
}

func (m *Machine) popElement() (int, ExitReason) {
	base, r := m.Pop()
	if r != ExitGo {
		return 0, r
	}
	elem, r := m.Pop()
	if r != ExitGo {
		return 0, r
	}
	return setIndex(elem, base)
}

func handleSetOp(m *Machine, ins pcode.Instruction) ExitReason {
	switch ins.Arg2 {
	case pcode.SetINTERSECTION, pcode.SetUNION, pcode.SetDIFFERENCE, pcode.SetSYMDIFF,
		pcode.SetEQUALITY, pcode.SetNONEQUALITY, pcode.SetCONTAINS:
		b, r := m.PopSet()
		if r != ExitGo {
			return r
		}
		a, r := m.PopSet()
		if r != ExitGo {
			return r
		}
		switch ins.Arg2 {
		case pcode.SetINTERSECTION:
			return m.PushSet(a.Intersection(b))
		case pcode.SetUNION:
			return m.PushSet(a.Union(b))
		case pcode.SetDIFFERENCE:
			return m.PushSet(a.Difference(b))
		case pcode.SetSYMDIFF:
			return m.PushSet(a.SymmetricDifference(b))
		case pcode.SetEQUALITY:
			return m.Push(boolWord(a == b))
		case pcode.SetNONEQUALITY:
			return m.Push(boolWord(a != b))
		default:
			return m.Push(boolWord(a.Contains(b)))
		}

	case pcode.SetMEMBER, pcode.SetINCLUDE, pcode.SetEXCLUDE:
		i, r := m.popElement()
		if r != ExitGo {
			return r
		}
		s, r := m.PopSet()
		if r != ExitGo {
			return r
		}
		switch ins.Arg2 {
		case pcode.SetMEMBER:
			return m.Push(boolWord(s.Member(i)))
		case pcode.SetINCLUDE:
			return m.PushSet(s.Include(i))
		default:
			return m.PushSet(s.Exclude(i))
		}

	case pcode.SetCARD:
		s, r := m.PopSet()
		if r != ExitGo {
			return r
		}
		return m.Push(uint16(s.Card()))

	case pcode.SetSINGLETON:
		i, r := m.popElement()
		if r != ExitGo {
			return r
		}
		return m.PushSet(Singleton(i))

	case pcode.SetSUBRANGE:
		base, r := m.Pop()
		if r != ExitGo {
			return r
		}
		hi, r := m.Pop()
		if r != ExitGo {
			return r
		}
		lo, r := m.Pop()
		if r != ExitGo {
			return r
		}
		l, h := int(int16(lo))-int(int16(base)), int(int16(hi))-int(int16(base))
		if l > h {
			return m.PushSet(Set{})
		}
		if l < 0 || h >= SetSize {
			return ExitOutOfRange
		}
		return m.PushSet(Subrange(l, h))
	}
	return ExitBadSetOp
}
