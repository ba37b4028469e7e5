package vm

// The operand stack grows upward from StackBase toward HeapBase. SP holds
// the address of the top word, so SP+2 is the next free slot.

func (m *Machine) next() int {
	return int(m.SP + 2)
}

// Depth is the number of words currently on the stack.
func (m *Machine) Depth() int {
	return (m.next() - int(m.Layout.StackBase)) / 2
}

func (m *Machine) Push(v uint16) ExitReason {
	next := m.next()
	if next < int(m.Layout.StackBase) || next+2 > int(m.Layout.HeapBase) {
		return ExitBadSP
	}
	if r := m.Arena.SetWord(uint16(next), v); r != ExitGo {
		return r
	}
	m.SP = uint16(next)
	return ExitGo
}

func (m *Machine) Pop() (uint16, ExitReason) {
	if m.Depth() < 1 {
		return 0, ExitBadSP
	}
	v, r := m.Arena.Word(m.SP)
	if r != ExitGo {
		return 0, r
	}
	m.SP -= 2
	return v, ExitGo
}

// Top reads the word on top of the stack without popping it.
func (m *Machine) Top() (uint16, ExitReason) {
	if m.Depth() < 1 {
		return 0, ExitBadSP
	}
	return m.Arena.Word(m.SP)
}

// Discard drops n words.
func (m *Machine) Discard(n int) ExitReason {
	if n < 0 || m.Depth() < n {
		return ExitBadSP
	}
	m.SP -= uint16(2 * n)
	return ExitGo
}

// Reserve claims n uninitialized words (negative n releases them).
func (m *Machine) Reserve(n int) ExitReason {
	next := m.next() + 2*n
	if next < int(m.Layout.StackBase) || next > int(m.Layout.HeapBase) {
		return ExitBadSP
	}
	m.SP = uint16(next - 2)
	return ExitGo
}

// PushBytes pushes len(data) bytes, padded to whole words. The first byte
// lands at the lowest address.
func (m *Machine) PushBytes(data []byte) ExitReason {
	size := alignUp(len(data), 2)
	next := m.next()
	if next < int(m.Layout.StackBase) || next+size > int(m.Layout.HeapBase) {
		return ExitBadSP
	}
	r := m.Arena.Mutate(uint16(next), size, func(dst []byte) {
		n := copy(dst, data)
		clear(dst[n:])
	})
	if r != ExitGo {
		return r
	}
	m.SP = uint16(next + size - 2)
	return ExitGo
}

// PopBytes pops size bytes (rounded up to whole words) and returns a view of
// them in stack order. The view is valid until the next push.
func (m *Machine) PopBytes(size int) ([]byte, ExitReason) {
	words := alignUp(size, 2) / 2
	if size < 0 || m.Depth() < words {
		return nil, ExitBadSP
	}
	start := m.next() - 2*words
	data, r := m.Arena.Inspect(uint16(start), size)
	if r != ExitGo {
		return nil, r
	}
	m.SP -= uint16(2 * words)
	return data, ExitGo
}

// PushLong pushes a 32-bit value: low word first, high word on top.
func (m *Machine) PushLong(v uint32) ExitReason {
	if r := m.Push(uint16(v)); r != ExitGo {
		return r
	}
	return m.Push(uint16(v >> 16))
}

func (m *Machine) PopLong() (uint32, ExitReason) {
	if m.Depth() < 2 {
		return 0, ExitBadSP
	}
	hi, r := m.Pop()
	if r != ExitGo {
		return 0, r
	}
	lo, r := m.Pop()
	if r != ExitGo {
		return 0, r
	}
	return uint32(hi)<<16 | uint32(lo), ExitGo
}

// frameBase resolves the base address of the frame at static level. Level 0
// is the global frame at the stack base and needs no indirection; the
// current level is FP; anything between is reached by the static links.
func (m *Machine) frameBase(level uint8) (uint16, ExitReason) {
	switch {
	case level == 0:
		return m.Layout.StackBase, ExitGo
	case level == m.Level:
		return m.FP, ExitGo
	case level > m.Level:
		return 0, ExitBadAddress
	}
	base := m.FP
	for l := m.Level; l > level; l-- {
		link, r := m.Arena.Word(base)
		if r != ExitGo {
			return 0, r
		}
		base = link
	}
	return base, ExitGo
}
