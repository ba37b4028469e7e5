package vm

import "pcode/pkg/pcode"

type memKind uint8

const (
	memLoad memKind = iota
	memStore
	memAddress
)

type memWidth uint8

const (
	widthWord memWidth = iota
	widthByte
	widthMulti // byte count popped from the stack
)

// memOp describes one load/store/address opcode. Direct and leveled forms
// share a descriptor apart from the leveled flag.
type memOp struct {
	kind    memKind
	width   memWidth
	leveled bool
	indexed bool
}

var memOps = map[byte]memOp{
	pcode.LD:   {memLoad, widthWord, false, false},
	pcode.LDB:  {memLoad, widthByte, false, false},
	pcode.LDM:  {memLoad, widthMulti, false, false},
	pcode.ST:   {memStore, widthWord, false, false},
	pcode.STB:  {memStore, widthByte, false, false},
	pcode.STM:  {memStore, widthMulti, false, false},
	pcode.LDX:  {memLoad, widthWord, false, true},
	pcode.LDXB: {memLoad, widthByte, false, true},
	pcode.LDXM: {memLoad, widthMulti, false, true},
	pcode.STX:  {memStore, widthWord, false, true},
	pcode.STXB: {memStore, widthByte, false, true},
	pcode.STXM: {memStore, widthMulti, false, true},
	pcode.LA:   {memAddress, widthWord, false, false},
	pcode.LAX:  {memAddress, widthWord, false, true},

	pcode.LDS:   {memLoad, widthWord, true, false},
	pcode.LDSB:  {memLoad, widthByte, true, false},
	pcode.LDSM:  {memLoad, widthMulti, true, false},
	pcode.STS:   {memStore, widthWord, true, false},
	pcode.STSB:  {memStore, widthByte, true, false},
	pcode.STSM:  {memStore, widthMulti, true, false},
	pcode.LDSX:  {memLoad, widthWord, true, true},
	pcode.LDSXB: {memLoad, widthByte, true, true},
	pcode.LDSXM: {memLoad, widthMulti, true, true},
	pcode.STSX:  {memStore, widthWord, true, true},
	pcode.STSXB: {memStore, widthByte, true, true},
	pcode.STSXM: {memStore, widthMulti, true, true},
	pcode.LAS:   {memAddress, widthWord, true, false},
	pcode.LASX:  {memAddress, widthWord, true, true},
}

// dataAddress resolves a stack-data reference. Offsets are signed in both
// the direct and the leveled forms, so a leveled reference at level 0
// addresses exactly what its direct form does.
func (m *Machine) dataAddress(leveled bool, level uint8, offset uint16, index uint16, size int) (uint16, ExitReason) {
	base := m.Layout.StackBase
	if leveled {
		var r ExitReason
		if base, r = m.frameBase(level); r != ExitGo {
			return 0, r
		}
	}
	return m.Arena.Resolve(base, int(int16(offset))+int(int16(index)), size)
}

// Stack shapes, bottom to top:
//
//	load      [index]        [size]   -> value
//	store     [index] value           ->
//	store     [index] data    size    ->
//	address   [index]                 -> addr
func handleMemory(m *Machine, ins pcode.Instruction) ExitReason {
	desc := memOps[ins.Op]

	size := 2
	switch desc.width {
	case widthByte:
		size = 1
	case widthMulti:
		if desc.kind == memStore {
			// the byte count sits above the data
			n, r := m.Pop()
			if r != ExitGo {
				return r
			}
			size = int(n)
		}
	}

	var (
		value uint16
		data  []byte
		r     ExitReason
	)
	if desc.kind == memStore {
		if desc.width == widthMulti {
			data, r = m.PopBytes(size)
		} else {
			value, r = m.Pop()
		}
		if r != ExitGo {
			return r
		}
	}
	if desc.kind == memLoad && desc.width == widthMulti {
		n, r := m.Pop()
		if r != ExitGo {
			return r
		}
		size = int(n)
	}

	var index uint16
	if desc.indexed {
		if index, r = m.Pop(); r != ExitGo {
			return r
		}
	}
	if desc.kind == memAddress {
		size = 0
	}
	addr, r := m.dataAddress(desc.leveled, ins.Arg1, ins.Arg2, index, size)
	if r != ExitGo {
		return r
	}

	switch desc.kind {
	case memAddress:
		return m.Push(addr)
	case memLoad:
		return m.load(addr, desc.width, size)
	default:
		return m.store(addr, desc.width, value, data)
	}
}

func (m *Machine) load(addr uint16, width memWidth, size int) ExitReason {
	switch width {
	case widthWord:
		v, r := m.Arena.Word(addr)
		if r != ExitGo {
			return r
		}
		return m.Push(v)
	case widthByte:
		b, r := m.Arena.Byte(addr)
		if r != ExitGo {
			return r
		}
		return m.Push(uint16(b))
	}
	data, r := m.Arena.Inspect(addr, size)
	if r != ExitGo {
		return r
	}
	return m.PushBytes(data)
}

func (m *Machine) store(addr uint16, width memWidth, value uint16, data []byte) ExitReason {
	switch width {
	case widthWord:
		return m.Arena.SetWord(addr, value)
	case widthByte:
		return m.Arena.SetByte(addr, byte(value))
	}
	return m.Arena.Mutate(addr, len(data), func(dst []byte) {
		copy(dst, data)
	})
}

// Indirect forms take the address from the stack:
//
//	LDI/LDIB  addr          -> value
//	LDIM      addr size     -> data
//	STI/STIB  addr value    ->
//	STIM      addr data size ->
func handleIndirect(m *Machine, ins pcode.Instruction) ExitReason {
	var (
		value uint16
		data  []byte
		size  = 2
		r     ExitReason
	)
	width := widthWord
	switch ins.Op {
	case pcode.LDIB, pcode.STIB:
		width, size = widthByte, 1
	case pcode.LDIM, pcode.STIM:
		width = widthMulti
		n, r := m.Pop()
		if r != ExitGo {
			return r
		}
		size = int(n)
	}

	store := ins.Op == pcode.STI || ins.Op == pcode.STIB || ins.Op == pcode.STIM
	if store {
		if width == widthMulti {
			data, r = m.PopBytes(size)
		} else {
			value, r = m.Pop()
		}
		if r != ExitGo {
			return r
		}
	}
	addr, r := m.Pop()
	if r != ExitGo {
		return r
	}
	if store {
		return m.store(addr, width, value, data)
	}
	return m.load(addr, width, size)
}

func handleStackOp(m *Machine, ins pcode.Instruction) ExitReason {
	switch ins.Op {
	case pcode.DUP:
		v, r := m.Top()
		if r != ExitGo {
			return r
		}
		return m.Push(v)
	case pcode.XCHG:
		b, r := m.Pop()
		if r != ExitGo {
			return r
		}
		a, r := m.Pop()
		if r != ExitGo {
			return r
		}
		if r := m.Push(b); r != ExitGo {
			return r
		}
		return m.Push(a)
	case pcode.DROP:
		return m.Discard(1)
	case pcode.PUSH:
		return m.Push(ins.Arg2)
	case pcode.PUSHB:
		return m.Push(uint16(ins.Arg1))
	case pcode.INDS:
		n := int(int16(ins.Arg2))
		if n%2 != 0 {
			return ExitBadSP
		}
		return m.Reserve(n / 2)
	case pcode.LAC:
		if int(ins.Arg2) > int(m.Layout.ROSize) {
			return ExitBadAddress
		}
		return m.Push(m.Layout.RODataBase + ins.Arg2)
	case pcode.PUSHS:
		return m.Push(m.CSP)
	case pcode.POPS:
		mark, r := m.Pop()
		if r != ExitGo {
			return r
		}
		// markers nest; restoring one can only release buffers
		if mark > m.CSP {
			return ExitBadSP
		}
		m.CSP = mark
		return ExitGo
	}
	return ExitIllegalOpcode
}

// handleCall builds a frame for a procedure declared at static level
// Arg1 and jumps to Arg2. The frame's first word is the static link, so
// FP always addresses it:
//
//	FP+0  static link
//	FP+2  dynamic link (caller FP)
//	FP+4  return PC
//	FP+6  caller level
func handleCall(m *Machine, ins pcode.Instruction) ExitReason {
	level := ins.Arg1
	if level == 0 || level > m.Level+1 {
		return ExitBadAddress
	}
	link, r := m.frameBase(level - 1)
	if r != ExitGo {
		return r
	}
	frame := uint16(m.next())
	for _, w := range [...]uint16{link, m.FP, m.PC, uint16(m.Level)} {
		if r := m.Push(w); r != ExitGo {
			return r
		}
	}
	m.FP = frame
	m.Level = level
	m.PC = ins.Arg2
	return ExitGo
}

func handleReturn(m *Machine, _ pcode.Instruction) ExitReason {
	if m.Level == 0 {
		return ExitBadSP
	}
	var link [3]uint16
	for i := range link {
		w, r := m.Arena.Word(m.FP + 2 + uint16(2*i))
		if r != ExitGo {
			return r
		}
		link[i] = w
	}
	m.SP = m.FP - 2
	m.FP = link[0]
	m.PC = link[1]
	m.Level = uint8(link[2])
	return ExitGo
}
