package vm

import (
	"bytes"
	"math/rand/v2"

	"pcode/pkg/pcode"
)

// Stack shapes for LIB, bottom to top. A string value (s) is two words,
// address then length; var is the address of a string variable.
//
//	EXIT       code                        halts
//	NEW        size                 -> ptr
//	DISPOSE    ptr
//	GETENV     name(s)              -> s
//	STRINIT    var
//	BSTRINIT   var capacity
//	STRCPY     var s                       (also STRCAT)
//	STRCPYC    var char                    (also STRCATC)
//	STRCMP     a(s) b(s)            -> -1, 0 or 1
//	STRVAL     s valAddr codeAddr          (also LONGVAL)
//	STRINSERT  src(s) var index
//	STRDELETE  var index count
//	STRCOPY    s index count        -> s
//	STRPOS     sub(s) s             -> position
//	STRLEN     s                    -> length
//	INTSTR     value var
//	LONGSTR    lo hi var
//	MKSTKC     char                 -> s
//	STRDUP     s                    -> s
//	FILLCHAR   addr count value
//	MOVE       src dest count
//	RANDOM     range                -> value
//	RANDOMIZE
//	UPCASE     char                 -> char
//	MEMAVAIL                        -> lo hi
//	MAXAVAIL                        -> lo hi
type libFunc func(m *Machine) ExitReason

var libTable [pcode.NumLibCalls]libFunc

func init() {
	libTable = [pcode.NumLibCalls]libFunc{
		pcode.LibEXIT:      libExit,
		pcode.LibNEW:       libNew,
		pcode.LibDISPOSE:   libDispose,
		pcode.LibGETENV:    libGetenv,
		pcode.LibSTRINIT:   libStrInit,
		pcode.LibBSTRINIT:  libBStrInit,
		pcode.LibSTRCPY:    libStrCopy,
		pcode.LibSTRCPYC:   libStrCopyChar,
		pcode.LibSTRCAT:    libStrCat,
		pcode.LibSTRCATC:   libStrCatChar,
		pcode.LibSTRCMP:    libStrCompare,
		pcode.LibSTRVAL:    func(m *Machine) ExitReason { return libVal(m, false) },
		pcode.LibSTRINSERT: libStrInsert,
		pcode.LibSTRDELETE: libStrDelete,
		pcode.LibSTRCOPY:   libSubstring,
		pcode.LibSTRPOS:    libStrPos,
		pcode.LibSTRLEN:    libStrLen,
		pcode.LibINTSTR:    libIntStr,
		pcode.LibLONGSTR:   libLongStr,
		pcode.LibMKSTKC:    libCharString,
		pcode.LibSTRDUP:    libStrDup,
		pcode.LibLONGVAL:   func(m *Machine) ExitReason { return libVal(m, true) },
		pcode.LibFILLCHAR:  libFillChar,
		pcode.LibMOVE:      libMove,
		pcode.LibRANDOM:    libRandom,
		pcode.LibRANDOMIZE: libRandomize,
		pcode.LibUPCASE:    libUpcase,
		pcode.LibMEMAVAIL:  func(m *Machine) ExitReason { return m.PushLong(uint32(m.Heap.MemAvail())) },
		pcode.LibMAXAVAIL:  func(m *Machine) ExitReason { return m.PushLong(uint32(m.Heap.MaxAvail())) },
	}
}

func handleLibCall(m *Machine, ins pcode.Instruction) ExitReason {
	if ins.Arg2 >= pcode.NumLibCalls {
		return ExitBadLibCall
	}
	return libTable[ins.Arg2](m)
}

func libExit(m *Machine) ExitReason {
	code, r := m.Pop()
	if r != ExitGo {
		return r
	}
	m.ExitCode = int16(code)
	return ExitHalt
}

func libNew(m *Machine) ExitReason {
	size, r := m.Pop()
	if r != ExitGo {
		return r
	}
	ptr, r := m.Heap.New(int(size))
	if r != ExitGo {
		return r
	}
	return m.Push(ptr)
}

func libDispose(m *Machine) ExitReason {
	ptr, r := m.Pop()
	if r != ExitGo {
		return r
	}
	return m.Heap.Dispose(ptr)
}

func libGetenv(m *Machine) ExitReason {
	name, _, r := m.popString()
	if r != ExitGo {
		return r
	}
	return m.tempString([]byte(m.getenv(string(name))))
}

func libStrInit(m *Machine) ExitReason {
	addr, r := m.Pop()
	if r != ExitGo {
		return r
	}
	return m.strInit(addr, int(m.Layout.StrAlloc))
}

func libBStrInit(m *Machine) ExitReason {
	size, r := m.Pop()
	if r != ExitGo {
		return r
	}
	addr, r := m.Pop()
	if r != ExitGo {
		return r
	}
	return m.strInit(addr, int(size))
}

func libStrCopy(m *Machine) ExitReason {
	src, srcAddr, r := m.popString()
	if r != ExitGo {
		return r
	}
	addr, sv, r := m.popStringVar()
	if r != ExitGo {
		return r
	}
	return m.strCopy(addr, sv, src, srcAddr)
}

func libStrCopyChar(m *Machine) ExitReason {
	c, r := m.Pop()
	if r != ExitGo {
		return r
	}
	addr, sv, r := m.popStringVar()
	if r != ExitGo {
		return r
	}
	if sv.Cap == 0 {
		return m.setStringVar(addr, sv, nil)
	}
	return m.setStringVar(addr, sv, []byte{byte(c)})
}

func libStrCat(m *Machine) ExitReason {
	src, _, r := m.popString()
	if r != ExitGo {
		return r
	}
	addr, sv, r := m.popStringVar()
	if r != ExitGo {
		return r
	}
	return m.strCat(addr, sv, src)
}

func libStrCatChar(m *Machine) ExitReason {
	c, r := m.Pop()
	if r != ExitGo {
		return r
	}
	addr, sv, r := m.popStringVar()
	if r != ExitGo {
		return r
	}
	return m.strCat(addr, sv, []byte{byte(c)})
}

func libStrCompare(m *Machine) ExitReason {
	b, _, r := m.popString()
	if r != ExitGo {
		return r
	}
	a, _, r := m.popString()
	if r != ExitGo {
		return r
	}
	return m.Push(uint16(int16(CompareStrings(a, b))))
}

func libVal(m *Machine, long bool) ExitReason {
	codeAddr, r := m.Pop()
	if r != ExitGo {
		return r
	}
	valAddr, r := m.Pop()
	if r != ExitGo {
		return r
	}
	text, _, r := m.popString()
	if r != ExitGo {
		return r
	}
	return m.strVal(text, valAddr, codeAddr, long)
}

func libStrInsert(m *Machine) ExitReason {
	index, r := m.Pop()
	if r != ExitGo {
		return r
	}
	addr, sv, r := m.popStringVar()
	if r != ExitGo {
		return r
	}
	src, _, r := m.popString()
	if r != ExitGo {
		return r
	}
	return m.strInsert(addr, sv, src, int(int16(index)))
}

func libStrDelete(m *Machine) ExitReason {
	count, r := m.Pop()
	if r != ExitGo {
		return r
	}
	index, r := m.Pop()
	if r != ExitGo {
		return r
	}
	addr, sv, r := m.popStringVar()
	if r != ExitGo {
		return r
	}
	return m.strDelete(addr, sv, int(int16(index)), int(int16(count)))
}

func libSubstring(m *Machine) ExitReason {
	count, r := m.Pop()
	if r != ExitGo {
		return r
	}
	index, r := m.Pop()
	if r != ExitGo {
		return r
	}
	s, _, r := m.popString()
	if r != ExitGo {
		return r
	}
	return m.tempString(substring(s, int(int16(index)), int(int16(count))))
}

func libStrPos(m *Machine) ExitReason {
	s, _, r := m.popString()
	if r != ExitGo {
		return r
	}
	sub, _, r := m.popString()
	if r != ExitGo {
		return r
	}
	return m.Push(uint16(position(sub, s)))
}

func libStrLen(m *Machine) ExitReason {
	n, r := m.Pop()
	if r != ExitGo {
		return r
	}
	if r := m.Discard(1); r != ExitGo {
		return r
	}
	return m.Push(n)
}

func libIntStr(m *Machine) ExitReason {
	addr, r := m.Pop()
	if r != ExitGo {
		return r
	}
	v, r := m.Pop()
	if r != ExitGo {
		return r
	}
	return m.numberToString(addr, int64(int16(v)))
}

func libLongStr(m *Machine) ExitReason {
	addr, r := m.Pop()
	if r != ExitGo {
		return r
	}
	v, r := m.PopLong()
	if r != ExitGo {
		return r
	}
	return m.numberToString(addr, int64(int32(v)))
}

func libCharString(m *Machine) ExitReason {
	c, r := m.Pop()
	if r != ExitGo {
		return r
	}
	return m.tempString([]byte{byte(c)})
}

func libStrDup(m *Machine) ExitReason {
	s, _, r := m.popString()
	if r != ExitGo {
		return r
	}
	return m.tempString(s)
}

func libFillChar(m *Machine) ExitReason {
	value, r := m.Pop()
	if r != ExitGo {
		return r
	}
	count, r := m.Pop()
	if r != ExitGo {
		return r
	}
	addr, r := m.Pop()
	if r != ExitGo {
		return r
	}
	return m.Arena.Mutate(addr, int(count), func(dst []byte) {
		copy(dst, bytes.Repeat([]byte{byte(value)}, len(dst)))
	})
}

func libMove(m *Machine) ExitReason {
	count, r := m.Pop()
	if r != ExitGo {
		return r
	}
	dest, r := m.Pop()
	if r != ExitGo {
		return r
	}
	src, r := m.Pop()
	if r != ExitGo {
		return r
	}
	data, r := m.Arena.Inspect(src, int(count))
	if r != ExitGo {
		return r
	}
	return m.Arena.Mutate(dest, int(count), func(dst []byte) { copy(dst, data) })
}

func libRandom(m *Machine) ExitReason {
	n, r := m.Pop()
	if r != ExitGo {
		return r
	}
	if int16(n) <= 0 {
		return m.Push(0)
	}
	return m.Push(uint16(m.rng.IntN(int(int16(n)))))
}

func libRandomize(m *Machine) ExitReason {
	m.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	return ExitGo
}

func libUpcase(m *Machine) ExitReason {
	c, r := m.Pop()
	if r != ExitGo {
		return r
	}
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	return m.Push(c)
}
