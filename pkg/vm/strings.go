package vm

import (
	"bytes"
	"math"
	"strconv"
)

// A string value on the operand stack is its buffer address with the
// length on top. A string variable is three words in memory:
//
//	+0  buffer address
//	+2  current length
//	+4  buffer capacity
type StringVar struct {
	Buf uint16
	Len uint16
	Cap uint16
}

// allocString claims size bytes on the string stack. Buffers are released
// in bulk by POPS.
func (m *Machine) allocString(size int) (uint16, ExitReason) {
	size = alignUp(size, 2)
	if size < 0 || int(m.CSP)+size > int(m.Layout.StrStackSize) {
		return 0, ExitStringStackOverflow
	}
	addr := m.CSP
	m.CSP += uint16(size)
	return addr, ExitGo
}

// tempString copies data into a fresh string-stack buffer and pushes it as
// a string value.
func (m *Machine) tempString(data []byte) ExitReason {
	addr, r := m.allocString(len(data))
	if r != ExitGo {
		return r
	}
	if r := m.Arena.Mutate(addr, len(data), func(dst []byte) { copy(dst, data) }); r != ExitGo {
		return r
	}
	if r := m.Push(addr); r != ExitGo {
		return r
	}
	return m.Push(uint16(len(data)))
}

func (m *Machine) readStringVar(addr uint16) (StringVar, ExitReason) {
	var w [3]uint16
	for i := range w {
		v, r := m.Arena.Word(addr + uint16(2*i))
		if r != ExitGo {
			return StringVar{}, r
		}
		w[i] = v
	}
	sv := StringVar{Buf: w[0], Len: w[1], Cap: w[2]}
	if sv.Len > sv.Cap {
		return StringVar{}, ExitStringOverflow
	}
	return sv, ExitGo
}

func (m *Machine) writeStringVar(addr uint16, sv StringVar) ExitReason {
	for i, w := range [...]uint16{sv.Buf, sv.Len, sv.Cap} {
		if r := m.Arena.SetWord(addr+uint16(2*i), w); r != ExitGo {
			return r
		}
	}
	return ExitGo
}

// setStringVar replaces the contents of the string variable at addr with
// data. data must fit the variable's capacity.
func (m *Machine) setStringVar(addr uint16, sv StringVar, data []byte) ExitReason {
	if !m.Arena.CanWrite(addr, 6) {
		return ExitBadAddress
	}
	if r := m.Arena.Mutate(sv.Buf, len(data), func(dst []byte) { copy(dst, data) }); r != ExitGo {
		return r
	}
	sv.Len = uint16(len(data))
	return m.writeStringVar(addr, sv)
}

// stringBytes returns a copy of the contents of sv.
func (m *Machine) stringBytes(sv StringVar) ([]byte, ExitReason) {
	data, r := m.Arena.Inspect(sv.Buf, int(sv.Len))
	if r != ExitGo {
		return nil, r
	}
	return bytes.Clone(data), ExitGo
}

// popString pops a string value and returns a copy of its bytes along with
// the buffer address.
func (m *Machine) popString() ([]byte, uint16, ExitReason) {
	n, r := m.Pop()
	if r != ExitGo {
		return nil, 0, r
	}
	addr, r := m.Pop()
	if r != ExitGo {
		return nil, 0, r
	}
	data, r := m.Arena.Inspect(addr, int(n))
	if r != ExitGo {
		return nil, 0, r
	}
	return bytes.Clone(data), addr, ExitGo
}

func (m *Machine) popStringVar() (uint16, StringVar, ExitReason) {
	addr, r := m.Pop()
	if r != ExitGo {
		return 0, StringVar{}, r
	}
	sv, r := m.readStringVar(addr)
	return addr, sv, r
}

// strInit gives the variable at addr an empty buffer of capacity size.
func (m *Machine) strInit(addr uint16, size int) ExitReason {
	if size < 0 || size > math.MaxUint16 {
		return ExitStringOverflow
	}
	if !m.Arena.CanWrite(addr, 6) {
		return ExitBadAddress
	}
	buf, r := m.allocString(size)
	if r != ExitGo {
		return r
	}
	return m.writeStringVar(addr, StringVar{Buf: buf, Cap: uint16(size)})
}

// strCopy assigns src to the variable, clipped to its capacity. Copying a
// buffer onto itself leaves it alone.
func (m *Machine) strCopy(addr uint16, sv StringVar, src []byte, srcAddr uint16) ExitReason {
	if srcAddr == sv.Buf {
		return ExitGo
	}
	if len(src) > int(sv.Cap) {
		src = src[:sv.Cap]
	}
	return m.setStringVar(addr, sv, src)
}

// strCat appends src in place. It fails without touching the destination
// when the result would not fit.
func (m *Machine) strCat(addr uint16, sv StringVar, src []byte) ExitReason {
	if int(sv.Len)+len(src) > int(sv.Cap) {
		return ExitStringOverflow
	}
	cur, r := m.stringBytes(sv)
	if r != ExitGo {
		return r
	}
	return m.setStringVar(addr, sv, append(cur, src...))
}

// CompareStrings orders a and b bytewise; a strict prefix sorts first.
func CompareStrings(a, b []byte) int {
	return bytes.Compare(a, b)
}

// strInsert inserts src before 1-based position index, clipping at the
// variable's capacity.
func (m *Machine) strInsert(addr uint16, sv StringVar, src []byte, index int) ExitReason {
	cur, r := m.stringBytes(sv)
	if r != ExitGo {
		return r
	}
	index = min(max(index, 1), len(cur)+1) - 1
	out := make([]byte, 0, len(cur)+len(src))
	out = append(out, cur[:index]...)
	out = append(out, src...)
	out = append(out, cur[index:]...)
	if len(out) > int(sv.Cap) {
		out = out[:sv.Cap]
	}
	return m.setStringVar(addr, sv, out)
}

// strDelete removes count characters starting at 1-based position index.
// Positions outside the string delete nothing.
func (m *Machine) strDelete(addr uint16, sv StringVar, index, count int) ExitReason {
	cur, r := m.stringBytes(sv)
	if r != ExitGo {
		return r
	}
	if index < 1 || index > len(cur) || count <= 0 {
		return ExitGo
	}
	end := min(index-1+count, len(cur))
	out := append(cur[:index-1:index-1], cur[end:]...)
	return m.setStringVar(addr, sv, out)
}

// substring returns count characters of s from 1-based position index,
// clipped to what s holds.
func substring(s []byte, index, count int) []byte {
	if index < 1 || index > len(s) || count <= 0 {
		return nil
	}
	end := min(index-1+count, len(s))
	return s[index-1 : end]
}

// position is the 1-based position of sub in s, or 0.
func position(sub, s []byte) int {
	if len(sub) == 0 {
		return 0
	}
	return bytes.Index(s, sub) + 1
}

func (m *Machine) strVal(text []byte, valAddr, codeAddr uint16, long bool) ExitReason {
	lo, hi, size := int64(math.MinInt16), int64(math.MaxInt16), 2
	if long {
		lo, hi, size = math.MinInt32, math.MaxInt32, 4
	}
	if !m.Arena.CanWrite(valAddr, size) || !m.Arena.CanWrite(codeAddr, 2) || valAddr&1 != 0 {
		return ExitBadAddress
	}
	value, code := parseInteger(text, lo, hi)
	if long {
		if r := m.Arena.SetWord(valAddr, uint16(value)); r != ExitGo {
			return r
		}
		if r := m.Arena.SetWord(valAddr+2, uint16(uint32(value)>>16)); r != ExitGo {
			return r
		}
	} else if r := m.Arena.SetWord(valAddr, uint16(value)); r != ExitGo {
		return r
	}
	return m.Arena.SetWord(codeAddr, uint16(code))
}

// numberToString stores the decimal form of v in the variable at addr.
func (m *Machine) numberToString(addr uint16, v int64) ExitReason {
	sv, r := m.readStringVar(addr)
	if r != ExitGo {
		return r
	}
	text := []byte(strconv.FormatInt(v, 10))
	if len(text) > int(sv.Cap) {
		return ExitStringOverflow
	}
	return m.setStringVar(addr, sv, text)
}
