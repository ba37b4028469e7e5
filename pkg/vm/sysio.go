package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pcode/pkg/pcode"
)

// Stack shapes for SYSIO, bottom to top. Every selector except IORESULT
// starts with the file number.
//
//	ASSIGN     file name(addr len) text
//	RESET      file                      (also REWRITE APPEND CLOSE READLN WRITELN)
//	RECSIZE    file size
//	EOF        file                   -> bool   (also EOLN)
//	SEEK       file record
//	READINT    file varAddr                      (also READCHR READSTR)
//	WRITEINT   file value width                  (also WRITECHR)
//	WRITESTR   file addr len width
//	WRITELONG  file lo hi width
//	WRITEREAL  file real(4) width precision
//	READBIN    file addr records                 (also WRITEBIN)
//	IORESULT                          -> code
func handleSysIO(m *Machine, ins pcode.Instruction) ExitReason {
	if ins.Arg2 >= pcode.NumIoOps {
		return ExitBadSysIO
	}
	if ins.Arg2 == pcode.IoIORESULT {
		if r := m.Push(m.IOResult); r != ExitGo {
			return r
		}
		m.IOResult = 0
		return ExitGo
	}

	// Operands above the file number.
	var (
		args   []uint16
		name   []byte
		number float64
		nargs  int
		r      ExitReason
	)
	switch ins.Arg2 {
	case pcode.IoRECSIZE, pcode.IoSEEK, pcode.IoREADINT, pcode.IoREADCHR, pcode.IoREADSTR:
		nargs = 1
	case pcode.IoWRITEINT, pcode.IoWRITECHR, pcode.IoREADBIN, pcode.IoWRITEBIN:
		nargs = 2
	case pcode.IoWRITESTR, pcode.IoWRITELONG:
		nargs = 3
	case pcode.IoWRITEREAL:
		nargs = 2
	case pcode.IoASSIGN:
		nargs = 1
	}
	args = make([]uint16, nargs)
	for i := nargs - 1; i >= 0; i-- {
		if args[i], r = m.Pop(); r != ExitGo {
			return r
		}
	}
	switch ins.Arg2 {
	case pcode.IoWRITEREAL:
		if number, r = m.PopReal(); r != ExitGo {
			return r
		}
	case pcode.IoASSIGN:
		if name, _, r = m.popString(); r != ExitGo {
			return r
		}
	}

	fileNo, r := m.Pop()
	if r != ExitGo {
		return r
	}

	switch ins.Arg2 {
	case pcode.IoASSIGN:
		e, r := m.Files.entry(fileNo)
		if r != ExitGo {
			return r
		}
		m.setIOResult(ioCode(e.assign(string(name), args[0] != 0)))
		return ExitGo
	case pcode.IoRESET, pcode.IoREWRITE, pcode.IoAPPEND:
		e, r := m.Files.entry(fileNo)
		if r != ExitGo {
			return r
		}
		mode := ModeRead
		switch ins.Arg2 {
		case pcode.IoREWRITE:
			mode = ModeWrite
		case pcode.IoAPPEND:
			mode = ModeAppend
		}
		m.setIOResult(e.openAs(mode))
		return ExitGo
	case pcode.IoRECSIZE:
		e, r := m.Files.entry(fileNo)
		if r != ExitGo {
			return r
		}
		if args[0] == 0 {
			return ExitOutOfRange
		}
		e.recSize = int(args[0])
		return ExitGo
	}

	e, r := m.Files.open(fileNo)
	if r != ExitGo {
		return r
	}
	switch ins.Arg2 {
	case pcode.IoCLOSE:
		m.setIOResult(ioCode(e.close()))
		return ExitGo
	case pcode.IoEOF:
		return m.Push(boolWord(e.eof()))
	case pcode.IoEOLN:
		return m.Push(boolWord(e.eoln()))
	case pcode.IoSEEK:
		m.setIOResult(e.seek(int(args[0])))
		return ExitGo
	case pcode.IoREADLN, pcode.IoREADINT, pcode.IoREADCHR, pcode.IoREADSTR, pcode.IoREADBIN:
		in, code := e.input()
		if code != 0 {
			m.setIOResult(code)
			return ExitGo
		}
		var size int
		if ins.Arg2 == pcode.IoREADBIN {
			size = int(args[1]) * e.recSize
		}
		return m.readFile(ins.Arg2, in, args, size)
	}

	out, code := e.output()
	if code != 0 {
		m.setIOResult(code)
		return ExitGo
	}
	var text string
	switch ins.Arg2 {
	case pcode.IoWRITELN:
		text = "\n"
	case pcode.IoWRITEINT:
		text = pad(strconv.Itoa(int(int16(args[0]))), args[1])
	case pcode.IoWRITECHR:
		text = pad(string([]byte{byte(args[0])}), args[1])
	case pcode.IoWRITESTR:
		data, r := m.Arena.Inspect(args[0], int(args[1]))
		if r != ExitGo {
			return r
		}
		text = pad(string(data), args[2])
	case pcode.IoWRITELONG:
		text = pad(strconv.FormatInt(int64(int32(uint32(args[1])<<16|uint32(args[0]))), 10), args[2])
	case pcode.IoWRITEREAL:
		text = pad(formatReal(number, int16(args[1])), args[0])
	case pcode.IoWRITEBIN:
		data, r := m.Arena.Inspect(args[0], int(args[1])*e.recSize)
		if r != ExitGo {
			return r
		}
		text = string(data)
	}
	if _, err := out.WriteString(text); err != nil {
		m.setIOResult(IOWriteError)
	}
	return ExitGo
}

// setIOResult records the first failure until IORESULT reads it.
func (m *Machine) setIOResult(code uint16) {
	if m.IOResult == 0 {
		m.IOResult = code
	}
}

// pad right-aligns text in a field of width characters.
func pad(text string, width uint16) string {
	w := int(int16(width))
	if w <= len(text) {
		return text
	}
	return strings.Repeat(" ", w-len(text)) + text
}

// formatReal prints fixed point when a precision is given and scientific
// notation otherwise.
func formatReal(f float64, precision int16) string {
	if precision >= 0 {
		return strconv.FormatFloat(f, 'f', int(precision), 64)
	}
	return strconv.FormatFloat(f, 'E', 10, 64)
}

// readFile performs a read selector. size is the byte length of a binary
// transfer: the record count times the file's record size.
func (m *Machine) readFile(op uint16, in *bufio.Reader, args []uint16, size int) ExitReason {
	switch op {
	case pcode.IoREADLN:
		if _, err := in.ReadString('\n'); err != nil && err != io.EOF {
			m.setIOResult(IOReadError)
		}
		return ExitGo

	case pcode.IoREADCHR:
		if !m.Arena.CanWrite(args[0], 1) {
			return ExitBadAddress
		}
		c, err := in.ReadByte()
		if err != nil {
			m.setIOResult(IOReadError)
			return ExitGo
		}
		return m.Arena.SetByte(args[0], c)

	case pcode.IoREADINT:
		if args[0]&1 != 0 || !m.Arena.CanWrite(args[0], 2) {
			return ExitBadAddress
		}
		token, err := scanToken(in)
		if err != nil {
			m.setIOResult(IOReadError)
			return ExitGo
		}
		v, code := parseInteger([]byte(token), -1<<15, 1<<15-1)
		if code != 0 {
			m.setIOResult(IOBadNumeric)
			return ExitGo
		}
		return m.Arena.SetWord(args[0], uint16(v))

	case pcode.IoREADSTR:
		sv, r := m.readStringVar(args[0])
		if r != ExitGo {
			return r
		}
		var line []byte
		for {
			b, err := in.Peek(1)
			if err != nil || b[0] == '\n' || b[0] == '\r' {
				break
			}
			c, _ := in.ReadByte()
			line = append(line, c)
		}
		if len(line) > int(sv.Cap) {
			line = line[:sv.Cap]
		}
		return m.setStringVar(args[0], sv, line)

	case pcode.IoREADBIN:
		if !m.Arena.CanWrite(args[0], size) {
			return ExitBadAddress
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(in, buf); err != nil {
			m.setIOResult(IOReadError)
			return ExitGo
		}
		return m.Arena.Mutate(args[0], len(buf), func(dst []byte) { copy(dst, buf) })
	}
	return ExitBadSysIO
}

// scanToken skips blanks and line breaks and reads one blank-delimited
// word.
func scanToken(in io.ByteScanner) (string, error) {
	var sb strings.Builder
	for {
		c, err := in.ReadByte()
		if err != nil {
			if sb.Len() > 0 && err == io.EOF {
				return sb.String(), nil
			}
			return "", fmt.Errorf("reading integer: %w", err)
		}
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			if sb.Len() == 0 {
				continue
			}
			in.UnreadByte()
			return sb.String(), nil
		}
		sb.WriteByte(c)
	}
}
