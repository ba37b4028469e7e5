package vm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// MaxFiles is the capacity of the file table. File 0 is INPUT and file 1
// is OUTPUT; both are bound to the host streams at load time.
const MaxFiles = 8

const (
	InputFile  = 0
	OutputFile = 1
)

type FileMode uint8

const (
	ModeClosed FileMode = iota
	ModeRead
	ModeWrite
	ModeAppend
)

// I/O result codes reported through IORESULT.
const (
	IOFileNotFound  = 2
	IOPathNotFound  = 3
	IOAccessDenied  = 5
	IOReadError     = 100
	IOWriteError    = 101
	IONotAssigned   = 102
	IONotForInput   = 104
	IONotForOutput  = 105
	IOBadNumeric    = 106
	IOSeekError     = 107
	IOUnknownFailed = 255
)

type fileEntry struct {
	name    string
	text    bool
	mode    FileMode
	recSize int
	std     bool
	denied  bool // host files may not be opened

	file   *os.File
	reader *bufio.Reader
	writer *bufio.Writer
}

type FileTable struct {
	entries [MaxFiles]fileEntry
}

func (t *FileTable) init(stdin io.Reader, stdout io.Writer, sandbox bool) {
	t.entries = [MaxFiles]fileEntry{}
	for i := range t.entries {
		t.entries[i].denied = sandbox
	}
	t.entries[InputFile] = fileEntry{name: "INPUT", text: true, mode: ModeRead, std: true, recSize: 1,
		reader: bufio.NewReader(stdin)}
	t.entries[OutputFile] = fileEntry{name: "OUTPUT", text: true, mode: ModeWrite, std: true, recSize: 1,
		writer: bufio.NewWriter(stdout)}
}

// entry bounds-checks a file number taken from the operand stack.
func (t *FileTable) entry(n uint16) (*fileEntry, ExitReason) {
	if int(n) >= MaxFiles {
		return nil, ExitBadFile
	}
	return &t.entries[n], ExitGo
}

// open returns the entry for n and fails when it has no open stream.
func (t *FileTable) open(n uint16) (*fileEntry, ExitReason) {
	e, r := t.entry(n)
	if r != ExitGo {
		return nil, r
	}
	if e.mode == ModeClosed {
		return nil, ExitFileNotOpen
	}
	return e, ExitGo
}

func ioCode(err error) uint16 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, fs.ErrNotExist):
		return IOFileNotFound
	case errors.Is(err, fs.ErrPermission):
		return IOAccessDenied
	}
	return IOUnknownFailed
}

func (e *fileEntry) assign(name string, text bool) error {
	err := e.close()
	e.name = name
	e.text = text
	if e.recSize == 0 {
		e.recSize = 1
	}
	return err
}

// openAs opens the assigned host file. The standard streams ignore the
// request.
func (e *fileEntry) openAs(mode FileMode) uint16 {
	if e.std {
		return 0
	}
	if e.name == "" {
		return IONotAssigned
	}
	if e.denied {
		return IOAccessDenied
	}
	if err := e.close(); err != nil {
		return ioCode(err)
	}

	var flags int
	switch mode {
	case ModeRead:
		flags = os.O_RDONLY
	case ModeWrite:
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case ModeAppend:
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(e.name, flags, 0644)
	if err != nil {
		return ioCode(err)
	}
	e.file = f
	e.mode = mode
	if mode == ModeRead {
		e.reader = bufio.NewReader(f)
	} else {
		e.writer = bufio.NewWriter(f)
	}
	return 0
}

func (e *fileEntry) flush() error {
	if e.writer == nil {
		return nil
	}
	return e.writer.Flush()
}

// close flushes and releases the host stream; the assignment is kept.
func (e *fileEntry) close() error {
	if e.std {
		return e.flush()
	}
	if e.file == nil {
		return nil
	}
	err := e.flush()
	if cerr := e.file.Close(); err == nil {
		err = cerr
	}
	e.file, e.reader, e.writer = nil, nil, nil
	e.mode = ModeClosed
	return err
}

func (e *fileEntry) input() (*bufio.Reader, uint16) {
	if e.reader == nil {
		return nil, IONotForInput
	}
	return e.reader, 0
}

func (e *fileEntry) output() (*bufio.Writer, uint16) {
	if e.writer == nil {
		return nil, IONotForOutput
	}
	return e.writer, 0
}

func (e *fileEntry) eof() bool {
	if e.reader == nil {
		return true
	}
	_, err := e.reader.Peek(1)
	return err != nil
}

func (e *fileEntry) eoln() bool {
	if e.reader == nil {
		return true
	}
	b, err := e.reader.Peek(1)
	return err != nil || b[0] == '\n' || b[0] == '\r'
}

// seek positions a binary file at record rec.
func (e *fileEntry) seek(rec int) uint16 {
	if e.std || e.file == nil {
		return IOSeekError
	}
	if err := e.flush(); err != nil {
		return IOWriteError
	}
	if _, err := e.file.Seek(int64(rec)*int64(e.recSize), io.SeekStart); err != nil {
		return IOSeekError
	}
	if e.reader != nil {
		e.reader.Reset(e.file)
	}
	if e.writer != nil {
		e.writer.Reset(e.file)
	}
	return 0
}

func (t *FileTable) flushAll() {
	for i := range t.entries {
		t.entries[i].flush()
	}
}

func (t *FileTable) closeAll() error {
	var errs []error
	for i := range t.entries {
		if err := t.entries[i].close(); err != nil {
			errs = append(errs, fmt.Errorf("file %d (%s): %w", i, t.entries[i].name, err))
		}
	}
	return errors.Join(errs...)
}
