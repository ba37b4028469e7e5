package vm

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pcode/pkg/image"
	"pcode/pkg/pcode"

	"github.com/google/go-cmp/cmp"
)

func TestWriteToOutput(t *testing.T) {
	b := pcode.NewBuilder().
		Push(OutputFile).Push(42).Push(5).SysIO(pcode.IoWRITEINT).
		Push(OutputFile).Push('!').Push(0).SysIO(pcode.IoWRITECHR).
		Push(OutputFile).Op16(pcode.LAC, 0).Push(3).Push(0).SysIO(pcode.IoWRITESTR).
		Push(OutputFile).PushLong(-100000).Push(8).SysIO(pcode.IoWRITELONG).
		Push(OutputFile).Push(1).Float(pcode.FloatFLT).Push(0).Push(2).SysIO(pcode.IoWRITEREAL).
		Push(OutputFile).SysIO(pcode.IoWRITELN).
		Op(pcode.END)

	var out bytes.Buffer
	m := load(t, &image.Image{Code: b.MustBytes(), ROData: []byte("abc")}, Options{Stdout: &out})
	if r := m.Run(); r != ExitHalt {
		t.Fatalf("Run = %v at pc=%d", r, m.PC)
	}
	if diff := cmp.Diff("   42!abc -1000001.00\n", out.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestReadFromInput(t *testing.T) {
	b := pcode.NewBuilder().
		Op16(pcode.INDS, 16).
		Op16(pcode.LA, 8).Lib(pcode.LibSTRINIT).
		Push(InputFile).Op16(pcode.LA, 0).SysIO(pcode.IoREADINT).
		Push(InputFile).Op16(pcode.LA, 2).SysIO(pcode.IoREADINT).
		Push(InputFile).SysIO(pcode.IoREADLN).
		Push(InputFile).Op16(pcode.LA, 4).SysIO(pcode.IoREADCHR).
		Push(InputFile).Op16(pcode.LA, 8).SysIO(pcode.IoREADSTR).
		Push(InputFile).SysIO(pcode.IoEOLN).
		Push(InputFile).SysIO(pcode.IoREADLN).
		Push(InputFile).SysIO(pcode.IoEOF).
		Op(pcode.END)

	m := load(t, &image.Image{Code: b.MustBytes()}, Options{Stdin: strings.NewReader("17 -3 ignored\nxhello world\n")})
	if r := m.Run(); r != ExitHalt {
		t.Fatalf("Run = %v at pc=%d", r, m.PC)
	}
	if got := int16(global(t, m, 0)); got != 17 {
		t.Errorf("first integer = %d, want 17", got)
	}
	if got := int16(global(t, m, 2)); got != -3 {
		t.Errorf("second integer = %d, want -3", got)
	}
	if c, _ := m.Arena.Byte(m.Layout.StackBase + 4); c != 'x' {
		t.Errorf("character = %q, want 'x'", c)
	}
	if _, text := stringAt(t, m, m.Layout.StackBase+8); text != "hello world" {
		t.Errorf("line = %q, want \"hello world\"", text)
	}
	words := stackWords(t, m)
	if diff := cmp.Diff([]uint16{1, 1}, words[len(words)-2:]); diff != "" {
		t.Errorf("EOLN/EOF mismatch (-want +got):\n%s", diff)
	}
	if m.IOResult != 0 {
		t.Errorf("IOResult = %d, want 0", m.IOResult)
	}
}

func TestBadNumericInput(t *testing.T) {
	b := pcode.NewBuilder().
		Op16(pcode.INDS, 2).
		Push(InputFile).Op16(pcode.LA, 0).SysIO(pcode.IoREADINT).
		SysIO(pcode.IoIORESULT).
		SysIO(pcode.IoIORESULT).
		Op(pcode.END)
	m := load(t, &image.Image{Code: b.MustBytes()}, Options{Stdin: strings.NewReader("12z\n")})
	if r := m.Run(); r != ExitHalt {
		t.Fatalf("Run = %v", r)
	}
	words := stackWords(t, m)
	if diff := cmp.Diff([]uint16{IOBadNumeric, 0}, words[1:]); diff != "" {
		t.Errorf("IORESULT mismatch (-want +got):\n%s", diff)
	}
}

// fileProgram assigns the rodata name to file 2 as a text file.
func fileProgram(name string) *pcode.Builder {
	return pcode.NewBuilder().
		Push(2).Op16(pcode.LAC, 0).Push(int16(len(name))).Push(1).SysIO(pcode.IoASSIGN)
}

func TestFileRoundTrip(t *testing.T) {
	name := filepath.Join(t.TempDir(), "data.txt")

	b := fileProgram(name).
		Push(2).SysIO(pcode.IoREWRITE).
		Push(2).Push(123).Push(0).SysIO(pcode.IoWRITEINT).
		Push(2).SysIO(pcode.IoWRITELN).
		Push(2).SysIO(pcode.IoCLOSE).
		Push(2).SysIO(pcode.IoAPPEND).
		Push(2).Push('Z').Push(0).SysIO(pcode.IoWRITECHR).
		Push(2).SysIO(pcode.IoCLOSE).
		Op16(pcode.INDS, 2).
		Push(2).SysIO(pcode.IoRESET).
		Push(2).Op24(pcode.LAS, 0, 0).SysIO(pcode.IoREADINT).
		Push(2).SysIO(pcode.IoCLOSE).
		SysIO(pcode.IoIORESULT).
		Op(pcode.END)
	m := load(t, &image.Image{Code: b.MustBytes(), ROData: []byte(name)}, Options{})
	if r := m.Run(); r != ExitHalt {
		t.Fatalf("Run = %v at pc=%d", r, m.PC)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "123\nZ" {
		t.Errorf("file contents = %q, want \"123\\nZ\"", data)
	}
	if m.ExitCode != 0 {
		t.Errorf("IORESULT = %d, want 0", m.ExitCode)
	}
	if got := global(t, m, 0); got != 123 {
		t.Errorf("value read back = %d, want 123", got)
	}
}

func TestBinaryRecords(t *testing.T) {
	name := filepath.Join(t.TempDir(), "records.bin")
	b := fileProgram(name).
		Op16(pcode.INDS, 8).
		Push(0x0102).Op16(pcode.ST, 0).Push(0x0304).Op16(pcode.ST, 2).
		Push(2).Push(2).SysIO(pcode.IoRECSIZE).
		Push(2).SysIO(pcode.IoREWRITE).
		Push(2).Op16(pcode.LA, 0).Push(2).SysIO(pcode.IoWRITEBIN).
		Push(2).Op16(pcode.LA, 2).Push(1).SysIO(pcode.IoWRITEBIN).
		Push(2).SysIO(pcode.IoCLOSE).
		Push(2).SysIO(pcode.IoRESET).
		Push(2).Push(1).SysIO(pcode.IoSEEK).
		Push(2).Op16(pcode.LA, 4).Push(1).SysIO(pcode.IoREADBIN).
		Push(2).SysIO(pcode.IoCLOSE).
		SysIO(pcode.IoIORESULT).
		Op(pcode.END)
	m := load(t, &image.Image{Code: b.MustBytes(), ROData: []byte(name)}, Options{})
	if r := m.Run(); r != ExitHalt {
		t.Fatalf("Run = %v at pc=%d", r, m.PC)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if diff := cmp.Diff([]byte{0x02, 0x01, 0x04, 0x03, 0x04, 0x03}, data); diff != "" {
		t.Errorf("file mismatch (-want +got):\n%s", diff)
	}
	if got := global(t, m, 4); got != 0x0304 {
		t.Errorf("record 1 = %#x, want 0x304", got)
	}
	if m.ExitCode != 0 {
		t.Errorf("IORESULT = %d, want 0", m.ExitCode)
	}
}

func TestOpenFailureSetsIOResult(t *testing.T) {
	name := filepath.Join(t.TempDir(), "missing.txt")
	b := fileProgram(name).
		Push(2).SysIO(pcode.IoRESET).
		SysIO(pcode.IoIORESULT).
		Op(pcode.END)
	m := load(t, &image.Image{Code: b.MustBytes(), ROData: []byte(name)}, Options{})
	if r := m.Run(); r != ExitHalt {
		t.Fatalf("Run = %v", r)
	}
	if m.ExitCode != IOFileNotFound {
		t.Errorf("IORESULT = %d, want %d", m.ExitCode, IOFileNotFound)
	}
}

func TestFileNumberFaults(t *testing.T) {
	tests := []struct {
		name string
		prog *pcode.Builder
		want ExitReason
	}{
		{"file number outside table", pcode.NewBuilder().Push(MaxFiles).SysIO(pcode.IoCLOSE), ExitBadFile},
		{"assign outside table", pcode.NewBuilder().Push(200).Op16(pcode.LAC, 0).Push(0).Push(1).SysIO(pcode.IoASSIGN), ExitBadFile},
		{"eof on unopened file", pcode.NewBuilder().Push(3).SysIO(pcode.IoEOF), ExitFileNotOpen},
		{"write to unopened file", pcode.NewBuilder().Push(5).Push(1).Push(0).SysIO(pcode.IoWRITEINT), ExitFileNotOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, r := runProgram(t, tt.prog.Op(pcode.END))
			if r != tt.want {
				t.Fatalf("Run = %v, want %v", r, tt.want)
			}
			if m.Depth() == 0 {
				t.Errorf("operands were consumed by a faulting I/O call")
			}
		})
	}
}

func TestWriteToInputSetsIOResult(t *testing.T) {
	b := pcode.NewBuilder().
		Push(InputFile).Push(1).Push(0).SysIO(pcode.IoWRITEINT).
		SysIO(pcode.IoIORESULT).
		Op(pcode.END)
	m := mustHalt(t, b)
	if m.ExitCode != IONotForOutput {
		t.Errorf("IORESULT = %d, want %d", m.ExitCode, IONotForOutput)
	}
}

func TestSandboxDeniesHostFiles(t *testing.T) {
	name := filepath.Join(t.TempDir(), "out.txt")
	b := fileProgram(name).
		Push(2).SysIO(pcode.IoREWRITE).
		SysIO(pcode.IoIORESULT).
		Push(OutputFile).Push('k').Push(0).SysIO(pcode.IoWRITECHR).
		Op(pcode.END)
	var out bytes.Buffer
	m := load(t, &image.Image{Code: b.MustBytes(), ROData: []byte(name)}, Options{Stdout: &out, Sandbox: true})
	if r := m.Run(); r != ExitHalt {
		t.Fatalf("Run = %v at pc=%d", r, m.PC)
	}
	if m.ExitCode != IOAccessDenied {
		t.Errorf("IORESULT = %d, want %d", m.ExitCode, IOAccessDenied)
	}
	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Errorf("sandboxed REWRITE touched the host file: %v", err)
	}
	if out.String() != "k" {
		t.Errorf("stdout = %q, want \"k\"", out.String())
	}
}

func TestSandboxHidesEnvironment(t *testing.T) {
	getenv := func(string) string { return "secret" }
	for _, tt := range []struct {
		sandbox bool
		want    uint16
	}{
		{false, 6},
		{true, 0},
	} {
		b := pcode.NewBuilder().Op16(pcode.LAC, 0).Push(4).Lib(pcode.LibGETENV).Op(pcode.END)
		m := load(t, &image.Image{Code: b.MustBytes(), ROData: []byte("HOME")}, Options{Getenv: getenv, Sandbox: tt.sandbox})
		if r := m.Run(); r != ExitHalt {
			t.Fatalf("Run = %v", r)
		}
		words := stackWords(t, m)
		if got := words[len(words)-1]; got != tt.want {
			t.Errorf("sandbox=%v: GETENV length = %d, want %d", tt.sandbox, got, tt.want)
		}
	}
}

func TestReadIntRejectsOddAddress(t *testing.T) {
	b := pcode.NewBuilder().Op16(pcode.INDS, 4).
		Push(InputFile).Op16(pcode.LA, 1)
	readPC := b.PC()
	b.SysIO(pcode.IoREADINT).
		Op(pcode.END)
	m := load(t, &image.Image{Code: b.MustBytes()}, Options{Stdin: strings.NewReader("12 34")})
	if r := m.Run(); r != ExitBadAddress {
		t.Fatalf("Run = %v, want %v", r, ExitBadAddress)
	}
	if m.PC != readPC {
		t.Errorf("PC = %d, want %d", m.PC, readPC)
	}
	// the faulting read consumed nothing
	rest, _ := m.Files.entries[InputFile].reader.ReadString(0)
	if rest != "12 34" {
		t.Errorf("remaining input = %q, want \"12 34\"", rest)
	}
}
