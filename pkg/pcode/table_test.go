package pcode

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTableLengthsFollowFlags(t *testing.T) {
	for op := 0; op < 256; op++ {
		info := Table[op]
		want := 1
		if op&0x80 != 0 {
			want++
		}
		if op&0x40 != 0 {
			want += 2
		}
		if info.Len != want {
			t.Errorf("opcode 0x%02x: Len = %d, want %d", op, info.Len, want)
		}
	}
}

func TestDecodeOperands(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want Instruction
	}{
		{"no operand", []byte{ADD}, Instruction{Op: ADD, Len: 1}},
		{"8-bit", []byte{PUSHB, 7}, Instruction{Op: PUSHB, Arg1: 7, Len: 2}},
		{"16-bit", []byte{JMP, 0x12, 0x34}, Instruction{Op: JMP, Arg2: 0x1234, Len: 3}},
		{"both", []byte{LDS, 2, 0xff, 0xfe}, Instruction{Op: LDS, Arg1: 2, Arg2: 0xfffe, Len: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.code, 0)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeNeverReadsUnflaggedOperand(t *testing.T) {
	// A lone no-operand opcode at the very end must decode without reading past it.
	if _, err := Decode([]byte{NOP, NOP, END}, 2); err != nil {
		t.Fatalf("Decode: %v", err)
	}
}

func TestDecodeFaults(t *testing.T) {
	if _, err := Decode([]byte{0x3f}, 0); !errors.Is(err, ErrIllegalOpcode) {
		t.Errorf("undefined opcode: err = %v, want ErrIllegalOpcode", err)
	}
	if _, err := Decode([]byte{JMP, 0x00}, 0); !errors.Is(err, ErrTruncated) {
		t.Errorf("short operand: err = %v, want ErrTruncated", err)
	}
	if _, err := Decode([]byte{NOP}, 1); !errors.Is(err, ErrTruncated) {
		t.Errorf("pc past end: err = %v, want ErrTruncated", err)
	}
}

func TestDirectForm(t *testing.T) {
	for leveled, direct := range directForm {
		if !Table[leveled].HasArg8 || !Table[leveled].HasArg16 {
			t.Errorf("%s should carry level and offset", Table[leveled].Name)
		}
		if Table[direct].HasArg8 || !Table[direct].HasArg16 {
			t.Errorf("%s should carry only an offset", Table[direct].Name)
		}
	}
	if _, ok := DirectForm(ADD); ok {
		t.Error("ADD has no direct form")
	}
}

func TestBuilderResolvesLabels(t *testing.T) {
	b := NewBuilder()
	b.Jump(JMP, "end").Op(NOP).Label("end").Op(END)
	code, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	want := []byte{JMP, 0x00, 0x04, NOP, END}
	if diff := cmp.Diff(want, code); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}

	if _, err := NewBuilder().Jump(JMP, "missing").Bytes(); err == nil {
		t.Error("expected an undefined label error")
	}
}

func TestBuilderPushSet(t *testing.T) {
	code := NewBuilder().PushSet(0, 17, 63).MustBytes()
	var words []uint16
	for pc := uint16(0); int(pc) < len(code); {
		ins, err := Decode(code, pc)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		words = append(words, ins.Arg2)
		pc += uint16(ins.Len)
	}
	want := []uint16{0x0001, 0x0002, 0x0000, 0x8000}
	if diff := cmp.Diff(want, words); diff != "" {
		t.Errorf("set words mismatch (-want +got):\n%s", diff)
	}
}
