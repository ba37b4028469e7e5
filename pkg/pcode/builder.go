package pcode

import "fmt"

type fixup struct {
	at    int // offset of the 16-bit operand to patch
	label string
}

// Builder emits an instruction stream and resolves label references.
type Builder struct {
	code   []byte
	labels map[string]uint16
	fixups []fixup
}

func NewBuilder() *Builder {
	return &Builder{labels: make(map[string]uint16)}
}

// PC returns the offset the next instruction will be emitted at.
func (b *Builder) PC() uint16 {
	return uint16(len(b.code))
}

func (b *Builder) Label(name string) *Builder {
	b.labels[name] = b.PC()
	return b
}

func (b *Builder) Op(op byte) *Builder {
	b.code = Encode(b.code, Instruction{Op: op})
	return b
}

func (b *Builder) Op8(op byte, arg1 uint8) *Builder {
	b.code = Encode(b.code, Instruction{Op: op, Arg1: arg1})
	return b
}

func (b *Builder) Op16(op byte, arg2 uint16) *Builder {
	b.code = Encode(b.code, Instruction{Op: op, Arg2: arg2})
	return b
}

func (b *Builder) Op24(op byte, arg1 uint8, arg2 uint16) *Builder {
	b.code = Encode(b.code, Instruction{Op: op, Arg1: arg1, Arg2: arg2})
	return b
}

// Push emits the shortest instruction pushing v.
func (b *Builder) Push(v int16) *Builder {
	if v >= 0 && v <= 0xff {
		return b.Op8(PUSHB, uint8(v))
	}
	return b.Op16(PUSH, uint16(v))
}

// PushLong pushes a 32-bit value as two words, low word first.
func (b *Builder) PushLong(v int32) *Builder {
	b.Op16(PUSH, uint16(uint32(v)))
	return b.Op16(PUSH, uint16(uint32(v)>>16))
}

// PushSet pushes a four-word set containing the given elements.
func (b *Builder) PushSet(elems ...int) *Builder {
	var words [4]uint16
	for _, e := range elems {
		words[e/16] |= 1 << (e % 16)
	}
	for _, w := range words {
		b.Op16(PUSH, w)
	}
	return b
}

// Jump emits op with a 16-bit target resolved from label at Bytes time.
func (b *Builder) Jump(op byte, label string) *Builder {
	b.fixups = append(b.fixups, fixup{at: len(b.code) + Table[op].Len - 2, label: label})
	return b.Op16(op, 0)
}

// LongJump emits a LONGJMP with the given branch sub-opcode.
func (b *Builder) LongJump(sub byte, label string) *Builder {
	b.fixups = append(b.fixups, fixup{at: len(b.code) + 2, label: label})
	return b.Op24(LONGJMP, sub, 0)
}

// Call emits a PCAL to a procedure declared at level.
func (b *Builder) Call(level uint8, label string) *Builder {
	b.fixups = append(b.fixups, fixup{at: len(b.code) + 2, label: label})
	return b.Op24(PCAL, level, 0)
}

func (b *Builder) Lib(selector uint16) *Builder   { return b.Op16(LIB, selector) }
func (b *Builder) SysIO(selector uint16) *Builder { return b.Op16(SYSIO, selector) }
func (b *Builder) Set(sub uint16) *Builder        { return b.Op16(SETOP, sub) }
func (b *Builder) Float(sub uint16) *Builder      { return b.Op16(FLOAT, sub) }
func (b *Builder) Long(sub byte) *Builder         { return b.Op8(LONGOP, sub) }

// Bytes resolves every label reference and returns the code.
func (b *Builder) Bytes() ([]byte, error) {
	out := make([]byte, len(b.code))
	copy(out, b.code)
	for _, f := range b.fixups {
		target, ok := b.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("undefined label %q", f.label)
		}
		out[f.at] = byte(target >> 8)
		out[f.at+1] = byte(target)
	}
	return out, nil
}

// MustBytes is Bytes for code known to be well formed.
func (b *Builder) MustBytes() []byte {
	code, err := b.Bytes()
	if err != nil {
		panic(err)
	}
	return code
}
