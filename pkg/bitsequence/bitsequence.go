package bitsequence

import "fmt"

// BitSequence is a fixed-length sequence of bits packed LSB-first within
// each byte (bit 0 is the least significant bit of byte 0).
type BitSequence struct {
	buf    []byte
	bitLen int
}

func New(bitLen int) *BitSequence {
	return &BitSequence{buf: make([]byte, (bitLen+7)/8), bitLen: bitLen}
}

// FromBytesLSBWithLength copies b into a sequence of bitLen bits. Bits past
// bitLen in the final byte must be zero.
func FromBytesLSBWithLength(b []byte, bitLen int) (*BitSequence, error) {
	requiredBytes := (bitLen + 7) / 8
	if len(b) != requiredBytes {
		return nil, fmt.Errorf("bit length %d requires exactly %d bytes, got %d", bitLen, requiredBytes, len(b))
	}
	if remainingBits := bitLen % 8; remainingBits > 0 {
		if b[len(b)-1]&byte(0xFF<<remainingBits) != 0 {
			return nil, fmt.Errorf("invalid bit sequence: bits beyond position %d must be zeros", bitLen-1)
		}
	}
	buf := make([]byte, requiredBytes)
	copy(buf, b)
	return &BitSequence{buf: buf, bitLen: bitLen}, nil
}

// BitAt reports bit i. Positions outside the sequence read as false.
func (bs *BitSequence) BitAt(i int) bool {
	if i < 0 || i >= bs.bitLen {
		return false
	}
	return bs.buf[i>>3]&(1<<uint(i&7)) != 0
}

func (bs *BitSequence) Set(i int) {
	if i < 0 || i >= bs.bitLen {
		panic(fmt.Sprintf("bit %d out of range [0,%d)", i, bs.bitLen))
	}
	bs.buf[i>>3] |= 1 << uint(i&7)
}

func (bs *BitSequence) Len() int {
	return bs.bitLen
}

// ToBytesLSB returns a copy of the packed bits.
func (bs *BitSequence) ToBytesLSB() []byte {
	out := make([]byte, len(bs.buf))
	copy(out, bs.buf)
	return out
}
