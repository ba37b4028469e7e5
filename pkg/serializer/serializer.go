package serializer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

var ErrShortBuffer = errors.New("short buffer")

// EncodeGeneralNatural encodes x in the compact variable-length format:
//  1. x == 0: a single 0x00 octet.
//  2. x fits in a header + remainder form: the header's leading ones give the
//     number of little-endian remainder octets.
//  3. Otherwise 0xFF followed by x as 8 little-endian octets.
func EncodeGeneralNatural(x uint64) []byte {
	if x == 0 {
		return []byte{0x00}
	}

	l := uint((bits.Len64(x) - 1) / 7)
	if l >= 8 {
		out := make([]byte, 9)
		out[0] = 0xFF
		binary.LittleEndian.PutUint64(out[1:], x)
		return out
	}

	header := (1 << 8) - (1 << (8 - l)) + (x >> (8 * l))
	out := []byte{byte(header)}
	if l > 0 {
		remainder := x & ((uint64(1) << (8 * l)) - 1)
		out = append(out, EncodeLittleEndian(int(l), remainder)...)
	}
	return out
}

// DecodeGeneralNatural is the inverse of EncodeGeneralNatural. It returns the
// value and the number of octets consumed.
func DecodeGeneralNatural(p []byte) (x uint64, n int, ok bool) {
	if len(p) == 0 {
		return 0, 0, false
	}

	header := p[0]
	switch header {
	case 0x00:
		return 0, 1, true
	case 0xFF:
		if len(p) < 9 {
			return 0, 0, false
		}
		return binary.LittleEndian.Uint64(p[1:9]), 9, true
	}

	l := bits.LeadingZeros8(^header)
	base := byte(int(1<<8) - (1 << (8 - l)))
	high := uint64(header - base)
	if len(p) < 1+l {
		return 0, 0, false
	}
	return (high << (8 * l)) | DecodeLittleEndian(p[1:1+l]), 1 + l, true
}

func EncodeLittleEndian(octets int, x uint64) []byte {
	switch octets {
	case 2:
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(x))
		return buf[:]
	case 4:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(x))
		return buf[:]
	case 8:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], x)
		return buf[:]
	default:
		out := make([]byte, octets)
		for i := range out {
			out[i] = byte(x)
			x >>= 8
		}
		return out
	}
}

func DecodeLittleEndian(b []byte) uint64 {
	switch len(b) {
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	default:
		var x uint64
		for i, v := range b {
			x |= uint64(v) << (8 * i)
		}
		return x
	}
}

// UnsignedToSigned reinterprets an octets-wide unsigned value as two's
// complement.
func UnsignedToSigned(octets int, x uint64) int64 {
	if octets < 1 || octets > 8 {
		panic(fmt.Sprintf("unsupported octet width: %d", octets))
	}
	if octets == 8 {
		return int64(x)
	}
	shift := uint(64 - 8*octets)
	return int64(x<<shift) >> shift
}

// SignedToUnsigned is the inverse of UnsignedToSigned.
func SignedToUnsigned(octets int, a int64) uint64 {
	if octets == 8 {
		return uint64(a)
	}
	return uint64(a) & (uint64(1)<<(8*octets) - 1)
}

// AppendBlob appends a general-natural length prefix followed by blob.
func AppendBlob(dst, blob []byte) []byte {
	dst = append(dst, EncodeGeneralNatural(uint64(len(blob)))...)
	return append(dst, blob...)
}

// ReadBlob reads a length-prefixed blob written by AppendBlob and returns it
// together with the remaining input.
func ReadBlob(p []byte) (blob, rest []byte, err error) {
	n, used, ok := DecodeGeneralNatural(p)
	if !ok {
		return nil, nil, fmt.Errorf("blob length: %w", ErrShortBuffer)
	}
	p = p[used:]
	if uint64(len(p)) < n {
		return nil, nil, fmt.Errorf("blob of %d bytes: %w", n, ErrShortBuffer)
	}
	return p[:n], p[n:], nil
}
