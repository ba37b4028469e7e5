package serializer

import (
	"bytes"
	"errors"
	"testing"
)

func TestGeneralNaturalRoundTrip(t *testing.T) {
	for _, x := range []uint64{0, 1, 127, 128, 255, 16383, 16384, 1 << 21, 1<<56 - 1, 1 << 56, ^uint64(0)} {
		enc := EncodeGeneralNatural(x)
		got, n, ok := DecodeGeneralNatural(enc)
		if !ok || n != len(enc) || got != x {
			t.Errorf("x=%d: decoded (%d, %d, %v) from %x", x, got, n, ok, enc)
		}
	}
}

func TestGeneralNaturalShortInput(t *testing.T) {
	enc := EncodeGeneralNatural(1 << 20)
	if _, _, ok := DecodeGeneralNatural(enc[:len(enc)-1]); ok {
		t.Error("expected failure on truncated input")
	}
}

func TestUnsignedToSigned(t *testing.T) {
	tests := []struct {
		octets int
		x      uint64
		want   int64
	}{
		{2, 0xffff, -1},
		{2, 0x7fff, 32767},
		{2, 0x8000, -32768},
		{4, 0xfffffffe, -2},
		{1, 0x80, -128},
	}
	for _, tt := range tests {
		if got := UnsignedToSigned(tt.octets, tt.x); got != tt.want {
			t.Errorf("UnsignedToSigned(%d, %#x) = %d, want %d", tt.octets, tt.x, got, tt.want)
		}
		if back := SignedToUnsigned(tt.octets, tt.want); back != tt.x {
			t.Errorf("SignedToUnsigned(%d, %d) = %#x, want %#x", tt.octets, tt.want, back, tt.x)
		}
	}
}

func TestBlobFraming(t *testing.T) {
	buf := AppendBlob(nil, []byte("hello"))
	buf = AppendBlob(buf, nil)
	buf = append(buf, 0xAA)

	first, rest, err := ReadBlob(buf)
	if err != nil || !bytes.Equal(first, []byte("hello")) {
		t.Fatalf("first blob = %q, %v", first, err)
	}
	second, rest, err := ReadBlob(rest)
	if err != nil || len(second) != 0 {
		t.Fatalf("second blob = %q, %v", second, err)
	}
	if !bytes.Equal(rest, []byte{0xAA}) {
		t.Errorf("rest = %x, want aa", rest)
	}

	if _, _, err := ReadBlob([]byte{5, 'a'}); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("err = %v, want ErrShortBuffer", err)
	}
}
