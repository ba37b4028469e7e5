package image

import (
	"bytes"
	"errors"
	"fmt"

	"pcode/pkg/serializer"

	"golang.org/x/crypto/blake2b"
)

// ArenaLimit is the size of the 16-bit addressable data space.
const ArenaLimit = 1 << 16

// Defaults applied to zero sizing fields by WithDefaults.
const (
	DefaultStrAlloc     = 80
	DefaultStrStackSize = 4096
	DefaultStackSize    = 8192
	DefaultHeapSize     = 8192
)

var magic = [4]byte{'P', 'C', 'X', '1'}

var (
	ErrBadMagic  = errors.New("not a program image")
	ErrDigest    = errors.New("image digest mismatch")
	ErrTooLarge  = errors.New("image does not fit in the data space")
	ErrBadEntry  = errors.New("entry point outside instruction space")
	ErrEmptyCode = errors.New("image has no instructions")
)

// Image is a fully linked program ready to load: instruction space,
// read-only data and the sizing parameters for the data space.
type Image struct {
	Entry        uint16
	Code         []byte
	ROData       []byte
	StrAlloc     uint16 // capacity of a default string buffer
	StrStackSize uint16
	StackSize    uint16
	HeapSize     uint16
}

// LastInstruction is the highest valid offset in instruction space.
func (img *Image) LastInstruction() uint16 {
	return uint16(len(img.Code) - 1)
}

// WithDefaults returns a copy with zero sizing fields replaced by defaults.
func (img Image) WithDefaults() *Image {
	if img.StrAlloc == 0 {
		img.StrAlloc = DefaultStrAlloc
	}
	if img.StrStackSize == 0 {
		img.StrStackSize = DefaultStrStackSize
	}
	if img.StackSize == 0 {
		img.StackSize = DefaultStackSize
	}
	if img.HeapSize == 0 {
		img.HeapSize = DefaultHeapSize
	}
	return &img
}

// ArenaSize is the number of data-space bytes the image needs once loaded.
func (img *Image) ArenaSize() int {
	return alignWord(int(img.StrStackSize)) + alignWord(len(img.ROData)) + int(img.StackSize) + int(img.HeapSize)
}

func (img *Image) Validate() error {
	if len(img.Code) == 0 {
		return ErrEmptyCode
	}
	if len(img.Code) > ArenaLimit {
		return fmt.Errorf("%d bytes of code: %w", len(img.Code), ErrTooLarge)
	}
	if int(img.Entry) >= len(img.Code) {
		return fmt.Errorf("entry %d, last instruction %d: %w", img.Entry, img.LastInstruction(), ErrBadEntry)
	}
	if size := img.ArenaSize(); size > ArenaLimit {
		return fmt.Errorf("%d bytes of data space: %w", size, ErrTooLarge)
	}
	return nil
}

// Encode serializes the image: magic, sizing words, code and read-only data
// as length-prefixed blobs, then a blake2b-256 digest of everything before it.
func Encode(img *Image) []byte {
	buf := make([]byte, 0, 32+len(img.Code)+len(img.ROData)+blake2b.Size256)
	buf = append(buf, magic[:]...)
	for _, v := range []uint16{img.Entry, img.StrAlloc, img.StrStackSize, img.StackSize, img.HeapSize} {
		buf = append(buf, serializer.EncodeLittleEndian(2, uint64(v))...)
	}
	buf = serializer.AppendBlob(buf, img.Code)
	buf = serializer.AppendBlob(buf, img.ROData)
	sum := blake2b.Sum256(buf)
	return append(buf, sum[:]...)
}

func Decode(p []byte) (*Image, error) {
	if len(p) < len(magic)+10+blake2b.Size256 || !bytes.Equal(p[:len(magic)], magic[:]) {
		return nil, ErrBadMagic
	}
	body, sum := p[:len(p)-blake2b.Size256], p[len(p)-blake2b.Size256:]
	if want := blake2b.Sum256(body); !bytes.Equal(want[:], sum) {
		return nil, ErrDigest
	}

	rest := body[len(magic):]
	var words [5]uint16
	for i := range words {
		words[i] = uint16(serializer.DecodeLittleEndian(rest[:2]))
		rest = rest[2:]
	}
	code, rest, err := serializer.ReadBlob(rest)
	if err != nil {
		return nil, fmt.Errorf("code section: %w", err)
	}
	rodata, rest, err := serializer.ReadBlob(rest)
	if err != nil {
		return nil, fmt.Errorf("rodata section: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("extra %d bytes after sections", len(rest))
	}

	img := &Image{
		Entry:        words[0],
		StrAlloc:     words[1],
		StrStackSize: words[2],
		StackSize:    words[3],
		HeapSize:     words[4],
		Code:         append([]byte(nil), code...),
		ROData:       append([]byte(nil), rodata...),
	}
	return img, nil
}

// Digest identifies an image by the blake2b-256 hash of its encoding.
func Digest(img *Image) [32]byte {
	return blake2b.Sum256(Encode(img))
}

func alignWord(n int) int {
	return (n + 1) &^ 1
}
