package vm

import (
	"encoding/binary"
	"fmt"
)

type Access uint8

const (
	Immutable Access = iota
	Mutable
)

// Region is a named, contiguous slice of the arena with one access mode.
type Region struct {
	Name   string
	Start  int
	End    int // exclusive
	Access Access
}

// Arena is the single byte-addressable data space. Every access is checked
// against the arena size and the region table; word accesses must be
// two-byte aligned and must not straddle two regions.
type Arena struct {
	buffer  []byte
	regions []Region
	release func([]byte) error
}

func NewArena(size int) (*Arena, error) {
	if size <= 0 || size > 1<<16 {
		return nil, fmt.Errorf("arena size %d outside (0, 65536]", size)
	}
	buffer, release, err := allocBuffer(size)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate arena: %w", err)
	}
	return &Arena{
		buffer:  buffer,
		regions: []Region{{Name: "data", Start: 0, End: size, Access: Mutable}},
		release: release,
	}, nil
}

// Partition replaces the region table. Regions must tile the arena in
// ascending order.
func (a *Arena) Partition(regions ...Region) error {
	next := 0
	for _, r := range regions {
		if r.Start != next || r.End < r.Start {
			return fmt.Errorf("region %s [%d,%d) does not follow offset %d", r.Name, r.Start, r.End, next)
		}
		next = r.End
	}
	if next != len(a.buffer) {
		return fmt.Errorf("regions cover %d of %d bytes", next, len(a.buffer))
	}
	a.regions = regions
	return nil
}

// Load copies data into the arena at addr regardless of region access.
// It is used to place read-only constants before execution starts.
func (a *Arena) Load(addr int, data []byte) error {
	if addr < 0 || addr+len(data) > len(a.buffer) {
		return fmt.Errorf("load of %d bytes at %d exceeds arena of %d", len(data), addr, len(a.buffer))
	}
	copy(a.buffer[addr:], data)
	return nil
}

func (a *Arena) Size() int {
	return len(a.buffer)
}

// Close releases the backing buffer. The arena must not be used afterwards.
func (a *Arena) Close() error {
	if a.buffer == nil {
		return nil
	}
	buf := a.buffer
	a.buffer = nil
	if a.release != nil {
		return a.release(buf)
	}
	return nil
}

func (a *Arena) regionOf(addr int) *Region {
	for i := range a.regions {
		if addr >= a.regions[i].Start && addr < a.regions[i].End {
			return &a.regions[i]
		}
	}
	return nil
}

// check validates an access of length bytes at addr. An empty access needs
// only addr to lie within the arena or at its end.
func (a *Arena) check(addr, length int, write bool) ExitReason {
	if addr < 0 || length < 0 || addr+length > len(a.buffer) {
		return ExitBadAddress
	}
	if length == 0 {
		return ExitGo
	}
	r := a.regionOf(addr)
	if r == nil || addr+length > r.End {
		return ExitBadAddress
	}
	if write && r.Access != Mutable {
		return ExitBadAddress
	}
	return ExitGo
}

// Resolve computes base+offset and verifies that size bytes starting there
// lie inside the arena. All computed addresses go through here.
func (a *Arena) Resolve(base uint16, offset int, size int) (uint16, ExitReason) {
	addr := int(base) + offset
	if addr < 0 || addr+size > len(a.buffer) {
		return 0, ExitBadAddress
	}
	return uint16(addr), ExitGo
}

func (a *Arena) Word(addr uint16) (uint16, ExitReason) {
	if addr&1 != 0 {
		return 0, ExitBadAddress
	}
	if r := a.check(int(addr), 2, false); r != ExitGo {
		return 0, r
	}
	return binary.LittleEndian.Uint16(a.buffer[addr:]), ExitGo
}

func (a *Arena) SetWord(addr uint16, v uint16) ExitReason {
	if addr&1 != 0 {
		return ExitBadAddress
	}
	if r := a.check(int(addr), 2, true); r != ExitGo {
		return r
	}
	binary.LittleEndian.PutUint16(a.buffer[addr:], v)
	return ExitGo
}

func (a *Arena) Byte(addr uint16) (byte, ExitReason) {
	if r := a.check(int(addr), 1, false); r != ExitGo {
		return 0, r
	}
	return a.buffer[addr], ExitGo
}

func (a *Arena) SetByte(addr uint16, v byte) ExitReason {
	if r := a.check(int(addr), 1, true); r != ExitGo {
		return r
	}
	a.buffer[addr] = v
	return ExitGo
}

// Inspect returns a read-only view of length bytes at addr. The view aliases
// the arena and is only valid until the next mutation.
func (a *Arena) Inspect(addr uint16, length int) ([]byte, ExitReason) {
	if r := a.check(int(addr), length, false); r != ExitGo {
		return nil, r
	}
	return a.buffer[int(addr) : int(addr)+length], ExitGo
}

// Mutate hands fn a writable view of length bytes at addr.
func (a *Arena) Mutate(addr uint16, length int, fn func([]byte)) ExitReason {
	if r := a.check(int(addr), length, true); r != ExitGo {
		return r
	}
	fn(a.buffer[int(addr) : int(addr)+length])
	return ExitGo
}

// CanWrite reports whether length bytes at addr are writable.
func (a *Arena) CanWrite(addr uint16, length int) bool {
	return a.check(int(addr), length, true) == ExitGo
}
