package vm

import (
	"container/list"
	"errors"
	"sync"

	"pcode/pkg/bitsequence"
	"pcode/pkg/pcode"

	"golang.org/x/crypto/blake2b"
)

// Program is an instruction space with its instructions pre-decoded along a
// linear sweep. Offsets the sweep did not reach are decoded on demand.
type Program struct {
	Code    []byte
	decoded []pcode.Instruction
	starts  *bitsequence.BitSequence
}

// ProgramCache shares decoded programs between machines running the same
// code. It holds at most a fixed number of programs and evicts the least
// recently loaded one. It is safe for concurrent use.
type ProgramCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[[32]byte]*list.Element
	order    *list.List // front is most recent
}

type cachedProgram struct {
	hash    [32]byte
	program *Program
}

// NewProgramCache returns a cache holding up to capacity programs.
func NewProgramCache(capacity int) *ProgramCache {
	return &ProgramCache{
		capacity: max(capacity, 1),
		entries:  make(map[[32]byte]*list.Element),
		order:    list.New(),
	}
}

// Load returns the decoded form of code. Decoded programs are immutable, so
// a cached one may be shared. A nil cache decodes every time.
func (c *ProgramCache) Load(code []byte) *Program {
	if c == nil {
		return decodeProgram(code)
	}
	hash := blake2b.Sum256(code)

	c.mu.Lock()
	if el, ok := c.entries[hash]; ok {
		c.order.MoveToFront(el)
		c.mu.Unlock()
		return el.Value.(*cachedProgram).program
	}
	c.mu.Unlock()

	p := decodeProgram(code)

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[hash]; ok {
		// decoded concurrently by another machine
		c.order.MoveToFront(el)
		return el.Value.(*cachedProgram).program
	}
	c.entries[hash] = c.order.PushFront(&cachedProgram{hash: hash, program: p})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cachedProgram).hash)
	}
	return p
}

// Len reports the number of cached programs.
func (c *ProgramCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// decodeProgram pre-decodes code along a linear sweep.
func decodeProgram(code []byte) *Program {
	p := &Program{
		Code:    append([]byte(nil), code...),
		decoded: make([]pcode.Instruction, len(code)),
		starts:  bitsequence.New(len(code)),
	}
	for pc := 0; pc < len(code); {
		ins, err := pcode.Decode(p.Code, uint16(pc))
		if err != nil {
			pc++
			continue
		}
		p.decoded[pc] = ins
		p.starts.Set(pc)
		pc += ins.Len
	}
	return p
}

// Fetch returns the instruction at pc.
func (p *Program) Fetch(pc uint16) (pcode.Instruction, ExitReason) {
	if p.starts.BitAt(int(pc)) {
		return p.decoded[pc], ExitGo
	}
	ins, err := pcode.Decode(p.Code, pc)
	switch {
	case err == nil:
		return ins, ExitGo
	case errors.Is(err, pcode.ErrIllegalOpcode):
		return ins, ExitIllegalOpcode
	default:
		return ins, ExitBadPC
	}
}
