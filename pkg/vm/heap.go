package vm

// Heap chunks start on HeapUnit boundaries. A chunk begins with an 8-byte
// header and the caller's pointer addresses the byte after it:
//
//	+0  forward size, in units (this chunk)
//	+2  back size, in units (physically preceding chunk, 0 for the first)
//	+4  in-use flag
//	+6  magic
//
// A free chunk also stores the next free chunk at +8 and its own address
// at +10. The free list is ordered by ascending size.
const (
	chunkHeader = 8
	chunkMagic  = 0x4850
)

type Heap struct {
	arena    *Arena
	base     int
	end      int
	head     uint16 // first free chunk, 0 when the list is empty
	coalesce bool
}

type chunk struct {
	addr  uint16
	size  uint16
	back  uint16
	inUse bool
}

func (h *Heap) init(arena *Arena, base, end int, coalesce bool) {
	*h = Heap{arena: arena, base: base, end: end, coalesce: coalesce}
	units := (end - base) / HeapUnit
	if units == 0 {
		return
	}
	c := chunk{addr: uint16(base), size: uint16(units)}
	if h.writeHeader(c) == ExitGo {
		h.push(c)
	}
}

func (h *Heap) read(addr uint16) (chunk, ExitReason) {
	hdr, r := h.arena.Inspect(addr, chunkHeader)
	if r != ExitGo {
		return chunk{}, r
	}
	word := func(i int) uint16 { return uint16(hdr[i]) | uint16(hdr[i+1])<<8 }
	if word(6) != chunkMagic {
		return chunk{}, ExitBadAddress
	}
	return chunk{addr: addr, size: word(0), back: word(2), inUse: word(4) != 0}, ExitGo
}

func (h *Heap) writeHeader(c chunk) ExitReason {
	for i, w := range [...]uint16{c.size, c.back, boolWord(c.inUse), chunkMagic} {
		if r := h.arena.SetWord(c.addr+uint16(2*i), w); r != ExitGo {
			return r
		}
	}
	return ExitGo
}

func (h *Heap) nextFree(addr uint16) (uint16, ExitReason) {
	return h.arena.Word(addr + chunkHeader)
}

func (h *Heap) setNextFree(addr, next uint16) ExitReason {
	if r := h.arena.SetWord(addr+chunkHeader, next); r != ExitGo {
		return r
	}
	return h.arena.SetWord(addr+chunkHeader+2, addr)
}

// follower is the chunk physically after c, if any.
func (h *Heap) follower(c chunk) (uint16, bool) {
	next := int(c.addr) + int(c.size)*HeapUnit
	return uint16(next), next < h.end
}

// push inserts a free chunk in size order, after any chunks of equal size.
func (h *Heap) push(c chunk) ExitReason {
	var prev uint16
	cur := h.head
	for cur != 0 {
		cc, r := h.read(cur)
		if r != ExitGo {
			return r
		}
		if cc.size > c.size {
			break
		}
		prev = cur
		if cur, r = h.nextFree(cur); r != ExitGo {
			return r
		}
	}
	if r := h.setNextFree(c.addr, cur); r != ExitGo {
		return r
	}
	if prev == 0 {
		h.head = c.addr
		return ExitGo
	}
	return h.setNextFree(prev, c.addr)
}

// unlink removes addr from the free list.
func (h *Heap) unlink(addr uint16) ExitReason {
	var prev uint16
	for cur := h.head; cur != 0; {
		next, r := h.nextFree(cur)
		if r != ExitGo {
			return r
		}
		if cur == addr {
			if prev == 0 {
				h.head = next
				return ExitGo
			}
			return h.setNextFree(prev, next)
		}
		prev, cur = cur, next
	}
	return ExitBadAddress
}

func (h *Heap) setBack(addr, back uint16) ExitReason {
	return h.arena.SetWord(addr+2, back)
}

// New allocates size bytes and returns the payload address. When no free
// chunk is large enough it returns 0 with ExitNewFailed.
func (h *Heap) New(size int) (uint16, ExitReason) {
	if size < 0 {
		return 0, ExitNewFailed
	}
	units := (size + chunkHeader + HeapUnit - 1) / HeapUnit

	for cur := h.head; cur != 0; {
		c, r := h.read(cur)
		if r != ExitGo {
			return 0, r
		}
		if int(c.size) < units {
			if cur, r = h.nextFree(cur); r != ExitGo {
				return 0, r
			}
			continue
		}

		if r := h.unlink(c.addr); r != ExitGo {
			return 0, r
		}
		if rest := int(c.size) - units; rest >= 1 {
			c.size = uint16(units)
			tail := chunk{addr: c.addr + uint16(units*HeapUnit), size: uint16(rest), back: c.size}
			if r := h.writeHeader(tail); r != ExitGo {
				return 0, r
			}
			if after, ok := h.follower(tail); ok {
				if r := h.setBack(after, tail.size); r != ExitGo {
					return 0, r
				}
			}
			if r := h.push(tail); r != ExitGo {
				return 0, r
			}
		}
		c.inUse = true
		if r := h.writeHeader(c); r != ExitGo {
			return 0, r
		}
		return c.addr + chunkHeader, ExitGo
	}
	return 0, ExitNewFailed
}

// chunkOf validates a payload address returned by New.
func (h *Heap) chunkOf(ptr uint16) (chunk, ExitReason) {
	addr := int(ptr) - chunkHeader
	if addr < h.base || addr >= h.end || (addr-h.base)%HeapUnit != 0 {
		return chunk{}, ExitBadAddress
	}
	c, r := h.read(uint16(addr))
	if r != ExitGo {
		return chunk{}, r
	}
	if c.size == 0 || addr+int(c.size)*HeapUnit > h.end {
		return chunk{}, ExitBadAddress
	}
	return c, ExitGo
}

// Dispose returns the chunk at ptr to the free list. Neighbouring free
// chunks are merged only when the heap was created with coalescing.
func (h *Heap) Dispose(ptr uint16) ExitReason {
	c, r := h.chunkOf(ptr)
	if r != ExitGo {
		return r
	}
	if !c.inUse {
		return ExitDoubleDispose
	}
	c.inUse = false
	if r := h.writeHeader(c); r != ExitGo {
		return r
	}

	if h.coalesce {
		if c, r = h.merge(c); r != ExitGo {
			return r
		}
		if r := h.writeHeader(c); r != ExitGo {
			return r
		}
	}
	return h.push(c)
}

func (h *Heap) merge(c chunk) (chunk, ExitReason) {
	if next, ok := h.follower(c); ok {
		n, r := h.read(next)
		if r != ExitGo {
			return c, r
		}
		if !n.inUse {
			if r := h.unlink(n.addr); r != ExitGo {
				return c, r
			}
			c.size += n.size
		}
	}
	if c.back != 0 {
		p, r := h.read(c.addr - c.back*HeapUnit)
		if r != ExitGo {
			return c, r
		}
		if !p.inUse {
			if r := h.unlink(p.addr); r != ExitGo {
				return c, r
			}
			p.size += c.size
			c = p
		}
	}
	if after, ok := h.follower(c); ok {
		if r := h.setBack(after, c.size); r != ExitGo {
			return c, r
		}
	}
	return c, ExitGo
}

// MemAvail is the total payload space of all free chunks.
func (h *Heap) MemAvail() int {
	total := 0
	h.walkFree(func(c chunk) { total += int(c.size)*HeapUnit - chunkHeader })
	return total
}

// MaxAvail is the largest single allocation that would currently succeed.
func (h *Heap) MaxAvail() int {
	largest := 0
	h.walkFree(func(c chunk) { largest = max(largest, int(c.size)*HeapUnit-chunkHeader) })
	return largest
}

func (h *Heap) walkFree(fn func(chunk)) {
	for cur := h.head; cur != 0; {
		c, r := h.read(cur)
		if r != ExitGo {
			return
		}
		fn(c)
		if cur, r = h.nextFree(cur); r != ExitGo {
			return
		}
	}
}
