package vm

import (
	"math/rand/v2"
	"testing"

	"pcode/pkg/pcode"

	"github.com/google/go-cmp/cmp"
)

func randomSets(n int) []Set {
	rng := rand.New(rand.NewPCG(1, 2))
	sets := []Set{{}, {0xffff, 0xffff, 0xffff, 0xffff}}
	for range n {
		var s Set
		for i := range s {
			s[i] = uint16(rng.Uint32())
		}
		sets = append(sets, s)
	}
	return sets
}

func TestSetAlgebraLaws(t *testing.T) {
	sets := randomSets(20)
	for _, a := range sets {
		for _, b := range sets {
			if a.Union(b) != b.Union(a) {
				t.Fatalf("union not commutative for %v, %v", a, b)
			}
			if a.Intersection(a) != a {
				t.Fatalf("intersection(A, A) != A for %v", a)
			}
			if a.Difference(a) != (Set{}) {
				t.Fatalf("difference(A, A) not empty for %v", a)
			}
			want := a.Difference(b).Union(b.Difference(a))
			if got := a.SymmetricDifference(b); got != want {
				t.Fatalf("symdiff(%v, %v) = %v, want %v", a, b, got, want)
			}
		}
	}
}

func members(s Set) []int {
	var out []int
	for i := range SetSize {
		if s.Member(i) {
			out = append(out, i)
		}
	}
	return out
}

func span(lo, hi int) []int {
	var out []int
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}

func TestSubrange(t *testing.T) {
	tests := []struct {
		name   string
		lo, hi int
	}{
		{"single element", 5, 5},
		{"one word", 3, 9},
		{"whole first word", 0, 15},
		{"two words", 10, 20},
		{"three words", 12, 35},
		{"four words", 1, 62},
		{"universe", 0, 63},
		{"last word edge", 47, 48},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := members(Subrange(tt.lo, tt.hi))
			if diff := cmp.Diff(span(tt.lo, tt.hi), got); diff != "" {
				t.Errorf("Subrange(%d, %d) mismatch (-want +got):\n%s", tt.lo, tt.hi, diff)
			}
		})
	}

	if got := Subrange(9, 3); got != (Set{}) {
		t.Errorf("Subrange(9, 3) = %v, want empty", got)
	}
}

func TestSubrangeInstruction(t *testing.T) {
	b := pcode.NewBuilder().Push(12).Push(35).Push(0).Set(pcode.SetSUBRANGE).Op(pcode.END)
	m := mustHalt(t, b)
	want := []uint16{0xf000, 0xffff, 0x000f, 0x0000}
	if diff := cmp.Diff(want, stackWords(t, m)); diff != "" {
		t.Errorf("subrange 12..35 mismatch (-want +got):\n%s", diff)
	}
}

func TestSetIndexOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		prog *pcode.Builder
	}{
		{"singleton above", pcode.NewBuilder().Push(64).Push(0).Set(pcode.SetSINGLETON)},
		{"singleton below base", pcode.NewBuilder().Push(3).Push(4).Set(pcode.SetSINGLETON)},
		{"subrange high", pcode.NewBuilder().Push(60).Push(70).Push(0).Set(pcode.SetSUBRANGE)},
		{"subrange low", pcode.NewBuilder().Push(-1).Push(10).Push(0).Set(pcode.SetSUBRANGE)},
		{"member", pcode.NewBuilder().PushSet(1).Push(100).Push(0).Set(pcode.SetMEMBER)},
		{"include", pcode.NewBuilder().PushSet(1).Push(64).Push(0).Set(pcode.SetINCLUDE)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, reason := runProgram(t, tt.prog.Op(pcode.END))
			if reason != ExitOutOfRange {
				t.Fatalf("Run = %v, want %v", reason, ExitOutOfRange)
			}
			// operands are left in place
			if m.Depth() == 0 {
				t.Errorf("stack emptied by a faulting set operation")
			}
		})
	}
}

func TestSetBaseAdjustment(t *testing.T) {
	// element 'C' of a set based at 'A' is bit 2
	b := pcode.NewBuilder().Push('C').Push('A').Set(pcode.SetSINGLETON).
		Push('C').Push('A').Set(pcode.SetMEMBER).Op(pcode.END)
	m := mustHalt(t, b)
	if diff := cmp.Diff([]uint16{1}, stackWords(t, m)); diff != "" {
		t.Errorf("member mismatch (-want +got):\n%s", diff)
	}
}

func TestContainsRequiresEveryWord(t *testing.T) {
	a := Set{0x00ff, 0x0000, 0, 0}
	b := Set{0x000f, 0x0001, 0, 0}
	// word 0 of b is inside a but word 1 is not
	if a.Contains(b) {
		t.Errorf("%v reported as containing %v", a, b)
	}
	if !a.Contains(Set{0x000f, 0, 0, 0}) {
		t.Errorf("subset in a single word not contained")
	}
	if !a.Contains(Set{}) {
		t.Errorf("empty set not contained")
	}

	prog := pcode.NewBuilder().PushSet(0, 1, 2, 3).PushSet(2, 16).Set(pcode.SetCONTAINS).
		PushSet(0, 1, 2, 3).PushSet(2, 3).Set(pcode.SetCONTAINS).Op(pcode.END)
	m := mustHalt(t, prog)
	if diff := cmp.Diff([]uint16{0, 1}, stackWords(t, m)); diff != "" {
		t.Errorf("CONTAINS mismatch (-want +got):\n%s", diff)
	}
}

func TestCard(t *testing.T) {
	for _, s := range randomSets(10) {
		want := len(members(s))
		if got := s.Card(); got != want {
			t.Errorf("Card(%v) = %d, want %d", s, got, want)
		}
	}
}

func TestSetOperations(t *testing.T) {
	tests := []struct {
		name string
		sub  uint16
		want []uint16
	}{
		{"intersection", pcode.SetINTERSECTION, []uint16{0x0004, 0, 0, 0}},
		{"union", pcode.SetUNION, []uint16{0x001f, 0, 0, 0}},
		{"difference", pcode.SetDIFFERENCE, []uint16{0x0003, 0, 0, 0}},
		{"symmetric difference", pcode.SetSYMDIFF, []uint16{0x001b, 0, 0, 0}},
		{"equality", pcode.SetEQUALITY, []uint16{0}},
		{"inequality", pcode.SetNONEQUALITY, []uint16{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := pcode.NewBuilder().PushSet(0, 1, 2).PushSet(2, 3, 4).Set(tt.sub).Op(pcode.END)
			m := mustHalt(t, b)
			if diff := cmp.Diff(tt.want, stackWords(t, m)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIntersectionCardinalityExitCode(t *testing.T) {
	b := pcode.NewBuilder().
		PushSet(0, 1, 2).
		PushSet(2, 3, 4).
		Set(pcode.SetINTERSECTION).
		Set(pcode.SetCARD).
		Op(pcode.END)
	m := mustHalt(t, b)
	if m.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", m.ExitCode)
	}
}

func TestBadSetOp(t *testing.T) {
	_, reason := runProgram(t, pcode.NewBuilder().Set(pcode.NumSetOps).Op(pcode.END))
	if reason != ExitBadSetOp {
		t.Errorf("Run = %v, want %v", reason, ExitBadSetOp)
	}
}
