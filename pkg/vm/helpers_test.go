package vm

import (
	"io"
	"strings"
	"testing"

	"pcode/pkg/image"
	"pcode/pkg/pcode"
)

func load(t *testing.T, img *image.Image, opts Options) *Machine {
	t.Helper()
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stdin == nil {
		opts.Stdin = strings.NewReader("")
	}
	m, err := New(img, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func runProgram(t *testing.T, b *pcode.Builder) (*Machine, ExitReason) {
	t.Helper()
	m := load(t, &image.Image{Code: b.MustBytes()}, Options{})
	return m, m.Run()
}

// mustHalt runs b and returns the machine after a normal halt.
func mustHalt(t *testing.T, b *pcode.Builder) *Machine {
	t.Helper()
	m, reason := runProgram(t, b)
	if reason != ExitHalt {
		t.Fatalf("Run = %v at pc=%d, want halt", reason, m.PC)
	}
	return m
}

func global(t *testing.T, m *Machine, offset uint16) uint16 {
	t.Helper()
	v, r := m.Arena.Word(m.Layout.StackBase + offset)
	if r != ExitGo {
		t.Fatalf("reading global %d: %v", offset, r)
	}
	return v
}

// stackWords returns the operand stack, bottom first.
func stackWords(t *testing.T, m *Machine) []uint16 {
	t.Helper()
	words := make([]uint16, m.Depth())
	for i := range words {
		v, r := m.Arena.Word(m.Layout.StackBase + uint16(2*i))
		if r != ExitGo {
			t.Fatalf("reading stack word %d: %v", i, r)
		}
		words[i] = v
	}
	return words
}
