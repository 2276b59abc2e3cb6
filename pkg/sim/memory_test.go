package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dlathrop/svsim/internal/hdl"
)

func TestMemory_0_ReadWriteMask(t *testing.T) {
	decl := &hdl.MemoryDecl{WordWidth: 4, Depth: 8}
	mem := NewMemoryArray(decl)

	mem.Write(3, 0xFF)
	if got := mem.ReadWord(3); got != 0xF {
		t.Errorf("ReadWord(3) = %#x, want 0xF (masked to 4 bits)", got)
	}
}

// B2: out-of-range read clamps to depth-1.
func TestMemory_1_ClampOnRead(t *testing.T) {
	decl := &hdl.MemoryDecl{WordWidth: 8, Depth: 4}
	mem := NewMemoryArray(decl)

	mem.Write(3, 0x42)

	if got := mem.ReadWord(99); got != 0x42 {
		t.Errorf("ReadWord(99) = %#x, want clamp to word at depth-1 (0x42)", got)
	}
}

// invariant 5: writes to ROM are silently dropped.
func TestMemory_2_RomWritesDropped(t *testing.T) {
	decl := &hdl.MemoryDecl{WordWidth: 8, Depth: 4}
	mem := NewMemoryArray(decl)
	mem.Mode = ROM

	mem.Write(0, 0x42)

	if got := mem.ReadWord(0); got != 0 {
		t.Errorf("ReadWord(0) = %#x after ROM write, want 0", got)
	}
}

func TestMemory_3_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "init.txt")

	content := "# header\n0xAA\n0xBB\n2:0xCC\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	decl := &hdl.MemoryDecl{WordWidth: 8, Depth: 4}
	mem := NewMemoryArray(decl)

	if err := mem.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	want := []int64{0xAA, 0xBB, 0xCC, 0}
	for i, w := range want {
		if got := mem.ReadWord(int64(i)); got != w {
			t.Errorf("word[%d] = %#x, want %#x", i, got, w)
		}
	}
}

func TestMemory_4_ResetRestoresInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "init.txt")

	if err := os.WriteFile(path, []byte("0x11\n0x22\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	decl := &hdl.MemoryDecl{WordWidth: 8, Depth: 2}
	mem := NewMemoryArray(decl)

	if err := mem.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	mem.Write(0, 0x99)
	mem.ResetState()

	if got := mem.ReadWord(0); got != 0x11 {
		t.Errorf("ReadWord(0) after reset = %#x, want 0x11", got)
	}
}

func TestBinding_0_MatchesInstancePathSuffix(t *testing.T) {
	b := Binding{InstancePath: "cpu.mem", Memory: "ram"}

	if !b.Matches("anything", "top.cpu.mem", "ram") {
		t.Errorf("expected dot-boundary suffix match")
	}

	if b.Matches("anything", "top.cpu.memX", "ram") {
		t.Errorf("unexpected match on non-dot-boundary suffix")
	}
}

func TestBinding_1_EmptySelectorsMatchAnything(t *testing.T) {
	b := Binding{}

	if !b.Matches("mod", "some.path", "mem") {
		t.Errorf("expected empty binding to match any memory")
	}
}
