package sim

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/dlathrop/svsim/internal/hdl"
)

// AccessMode distinguishes a read-only memory (ROM, whose writes are
// silently dropped, spec.md invariant 5) from a read/write memory (RAM).
type AccessMode uint8

const (
	// RAM is the default, read/write, access mode.
	RAM AccessMode = iota
	// ROM is read-only; sequential writes never mutate it.
	ROM
)

// MemoryArray is a fixed-size word array (spec.md §3). Writes are masked
// to the declared word width; reads clamp an out-of-range index to the
// nearest valid address (B2).
type MemoryArray struct {
	Decl *hdl.MemoryDecl
	Mode AccessMode

	words []int64
	// init is the image loaded at construction/binding time, kept so
	// ResetState can restore it without re-reading the backing file.
	init []int64
}

// NewMemoryArray constructs a zero-initialized memory of the declared
// shape.
func NewMemoryArray(decl *hdl.MemoryDecl) *MemoryArray {
	return &MemoryArray{Decl: decl, words: make([]int64, decl.Depth)}
}

// Depth implements hdl.MemoryReader.
func (m *MemoryArray) Depth() int {
	return len(m.words)
}

// ReadWord implements hdl.MemoryReader: out-of-range indices clamp to the
// nearest valid address (B2).
func (m *MemoryArray) ReadWord(addr int64) int64 {
	i := clampAddr(addr, len(m.words))
	return m.words[i]
}

// Write stores value at addr, masked to the word width. Writes to a ROM
// are silently dropped (invariant 5).
func (m *MemoryArray) Write(addr int64, value int64) {
	if m.Mode == ROM {
		return
	}

	i := clampAddr(addr, len(m.words))
	m.words[i] = maskWord(value, m.Decl.WordWidth)
}

func clampAddr(addr int64, depth int) int64 {
	if depth == 0 {
		return 0
	}

	if addr < 0 {
		return 0
	}

	if addr >= int64(depth) {
		return int64(depth) - 1
	}

	return addr
}

func maskWord(v int64, width int) int64 {
	if width <= 0 || width >= 64 {
		return v
	}

	return v & ((int64(1) << uint(width)) - 1)
}

// LoadFile initializes the memory from a text file (spec.md §3 Memory init
// file format): blank lines and lines starting with `#` or `//` are
// skipped; each remaining line is `VALUE` (auto-incrementing address) or
// `ADDR:VALUE`. Recognized bases: plain binary when the value contains
// only 0/1, else an integer literal (`0b...`, `0x...`, `0o...`, decimal).
// Unspecified addresses remain 0. The loaded image is retained so
// ResetState can restore it.
func (m *MemoryArray) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &hdl.Error{Kind: hdl.BadBinding, Message: "cannot read memory init file", Context: path}
	}
	defer f.Close()

	addr := int64(0)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		a, valueText := addr, line
		if colon := strings.IndexByte(line, ':'); colon >= 0 {
			parsed, err := strconv.ParseInt(strings.TrimSpace(line[:colon]), 0, 64)
			if err != nil {
				return &hdl.Error{Kind: hdl.BadBinding, Message: "malformed address", Context: line}
			}

			a = parsed
			valueText = strings.TrimSpace(line[colon+1:])
		}

		v, err := parseInitValue(valueText)
		if err != nil {
			return &hdl.Error{Kind: hdl.BadBinding, Message: "malformed value", Context: line}
		}

		if a >= 0 && a < int64(len(m.words)) {
			m.words[a] = maskWord(v, m.Decl.WordWidth)
		}

		if colonless := !strings.Contains(line, ":"); colonless {
			addr++
		}
	}

	if err := scanner.Err(); err != nil {
		return &hdl.Error{Kind: hdl.BadBinding, Message: "error reading memory init file", Context: path}
	}

	m.init = append([]int64(nil), m.words...)

	return nil
}

// parseInitValue parses one memory-init value: plain binary when every
// character is 0/1, else a host integer literal (0b/0x/0o/decimal).
func parseInitValue(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if isPlainBinary(s) {
		return strconv.ParseInt(s, 2, 64)
	}

	return strconv.ParseInt(s, 0, 64)
}

func isPlainBinary(s string) bool {
	if s == "" {
		return false
	}

	for _, c := range s {
		if c != '0' && c != '1' {
			return false
		}
	}

	return true
}

// ResetState zeroes the memory, then restores it to its last-loaded image
// (or all zeros, if never bound to a file).
func (m *MemoryArray) ResetState() {
	for i := range m.words {
		m.words[i] = 0
	}

	copy(m.words, m.init)
}

// Binding associates a memory init file with a (module, instance path,
// memory name) selector and an access mode, per spec.md §4.8.
type Binding struct {
	Module       string
	InstancePath string
	Memory       string
	File         string
	Mode         AccessMode
}

// Matches reports whether this binding applies to the memory named
// memName within module moduleName at instancePath. An empty Module or
// InstancePath matches anything; a non-empty InstancePath matches if
// instancePath ends with it on a dot boundary.
func (b Binding) Matches(moduleName, instancePath, memName string) bool {
	if b.Memory != "" && b.Memory != memName {
		return false
	}

	if b.Module != "" && b.Module != moduleName {
		return false
	}

	if b.InstancePath == "" {
		return true
	}

	if instancePath == b.InstancePath {
		return true
	}

	return strings.HasSuffix(instancePath, "."+b.InstancePath)
}
