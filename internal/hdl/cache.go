package hdl

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// Cache resolves a module name to a ModuleIR, reading the file next to a
// given source when the name is not already cached. Unlike the reference
// implementation's process-wide singleton, Cache is an explicit value so a
// caller (e.g. the vector-test driver iterating many independent files) can
// give each run its own cache, per the "replacing global mutable state"
// redesign note in spec.md §9.
type Cache struct {
	modules     map[string]*ModuleIR
	extraDirs   []string
}

// NewCache constructs an empty cache. extraDirs are consulted, in order,
// after the current working directory and the referencing source's own
// directory.
func NewCache(extraDirs ...string) *Cache {
	return &Cache{modules: make(map[string]*ModuleIR), extraDirs: extraDirs}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.modules = make(map[string]*ModuleIR)
}

// Get resolves name to a ModuleIR, searching (in order) the cache, the
// current working directory, sourceDir (the directory of the referencing
// source file), and any configured extra search directories.
func (c *Cache) Get(name, sourceDir string) (*ModuleIR, error) {
	if ir, ok := c.modules[name]; ok {
		log.Debugf("module cache hit: %s", name)
		return ir, nil
	}

	log.Debugf("module cache miss: %s, searching for %s.sv", name, name)

	filename := name + ".sv"

	dirs := append([]string{".", sourceDir}, c.extraDirs...)
	for _, dir := range dirs {
		path := filepath.Join(dir, filename)

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		ir, err := ParseModule(string(data))
		if err != nil {
			return nil, err
		}

		c.modules[name] = ir

		return ir, nil
	}

	return nil, newErr(MissingModule, name, "could not find %s in any search directory", filename)
}

// Put directly installs an already-parsed module, bypassing file lookup.
// Used by tests and by batch drivers that have already read every source
// file up front.
func (c *Cache) Put(ir *ModuleIR) {
	c.modules[ir.Name] = ir
}

// CountPrimitiveGates walks ir's instantiation tree, resolving each child
// module through the cache, and counts how many reachable instances are
// named primitive (conventionally "nand_gate") — a cheap structural
// metric the gates command and tests use without running any
// evaluation (spec.md §6).
func CountPrimitiveGates(ir *ModuleIR, cache *Cache, sourceDir, primitive string) (int, error) {
	if ir.Name == primitive {
		return 1, nil
	}

	total := 0

	for _, inst := range ir.Instances {
		if inst.Child == primitive {
			total++
			continue
		}

		childIR, err := cache.Get(inst.Child, sourceDir)
		if err != nil {
			return 0, err
		}

		n, err := CountPrimitiveGates(childIR, cache, sourceDir, primitive)
		if err != nil {
			return 0, err
		}

		total += n
	}

	return total, nil
}
