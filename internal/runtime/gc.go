package runtime

// CollectGarbage performs one mark-sweep reclamation pass over c (spec.md
// §4.9): every object whose root count is zero and that is not reachable
// from a rooted module instance is destroyed. Functions are not tracked as
// independent arena objects in this implementation (they live exactly as
// long as the ModuleInstance that owns them, per spec.md §3 "Functions do
// not own their code directly; they reference the module instance that
// does"), so the reachability walk marks a rooted instance's own
// tables/memories/globals/exception types directly rather than chasing
// through a separate function arena.
func (c *Compartment) CollectGarbage() {
	c.Mu.Lock()
	defer c.Mu.Unlock()

	reachInst := map[uint32]bool{}
	reachTable := map[uint32]bool{}
	reachMem := map[uint32]bool{}
	reachGlobal := map[uint32]bool{}
	reachExc := map[uint32]bool{}

	// Step 2: initial root set is every object whose root count is > 0.
	var pending []*ModuleInstance
	for id, mi := range c.instances {
		if mi.roots() > 0 {
			reachInst[id] = true
			pending = append(pending, mi)
		}
	}

	// Step 3: enumerate reachable fields of each rooted instance.
	for _, mi := range pending {
		for _, t := range mi.tables {
			if id, ok := c.tableID(t); ok {
				reachTable[id] = true
			}
		}
		for _, m := range mi.memories {
			if id, ok := c.memoryID(m); ok {
				reachMem[id] = true
			}
		}
		for _, g := range mi.globals {
			if id, ok := c.globalID(g); ok {
				reachGlobal[id] = true
			}
		}
		for _, e := range mi.excTypes {
			if id, ok := c.excTypeID(e); ok {
				reachExc[id] = true
			}
		}
	}
	// A directly-rooted table/memory/global/exception type (e.g. one
	// exported to the embedder without an instance root) survives too.
	for id, t := range c.tables {
		if t.roots() > 0 {
			reachTable[id] = true
		}
	}
	for id, m := range c.memories {
		if m.roots() > 0 {
			reachMem[id] = true
		}
	}
	for id, g := range c.globals {
		if g.roots() > 0 {
			reachGlobal[id] = true
		}
	}
	for id, e := range c.excTypes {
		if e.roots() > 0 {
			reachExc[id] = true
		}
	}

	// Step 4: sweep anything not reached.
	for id := range c.instances {
		if !reachInst[id] {
			delete(c.instances, id)
		}
	}
	for id := range c.tables {
		if !reachTable[id] {
			delete(c.tables, id)
		}
	}
	for id := range c.memories {
		if !reachMem[id] {
			delete(c.memories, id)
		}
	}
	for id := range c.globals {
		if !reachGlobal[id] {
			delete(c.globals, id)
		}
	}
	for id := range c.excTypes {
		if !reachExc[id] {
			delete(c.excTypes, id)
		}
	}
}

func (c *Compartment) tableID(t *Table) (uint32, bool) {
	for id, v := range c.tables {
		if v == t {
			return id, true
		}
	}
	return 0, false
}

func (c *Compartment) memoryID(m *Memory) (uint32, bool) {
	for id, v := range c.memories {
		if v == m {
			return id, true
		}
	}
	return 0, false
}

func (c *Compartment) globalID(g *Global) (uint32, bool) {
	for id, v := range c.globals {
		if v == g {
			return id, true
		}
	}
	return 0, false
}

func (c *Compartment) excTypeID(e *ExceptionTypeInstance) (uint32, bool) {
	for id, v := range c.excTypes {
		if v == e {
			return id, true
		}
	}
	return 0, false
}
