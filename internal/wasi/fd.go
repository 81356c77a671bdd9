package wasi

import (
	"fmt"
	"sync"
)

// PreopenType distinguishes what kind of capability a preopened FD grants.
type PreopenType int

const (
	PreopenNone PreopenType = iota
	PreopenDir
	PreopenStdio
)

// FDE is a file descriptor entry (spec.md §4.10 "File descriptor entry
// (FDE)"): the rights gating it, its inheriting rights for path_open
// children, and the state a directory FD needs to resolve and iterate.
type FDE struct {
	VFD              VFD
	FS               FS
	Rights           Rights
	InheritingRights Rights
	OriginalPath     string
	IsPreopened      bool
	PreopenType      PreopenType
	dirStream        DirStream
	dirCookie        uint64
}

// FDTable is the process-wide indexed map of FDEs (spec.md §4.10
// "Process ... an indexed map of FDEs (FD numbers are stable monotonic ints
// >= 0"). One mutex guards it; syscalls hold it only long enough to look up
// or insert an entry, never across the I/O itself.
type FDTable struct {
	mu      sync.Mutex
	entries map[int32]*FDE
	next    int32
}

func NewFDTable() *FDTable {
	return &FDTable{entries: map[int32]*FDE{}}
}

// Insert adds e at the next available fd, or at a caller-chosen one if
// reserve >= 0 (used for the fixed small stdio indices).
func (t *FDTable) Insert(e *FDE, reserve int32) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := reserve
	if fd < 0 {
		fd = t.next
	}
	t.entries[fd] = e
	if fd >= t.next {
		t.next = fd + 1
	}
	return fd
}

// Get looks up fd, returning ErrnoBadf if absent.
func (t *FDTable) Get(fd int32) (*FDE, Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fd]
	if !ok {
		return nil, ErrnoBadf
	}
	return e, ErrnoSuccess
}

// Require is Get plus a rights check (spec.md §4.10 "checks required-on-dir
// rights and required-inheriting rights; absence => ENOTCAPABLE").
func (t *FDTable) Require(fd int32, want Rights) (*FDE, Errno) {
	e, errno := t.Get(fd)
	if errno != ErrnoSuccess {
		return nil, errno
	}
	if !e.Rights.Has(want) {
		return nil, ErrnoNotcapable
	}
	return e, ErrnoSuccess
}

// Close removes fd, closing its underlying VFD.
func (t *FDTable) Close(fd int32) Errno {
	t.mu.Lock()
	e, ok := t.entries[fd]
	if ok {
		delete(t.entries, fd)
	}
	t.mu.Unlock()
	if !ok {
		return ErrnoBadf
	}
	if e.VFD != nil {
		if err := e.VFD.Close(); err != nil {
			return ErrnoIo
		}
	}
	return ErrnoSuccess
}

// Renumber moves the entry at from onto to, closing whatever was at to.
func (t *FDTable) Renumber(from, to int32) Errno {
	t.mu.Lock()
	defer t.mu.Unlock()
	src, ok := t.entries[from]
	if !ok {
		return ErrnoBadf
	}
	if dst, ok := t.entries[to]; ok && dst.VFD != nil {
		_ = dst.VFD.Close()
	}
	t.entries[to] = src
	delete(t.entries, from)
	return ErrnoSuccess
}

// SetRights narrows fd's rights; spec.md §8 "FD rights monotonicity" forbids
// widening.
func (t *FDTable) SetRights(fd int32, rights, inheriting Rights) Errno {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fd]
	if !ok {
		return ErrnoBadf
	}
	if rights&^e.Rights != 0 || inheriting&^e.InheritingRights != 0 {
		return ErrnoNotcapable
	}
	e.Rights = rights
	e.InheritingRights = inheriting
	return ErrnoSuccess
}

func (fde *FDE) String() string {
	return fmt.Sprintf("fd{path=%q preopen=%v rights=%#x}", fde.OriginalPath, fde.IsPreopened, fde.Rights)
}
