package wasi

import "time"

// OpenFlags narrows how Open treats an existing/missing path, mirroring
// path_open's create/exclusive/truncate product (spec.md §4.10 "Flag
// translation" table).
type OpenFlags struct {
	Create    bool
	Exclusive bool
	Truncate  bool
	Directory bool // fail unless the result is a directory
	ReadWrite bool // false: read-only
	Append    bool
}

// Valid reports whether the (Create, Exclusive, Truncate) triple is one of
// the five combinations spec.md §4.10's oflags table allows; any other
// combination (notably Exclusive without Create) must fail with EINVAL
// before the path ever reaches the filesystem.
func (f OpenFlags) Valid() bool {
	switch {
	case !f.Create && !f.Exclusive && !f.Truncate: // openExisting
		return true
	case f.Create && !f.Exclusive && !f.Truncate: // openAlways
		return true
	case f.Create && f.Exclusive && !f.Truncate: // createNew
		return true
	case f.Create && !f.Exclusive && f.Truncate: // createAlways
		return true
	case !f.Create && !f.Exclusive && f.Truncate: // truncateExisting
		return true
	default:
		return false
	}
}

// FileInfo is the subset of stat(2) results the syscalls below expose.
type FileInfo struct {
	IsDir   bool
	Size    int64
	ModTime time.Time
	AccTime time.Time
}

// DirEntry is one row fd_readdir walks.
type DirEntry struct {
	Name  string
	IsDir bool
}

// DirStream is a resumable directory cursor (spec.md §4.10 "fd_readdir
// (stateful cursor cached on the FDE, re-seekable by dircookie)").
type DirStream interface {
	GetNext() (DirEntry, bool, error)
	Seek(cookie uint64) error
	Tell() (uint64, error)
	Close() error
}

// VFD is one open virtual file descriptor's I/O surface, independent of
// the rights gating that wraps it at the syscall layer.
type VFD interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Sync() error
	Stat() (FileInfo, error)
	Truncate(size int64) error
	SetTimes(atime, mtime time.Time) error
	OpenDir() (DirStream, error)
	Close() error
}

// FS is the filesystem capability external collaborator (spec.md §4.10
// "Filesystem capability"): the core consumes this interface only, never
// the host filesystem directly, so every path a guest reaches is one a
// preopen granted.
type FS interface {
	Open(path string, flags OpenFlags) (VFD, error)
	Stat(path string) (FileInfo, error)
	SetTimes(path string, atime, mtime time.Time) error
	Unlink(path string) error
	RemoveDir(path string) error
	CreateDir(path string) error
}
