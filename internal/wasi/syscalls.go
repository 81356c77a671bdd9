package wasi

import (
	"crypto/rand"
	"errors"
	"io"
	"os"
	"runtime"
	"time"
)

// toErrno maps a Go I/O error onto the guest error taxonomy (spec.md §4.10
// "Errors from the filesystem are mapped to guest errors via a total
// function").
func toErrno(err error) Errno {
	switch {
	case err == nil:
		return ErrnoSuccess
	case errors.Is(err, os.ErrNotExist):
		return ErrnoNoent
	case errors.Is(err, os.ErrExist):
		return ErrnoExist
	case errors.Is(err, os.ErrPermission):
		return ErrnoAcces
	case errors.Is(err, os.ErrInvalid):
		return ErrnoInval
	case errors.Is(err, io.EOF):
		return ErrnoSuccess
	default:
		return ErrnoIo
	}
}

// FdWrite writes iovecs in order to fd, spec.md §4.10 "fd_read/fd_write
// with scatter-gather iovecs".
func (p *Process) FdWrite(fd int32, iovecs [][]byte) (uint32, Errno) {
	e, errno := p.FDs.Require(fd, RightFdWrite)
	if errno != ErrnoSuccess {
		return 0, errno
	}
	var total uint32
	for _, iov := range iovecs {
		n, err := p.writerFor(e).Write(iov)
		total += uint32(n)
		if err != nil {
			return total, toErrno(err)
		}
	}
	return total, ErrnoSuccess
}

func (p *Process) writerFor(e *FDE) io.Writer {
	switch e.PreopenType {
	case PreopenStdio:
		if e.OriginalPath == "<stderr>" {
			return p.Stderr
		}
		return p.Stdout
	default:
		return e.VFD.(io.Writer)
	}
}

// FdRead reads into iovecs in order (spec.md §4.10).
func (p *Process) FdRead(fd int32, iovecs [][]byte) (uint32, Errno) {
	e, errno := p.FDs.Require(fd, RightFdRead)
	if errno != ErrnoSuccess {
		return 0, errno
	}
	var total uint32
	var reader io.Reader = p.Stdin
	if e.VFD != nil {
		reader = e.VFD.(io.Reader)
	}
	for _, iov := range iovecs {
		n, err := reader.Read(iov)
		total += uint32(n)
		if err != nil {
			if err == io.EOF {
				return total, ErrnoSuccess
			}
			return total, toErrno(err)
		}
	}
	return total, ErrnoSuccess
}

// FdPwrite/FdPread are the explicit-offset variants (supplemented per
// original_source/Wavix's file.cpp pread/pwrite handlers).
func (p *Process) FdPwrite(fd int32, data []byte, offset int64) (uint32, Errno) {
	e, errno := p.FDs.Require(fd, RightFdWrite|RightFdSeek)
	if errno != ErrnoSuccess {
		return 0, errno
	}
	if e.VFD == nil {
		return 0, ErrnoSpipe
	}
	n, err := e.VFD.WriteAt(data, offset)
	return uint32(n), toErrno(err)
}

func (p *Process) FdPread(fd int32, buf []byte, offset int64) (uint32, Errno) {
	e, errno := p.FDs.Require(fd, RightFdRead|RightFdSeek)
	if errno != ErrnoSuccess {
		return 0, errno
	}
	if e.VFD == nil {
		return 0, ErrnoSpipe
	}
	n, err := e.VFD.ReadAt(buf, offset)
	if err == io.EOF {
		err = nil
	}
	return uint32(n), toErrno(err)
}

func (p *Process) FdSeek(fd int32, offset int64, whence int) (uint64, Errno) {
	e, errno := p.FDs.Require(fd, RightFdSeek)
	if errno != ErrnoSuccess {
		return 0, errno
	}
	if e.VFD == nil {
		return 0, ErrnoSpipe
	}
	n, err := e.VFD.Seek(offset, whence)
	return uint64(n), toErrno(err)
}

func (p *Process) FdTell(fd int32) (uint64, Errno) {
	e, errno := p.FDs.Require(fd, RightFdTell)
	if errno != ErrnoSuccess {
		return 0, errno
	}
	n, err := e.VFD.Seek(0, io.SeekCurrent)
	return uint64(n), toErrno(err)
}

func (p *Process) FdClose(fd int32) Errno { return p.FDs.Close(fd) }

func (p *Process) FdSync(fd int32) Errno {
	e, errno := p.FDs.Require(fd, RightFdSync)
	if errno != ErrnoSuccess {
		return errno
	}
	if e.VFD == nil {
		return ErrnoSuccess
	}
	return toErrno(e.VFD.Sync())
}

func (p *Process) FdDatasync(fd int32) Errno { return p.FdSync(fd) }

func (p *Process) FdRenumber(from, to int32) Errno { return p.FDs.Renumber(from, to) }

func (p *Process) FdFdstatSetRights(fd int32, rights, inheriting Rights) Errno {
	return p.FDs.SetRights(fd, rights, inheriting)
}

// FdPrestatGet reports whether fd is a preopen and, if so, the byte length
// of its original path (spec.md §4.10 "fd_prestat_get").
func (p *Process) FdPrestatGet(fd int32) (pathLen uint32, errno Errno) {
	e, errno := p.FDs.Get(fd)
	if errno != ErrnoSuccess {
		return 0, errno
	}
	if !e.IsPreopened {
		return 0, ErrnoBadf
	}
	return uint32(len(e.OriginalPath)), ErrnoSuccess
}

func (p *Process) FdPrestatDirName(fd int32) (string, Errno) {
	e, errno := p.FDs.Get(fd)
	if errno != ErrnoSuccess {
		return "", errno
	}
	if !e.IsPreopened {
		return "", ErrnoBadf
	}
	return e.OriginalPath, ErrnoSuccess
}

func (p *Process) FdFilestatGet(fd int32) (FileInfo, Errno) {
	e, errno := p.FDs.Require(fd, RightFdFilestatGet)
	if errno != ErrnoSuccess {
		return FileInfo{}, errno
	}
	if e.VFD == nil {
		return FileInfo{}, ErrnoBadf
	}
	info, err := e.VFD.Stat()
	return info, toErrno(err)
}

func (p *Process) FdFilestatSetSize(fd int32, size int64) Errno {
	e, errno := p.FDs.Require(fd, RightFdFilestatSetSize)
	if errno != ErrnoSuccess {
		return errno
	}
	return toErrno(e.VFD.Truncate(size))
}

func (p *Process) FdFilestatSetTimes(fd int32, atime, mtime time.Time) Errno {
	e, errno := p.FDs.Require(fd, RightFdFilestatSetTimes)
	if errno != ErrnoSuccess {
		return errno
	}
	return toErrno(e.VFD.SetTimes(atime, mtime))
}

// dirFDE resolves dirfd with the rights path_open-family calls all need.
func (p *Process) dirFDE(dirfd int32, want Rights) (*FDE, Errno) {
	e, errno := p.FDs.Require(dirfd, want)
	if errno != ErrnoSuccess {
		return nil, errno
	}
	if e.FS == nil {
		return nil, ErrnoNotdir
	}
	return e, ErrnoSuccess
}

// PathOpen resolves path against dirfd's preopen and opens it through the
// directory's filesystem capability (spec.md §4.10 "path_open").
func (p *Process) PathOpen(dirfd int32, rawPath string, flags OpenFlags, rights, inheriting Rights) (int32, Errno) {
	if !flags.Valid() {
		return -1, ErrnoInval
	}
	dir, errno := p.dirFDE(dirfd, RightPathOpen)
	if errno != ErrnoSuccess {
		return -1, errno
	}
	clean, errno := resolvePath(rawPath)
	if errno != ErrnoSuccess {
		return -1, errno
	}
	vfd, err := dir.FS.Open(clean, flags)
	if err != nil {
		return -1, toErrno(err)
	}
	fd := p.FDs.Insert(&FDE{VFD: vfd, FS: dir.FS, OriginalPath: clean,
		Rights: rights & dir.InheritingRights, InheritingRights: inheriting & dir.InheritingRights}, -1)
	return fd, ErrnoSuccess
}

func (p *Process) PathUnlinkFile(dirfd int32, rawPath string) Errno {
	dir, errno := p.dirFDE(dirfd, RightPathUnlinkFile)
	if errno != ErrnoSuccess {
		return errno
	}
	clean, errno := resolvePath(rawPath)
	if errno != ErrnoSuccess {
		return errno
	}
	return toErrno(dir.FS.Unlink(clean))
}

func (p *Process) PathCreateDirectory(dirfd int32, rawPath string) Errno {
	dir, errno := p.dirFDE(dirfd, RightPathCreateDirectory)
	if errno != ErrnoSuccess {
		return errno
	}
	clean, errno := resolvePath(rawPath)
	if errno != ErrnoSuccess {
		return errno
	}
	return toErrno(dir.FS.CreateDir(clean))
}

func (p *Process) PathRemoveDirectory(dirfd int32, rawPath string) Errno {
	dir, errno := p.dirFDE(dirfd, RightPathRemoveDirectory)
	if errno != ErrnoSuccess {
		return errno
	}
	clean, errno := resolvePath(rawPath)
	if errno != ErrnoSuccess {
		return errno
	}
	return toErrno(dir.FS.RemoveDir(clean))
}

func (p *Process) PathFilestatGet(dirfd int32, rawPath string) (FileInfo, Errno) {
	dir, errno := p.dirFDE(dirfd, RightPathFilestatGet)
	if errno != ErrnoSuccess {
		return FileInfo{}, errno
	}
	clean, errno := resolvePath(rawPath)
	if errno != ErrnoSuccess {
		return FileInfo{}, errno
	}
	info, err := dir.FS.Stat(clean)
	return info, toErrno(err)
}

func (p *Process) PathFilestatSetTimes(dirfd int32, rawPath string, atime, mtime time.Time) Errno {
	dir, errno := p.dirFDE(dirfd, RightPathFilestatSetTimes)
	if errno != ErrnoSuccess {
		return errno
	}
	clean, errno := resolvePath(rawPath)
	if errno != ErrnoSuccess {
		return errno
	}
	return toErrno(dir.FS.SetTimes(clean, atime, mtime))
}

// FdReaddir drains up to limit entries starting from cookie, caching the
// cursor on the FDE (spec.md §4.10 "stateful cursor cached on the FDE").
func (p *Process) FdReaddir(fd int32, cookie uint64, limit int) ([]DirEntry, Errno) {
	e, errno := p.FDs.Require(fd, RightFdReaddir)
	if errno != ErrnoSuccess {
		return nil, errno
	}
	if e.dirStream == nil || e.dirCookie > cookie {
		ds, err := e.VFD.OpenDir()
		if err != nil {
			return nil, toErrno(err)
		}
		e.dirStream = ds
		e.dirCookie = 0
	}
	if e.dirCookie != cookie {
		if err := e.dirStream.Seek(cookie); err != nil {
			return nil, toErrno(err)
		}
		e.dirCookie = cookie
	}
	var out []DirEntry
	for len(out) < limit {
		entry, ok, err := e.dirStream.GetNext()
		if err != nil {
			return out, toErrno(err)
		}
		if !ok {
			break
		}
		out = append(out, entry)
		e.dirCookie++
	}
	return out, ErrnoSuccess
}

func (p *Process) RandomGet(buf []byte) Errno {
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return ErrnoIo
	}
	return ErrnoSuccess
}

func (p *Process) SchedYield() Errno {
	runtime.Gosched()
	return ErrnoSuccess
}

func (p *Process) ClockTimeGet(clockID uint32) (uint64, Errno) {
	now, err := p.Clock.Now(clockID)
	if err != nil {
		return 0, ErrnoInval
	}
	return uint64(now.UnixNano()), ErrnoSuccess
}

func (p *Process) ClockResGet(clockID uint32) (uint64, Errno) {
	return uint64(p.Clock.Resolution(clockID).Nanoseconds()), ErrnoSuccess
}

func (p *Process) ArgsSizesGet() (count, bufLen uint32) {
	for _, a := range p.Args {
		bufLen += uint32(len(a)) + 1
	}
	return uint32(len(p.Args)), bufLen
}

func (p *Process) EnvironSizesGet() (count, bufLen uint32) {
	for _, e := range p.Env {
		bufLen += uint32(len(e)) + 1
	}
	return uint32(len(p.Env)), bufLen
}

// ProcExit raises the typed exit control-flow signal (spec.md §4.10
// "proc_exit (throws a typed exit signal that unwinds to the launcher)").
func (p *Process) ProcExit(code uint32) {
	p.exitCode = &code
	panic(ExitSignal{Code: code})
}

// SockAccept has no socket capability wired up in this runtime (spec.md §6
// "sockets return ENOSYS unless a socket capability is wired up"); the
// non-capability alternate host §1 mentions is out of scope.
func (p *Process) SockAccept(int32, uint16) (int32, Errno) {
	return -1, ErrnoNosys
}

// Subscription/Event are poll_oneoff's input/output pair (spec.md §4.10,
// supplemented from original_source/Wavix's poll_oneoff handler). Only
// clock subscriptions are implemented; fd-readiness subscriptions report
// ErrnoNosys, matching the teacher's own poll_unix.go restricting readiness
// polling to what the host OS exposes.
type Subscription struct {
	UserData  uint64
	IsClock   bool
	ClockID   uint32
	Timeout   time.Duration
	FD        int32
	FDReading bool
}

type Event struct {
	UserData uint64
	Errno    Errno
}

func (p *Process) PollOneoff(subs []Subscription) ([]Event, Errno) {
	events := make([]Event, 0, len(subs))
	var sleep time.Duration
	hasClock := false
	for _, s := range subs {
		if s.IsClock {
			hasClock = true
			if s.Timeout > sleep {
				sleep = s.Timeout
			}
			events = append(events, Event{UserData: s.UserData, Errno: ErrnoSuccess})
		} else {
			events = append(events, Event{UserData: s.UserData, Errno: ErrnoNosys})
		}
	}
	if hasClock {
		time.Sleep(sleep)
	}
	return events, ErrnoSuccess
}
