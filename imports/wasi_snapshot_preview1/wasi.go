// Package wasi_snapshot_preview1 adapts internal/wasi's capability syscalls
// to the Wasm ABI guests compiled against the WASI preview1 snapshot
// expect: fixed-width integer parameters over a flat linear memory rather
// than Go slices and strings (spec.md §4.10).
package wasi_snapshot_preview1

import (
	stdcontext "context"
	"encoding/binary"

	"github.com/wavmgo/wavm/internal/runtime"
	"github.com/wavmgo/wavm/internal/wasi"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

// ModuleName is the import module name every WASI host call is bound under.
const ModuleName = "wasi_snapshot_preview1"

var (
	i32 = wasm.ValueTypeI32
	i64 = wasm.ValueTypeI64
)

func sig(params, results []wasm.ValueType) *wasm.FunctionType {
	return &wasm.FunctionType{Params: params, Results: results}
}

func readU32(mem wasi.GuestMemory, offset uint32) (uint32, bool) {
	b, ok := mem.Read(offset, 4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func writeU32(mem wasi.GuestMemory, offset, v uint32) bool {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return mem.Write(offset, b[:])
}

func writeU64(mem wasi.GuestMemory, offset uint32, v uint64) bool {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return mem.Write(offset, b[:])
}

func readString(mem wasi.GuestMemory, ptr, length uint32) (string, bool) {
	b, ok := mem.Read(ptr, length)
	if !ok {
		return "", false
	}
	return string(b), true
}

// iovecRegion is one (buf_ptr, buf_len) pair of a ciovec_array/iovec_array.
type iovecRegion struct {
	ptr, len uint32
}

func readIovecRegions(mem wasi.GuestMemory, iovsPtr, iovsLen uint32) ([]iovecRegion, bool) {
	out := make([]iovecRegion, 0, iovsLen)
	for i := uint32(0); i < iovsLen; i++ {
		entry, ok := mem.Read(iovsPtr+i*8, 8)
		if !ok {
			return nil, false
		}
		out = append(out, iovecRegion{
			ptr: binary.LittleEndian.Uint32(entry[0:4]),
			len: binary.LittleEndian.Uint32(entry[4:8]),
		})
	}
	return out, true
}

// readCiovecs reads a ciovec_array's already-written guest buffers, for
// fd_write/fd_pwrite (the data is the guest's, read-only to the host).
func readCiovecs(mem wasi.GuestMemory, iovsPtr, iovsLen uint32) ([][]byte, bool) {
	regions, ok := readIovecRegions(mem, iovsPtr, iovsLen)
	if !ok {
		return nil, false
	}
	out := make([][]byte, len(regions))
	for i, r := range regions {
		buf, ok := mem.Read(r.ptr, r.len)
		if !ok {
			return nil, false
		}
		out[i] = buf
	}
	return out, true
}

// readWriteIovecs returns fresh host-owned buffers sized per an
// iovec_array, plus a flush func that copies each buffer's first n bytes
// (the I/O actually filled) back into guest memory at its ptr, for
// fd_read/fd_pread.
func readWriteIovecs(mem wasi.GuestMemory, iovsPtr, iovsLen uint32) ([][]byte, func(n uint32) bool, bool) {
	regions, ok := readIovecRegions(mem, iovsPtr, iovsLen)
	if !ok {
		return nil, nil, false
	}
	bufs := make([][]byte, len(regions))
	for i, r := range regions {
		bufs[i] = make([]byte, r.len)
	}
	flush := func(n uint32) bool {
		for i, r := range regions {
			if n == 0 {
				break
			}
			m := r.len
			if m > n {
				m = n
			}
			if !mem.Write(r.ptr, bufs[i][:m]) {
				return false
			}
			n -= m
		}
		return true
	}
	return bufs, flush, true
}

func mustU32(params []uint64, i int) uint32 { return uint32(params[i]) }
func mustI32(params []uint64, i int) int32  { return int32(params[i]) }
func mustI64(params []uint64, i int) int64  { return int64(params[i]) }

func errnoResult(e wasi.Errno) []uint64 { return []uint64{uint64(e)} }

// Functions returns every wasi_snapshot_preview1 export bound to p, ready
// to hand a resolver for linking into a guest module (spec.md §4.10
// "Representative operations").
func Functions(p *wasi.Process) map[string]*runtime.FunctionInstance {
	fns := map[string]*runtime.FunctionInstance{}
	reg := func(name string, params, results []wasm.ValueType, fn runtime.HostFunction) {
		fns[name] = runtime.NewHostFunction(sig(params, results), fn)
	}

	reg("args_sizes_get", []wasm.ValueType{i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		count, bufLen := p.ArgsSizesGet()
		if !writeU32(p.Memory, mustU32(params, 0), count) || !writeU32(p.Memory, mustU32(params, 1), bufLen) {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(wasi.ErrnoSuccess), nil
	})

	reg("args_get", []wasm.ValueType{i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		return errnoResult(writeStrings(p.Memory, mustU32(params, 0), mustU32(params, 1), p.Args)), nil
	})

	reg("environ_sizes_get", []wasm.ValueType{i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		count, bufLen := p.EnvironSizesGet()
		if !writeU32(p.Memory, mustU32(params, 0), count) || !writeU32(p.Memory, mustU32(params, 1), bufLen) {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(wasi.ErrnoSuccess), nil
	})

	reg("environ_get", []wasm.ValueType{i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		return errnoResult(writeStrings(p.Memory, mustU32(params, 0), mustU32(params, 1), p.Env)), nil
	})

	reg("clock_time_get", []wasm.ValueType{i32, i64, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		nanos, errno := p.ClockTimeGet(mustU32(params, 0))
		if errno != wasi.ErrnoSuccess {
			return errnoResult(errno), nil
		}
		if !writeU64(p.Memory, mustU32(params, 2), nanos) {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(wasi.ErrnoSuccess), nil
	})

	reg("clock_res_get", []wasm.ValueType{i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		res, errno := p.ClockResGet(mustU32(params, 0))
		if errno != wasi.ErrnoSuccess {
			return errnoResult(errno), nil
		}
		if !writeU64(p.Memory, mustU32(params, 1), res) {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(wasi.ErrnoSuccess), nil
	})

	reg("fd_write", []wasm.ValueType{i32, i32, i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		iovecs, ok := readCiovecs(p.Memory, mustU32(params, 1), mustU32(params, 2))
		if !ok {
			return errnoResult(wasi.ErrnoFault), nil
		}
		n, errno := p.FdWrite(mustI32(params, 0), iovecs)
		if errno != wasi.ErrnoSuccess {
			return errnoResult(errno), nil
		}
		if !writeU32(p.Memory, mustU32(params, 3), n) {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(wasi.ErrnoSuccess), nil
	})

	reg("fd_read", []wasm.ValueType{i32, i32, i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		iovecs, flush, ok := readWriteIovecs(p.Memory, mustU32(params, 1), mustU32(params, 2))
		if !ok {
			return errnoResult(wasi.ErrnoFault), nil
		}
		n, errno := p.FdRead(mustI32(params, 0), iovecs)
		if errno != wasi.ErrnoSuccess {
			return errnoResult(errno), nil
		}
		if !flush(n) || !writeU32(p.Memory, mustU32(params, 3), n) {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(wasi.ErrnoSuccess), nil
	})

	reg("fd_pwrite", []wasm.ValueType{i32, i32, i32, i64, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		iovecs, ok := readCiovecs(p.Memory, mustU32(params, 1), mustU32(params, 2))
		if !ok || len(iovecs) == 0 {
			return errnoResult(wasi.ErrnoFault), nil
		}
		n, errno := p.FdPwrite(mustI32(params, 0), iovecs[0], mustI64(params, 3))
		if errno != wasi.ErrnoSuccess {
			return errnoResult(errno), nil
		}
		if !writeU32(p.Memory, mustU32(params, 4), n) {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(wasi.ErrnoSuccess), nil
	})

	reg("fd_pread", []wasm.ValueType{i32, i32, i32, i64, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		iovecs, flush, ok := readWriteIovecs(p.Memory, mustU32(params, 1), mustU32(params, 2))
		if !ok || len(iovecs) == 0 {
			return errnoResult(wasi.ErrnoFault), nil
		}
		n, errno := p.FdPread(mustI32(params, 0), iovecs[0], mustI64(params, 3))
		if errno != wasi.ErrnoSuccess {
			return errnoResult(errno), nil
		}
		if !flush(n) || !writeU32(p.Memory, mustU32(params, 4), n) {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(wasi.ErrnoSuccess), nil
	})

	reg("fd_seek", []wasm.ValueType{i32, i64, i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		n, errno := p.FdSeek(mustI32(params, 0), mustI64(params, 1), int(mustU32(params, 2)))
		if errno != wasi.ErrnoSuccess {
			return errnoResult(errno), nil
		}
		if !writeU64(p.Memory, mustU32(params, 3), n) {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(wasi.ErrnoSuccess), nil
	})

	reg("fd_tell", []wasm.ValueType{i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		n, errno := p.FdTell(mustI32(params, 0))
		if errno != wasi.ErrnoSuccess {
			return errnoResult(errno), nil
		}
		if !writeU64(p.Memory, mustU32(params, 1), n) {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(wasi.ErrnoSuccess), nil
	})

	reg("fd_close", []wasm.ValueType{i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		return errnoResult(p.FdClose(mustI32(params, 0))), nil
	})

	reg("fd_sync", []wasm.ValueType{i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		return errnoResult(p.FdSync(mustI32(params, 0))), nil
	})

	reg("fd_datasync", []wasm.ValueType{i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		return errnoResult(p.FdDatasync(mustI32(params, 0))), nil
	})

	reg("fd_renumber", []wasm.ValueType{i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		return errnoResult(p.FdRenumber(mustI32(params, 0), mustI32(params, 1))), nil
	})

	reg("fd_fdstat_set_rights", []wasm.ValueType{i32, i64, i64}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		return errnoResult(p.FdFdstatSetRights(mustI32(params, 0), wasi.Rights(params[1]), wasi.Rights(params[2]))), nil
	})

	reg("fd_prestat_get", []wasm.ValueType{i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		length, errno := p.FdPrestatGet(mustI32(params, 0))
		if errno != wasi.ErrnoSuccess {
			return errnoResult(errno), nil
		}
		// prestat_dir: u8 tag (0=dir) followed by u32 path length, at offset+4.
		if !writeU32(p.Memory, mustU32(params, 1), 0) || !writeU32(p.Memory, mustU32(params, 1)+4, length) {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(wasi.ErrnoSuccess), nil
	})

	reg("fd_prestat_dir_name", []wasm.ValueType{i32, i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		name, errno := p.FdPrestatDirName(mustI32(params, 0))
		if errno != wasi.ErrnoSuccess {
			return errnoResult(errno), nil
		}
		if uint32(len(name)) > mustU32(params, 2) || !p.Memory.Write(mustU32(params, 1), []byte(name)) {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(wasi.ErrnoSuccess), nil
	})

	reg("fd_filestat_get", []wasm.ValueType{i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		info, errno := p.FdFilestatGet(mustI32(params, 0))
		if errno != wasi.ErrnoSuccess {
			return errnoResult(errno), nil
		}
		return errnoResult(writeFilestat(p.Memory, mustU32(params, 1), info)), nil
	})

	reg("fd_filestat_set_size", []wasm.ValueType{i32, i64}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		return errnoResult(p.FdFilestatSetSize(mustI32(params, 0), mustI64(params, 1))), nil
	})

	reg("path_open", []wasm.ValueType{i32, i32, i32, i32, i32, i64, i64, i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		path, ok := readString(p.Memory, mustU32(params, 2), mustU32(params, 3))
		if !ok {
			return errnoResult(wasi.ErrnoFault), nil
		}
		oflags := mustU32(params, 4)
		flags := wasi.OpenFlags{
			Create:    oflags&1 != 0,
			Directory: oflags&2 != 0,
			Exclusive: oflags&4 != 0,
			Truncate:  oflags&8 != 0,
			ReadWrite: true,
		}
		fd, errno := p.PathOpen(mustI32(params, 0), path, flags, wasi.Rights(params[5]), wasi.Rights(params[6]))
		if errno != wasi.ErrnoSuccess {
			return errnoResult(errno), nil
		}
		if !writeU32(p.Memory, mustU32(params, 8), uint32(fd)) {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(wasi.ErrnoSuccess), nil
	})

	reg("path_create_directory", []wasm.ValueType{i32, i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		path, ok := readString(p.Memory, mustU32(params, 1), mustU32(params, 2))
		if !ok {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(p.PathCreateDirectory(mustI32(params, 0), path)), nil
	})

	reg("path_remove_directory", []wasm.ValueType{i32, i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		path, ok := readString(p.Memory, mustU32(params, 1), mustU32(params, 2))
		if !ok {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(p.PathRemoveDirectory(mustI32(params, 0), path)), nil
	})

	reg("path_unlink_file", []wasm.ValueType{i32, i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		path, ok := readString(p.Memory, mustU32(params, 1), mustU32(params, 2))
		if !ok {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(p.PathUnlinkFile(mustI32(params, 0), path)), nil
	})

	reg("path_filestat_get", []wasm.ValueType{i32, i32, i32, i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		path, ok := readString(p.Memory, mustU32(params, 2), mustU32(params, 3))
		if !ok {
			return errnoResult(wasi.ErrnoFault), nil
		}
		info, errno := p.PathFilestatGet(mustI32(params, 0), path)
		if errno != wasi.ErrnoSuccess {
			return errnoResult(errno), nil
		}
		return errnoResult(writeFilestat(p.Memory, mustU32(params, 4), info)), nil
	})

	reg("random_get", []wasm.ValueType{i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		buf, ok := p.Memory.Read(mustU32(params, 0), mustU32(params, 1))
		if !ok {
			return errnoResult(wasi.ErrnoFault), nil
		}
		errno := p.RandomGet(buf)
		if errno != wasi.ErrnoSuccess {
			return errnoResult(errno), nil
		}
		if !p.Memory.Write(mustU32(params, 0), buf) {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(wasi.ErrnoSuccess), nil
	})

	reg("sched_yield", nil, []wasm.ValueType{i32}, func(_ stdcontext.Context, _ []uint64) ([]uint64, error) {
		return errnoResult(p.SchedYield()), nil
	})

	reg("proc_exit", []wasm.ValueType{i32}, nil, func(_ stdcontext.Context, params []uint64) (results []uint64, err error) {
		// ProcExit panics with wasi.ExitSignal; recovered here and returned
		// as a plain error instead of letting it fall through
		// FunctionInstance.Call's trap.Boundary, which would otherwise
		// flatten it into an opaque "runtime error" and lose the exit code.
		defer func() {
			if r := recover(); r != nil {
				if sig, ok := r.(wasi.ExitSignal); ok {
					err = sig
					return
				}
				panic(r)
			}
		}()
		p.ProcExit(mustU32(params, 0))
		return nil, nil
	})

	reg("sock_accept", []wasm.ValueType{i32, i32, i32}, []wasm.ValueType{i32}, func(_ stdcontext.Context, params []uint64) ([]uint64, error) {
		fd, errno := p.SockAccept(mustI32(params, 0), uint16(params[1]))
		if errno != wasi.ErrnoSuccess {
			return errnoResult(errno), nil
		}
		if !writeU32(p.Memory, mustU32(params, 2), uint32(fd)) {
			return errnoResult(wasi.ErrnoFault), nil
		}
		return errnoResult(wasi.ErrnoSuccess), nil
	})

	return fns
}

func writeStrings(mem wasi.GuestMemory, listPtr, bufPtr uint32, values []string) wasi.Errno {
	cursor := bufPtr
	for i, v := range values {
		if !writeU32(mem, listPtr+uint32(i)*4, cursor) {
			return wasi.ErrnoFault
		}
		if !mem.Write(cursor, append([]byte(v), 0)) {
			return wasi.ErrnoFault
		}
		cursor += uint32(len(v)) + 1
	}
	return wasi.ErrnoSuccess
}

// writeFilestat encodes the WASI filestat struct: dev u64, ino u64,
// filetype u8 (+7 pad), nlink u64, size u64, atim/mtim/ctim u64 each.
func writeFilestat(mem wasi.GuestMemory, offset uint32, info wasi.FileInfo) wasi.Errno {
	buf := make([]byte, 64)
	filetype := byte(4) // regular_file
	if info.IsDir {
		filetype = 3 // directory
	}
	buf[16] = filetype
	binary.LittleEndian.PutUint64(buf[24:], 1) // nlink
	binary.LittleEndian.PutUint64(buf[32:], uint64(info.Size))
	mtime := uint64(info.ModTime.UnixNano())
	binary.LittleEndian.PutUint64(buf[40:], mtime) // atim
	binary.LittleEndian.PutUint64(buf[48:], mtime) // mtim
	binary.LittleEndian.PutUint64(buf[56:], mtime) // ctim
	if !mem.Write(offset, buf) {
		return wasi.ErrnoFault
	}
	return wasi.ErrnoSuccess
}

