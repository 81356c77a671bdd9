package wasi_snapshot_preview1

import (
	stdcontext "context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wavmgo/wavm/internal/runtime"
	"github.com/wavmgo/wavm/internal/wasi"
)

// fakeMemory is a flat byte slice standing in for a guest's linear memory in
// these ABI-wiring tests; internal/wasi's own tests exercise the syscalls
// themselves against a real filesystem.
type fakeMemory struct{ data []byte }

func newFakeMemory(size uint32) *fakeMemory { return &fakeMemory{data: make([]byte, size)} }

func (m *fakeMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	if uint64(offset)+uint64(byteCount) > uint64(len(m.data)) {
		return nil, false
	}
	out := make([]byte, byteCount)
	copy(out, m.data[offset:offset+byteCount])
	return out, true
}

func (m *fakeMemory) Write(offset uint32, data []byte) bool {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.data)) {
		return false
	}
	copy(m.data[offset:], data)
	return true
}

func newTestProcess(t *testing.T) (*wasi.Process, *fakeMemory) {
	p := wasi.NewProcess([]string{"prog", "arg1"}, []string{"FOO=bar"})
	mem := newFakeMemory(65536)
	p.SetMemory(mem)
	p.Preopen("/", wasi.NewOSFS(t.TempDir()))
	return p, mem
}

func call(t *testing.T, fns map[string]*runtime.FunctionInstance, name string, params ...uint64) []uint64 {
	t.Helper()
	fn, ok := fns[name]
	require.True(t, ok, "function %s not registered", name)
	results, err := fn.Call(stdcontext.Background(), nil, params)
	require.NoError(t, err)
	return results
}

func TestFunctions_ArgsSizesGetAndArgsGet(t *testing.T) {
	p, mem := newTestProcess(t)
	fns := Functions(p)

	res := call(t, fns, "args_sizes_get", 0, 4)
	require.Equal(t, uint64(wasi.ErrnoSuccess), res[0])
	count := binary.LittleEndian.Uint32(mem.data[0:4])
	bufLen := binary.LittleEndian.Uint32(mem.data[4:8])
	require.Equal(t, uint32(2), count)
	require.Equal(t, uint32(len("prog")+1+len("arg1")+1), bufLen)

	listPtr, bufPtr := uint32(100), uint32(200)
	res = call(t, fns, "args_get", uint64(listPtr), uint64(bufPtr))
	require.Equal(t, uint64(wasi.ErrnoSuccess), res[0])
	arg0Ptr := binary.LittleEndian.Uint32(mem.data[listPtr : listPtr+4])
	require.Equal(t, bufPtr, arg0Ptr)
	require.Equal(t, "prog\x00", string(mem.data[bufPtr:bufPtr+5]))
}

func TestFunctions_FdWriteThenFdRead(t *testing.T) {
	p, mem := newTestProcess(t)
	fns := Functions(p)

	pathPtr := uint32(0)
	path := "out.txt"
	mem.Write(pathPtr, append([]byte(path), 0))

	oflags := uint64(1) // create
	var fdPtr uint32 = 64
	res := call(t, fns, "path_open", 3, 0, uint64(pathPtr), uint64(len(path)), oflags, uint64(wasi.RightsAll), uint64(wasi.RightsAll), 0, uint64(fdPtr))
	require.Equal(t, uint64(wasi.ErrnoSuccess), res[0])
	fd := uint64(binary.LittleEndian.Uint32(mem.data[fdPtr : fdPtr+4]))

	msg := "hello world"
	bufPtr := uint32(128)
	mem.Write(bufPtr, []byte(msg))
	iovsPtr := uint32(256)
	binary.LittleEndian.PutUint32(mem.data[iovsPtr:], bufPtr)
	binary.LittleEndian.PutUint32(mem.data[iovsPtr+4:], uint32(len(msg)))
	nwrittenPtr := uint32(300)

	res = call(t, fns, "fd_write", fd, uint64(iovsPtr), 1, uint64(nwrittenPtr))
	require.Equal(t, uint64(wasi.ErrnoSuccess), res[0])
	require.Equal(t, uint32(len(msg)), binary.LittleEndian.Uint32(mem.data[nwrittenPtr:]))

	seekResultPtr := uint32(310)
	res = call(t, fns, "fd_seek", fd, 0, uint64(0) /* SeekSet */, uint64(seekResultPtr))
	require.Equal(t, uint64(wasi.ErrnoSuccess), res[0])

	readBufPtr := uint32(400)
	readIovsPtr := uint32(500)
	binary.LittleEndian.PutUint32(mem.data[readIovsPtr:], readBufPtr)
	binary.LittleEndian.PutUint32(mem.data[readIovsPtr+4:], uint32(len(msg)))
	nreadPtr := uint32(520)

	res = call(t, fns, "fd_read", fd, uint64(readIovsPtr), 1, uint64(nreadPtr))
	require.Equal(t, uint64(wasi.ErrnoSuccess), res[0])
	require.Equal(t, uint32(len(msg)), binary.LittleEndian.Uint32(mem.data[nreadPtr:]))
	require.Equal(t, msg, string(mem.data[readBufPtr:readBufPtr+uint32(len(msg))]))
}

func TestFunctions_RandomGetFillsBuffer(t *testing.T) {
	p, mem := newTestProcess(t)
	fns := Functions(p)

	ptr, n := uint32(0), uint32(16)
	res := call(t, fns, "random_get", uint64(ptr), uint64(n))
	require.Equal(t, uint64(wasi.ErrnoSuccess), res[0])

	allZero := true
	for _, b := range mem.data[ptr : ptr+n] {
		if b != 0 {
			allZero = false
			break
		}
	}
	require.False(t, allZero, "random_get left the buffer untouched")
}

func TestFunctions_ProcExitReturnsTypedError(t *testing.T) {
	p, _ := newTestProcess(t)
	fns := Functions(p)

	_, err := fns["proc_exit"].Call(stdcontext.Background(), nil, []uint64{3})
	sig, ok := err.(wasi.ExitSignal)
	require.True(t, ok)
	require.Equal(t, uint32(3), sig.Code)
}
