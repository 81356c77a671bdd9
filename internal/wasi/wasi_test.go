package wasi

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestProcess(t *testing.T) (*Process, string) {
	dir := t.TempDir()
	p := NewProcess([]string{"prog", "arg1"}, []string{"FOO=bar"})
	var out, errOut bytes.Buffer
	p.BindStdio(bytes.NewReader(nil), &out, &errOut)
	p.Preopen("/", NewOSFS(dir))
	return p, dir
}

func TestPathOpen_EscapePreventedBeforeTouchingFilesystem(t *testing.T) {
	p, _ := newTestProcess(t)
	_, errno := p.PathOpen(3, "../../etc/passwd", OpenFlags{}, RightsAll, RightsAll)
	require.Equal(t, ErrnoNotcapable, errno)
}

func TestPathOpen_RejectsInvalidOflagsBeforeTouchingFilesystem(t *testing.T) {
	p, _ := newTestProcess(t)
	// Exclusive without Create is not one of the five allowed
	// (create, excl, trunc) combinations (spec.md §4.10).
	_, errno := p.PathOpen(3, "../../etc/passwd", OpenFlags{Exclusive: true}, RightsAll, RightsAll)
	require.Equal(t, ErrnoInval, errno, "an invalid oflags combination must be rejected before path resolution")
}

func TestOpenFlags_Valid(t *testing.T) {
	tests := []struct {
		name  string
		flags OpenFlags
		want  bool
	}{
		{"openExisting", OpenFlags{}, true},
		{"openAlways", OpenFlags{Create: true}, true},
		{"createNew", OpenFlags{Create: true, Exclusive: true}, true},
		{"createAlways", OpenFlags{Create: true, Truncate: true}, true},
		{"truncateExisting", OpenFlags{Truncate: true}, true},
		{"excl without create", OpenFlags{Exclusive: true}, false},
		{"excl and trunc without create", OpenFlags{Exclusive: true, Truncate: true}, false},
		{"all three", OpenFlags{Create: true, Exclusive: true, Truncate: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.flags.Valid())
		})
	}
}

func TestPathOpen_CreateWriteReadRoundTrip(t *testing.T) {
	p, _ := newTestProcess(t)

	fd, errno := p.PathOpen(3, "a/b.txt", OpenFlags{Create: true, ReadWrite: true}, RightsAll, RightsAll)
	// directory "a" does not exist yet.
	require.Equal(t, ErrnoNoent, errno)
	require.Equal(t, int32(-1), fd)

	require.Equal(t, ErrnoSuccess, p.PathCreateDirectory(3, "a"))
	fd, errno = p.PathOpen(3, "a/b.txt", OpenFlags{Create: true, ReadWrite: true}, RightsAll, RightsAll)
	require.Equal(t, ErrnoSuccess, errno)

	n, errno := p.FdWrite(fd, [][]byte{[]byte("hello"), []byte(" world")})
	require.Equal(t, ErrnoSuccess, errno)
	require.Equal(t, uint32(11), n)

	buf := make([]byte, 11)
	got, errno := p.FdPread(fd, buf, 0)
	require.Equal(t, ErrnoSuccess, errno)
	require.Equal(t, uint32(11), got)
	require.Equal(t, "hello world", string(buf))
}

func TestFdFdstatSetRights_MonotonicityEnforced(t *testing.T) {
	p, _ := newTestProcess(t)
	require.Equal(t, ErrnoSuccess, p.PathCreateDirectory(3, "a"))
	fd, errno := p.PathOpen(3, "a", OpenFlags{Directory: true}, RightFdRead, RightFdRead)
	require.Equal(t, ErrnoSuccess, errno)

	// Widening to include a right not already held must fail.
	require.Equal(t, ErrnoNotcapable, p.FdFdstatSetRights(fd, RightFdRead|RightFdWrite, 0))
	// Narrowing is fine.
	require.Equal(t, ErrnoSuccess, p.FdFdstatSetRights(fd, 0, 0))
}

func TestPathUnlinkFile_RemovesFile(t *testing.T) {
	p, _ := newTestProcess(t)
	fd, errno := p.PathOpen(3, "x.txt", OpenFlags{Create: true, ReadWrite: true}, RightsAll, RightsAll)
	require.Equal(t, ErrnoSuccess, errno)
	require.Equal(t, ErrnoSuccess, p.FdClose(fd))

	require.Equal(t, ErrnoSuccess, p.PathUnlinkFile(3, "x.txt"))
	_, errno = p.PathFilestatGet(3, "x.txt")
	require.Equal(t, ErrnoNoent, errno)
}

func TestProcExit_PanicsWithExitSignal(t *testing.T) {
	p, _ := newTestProcess(t)
	defer func() {
		r := recover()
		sig, ok := r.(ExitSignal)
		require.True(t, ok)
		require.Equal(t, uint32(7), sig.Code)
		code, ok := p.ExitCode()
		require.True(t, ok)
		require.Equal(t, uint32(7), code)
	}()
	p.ProcExit(7)
}

func TestArgsAndEnvironSizesGet(t *testing.T) {
	p, _ := newTestProcess(t)
	count, bufLen := p.ArgsSizesGet()
	require.Equal(t, uint32(2), count)
	require.Equal(t, uint32(len("prog")+1+len("arg1")+1), bufLen)

	count, bufLen = p.EnvironSizesGet()
	require.Equal(t, uint32(1), count)
	require.Equal(t, uint32(len("FOO=bar")+1), bufLen)
}
