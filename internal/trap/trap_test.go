package trap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func callThenTrap(kind Kind) (err error) {
	defer Boundary(&err, func() []Frame {
		return []Frame{{ModuleName: "m", FuncName: "f"}}
	})
	New(kind)
	return nil
}

func TestBoundary_convertsTypedTrap(t *testing.T) {
	err := callThenTrap(KindIntegerDivideByZero)
	require.Error(t, err)
	var tr *Trap
	require.ErrorAs(t, err, &tr)
	require.Equal(t, KindIntegerDivideByZero, tr.Kind)
	require.Equal(t, "m", tr.Frames[0].ModuleName)
}

func TestBoundary_noPanicLeavesErrUntouched(t *testing.T) {
	var err error
	func() {
		defer Boundary(&err, nil)
	}()
	require.NoError(t, err)
}

func TestBoundary_convertsUnexpectedPanic(t *testing.T) {
	err := func() (err error) {
		defer Boundary(&err, nil)
		panic("boom")
	}()
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestNewOutOfBoundsMemoryAccess_carriesArgs(t *testing.T) {
	err := func() (err error) {
		defer Boundary(&err, nil)
		NewOutOfBoundsMemoryAccess(0, 0x10004)
		return nil
	}()
	var tr *Trap
	require.ErrorAs(t, err, &tr)
	require.Equal(t, KindOutOfBoundsMemoryAccess, tr.Kind)
	require.Equal(t, uint32(0), tr.MemoryIndex)
	require.Equal(t, uint64(0x10004), tr.Offset)
	require.Contains(t, err.Error(), "0x10004")
}

func TestNewOutOfBoundsTableAccess_carriesArgs(t *testing.T) {
	err := func() (err error) {
		defer Boundary(&err, nil)
		NewOutOfBoundsTableAccess(1, 7)
		return nil
	}()
	var tr *Trap
	require.ErrorAs(t, err, &tr)
	require.Equal(t, KindOutOfBoundsTableAccess, tr.Kind)
	require.Equal(t, uint32(1), tr.TableIndex)
	require.Equal(t, uint32(7), tr.ElemIndex)
}

func TestNewOutOfBoundsDataSegmentAccess_carriesArgs(t *testing.T) {
	err := func() (err error) {
		defer Boundary(&err, nil)
		NewOutOfBoundsDataSegmentAccess("m", 2, 3)
		return nil
	}()
	var tr *Trap
	require.ErrorAs(t, err, &tr)
	require.Equal(t, KindOutOfBoundsDataSegmentAccess, tr.Kind)
	require.Equal(t, "m", tr.Instance)
	require.Equal(t, uint32(2), tr.Segment)
	require.Equal(t, uint32(3), tr.Size)
}

func TestException_carriesPayload(t *testing.T) {
	err := func() (err error) {
		defer Boundary(&err, func() []Frame { return nil })
		NewException([]uint64{42})
		return nil
	}()
	var tr *Trap
	require.ErrorAs(t, err, &tr)
	require.Equal(t, KindExceptionUncaught, tr.Kind)
	require.Equal(t, []uint64{42}, tr.Payload)
}
