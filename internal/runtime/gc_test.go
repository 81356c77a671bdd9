package runtime

import (
	stdcontext "context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectGarbage_SweepsUnrootedKeepsRooted(t *testing.T) {
	c := NewCompartment()
	rctx := c.NewContext()

	live := buildModule()
	dead := buildModule()

	liveInst, err := Instantiate(stdcontext.Background(), c, rctx, live, "live", answerResolver())
	require.NoError(t, err)
	deadInst, err := Instantiate(stdcontext.Background(), c, rctx, dead, "dead", answerResolver())
	require.NoError(t, err)

	liveInst.AddRoot()
	require.Len(t, c.instances, 2)
	require.Len(t, c.tables, 2)
	require.Len(t, c.memories, 2)

	c.CollectGarbage()

	require.Len(t, c.instances, 1, "the unrooted instance must be swept")
	require.Len(t, c.tables, 1, "the live instance's table must survive")
	require.Len(t, c.memories, 1, "the live instance's memory must survive")

	for _, mi := range c.instances {
		require.Same(t, liveInst, mi)
	}
	_ = deadInst

	liveInst.RemoveRoot()
	c.CollectGarbage()
	require.Empty(t, c.instances, "removing the last root makes the instance collectible")
}
