package platform

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wavmgo/wavm/internal/features"
)

func init() {
	features.EnableFromEnvironment()
}

func TestHugePageConfigs(t *testing.T) {
	if !hasHugePages() {
		t.Skip("hugepages are disabled")
	}
	dirents, err := os.ReadDir("/sys/kernel/mm/hugepages/")
	require.NoError(t, err)
	require.Equal(t, len(dirents), len(hugePageConfigs))

	for _, c := range hugePageConfigs {
		require.NotEqual(t, 0, c.size)
		require.NotEqual(t, 0, c.flag)
	}

	for i := 1; i < len(hugePageConfigs); i++ {
		require.True(t, hugePageConfigs[i-1].size > hugePageConfigs[i].size)
	}
}

func TestMmapReservation_roundTrips(t *testing.T) {
	b, err := MmapReservation(4096)
	require.NoError(t, err)
	require.Len(t, b, 4096)
	require.NoError(t, MprotectReadWrite(b[:4096]))
	b[0] = 0xff
	require.Equal(t, byte(0xff), b[0])
	require.NoError(t, MunmapReservation(b))

	require.Panics(t, func() { _, _ = MmapReservation(0) })
}
