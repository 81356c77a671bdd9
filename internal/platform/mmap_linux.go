package platform

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/wavmgo/wavm/internal/features"
)

// mapHugeShift is Linux's MAP_HUGE_SHIFT: the low bits of MAP_HUGETLB
// encode a page-size log2 starting at this bit offset.
const mapHugeShift = 26

type hugePageConfig struct {
	size int // bytes
	flag int // MAP_HUGETLB | (log2(size) << mapHugeShift)
}

var hugePageConfigs = discoverHugePageConfigs()

func hasHugePages() bool { return len(hugePageConfigs) > 0 }

func discoverHugePageConfigs() []hugePageConfig {
	dirents, err := os.ReadDir("/sys/kernel/mm/hugepages/")
	if err != nil {
		return nil
	}
	var configs []hugePageConfig
	for _, d := range dirents {
		sizeKB, ok := parseHugePageDirName(d.Name())
		if !ok {
			continue
		}
		size := sizeKB * 1024
		shift := 0
		for v := size; v > 1; v >>= 1 {
			shift++
		}
		configs = append(configs, hugePageConfig{size: size, flag: syscall.MAP_HUGETLB | (shift << mapHugeShift)})
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].size > configs[j].size })
	return configs
}

func parseHugePageDirName(name string) (int, bool) {
	const prefix, suffix = "hugepages-", "kB"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return 0, false
	}
	n, err := strconv.Atoi(name[len(prefix) : len(name)-len(suffix)])
	return n, err == nil
}

// bestHugePageFlag returns the MAP_HUGETLB flag bits for the largest
// configured huge page size that evenly divides size, or 0 if none fits.
func bestHugePageFlag(size int) int {
	for _, c := range hugePageConfigs {
		if size%c.size == 0 {
			return c.flag
		}
	}
	return 0
}

// MmapReservation reserves size bytes of address space with no access
// rights, for a runtime.Memory's 8 GiB virtual-address reservation
// (spec.md §4.5): pages are committed later via MprotectReadWrite as the
// memory grows, and the unmapped remainder acts as the guard region a
// synchronous signal on an out-of-bounds access raises from. When the
// "hugepages" feature is enabled (internal/features) and size is a
// multiple of a huge page size, the reservation backs onto huge pages.
func MmapReservation(size int) ([]byte, error) {
	if size == 0 {
		panic("BUG: MmapReservation with zero length")
	}
	flags := syscall.MAP_PRIVATE | syscall.MAP_ANON
	if features.Have("hugepages") {
		if hp := bestHugePageFlag(size); hp != 0 {
			flags |= hp
		}
	}
	b, err := syscall.Mmap(-1, 0, size, syscall.PROT_NONE, flags)
	if err != nil && flags&syscall.MAP_HUGETLB != 0 {
		b, err = syscall.Mmap(-1, 0, size, syscall.PROT_NONE, syscall.MAP_PRIVATE|syscall.MAP_ANON)
	}
	return b, err
}

// MunmapReservation releases a reservation returned by MmapReservation.
func MunmapReservation(b []byte) error {
	if len(b) == 0 {
		panic("BUG: MunmapReservation with zero length")
	}
	return syscall.Munmap(b)
}

// MprotectReadWrite commits b for reading and writing, used to grow a
// memory's reservation into its newly-requested page count.
func MprotectReadWrite(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return syscall.Mprotect(b, syscall.PROT_READ|syscall.PROT_WRITE)
}

// MprotectNone decommits b, restoring the guard-page behavior.
func MprotectNone(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return syscall.Mprotect(b, syscall.PROT_NONE)
}
