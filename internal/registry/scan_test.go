package registry_test

import (
	"testing"

	"github.com/alejandrodnm/ilguard/internal/registry"
	"github.com/stretchr/testify/assert"
)

func ids(from, to uint64) []uint64 {
	out := make([]uint64, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestScanWindow_Empty(t *testing.T) {
	w := registry.ScanWindow(nil, 7, 50)
	assert.Empty(t, w.IDs)
	assert.Equal(t, uint64(7), w.Next)
	assert.Equal(t, 0, w.Deferred)
}

func TestScanWindow_FitsInOnePass(t *testing.T) {
	w := registry.ScanWindow([]uint64{1, 2, 3}, 0, 50)
	assert.Equal(t, []uint64{1, 2, 3}, w.IDs)
	assert.Equal(t, 0, w.Deferred)
	assert.Equal(t, uint64(1), w.Next) // vuelve al principio
}

func TestScanWindow_StartsAtCursorAndWraps(t *testing.T) {
	active := []uint64{2, 4, 6, 8, 10}

	w := registry.ScanWindow(active, 5, 3)
	assert.Equal(t, []uint64{6, 8, 10}, w.IDs)
	assert.Equal(t, uint64(2), w.Next)
	assert.Equal(t, 2, w.Deferred)

	w = registry.ScanWindow(active, 9, 3)
	assert.Equal(t, []uint64{10, 2, 4}, w.IDs)
	assert.Equal(t, uint64(6), w.Next)
}

func TestScanWindow_CursorPastEndRestarts(t *testing.T) {
	w := registry.ScanWindow([]uint64{1, 2, 3}, 100, 2)
	assert.Equal(t, []uint64{1, 2}, w.IDs)
	assert.Equal(t, uint64(3), w.Next)
}

func TestScanWindow_CoversEveryIDWithinCeilPasses(t *testing.T) {
	const limit = 50
	for _, n := range []uint64{1, 49, 50, 51, 120, 237} {
		active := ids(1, n)
		passes := (int(n) + limit - 1) / limit

		seen := make(map[uint64]bool)
		cursor := uint64(0)
		for i := 0; i < passes; i++ {
			w := registry.ScanWindow(active, cursor, limit)
			for _, id := range w.IDs {
				seen[id] = true
			}
			cursor = w.Next
		}
		assert.Len(t, seen, int(n), "n=%d", n)
	}
}

func TestScanWindow_NonPositiveLimitScansAll(t *testing.T) {
	w := registry.ScanWindow([]uint64{1, 2, 3}, 0, 0)
	assert.Len(t, w.IDs, 3)
}

func TestRemoveID(t *testing.T) {
	assert.Equal(t, []uint64{1, 3}, registry.RemoveID([]uint64{1, 2, 3}, 2))
	assert.Equal(t, []uint64{1, 2, 3}, registry.RemoveID([]uint64{1, 2, 3}, 4))
	assert.Equal(t, []uint64{}, registry.RemoveID([]uint64{5}, 5))

	orig := []uint64{1, 2, 3}
	_ = registry.RemoveID(orig, 1)
	assert.Equal(t, []uint64{1, 2, 3}, orig)
}
