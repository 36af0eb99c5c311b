package registry

import "sort"

// Window is one bounded slice of a pool's active list.
type Window struct {
	IDs      []uint64
	Next     uint64 // cursor for the following scan
	Deferred int    // active ids left for later scans
}

// ScanWindow picks at most limit ids from the ascending active list, starting at
// the first id >= cursor and wrapping round. Next is the first id not visited,
// so consecutive scans cover the whole list before revisiting anyone.
func ScanWindow(active []uint64, cursor uint64, limit int) Window {
	n := len(active)
	if n == 0 {
		return Window{Next: cursor}
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	start := sort.Search(n, func(i int) bool { return active[i] >= cursor })
	if start == n {
		start = 0
	}

	ids := make([]uint64, 0, limit)
	for i := 0; i < limit; i++ {
		ids = append(ids, active[(start+i)%n])
	}

	return Window{
		IDs:      ids,
		Next:     active[(start+limit)%n],
		Deferred: n - limit,
	}
}

// RemoveID returns active without id, keeping order.
func RemoveID(active []uint64, id uint64) []uint64 {
	i := sort.Search(len(active), func(i int) bool { return active[i] >= id })
	if i == len(active) || active[i] != id {
		return active
	}
	out := make([]uint64, 0, len(active)-1)
	out = append(out, active[:i]...)
	return append(out, active[i+1:]...)
}
