package index

import "slices"

// FirstDuplicate returns the first value that occurs more than once in xs.
func FirstDuplicate(xs []int) (int, bool) {
	seen := make(map[int]struct{}, len(xs))
	for _, x := range xs {
		if _, dup := seen[x]; dup {
			return x, true
		}
		seen[x] = struct{}{}
	}
	return 0, false
}

// FirstDuplicatePath is FirstDuplicate for paths.
func FirstDuplicatePath(paths []Path) (Path, bool) {
	seen := make(map[Path]struct{}, len(paths))
	for _, p := range paths {
		if _, dup := seen[p]; dup {
			return p, true
		}
		seen[p] = struct{}{}
	}
	return Path{}, false
}

// FirstOutside returns the first value of xs outside [0, limit).
func FirstOutside(xs []int, limit int) (int, bool) {
	for _, x := range xs {
		if x < 0 || x >= limit {
			return x, true
		}
	}
	return 0, false
}

// FirstShared returns the first value of a that also appears in b.
func FirstShared(a, b []int) (int, bool) {
	if len(a) == 0 || len(b) == 0 {
		return 0, false
	}
	in := make(map[int]struct{}, len(b))
	for _, x := range b {
		in[x] = struct{}{}
	}
	for _, x := range a {
		if _, ok := in[x]; ok {
			return x, true
		}
	}
	return 0, false
}

// Sorted returns an ascending copy of xs.
func Sorted(xs []int) []int {
	out := slices.Clone(xs)
	slices.Sort(out)
	return out
}
