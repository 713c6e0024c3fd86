// Package sorter provides the server-side workload and the bounded pool it
// runs on.
package sorter

import (
	"golang.org/x/exp/slices"
)

// Sort returns an ascending copy of seq. It is an insertion sort; the
// quadratic cost per request is the benchmarked workload.
func Sort(seq []int32) []int32 {
	arr := make([]int32, len(seq))
	copy(arr, seq)
	for i := 1; i < len(arr); i++ {
		for j := i; j > 0 && arr[j] < arr[j-1]; j-- {
			arr[j], arr[j-1] = arr[j-1], arr[j]
		}
	}
	return arr
}

// IsSorted reports whether seq is non-decreasing.
func IsSorted(seq []int32) bool {
	return slices.IsSorted(seq)
}

// IsPermutation reports whether a and b hold the same multiset of values.
func IsPermutation(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[int32]int, len(a))
	for _, v := range a {
		counts[v]++
	}
	for _, v := range b {
		counts[v]--
		if counts[v] < 0 {
			return false
		}
	}
	return true
}
