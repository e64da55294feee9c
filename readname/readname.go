// Package readname formats the synthetic read names attached to consensus
// records, in short and verbose variants, keyed by a stable hash of the
// group's sorted input indices.
package readname

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"

	farm "github.com/dgryski/go-farm"
)

// GroupHash returns a stable 64-bit hash of a duplicate group's member
// indices, independent of the order they are passed in.
func GroupHash(indices []int) uint64 {
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)
	buf := make([]byte, 8*len(sorted))
	for i, idx := range sorted {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(idx))
	}
	return farm.Hash64WithSeed(buf, 0)
}

// Short formats the terse read name: consensus-{group_hash}.
func Short(indices []int) string {
	return fmt.Sprintf("consensus-%x", GroupHash(indices))
}

// Verbose formats the detailed read name: consensus-{group_hash}:{count}:{idx1,idx2,...}.
func Verbose(indices []int) string {
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, idx := range sorted {
		parts[i] = strconv.Itoa(idx)
	}
	return fmt.Sprintf("consensus-%x:%d:%s", GroupHash(indices), len(sorted), strings.Join(parts, ","))
}

// Format dispatches to Short or Verbose.
func Format(indices []int, verbose bool) string {
	if verbose {
		return Verbose(indices)
	}
	return Short(indices)
}
