// Package shard maps string keys onto a power-of-two number of buckets.
package shard

import "hash/fnv"

// DefaultCount is used when a caller asks for zero or fewer shards.
const DefaultCount = 32

// Count rounds n up to a power of two.
func Count(n int) uint32 {
	if n <= 0 {
		n = DefaultCount
	}
	return nextPowerOfTwo(uint32(n))
}

// Index returns the bucket for key given mask = Count(n)-1.
func Index(key string, mask uint32) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() & mask
}

func nextPowerOfTwo(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
