package upload

import (
	"github.com/samber/lo"
)

const (
	// MinPartSize is the smallest size the provider accepts for a non-final part.
	MinPartSize = 5 << 20
	// MaxParts is the most parts one session may hold.
	MaxParts = 10000
)

// Chunk splits payload into consecutive slices of size bytes; the last may be
// shorter. The slices alias payload.
func Chunk(payload []byte, size int) [][]byte {
	if size <= 0 {
		size = MinPartSize
	}
	return lo.Chunk(payload, size)
}

// partSize grows size until n bytes fit in MaxParts parts.
func partSize(n, size int) int {
	if n <= size*MaxParts {
		return size
	}
	return (n + MaxParts - 1) / MaxParts
}
