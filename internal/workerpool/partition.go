package workerpool

// MaxWorkers is the hard cap on pool size.
const MaxWorkers = 4

// WorkerCount sizes the pool for n players: 1 worker up to 250 players,
// 2 up to 500, 3 up to 750, otherwise 4. The result is clamped to
// [minWorkers, maxWorkers] and never exceeds MaxWorkers.
func WorkerCount(n, minWorkers, maxWorkers int) int {
	var k int
	switch {
	case n <= 250:
		k = 1
	case n <= 500:
		k = 2
	case n <= 750:
		k = 3
	default:
		k = 4
	}

	if maxWorkers <= 0 || maxWorkers > MaxWorkers {
		maxWorkers = MaxWorkers
	}
	if minWorkers < 1 {
		minWorkers = 1
	}
	if minWorkers > maxWorkers {
		minWorkers = maxWorkers
	}
	if k < minWorkers {
		k = minWorkers
	}
	if k > maxWorkers {
		k = maxWorkers
	}
	return k
}

// Chunk is a contiguous [Start, End) slice of the player list.
type Chunk struct {
	Worker int
	Start  int
	End    int
}

// Len returns the number of players in the chunk.
func (c Chunk) Len() int {
	return c.End - c.Start
}

// Partition splits n items into at most k contiguous chunks of ceil(n/k).
// The last chunk may be shorter; empty chunks are omitted.
func Partition(n, k int) []Chunk {
	if n <= 0 || k <= 0 {
		return nil
	}
	size := (n + k - 1) / k
	chunks := make([]Chunk, 0, k)
	for i := 0; i < k; i++ {
		start := i * size
		if start >= n {
			break
		}
		end := min(start+size, n)
		chunks = append(chunks, Chunk{Worker: i, Start: start, End: end})
	}
	return chunks
}
