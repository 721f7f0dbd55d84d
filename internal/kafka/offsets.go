package kafka

import "sync"

// commitTracker keeps consumer-group commits honest under concurrent
// settlement. Kafka stores a single watermark per partition, so committing an
// offset implicitly acknowledges everything before it; an offset may only be
// committed once every earlier offset of its partition has settled. An offset
// that never settles acts as a barrier: later messages on the partition may
// finish processing, but their commits are held back and the broker
// redelivers from the barrier after a rebalance or restart.
type commitTracker struct {
	mu         sync.Mutex
	partitions map[int]*partitionProgress
}

type partitionProgress struct {
	next    int64          // lowest offset not yet settled
	settled map[int64]bool // settled offsets at or above next
}

func newCommitTracker() *commitTracker {
	return &commitTracker{partitions: make(map[int]*partitionProgress)}
}

// observe records a fetched offset. The first observed offset of a partition
// seeds its watermark; the fetch loop delivers offsets in order per partition.
func (t *commitTracker) observe(partition int, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.partitions[partition]; !ok {
		t.partitions[partition] = &partitionProgress{
			next:    offset,
			settled: make(map[int64]bool),
		}
	}
}

// settle marks an offset settled and reports the highest offset now safe to
// commit. It returns false while an earlier offset of the partition is still
// outstanding, or when the offset is below the watermark (a redelivery of
// something already committed).
func (t *commitTracker) settle(partition int, offset int64) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.partitions[partition]
	if !ok || offset < p.next {
		return 0, false
	}

	p.settled[offset] = true

	advanced := false
	for p.settled[p.next] {
		delete(p.settled, p.next)
		p.next++
		advanced = true
	}
	if !advanced {
		return 0, false
	}

	return p.next - 1, true
}
