package domain

import "math/rand"

// Queue is an ordered sequence of track ids, a current index, and a side
// mapping from id to Track so the queue survives provider failures.
//
// Invariant: 0 <= CurrentIndex < len(Order) whenever the queue is
// non-empty; when empty, CurrentIndex is 0 and CurrentTrack is nil.
type Queue struct {
	Order        []string
	CurrentIndex int
	Data         map[string]Track
}

// NewQueue returns an empty, well-formed queue.
func NewQueue() Queue {
	return Queue{
		Order:        nil,
		CurrentIndex: 0,
		Data:         make(map[string]Track),
	}
}

// Len returns the number of tracks in the queue.
func (q Queue) Len() int {
	return len(q.Order)
}

// CurrentID returns the id at CurrentIndex, or "" if the queue is empty.
func (q Queue) CurrentID() string {
	if q.Len() == 0 || q.CurrentIndex < 0 || q.CurrentIndex >= q.Len() {
		return ""
	}
	return q.Order[q.CurrentIndex]
}

// CurrentTrack resolves CurrentID through Data, returning (Track{}, false)
// if the current entry has no snapshot (queue-store invariant violation
// that callers must resolve by nulling the current track).
func (q Queue) CurrentTrack() (Track, bool) {
	id := q.CurrentID()
	if id == "" {
		return Track{}, false
	}
	t, ok := q.Data[id]
	return t, ok
}

// ShuffleBag is a pre-shuffled sequence of queue indices (excluding the
// currently playing one) with a cursor, consumed in Shuffle mode.
// Rebuilt whenever the user enters Shuffle mode or the bag is exhausted.
type ShuffleBag struct {
	indices []int
	cursor  int
}

// Rebuild reshuffles a bag covering [0, length) excluding `exclude`.
func (b *ShuffleBag) Rebuild(length, exclude int, rng *rand.Rand) {
	b.indices = b.indices[:0]
	for i := 0; i < length; i++ {
		if i == exclude {
			continue
		}
		b.indices = append(b.indices, i)
	}
	rng.Shuffle(len(b.indices), func(i, j int) {
		b.indices[i], b.indices[j] = b.indices[j], b.indices[i]
	})
	b.cursor = 0
}

// Next returns the next index from the bag and advances the cursor.
// The second return value is false when the bag is exhausted.
func (b *ShuffleBag) Next() (int, bool) {
	if b.cursor >= len(b.indices) {
		return 0, false
	}
	idx := b.indices[b.cursor]
	b.cursor++
	return idx, true
}

// Empty reports whether the bag has nothing left to deal.
func (b *ShuffleBag) Empty() bool {
	return b.cursor >= len(b.indices)
}
