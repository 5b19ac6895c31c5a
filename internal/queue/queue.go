// Package queue provides a value-based binary heap of scored entries.
package queue

// Item is a scored entry.
type Item struct {
	ID    int64
	Score float32
}

// PriorityQueue is a binary heap of Items.
// Ties on Score are broken by ID so that iteration order is deterministic:
// a min-queue surfaces the larger ID first, a max-queue the smaller one.
type PriorityQueue struct {
	isMaxHeap bool
	items     []Item
}

// NewMin returns a queue whose top is the lowest score.
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{items: make([]Item, 0, capacity)}
}

// NewMax returns a queue whose top is the highest score.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{isMaxHeap: true, items: make([]Item, 0, capacity)}
}

// Len returns the number of items.
func (pq *PriorityQueue) Len() int { return len(pq.items) }

// Top returns the top item.
func (pq *PriorityQueue) Top() (Item, bool) {
	if len(pq.items) == 0 {
		return Item{}, false
	}
	return pq.items[0], true
}

// Push inserts an item.
func (pq *PriorityQueue) Push(item Item) {
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
}

// Pop removes and returns the top item.
func (pq *PriorityQueue) Pop() (Item, bool) {
	n := len(pq.items)
	if n == 0 {
		return Item{}, false
	}
	root := pq.items[0]
	pq.items[0] = pq.items[n-1]
	pq.items = pq.items[:n-1]
	if n > 1 {
		pq.siftDown(0)
	}
	return root, true
}

// Offer keeps the best k items seen so far in a min-queue: item is pushed
// while fewer than k are held and otherwise replaces the top if it ranks
// higher. It reports whether item was kept.
func (pq *PriorityQueue) Offer(item Item, k int) bool {
	if k <= 0 {
		return false
	}
	if len(pq.items) < k {
		pq.Push(item)
		return true
	}
	if !pq.before(pq.items[0], item) {
		return false
	}
	pq.items[0] = item
	pq.siftDown(0)
	return true
}

// Drain pops every item in queue order.
func (pq *PriorityQueue) Drain() []Item {
	out := make([]Item, 0, len(pq.items))
	for {
		it, ok := pq.Pop()
		if !ok {
			return out
		}
		out = append(out, it)
	}
}

// Reset clears the queue for reuse.
func (pq *PriorityQueue) Reset() {
	pq.items = pq.items[:0]
}

// before reports whether a belongs above b in a min-queue.
func (pq *PriorityQueue) before(a, b Item) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.ID > b.ID
}

func (pq *PriorityQueue) less(i, j int) bool {
	if pq.isMaxHeap {
		return pq.before(pq.items[j], pq.items[i])
	}
	return pq.before(pq.items[i], pq.items[j])
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !pq.less(i, p) {
			return
		}
		pq.items[i], pq.items[p] = pq.items[p], pq.items[i]
		i = p
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && pq.less(r, l) {
			best = r
		}
		if !pq.less(best, i) {
			return
		}
		pq.items[i], pq.items[best] = pq.items[best], pq.items[i]
		i = best
	}
}
