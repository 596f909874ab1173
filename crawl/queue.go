package crawl

// Queue is a bounded BFS queue with URL deduplication.
type Queue struct {
	items   []string
	visited map[string]bool
	idx     int // current read position
	limit   int
}

// NewQueue creates an empty Queue holding at most limit URLs.
// limit <= 0 means unbounded.
func NewQueue(limit int) *Queue {
	return &Queue{
		visited: make(map[string]bool),
		limit:   limit,
	}
}

// Add enqueues a URL unless it was seen before or the queue is full.
// It reports whether the URL was added.
func (q *Queue) Add(url string) bool {
	if q.visited[url] || q.Full() {
		return false
	}
	q.visited[url] = true
	q.items = append(q.items, url)
	return true
}

// Full reports whether the queue reached its limit.
func (q *Queue) Full() bool {
	return q.limit > 0 && len(q.items) >= q.limit
}

// HasNext returns true if there are unprocessed URLs.
func (q *Queue) HasNext() bool {
	return q.idx < len(q.items)
}

// Next returns the next unprocessed URL and advances the pointer.
func (q *Queue) Next() string {
	url := q.items[q.idx]
	q.idx++
	return url
}

// Len returns the number of unique URLs seen.
func (q *Queue) Len() int {
	return len(q.items)
}

// All returns all discovered URLs in BFS order.
func (q *Queue) All() []string {
	return q.items
}
