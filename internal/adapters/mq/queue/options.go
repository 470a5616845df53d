package queue

// Option applies a configuration option to the CoalescingQueue.
type Option func(*CoalescingQueue)

// WithCapacity sets the maximum number of distinct pending keys.
func WithCapacity(capacity int) Option {
	return func(q *CoalescingQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}
