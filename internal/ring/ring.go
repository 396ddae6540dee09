package ring

// Bounded FIFO ring used to buffer classification results between
// the bus reception callback and slower consumers.
// When full, Push evicts the oldest element so producers never block.
type Ring[T any] struct {
	buffer   []T
	readPos  int
	writePos int
	count    int
}

func New[T any](size int) *Ring[T] {
	if size <= 0 {
		size = 1
	}
	return &Ring[T]{buffer: make([]T, size)}
}

// Push appends an element, evicting the oldest one when the
// ring is full. Returns true if an element was dropped.
func (r *Ring[T]) Push(element T) bool {
	dropped := false
	if r.count == len(r.buffer) {
		r.readPos = (r.readPos + 1) % len(r.buffer)
		r.count--
		dropped = true
	}
	r.buffer[r.writePos] = element
	r.writePos = (r.writePos + 1) % len(r.buffer)
	r.count++
	return dropped
}

// Pop removes and returns the oldest element.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	element := r.buffer[r.readPos]
	r.buffer[r.readPos] = zero
	r.readPos = (r.readPos + 1) % len(r.buffer)
	r.count--
	return element, true
}

func (r *Ring[T]) Len() int {
	return r.count
}

func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buffer {
		r.buffer[i] = zero
	}
	r.readPos = 0
	r.writePos = 0
	r.count = 0
}
