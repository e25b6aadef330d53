// ABOUTME: Playback queue drained across block boundaries
// ABOUTME: Emits silence on underrun and supports an explicit clear
package pipeline

// Queue holds decoded blocks waiting to be played. The cursor always points
// at the oldest unread sample: block 0, sample index. It is not safe for
// concurrent use; each playback strategy serializes access its own way.
type Queue struct {
	blocks [][]float32
	index  int
	len    int
}

// Push appends a block. Empty blocks are ignored.
func (q *Queue) Push(block []float32) {
	if len(block) == 0 {
		return
	}
	q.blocks = append(q.blocks, block)
	q.len += len(block)
}

// Drain fills out from the head of the queue, discarding exhausted blocks.
// Samples beyond what the queue holds are set to zero. It returns the
// number of queued samples written.
func (q *Queue) Drain(out []float32) int {
	n := 0
	for n < len(out) && len(q.blocks) > 0 {
		head := q.blocks[0]
		c := copy(out[n:], head[q.index:])
		n += c
		q.index += c
		q.len -= c

		if q.index == len(head) {
			q.blocks[0] = nil
			q.blocks = q.blocks[1:]
			q.index = 0
		}
	}

	clear(out[n:])
	return n
}

// Clear drops every queued block and resets the cursor
func (q *Queue) Clear() {
	clear(q.blocks)
	q.blocks = q.blocks[:0]
	q.index = 0
	q.len = 0
}

// Len returns the number of unread samples
func (q *Queue) Len() int {
	return q.len
}

// Blocks returns the number of queued blocks, including a partly read head
func (q *Queue) Blocks() int {
	return len(q.blocks)
}

// Cursor returns the position of the oldest unread sample
func (q *Queue) Cursor() (block, sample int) {
	return 0, q.index
}
