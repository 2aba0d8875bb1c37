package syncer

import "fmt"

// Range is an inclusive block window.
type Range struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.From, r.To)
}

// Chunks splits [from, head] into consecutive inclusive windows of at most size blocks.
// The last window always ends at head. It returns nil when from > head or size is zero.
func Chunks(from, head, size uint64) []Range {
	if from > head || size == 0 {
		return nil
	}

	out := make([]Range, 0, (head-from)/size+1)
	for start := from; start <= head; {
		end := head
		if head-start >= size {
			end = start + size - 1
		}
		out = append(out, Range{From: start, To: end})
		if end == head {
			break
		}
		start = end + 1
	}
	return out
}
