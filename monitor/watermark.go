package monitor

import (
	"sync"
)

type pending struct {
	sequence    uint64
	outstanding int
}

// watermark tracks the sequences of one chain that were published but not
// yet acknowledged. The committed sequence only moves past a sequence once
// every event at or below it was handled.
type watermark struct {
	mu        sync.Mutex
	committed uint64
	queue     []pending
}

func newWatermark(committed uint64) *watermark {
	return &watermark{committed: committed}
}

func (w *watermark) publish(sequence uint64, events int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.queue = append(w.queue, pending{sequence: sequence, outstanding: events})
}

// ack marks one event of sequence as handled and reports the new committed
// sequence when it moved.
func (w *watermark) ack(sequence uint64) (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range w.queue {
		if w.queue[i].sequence == sequence && w.queue[i].outstanding > 0 {
			w.queue[i].outstanding--

			break
		}
	}

	return w.advance()
}

// flush commits leading sequences that carried no events.
func (w *watermark) flush() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.advance()
}

func (w *watermark) advance() (uint64, bool) {
	moved := false
	for len(w.queue) > 0 && w.queue[0].outstanding == 0 {
		w.committed = w.queue[0].sequence
		w.queue = w.queue[1:]
		moved = true
	}

	return w.committed, moved
}

// inflight counts published sequences still waiting for acknowledgement.
func (w *watermark) inflight() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.queue)
}
