package xfer

import (
	"testing"
)

// recorder is a test sink: it queues outbound wire bytes for the peer and
// keeps a copy of every event.
type recorder struct {
	wire   [][]byte
	events []Event
}

func (r *recorder) sink(ev Event) {
	switch e := ev.(type) {
	case SendData:
		r.wire = append(r.wire, append([]byte(nil), e.Bytes...))
		r.events = append(r.events, SendData{})
	case Failed:
		r.events = append(r.events, Failed{Message: e.Message})
	default:
		r.events = append(r.events, ev)
	}
}

// pop removes and returns the oldest queued wire chunk.
func (r *recorder) pop() ([]byte, bool) {
	if len(r.wire) == 0 {
		return nil, false
	}
	p := r.wire[0]
	r.wire = r.wire[1:]
	return p, true
}

// flat concatenates all queued wire chunks and clears the queue.
func (r *recorder) flat() []byte {
	var out []byte
	for _, p := range r.wire {
		out = append(out, p...)
	}
	r.wire = nil
	return out
}

func (r *recorder) count(ev Event) int {
	n := 0
	for _, e := range r.events {
		if e == ev {
			n++
		}
	}
	return n
}

func (r *recorder) started() (Started, bool) {
	for _, e := range r.events {
		if s, ok := e.(Started); ok {
			return s, true
		}
	}
	return Started{}, false
}

// drive shuttles queued bytes between two sessions until both queues drain
// or the exchange stops making progress.
func drive(t *testing.T, a, b *Session, ar, br *recorder) {
	t.Helper()
	for i := 0; i < 100000; i++ {
		moved := false
		if p, ok := ar.pop(); ok {
			b.ProcessData(p)
			moved = true
		}
		if p, ok := br.pop(); ok {
			a.ProcessData(p)
			moved = true
		}
		if !moved {
			return
		}
	}
	t.Fatal("loopback did not converge")
}

// progressMonotonic asserts BytesTransferred never decreases.
func progressMonotonic(t *testing.T, events []Event) {
	t.Helper()
	var last uint64
	for _, e := range events {
		if p, ok := e.(Progress); ok {
			if p.BytesTransferred < last {
				t.Fatalf("progress went backwards: %d after %d", p.BytesTransferred, last)
			}
			last = p.BytesTransferred
		}
	}
}

// patternData builds deterministic test data of the given length.
func patternData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*31 + i>>8 + 7)
	}
	return data
}
