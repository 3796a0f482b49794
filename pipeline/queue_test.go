package pipeline

import (
	"testing"
	"time"

	"github.com/lumenscale/engine/frame"
)

func rawWithSeq(seq uint64) *frame.Raw {
	return &frame.Raw{
		Pixels:   make([]byte, 4),
		Width:    1,
		Height:   1,
		Sequence: seq,
	}
}

func TestFrameQueue_FIFO(t *testing.T) {
	q := newFrameQueue(3)

	for seq := uint64(1); seq <= 3; seq++ {
		if dropped := q.push(rawWithSeq(seq)); dropped != nil {
			t.Fatalf("push(%d) dropped %d with queue below capacity", seq, dropped.Sequence)
		}
	}

	for want := uint64(1); want <= 3; want++ {
		f, ok := q.pop()
		if !ok {
			t.Fatalf("pop() closed with %d frames expected", 4-want)
		}
		if f.Sequence != want {
			t.Errorf("pop() = seq %d, want %d", f.Sequence, want)
		}
	}
}

func TestFrameQueue_DropOldestWhenFull(t *testing.T) {
	q := newFrameQueue(2)

	q.push(rawWithSeq(1))
	q.push(rawWithSeq(2))

	dropped := q.push(rawWithSeq(3))
	if dropped == nil {
		t.Fatal("push past capacity dropped nothing")
	}
	if dropped.Sequence != 1 {
		t.Errorf("dropped seq %d, want oldest (1)", dropped.Sequence)
	}

	f, _ := q.pop()
	if f.Sequence != 2 {
		t.Errorf("first pop after eviction = seq %d, want 2", f.Sequence)
	}
	f, _ = q.pop()
	if f.Sequence != 3 {
		t.Errorf("second pop after eviction = seq %d, want 3", f.Sequence)
	}
}

func TestFrameQueue_CloseUnblocksPop(t *testing.T) {
	q := newFrameQueue(2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := q.pop(); ok {
			t.Error("pop() on closed empty queue reported a frame")
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pop() still blocked after close()")
	}
}

func TestFrameQueue_PushAfterCloseIsIgnored(t *testing.T) {
	q := newFrameQueue(2)
	q.close()
	if dropped := q.push(rawWithSeq(1)); dropped != nil {
		t.Errorf("push after close dropped seq %d", dropped.Sequence)
	}
	if _, ok := q.pop(); ok {
		t.Error("pop() returned a frame pushed after close")
	}
}
