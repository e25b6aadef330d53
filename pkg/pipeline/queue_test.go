// ABOUTME: Tests for the playback queue
// ABOUTME: Tests underrun silence, cross-block draining and clear
package pipeline

import (
	"testing"
)

func TestQueueUnderrun(t *testing.T) {
	var q Queue

	out := []float32{1, 1, 1, 1, 1}
	n := q.Drain(out)

	if n != 0 {
		t.Errorf("expected 0 queued samples, got %d", n)
	}
	for i, v := range out {
		if v != 0 {
			t.Errorf("sample %d: expected silence, got %f", i, v)
		}
	}
	if b, s := q.Cursor(); b != 0 || s != 0 {
		t.Errorf("expected cursor (0,0), got (%d,%d)", b, s)
	}
}

func TestQueueDrainAcrossBlocks(t *testing.T) {
	var q Queue
	q.Push([]float32{0.1, 0.2, 0.3})
	q.Push([]float32{0.4, 0.5})

	out := make([]float32, 2)
	if n := q.Drain(out); n != 2 {
		t.Fatalf("expected 2 samples, got %d", n)
	}
	if out[0] != 0.1 || out[1] != 0.2 {
		t.Errorf("unexpected first drain %v", out)
	}
	if b, s := q.Cursor(); b != 0 || s != 2 {
		t.Errorf("expected cursor (0,2), got (%d,%d)", b, s)
	}

	out = make([]float32, 2)
	if n := q.Drain(out); n != 2 {
		t.Fatalf("expected 2 samples, got %d", n)
	}
	if out[0] != 0.3 || out[1] != 0.4 {
		t.Errorf("unexpected second drain %v", out)
	}
	// First block exhausted and discarded
	if q.Blocks() != 1 {
		t.Errorf("expected 1 block left, got %d", q.Blocks())
	}
	if b, s := q.Cursor(); b != 0 || s != 1 {
		t.Errorf("expected cursor (0,1), got (%d,%d)", b, s)
	}

	out = []float32{9, 9, 9}
	if n := q.Drain(out); n != 1 {
		t.Fatalf("expected 1 sample, got %d", n)
	}
	if out[0] != 0.5 || out[1] != 0 || out[2] != 0 {
		t.Errorf("expected tail then silence, got %v", out)
	}
	if q.Len() != 0 || q.Blocks() != 0 {
		t.Errorf("expected empty queue, got len=%d blocks=%d", q.Len(), q.Blocks())
	}
	if b, s := q.Cursor(); b != 0 || s != 0 {
		t.Errorf("expected cursor (0,0), got (%d,%d)", b, s)
	}
}

func TestQueueExactBlockBoundary(t *testing.T) {
	var q Queue
	q.Push([]float32{1, 2})

	out := make([]float32, 2)
	q.Drain(out)

	if q.Blocks() != 0 {
		t.Errorf("expected exhausted block to be discarded, got %d blocks", q.Blocks())
	}
	if _, s := q.Cursor(); s != 0 {
		t.Errorf("expected cursor reset, got sample %d", s)
	}
}

func TestQueueClear(t *testing.T) {
	var q Queue
	q.Push([]float32{0.1, 0.2, 0.3})
	q.Push([]float32{0.4})
	q.Drain(make([]float32, 1))

	q.Clear()

	if q.Len() != 0 || q.Blocks() != 0 {
		t.Errorf("expected empty queue after clear, got len=%d blocks=%d", q.Len(), q.Blocks())
	}
	if b, s := q.Cursor(); b != 0 || s != 0 {
		t.Errorf("expected cursor (0,0), got (%d,%d)", b, s)
	}

	out := []float32{1, 1}
	if n := q.Drain(out); n != 0 || out[0] != 0 || out[1] != 0 {
		t.Errorf("expected silence after clear, got n=%d out=%v", n, out)
	}
}

func TestQueueIgnoresEmptyBlocks(t *testing.T) {
	var q Queue
	q.Push(nil)
	q.Push([]float32{})

	if q.Blocks() != 0 {
		t.Errorf("expected empty blocks to be ignored, got %d", q.Blocks())
	}
}

func TestQueueLen(t *testing.T) {
	var q Queue
	q.Push(make([]float32, 100))
	q.Push(make([]float32, 50))
	q.Drain(make([]float32, 30))

	if q.Len() != 120 {
		t.Errorf("expected 120 samples, got %d", q.Len())
	}
}
