package gateway

import "testing"

func TestOutbox_OverflowCloses(t *testing.T) {
	o := newOutbox(2)
	o.push(map[string]int{"n": 1})
	o.push(map[string]int{"n": 2})

	select {
	case <-o.full:
		t.Fatal("outbox closed before the limit")
	default:
	}

	o.push(map[string]int{"n": 3})
	select {
	case <-o.full:
	default:
		t.Fatal("outbox did not close past the limit")
	}
	if q := o.take(); len(q) != 0 {
		t.Errorf("queue after overflow = %d frames, want 0", len(q))
	}

	o.push(map[string]int{"n": 4})
	if q := o.take(); len(q) != 0 {
		t.Errorf("push after overflow queued %d frames", len(q))
	}
}

func TestOutbox_TakeDrains(t *testing.T) {
	o := newOutbox(maxQueued)
	for i := range 3 {
		o.push(i)
	}
	if q := o.take(); len(q) != 3 || string(q[0]) != "0" || string(q[2]) != "2" {
		t.Fatalf("take = %q", q)
	}
	if q := o.take(); len(q) != 0 {
		t.Errorf("second take = %q, want empty", q)
	}
}
