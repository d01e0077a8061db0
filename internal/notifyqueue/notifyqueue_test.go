package notifyqueue

import (
	"testing"

	"github.com/nugget/miopubsub/internal/model"
)

func resp(node string) *model.Response {
	return &model.Response{Kind: model.KindData, Data: &model.DataEvent{Node: node}}
}

func TestEnqueueDequeue_FIFO(t *testing.T) {
	q := New(10, nil)
	q.Enqueue(resp("a"))
	q.Enqueue(resp("b"))
	q.Enqueue(resp("c"))

	if got := q.Dequeue(); got.Data.Node != "a" {
		t.Errorf("first Dequeue = %q, want a", got.Data.Node)
	}
	if got := q.Dequeue(); got.Data.Node != "b" {
		t.Errorf("second Dequeue = %q, want b", got.Data.Node)
	}
}

func TestOverflow_DropsOldest(t *testing.T) {
	// spec.md §8 scenario 4: MAX=3, deliver n1..n5, next three
	// dequeues yield n3, n4, n5.
	q := New(3, nil)
	for _, n := range []string{"n1", "n2", "n3", "n4", "n5"} {
		q.Enqueue(resp(n))
	}
	if got := q.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}

	want := []string{"n3", "n4", "n5"}
	for _, w := range want {
		got := q.Dequeue()
		if got == nil || got.Data.Node != w {
			t.Errorf("Dequeue() = %v, want %q", got, w)
		}
	}
	if got := q.Dequeue(); got != nil {
		t.Errorf("Dequeue() on empty queue = %v, want nil", got)
	}
}

func TestDequeue_EmptyReturnsNil(t *testing.T) {
	q := New(5, nil)
	if got := q.Dequeue(); got != nil {
		t.Errorf("Dequeue() on fresh queue = %v, want nil", got)
	}
}

func TestClear_DrainsWithoutDelivery(t *testing.T) {
	q := New(5, nil)
	q.Enqueue(resp("a"))
	q.Enqueue(resp("b"))
	q.Clear()
	if got := q.Len(); got != 0 {
		t.Errorf("Len() after Clear = %d, want 0", got)
	}
	if got := q.Dequeue(); got != nil {
		t.Errorf("Dequeue() after Clear = %v, want nil", got)
	}
}

func TestEnqueue_CallsSignalFunc(t *testing.T) {
	calls := 0
	q := New(5, func() { calls++ })
	q.Enqueue(resp("a"))
	q.Enqueue(resp("b"))
	if calls != 2 {
		t.Errorf("signal calls = %d, want 2", calls)
	}
}

func TestLenNeverExceedsMax(t *testing.T) {
	q := New(3, nil)
	for i := 0; i < 50; i++ {
		q.Enqueue(resp("x"))
		if q.Len() > 3 {
			t.Fatalf("Len() = %d exceeds max 3", q.Len())
		}
	}
}
