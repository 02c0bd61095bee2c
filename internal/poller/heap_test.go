package poller

import (
	"container/heap"
	"testing"
	"time"
)

func TestHeap_OrdersByTriggerAt(t *testing.T) {
	base := time.Date(2025, 6, 14, 15, 0, 0, 0, time.UTC)
	h := &entryHeap{}
	heap.Init(h)
	heapPush(h, Entry{EventID: "c", TriggerAt: base.Add(3 * time.Minute)})
	heapPush(h, Entry{EventID: "a", TriggerAt: base.Add(1 * time.Minute)})
	heapPush(h, Entry{EventID: "b", TriggerAt: base.Add(2 * time.Minute)})

	for _, want := range []string{"a", "b", "c"} {
		if got := heapPop(h).EventID; got != want {
			t.Fatalf("pop = %s, want %s", got, want)
		}
	}
	if h.Len() != 0 {
		t.Fatalf("heap not empty: %d", h.Len())
	}
}

func TestHeap_RemoveAllForEvent(t *testing.T) {
	base := time.Date(2025, 6, 14, 15, 0, 0, 0, time.UTC)
	h := &entryHeap{}
	heapPush(h, Entry{EventID: "e1", TriggerAt: base})
	heapPush(h, Entry{EventID: "e2", TriggerAt: base.Add(time.Minute)})
	heapPush(h, Entry{EventID: "e1", TriggerAt: base.Add(2 * time.Minute)})

	if !heapRemove(h, "e1") {
		t.Fatal("expected e1 to be removed")
	}
	if h.Len() != 1 || (*h)[0].EventID != "e2" {
		t.Fatalf("unexpected heap after remove: %+v", *h)
	}
	if heapRemove(h, "missing") {
		t.Fatal("removing an unknown event reported true")
	}
}
