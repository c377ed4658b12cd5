package nativesoftware

import (
	"context"
	"testing"

	"github.com/gogpu/clon12/hal"
)

func TestDevice_CopyBufferRegionRoundTrips(t *testing.T) {
	d := New("software", 1<<30)
	defer d.Destroy()

	src, err := d.CreateResource(hal.ResourceDesc{SizeBytes: 16, Heap: hal.HeapUpload})
	if err != nil {
		t.Fatalf("create src: %v", err)
	}
	dst, err := d.CreateResource(hal.ResourceDesc{SizeBytes: 16, Heap: hal.HeapReadback})
	if err != nil {
		t.Fatalf("create dst: %v", err)
	}

	buf, _ := src.Map()
	copy(buf, []byte("hello software!!"))
	src.Unmap()

	alloc, err := d.CreateCommandAllocator()
	if err != nil {
		t.Fatalf("create allocator: %v", err)
	}
	list, err := d.CreateCommandList(alloc)
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	list.CopyBufferRegion(dst, 0, src, 0, 16)
	if err := list.Close(); err != nil {
		t.Fatalf("close list: %v", err)
	}

	q, err := d.CreateQueue()
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}
	if err := q.ExecuteCommandLists([]hal.CommandList{list}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	out, _ := dst.Map()
	if string(out) != "hello software!!" {
		t.Fatalf("expected copy to round-trip, got %q", out)
	}
}

func TestFence_WaitBlocksUntilSignaled(t *testing.T) {
	d := New("software", 1<<30)
	defer d.Destroy()

	f, err := d.CreateFence(0)
	if err != nil {
		t.Fatalf("create fence: %v", err)
	}
	q, err := d.CreateQueue()
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- f.Wait(context.Background(), 5) }()

	if err := q.Signal(f, 5); err != nil {
		t.Fatalf("signal: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("wait returned error: %v", err)
	}
	if f.Completed() != 5 {
		t.Fatalf("expected completed=5, got %d", f.Completed())
	}
}

func TestDevice_DestroyMarksRemoved(t *testing.T) {
	d := New("software", 1<<20)
	if d.Removed() {
		t.Fatal("expected not removed before Destroy")
	}
	d.Destroy()
	if !d.Removed() {
		t.Fatal("expected removed after Destroy")
	}
	if _, err := d.CreateQueue(); err != ErrRemoved {
		t.Fatalf("expected ErrRemoved, got %v", err)
	}
}
