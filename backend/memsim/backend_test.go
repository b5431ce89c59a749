package memsim

import (
	"testing"

	"github.com/spaghettifunk/rendergraph/backend"
	"github.com/spaghettifunk/rendergraph/scheduling"
)

func TestCreateHeapAndAllocateResource(t *testing.T) {
	b := New(scheduling.BackendCapabilities{})

	heap, err := b.CreateHeap(scheduling.GroupRTDSTextures, 4096)
	if err != nil {
		t.Fatalf("CreateHeap: unexpected error %v", err)
	}
	if b.HeapSize(heap) != 4096 {
		t.Fatalf("HeapSize: have %d, want 4096", b.HeapSize(heap))
	}

	format := scheduling.BufferFormat{SizeBytes: 1024}
	handle, err := b.AllocateResource(format, heap, 0)
	if err != nil {
		t.Fatalf("AllocateResource: unexpected error %v", err)
	}
	if handle == nil {
		t.Fatalf("AllocateResource: have nil handle")
	}
}

func TestAllocateResourceOutOfBounds(t *testing.T) {
	b := New(scheduling.BackendCapabilities{})
	heap, _ := b.CreateHeap(scheduling.GroupBuffers, 1024)

	_, err := b.AllocateResource(scheduling.BufferFormat{SizeBytes: 2048}, heap, 0)
	if err == nil {
		t.Fatalf("AllocateResource: expected error for offset+size exceeding heap size")
	}
}

func TestSubmitAndWait(t *testing.T) {
	b := New(scheduling.BackendCapabilities{})
	list, err := b.NewCommandList(backend.CommandListDirect)
	if err != nil {
		t.Fatalf("NewCommandList: unexpected error %v", err)
	}

	fence, err := b.Submit(list)
	if err != nil {
		t.Fatalf("Submit: unexpected error %v", err)
	}
	if err := b.Wait(fence); err != nil {
		t.Fatalf("Wait: unexpected error %v", err)
	}
	if err := b.Wait(fence + 1); err == nil {
		t.Fatalf("Wait on unsubmitted fence: expected error")
	}
}

func TestRecordBarrierAccumulates(t *testing.T) {
	b := New(scheduling.BackendCapabilities{})
	list, _ := b.NewCommandList(backend.CommandListDirect)

	if err := b.RecordBarrier(list, backend.Barrier{Subresource: 0}); err != nil {
		t.Fatalf("RecordBarrier: unexpected error %v", err)
	}
	cl := list.(*commandList)
	if len(cl.barriers) != 1 {
		t.Fatalf("barriers: have %d, want 1", len(cl.barriers))
	}
}
