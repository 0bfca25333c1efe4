package mem

import "testing"

func TestBootAllocatorScenario(t *testing.T) {
	a := NewBootAllocator(0x100000, 0x8000)

	got, err := a.Allocate(0x1000, 0x1000)
	if err != nil || got != 0x100000 {
		t.Fatalf("first allocate: got (%#x, %v)", got, err)
	}

	got, err = a.Allocate(0x2000, 0x1000)
	if err != nil || got != 0x101000 {
		t.Fatalf("second allocate: got (%#x, %v)", got, err)
	}

	if _, err := a.Allocate(0x6000, 0x1000); err == nil {
		t.Fatal("third allocate: expected OutOfMemory")
	}

	if rem := a.RemainingLength(); rem != 0x5000 {
		t.Fatalf("remaining length = %#x, want 0x5000", rem)
	}
}

func TestBootAllocatorAlignment(t *testing.T) {
	a := NewBootAllocator(0x1001, 0x1000)
	got, err := a.Allocate(0x10, 0x10)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if got%0x10 != 0 {
		t.Fatalf("allocate returned unaligned address %#x", got)
	}
}

func TestBootAllocatorPeek(t *testing.T) {
	a := NewBootAllocator(0x2000, 0x4000)
	if a.Peek() != 0x2000 {
		t.Fatalf("peek = %#x, want 0x2000", a.Peek())
	}
	a.Allocate(0x100, 0x10)
	if a.Peek() == 0x2000 {
		t.Fatal("peek did not advance after allocation")
	}
}
