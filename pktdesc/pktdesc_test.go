package pktdesc

import (
	"testing"
	"time"
)

func TestThresholdAbsentIsZero(t *testing.T) {
	p := New(100)
	if got := p.Threshold(101, 80); got != 0 {
		t.Fatalf("expected 0 for absent precondition, got %d", got)
	}
}

func TestThresholdLookup(t *testing.T) {
	p := New(100).WithDelay(5 * time.Second)
	p.AddPrecondition(101, 80, 200)
	p.AddPrecondition(102, 80, 50)

	if got := p.Threshold(101, 80); got != 200 {
		t.Fatalf("want 200, got %d", got)
	}
	if got := p.Threshold(102, 80); got != 50 {
		t.Fatalf("want 50, got %d", got)
	}
	if got := p.Threshold(999, 1); got != 0 {
		t.Fatalf("want 0 for unknown sibling, got %d", got)
	}
}

func TestZeroDelayPacketHasNoPreconditions(t *testing.T) {
	p := New(10)
	if len(p.Preconditions()) != 0 {
		t.Fatalf("zero-delay packet must have empty precondition list, got %v", p.Preconditions())
	}
}
