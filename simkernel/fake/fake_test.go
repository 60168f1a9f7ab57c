package fake

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/traceroam/tracereplay/simkernel"
)

func addr(port int) simkernel.Address {
	return simkernel.Address{IP: net.ParseIP("10.0.0.1"), Port: port}
}

func TestSchedulerOrdersEventsByTime(t *testing.T) {
	sched := NewScheduler(10 * time.Second)
	var order []int

	sched.Schedule(3*time.Second, func() { order = append(order, 3) })
	sched.Schedule(1*time.Second, func() { order = append(order, 1) })
	sched.Schedule(2*time.Second, func() { order = append(order, 2) })

	sched.Run()

	want := []int{1, 2, 3}
	for i, v := range want {
		if order[i] != v {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if sched.Now() != 10*time.Second {
		t.Fatalf("Now() = %v, want stop time 10s", sched.Now())
	}
}

func TestSchedulerDiscardsEventsAtOrAfterStopTime(t *testing.T) {
	sched := NewScheduler(5 * time.Second)
	fired := false
	sched.Schedule(5*time.Second, func() { fired = true })
	sched.Schedule(10*time.Second, func() { fired = true })
	sched.Run()
	if fired {
		t.Fatalf("expected events at/after stop time to be discarded")
	}
}

func TestSocketConnectAndAccept(t *testing.T) {
	sched := NewScheduler(time.Hour)
	network := NewNetwork(sched)

	var accepted simkernel.Socket
	server := network.NewSocket()
	if err := server.Listen(addr(80), func(s simkernel.Socket) { accepted = s }); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	client := network.NewSocket()
	if err := client.Connect(context.Background(), addr(80)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if accepted == nil {
		t.Fatalf("expected Listen's onAccept callback to fire")
	}

	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 16)
	n, err := accepted.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("Read = %q, want %q", buf[:n], "hello")
	}
}

func TestConnectWithoutListenerFails(t *testing.T) {
	sched := NewScheduler(time.Hour)
	network := NewNetwork(sched)
	client := network.NewSocket()
	if err := client.Connect(context.Background(), addr(9999)); err == nil {
		t.Fatalf("expected Connect to fail with no listener present")
	}
}

func TestFreeBufferSpaceTracksWritesAndDrains(t *testing.T) {
	sched := NewScheduler(time.Hour)
	network := NewNetwork(sched)

	server := network.NewSocket()
	server.Listen(addr(80), func(simkernel.Socket) {})
	client := network.NewSocket()
	client.SetCapacity(100)
	client.Connect(context.Background(), addr(80))

	if got := client.FreeBufferSpace(); got != 100 {
		t.Fatalf("initial FreeBufferSpace = %d, want 100", got)
	}
	client.Write(make([]byte, 40))
	if got := client.FreeBufferSpace(); got != 60 {
		t.Fatalf("after write FreeBufferSpace = %d, want 60", got)
	}
	client.Drain(40)
	if got := client.FreeBufferSpace(); got != 100 {
		t.Fatalf("after drain FreeBufferSpace = %d, want 100", got)
	}
}
