package script

import (
	"net"
	"testing"
)

func conn(clientIP string, clientPort int, serverIP string, serverPort int) ConnID {
	return ConnID{
		ClientIP:   net.ParseIP(clientIP),
		ClientPort: clientPort,
		ServerIP:   net.ParseIP(serverIP),
		ServerPort: serverPort,
	}
}

func TestReversed(t *testing.T) {
	id := conn("10.0.0.1", 4000, "10.0.0.2", 80)
	rev := id.Reversed()

	want := conn("10.0.0.2", 80, "10.0.0.1", 4000)
	if !rev.ClientIP.Equal(want.ClientIP) || rev.ClientPort != want.ClientPort ||
		!rev.ServerIP.Equal(want.ServerIP) || rev.ServerPort != want.ServerPort {
		t.Fatalf("Reversed() = %+v, want %+v", rev, want)
	}

	if !rev.Reversed().ClientIP.Equal(id.ClientIP) || rev.Reversed().ClientPort != id.ClientPort {
		t.Fatalf("Reversed() is not its own inverse")
	}
}

func TestLessTotalOrder(t *testing.T) {
	a := conn("10.0.0.1", 4000, "10.0.0.2", 80)
	b := conn("10.0.0.1", 4001, "10.0.0.2", 80)
	c := conn("10.0.0.2", 1000, "10.0.0.2", 80)

	if !a.Less(b) {
		t.Fatalf("expected %+v < %+v", a, b)
	}
	if b.Less(a) {
		t.Fatalf("expected %+v !< %+v", b, a)
	}
	if !a.Less(c) {
		t.Fatalf("expected %+v < %+v (by client IP)", a, c)
	}
	if a.Less(a) {
		t.Fatalf("Less must be irreflexive")
	}
}
