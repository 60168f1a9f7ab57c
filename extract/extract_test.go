package extract

import (
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/traceroam/tracereplay/pktdesc"
	"github.com/traceroam/tracereplay/script"
)

var (
	clientIP = net.ParseIP("10.0.0.1")
	serverIP = net.ParseIP("10.0.0.2")
)

func rec(src net.IP, sport int, dst net.IP, dport int, size int, t float64, frame uint32) PacketRecord {
	return PacketRecord{SrcIP: src, SrcPort: sport, DstIP: dst, DstPort: dport, PayloadLen: size, RelTime: t, Frame: frame}
}

func pktEqOpt() cmp.Option {
	return cmp.Comparer(func(a, b net.IP) bool { return a.Equal(b) })
}

func TestExtractSinglePingPong(t *testing.T) {
	dec := StreamDecoder{
		PacketList: []PacketRecord{
			rec(clientIP, 100, serverIP, 80, 100, 0, 1),
			rec(serverIP, 80, clientIP, 100, 200, 0.01, 2),
		},
	}

	scripts, err := Extract(dec)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(scripts) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(scripts))
	}

	want := script.Script{
		ID: script.ConnID{ClientIP: clientIP, ClientPort: 100, ServerIP: serverIP, ServerPort: 80},
		ClientPackets:      []pktdesc.Packet{pktdesc.New(100)},
		ServerPackets:      []pktdesc.Packet{pktdesc.New(200)},
		ReqCounts:          []int{1},
		RepCounts:          []int{1},
		ExpBytesFromServer: []uint64{200},
		ExpBytesFromClient: []uint64{100},
	}

	if diff := cmp.Diff(want, scripts[0], pktEqOpt()); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractHTTPThinkTime(t *testing.T) {
	dec := StreamDecoder{
		HTTPFrames: map[uint32]bool{1: true, 3: true},
		PacketList: []PacketRecord{
			rec(clientIP, 100, serverIP, 80, 50, 0, 1),
			rec(serverIP, 80, clientIP, 100, 1000, 0.1, 2),
			rec(clientIP, 100, serverIP, 80, 50, 5.2, 3),
		},
	}

	scripts, err := Extract(dec)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(scripts) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(scripts))
	}

	s := scripts[0]
	if len(s.ClientPackets) != 2 {
		t.Fatalf("expected 2 client packets, got %d", len(s.ClientPackets))
	}
	want := 5100 * time.Millisecond
	if got := s.ClientPackets[1].Delay; got != want {
		t.Fatalf("second client packet delay = %v, want %v", got, want)
	}
}

func TestExtractRetransmissionMasksDelay(t *testing.T) {
	dec := StreamDecoder{
		HTTPFrames: map[uint32]bool{1: true, 3: true},
		RTOFrames:  map[uint32]float64{3: 0.2},
		PacketList: []PacketRecord{
			rec(clientIP, 100, serverIP, 80, 50, 0, 1),
			rec(serverIP, 80, clientIP, 100, 1000, 0.1, 2),
			rec(clientIP, 100, serverIP, 80, 50, 5.2, 3),
		},
	}

	scripts, err := Extract(dec)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := scripts[0].ClientPackets[1].Delay; got != 0 {
		t.Fatalf("retransmission-flagged packet delay = %v, want 0", got)
	}
}

func TestExtractSubSecondNonHTTPGapIsZero(t *testing.T) {
	dec := StreamDecoder{
		PacketList: []PacketRecord{
			rec(clientIP, 100, serverIP, 80, 10, 0, 1),
			rec(clientIP, 100, serverIP, 80, 10, 0.3, 2),
		},
	}

	scripts, err := Extract(dec)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := scripts[0].ClientPackets[1].Delay; got != 0 {
		t.Fatalf("sub-second non-HTTP gap delay = %v, want 0", got)
	}
}

func TestExtractParallelSnapshot(t *testing.T) {
	connAServer := 80
	dec := StreamDecoder{
		PacketList: []PacketRecord{
			rec(clientIP, 100, serverIP, connAServer, 500, 0.1, 1), // A's first packet
			rec(clientIP, 101, serverIP, connAServer, 200, 0.2, 2), // B's only packet
			rec(clientIP, 100, serverIP, connAServer, 10, 5.0, 3),  // A's delayed packet, gap=4.9
		},
	}

	scripts, err := Extract(dec)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(scripts) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(scripts))
	}

	var connA *script.Script
	for i := range scripts {
		if scripts[i].ID.ClientPort == 100 {
			connA = &scripts[i]
		}
	}
	if connA == nil {
		t.Fatalf("connection A (client port 100) not found")
	}
	if len(connA.ClientPackets) != 2 {
		t.Fatalf("expected 2 packets on connection A, got %d", len(connA.ClientPackets))
	}

	delayed := connA.ClientPackets[1]
	if delayed.Delay <= 0 {
		t.Fatalf("expected a positive delay on A's second packet, got %v", delayed.Delay)
	}
	if got := delayed.Threshold(101, connAServer); got != 200 {
		t.Fatalf("snapshot threshold for sibling (101,%d) = %d, want 200", connAServer, got)
	}
}

func TestExtractSilentSiblingNeverSnapshot(t *testing.T) {
	// Connection B never sends anything (total_bytes == 0), so it must never
	// appear in A's parallel snapshot even though it shares client/server IPs.
	dec := StreamDecoder{
		PacketList: []PacketRecord{
			rec(clientIP, 100, serverIP, 80, 500, 0.1, 1),
			rec(clientIP, 100, serverIP, 80, 10, 5.0, 2),
		},
	}
	// Register a silent sibling connection with no packets by including a
	// zero-payload packet only (dropped at step 1), so it never accrues
	// total_bytes but would still exist if step-1 filtering were broken.
	dec.PacketList = append(dec.PacketList, rec(clientIP, 101, serverIP, 80, 0, 0.05, 3))

	scripts, err := Extract(dec)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, s := range scripts {
		for _, p := range s.ClientPackets {
			if p.Delay > 0 && len(p.Preconditions()) != 0 {
				t.Fatalf("expected no snapshot entries (only a silent sibling exists), got %v", p.Preconditions())
			}
		}
	}
}

func TestExtractSingleOneBytePacket(t *testing.T) {
	dec := StreamDecoder{
		PacketList: []PacketRecord{
			rec(clientIP, 100, serverIP, 80, 1, 0, 1),
		},
	}

	scripts, err := Extract(dec)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(scripts) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(scripts))
	}
	s := scripts[0]
	if len(s.ClientPackets) != 1 || len(s.ServerPackets) != 0 {
		t.Fatalf("expected 1 client packet and 0 server packets, got %d/%d", len(s.ClientPackets), len(s.ServerPackets))
	}
	if len(s.ReqCounts) != 1 || s.ReqCounts[0] != 1 {
		t.Fatalf("expected req_counts=[1], got %v", s.ReqCounts)
	}
}

func TestExtractAllRetransmissionsYieldZeroDelayAndEmptySnapshots(t *testing.T) {
	dec := StreamDecoder{
		RTOFrames: map[uint32]float64{1: 0.1, 2: 0.2, 3: 0.3},
		PacketList: []PacketRecord{
			rec(clientIP, 100, serverIP, 80, 10, 0, 1),
			rec(clientIP, 100, serverIP, 80, 10, 3, 2),
			rec(clientIP, 100, serverIP, 80, 10, 6, 3),
		},
	}

	scripts, err := Extract(dec)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, p := range scripts[0].ClientPackets {
		if p.Delay != 0 {
			t.Fatalf("expected delay=0 under all-retransmission capture, got %v", p.Delay)
		}
		if len(p.Preconditions()) != 0 {
			t.Fatalf("expected empty snapshot under delay=0, got %v", p.Preconditions())
		}
	}
}

func TestExtractZeroPayloadPacketsDropped(t *testing.T) {
	dec := StreamDecoder{
		PacketList: []PacketRecord{
			rec(clientIP, 100, serverIP, 80, 0, 0, 1),
			rec(clientIP, 100, serverIP, 80, 10, 0.1, 2),
		},
	}

	scripts, err := Extract(dec)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(scripts[0].ClientPackets) != 1 {
		t.Fatalf("expected the zero-payload packet to be dropped, got %d packets", len(scripts[0].ClientPackets))
	}
}

func TestValidateCatchesBrokenInvariants(t *testing.T) {
	bad := script.Script{
		ID:            script.ConnID{ClientIP: clientIP, ClientPort: 1, ServerIP: serverIP, ServerPort: 2},
		ClientPackets: []pktdesc.Packet{pktdesc.New(10), pktdesc.New(10)},
		ReqCounts:     []int{1}, // sum=1, but len(ClientPackets)=2
	}

	err := Validate([]script.Script{bad})
	if err == nil {
		t.Fatalf("expected Validate to report the req_counts mismatch")
	}
}

// TestExtractDirectionReversalIdempotence exercises the "swap every packet's
// source and destination" property directly at the Extract level, not just
// on a bare ConnID (see ConnID.Reversed in the script package). Because a
// connection's ClientIP/ClientPort are assigned from whichever packet is
// seen first in frame order, a uniform src/dst swap across a whole capture
// doesn't just flip Client and Server in place — it relabels which host was
// "first," so the new client is the old server. The packet that opened the
// connection is still the one that defines its client, so under the
// relabeling every packet keeps its side: apart from the swapped identity,
// the two scripts' packets, burst counts and expected bytes must match
// byte for byte.
func TestExtractDirectionReversalIdempotence(t *testing.T) {
	original := StreamDecoder{
		PacketList: []PacketRecord{
			rec(clientIP, 100, serverIP, 80, 100, 0, 1),
			rec(clientIP, 100, serverIP, 80, 50, 0.001, 2),
			rec(serverIP, 80, clientIP, 100, 200, 0.01, 3),
			rec(clientIP, 100, serverIP, 80, 30, 0.02, 4),
		},
	}
	reversed := StreamDecoder{
		PacketList: []PacketRecord{
			rec(serverIP, 80, clientIP, 100, 100, 0, 1),
			rec(serverIP, 80, clientIP, 100, 50, 0.001, 2),
			rec(clientIP, 100, serverIP, 80, 200, 0.01, 3),
			rec(serverIP, 80, clientIP, 100, 30, 0.02, 4),
		},
	}

	origScripts, err := Extract(original)
	if err != nil {
		t.Fatalf("Extract(original): %v", err)
	}
	revScripts, err := Extract(reversed)
	if err != nil {
		t.Fatalf("Extract(reversed): %v", err)
	}
	if len(origScripts) != 1 || len(revScripts) != 1 {
		t.Fatalf("expected 1 connection each, got %d and %d", len(origScripts), len(revScripts))
	}
	orig, rev := origScripts[0], revScripts[0]

	// The first packet in each stream defines its ClientIP/ClientPort, so the
	// reversed capture's client is the original's server and vice versa.
	if !rev.ID.ClientIP.Equal(orig.ID.ServerIP) || rev.ID.ClientPort != orig.ID.ServerPort {
		t.Fatalf("reversed client = %s:%d, want original server %s:%d", rev.ID.ClientIP, rev.ID.ClientPort, orig.ID.ServerIP, orig.ID.ServerPort)
	}
	if !rev.ID.ServerIP.Equal(orig.ID.ClientIP) || rev.ID.ServerPort != orig.ID.ClientPort {
		t.Fatalf("reversed server = %s:%d, want original client %s:%d", rev.ID.ServerIP, rev.ID.ServerPort, orig.ID.ClientIP, orig.ID.ClientPort)
	}

	opt := pktEqOpt()
	if diff := cmp.Diff(orig.ClientPackets, rev.ClientPackets, opt); diff != "" {
		t.Fatalf("reversed client packets should match original client packets (-orig +rev):\n%s", diff)
	}
	if diff := cmp.Diff(orig.ServerPackets, rev.ServerPackets, opt); diff != "" {
		t.Fatalf("reversed server packets should match original server packets (-orig +rev):\n%s", diff)
	}
	if diff := cmp.Diff(orig.ReqCounts, rev.ReqCounts); diff != "" {
		t.Fatalf("reversed req_counts should match original req_counts (-orig +rev):\n%s", diff)
	}
	if diff := cmp.Diff(orig.RepCounts, rev.RepCounts); diff != "" {
		t.Fatalf("reversed rep_counts should match original rep_counts (-orig +rev):\n%s", diff)
	}
	if diff := cmp.Diff(orig.ExpBytesFromServer, rev.ExpBytesFromServer); diff != "" {
		t.Fatalf("reversed exp_bytes_from_server should match original exp_bytes_from_server:\n%s", diff)
	}
	if diff := cmp.Diff(orig.ExpBytesFromClient, rev.ExpBytesFromClient); diff != "" {
		t.Fatalf("reversed exp_bytes_from_client should match original exp_bytes_from_client:\n%s", diff)
	}
}

func TestValidateAcceptsWellFormedScript(t *testing.T) {
	good := script.Script{
		ID:                 script.ConnID{ClientIP: clientIP, ClientPort: 1, ServerIP: serverIP, ServerPort: 2},
		ClientPackets:      []pktdesc.Packet{pktdesc.New(10)},
		ServerPackets:      []pktdesc.Packet{pktdesc.New(20)},
		ReqCounts:          []int{1},
		RepCounts:          []int{1},
		ExpBytesFromServer: []uint64{20},
		ExpBytesFromClient: []uint64{10},
	}

	if err := Validate([]script.Script{good}); err != nil {
		t.Fatalf("Validate rejected a well-formed script: %v", err)
	}
}
