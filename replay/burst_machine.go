// Package replay drives the simulated traffic described by a connection
// script: one driver (active opener) and one responder (passive listener)
// per connection, each stepping through alternating send/receive bursts
// exactly as captured (spec §4).
package replay

import (
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"

	"github.com/traceroam/tracereplay/pktdesc"
	"github.com/traceroam/tracereplay/printer"
	"github.com/traceroam/tracereplay/script"
	"github.com/traceroam/tracereplay/simkernel"
)

// siblingSet reports the total bytes a peer connection, identified by its
// own (clientPort, serverPort) pair, has sent so far. The replay run's
// shared Registry implements it directly and is handed to Driver and
// Responder via SetSiblings, so the burst machine can gate sends on
// parallel-connection preconditions (spec §4.3 "Preconditions").
type siblingSet interface {
	TotalBytesSeen(clientPort, serverPort int) uint64
}

// drainer is implemented by sockets that model transmit-buffer occupancy
// with an explicit drain event rather than real transfer timing (spec §4.4
// step 2). The burst machine type-asserts for it; a socket that doesn't
// implement it is assumed to drain instantly.
type drainer interface {
	Drain(n int)
}

// state is the burst machine's position in the send/receive cycle (spec
// §4.3 "Connection state machine").
type state int

const (
	stateIdle state = iota
	stateSending
	stateReceiving
	stateClosed
)

// burstMachine is the state machine shared by Driver and Responder: once a
// socket is connected, both endpoints alternate between sending their own
// burst of packets and waiting to receive the number of bytes the other
// side is expected to send, exactly as the captured script recorded (spec
// §9 "Endpoint polymorphism" — driver and responder differ only in how the
// socket was obtained).
type burstMachine struct {
	id      script.ConnID
	runID   uuid.UUID // distinguishes this endpoint instance in logs when the same script replays more than once
	sock    simkernel.Socket
	sched simkernel.Scheduler
	cfg  Config

	ownPackets  []pktdesc.Packet // this side's packets, grouped into bursts by counts
	counts      []int            // this side's burst sizes
	expBytes    []uint64         // bytes expected from the peer between this side's bursts

	// burstIdx indexes into counts: the burst currently being sent.
	// packetIdx indexes into ownPackets: the next packet within that burst.
	// expIdx indexes into expBytes: the next receive threshold to wait for.
	// These two cursors (burstIdx, expIdx) advance independently, mirroring
	// the original driver's two distinct iterators over parallel arrays
	// rather than one shared position. burstIdx moves only in
	// finishSendBurst; expIdx moves in finishSendBurst and, for a responder,
	// once more in bootstrap when it consumes the leading threshold.
	burstIdx  int
	packetIdx int
	expIdx    int

	state         state
	sentBytes     uint64 // bytes written to the socket so far
	recvBytes     uint64 // bytes drained from the socket so far
	siblings      siblingSet
	limiter       *rate.Limiter
	simEpoch      time.Time
	recvThreshold       uint64
	recvSoFar           uint64
	pendingAfterReceive func()

	onClosed func()
}

func newBurstMachine(id script.ConnID, sock simkernel.Socket, sched simkernel.Scheduler, cfg Config, own []pktdesc.Packet, ownCounts []int, expBytes []uint64) *burstMachine {
	m := &burstMachine{
		id:       id,
		runID:    uuid.New(),
		sock:     sock,
		sched:    sched,
		cfg:      cfg,
		ownPackets: own,
		counts:   ownCounts,
		expBytes: expBytes,
		limiter:  rate.NewLimiter(rate.Limit(cfg.DataRate), maxInt(int(cfg.DataRate), 1)),
		simEpoch: time.Unix(0, 0),
	}
	if sock != nil {
		sock.SetRecvHandler(m.onDataAvailable)
	}
	return m
}

// SetSiblings wires the shared parallel-connection registry used to gate
// sends on sibling byte-thresholds.
func (m *burstMachine) SetSiblings(s siblingSet) { m.siblings = s }

// TotalBytesSeen reports how many bytes this side has sent plus how many
// it has received so far, in either direction.
func (m *burstMachine) TotalBytesSeen() uint64 { return m.sentBytes + m.recvBytes }

// bytesSent reports only the bytes this side has written to its socket,
// the figure sibling connections gate their own sends on (matching the
// extractor's capture-time snapshot of a sibling's cumulative bytes
// transferred, counted once per byte rather than once per endpoint).
func (m *burstMachine) bytesSent() uint64 { return m.sentBytes }

// bootstrap starts a responder: if the first expected-bytes threshold is
// zero, the captured trace shows the server speaking first, so it jumps
// straight into sending; otherwise it waits to receive that many bytes
// before sending its own first burst (spec §4.5 "On accept").
func (m *burstMachine) bootstrap() {
	if len(m.expBytes) == 0 {
		m.enterSending()
		return
	}
	threshold := m.expBytes[0]
	m.expIdx = 1
	if threshold == 0 {
		m.enterSending()
		return
	}
	m.receiveThen(threshold, m.enterSending)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// now returns the simulated wall-clock instant corresponding to the
// scheduler's current virtual time, for the rate limiter's explicit-now API.
func (m *burstMachine) now() time.Time {
	return m.simEpoch.Add(m.sched.Now())
}

// enterSending begins (or resumes) sending the burst at burstIdx.
func (m *burstMachine) enterSending() {
	if m.burstIdx >= len(m.counts) {
		m.close()
		return
	}
	m.state = stateSending
	m.attemptNextPacket()
}

// attemptNextPacket sends the next packet of the current burst, or finishes
// the burst once all of its packets have gone out.
func (m *burstMachine) attemptNextPacket() {
	burstLen := m.counts[m.burstIdx]
	sentInBurst := m.packetsSentInBurst()
	if sentInBurst >= burstLen {
		m.finishSendBurst()
		return
	}
	pkt := m.ownPackets[m.packetIdx]
	m.attemptSend(pkt)
}

// packetsSentInBurst recovers how many packets of the current burst have
// already gone out, from the global packetIdx and the lengths of prior
// bursts.
func (m *burstMachine) packetsSentInBurst() int {
	priorTotal := 0
	for i := 0; i < m.burstIdx; i++ {
		priorTotal += m.counts[i]
	}
	return m.packetIdx - priorTotal
}

// attemptSend gates pkt on its parallel-connection precondition, then on
// transmit-buffer space, before writing it (spec §4.4 "attempt_send").
func (m *burstMachine) attemptSend(pkt pktdesc.Packet) {
	if m.state == stateClosed {
		return
	}
	for _, pc := range pkt.Preconditions() {
		if m.siblings == nil {
			continue
		}
		seen := m.siblings.TotalBytesSeen(pc.ClientPort, pc.ServerPort)
		if seen < pc.ByteThreshold {
			b := &backoff.Backoff{Min: 10 * time.Microsecond, Max: 10 * time.Microsecond, Factor: 1}
			m.sched.Schedule(b.Duration(), func() { m.attemptSend(pkt) })
			return
		}
	}

	if pkt.Size > m.sock.FreeBufferSpace() {
		wait := m.timeToDrain(pkt.Size)
		m.sched.Schedule(wait, func() { m.attemptSend(pkt) })
		return
	}

	if pkt.Delay > 0 {
		// The delay is the application think-time the extractor observed
		// before this packet was originally sent; replay it verbatim before
		// writing.
		m.sched.Schedule(pkt.Delay, func() { m.writeAndAdvance(pkt) })
		return
	}
	m.writeAndAdvance(pkt)
}

func (m *burstMachine) writeAndAdvance(pkt pktdesc.Packet) {
	if m.state == stateClosed {
		return
	}
	buf := make([]byte, pkt.Size)
	if _, err := m.sock.Write(buf); err != nil {
		printer.Errorf("replay: %s [%s]: write failed: %v", m.id, m.runID, err)
		m.close()
		return
	}
	m.sentBytes += uint64(pkt.Size)
	if d, ok := m.sock.(drainer); ok {
		size := pkt.Size
		m.sched.Schedule(m.timeToDrain(size), func() { d.Drain(size) })
	}
	m.packetIdx++
	m.attemptNextPacket()
}

// timeToDrain computes how long pkt's bytes occupy the transmit buffer
// under the configured data rate.
func (m *burstMachine) timeToDrain(size int) time.Duration {
	if m.cfg.DataRate <= 0 {
		return 0
	}
	now := m.now()
	r := m.limiter.ReserveN(now, size)
	if !r.OK() {
		return time.Duration(float64(size) / m.cfg.DataRate * float64(time.Second))
	}
	return r.DelayFrom(now)
}

// finishSendBurst closes out the current send burst and moves to waiting
// for the peer's next expected bytes, if any remain.
func (m *burstMachine) finishSendBurst() {
	m.burstIdx++
	if m.expIdx >= len(m.expBytes) {
		// No more receive thresholds recorded: the script ends on a send.
		m.close()
		return
	}
	threshold := m.expBytes[m.expIdx]
	m.expIdx++
	m.receiveThen(threshold, m.afterReceiveAdvanceSend)
}

// afterReceiveAdvanceSend resumes sending once the expected receive
// threshold for the burst that just finished has been reached.
func (m *burstMachine) afterReceiveAdvanceSend() {
	m.enterSending()
}

// receiveThen arms the machine to wait until at least threshold bytes have
// arrived on this connection since the last time it finished waiting, then
// invokes next. threshold of 0 fires immediately.
func (m *burstMachine) receiveThen(threshold uint64, next func()) {
	m.state = stateReceiving
	m.recvThreshold = threshold
	m.recvSoFar = 0
	if threshold == 0 {
		next()
		return
	}
	m.pendingAfterReceive = next
	// Bytes the peer wrote while this side was still sending are already
	// buffered and will not trigger the recv handler again; drain them now.
	m.onDataAvailable()
}

// onDataAvailable is the socket's recv-handler callback (spec §4.5 "On
// receive"): it drains whatever bytes are available and, once the current
// receive threshold is met, advances the state machine.
func (m *burstMachine) onDataAvailable() {
	if m.state != stateReceiving {
		return
	}
	buf := make([]byte, 65536)
	for {
		n, err := m.sock.Read(buf)
		if err != nil || n == 0 {
			break
		}
		m.recvSoFar += uint64(n)
		m.recvBytes += uint64(n)
	}
	m.checkReceiveThreshold()
}

func (m *burstMachine) checkReceiveThreshold() {
	if m.state != stateReceiving {
		return
	}
	if m.recvSoFar >= m.recvThreshold && m.pendingAfterReceive != nil {
		next := m.pendingAfterReceive
		m.pendingAfterReceive = nil
		next()
	}
}

func (m *burstMachine) close() {
	if m.state == stateClosed {
		return
	}
	m.state = stateClosed
	m.sock.Close()
	if m.onClosed != nil {
		m.onClosed()
	}
}
