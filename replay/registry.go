package replay

// byteCounter reports the bytes transferred so far on a connection (see
// connTotal, which sums what both of its sides have sent).
type byteCounter interface {
	TotalBytesSeen() uint64
}

// Registry tracks every connection in a run so parallel-connection
// preconditions (spec §4.3 "Preconditions") can be checked against the
// sibling they name. Lookup is by the (clientPort, serverPort) pair alone,
// over every connection registered in the run; addresses are not compared.
// One Registry is shared by every Driver and Responder in a run; like the
// rest of the replay engine it is only ever touched from the single
// scheduler goroutine, so it needs no locking (spec §5).
type Registry struct {
	byPort map[portPair]byteCounter
}

type portPair struct {
	clientPort int
	serverPort int
}

// NewRegistry returns an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{byPort: map[portPair]byteCounter{}}
}

// Register associates (clientPort, serverPort) with the connection counter
// whose TotalBytesSeen other connections should consult when they carry a
// precondition on this one.
func (reg *Registry) Register(clientPort, serverPort int, bc byteCounter) {
	reg.byPort[portPair{clientPort, serverPort}] = bc
}

// TotalBytesSeen implements siblingSet: it looks up the registered endpoint
// for (clientPort, serverPort) and reports its running byte total, or 0 if
// no such connection has started yet.
func (reg *Registry) TotalBytesSeen(clientPort, serverPort int) uint64 {
	bc, ok := reg.byPort[portPair{clientPort, serverPort}]
	if !ok {
		return 0
	}
	return bc.TotalBytesSeen()
}
