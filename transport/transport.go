// Package transport defines the interface BigBrother routers send and
// receive UDP datagrams through, plus the two concrete implementations in
// its udp and mocknet subpackages.
//
// Grounded on the BigBrotherInterface trait implemented in
// _examples/original_source/big-brother/src/interface/std_interface.rs.
package transport

// Endpoint is a reachable (IP, port) pair on one interface.
type Endpoint struct {
	IP   [4]byte
	Port uint16
}

// Interface is one network interface a Router can send and receive UDP
// datagrams over. A Router is constructed with a small, fixed set of these
// (see bigbrother.MaxInterfaces) and polls all of them on every call to
// Poll1ms/RecvPacket.
type Interface interface {
	// Poll lets the interface perform any periodic housekeeping (flushing
	// pending sends, servicing its network stack) it needs. timestampMs is
	// a monotonically increasing millisecond clock chosen by the caller.
	Poll(timestampMs uint32)

	// SendUDP queues data for delivery to dest. Implementations may send
	// synchronously or buffer; a full send buffer is reported as an error
	// so the router can account for drops rather than block.
	SendUDP(dest Endpoint, data []byte) error

	// RecvUDP copies at most one pending datagram into buf. ok is false
	// when nothing is pending (not an error).
	RecvUDP(buf []byte) (n int, remote Endpoint, ok bool, err error)

	// BroadcastIP is the address this interface's subnet broadcasts to.
	BroadcastIP() [4]byte
}
