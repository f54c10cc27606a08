// Package networkmap implements the fixed-capacity table binding each peer's
// logical network address to its last observed (ip, port, interface) and its
// per-peer dedupe/session bookkeeping.
//
// Grounded on _examples/original_source/big-brother/src/network_map.rs. The
// Rust source backs the table with a `[Option<NetworkMapEntry>; N]` const
// generic array; Go has no const generics, so Map preallocates a slice with
// cap == capacity once at construction (New) and never grows it past that —
// append() within a fixed capacity never triggers a reallocation, so a
// pointer returned by MapNetworkAddress or GetAddressMapping stays valid for
// the table's lifetime. That preserves the "contiguous, fixed-size, no heap
// growth after construction" invariant the original relies on.
package networkmap

import "github.com/davidthefighter/bigbrother/internal/netaddr"

// MaxUpstreamLocalPorts bounds the number of co-located sibling processes
// (same host IP, distinct ports) this node tracks for loopback forwarding.
const MaxUpstreamLocalPorts = 4

// Entry is everything known about one peer.
type Entry[A netaddr.Address] struct {
	NetworkAddress   A
	IP               [4]byte
	Port             uint16
	InterfaceIndex   uint8
	ToCounter        uint32
	FromCounter      uint32
	BroadcastCounter uint32
	FromSessionID    uint32
}

// Map is the fixed-capacity peer table for one node.
type Map[A netaddr.Address] struct {
	entries  []Entry[A]
	capacity int

	hostAddr           A
	hostIP             [4]byte
	hostIPSet          bool
	upstreamLocalPorts []uint16
}

// New creates an empty table for hostAddr with room for capacity peers.
func New[A netaddr.Address](hostAddr A, capacity int) *Map[A] {
	return &Map[A]{
		entries:            make([]Entry[A], 0, capacity),
		capacity:           capacity,
		hostAddr:           hostAddr,
		upstreamLocalPorts: make([]uint16, 0, MaxUpstreamLocalPorts),
	}
}

// ErrFull mirrors BigBrotherError::NetworkMapFull: returned when a brand new
// address must be inserted but the table has no free slot.
type ErrFull struct{}

func (ErrFull) Error() string { return "network map is full" }

// ErrUnknownAddress mirrors BigBrotherError::UnknownNetworkAddress.
type ErrUnknownAddress struct{}

func (ErrUnknownAddress) Error() string { return "unknown network address" }

// MapNetworkAddress finds or creates the entry for fromAddr.
//
// On a hit, when update is true and (ip, port, interfaceIndex) changed, those
// three fields are rewritten — counters and session id are preserved. On a
// miss, a fresh entry is inserted with all counters at zero. Post-insert, if
// fromAddr is the host's own address the host IP is cached (used to detect
// siblings below); otherwise, if the host IP is already known and this new
// peer shares it, its port is recorded as an upstream local port so broadcast
// forwarding can reach it over loopback (see tryForwardUDP in package
// bigbrother).
func (m *Map[A]) MapNetworkAddress(fromAddr A, ip [4]byte, port uint16, interfaceIndex uint8, update bool) (*Entry[A], error) {
	for i := range m.entries {
		e := &m.entries[i]
		if e.NetworkAddress != fromAddr {
			continue
		}

		if update {
			if e.IP != ip || e.Port != port || e.InterfaceIndex != interfaceIndex {
				if fromAddr == m.hostAddr {
					m.hostIP = ip
					m.hostIPSet = true
				}
			}
			e.IP = ip
			e.Port = port
			e.InterfaceIndex = interfaceIndex
		}

		return e, nil
	}

	if len(m.entries) >= m.capacity {
		return nil, ErrFull{}
	}

	m.entries = append(m.entries, Entry[A]{
		NetworkAddress: fromAddr,
		IP:             ip,
		Port:           port,
		InterfaceIndex: interfaceIndex,
	})
	e := &m.entries[len(m.entries)-1]

	if fromAddr == m.hostAddr {
		m.hostIP = ip
		m.hostIPSet = true
	} else if m.hostIPSet && m.hostIP == ip {
		m.addUpstreamLocalPort(port)
	}

	return e, nil
}

func (m *Map[A]) addUpstreamLocalPort(port uint16) {
	if len(m.upstreamLocalPorts) >= cap(m.upstreamLocalPorts) {
		return
	}
	for _, p := range m.upstreamLocalPorts {
		if p == port {
			return
		}
	}
	m.upstreamLocalPorts = append(m.upstreamLocalPorts, port)
}

// GetAddressMapping looks up an existing entry by address.
func (m *Map[A]) GetAddressMapping(addr A) (*Entry[A], error) {
	for i := range m.entries {
		if m.entries[i].NetworkAddress == addr {
			return &m.entries[i], nil
		}
	}
	return nil, ErrUnknownAddress{}
}

// UpdateSessionID applies the recovery path for a peer that restarted: if the
// observed session id differs from the one on record, FromCounter resets to
// zero and BroadcastCounter resets to zero, so a counter the peer is about to
// reuse after its own restart isn't rejected as a duplicate of the old
// session. This is the two-argument signature actually exercised by the
// original call site in big_brother.rs (see DESIGN.md Open Question: the
// source also shows a three-argument variant taking an explicit
// broadcast-counter override that no caller passes).
func (m *Map[A]) UpdateSessionID(addr A, sessionID uint32) error {
	e, err := m.GetAddressMapping(addr)
	if err != nil {
		return err
	}

	if sessionID != e.FromSessionID {
		e.FromCounter = 0
		e.BroadcastCounter = 0
		e.FromSessionID = sessionID
	}

	return nil
}

// UpstreamLocalPorts returns the ports of sibling peers sharing the host IP.
func (m *Map[A]) UpstreamLocalPorts() []uint16 {
	return m.upstreamLocalPorts
}
