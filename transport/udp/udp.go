// Package udp implements transport.Interface over a real IPv4 UDP socket
// bound to one network interface, broadcast-capable.
//
// Grounded on _examples/original_source/big-brother/src/interface/std_interface.rs
// (bind, set broadcast, non-blocking send/recv) combined with the teacher's
// own internal/transport/udp.go, whose NetworkError{Operation, Err, Details}
// shape this package's use of bigbrother.Error mirrors, and
// golang.org/x/net/ipv4's PacketConn, which this package wraps the same way.
package udp

import (
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/davidthefighter/bigbrother"
	"github.com/davidthefighter/bigbrother/transport"
)

// Port is the UDP port every BigBrother router binds and broadcasts to,
// carried over from UDP_PORT in big_brother.rs.
const Port = 25560

// Transport is a transport.Interface bound to a single net.Interface.
type Transport struct {
	conn        *net.UDPConn
	pktConn     *ipv4.PacketConn
	iface       *net.Interface
	broadcastIP [4]byte
}

// ResolveIPv4 picks iface's first IPv4 address and the broadcast address of
// its containing subnet. It refuses interfaces that only carry IPv6
// addresses — BigBrother's wire format has no room for anything but a
// 4-byte address, so accidentally binding to an IPv6-only interface must
// fail loudly rather than silently produce garbage addressing.
func ResolveIPv4(iface *net.Interface) (ip, broadcastIP [4]byte, err error) {
	addrs, addrErr := iface.Addrs()
	if addrErr != nil {
		return ip, broadcastIP, &bigbrother.Error{Kind: bigbrother.KindSocketConfig, Op: "resolve interface address", Err: addrErr, Details: iface.Name}
	}

	sawIPv6 := false
	for _, addr := range addrs {
		ipNet, isIPNet := addr.(*net.IPNet)
		if !isIPNet {
			continue
		}

		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			sawIPv6 = true
			continue
		}

		copy(ip[:], ip4)
		mask := ipNet.Mask
		for i := range ip {
			broadcastIP[i] = ip4[i] | ^mask[i]
		}
		return ip, broadcastIP, nil
	}

	if sawIPv6 {
		return ip, broadcastIP, &bigbrother.Error{Kind: bigbrother.KindAccidentalIPv6, Op: "resolve interface address", Err: errors.New("interface carries only IPv6 addresses"), Details: iface.Name}
	}
	return ip, broadcastIP, &bigbrother.Error{Kind: bigbrother.KindSocketConfig, Op: "resolve interface address", Err: errors.New("no usable address"), Details: iface.Name}
}

// New binds a broadcast-enabled UDP socket on iface's first IPv4 address and
// port. broadcastIP should be iface's subnet broadcast address, as returned
// by ResolveIPv4. localIP must be an IPv4 address: New refuses anything else
// with KindAccidentalIPv6, the same guarantee ResolveIPv4 gives its callers.
func New(iface *net.Interface, localIP [4]byte, port uint16, broadcastIP [4]byte) (*Transport, error) {
	if net.IP(localIP[:]).To4() == nil {
		return nil, &bigbrother.Error{Kind: bigbrother.KindAccidentalIPv6, Op: "bind socket", Err: errors.New("local address is not IPv4"), Details: iface.Name}
	}

	udpAddr := &net.UDPAddr{IP: net.IP(localIP[:]), Port: int(port)}

	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, &bigbrother.Error{Kind: bigbrother.KindSocketBind, Op: "bind socket", Err: err, Details: udpAddr.String()}
	}

	pktConn := ipv4.NewPacketConn(conn)
	if err := pktConn.SetMulticastInterface(iface); err != nil {
		_ = conn.Close()
		return nil, &bigbrother.Error{Kind: bigbrother.KindSocketConfig, Op: "configure socket", Err: err, Details: "set interface"}
	}

	return &Transport{
		conn:        conn,
		pktConn:     pktConn,
		iface:       iface,
		broadcastIP: broadcastIP,
	}, nil
}

// Poll is a no-op: a real UDP socket has no pending-send queue to service.
func (t *Transport) Poll(timestampMs uint32) {}

// SendUDP transmits data to dest, broadcast or unicast.
func (t *Transport) SendUDP(dest transport.Endpoint, data []byte) error {
	addr := &net.UDPAddr{IP: net.IP(dest.IP[:]), Port: int(dest.Port)}

	if err := t.conn.SetWriteDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
		return &bigbrother.Error{Kind: bigbrother.KindSocketConfig, Op: "set write deadline", Err: err}
	}

	n, err := t.conn.WriteToUDP(data, addr)
	if err != nil {
		return &bigbrother.Error{Kind: bigbrother.KindSendFailure, Op: "send datagram", Err: err, Details: addr.String()}
	}
	if n != len(data) {
		return &bigbrother.Error{Kind: bigbrother.KindSendFailure, Op: "send datagram", Err: fmt.Errorf("partial write: %d/%d bytes", n, len(data))}
	}

	return nil
}

// RecvUDP copies at most one pending datagram into buf without blocking.
func (t *Transport) RecvUDP(buf []byte) (n int, remote transport.Endpoint, ok bool, err error) {
	if deadlineErr := t.conn.SetReadDeadline(time.Now()); deadlineErr != nil {
		return 0, remote, false, &bigbrother.Error{Kind: bigbrother.KindSocketConfig, Op: "set read deadline", Err: deadlineErr}
	}

	size, addr, readErr := t.conn.ReadFromUDP(buf)
	if readErr != nil {
		if netErr, isNetErr := readErr.(net.Error); isNetErr && netErr.Timeout() {
			return 0, remote, false, nil
		}
		return 0, remote, false, &bigbrother.Error{Kind: bigbrother.KindTransportRecvExhausted, Op: "receive datagram", Err: readErr}
	}

	ip4 := addr.IP.To4()
	if ip4 == nil {
		return 0, remote, false, &bigbrother.Error{Kind: bigbrother.KindAccidentalIPv6, Op: "receive datagram", Err: fmt.Errorf("non-IPv4 remote address %s", addr)}
	}

	copy(remote.IP[:], ip4)
	remote.Port = uint16(addr.Port)

	return size, remote, true, nil
}

// BroadcastIP returns the subnet broadcast address this transport was
// configured with.
func (t *Transport) BroadcastIP() [4]byte { return t.broadcastIP }

// Close releases the underlying socket.
func (t *Transport) Close() error {
	if err := t.conn.Close(); err != nil {
		return &bigbrother.Error{Kind: bigbrother.KindSocketConfig, Op: "close socket", Err: err}
	}
	return nil
}
