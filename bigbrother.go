// Package bigbrother implements a small UDP messaging substrate for a
// cluster of cooperating nodes: a fixed-size peer table, wrap-safe
// per-peer dedupe, a compact framed wire format, and broadcast/unicast
// forwarding across a handful of network interfaces.
//
// Grounded on _examples/original_source/big-brother/src/big_brother.rs (the
// BigBrother struct) and structured in the style of the teacher repo's
// responder.Responder — a small stateful core built from functional options,
// driven by an explicit poll loop rather than its own goroutine.
package bigbrother

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/davidthefighter/bigbrother/internal/framing"
	"github.com/davidthefighter/bigbrother/internal/netaddr"
	"github.com/davidthefighter/bigbrother/internal/networkmap"
	"github.com/davidthefighter/bigbrother/transport"
)

const (
	// Port is the UDP port every node listens and broadcasts heartbeats on.
	Port = 25560

	// MaxInterfaces bounds how many transport.Interfaces one Router polls,
	// mirroring MAX_INTERFACE_COUNT in big_brother.rs.
	MaxInterfaces = 2

	// WorkingBufferSize is the scratch buffer a Router reuses for exactly one
	// send or one receive at a time.
	WorkingBufferSize = 256

	// heartbeatIntervalMs is how often Poll1ms re-broadcasts a heartbeat,
	// carried over from the `> 100` check in poll_1ms.
	heartbeatIntervalMs = 100
)

// Router is the core of this package: a fixed-capacity peer table plus the
// send/recv/poll/forward algorithms layered on top of it. A, the logical
// network address type, and P, the user payload type, are fixed by the
// caller's instantiation.
type Router[A netaddr.Address, P any] struct {
	networkMap *networkmap.Map[A]
	hostAddr   A

	interfaces [MaxInterfaces]transport.Interface

	broadcastAddr    A
	broadcastCounter uint32
	sessionID        uint32
	useDedupe        bool
	missedPackets    uint32
	lastHeartbeatMs  uint32

	workingBuffer [WorkingBufferSize]byte

	log zerolog.Logger
}

// Option configures a Router at construction, following the functional
// options pattern in responder/options.go.
type Option[A netaddr.Address, P any] func(*Router[A, P])

// WithLogger attaches structured logging. The zero value (no WithLogger
// call) leaves logging a silent no-op via zerolog.Nop().
func WithLogger[A netaddr.Address, P any](log zerolog.Logger) Option[A, P] {
	return func(r *Router[A, P]) { r.log = log }
}

// WithoutDedupe disables duplicate/reorder filtering, delivering every
// packet that passes the broadcast-forwarding predicate. Mirrors the
// use_dedupe escape hatch in big_brother.rs.
func WithoutDedupe[A netaddr.Address, P any]() Option[A, P] {
	return func(r *Router[A, P]) { r.useDedupe = false }
}

// New constructs a Router for hostAddr, tracking up to networkMapCapacity
// peers, using broadcastAddr as the wire value meaning "everyone", and
// sending over interfaces (nil slots are left unused, matching the
// [Option<&mut dyn Interface>; N] array in the original).
//
// A heartbeat is broadcast immediately, best-effort: if that first send
// fails (an installed interface's SendUDP returns an error; with no
// interfaces installed nothing is sent and there is no error), the error is
// swallowed, not returned — the same behavior as the original constructor,
// which discards send_bb_packet's Result entirely.
func New[A netaddr.Address, P any](hostAddr A, sessionID uint32, broadcastAddr A, networkMapCapacity int, interfaces [MaxInterfaces]transport.Interface, opts ...Option[A, P]) *Router[A, P] {
	r := &Router[A, P]{
		networkMap:    networkmap.New[A](hostAddr, networkMapCapacity),
		hostAddr:      hostAddr,
		interfaces:    interfaces,
		broadcastAddr: broadcastAddr,
		sessionID:     sessionID,
		useDedupe:     true,
		log:           zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if err := r.sendHeartbeat(); err != nil {
		r.log.Debug().Err(err).Msg("initial heartbeat send failed, continuing")
	}

	return r
}

// MissedPackets is the running count of gaps detected by dedupe across every
// peer and the broadcast channel.
func (r *Router[A, P]) MissedPackets() uint32 {
	return r.missedPackets
}

// NetworkMapping returns the last known IP for addr, if any.
func (r *Router[A, P]) NetworkMapping(addr A) ([4]byte, bool) {
	entry, err := r.networkMap.GetAddressMapping(addr)
	if err != nil {
		return [4]byte{}, false
	}
	return entry.IP, true
}

// Poll1ms drives periodic work: re-broadcasting a heartbeat once per
// heartbeatIntervalMs and letting every installed interface service its own
// housekeeping. timestampMs is a caller-supplied monotonic millisecond
// clock — the same wrapping-subtraction cadence check as poll_1ms relies on
// Go's native unsigned wraparound, needing no explicit wrapping call.
func (r *Router[A, P]) Poll1ms(timestampMs uint32) {
	if timestampMs-r.lastHeartbeatMs > heartbeatIntervalMs {
		r.lastHeartbeatMs = timestampMs

		if err := r.sendHeartbeat(); err != nil {
			r.log.Debug().Err(err).Msg("heartbeat send failed")
		}
	}

	for _, iface := range r.interfaces {
		if iface != nil {
			iface.Poll(timestampMs)
		}
	}
}

func (r *Router[A, P]) sendHeartbeat() error {
	return r.sendMeta(framing.Heartbeat{SessionID: r.sessionID}, r.broadcastAddr)
}

func (r *Router[A, P]) sendMeta(hb framing.Heartbeat, destination A) error {
	if destination.IsBroadcast() {
		n, err := framing.EncodeHeartbeat(r.workingBuffer[:], destination, r.hostAddr, r.broadcastCounter, hb)
		if err != nil {
			return newError(KindSerialization, "send heartbeat", err, "")
		}
		r.broadcastCounter++

		return r.broadcastFrame(n, nil)
	}

	entry, err := r.networkMap.GetAddressMapping(destination)
	if err != nil {
		return newError(KindUnknownNetworkAddress, "send heartbeat", err, fmt.Sprintf("%v", destination))
	}

	n, err := framing.EncodeHeartbeat(r.workingBuffer[:], destination, r.hostAddr, entry.ToCounter, hb)
	if err != nil {
		return newError(KindSerialization, "send heartbeat", err, "")
	}
	entry.ToCounter++

	return r.sendToEntry(entry, n)
}

func (r *Router[A, P]) broadcastFrame(n int, skipInterface *int) error {
	var firstErr error

	for i, iface := range r.interfaces {
		if iface == nil {
			continue
		}
		if skipInterface != nil && i == *skipInterface {
			continue
		}

		dest := transport.Endpoint{IP: iface.BroadcastIP(), Port: Port}
		if err := iface.SendUDP(dest, r.workingBuffer[:n]); err != nil && firstErr == nil {
			firstErr = newError(KindSendFailure, "broadcast", err, "")
		}
	}

	return firstErr
}

func (r *Router[A, P]) sendToEntry(entry *networkmap.Entry[A], n int) error {
	iface := r.interfaces[entry.InterfaceIndex]
	if iface == nil {
		return newError(KindSendUnaddressable, "send", errors.New("no interface at recorded index"), "")
	}

	dest := transport.Endpoint{IP: entry.IP, Port: entry.Port}
	if err := iface.SendUDP(dest, r.workingBuffer[:n]); err != nil {
		return newError(KindSendFailure, "send", err, "")
	}

	return nil
}
