package bigbrother

import (
	"github.com/davidthefighter/bigbrother/internal/dedupe"
	"github.com/davidthefighter/bigbrother/internal/framing"
	"github.com/davidthefighter/bigbrother/internal/networkmap"
	"github.com/davidthefighter/bigbrother/transport"
)

// RecvPacket drains every installed interface's receive queue, forwarding,
// deduping, and heartbeat-processing as it goes, and returns the first
// deliverable user packet it finds (addressed to this host, or broadcast).
// ok is false once every interface's queue is empty, meaning "nothing more
// to read right now" — not an error.
//
// Grounded on recv_packet in big_brother.rs.
func (r *Router[A, P]) RecvPacket() (packet P, from A, ok bool, err error) {
	for {
		size, sourceInterfaceIndex, remote, gotOne, recvErr := r.recvNextUDP()
		if recvErr != nil {
			return packet, from, false, recvErr
		}
		if !gotOne {
			return packet, from, false, nil
		}

		frame := r.workingBuffer[:size]

		metadata, decErr := framing.DecodeMetadata[A](frame)
		if decErr != nil {
			return packet, from, false, newError(KindSerialization, "recv packet", decErr, "")
		}

		mapping, mapErr := r.networkMap.MapNetworkAddress(metadata.FromAddr, remote.IP, remote.Port, sourceInterfaceIndex, false)
		if mapErr != nil {
			return packet, from, false, newError(KindNetworkMapFull, "recv packet", mapErr, "")
		}

		missed, dedupeOK := r.checkDedupe(metadata, mapping)

		if !metadata.ToAddr.IsBroadcast() || dedupeOK {
			if fwdErr := r.tryForwardUDP(sourceInterfaceIndex, remote, metadata.ToAddr, size); fwdErr != nil {
				return packet, from, false, fwdErr
			}

			if metadata.FromAddr != r.hostAddr {
				if _, mapErr := r.networkMap.MapNetworkAddress(metadata.FromAddr, remote.IP, remote.Port, sourceInterfaceIndex, true); mapErr != nil {
					return packet, from, false, newError(KindNetworkMapFull, "recv packet", mapErr, "")
				}
			}
		}

		if dedupeOK {
			r.missedPackets += missed
		}

		if metadata.ToAddr != r.hostAddr && !metadata.ToAddr.IsBroadcast() {
			continue
		}

		kind, hb, userPacket, decErr := framing.DecodeBody[P](frame)
		if decErr != nil {
			return packet, from, false, newError(KindSerialization, "recv packet", decErr, "")
		}

		switch kind {
		case framing.KindHeartbeat:
			if sessErr := r.networkMap.UpdateSessionID(metadata.FromAddr, hb.SessionID); sessErr != nil {
				return packet, from, false, newError(KindUnknownNetworkAddress, "process heartbeat", sessErr, "")
			}
		case framing.KindUser:
			if dedupeOK {
				return userPacket, metadata.FromAddr, true, nil
			}
		}
	}
}

func (r *Router[A, P]) checkDedupe(metadata framing.Metadata[A], mapping *networkmap.Entry[A]) (missed uint32, ok bool) {
	if !r.useDedupe {
		return 0, true
	}

	if metadata.ToAddr.IsBroadcast() {
		return dedupe.Check(metadata.Counter, &mapping.BroadcastCounter)
	}
	return dedupe.Check(metadata.Counter, &mapping.FromCounter)
}

func (r *Router[A, P]) recvNextUDP() (size int, interfaceIndex uint8, remote transport.Endpoint, ok bool, err error) {
	for i, iface := range r.interfaces {
		if iface == nil {
			continue
		}

		n, recvRemote, gotOne, recvErr := iface.RecvUDP(r.workingBuffer[:])
		if recvErr != nil {
			return 0, 0, remote, false, newError(KindTransportRecvExhausted, "recv packet", recvErr, "")
		}
		if gotOne {
			return n, uint8(i), recvRemote, true, nil
		}
	}

	return 0, 0, remote, false, nil
}
