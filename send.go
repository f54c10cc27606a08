package bigbrother

import "github.com/davidthefighter/bigbrother/internal/framing"

// SendPacket frames packet as a user packet and sends it to destination,
// broadcasting over every installed interface if destination.IsBroadcast(),
// otherwise unicasting to destination's last known endpoint.
//
// Grounded on send_packet/send_bb_packet in big_brother.rs.
func (r *Router[A, P]) SendPacket(packet *P, destination A) error {
	if destination.IsBroadcast() {
		n, err := framing.EncodeUser(r.workingBuffer[:], destination, r.hostAddr, r.broadcastCounter, *packet)
		if err != nil {
			return newError(KindSerialization, "send packet", err, "")
		}
		r.broadcastCounter++

		return r.broadcastFrame(n, nil)
	}

	entry, err := r.networkMap.GetAddressMapping(destination)
	if err != nil {
		return newError(KindUnknownNetworkAddress, "send packet", err, "")
	}

	n, err := framing.EncodeUser(r.workingBuffer[:], destination, r.hostAddr, entry.ToCounter, *packet)
	if err != nil {
		return newError(KindSerialization, "send packet", err, "")
	}
	entry.ToCounter++

	return r.sendToEntry(entry, n)
}
