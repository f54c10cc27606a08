package bigbrother

import "github.com/davidthefighter/bigbrother/transport"

var loopbackIP = [4]byte{127, 0, 0, 1}

// tryForwardUDP relays the frame currently sitting in workingBuffer[:size]
// onward, based on destination:
//
//   - the host's own address: nothing to do.
//   - the broadcast address: rebroadcast on every interface except the one it
//     arrived on, then rebroadcast over loopback to every sibling process
//     this node has discovered on its own host IP (except the one it came
//     from).
//   - any other, mapped address: forward to that peer's recorded interface.
//
// Grounded on try_forward_udp in forwarding.rs; an unmapped unicast
// destination is silently dropped, matching the `else if let Ok(...)` in the
// original (no else branch, no error).
func (r *Router[A, P]) tryForwardUDP(sourceInterfaceIndex uint8, remote transport.Endpoint, destination A, size int) error {
	if destination == r.hostAddr {
		return nil
	}

	if destination.IsBroadcast() {
		skip := int(sourceInterfaceIndex)
		if err := r.broadcastFrame(size, &skip); err != nil {
			return err
		}

		for _, port := range r.networkMap.UpstreamLocalPorts() {
			if port == remote.Port {
				continue
			}

			dest := transport.Endpoint{IP: loopbackIP, Port: port}
			for _, iface := range r.interfaces {
				if iface == nil {
					continue
				}
				if err := iface.SendUDP(dest, r.workingBuffer[:size]); err != nil {
					return newError(KindSendFailure, "forward broadcast to upstream local port", err, "")
				}
			}
		}

		return nil
	}

	entry, err := r.networkMap.GetAddressMapping(destination)
	if err != nil {
		// Unmapped unicast forwarding target: nothing we can do, drop silently.
		return nil
	}

	return r.sendToEntry(entry, size)
}
