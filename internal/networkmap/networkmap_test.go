package networkmap

import "testing"

// testAddr is a minimal netaddr.Address stand-in, grounded on the
// TestNetworkAddress enum in
// _examples/original_source/big-brother/src/network_map.rs.
type testAddr int

const (
	addrFlightController testAddr = iota
	addrEngine0
	addrEngine42
	addrEngine201
	addrCamera1
	addrCamera70
	addrCamera255
	addrBroadcast
)

func (a testAddr) IsBroadcast() bool { return a == addrBroadcast }

const udpPort = 9000

func TestMappingIter(t *testing.T) {
	m := New[testAddr](addrFlightController, 32)

	addrs := []testAddr{
		addrFlightController, addrEngine0, addrEngine42, addrEngine201,
		addrCamera1, addrCamera70, addrCamera255, addrBroadcast,
	}

	for i, addr := range addrs {
		ip := [4]byte{byte(123 + i), byte(i), byte(200 + i), byte(42 + i)}
		if _, err := m.MapNetworkAddress(addr, ip, udpPort, uint8(i%2), true); err != nil {
			t.Fatalf("MapNetworkAddress(%v): %v", addr, err)
		}
	}

	for i, addr := range addrs {
		e, err := m.GetAddressMapping(addr)
		if err != nil {
			t.Fatalf("GetAddressMapping(%v): %v", addr, err)
		}

		wantIP := [4]byte{byte(123 + i), byte(i), byte(200 + i), byte(42 + i)}
		if e.NetworkAddress != addr {
			t.Errorf("entry %d: NetworkAddress = %v, want %v", i, e.NetworkAddress, addr)
		}
		if e.IP != wantIP {
			t.Errorf("entry %d: IP = %v, want %v", i, e.IP, wantIP)
		}
		if e.InterfaceIndex != uint8(i%2) {
			t.Errorf("entry %d: InterfaceIndex = %d, want %d", i, e.InterfaceIndex, i%2)
		}
	}
}

func TestMapNetworkAddressFullReturnsErrFull(t *testing.T) {
	m := New[testAddr](addrFlightController, 2)

	if _, err := m.MapNetworkAddress(addrEngine0, [4]byte{1, 2, 3, 4}, udpPort, 0, true); err != nil {
		t.Fatalf("unexpected error filling slot 1: %v", err)
	}
	if _, err := m.MapNetworkAddress(addrEngine42, [4]byte{1, 2, 3, 5}, udpPort, 0, true); err != nil {
		t.Fatalf("unexpected error filling slot 2: %v", err)
	}

	_, err := m.MapNetworkAddress(addrEngine201, [4]byte{1, 2, 3, 6}, udpPort, 0, true)
	if _, ok := err.(ErrFull); !ok {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestMapNetworkAddressHitPreservesCounters(t *testing.T) {
	m := New[testAddr](addrFlightController, 4)

	e, err := m.MapNetworkAddress(addrEngine0, [4]byte{10, 0, 0, 1}, udpPort, 0, true)
	if err != nil {
		t.Fatalf("initial map: %v", err)
	}
	e.FromCounter = 7
	e.ToCounter = 3
	e.BroadcastCounter = 2
	e.FromSessionID = 99

	e2, err := m.MapNetworkAddress(addrEngine0, [4]byte{10, 0, 0, 2}, udpPort, 1, true)
	if err != nil {
		t.Fatalf("re-map: %v", err)
	}

	if e2.IP != [4]byte{10, 0, 0, 2} || e2.InterfaceIndex != 1 {
		t.Fatalf("re-map did not update address fields: %+v", e2)
	}
	if e2.FromCounter != 7 || e2.ToCounter != 3 || e2.BroadcastCounter != 2 || e2.FromSessionID != 99 {
		t.Fatalf("re-map clobbered counters/session: %+v", e2)
	}
}

func TestMapNetworkAddressNoUpdateSkipsRewrite(t *testing.T) {
	m := New[testAddr](addrFlightController, 4)

	if _, err := m.MapNetworkAddress(addrEngine0, [4]byte{10, 0, 0, 1}, udpPort, 0, true); err != nil {
		t.Fatalf("initial map: %v", err)
	}

	e, err := m.MapNetworkAddress(addrEngine0, [4]byte{10, 0, 0, 99}, 1234, 9, false)
	if err != nil {
		t.Fatalf("no-update map: %v", err)
	}

	if e.IP != [4]byte{10, 0, 0, 1} || e.Port != udpPort || e.InterfaceIndex != 0 {
		t.Fatalf("update=false path rewrote fields: %+v", e)
	}
}

func TestGetAddressMappingUnknown(t *testing.T) {
	m := New[testAddr](addrFlightController, 4)

	_, err := m.GetAddressMapping(addrCamera1)
	if _, ok := err.(ErrUnknownAddress); !ok {
		t.Fatalf("expected ErrUnknownAddress, got %v", err)
	}
}

func TestUpdateSessionIDResetsCountersOnChange(t *testing.T) {
	m := New[testAddr](addrFlightController, 4)

	e, err := m.MapNetworkAddress(addrEngine0, [4]byte{10, 0, 0, 1}, udpPort, 0, true)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	e.FromCounter = 55
	e.BroadcastCounter = 12
	e.FromSessionID = 1

	if err := m.UpdateSessionID(addrEngine0, 1); err != nil {
		t.Fatalf("no-op session update: %v", err)
	}
	if e.FromCounter != 55 || e.BroadcastCounter != 12 {
		t.Fatalf("same session id mutated counters: %+v", e)
	}

	if err := m.UpdateSessionID(addrEngine0, 2); err != nil {
		t.Fatalf("session change update: %v", err)
	}
	if e.FromCounter != 0 || e.BroadcastCounter != 0 || e.FromSessionID != 2 {
		t.Fatalf("session change did not reset counters: %+v", e)
	}
}

func TestUpstreamLocalPortsDetectsSiblings(t *testing.T) {
	m := New[testAddr](addrFlightController, 8)

	hostIP := [4]byte{192, 168, 1, 1}
	if _, err := m.MapNetworkAddress(addrFlightController, hostIP, udpPort, 0, true); err != nil {
		t.Fatalf("map host: %v", err)
	}

	if _, err := m.MapNetworkAddress(addrEngine0, hostIP, udpPort+1, 0, true); err != nil {
		t.Fatalf("map sibling: %v", err)
	}
	if _, err := m.MapNetworkAddress(addrCamera1, [4]byte{10, 0, 0, 5}, udpPort, 0, true); err != nil {
		t.Fatalf("map remote peer: %v", err)
	}

	ports := m.UpstreamLocalPorts()
	if len(ports) != 1 || ports[0] != udpPort+1 {
		t.Fatalf("UpstreamLocalPorts = %v, want [%d]", ports, udpPort+1)
	}
}
