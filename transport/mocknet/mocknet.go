// Package mocknet is the in-memory network used by this module's own test
// suite: a PhysicalNet models a broadcast subnet, PhysicalInterface models
// one host's NIC on it, and Interface is the transport.Interface a Router
// actually talks to — either standalone (packets injected directly) or
// wired to a PhysicalInterface so multiple Routers can exchange real
// traffic across simulated subnets and bridges.
//
// Grounded on _examples/original_source/big-brother/src/interface/mock_topology.rs
// and mock_interface.rs. The Rust source backs PhysicalNet/PhysicalInterface
// with Arc<Mutex<>> plus mpsc::channel; this port uses sync.Mutex plus
// buffered Go channels, which is the native equivalent idiom.
package mocknet

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/davidthefighter/bigbrother/transport"
)

// Payload is one datagram in flight: host is the destination endpoint,
// remote is the sender's endpoint, matching BigBrotherEndpoint's use in
// MockPayload.
type Payload struct {
	Host   transport.Endpoint
	Remote transport.Endpoint
	Data   []byte
}

const physicalInterfaceBuffer = 64

// PhysicalNet is one simulated broadcast subnet.
type PhysicalNet struct {
	mu           sync.Mutex
	subnetIP     [4]byte
	subnetMask   [4]bool
	broadcastIP  [4]byte
	interfaceMap map[[4]byte]chan Payload
	rng          *rand.Rand
}

// NewPhysicalNet creates a subnet. subnetMask marks which octets of subnetIP
// are fixed; the others are randomized per registered interface.
func NewPhysicalNet(subnetIP [4]byte, subnetMask [4]bool, broadcastIP [4]byte, seed int64) *PhysicalNet {
	return &PhysicalNet{
		subnetIP:     subnetIP,
		subnetMask:   subnetMask,
		broadcastIP:  broadcastIP,
		interfaceMap: make(map[[4]byte]chan Payload),
		rng:          rand.New(rand.NewSource(seed)),
	}
}

// SendUDP delivers payload to its destination: every registered interface if
// payload.Host.IP is the subnet broadcast address, otherwise the single
// interface at that IP.
func (n *PhysicalNet) SendUDP(payload Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if payload.Host.IP == n.broadcastIP {
		for _, ch := range n.interfaceMap {
			ch <- payload
		}
		return
	}

	ch, ok := n.interfaceMap[payload.Host.IP]
	if !ok {
		panic(fmt.Sprintf("mocknet: destination %v does not exist on this subnet", payload.Host.IP))
	}
	ch <- payload
}

// RegisterPhysicalInterface allocates a random host IP on the subnet and
// returns the channel the owning PhysicalInterface should read from.
func (n *PhysicalNet) RegisterPhysicalInterface() ([4]byte, chan Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan Payload, physicalInterfaceBuffer)

	var ip [4]byte
	for attempts := 0; ; attempts++ {
		if attempts > 65536 {
			panic("mocknet: unable to allocate an IP for a new physical interface")
		}

		ip = n.randomIP()
		if _, taken := n.interfaceMap[ip]; !taken {
			break
		}
	}

	n.interfaceMap[ip] = ch
	return ip, ch
}

func (n *PhysicalNet) randomIP() [4]byte {
	ip := n.subnetIP
	for i := 0; i < 4; i++ {
		if !n.subnetMask[i] {
			ip[i] = byte(n.rng.Intn(255))
		}
	}
	return ip
}

// BroadcastIP returns the subnet's broadcast address.
func (n *PhysicalNet) BroadcastIP() [4]byte { return n.broadcastIP }

// PhysicalInterface is one host's NIC on a PhysicalNet. Multiple virtual
// Interfaces (distinct UDP ports) can share one PhysicalInterface, modeling
// several processes on the same simulated machine.
type PhysicalInterface struct {
	mu                   sync.Mutex
	hostIP               [4]byte
	numVirtualInterfaces int
	net                  *PhysicalNet
	rx                   chan Payload
	virtualRxQueue       map[uint16][]Payload
}

// NewPhysicalInterface registers a new host on net and returns its handle.
func NewPhysicalInterface(net *PhysicalNet) *PhysicalInterface {
	hostIP, rx := net.RegisterPhysicalInterface()

	return &PhysicalInterface{
		hostIP:         hostIP,
		net:            net,
		rx:             rx,
		virtualRxQueue: make(map[uint16][]Payload),
	}
}

// HostIP is this simulated machine's IP address.
func (p *PhysicalInterface) HostIP() [4]byte { return p.hostIP }

// SendUDP hands a payload to the underlying PhysicalNet.
func (p *PhysicalInterface) SendUDP(payload Payload) {
	p.net.SendUDP(payload)
}

// RecvUDP returns the next payload addressed to port, draining the shared
// receive channel into per-port queues as needed (mirrors recv_udp in
// mock_topology.rs: packets for other virtual ports get parked, not
// dropped).
func (p *PhysicalInterface) RecvUDP(port uint16) (Payload, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if queue := p.virtualRxQueue[port]; len(queue) > 0 {
		payload := queue[0]
		p.virtualRxQueue[port] = queue[1:]
		return payload, true
	}

	for {
		select {
		case payload := <-p.rx:
			if payload.Host.Port == port {
				return payload, true
			}
			p.virtualRxQueue[payload.Host.Port] = append(p.virtualRxQueue[payload.Host.Port], payload)
		default:
			return Payload{}, false
		}
	}
}

// RegisterVirtualInterface allocates a fresh port on this host for a new
// Interface to bind.
func (p *PhysicalInterface) RegisterVirtualInterface(basePort uint16) transport.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	ep := transport.Endpoint{IP: p.hostIP, Port: basePort + uint16(p.numVirtualInterfaces)}
	p.numVirtualInterfaces++
	p.virtualRxQueue[ep.Port] = nil

	return ep
}

// BroadcastIP returns the subnet broadcast address of this host's net.
func (p *PhysicalInterface) BroadcastIP() [4]byte { return p.net.BroadcastIP() }

// Interface is a transport.Interface backed either by a PhysicalInterface
// (networked mode) or a standalone in-memory queue (unit-test mode, packets
// injected directly via InjectRecv).
type Interface struct {
	SentPackets []Payload

	hostIP   [4]byte
	hostPort uint16

	pending  []Payload
	physical *PhysicalInterface
}

// New creates a standalone Interface with no PhysicalNet behind it; packets
// are injected with InjectRecv and sends are recorded in SentPackets without
// being delivered anywhere.
func New() *Interface {
	return &Interface{
		hostIP:   [4]byte{192, 168, 0, 1},
		hostPort: udpPortDefault,
	}
}

const udpPortDefault = 25560

// NewNetworked creates an Interface wired to a PhysicalInterface, so sends
// reach any other Interface registered on the same PhysicalNet.
func NewNetworked(phy *PhysicalInterface, basePort uint16) *Interface {
	ep := phy.RegisterVirtualInterface(basePort)

	return &Interface{
		hostIP:   ep.IP,
		hostPort: ep.Port,
		physical: phy,
	}
}

// HostEndpoint is this interface's own (ip, port).
func (i *Interface) HostEndpoint() transport.Endpoint {
	return transport.Endpoint{IP: i.hostIP, Port: i.hostPort}
}

// InjectRecv queues a payload as if it arrived from the network. Only valid
// on a standalone Interface (New, not NewNetworked).
func (i *Interface) InjectRecv(from transport.Endpoint, data []byte) {
	if i.physical != nil {
		panic("mocknet: InjectRecv called on a networked Interface; send from another Interface on the same PhysicalNet instead")
	}
	i.pending = append(i.pending, Payload{
		Host:   i.HostEndpoint(),
		Remote: from,
		Data:   append([]byte(nil), data...),
	})
}

func (i *Interface) Poll(timestampMs uint32) {}

func (i *Interface) SendUDP(dest transport.Endpoint, data []byte) error {
	payload := Payload{
		Host:   dest,
		Remote: i.HostEndpoint(),
		Data:   append([]byte(nil), data...),
	}

	i.SentPackets = append(i.SentPackets, payload)

	if i.physical != nil {
		i.physical.SendUDP(payload)
	}

	return nil
}

func (i *Interface) RecvUDP(buf []byte) (n int, remote transport.Endpoint, ok bool, err error) {
	if i.physical != nil {
		payload, got := i.physical.RecvUDP(i.hostPort)
		if !got {
			return 0, remote, false, nil
		}
		n = copy(buf, payload.Data)
		return n, payload.Remote, true, nil
	}

	if len(i.pending) == 0 {
		return 0, remote, false, nil
	}

	payload := i.pending[0]
	i.pending = i.pending[1:]
	n = copy(buf, payload.Data)

	return n, payload.Remote, true, nil
}

func (i *Interface) BroadcastIP() [4]byte {
	if i.physical != nil {
		return i.physical.BroadcastIP()
	}
	return [4]byte{255, 255, 255, 255}
}
