// Command bigbrother-node runs a single fleet node on a real network
// interface: it binds a broadcast UDP socket, joins the fleet by address,
// and periodically broadcasts a chat-style packet while printing whatever
// it receives from its peers. It exists to exercise transport/udp end to
// end, the way the teacher's examples/multi-interface-demo exercises its
// own responder package.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/davidthefighter/bigbrother"
	"github.com/davidthefighter/bigbrother/transport"
	"github.com/davidthefighter/bigbrother/transport/udp"
)

// nodeAddr is the fleet address space for this demo: 255 addressable nodes
// (0-254) plus one sentinel broadcast value (255), satisfying internal/netaddr.Address.
type nodeAddr uint8

const broadcastNodeAddr nodeAddr = 255

func (a nodeAddr) IsBroadcast() bool { return a == broadcastNodeAddr }

func (a nodeAddr) String() string {
	if a == broadcastNodeAddr {
		return "broadcast"
	}
	return fmt.Sprintf("node-%d", uint8(a))
}

// chatPacket is the only payload this demo exchanges.
type chatPacket struct {
	Text string
}

func main() {
	var (
		id       = flag.Uint("id", 0, "this node's address (0-254)")
		ifname   = flag.String("iface", "", "network interface to bind (required)")
		text     = flag.String("text", "", "if set, broadcast this text on every tick")
		interval = flag.Duration("interval", time.Second, "broadcast interval")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	if *ifname == "" {
		fmt.Fprintln(os.Stderr, "error: -iface is required")
		os.Exit(2)
	}
	if *id >= uint(broadcastNodeAddr) {
		fmt.Fprintln(os.Stderr, "error: -id must be less than 255")
		os.Exit(2)
	}
	self := nodeAddr(*id)

	iface, err := net.InterfaceByName(*ifname)
	if err != nil {
		log.Fatal().Err(err).Str("iface", *ifname).Msg("resolve interface")
	}

	localIP, broadcastIP, err := udp.ResolveIPv4(iface)
	if err != nil {
		log.Fatal().Err(err).Msg("resolve interface address")
	}

	conn, err := udp.New(iface, localIP, udp.Port, broadcastIP)
	if err != nil {
		log.Fatal().Err(err).Msg("bind socket")
	}
	defer conn.Close()

	interfaces := [bigbrother.MaxInterfaces]transport.Interface{conn, nil}

	router := bigbrother.New[nodeAddr, chatPacket](
		self,
		uint32(time.Now().UnixNano()),
		broadcastNodeAddr,
		8,
		interfaces,
		bigbrother.WithLogger[nodeAddr, chatPacket](log),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Stringer("self", self).Str("iface", iface.Name).Msg("node started")

	pollTicker := time.NewTicker(time.Millisecond)
	defer pollTicker.Stop()

	var sendTicker *time.Ticker
	var sendTick <-chan time.Time
	if *text != "" {
		sendTicker = time.NewTicker(*interval)
		defer sendTicker.Stop()
		sendTick = sendTicker.C
	}

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return

		case now := <-pollTicker.C:
			router.Poll1ms(uint32(now.Sub(start).Milliseconds()))

			for {
				packet, from, ok, recvErr := router.RecvPacket()
				if recvErr != nil {
					if kind, isBBErr := bigbrother.ErrorKindOf(recvErr); isBBErr {
						log.Warn().Str("kind", kind.String()).Err(recvErr).Msg("recv")
					} else {
						log.Warn().Err(recvErr).Msg("recv")
					}
					break
				}
				if !ok {
					break
				}
				log.Info().Stringer("from", from).Str("text", packet.Text).Msg("received")
			}

		case <-sendTick:
			packet := chatPacket{Text: *text}
			if sendErr := router.SendPacket(&packet, broadcastNodeAddr); sendErr != nil {
				log.Warn().Err(sendErr).Msg("broadcast")
			}
		}
	}
}
