package ssdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/dialcast/dialcast/internal/device"
	"github.com/dialcast/dialcast/internal/infrastructure/config"
	"github.com/dialcast/dialcast/internal/infrastructure/logging"
)

// advertisementTTL is the multicast TTL for NOTIFY advertisements; DIAL
// discovery stays on the local network.
const advertisementTTL = 2

// readBufferSize covers any reasonable M-SEARCH datagram.
const readBufferSize = 2048

// Deps holds the dependencies required by the responder.
type Deps struct {
	Config    config.SSDPConfig
	Logger    *logging.Logger
	Identity  device.Identity
	LocalAddr device.AddressProvider

	// DIALPort is the TCP port of the DIAL HTTP server, advertised in
	// search responses and alive notifications.
	DIALPort int
}

// Responder answers SSDP searches for the DIAL service type and sends
// alive/byebye advertisements. Create with New(), run with Start(), stop
// with Close().
type Responder struct {
	cfg       config.SSDPConfig
	logger    *logging.Logger
	identity  device.Identity
	localAddr device.AddressProvider
	dialPort  int

	conn  *ipv4.PacketConn
	group *net.UDPAddr
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates an SSDP responder. No socket is opened until Start().
func New(deps Deps) (*Responder, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.LocalAddr == nil {
		deps.LocalAddr = device.LocalIP
	}

	group := net.ParseIP(deps.Config.MulticastAddress)
	if group == nil || group.To4() == nil {
		return nil, fmt.Errorf("invalid SSDP multicast address %q", deps.Config.MulticastAddress)
	}

	return &Responder{
		cfg:       deps.Config,
		logger:    deps.Logger,
		identity:  deps.Identity,
		localAddr: deps.LocalAddr,
		dialPort:  deps.DIALPort,
		group:     &net.UDPAddr{IP: group, Port: deps.Config.Port},
	}, nil
}

// Start binds the SSDP port, joins the multicast group on every
// multicast-capable interface, sends the alive advertisement and launches
// the read loop in a background goroutine.
func (r *Responder) Start(_ context.Context) error {
	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", r.cfg.Port))
	if err != nil {
		return fmt.Errorf("binding SSDP port: %w", err)
	}

	pconn := ipv4.NewPacketConn(conn)

	intfs, err := net.Interfaces()
	if err != nil {
		conn.Close()
		return fmt.Errorf("listing interfaces: %w", err)
	}

	joined := 0
	for _, intf := range intfs {
		if intf.Flags&net.FlagMulticast == 0 || intf.Flags&net.FlagUp == 0 {
			continue
		}
		if err := pconn.JoinGroup(&intf, &net.UDPAddr{IP: r.group.IP}); err != nil {
			r.logger.Debug("multicast join failed", "interface", intf.Name, "error", err)
			continue
		}
		r.logger.Debug("joined multicast group", "interface", intf.Name, "group", r.group.IP)
		joined++
	}
	if joined == 0 {
		conn.Close()
		return fmt.Errorf("no multicast-capable interfaces available")
	}

	// HealthCheck and Close read conn under the mutex; publish it the
	// same way in case a caller probes health while startup is in flight.
	r.mu.Lock()
	r.conn = pconn
	r.mu.Unlock()

	r.logger.Info("SSDP responder started",
		"port", r.cfg.Port,
		"group", r.group.IP.String(),
		"interfaces", joined,
	)

	if err := r.sendAdvertisement(r.aliveMessage()); err != nil {
		r.logger.Warn("failed to send alive advertisement", "error", err)
	}

	r.wg.Add(1)
	go r.readLoop()

	return nil
}

// readLoop reads datagrams until the socket is closed. A failure on a
// single datagram is logged and the loop continues.
func (r *Responder) readLoop() {
	defer r.wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, _, src, err := r.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Warn("SSDP read error", "error", err)
			continue
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		r.handleDatagram(datagram, src)
	}
}

// handleDatagram answers a DIAL M-SEARCH with a unicast search reply and
// ignores everything else.
func (r *Responder) handleDatagram(datagram []byte, src net.Addr) {
	if !isDIALSearch(datagram) {
		return
	}

	r.logger.Debug("received DIAL search", "from", src.String())

	reply := searchReply(r.localAddr(), r.dialPort, r.cfg.MaxAge, r.identity.UUID, time.Now())
	if _, err := r.conn.WriteTo(reply, nil, src); err != nil {
		r.logger.Warn("failed to send search reply", "to", src.String(), "error", err)
	}
}

// sendAdvertisement multicasts a NOTIFY message on a short-lived socket.
func (r *Responder) sendAdvertisement(message []byte) error {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return fmt.Errorf("opening advertisement socket: %w", err)
	}
	defer conn.Close()

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.SetMulticastTTL(advertisementTTL); err != nil {
		r.logger.Debug("failed to set multicast TTL", "error", err)
	}
	if err := pconn.SetMulticastLoopback(true); err != nil {
		r.logger.Debug("failed to set multicast loopback", "error", err)
	}

	if _, err := pconn.WriteTo(message, nil, r.group); err != nil {
		return fmt.Errorf("sending advertisement: %w", err)
	}
	return nil
}

func (r *Responder) aliveMessage() []byte {
	return notifyAlive(r.group.IP.String(), r.group.Port,
		r.localAddr(), r.dialPort, r.cfg.MaxAge, r.identity.UUID)
}

// Close sends the byebye advertisement, closes the socket and waits for
// the read loop to exit. Safe to call more than once.
func (r *Responder) Close() error {
	r.mu.Lock()
	if r.closed || r.conn == nil {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.sendAdvertisement(notifyByebye(r.group.IP.String(), r.group.Port, r.identity.UUID)); err != nil {
		r.logger.Warn("failed to send byebye advertisement", "error", err)
	}

	r.logger.Info("SSDP responder shutting down")
	err := r.conn.Close()
	r.wg.Wait()
	return err
}

// HealthCheck verifies the responder is running.
func (r *Responder) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("ssdp health check: %w", ctx.Err())
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return fmt.Errorf("ssdp responder not started")
	}
	if r.closed {
		return fmt.Errorf("ssdp responder closed")
	}
	return nil
}
