package device

import (
	"net"

	"github.com/google/uuid"

	"github.com/dialcast/dialcast/internal/infrastructure/config"
)

// Identity is the process-wide device identity. It is built once at startup
// and shared by the HTTP device descriptor and the SSDP responder so a
// client sees one consistent device across both transports.
type Identity struct {
	UUID         string
	FriendlyName string
	ModelName    string
	Manufacturer string
}

// NewIdentity builds the device identity from configuration.
// A missing UUID is generated; it then stays stable for the process lifetime.
func NewIdentity(cfg config.DeviceConfig) Identity {
	id := cfg.UUID
	if id == "" {
		id = uuid.NewString()
	}
	return Identity{
		UUID:         id,
		FriendlyName: cfg.FriendlyName,
		ModelName:    cfg.ModelName,
		Manufacturer: cfg.Manufacturer,
	}
}

// AddressProvider returns the device's LAN address as seen by clients.
// It is injected into the DIAL server and the SSDP responder so tests can
// substitute a fixed address.
type AddressProvider func() string

// LocalIP returns the device's outbound LAN IPv4 address.
//
// It opens a UDP "connection" to a public address to let the kernel pick the
// outbound interface; no packet is sent. Falls back to scanning interface
// addresses, then to the loopback address.
func LocalIP() string {
	if conn, err := net.Dial("udp4", "8.8.8.8:80"); err == nil {
		defer conn.Close()
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
			return addr.IP.String()
		}
	}

	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ip4 := ipnet.IP.To4(); ip4 != nil {
					return ip4.String()
				}
			}
		}
	}

	return "127.0.0.1"
}
