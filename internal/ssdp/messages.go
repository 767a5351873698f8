package ssdp

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ServiceType is the DIAL search target answered by the responder.
const ServiceType = "urn:dial-multiscreen-org:service:dial:1"

// serverIdent is the SERVER header value in search responses.
const serverIdent = "Linux/2.6 UPnP/1.1 dialcast_ssdp/1.0"

// bootID identifies the current boot per the UPnP device architecture.
// The responder does not persist state across restarts, so it is constant.
const bootID = 1

// Header names and spacing below are exact. Several mobile clients parse
// these messages by literal text, not with a tolerant HTTP parser.

// searchReply builds the unicast response to a DIAL M-SEARCH: where to
// fetch the device descriptor, how long to cache it, and the device USN.
func searchReply(ip string, port, maxAge int, uuid string, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\n")
	fmt.Fprintf(&b, "LOCATION: http://%s:%d/ssdp/device-desc.xml\r\n", ip, port)
	fmt.Fprintf(&b, "CACHE-CONTROL: max-age=%d\r\n", maxAge)
	fmt.Fprintf(&b, "DATE: %s\r\n", now.UTC().Format(http.TimeFormat))
	b.WriteString("EXT: \r\n")
	fmt.Fprintf(&b, "BOOTID.UPNP.ORG: %d\r\n", bootID)
	fmt.Fprintf(&b, "SERVER: %s\r\n", serverIdent)
	fmt.Fprintf(&b, "ST: %s\r\n", ServiceType)
	fmt.Fprintf(&b, "USN: uuid:%s::%s\r\n", uuid, ServiceType)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// notifyAlive builds the multicast advertisement sent at startup so
// clients that listen for notifications discover the device without
// searching.
func notifyAlive(group string, groupPort int, ip string, port, maxAge int, uuid string) []byte {
	var b strings.Builder
	b.WriteString("NOTIFY * HTTP/1.1\r\n")
	fmt.Fprintf(&b, "HOST: %s:%d\r\n", group, groupPort)
	fmt.Fprintf(&b, "CACHE-CONTROL: max-age=%d\r\n", maxAge)
	fmt.Fprintf(&b, "NT: %s\r\n", ServiceType)
	b.WriteString("NTS: ssdp:alive\r\n")
	fmt.Fprintf(&b, "LOCATION: http://%s:%d/ssdp/device-desc.xml\r\n", ip, port)
	fmt.Fprintf(&b, "USN: uuid:%s::%s\r\n", uuid, ServiceType)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// notifyByebye builds the multicast advertisement sent at shutdown so
// clients drop cached state immediately instead of waiting out max-age.
func notifyByebye(group string, groupPort int, uuid string) []byte {
	var b strings.Builder
	b.WriteString("NOTIFY * HTTP/1.1\r\n")
	fmt.Fprintf(&b, "HOST: %s:%d\r\n", group, groupPort)
	fmt.Fprintf(&b, "NT: %s\r\n", ServiceType)
	b.WriteString("NTS: ssdp:byebye\r\n")
	fmt.Fprintf(&b, "USN: uuid:%s::%s\r\n", uuid, ServiceType)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// isDIALSearch reports whether a datagram is an M-SEARCH for the DIAL
// service type. Everything else is dropped silently.
func isDIALSearch(datagram []byte) bool {
	return len(datagram) > 0 &&
		strings.HasPrefix(string(datagram), "M-SEARCH") &&
		strings.Contains(string(datagram), ServiceType)
}
