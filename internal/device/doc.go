// Package device holds the receiver's network-facing identity: the stable
// process-wide UUID, the human-readable names advertised over UPnP, and the
// accessor for the device's own LAN address.
package device
