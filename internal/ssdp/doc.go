// Package ssdp implements the UPnP discovery side of the DIAL protocol.
//
// A responder joins the SSDP multicast group, answers M-SEARCH queries for
// the DIAL service type with the location of the device descriptor, sends
// one alive advertisement at startup and one byebye advertisement at
// shutdown. Datagram handling is best-effort: malformed or irrelevant
// packets are dropped and a failure on one datagram never stops the
// responder.
package ssdp
