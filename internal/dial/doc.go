// Package dial implements the DIAL HTTP control plane.
//
// It serves the five protocol operations (start, status, stop, hide and
// dial-data update) plus the UPnP device descriptor, enforcing the
// protocol's origin, size and charset rules before any application state
// is touched. All state access goes through the application registry's
// non-blocking lock; contention is reported to the client as a server
// error rather than queued.
//
// The server follows the standard component lifecycle:
//
//	server, err := dial.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package dial
