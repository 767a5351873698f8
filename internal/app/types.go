package app

import (
	"context"
	"net/url"
)

// Status is the lifecycle state of a DIAL application.
type Status int

// Lifecycle states. Stopped, Hidden and Running are the regular states;
// the Err variants are terminal results reported by application callbacks.
const (
	StatusStopped Status = iota
	StatusHidden
	StatusRunning
	StatusErrNotImplemented
	StatusErrForbidden
	StatusErrUnauthorized
	StatusError
)

// String returns the protocol string for the state as used in status
// responses. Error variants render as "stopped"; they are reported to
// clients through HTTP status codes, not through the state element.
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusHidden:
		return "hidden"
	default:
		return "stopped"
	}
}

// StartRequest carries the parameters of a DIAL start operation to the
// application handler.
type StartRequest struct {
	// Payload is the raw start payload from the request body (printable
	// ASCII, at most 4096 bytes). The handler may compare it against the
	// application's previous payload to decide whether a relaunch is needed.
	Payload string

	// Query holds the query parameters of the start request.
	Query url.Values

	// AdditionalDataURL is the endpoint the application can POST dial-data
	// to. Empty unless the application declares UseAdditionalData.
	AdditionalDataURL string
}

// Handler is the callback set every DIAL application implementation must
// satisfy. The registry invokes these while holding its lock, so handlers
// must not call back into the registry and must return promptly.
//
// A panicking handler is recovered at the call boundary and reported as
// StatusError; it never crashes the server.
type Handler interface {
	// Start launches (or relaunches) the application. The returned status
	// is StatusRunning on success or one of the Err variants on failure.
	Start(req StartRequest) Status

	// Stop terminates the application. The application is considered
	// stopped regardless of what Stop does.
	Stop()

	// Status reports whether the application is currently running. It is
	// called before every mutating operation so stale state is never acted on.
	Status() Status

	// Hide hides the application's UI while it keeps running. Returns
	// StatusHidden on success; the reference behaviour is to report
	// StatusErrNotImplemented.
	Hide() Status
}

// KV is the per-application persistence handle allocated for applications
// that set EnablePersistence. Implemented by database.Store.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// DataStore persists dial-data blobs keyed by application name.
type DataStore interface {
	// Load returns the stored dial-data for the application, or an empty
	// map if nothing has been stored yet.
	Load(name string) (map[string]string, error)

	// Save replaces the stored dial-data for the application.
	Save(name string, data map[string]string) error
}

// StoreOpener allocates a persistence handle for an application.
type StoreOpener func(appName string) (KV, error)

// Descriptor holds the registration metadata of a DIAL application.
type Descriptor struct {
	// Name is the DIAL application name, unique across the registry.
	Name string

	// AddonID identifies the host component that owns the application.
	AddonID string

	// Origins is the ordered allow-list of origin patterns. Entries are
	// compared host-only for https origins and as anchored regular
	// expressions otherwise. Empty denies all cross-origin requests.
	Origins []string

	// UseAdditionalData makes the server hand the application a dial_data
	// endpoint URL on start.
	UseAdditionalData bool

	// EnablePersistence allocates a dedicated key/value store.
	EnablePersistence bool
}

// Application is a registered DIAL application: descriptor, handler,
// optional persistence handle, and the mutable lifecycle state.
//
// The mutable fields (state, lastPayload, dialData) are guarded by the
// registry's single mutex; they must only be touched while it is held.
type Application struct {
	Descriptor

	handler Handler
	store   KV
	logger  Logger

	state       Status
	lastPayload string
	dialData    map[string]string
}

// Handler returns the application's callback implementation.
func (a *Application) Handler() Handler {
	return a.handler
}

// Store returns the application's persistence handle, or nil if the
// application did not request persistence.
func (a *Application) Store() KV {
	return a.store
}

// State returns the current lifecycle state. Registry lock must be held.
func (a *Application) State() Status {
	return a.state
}

// LastPayload returns the payload of the most recent successful start.
// Registry lock must be held.
func (a *Application) LastPayload() string {
	return a.lastPayload
}

// DialData returns the application's current dial-data mapping.
// Registry lock must be held; callers must not mutate the returned map.
func (a *Application) DialData() map[string]string {
	return a.dialData
}

// setDialData replaces the dial-data mapping wholesale.
func (a *Application) setDialData(data map[string]string) {
	a.dialData = data
}

// Start drives the application's start callback and records the resulting
// state. On success the payload is snapshotted for relaunch comparisons.
// Registry lock must be held.
func (a *Application) Start(req StartRequest) Status {
	st := a.safeStart(req)
	a.state = st
	if st == StatusRunning {
		a.lastPayload = req.Payload
	}
	return st
}

// RefreshStatus asks the application for its current state and records it.
// Registry lock must be held.
func (a *Application) RefreshStatus() Status {
	st := a.safeStatus()
	a.state = st
	return st
}

// Stop drives the stop callback and forces the state to Stopped regardless
// of the callback outcome. Registry lock must be held.
func (a *Application) Stop() {
	a.safeStop()
	a.state = StatusStopped
}

// Hide drives the hide callback. The state transitions to Hidden only when
// the callback reports success; any other result is returned unchanged so
// the caller can surface it as a protocol error. Registry lock must be held.
func (a *Application) Hide() Status {
	st := a.safeHide()
	if st == StatusHidden {
		a.state = StatusHidden
	}
	return st
}

// safeStart invokes the start callback, converting a panic into StatusError.
// One misbehaving application must never take the server down.
func (a *Application) safeStart(req StartRequest) (st Status) {
	defer a.recoverCallback("start", &st)
	return a.handler.Start(req)
}

func (a *Application) safeStatus() (st Status) {
	defer a.recoverCallback("status", &st)
	return a.handler.Status()
}

func (a *Application) safeStop() {
	var st Status
	defer a.recoverCallback("stop", &st)
	a.handler.Stop()
}

func (a *Application) safeHide() (st Status) {
	defer a.recoverCallback("hide", &st)
	return a.handler.Hide()
}

// recoverCallback recovers a panicking application callback, logs it with
// full detail, and reports StatusError to the caller.
func (a *Application) recoverCallback(op string, st *Status) {
	if r := recover(); r != nil {
		if a.logger != nil {
			a.logger.Error("application callback panicked",
				"app", a.Name,
				"addon_id", a.AddonID,
				"op", op,
				"panic", r,
			)
		}
		*st = StatusError
	}
}
