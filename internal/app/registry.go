package app

import (
	"sync"
)

// Logger is the minimal logging surface the package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Registry holds every registered DIAL application and the single mutex
// that serialises all application state access across the HTTP, SSDP and
// control surfaces.
//
// The lock is acquired with TryLock: a caller that cannot take it
// immediately reports busy instead of queueing, so a stuck application
// callback never piles up request goroutines behind it.
type Registry struct {
	mu   sync.Mutex
	apps []*Application

	data   DataStore
	stores StoreOpener
	logger Logger
}

// NewRegistry builds an empty registry. data persists dial-data across
// restarts; stores allocates per-application key/value handles and may be
// nil when no application requests persistence.
func NewRegistry(data DataStore, stores StoreOpener, logger Logger) *Registry {
	return &Registry{
		data:   data,
		stores: stores,
		logger: logger,
	}
}

// Register adds an application under its descriptor. The first registration
// of a name wins; a duplicate is rejected with ErrDuplicateName and the
// existing entry is left untouched. Previously persisted dial-data is
// loaded eagerly so status responses are complete from the first request.
func (r *Registry) Register(desc Descriptor, handler Handler) error {
	if desc.Name == "" {
		return ErrMissingName
	}
	if desc.AddonID == "" {
		return ErrMissingAddonID
	}
	if handler == nil {
		return ErrMissingHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.apps {
		if a.Name == desc.Name {
			r.logger.Warn("duplicate application registration ignored",
				"app", desc.Name, "addon_id", desc.AddonID)
			return ErrDuplicateName
		}
	}

	a := &Application{
		Descriptor: desc,
		handler:    handler,
		logger:     r.logger,
		state:      StatusStopped,
		dialData:   map[string]string{},
	}

	if r.data != nil {
		data, err := r.data.Load(desc.Name)
		if err != nil {
			r.logger.Warn("failed to load persisted dial-data",
				"app", desc.Name, "error", err)
		} else if len(data) > 0 {
			a.dialData = data
		}
	}

	if desc.EnablePersistence && r.stores != nil {
		store, err := r.stores(desc.Name)
		if err != nil {
			r.logger.Error("failed to open application store",
				"app", desc.Name, "error", err)
		} else {
			a.store = store
		}
	}

	r.apps = append(r.apps, a)
	r.logger.Info("application registered",
		"app", desc.Name, "addon_id", desc.AddonID)
	return nil
}

// TryLock attempts to take the registry lock without blocking. It returns
// false when another operation holds it; the caller reports busy.
func (r *Registry) TryLock() bool {
	return r.mu.TryLock()
}

// Unlock releases the registry lock.
func (r *Registry) Unlock() {
	r.mu.Unlock()
}

// Find returns the application registered under name, or nil. The registry
// lock must be held for the duration of any use of the result.
func (r *Registry) Find(name string) *Application {
	for _, a := range r.apps {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Names returns the registered application names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.apps))
	for i, a := range r.apps {
		names[i] = a.Name
	}
	return names
}

// SaveDialData replaces an application's dial-data and persists it. The
// registry lock must be held. Persistence failures are logged, not
// returned; the in-memory state is authoritative for the session.
func (r *Registry) SaveDialData(a *Application, data map[string]string) {
	a.setDialData(data)
	if r.data == nil {
		return
	}
	if err := r.data.Save(a.Name, data); err != nil {
		r.logger.Warn("failed to persist dial-data", "app", a.Name, "error", err)
	}
}
