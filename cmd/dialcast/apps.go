package main

import (
	"context"
	"sync"

	"github.com/dialcast/dialcast/internal/app"
	"github.com/dialcast/dialcast/internal/infrastructure/config"
	"github.com/dialcast/dialcast/internal/infrastructure/logging"
)

// lastPayloadKey is where the launcher persists its most recent payload.
const lastPayloadKey = "last_payload"

// registerConfiguredApps registers every application declared in the
// configuration. Registration failures are logged and the offending entry
// skipped; one bad declaration must not prevent server start-up.
func registerConfiguredApps(cfg *config.Config, registry *app.Registry, log *logging.Logger) {
	for _, ac := range cfg.Apps {
		desc := app.Descriptor{
			Name:              ac.Name,
			AddonID:           ac.AddonID,
			Origins:           ac.Origins,
			UseAdditionalData: ac.UseAdditionalData,
			EnablePersistence: ac.EnablePersistence,
		}
		handler := newLauncher(ac.Name, log)
		if err := registry.Register(desc, handler); err != nil {
			log.Warn("skipping application registration", "app", ac.Name, "error", err)
			continue
		}
		attachLauncherStore(registry, ac.Name, handler, log)
	}
}

// attachLauncherStore hands the launcher the persistence handle the registry
// allocated for it, if any.
func attachLauncherStore(registry *app.Registry, name string, handler *launcher, log *logging.Logger) {
	if !registry.TryLock() {
		log.Warn("registry busy, store not attached", "app", name)
		return
	}
	defer registry.Unlock()

	if a := registry.Find(name); a != nil && a.Store() != nil {
		handler.attachStore(a.Store())
	}
}

// launcher is the built-in application handler. It tracks launch state
// in-process; hooking a real player or external process in happens here.
// Hide is deliberately unimplemented, matching the reference application.
type launcher struct {
	name string
	log  *logging.Logger

	mu      sync.Mutex
	running bool
	payload string
	store   app.KV
}

func newLauncher(name string, log *logging.Logger) *launcher {
	return &launcher{name: name, log: log.With("app", name)}
}

// attachStore gives the launcher its persistence handle and restores the
// payload of the last launch, so relaunch comparisons survive a restart.
func (l *launcher) attachStore(store app.KV) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.store = store
	if v, err := store.Get(context.Background(), lastPayloadKey); err == nil {
		l.payload = v
	}
}

// Start records the launch. Comparing req.Payload with the previous one
// is how a real integration decides between relaunch and resume.
func (l *launcher) Start(req app.StartRequest) app.Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	relaunch := l.running && l.payload != req.Payload
	l.running = true
	l.payload = req.Payload

	if l.store != nil {
		if err := l.store.Set(context.Background(), lastPayloadKey, req.Payload); err != nil {
			l.log.Warn("failed to persist launch payload", "error", err)
		}
	}

	l.log.Info("application launched",
		"relaunch", relaunch,
		"payload_bytes", len(req.Payload),
		"additional_data_url", req.AdditionalDataURL,
	)
	return app.StatusRunning
}

func (l *launcher) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
	l.log.Info("application stopped")
}

func (l *launcher) Status() app.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return app.StatusRunning
	}
	return app.StatusStopped
}

func (l *launcher) Hide() app.Status {
	return app.StatusErrNotImplemented
}
