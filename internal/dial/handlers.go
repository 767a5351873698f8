package dial

import (
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/dialcast/dialcast/internal/app"
)

// handleRunControl serves paths ending in /run. DELETE stops the
// application; other methods are not part of run-control.
func (s *Server) handleRunControl(w http.ResponseWriter, r *http.Request) {
	name := appNameFromSuffix(r.URL.Path)
	origin := r.Header.Get("Origin")

	if origin != "" && !s.allowedOrigin(origin, name) {
		writeError(w, http.StatusForbidden)
		return
	}
	if r.Method == http.MethodOptions {
		writeOptions(w, origin, "DELETE, OPTIONS")
		return
	}
	if name != "" && r.Method == http.MethodDelete {
		s.stopApp(w, name, origin)
		return
	}
	writeError(w, http.StatusNotImplemented)
}

// handleAppControl serves /apps/{name}. POST starts the application and
// GET reports its status.
func (s *Server) handleAppControl(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path[len(appsPrefix):]
	origin := r.Header.Get("Origin")

	if origin != "" && !s.allowedOrigin(origin, name) {
		writeError(w, http.StatusForbidden)
		return
	}
	switch r.Method {
	case http.MethodOptions:
		writeOptions(w, origin, "GET, POST, OPTIONS")
	case http.MethodPost:
		s.startApp(w, r, name, origin)
	case http.MethodGet:
		s.statusApp(w, r, name, origin)
	default:
		writeError(w, http.StatusNotImplemented)
	}
}

// handleHideControl serves paths ending in /hide.
func (s *Server) handleHideControl(w http.ResponseWriter, r *http.Request) {
	name := appNameFromSuffix(r.URL.Path)
	origin := r.Header.Get("Origin")

	if origin != "" && !s.allowedOrigin(origin, name) {
		writeError(w, http.StatusForbidden)
		return
	}
	if r.Method == http.MethodOptions {
		writeOptions(w, origin, "POST, OPTIONS")
		return
	}
	if name != "" && r.Method == http.MethodPost {
		s.hideApp(w, name, origin)
		return
	}
	writeError(w, http.StatusNotImplemented)
}

// handleDataControl serves paths ending in /dial_data. Only the launched
// application itself may post dial-data, so anything that is not loopback
// or the device's own address is answered as if the path did not exist.
func (s *Server) handleDataControl(w http.ResponseWriter, r *http.Request) {
	if !s.isLocalClient(r) {
		writeError(w, http.StatusNotFound)
		return
	}

	name := appNameFromSuffix(r.URL.Path)
	if name == "" {
		writeError(w, http.StatusInternalServerError)
		return
	}

	origin := r.Header.Get("Origin")
	if origin != "" && !s.allowedOrigin(origin, name) {
		writeError(w, http.StatusForbidden)
		return
	}
	if r.Method == http.MethodOptions {
		writeOptions(w, origin, "POST, OPTIONS")
		return
	}
	s.updateDialData(w, r, name, origin)
}

// allowedOrigin checks the Origin header against the named application's
// allow-list. The check needs the registry lock; if it cannot be taken
// immediately the request is denied, failing in favour of safety.
func (s *Server) allowedOrigin(origin, name string) bool {
	if !s.registry.TryLock() {
		return false
	}
	defer s.registry.Unlock()

	a := s.registry.Find(name)
	if a == nil {
		return false
	}
	return a.AllowedOrigin(origin)
}

// isLocalClient reports whether the request came from loopback or from the
// device's own LAN address.
func (s *Server) isLocalClient(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}
	return host == s.localAddr()
}

// startApp implements the start operation: validate the payload, drive
// the application's start callback, and answer 201 with the run-control
// Location on success.
//
// The body is read and validated before the registry lock is taken; a
// client trickling its payload must never stall other operations.
func (s *Server) startApp(w http.ResponseWriter, r *http.Request, name, origin string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxStartPayload+1))
	if err != nil {
		writeError(w, http.StatusInternalServerError)
		return
	}
	if len(body) > maxStartPayload {
		writeError(w, http.StatusRequestEntityTooLarge)
		return
	}
	if !isPrintableASCII(body) {
		writeError(w, http.StatusBadRequest)
		return
	}

	if !s.registry.TryLock() {
		writeError(w, http.StatusInternalServerError)
		return
	}
	defer s.registry.Unlock()

	a := s.registry.Find(name)
	if a == nil {
		writeError(w, http.StatusNotFound)
		return
	}

	var additionalDataURL string
	if a.UseAdditionalData {
		additionalDataURL = s.additionalDataURL(name)
		if len(additionalDataURL) > maxAdditionalDataURL {
			s.logger.Error("additionalDataURL exceeds maximum length", "app", name)
			writeError(w, http.StatusRequestEntityTooLarge)
			return
		}
	}

	payload := string(body)
	s.logger.Debug("starting application", "app", name, "payload_bytes", len(payload))

	state := a.Start(app.StartRequest{
		Payload:           payload,
		Query:             r.URL.Query(),
		AdditionalDataURL: additionalDataURL,
	})

	switch state {
	case app.StatusRunning:
		writeCreated(w, origin, s.runControlURL(name))
	case app.StatusErrForbidden:
		writeError(w, http.StatusForbidden)
	case app.StatusErrUnauthorized:
		writeError(w, http.StatusUnauthorized)
	case app.StatusErrNotImplemented:
		writeError(w, http.StatusNotImplemented)
	default:
		writeError(w, http.StatusServiceUnavailable)
	}
}

// statusApp implements the status operation: refresh the application's
// state and render the status XML document.
func (s *Server) statusApp(w http.ResponseWriter, r *http.Request, name, origin string) {
	clientVersion := parseClientVersion(r.URL.Query().Get("clientDialVer"))

	if !s.registry.TryLock() {
		writeError(w, http.StatusInternalServerError)
		return
	}
	defer s.registry.Unlock()

	a := s.registry.Find(name)
	if a == nil {
		writeError(w, http.StatusNotFound)
		return
	}

	dialData, err := renderDialData(a.DialData())
	if err != nil {
		s.logger.Error("failed to render dial-data", "app", name, "error", err)
		writeError(w, http.StatusInternalServerError)
		return
	}
	if len(dialData) > maxDialDataXML {
		s.logger.Error("dial-data exceeds rendering budget", "app", name, "bytes", len(dialData))
		writeError(w, http.StatusInternalServerError)
		return
	}

	state := a.RefreshStatus()
	// Clients predating protocol 2.1 do not understand the hidden state.
	display := state
	if clientVersion < hiddenStateMinVersion && state == app.StatusHidden {
		display = app.StatusStopped
	}

	writeStatus(w, origin, name, display, dialData)
}

// stopApp implements the stop operation. The state is refreshed first so
// an application that already exited on its own is answered 404.
func (s *Server) stopApp(w http.ResponseWriter, name, origin string) {
	if !s.registry.TryLock() {
		writeError(w, http.StatusInternalServerError)
		return
	}
	defer s.registry.Unlock()

	a := s.registry.Find(name)
	if a != nil {
		a.RefreshStatus()
	}
	if a == nil || a.State() == app.StatusStopped {
		writeError(w, http.StatusNotFound)
		return
	}

	a.Stop()
	writeOK(w, origin)
}

// hideApp implements the hide operation. Only a running or already hidden
// application can be hidden; an application that does not implement hide
// is answered 501.
func (s *Server) hideApp(w http.ResponseWriter, name, origin string) {
	if !s.registry.TryLock() {
		writeError(w, http.StatusInternalServerError)
		return
	}
	defer s.registry.Unlock()

	a := s.registry.Find(name)
	if a != nil {
		a.RefreshStatus()
	}
	if a == nil || (a.State() != app.StatusRunning && a.State() != app.StatusHidden) {
		writeError(w, http.StatusNotFound)
		return
	}

	if a.Hide() != app.StatusHidden {
		s.logger.Debug("hide not implemented by application", "app", name)
		writeError(w, http.StatusNotImplemented)
		return
	}
	writeOK(w, origin)
}

// updateDialData implements the data-control operation: the payload (POST
// body, or the query string on GET) is decoded as URL-encoded form data
// and replaces the application's dial-data wholesale. The payload is read
// and decoded before the registry lock is taken.
func (s *Server) updateDialData(w http.ResponseWriter, r *http.Request, name, origin string) {
	var raw string
	if r.Method == http.MethodPost {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxDialDataPayload+1))
		if err != nil {
			writeError(w, http.StatusInternalServerError)
			return
		}
		if len(body) > maxDialDataPayload {
			writeError(w, http.StatusRequestEntityTooLarge)
			return
		}
		raw = string(body)
	} else {
		raw = r.URL.RawQuery
		if len(raw) > maxDialDataPayload {
			writeError(w, http.StatusRequestEntityTooLarge)
			return
		}
	}
	if !isPrintableASCII([]byte(raw)) {
		writeError(w, http.StatusBadRequest)
		return
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest)
		return
	}
	data := make(map[string]string, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			data[key] = vals[0]
		}
	}

	if !s.registry.TryLock() {
		writeError(w, http.StatusInternalServerError)
		return
	}
	defer s.registry.Unlock()

	a := s.registry.Find(name)
	if a == nil {
		writeError(w, http.StatusNotFound)
		return
	}
	a.RefreshStatus()

	s.registry.SaveDialData(a, data)
	s.logger.Debug("dial-data updated", "app", name, "keys", len(data))
	writeOK(w, origin)
}
