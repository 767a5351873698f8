package dial

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Protocol path markers. Suffixes are matched before the application
// prefix so run-control always wins, matching the reference router.
const (
	runSuffix      = "/run"
	appsPrefix     = "/apps/"
	hideSuffix     = "/hide"
	dialDataSuffix = "/dial_data"
	descriptorPath = "/ssdp/device-desc.xml"
)

// maxAppNameLength caps application names extracted from request paths.
const maxAppNameLength = 255

// buildRouter creates the HTTP router with all routes and middleware.
//
// The device descriptor has a fixed path; everything else goes through a
// catch-all because DIAL routes on path suffixes, which a tree router
// cannot express.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get(descriptorPath, s.handleDeviceDescriptor)
	r.HandleFunc("/*", s.routeDIAL)

	return r
}

// routeDIAL dispatches a request to one of the four DIAL operations by
// suffix/prefix precedence: run-control, app-control, hide-control,
// data-control. Anything else is not a DIAL path.
func (s *Server) routeDIAL(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, runSuffix):
		s.handleRunControl(w, r)
	case strings.HasPrefix(path, appsPrefix):
		s.handleAppControl(w, r)
	case strings.HasSuffix(path, hideSuffix):
		s.handleHideControl(w, r)
	case strings.HasSuffix(path, dialDataSuffix):
		s.handleDataControl(w, r)
	default:
		http.NotFound(w, r)
	}
}

// appNameFromSuffix extracts the application name as the path segment
// immediately preceding the matched suffix, truncated to the protocol's
// maximum name length. "/apps/YouTube/run" yields "YouTube".
func appNameFromSuffix(path string) string {
	segments := strings.Split(path, "/")
	if len(segments) < 2 {
		return ""
	}
	name := segments[len(segments)-2]
	if len(name) > maxAppNameLength {
		name = name[:maxAppNameLength]
	}
	return name
}
