package dial

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/dialcast/dialcast/internal/app"
)

// statusResponse is the DIAL status document. Line terminators are CRLF
// throughout; several client implementations parse the document by literal
// text rather than with an XML parser.
const statusResponse = "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\r\n" +
	"<service xmlns=\"urn:dial-multiscreen-org:schemas:dial\" dialVer=\"" + dialVersion + "\">\r\n" +
	"  <name>%s</name>\r\n" +
	"  <options allowStop=\"true\"/>\r\n" +
	"  <state>%s</state>%s\r\n" +
	"  <additionalData>%s</additionalData>\r\n" +
	"</service>\r\n"

// runLink is inserted into the status document whenever the application is
// not stopped.
const runLink = "\r\n  <link rel=\"run\" href=\"run\"/>"

// dialVersion is the protocol version reported in status responses.
const dialVersion = "2.2"

// deviceDescriptor is the UPnP device descriptor served at
// /ssdp/device-desc.xml.
const deviceDescriptor = "<?xml version=\"1.0\"?>\r\n" +
	"<root xmlns=\"urn:schemas-upnp-org:device-1-0\" xmlns:r=\"urn:restful-tv-org:schemas:upnp-dd\">\r\n" +
	"  <specVersion>\r\n" +
	"  <major>1</major>\r\n" +
	"  <minor>0</minor>\r\n" +
	"  </specVersion>\r\n" +
	"  <device>\r\n" +
	"    <deviceType>urn:schemas-upnp-org:device:tvdevice:1</deviceType>\r\n" +
	"    <friendlyName>%s</friendlyName>\r\n" +
	"    <manufacturer>%s</manufacturer>\r\n" +
	"    <modelName>%s</modelName>\r\n" +
	"    <UDN>uuid:%s</UDN>\r\n" +
	"  </device>\r\n" +
	"</root>\r\n"

// xmlEscaper escapes the XML metacharacters, matching the minimal escaping
// the protocol requires for dial-data keys and values.
var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// handleDeviceDescriptor serves the UPnP device descriptor. The
// Application-URL header tells clients where the DIAL application REST
// surface lives; it is the whole point of fetching the descriptor.
func (s *Server) handleDeviceDescriptor(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/xml")
	w.Header().Set("Application-URL", fmt.Sprintf("http://%s:%d/apps/", s.localAddr(), s.cfg.Port))
	fmt.Fprintf(w, deviceDescriptor,
		xmlEscaper.Replace(s.identity.FriendlyName),
		xmlEscaper.Replace(s.identity.Manufacturer),
		xmlEscaper.Replace(s.identity.ModelName),
		s.identity.UUID,
	)
}

// runControlURL builds the Location header value returned on a successful
// start: the run-control endpoint as reachable from the LAN.
func (s *Server) runControlURL(name string) string {
	return fmt.Sprintf("http://%s:%d/apps/%s/run", s.localAddr(), s.cfg.Port, name)
}

// additionalDataURL builds the loopback endpoint handed to an application
// that accepts dial-data.
func (s *Server) additionalDataURL(name string) string {
	return fmt.Sprintf("http://127.0.0.1:%d/apps/%s/dial_data", s.cfg.Port, name)
}

// renderDialData renders stored dial-data as additionalData child
// elements. Keys and values are URL-unescaped and then XML-escaped; keys
// are emitted in sorted order so the document is deterministic.
func renderDialData(data map[string]string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		name, err := urlDecodeXMLEncode(key)
		if err != nil {
			return "", err
		}
		value, err := urlDecodeXMLEncode(data[key])
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\r\n    <%s>%s</%s>", name, value, name)
	}
	return b.String(), nil
}

// urlDecodeXMLEncode URL-unescapes the string, then XML-escapes it.
func urlDecodeXMLEncode(s string) (string, error) {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return "", fmt.Errorf("malformed dial-data entry %q: %w", s, err)
	}
	return xmlEscaper.Replace(decoded), nil
}

// corsOrigin echoes the request origin back on successful responses.
func corsOrigin(w http.ResponseWriter, origin string) {
	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
}

// writeOptions answers a CORS preflight with the operation's method
// allow-list.
func writeOptions(w http.ResponseWriter, origin, methods string) {
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Max-Age", "86400")
	corsOrigin(w, origin)
	w.WriteHeader(http.StatusNoContent)
}

// writeOK answers a successful mutating operation.
func writeOK(w http.ResponseWriter, origin string) {
	w.Header().Set("Content-Type", "text/plain")
	corsOrigin(w, origin)
	w.WriteHeader(http.StatusOK)
}

// writeCreated answers a successful start with the run-control Location.
func writeCreated(w http.ResponseWriter, origin, location string) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Location", location)
	corsOrigin(w, origin)
	w.WriteHeader(http.StatusCreated)
}

// writeStatus answers a status request with the DIAL status document.
func writeStatus(w http.ResponseWriter, origin, name string, state app.Status, dialData string) {
	link := ""
	if state != app.StatusStopped {
		link = runLink
	}
	w.Header().Set("Content-Type", "text/xml")
	corsOrigin(w, origin)
	fmt.Fprintf(w, statusResponse, xmlEscaper.Replace(name), state.String(), link, dialData+"\r\n  ")
}

// writeError answers a protocol failure with a bare status code.
func writeError(w http.ResponseWriter, code int) {
	http.Error(w, http.StatusText(code), code)
}
