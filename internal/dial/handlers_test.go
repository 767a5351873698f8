package dial

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dialcast/dialcast/internal/app"
	"github.com/dialcast/dialcast/internal/device"
	"github.com/dialcast/dialcast/internal/infrastructure/config"
	"github.com/dialcast/dialcast/internal/infrastructure/logging"
)

const (
	testAddr = "192.0.2.10"
	testPort = 56789
)

// stubHandler is a minimal application implementation whose running state
// follows the lifecycle calls.
type stubHandler struct {
	running        bool
	hideResult     app.Status
	startFail      app.Status // when non-zero, Start returns this instead
	statusOverride app.Status // when non-zero, Status returns this instead
}

func (s *stubHandler) Start(app.StartRequest) app.Status {
	if s.startFail != 0 {
		return s.startFail
	}
	s.running = true
	return app.StatusRunning
}

func (s *stubHandler) Stop() { s.running = false }

func (s *stubHandler) Status() app.Status {
	if s.statusOverride != 0 {
		return s.statusOverride
	}
	if s.running {
		return app.StatusRunning
	}
	return app.StatusStopped
}

func (s *stubHandler) Hide() app.Status {
	if s.hideResult != 0 {
		return s.hideResult
	}
	return app.StatusErrNotImplemented
}

// memDataStore keeps dial-data in memory.
type memDataStore struct {
	data map[string]map[string]string
}

func (m *memDataStore) Load(name string) (map[string]string, error) {
	if d, ok := m.data[name]; ok {
		return d, nil
	}
	return map[string]string{}, nil
}

func (m *memDataStore) Save(name string, data map[string]string) error {
	m.data[name] = data
	return nil
}

func discardLogger() *logging.Logger {
	return &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

type testEnv struct {
	handler  http.Handler
	registry *app.Registry
	stub     *stubHandler
}

func newTestEnv(t *testing.T, desc app.Descriptor) *testEnv {
	t.Helper()

	stub := &stubHandler{}
	registry := app.NewRegistry(&memDataStore{data: map[string]map[string]string{}}, nil, discardLogger())
	if err := registry.Register(desc, stub); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	srv, err := New(Deps{
		Config:    config.DIALConfig{Host: "0.0.0.0", Port: testPort},
		Logger:    discardLogger(),
		Registry:  registry,
		Identity:  device.Identity{UUID: "test-uuid", FriendlyName: "Test Device", ModelName: "Model", Manufacturer: "Maker"},
		LocalAddr: func() string { return testAddr },
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return &testEnv{handler: srv.Handler(), registry: registry, stub: stub}
}

func testApp() app.Descriptor {
	return app.Descriptor{Name: "Test", AddonID: "app.test"}
}

func (e *testEnv) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestLifecycleScenario(t *testing.T) {
	env := newTestEnv(t, testApp())

	// Start
	rec := env.do(http.MethodPost, "/apps/Test", "v=1", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /apps/Test status = %d, want 201", rec.Code)
	}
	wantLocation := "http://192.0.2.10:56789/apps/Test/run"
	if got := rec.Header().Get("Location"); got != wantLocation {
		t.Errorf("Location = %q, want %q", got, wantLocation)
	}

	// Status while running
	rec = env.do(http.MethodGet, "/apps/Test", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /apps/Test status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<state>running</state>") {
		t.Errorf("status body missing running state:\n%s", body)
	}
	if !strings.Contains(body, `<link rel="run" href="run"/>`) {
		t.Errorf("status body missing run link:\n%s", body)
	}
	if !strings.Contains(body, `dialVer="2.2"`) {
		t.Errorf("status body missing protocol version:\n%s", body)
	}
	if !strings.Contains(body, `allowStop="true"`) {
		t.Errorf("status body missing allowStop:\n%s", body)
	}

	// Stop
	rec = env.do(http.MethodDelete, "/apps/Test/run", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE /apps/Test/run status = %d, want 200", rec.Code)
	}

	// Status after stop
	rec = env.do(http.MethodGet, "/apps/Test", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /apps/Test status = %d, want 200", rec.Code)
	}
	body = rec.Body.String()
	if !strings.Contains(body, "<state>stopped</state>") {
		t.Errorf("status body missing stopped state:\n%s", body)
	}
	if strings.Contains(body, `<link rel="run"`) {
		t.Errorf("stopped status still carries run link:\n%s", body)
	}
}

func TestStartApp(t *testing.T) {
	t.Run("unknown application", func(t *testing.T) {
		env := newTestEnv(t, testApp())
		rec := env.do(http.MethodPost, "/apps/Unknown", "", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("payload at the limit is accepted", func(t *testing.T) {
		env := newTestEnv(t, testApp())
		rec := env.do(http.MethodPost, "/apps/Test", strings.Repeat("a", maxStartPayload), nil)
		if rec.Code != http.StatusCreated {
			t.Errorf("status = %d, want 201", rec.Code)
		}
	})

	t.Run("oversized payload", func(t *testing.T) {
		env := newTestEnv(t, testApp())
		rec := env.do(http.MethodPost, "/apps/Test", strings.Repeat("a", maxStartPayload+1), nil)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", rec.Code)
		}
	})

	t.Run("non-ASCII payload", func(t *testing.T) {
		env := newTestEnv(t, testApp())
		rec := env.do(http.MethodPost, "/apps/Test", "caf\xc3\xa9", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("callback failures map to protocol errors", func(t *testing.T) {
		tests := []struct {
			result app.Status
			want   int
		}{
			{app.StatusErrForbidden, http.StatusForbidden},
			{app.StatusErrUnauthorized, http.StatusUnauthorized},
			{app.StatusErrNotImplemented, http.StatusNotImplemented},
			{app.StatusError, http.StatusServiceUnavailable},
		}
		for _, tt := range tests {
			env := newTestEnv(t, testApp())
			env.stub.startFail = tt.result
			rec := env.do(http.MethodPost, "/apps/Test", "", nil)
			if rec.Code != tt.want {
				t.Errorf("start with %v: status = %d, want %d", tt.result, rec.Code, tt.want)
			}
		}
	})

	t.Run("busy registry", func(t *testing.T) {
		env := newTestEnv(t, testApp())
		if !env.registry.TryLock() {
			t.Fatal("TryLock() failed")
		}
		defer env.registry.Unlock()

		rec := env.do(http.MethodPost, "/apps/Test", "", nil)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500 under contention", rec.Code)
		}
	})
}

func TestOriginValidation(t *testing.T) {
	desc := testApp()
	desc.Origins = []string{"example.com"}

	t.Run("allowed origin is echoed", func(t *testing.T) {
		env := newTestEnv(t, desc)
		rec := env.do(http.MethodPost, "/apps/Test", "", map[string]string{"Origin": "https://example.com"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
			t.Errorf("Access-Control-Allow-Origin = %q, want origin echo", got)
		}
	})

	t.Run("disallowed origin", func(t *testing.T) {
		env := newTestEnv(t, desc)
		rec := env.do(http.MethodPost, "/apps/Test", "", map[string]string{"Origin": "https://evil.com"})
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("origin on app without allow-list", func(t *testing.T) {
		env := newTestEnv(t, testApp())
		rec := env.do(http.MethodGet, "/apps/Test", "", map[string]string{"Origin": "https://example.com"})
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})
}

func TestStopApp(t *testing.T) {
	t.Run("already stopped", func(t *testing.T) {
		env := newTestEnv(t, testApp())
		rec := env.do(http.MethodDelete, "/apps/Test/run", "", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404 for stopped application", rec.Code)
		}
	})

	t.Run("unknown application", func(t *testing.T) {
		env := newTestEnv(t, testApp())
		rec := env.do(http.MethodDelete, "/apps/Unknown/run", "", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("non-DELETE method", func(t *testing.T) {
		env := newTestEnv(t, testApp())
		rec := env.do(http.MethodPost, "/apps/Test/run", "", nil)
		if rec.Code != http.StatusNotImplemented {
			t.Errorf("status = %d, want 501", rec.Code)
		}
	})
}

func TestHideApp(t *testing.T) {
	// Hide paths are matched by suffix after the /apps/ prefix check, so
	// hide-control is reached through paths outside /apps/.
	t.Run("hide unimplemented by application", func(t *testing.T) {
		env := newTestEnv(t, testApp())
		env.stub.running = true

		rec := env.do(http.MethodPost, "/Test/hide", "", nil)
		if rec.Code != http.StatusNotImplemented {
			t.Errorf("status = %d, want 501", rec.Code)
		}
	})

	t.Run("hide on stopped application", func(t *testing.T) {
		env := newTestEnv(t, testApp())
		rec := env.do(http.MethodPost, "/Test/hide", "", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("hide supported by application", func(t *testing.T) {
		env := newTestEnv(t, testApp())
		env.stub.running = true
		env.stub.hideResult = app.StatusHidden

		rec := env.do(http.MethodPost, "/Test/hide", "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}

func TestHiddenStateDowngrade(t *testing.T) {
	newHiddenEnv := func(t *testing.T) *testEnv {
		env := newTestEnv(t, testApp())
		env.stub.statusOverride = app.StatusHidden
		return env
	}

	t.Run("modern client sees hidden", func(t *testing.T) {
		env := newHiddenEnv(t)
		rec := env.do(http.MethodGet, "/apps/Test?clientDialVer=2.1", "", nil)
		if !strings.Contains(rec.Body.String(), "<state>hidden</state>") {
			t.Errorf("body = %s, want hidden state", rec.Body.String())
		}
	})

	t.Run("legacy client sees stopped", func(t *testing.T) {
		env := newHiddenEnv(t)
		rec := env.do(http.MethodGet, "/apps/Test?clientDialVer=2", "", nil)
		if !strings.Contains(rec.Body.String(), "<state>stopped</state>") {
			t.Errorf("body = %s, want stopped state for legacy client", rec.Body.String())
		}
	})

	t.Run("missing version is treated as legacy", func(t *testing.T) {
		env := newHiddenEnv(t)
		rec := env.do(http.MethodGet, "/apps/Test", "", nil)
		if !strings.Contains(rec.Body.String(), "<state>stopped</state>") {
			t.Errorf("body = %s, want stopped state", rec.Body.String())
		}
	})
}

func TestDataControl(t *testing.T) {
	appWithData := testApp()

	t.Run("loopback client stores data", func(t *testing.T) {
		env := newTestEnv(t, appWithData)

		req := httptest.NewRequest(http.MethodPost, "/Test/dial_data", strings.NewReader("a=1&b=2"))
		req.RemoteAddr = "127.0.0.1:5555"
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		// Stored data shows up in the status document.
		status := env.do(http.MethodGet, "/apps/Test", "", nil)
		body := status.Body.String()
		if !strings.Contains(body, "<a>1</a>") || !strings.Contains(body, "<b>2</b>") {
			t.Errorf("status body missing dial-data:\n%s", body)
		}
	})

	t.Run("device address client is allowed", func(t *testing.T) {
		env := newTestEnv(t, appWithData)

		req := httptest.NewRequest(http.MethodPost, "/Test/dial_data", strings.NewReader("a=1"))
		req.RemoteAddr = testAddr + ":40000"
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("remote client is refused as not found", func(t *testing.T) {
		env := newTestEnv(t, appWithData)

		// httptest.NewRequest defaults RemoteAddr to 192.0.2.1, which is
		// neither loopback nor the device address.
		rec := env.do(http.MethodPost, "/Test/dial_data", "a=1", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("GET stores data from the query string", func(t *testing.T) {
		env := newTestEnv(t, appWithData)

		req := httptest.NewRequest(http.MethodGet, "/Test/dial_data?token=xyz", nil)
		req.RemoteAddr = "127.0.0.1:5555"
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		status := env.do(http.MethodGet, "/apps/Test", "", nil)
		if !strings.Contains(status.Body.String(), "<token>xyz</token>") {
			t.Errorf("status body missing stored token:\n%s", status.Body.String())
		}
	})

	t.Run("oversized payload", func(t *testing.T) {
		env := newTestEnv(t, appWithData)

		req := httptest.NewRequest(http.MethodPost, "/Test/dial_data",
			strings.NewReader("a="+strings.Repeat("x", maxDialDataPayload)))
		req.RemoteAddr = "127.0.0.1:5555"
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", rec.Code)
		}
	})

	t.Run("repeated keys keep the first value", func(t *testing.T) {
		env := newTestEnv(t, appWithData)

		req := httptest.NewRequest(http.MethodPost, "/Test/dial_data", strings.NewReader("k=first&k=second"))
		req.RemoteAddr = "127.0.0.1:5555"
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		status := env.do(http.MethodGet, "/apps/Test", "", nil)
		if !strings.Contains(status.Body.String(), "<k>first</k>") {
			t.Errorf("status body should keep the first value:\n%s", status.Body.String())
		}
	})
}

// lockObservingReader reports whether the registry lock was free while the
// request body was being read. A slow client must never be able to hold
// the registry hostage for the duration of its upload.
type lockObservingReader struct {
	registry *app.Registry
	data     io.Reader
	lockFree bool
}

func (r *lockObservingReader) Read(p []byte) (int, error) {
	if r.registry.TryLock() {
		r.registry.Unlock()
		r.lockFree = true
	} else {
		r.lockFree = false
	}
	return r.data.Read(p)
}

func TestBodyReadOutsideRegistryLock(t *testing.T) {
	t.Run("start", func(t *testing.T) {
		env := newTestEnv(t, testApp())
		body := &lockObservingReader{registry: env.registry, data: strings.NewReader("v=1")}

		req := httptest.NewRequest(http.MethodPost, "/apps/Test", body)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201", rec.Code)
		}
		if !body.lockFree {
			t.Error("registry lock was held while the start payload was read")
		}
	})

	t.Run("dial data", func(t *testing.T) {
		env := newTestEnv(t, testApp())
		body := &lockObservingReader{registry: env.registry, data: strings.NewReader("a=1")}

		req := httptest.NewRequest(http.MethodPost, "/Test/dial_data", body)
		req.RemoteAddr = "127.0.0.1:5555"
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !body.lockFree {
			t.Error("registry lock was held while the dial-data payload was read")
		}
	})
}

func TestOptionsPreflight(t *testing.T) {
	tests := []struct {
		path    string
		methods string
	}{
		{"/apps/Test/run", "DELETE, OPTIONS"},
		{"/apps/Test", "GET, POST, OPTIONS"},
		{"/Test/hide", "POST, OPTIONS"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			env := newTestEnv(t, testApp())
			rec := env.do(http.MethodOptions, tt.path, "", nil)
			if rec.Code != http.StatusNoContent {
				t.Fatalf("status = %d, want 204", rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Methods"); got != tt.methods {
				t.Errorf("Access-Control-Allow-Methods = %q, want %q", got, tt.methods)
			}
			if got := rec.Header().Get("Access-Control-Max-Age"); got != "86400" {
				t.Errorf("Access-Control-Max-Age = %q, want 86400", got)
			}
		})
	}
}

func TestDeviceDescriptor(t *testing.T) {
	env := newTestEnv(t, testApp())

	rec := env.do(http.MethodGet, "/ssdp/device-desc.xml", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	wantAppURL := "http://192.0.2.10:56789/apps/"
	if got := rec.Header().Get("Application-URL"); got != wantAppURL {
		t.Errorf("Application-URL = %q, want %q", got, wantAppURL)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"<friendlyName>Test Device</friendlyName>",
		"<manufacturer>Maker</manufacturer>",
		"<modelName>Model</modelName>",
		"<UDN>uuid:test-uuid</UDN>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("descriptor missing %q:\n%s", want, body)
		}
	}
}

func TestStatusRejectsOversizedDialData(t *testing.T) {
	env := newTestEnv(t, testApp())

	// Store a payload that renders beyond the XML budget. The stored value
	// is within the per-request ceiling; the budget is about the rendered
	// accumulation.
	if !env.registry.TryLock() {
		t.Fatal("TryLock() failed")
	}
	a := env.registry.Find("Test")
	big := map[string]string{}
	for i := 0; i < 3; i++ {
		big[strings.Repeat("k", i+1)] = strings.Repeat("v", maxDialDataXML/2)
	}
	env.registry.SaveDialData(a, big)
	env.registry.Unlock()

	rec := env.do(http.MethodGet, "/apps/Test", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 over rendering budget", rec.Code)
	}
}

func TestAppNameFromSuffix(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/apps/Test/run", "Test"},
		{"/apps/YouTube/hide", "YouTube"},
		{"/Test/dial_data", "Test"},
		{"/run", ""},
		{"/apps/" + strings.Repeat("a", 300) + "/run", strings.Repeat("a", 255)},
	}
	for _, tt := range tests {
		if got := appNameFromSuffix(tt.path); got != tt.want {
			t.Errorf("appNameFromSuffix(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
