package control

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/dialcast/dialcast/internal/app"
	"github.com/dialcast/dialcast/internal/infrastructure/logging"
	"github.com/dialcast/dialcast/internal/infrastructure/mqtt"
)

// fakeBroker records subscriptions and published messages.
type fakeBroker struct {
	subscribed map[string]mqtt.MessageHandler
	published  map[string][]byte
	subErr     error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		subscribed: make(map[string]mqtt.MessageHandler),
		published:  make(map[string][]byte),
	}
}

func (f *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if f.subErr != nil {
		return f.subErr
	}
	f.subscribed[topic] = handler
	return nil
}

func (f *fakeBroker) PublishRetained(topic string, payload []byte) error {
	f.published[topic] = payload
	return nil
}

// stubHandler follows lifecycle calls with an in-memory running flag.
type stubHandler struct {
	running bool
}

func (s *stubHandler) Start(app.StartRequest) app.Status {
	s.running = true
	return app.StatusRunning
}

func (s *stubHandler) Stop() { s.running = false }

func (s *stubHandler) Status() app.Status {
	if s.running {
		return app.StatusRunning
	}
	return app.StatusStopped
}

func (s *stubHandler) Hide() app.Status { return app.StatusErrNotImplemented }

type memDataStore struct{}

func (memDataStore) Load(string) (map[string]string, error) { return map[string]string{}, nil }
func (memDataStore) Save(string, map[string]string) error   { return nil }

func discardLogger() *logging.Logger {
	return &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func newTestListener(t *testing.T) (*Listener, *fakeBroker, *stubHandler, *app.Registry) {
	t.Helper()

	stub := &stubHandler{}
	registry := app.NewRegistry(memDataStore{}, nil, discardLogger())
	if err := registry.Register(app.Descriptor{Name: "Test", AddonID: "app.test"}, stub); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	broker := newFakeBroker()
	l, err := New(Deps{
		Logger:   discardLogger(),
		Registry: registry,
		Broker:   broker,
		QoS:      1,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l, broker, stub, registry
}

func TestListener_Start(t *testing.T) {
	l, broker, _, _ := newTestListener(t)

	if err := l.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, ok := broker.subscribed["dialcast/app/+/+"]; !ok {
		t.Errorf("Start() did not subscribe to the control pattern, got %v", broker.subscribed)
	}
}

func TestListener_HandleMessage(t *testing.T) {
	t.Run("start launches the application", func(t *testing.T) {
		l, broker, stub, _ := newTestListener(t)

		if err := l.handleMessage("dialcast/app/Test/start", []byte("v=1")); err != nil {
			t.Fatalf("handleMessage() error = %v", err)
		}
		if !stub.running {
			t.Error("application was not started")
		}
		state, ok := broker.published["dialcast/app/Test/state"]
		if !ok {
			t.Fatal("state was not published")
		}
		if !strings.Contains(string(state), `"state":"running"`) {
			t.Errorf("published state = %s, want running", state)
		}
	})

	t.Run("stop terminates the application", func(t *testing.T) {
		l, broker, stub, _ := newTestListener(t)
		stub.running = true

		if err := l.handleMessage("dialcast/app/Test/stop", nil); err != nil {
			t.Fatalf("handleMessage() error = %v", err)
		}
		if stub.running {
			t.Error("application was not stopped")
		}
		if !strings.Contains(string(broker.published["dialcast/app/Test/state"]), `"state":"stopped"`) {
			t.Error("published state should be stopped")
		}
	})

	t.Run("stop on stopped application is a no-op", func(t *testing.T) {
		l, broker, _, _ := newTestListener(t)

		if err := l.handleMessage("dialcast/app/Test/stop", nil); err != nil {
			t.Fatalf("handleMessage() error = %v", err)
		}
		if len(broker.published) != 0 {
			t.Errorf("no state should be published, got %v", broker.published)
		}
	})

	t.Run("hide on unimplementing application errors", func(t *testing.T) {
		l, _, stub, _ := newTestListener(t)
		stub.running = true

		if err := l.handleMessage("dialcast/app/Test/hide", nil); err == nil {
			t.Error("handleMessage() error = nil, want hide-unimplemented error")
		}
	})

	t.Run("unknown application errors", func(t *testing.T) {
		l, _, _, _ := newTestListener(t)
		if err := l.handleMessage("dialcast/app/Ghost/start", nil); err == nil {
			t.Error("handleMessage() error = nil, want unknown-application error")
		}
	})

	t.Run("own state topic is ignored", func(t *testing.T) {
		l, broker, stub, _ := newTestListener(t)

		if err := l.handleMessage("dialcast/app/Test/state", []byte(`{}`)); err != nil {
			t.Fatalf("handleMessage() error = %v", err)
		}
		if stub.running || len(broker.published) != 0 {
			t.Error("state topic should have no effect")
		}
	})

	t.Run("oversized start payload is rejected", func(t *testing.T) {
		l, _, stub, _ := newTestListener(t)

		payload := []byte(strings.Repeat("a", maxControlPayload+1))
		if err := l.handleMessage("dialcast/app/Test/start", payload); err == nil {
			t.Error("handleMessage() error = nil, want size error")
		}
		if stub.running {
			t.Error("oversized payload still started the application")
		}
	})

	t.Run("non-ASCII start payload is rejected", func(t *testing.T) {
		l, _, stub, _ := newTestListener(t)

		if err := l.handleMessage("dialcast/app/Test/start", []byte("caf\xc3\xa9")); err == nil {
			t.Error("handleMessage() error = nil, want charset error")
		}
		if stub.running {
			t.Error("non-ASCII payload still started the application")
		}
	})

	t.Run("contention drops the message silently", func(t *testing.T) {
		l, _, stub, registry := newTestListener(t)
		if !registry.TryLock() {
			t.Fatal("TryLock() failed")
		}
		defer registry.Unlock()

		if err := l.handleMessage("dialcast/app/Test/start", nil); err != nil {
			t.Errorf("handleMessage() error = %v, want nil on contention", err)
		}
		if stub.running {
			t.Error("message should have been dropped under contention")
		}
	})
}

func TestParseControlTopic(t *testing.T) {
	tests := []struct {
		topic    string
		wantName string
		wantOp   string
		wantErr  bool
	}{
		{"dialcast/app/Test/start", "Test", "start", false},
		{"dialcast/app/Test/stop", "Test", "stop", false},
		{"dialcast/app/Test/hide", "Test", "hide", false},
		{"dialcast/app/Test/state", "", "", false},
		{"dialcast/app/Test/reboot", "", "", true},
		{"dialcast/system/status", "", "", true},
		{"other/app/Test/start", "", "", true},
		{"dialcast/app//start", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			name, op, err := parseControlTopic(tt.topic)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseControlTopic() error = %v, wantErr %v", err, tt.wantErr)
			}
			if name != tt.wantName || op != tt.wantOp {
				t.Errorf("parseControlTopic() = (%q, %q), want (%q, %q)", name, op, tt.wantName, tt.wantOp)
			}
		})
	}
}
