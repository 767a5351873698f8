package control

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/dialcast/dialcast/internal/app"
	"github.com/dialcast/dialcast/internal/infrastructure/logging"
	"github.com/dialcast/dialcast/internal/infrastructure/mqtt"
)

// Control operations accepted on dialcast/app/{name}/{op}.
const (
	opStart = "start"
	opStop  = "stop"
	opHide  = "hide"
)

// maxControlPayload matches the HTTP start payload ceiling; the control
// channel gets no more room than a DIAL client.
const maxControlPayload = 4096

// Broker is the MQTT surface the listener needs. Implemented by
// mqtt.Client; narrowed to an interface so tests can fake the broker.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	PublishRetained(topic string, payload []byte) error
}

// Deps holds the dependencies required by the listener.
type Deps struct {
	Logger   *logging.Logger
	Registry *app.Registry
	Broker   Broker
	QoS      byte
}

// Listener subscribes to application control topics and drives the
// application registry. Create with New(), attach with Start().
type Listener struct {
	logger   *logging.Logger
	registry *app.Registry
	broker   Broker
	qos      byte
}

// New creates a control listener.
func New(deps Deps) (*Listener, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("application registry is required")
	}
	if deps.Broker == nil {
		return nil, fmt.Errorf("mqtt broker is required")
	}

	return &Listener{
		logger:   deps.Logger,
		registry: deps.Registry,
		broker:   deps.Broker,
		qos:      deps.QoS,
	}, nil
}

// Start subscribes to the application control topic pattern.
func (l *Listener) Start() error {
	pattern := mqtt.Topics{}.AllAppControl()
	if err := l.broker.Subscribe(pattern, l.qos, l.handleMessage); err != nil {
		return fmt.Errorf("subscribing to control topics: %w", err)
	}
	l.logger.Info("control listener started", "pattern", pattern)
	return nil
}

// handleMessage routes one control message. Errors are returned to the
// MQTT client wrapper, which logs them.
func (l *Listener) handleMessage(topic string, payload []byte) error {
	name, op, err := parseControlTopic(topic)
	if err != nil {
		return err
	}
	return l.dispatch(name, op, payload)
}

// parseControlTopic extracts the application name and operation from a
// dialcast/app/{name}/{op} topic. The state topic shares the hierarchy and
// is ignored.
func parseControlTopic(topic string) (name, op string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != mqtt.TopicPrefix || parts[1] != "app" {
		return "", "", fmt.Errorf("unrecognised control topic %q", topic)
	}
	name, op = parts[2], parts[3]
	if name == "" {
		return "", "", fmt.Errorf("control topic %q has no application name", topic)
	}
	switch op {
	case opStart, opStop, opHide:
		return name, op, nil
	case "state":
		// Our own retained state topic echoed back by the wildcard.
		return "", "", nil
	default:
		return "", "", fmt.Errorf("unrecognised control operation %q", op)
	}
}

// dispatch performs the operation under the registry lock. Contention is
// logged and the message dropped; the automation can republish, unlike an
// HTTP client there is nobody waiting on a response.
func (l *Listener) dispatch(name, op string, payload []byte) error {
	if name == "" && op == "" {
		return nil
	}

	if !l.registry.TryLock() {
		l.logger.Warn("registry busy, control message dropped", "app", name, "op", op)
		return nil
	}
	defer l.registry.Unlock()

	a := l.registry.Find(name)
	if a == nil {
		return fmt.Errorf("unknown application %q", name)
	}

	switch op {
	case opStart:
		if len(payload) > maxControlPayload {
			return fmt.Errorf("start payload for %q exceeds %d bytes", name, maxControlPayload)
		}
		if !printableASCII(payload) {
			return fmt.Errorf("start payload for %q is not printable ASCII", name)
		}
		state := a.Start(app.StartRequest{Payload: string(payload), Query: url.Values{}})
		l.logger.Info("application started via control channel", "app", name, "state", state.String())
	case opStop:
		a.RefreshStatus()
		if a.State() == app.StatusStopped {
			return nil
		}
		a.Stop()
		l.logger.Info("application stopped via control channel", "app", name)
	case opHide:
		a.RefreshStatus()
		if a.State() != app.StatusRunning && a.State() != app.StatusHidden {
			return nil
		}
		if a.Hide() != app.StatusHidden {
			return fmt.Errorf("hide not implemented by application %q", name)
		}
	}

	l.publishState(a)
	return nil
}

// publishState publishes the application's state on its retained topic.
// Failures are logged; state publication is advisory.
func (l *Listener) publishState(a *app.Application) {
	topic := mqtt.Topics{}.AppState(a.Name)
	payload, err := json.Marshal(struct {
		App   string `json:"app"`
		State string `json:"state"`
	}{App: a.Name, State: a.State().String()})
	if err != nil {
		l.logger.Warn("failed to encode application state", "app", a.Name, "error", err)
		return
	}
	if err := l.broker.PublishRetained(topic, payload); err != nil {
		l.logger.Warn("failed to publish application state", "app", a.Name, "error", err)
	}
}

// printableASCII mirrors the HTTP payload charset rule.
func printableASCII(data []byte) bool {
	for _, b := range data {
		if b == '\t' || b == '\r' || b == '\n' {
			continue
		}
		if b < 0x20 || b > 0x7e {
			return false
		}
	}
	return true
}
