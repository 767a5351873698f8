package mqtt

import "fmt"

// Topic prefixes for the dialcast MQTT namespace.
const (
	// TopicPrefix is the base for all dialcast topics.
	TopicPrefix = "dialcast"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "dialcast/system"
)

// Topics provides builders for dialcast MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct{}

// SystemStatus returns the retained system status topic. The broker
// publishes the LWT here when the receiver disconnects unexpectedly.
//
// Example: dialcast/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AppControl returns the inbound control topic for an application
// operation. op is one of start, stop or hide.
//
// Example: dialcast/app/YouTube/start
func (Topics) AppControl(name, op string) string {
	return fmt.Sprintf("%s/app/%s/%s", TopicPrefix, name, op)
}

// AllAppControl returns the wildcard pattern covering every application
// control topic.
//
// Example: dialcast/app/+/+
func (Topics) AllAppControl() string {
	return TopicPrefix + "/app/+/+"
}

// AppState returns the retained state topic for an application.
//
// Example: dialcast/app/YouTube/state
func (Topics) AppState(name string) string {
	return fmt.Sprintf("%s/app/%s/state", TopicPrefix, name)
}
