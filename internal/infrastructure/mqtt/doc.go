// Package mqtt wraps paho.mqtt.golang for the optional remote-control
// channel.
//
// It provides connection management with auto-reconnect, Last Will and
// Testament for offline detection, and subscription tracking so handlers
// survive a broker reconnect. The DIAL receiver works fully without MQTT;
// the channel only adds a way for local automations to drive application
// lifecycle without speaking HTTP.
//
// Topic hierarchy:
//
//	dialcast/system/status          retained online/offline status (LWT)
//	dialcast/app/{name}/{op}        inbound control: start, stop, hide
//	dialcast/app/{name}/state       retained application state updates
package mqtt
