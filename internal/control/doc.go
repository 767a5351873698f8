// Package control bridges MQTT control messages onto DIAL application
// lifecycle operations.
//
// Local automations publish to dialcast/app/{name}/{op} (op is start, stop
// or hide) and the listener drives the same state machine the HTTP router
// does, with the same payload validation and the same non-blocking lock
// discipline. State changes are published back on the retained
// dialcast/app/{name}/state topic.
package control
