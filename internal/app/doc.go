// Package app holds the DIAL application model: descriptors, the lifecycle
// state machine, the registry with its single serialising lock, origin
// validation and dial-data persistence.
//
// All mutable application state is guarded by the registry lock. Callers
// take it with TryLock and report busy on contention rather than queueing,
// which keeps one stuck application callback from stalling the whole
// server.
package app
