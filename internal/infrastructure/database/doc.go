// Package database provides SQLite-backed key/value persistence for DIAL
// applications that request it at registration time.
//
// Each application gets its own database file under the data directory
// (app_<name>.sqlite3), mirroring the one-store-per-application ownership
// model: stores are never shared between applications.
package database
