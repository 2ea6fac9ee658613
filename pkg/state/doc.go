// Package state translates vendor MQTT messages into zone and
// installation state changes and mirrors each change onto the local
// broker.
//
// Publishes are change-driven: every topic remembers its last published
// value, so one incoming update produces exactly one publish per field
// that actually changed. The cache is dropped on local-broker
// reconnects so the full state is replayed.
package state
