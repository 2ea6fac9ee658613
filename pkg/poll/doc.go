// Package poll runs the periodic fallbacks: the HTTPS snapshot reload
// that catches anything missed over MQTT, and the live-data requests
// that make the controller publish its diagnostic payloads.
package poll
