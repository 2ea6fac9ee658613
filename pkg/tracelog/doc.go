// Package tracelog records MQTT traffic as compact CBOR events for
// offline diagnosis. A trace captures every frame the bridge sends or
// receives on either session, plus session state changes and handler
// errors, without involving the application logger.
//
// Tracing is optional; the zero-cost NoopTracer is used when no trace
// file is configured. Events use integer CBOR keys to keep long traces
// small.
package tracelog
