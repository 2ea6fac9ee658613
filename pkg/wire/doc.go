// Package wire defines the JSON wire format types for the vendor cloud.
//
// The vendor encodes commands as JSON maps with numeric string keys
// ("11" request kind, "12" payload, "35" controller number, "36" channel
// zone) and delivers state as typed envelopes on the user and realtime
// topics. This package decodes inbound payloads into tagged variants and
// encodes outbound command frames.
//
// # Message Types
//
// Inbound payloads carry a "type" discriminator:
//   - channel_update: field changes for a single channel
//   - realtime, realtime.update: zone snapshots
//   - referential: the LZ-UTF16 compressed key dictionary
//   - live_data: LIVE_EMU (mixed circuits) or LIVE_DIDO (digital I/O)
//
// Unknown discriminators decode to ErrUnknownType; callers log and drop.
//
// # Temperatures
//
// Temperatures on the wire are tenths of a degree Fahrenheit:
// encode(c) = round(c * 1.8 * 10) + 320. Decoding rounds to one decimal
// Celsius so a decode/encode round trip is stable.
package wire
