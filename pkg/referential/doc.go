// Package referential maintains the dictionary between the vendor's
// symbolic field names (e.g. "setpoint_h_normal") and the numeric wire
// keys (e.g. "16") used in command frames and channel updates.
//
// The dictionary is requested over MQTT and arrives as an LZ-UTF16
// compressed JSON array of {index, value} pairs. Until it has loaded,
// lookups fall back to a documented static table so commands issued
// early in the process lifetime still encode correctly.
package referential
