// Package command turns logical zone commands from the local side into
// vendor MQTT frames, with at most one outstanding command per
// installation.
//
// The queue discipline is latest-wins: a new command for an
// installation stops the wait for the previous one's confirmation and
// takes its slot. Confirmation is any vendor channel_update for the
// pending zone's channel; the vendor consolidates field writes, so
// insisting on a field-level match would only cause spurious retries.
// Ring-light and lock writes are never echoed back and auto-confirm on
// a short timer instead.
package command
