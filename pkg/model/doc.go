// Package model holds the in-memory entity model of the bridge: the
// installations, groups and zones created once after authentication and
// mutated in place by the state engine and the zone poller.
//
// The Registry owns the routing tables that map a vendor channel id or a
// (channel zone, controller number) tuple back to a zone. Both mappings
// must be unambiguous; conflicts are configuration errors detected at
// startup, never guessed around.
package model
