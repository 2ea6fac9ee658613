// Package discovery emits retained entity discovery configs on the
// local broker so the automation platform auto-creates the bridge's
// entities, and owns the topic layout shared with the state and command
// packages.
package discovery
