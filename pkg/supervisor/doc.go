// Package supervisor owns the bridge lifecycle: it builds every
// component in dependency order, runs the timers, and tears everything
// down in reverse within the shutdown budget.
package supervisor
