// Package broker owns the two MQTT sessions the bridge lives on: the
// vendor cloud session (WebSocket, authenticated with the current
// access token) and the local automation broker session (TCP).
//
// The two sides fail differently and are handled differently. The
// vendor side disables library-level reconnect because a reconnect
// without a fresh token would just be rejected again; BrokerLink
// reconnects manually after re-authenticating. The local side has no
// auth coupling and uses the client library's own reconnect with a
// bounded backoff. Both sides snapshot their subscriptions and replay
// them after every reconnect, and a periodic health check catches
// silently dead vendor connections.
package broker
