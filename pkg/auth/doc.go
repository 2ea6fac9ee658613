// Package auth produces and maintains the bearer token the rest of the
// bridge runs on. It implements the OAuth2 authorization-code flow with
// PKCE against the vendor identity service, driving the login page
// through a scriptable browser and answering email 2FA challenges by
// polling a mailbox. Tokens are refreshed on a timer and cached sealed
// on disk so restarts normally skip the interactive flow entirely.
package auth
