// Package mailbox implements the mailbox collaborator polled for 2FA
// verification codes during interactive login.
//
// The auth engine treats the mailbox as opaque: it snapshots the message
// count, waits for a new message from the configured sender, extracts
// the first six-digit run from the body, and best-effort deletes the
// verification mail. Three providers exist: "basic" speaks POP3 with
// user/password credentials; "gmail" and "outlook" speak IMAP and
// authenticate with SASL XOAUTH2 using an OAuth2 refresh token.
package mailbox
