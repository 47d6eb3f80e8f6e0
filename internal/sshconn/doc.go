// Package sshconn owns a single authenticated SSH connection to a remote host
// and runs commands and interactive shells on top of it.
//
// A [Connection] is built from a [Profile] and is either fully connected or
// fully disconnected; callers never observe a half-open client. Every
// operation opens its own SSH session (a sub-channel of the connection):
//
//   - [Connection.ExecuteCommand] runs one command and buffers its output
//     until the remote side has exited and both streams are drained.
//   - [Connection.ExecuteCommandStream] runs one command and hands output to
//     callbacks as it arrives, returning the exit status.
//   - [Connection.OpenShell] starts a PTY-backed shell whose reader goroutine
//     lives until [Shell.Close] joins it.
//
// # Keepalive
//
// After a successful [Connection.Connect] a background loop sends
// keepalive@openssh.com global requests at the profile's KeepAliveInterval.
// A failed keepalive closes the client; a watcher goroutine then tears down
// any open shells and reports the loss through the handler registered with
// [Connection.OnDisconnect]. The connection never reconnects on its own:
// callers decide whether to call [Connection.Reconnect].
//
// # Errors
//
// Calls made while disconnected fail with [ErrNotConnected]. Dial and
// handshake failures, and failures to open a session, are [*ConnectionError].
// A command that writes only to stderr, or whose session breaks mid-flight,
// is a [*RemoteCommandError].
//
// All log output uses the [ssh] prefix.
package sshconn
