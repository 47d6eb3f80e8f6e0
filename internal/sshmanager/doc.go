// Package sshmanager keeps one live SSH connection, and the tmux session
// service built on it, per host profile.
//
// # Architecture
//
// [Manager] maps profile IDs to an [Entry]: the [sshconn.Connection], its
// [tmuxsession.Service], a [complete.Engine] and the tmux version found at
// connect time. Alongside the map it keeps, per profile:
//   - [ConnectionState] and the last 50 [StateTransition]s.
//   - the last 100 [ConnectionEvent]s, for status display.
//   - [ConnectLimiter] standing.
//
// # Connection Lifecycle
//
//  1. [Manager.Connect] checks the connection cap, the rate limit and the
//     host allow list, dials, then initializes tmux. A host without tmux is
//     disconnected again and the profile is marked [StateFailed].
//  2. When the remote side drops, the entry stays registered and the profile
//     moves to [StateDisconnected]. Nothing reconnects automatically.
//  3. [Manager.Reconnect] re-dials a known profile and rebuilds its service.
//  4. [Manager.Disconnect] closes and forgets a profile. [Manager.PruneDisconnected]
//     forgets dropped entries and is meant to run periodically.
//
// # Rate Limiting
//
// [ConnectLimiter] refuses more than 10 attempts per profile per minute, and
// blocks a profile for 5 minutes after 5 consecutive failures. Refusals wrap
// [ErrRateLimited].
//
// # Host Restriction
//
// Options.AllowedHosts is a comma-separated list of IPs and CIDR ranges.
// When set, every address a profile's host resolves to must fall inside it;
// refusals wrap [ErrHostNotAllowed]. An empty list allows every host.
//
// # Log Prefixes
//
// Connection events log at the [ssh] prefix.
package sshmanager
