// Package sshterminal holds the display side of remote terminals: the
// TerminalLine model rendered by clients, and long-lived interactive shells
// that outlive the clients attached to them.
//
// # Core Components
//
//   - [TerminalLine]: one typed, timestamped line of output for display.
//   - [SessionManager]: opens shells over an [sshconn.Connection] and tracks them.
//   - [ShellSession]: a shell with scrollback, optional recording and a state.
//   - [ScrollbackBuffer]: bounded output buffer replayed to late or returning clients.
//   - [SessionRecording]: asciicast v2 capture of a shell's traffic.
//   - [RateLimiter]: token bucket applied to client input frames.
//
// # Shell Lifecycle
//
//  1. [SessionManager.Open] → [SessionActive]. Output is buffered from the start.
//  2. The client disconnects → [ShellSession.Detach] → [SessionDetached].
//  3. The client returns → [ShellSession.Attach] → [SessionActive]; the caller
//     replays [ScrollbackBuffer.Snapshot] before relaying live output.
//  4. The remote shell exits, or [ShellSession.Close] → [SessionClosed].
//
// [SessionManager.CleanupIdle] closes shells detached for longer than the
// idle timeout and should be called periodically.
//
// # Limits
//
// Input frames are capped at [MaxInputMessageSize]. Resizes must stay within
// [MinTermCols]..[MaxTermCols] by [MinTermRows]..[MaxTermRows].
//
// # Log Prefixes
//
// Shell management logs at the [session-mgr] prefix.
package sshterminal
