// Package tmux is the text protocol spoken with tmux on a remote host.
//
// tmux exposes no structured API over SSH, only shell text in and free text
// out, so the package is split into a command builder (this file) and an
// output parser (parser.go). Both halves are pure: builders return the
// literal shell line to run and never execute anything, parsers never fail
// and degrade to safe defaults on malformed input.
package tmux

import (
	"fmt"
	"strings"
)

// PathPrefix makes tmux resolvable regardless of the remote shell's PATH,
// which is often minimal for non-interactive SSH sessions.
const PathPrefix = "export PATH=/usr/local/bin:/usr/local/sbin:/opt/homebrew/bin:/opt/homebrew/sbin:/usr/bin:/usr/sbin:/bin:/sbin"

const tmuxCmd = PathPrefix + " && tmux"

const (
	// ListFormat yields name:windows:activity per session. tmux 2.2 and
	// later expand #{session_activity_string} to nothing, so activity then
	// reads as the time of the poll.
	ListFormat = "#{session_name}:#{session_windows}:#{session_activity_string}"
	// InfoFormat yields name:windows:created:activity for one session.
	InfoFormat = "#{session_name}:#{session_windows}:#{session_created}:#{session_activity_string}"

	AttachedFormat = "#{session_attached}"
	NameFormat     = "#{session_name}"

	// Sentinels printed by the HasSession probe.
	SentinelExists    = "exists"
	SentinelNotExists = "not_exists"

	DefaultCaptureLines = 100
)

// Key is a named tmux key understood by send-keys.
type Key string

const (
	KeyEnter     Key = "Enter"
	KeyUp        Key = "Up"
	KeyDown      Key = "Down"
	KeyTab       Key = "Tab"
	KeyInterrupt Key = "C-c"
)

var keyNames = map[string]Key{
	"enter":  KeyEnter,
	"up":     KeyUp,
	"down":   KeyDown,
	"tab":    KeyTab,
	"c-c":    KeyInterrupt,
	"ctrl-c": KeyInterrupt,
}

// ParseKey resolves a case-insensitive key name.
func ParseKey(name string) (Key, bool) {
	k, ok := keyNames[strings.ToLower(strings.TrimSpace(name))]
	return k, ok
}

// Quote wraps s in single quotes for a POSIX shell. Embedded single quotes
// are closed, escaped and reopened, so the remote shell expands nothing.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func ListSessions() string {
	return fmt.Sprintf("%s list-sessions -F %s", tmuxCmd, Quote(ListFormat))
}

// ListSessionNames lists bare session names. Errors are discarded so that
// "no server running" reads as an empty list.
func ListSessionNames() string {
	return fmt.Sprintf("%s list-sessions -F %s 2>/dev/null", tmuxCmd, Quote(NameFormat))
}

func CreateSession(name string) string {
	return fmt.Sprintf("%s new-session -d -s %s", tmuxCmd, Quote(name))
}

// sessionTarget addresses name exactly. A bare -t name also matches any
// session whose name merely starts with name.
func sessionTarget(name string) string {
	return Quote("=" + name)
}

// paneTarget addresses the active pane of the session named exactly name.
func paneTarget(name string) string {
	return Quote("=" + name + ":")
}

func DeleteSession(name string) string {
	return fmt.Sprintf("%s kill-session -t %s", tmuxCmd, sessionTarget(name))
}

func RenameSession(oldName, newName string) string {
	return fmt.Sprintf("%s rename-session -t %s %s", tmuxCmd, sessionTarget(oldName), Quote(newName))
}

// SessionAttached prints the number of clients attached to name.
func SessionAttached(name string) string {
	return fmt.Sprintf("%s display -p -t %s %s", tmuxCmd, sessionTarget(name), Quote(AttachedFormat))
}

func SessionInfo(name string) string {
	return fmt.Sprintf("%s display-message -t %s -p %s", tmuxCmd, sessionTarget(name), Quote(InfoFormat))
}

// HasSession prints exactly one of the sentinels, so the answer never
// depends on exit codes or stderr text.
func HasSession(name string) string {
	return fmt.Sprintf("%s has-session -t %s 2>/dev/null && echo '%s' || echo '%s'",
		tmuxCmd, sessionTarget(name), SentinelExists, SentinelNotExists)
}

// SendKeys sends keys as one send-keys argument. tmux still treats an
// argument that is exactly a key name (such as "Enter") as that key.
func SendKeys(name, keys string) string {
	return fmt.Sprintf("%s send-keys -t %s %s", tmuxCmd, paneTarget(name), Quote(keys))
}

func SendKey(name string, key Key) string {
	return fmt.Sprintf("%s send-keys -t %s %s", tmuxCmd, paneTarget(name), string(key))
}

// CapturePane prints the visible pane plus lines of scrollback history.
// A non-positive lines uses DefaultCaptureLines.
func CapturePane(name string, lines int) string {
	if lines <= 0 {
		lines = DefaultCaptureLines
	}
	return fmt.Sprintf("%s capture-pane -t %s -p -S -%d", tmuxCmd, paneTarget(name), lines)
}

// CheckInstalled folds stderr into stdout so a "command not found" message
// reaches IsAvailable instead of surfacing as a command error.
func CheckInstalled() string {
	return tmuxCmd + " -V 2>&1"
}

func StartServer() string {
	return tmuxCmd + " start-server"
}

// ListDirectory lists all entries of dir one per line, discarding errors.
// A leading ~ is left outside the quotes so the remote shell expands it.
func ListDirectory(dir string) string {
	var arg string
	switch {
	case dir == "~" || dir == "~/":
		arg = dir
	case strings.HasPrefix(dir, "~/"):
		arg = "~/" + Quote(strings.TrimPrefix(dir, "~/"))
	default:
		arg = Quote(dir)
	}
	return "ls -1 -a " + arg + " 2>/dev/null"
}
