package tmux

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
)

// ActivityLayout is the layout of the 14-digit activity token.
const ActivityLayout = "20060102150405"

var (
	activityToken = regexp.MustCompile(`^\d{14}$`)
	versionRe     = regexp.MustCompile(`(?i)tmux\s+(\d+\.\d+)`)
)

// ParseSessionList decodes ListSessions output. Blank lines and lines with
// fewer than two fields are dropped. A repeated name keeps its first record.
// now stands in for any timestamp that cannot be decoded.
func ParseSessionList(out string, now time.Time) []Session {
	var sessions []Session
	seen := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		s, ok := ParseSessionLine(line, now)
		if !ok || seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		sessions = append(sessions, s)
	}
	return sessions
}

// ParseSessionLine decodes one name:windows[:activity] line. New records
// start INACTIVE; the attached count is a separate query.
func ParseSessionLine(line string, now time.Time) (Session, bool) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return Session{}, false
	}
	parts := strings.Split(line, ":")
	if len(parts) < 2 || parts[0] == "" {
		return Session{}, false
	}

	s := Session{
		Name:         parts[0],
		State:        StateInactive,
		Windows:      parseWindows(parts[1]),
		CreatedAt:    now,
		LastActivity: now,
	}
	if len(parts) >= 3 {
		s.LastActivity = ParseActivityTime(parts[2], now)
	}
	return s, true
}

// ParseSessionInfo decodes SessionInfo output (name:windows:created:activity).
// created is a Unix timestamp in seconds.
func ParseSessionInfo(out string, now time.Time) (Session, bool) {
	line := strings.TrimSpace(out)
	parts := strings.Split(line, ":")
	if len(parts) < 2 || parts[0] == "" {
		return Session{}, false
	}
	s := Session{
		Name:         parts[0],
		State:        StateInactive,
		Windows:      parseWindows(parts[1]),
		CreatedAt:    now,
		LastActivity: now,
	}
	if len(parts) >= 3 {
		if secs, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64); err == nil && secs > 0 {
			s.CreatedAt = time.Unix(secs, 0)
		}
	}
	if len(parts) >= 4 {
		s.LastActivity = ParseActivityTime(parts[3], now)
	}
	return s, true
}

func parseWindows(field string) int {
	n, err := strconv.Atoi(strings.TrimSpace(field))
	if err != nil {
		return 1
	}
	return n
}

// ParseActivityTime decodes a yyyyMMddHHmmss token, optionally wrapped in
// brackets, in the local time zone. Anything else yields now.
func ParseActivityTime(token string, now time.Time) time.Time {
	clean := strings.NewReplacer("[", "", "]", "").Replace(strings.TrimSpace(token))
	if !activityToken.MatchString(clean) {
		return now
	}
	t, err := time.ParseInLocation(ActivityLayout, clean, time.Local)
	if err != nil {
		return now
	}
	return t
}

// FormatActivityTime is the inverse of ParseActivityTime.
func FormatActivityTime(t time.Time) string {
	return t.In(time.Local).Format(ActivityLayout)
}

// RenderSessionList produces text in the ListSessions format.
func RenderSessionList(sessions []Session) string {
	var b strings.Builder
	for _, s := range sessions {
		b.WriteString(s.Name)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(s.Windows))
		b.WriteByte(':')
		b.WriteString(FormatActivityTime(s.LastActivity))
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseSessionExists reads the HasSession sentinel. Only a whole
// "exists" token counts, so "not_exists" is never mistaken for a hit.
func ParseSessionExists(out string) bool {
	for _, tok := range strings.Fields(out) {
		if strings.EqualFold(tok, SentinelExists) {
			return true
		}
	}
	return false
}

// ParseAttachedCount reads the attached-client count; non-numeric output is 0.
func ParseAttachedCount(out string) int {
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0
	}
	return n
}

// ParseVersion extracts "3.3" from "tmux 3.3a". It returns "" when no
// version is present.
func ParseVersion(out string) string {
	m := versionRe.FindStringSubmatch(out)
	if m == nil {
		return ""
	}
	return m[1]
}

// ParseCapturePane splits captured pane text into its non-empty lines.
func ParseCapturePane(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ParseNameList returns the trimmed non-blank lines of out.
func ParseNameList(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// StripANSI removes escape sequences such as colors and cursor movement.
func StripANSI(text string) string {
	return ansi.Strip(text)
}

// IsAvailable guesses from CheckInstalled output whether tmux is usable.
// It is a heuristic over free text: the output must mention tmux and must
// not carry one of the usual "missing binary" phrases.
func IsAvailable(out string) bool {
	lower := strings.ToLower(out)
	if !strings.Contains(lower, "tmux") {
		return false
	}
	for _, phrase := range []string{"not found", "not installed", "no tmux"} {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	return true
}

var noSessionPhrases = []string{
	"no sessions",
	"can't find session",
	"no server running",
	"error connecting to",
}

// IsNoSessionsError reports whether error text from list-sessions means
// there is simply nothing to list. tmux exits 1 for every failure, so the
// message text is the only signal; it is locale and version dependent.
func IsNoSessionsError(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range noSessionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
