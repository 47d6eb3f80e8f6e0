package logutil

import "strings"

// maxCommandLabel is the longest command text written to the log before truncation.
const maxCommandLabel = 80

// SanitizeForLog removes newlines and control characters from user-provided
// strings so a session name or remote error text cannot forge log entries.
func SanitizeForLog(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r >= 32 && r != 0x7f {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Truncate sanitizes a remote command line and shortens it for log output.
func Truncate(cmd string) string {
	cmd = SanitizeForLog(cmd)
	if len(cmd) > maxCommandLabel {
		return cmd[:maxCommandLabel] + "..."
	}
	return cmd
}

// Redact masks a secret for display, keeping at most the last two characters.
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) > 6 {
		return "****" + secret[len(secret)-2:]
	}
	return "****"
}
