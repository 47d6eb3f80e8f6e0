// Package complete produces tab-completion candidates for a command line
// typed against a remote host, and splices a chosen completion back into
// the line.
//
// The first word completes from a built-in list of common commands. Later
// words complete from a directory listing fetched from the host. Remote
// failures never surface: completion is best effort and degrades to no
// candidates.
package complete

import (
	"context"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/gluk-w/tmuxremote/internal/logutil"
	"github.com/gluk-w/tmuxremote/internal/sshconn"
	"github.com/gluk-w/tmuxremote/internal/tmux"
)

var commands = []string{
	"ls", "cd", "pwd", "cat", "less", "grep", "find",
	"tmux", "vim", "nano", "git", "npm", "node", "python",
	"python3", "pip", "pip3", "yarn", "docker", "docker-compose",
	"curl", "wget", "ssh", "scp", "rsync", "tar", "zip",
	"unzip", "chmod", "chown", "mkdir", "rm", "cp", "mv",
	"ps", "top", "htop", "kill", "killall", "systemctl",
	"service", "journalctl", "tail", "head", "sort", "uniq",
}

// Commands returns the built-in command vocabulary.
func Commands() []string {
	return append([]string(nil), commands...)
}

// Engine completes input using remote state reached through an executor.
type Engine struct {
	exec sshconn.Executor
}

func New(exec sshconn.Executor) *Engine {
	return &Engine{exec: exec}
}

// Suggest returns completion candidates for the last word of input.
func (e *Engine) Suggest(ctx context.Context, input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}

	head, last := splitLast(input)
	if head == "" {
		return filterPrefix(commands, last)
	}

	dir, prefix := completionTarget(last)
	out, err := e.exec.ExecuteCommand(ctx, tmux.ListDirectory(dir))
	if err != nil {
		log.Printf("[complete] list %s: %v", logutil.SanitizeForLog(dir), err)
		return []string{}
	}
	return filterPrefix(tmux.ParseNameList(out), prefix)
}

// SessionNames returns tmux session names starting with prefix.
func (e *Engine) SessionNames(ctx context.Context, prefix string) []string {
	out, err := e.exec.ExecuteCommand(ctx, tmux.ListSessionNames())
	if err != nil {
		log.Printf("[complete] list session names: %v", err)
		return []string{}
	}
	return filterPrefix(tmux.ParseNameList(out), prefix)
}

// completionTarget derives the directory to list and the entry prefix to
// match from the word being completed. Paths starting with ~ or / are
// listed as given; anything else is relative to the working directory.
func completionTarget(word string) (dir, prefix string) {
	idx := strings.LastIndex(word, "/")
	if idx < 0 {
		return "./", word
	}
	pathPart, prefix := word[:idx], word[idx+1:]
	switch {
	case pathPart == "" && strings.HasPrefix(word, "/"):
		return "/", prefix
	case strings.HasPrefix(pathPart, "~") || strings.HasPrefix(pathPart, "/"):
		return pathPart, prefix
	default:
		return "./" + pathPart, prefix
	}
}

// splitLast splits input at its final space. head keeps the trailing
// space; head is empty when input is a single word.
func splitLast(input string) (head, last string) {
	idx := strings.LastIndex(input, " ")
	if idx < 0 {
		return "", input
	}
	return input[:idx+1], input[idx+1:]
}

func filterPrefix(candidates []string, prefix string) []string {
	out := []string{}
	for _, c := range candidates {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// LongestCommonPrefix shortens the first string one character at a time
// until every string starts with it.
func LongestCommonPrefix(strs []string) string {
	if len(strs) == 0 {
		return ""
	}
	prefix := strs[0]
	for _, s := range strs[1:] {
		for !strings.HasPrefix(s, prefix) {
			_, size := utf8.DecodeLastRuneInString(prefix)
			prefix = prefix[:len(prefix)-size]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}

// Apply splices completion into the last word of input. A completion that
// extends the whole word replaces it; otherwise it replaces the part after
// the word's final slash, which is what directory candidates complete.
func Apply(input, completion string) string {
	head, last := splitLast(input)
	if strings.HasPrefix(completion, last) {
		return head + completion
	}
	if idx := strings.LastIndex(last, "/"); idx >= 0 {
		return head + last[:idx+1] + completion
	}
	return head + completion
}

// Complete applies a single candidate directly, or the longest common
// prefix of several. Input is returned unchanged when there is nothing to add.
func Complete(input string, suggestions []string) string {
	switch len(suggestions) {
	case 0:
		return input
	case 1:
		return Apply(input, suggestions[0])
	}
	prefix := LongestCommonPrefix(suggestions)
	if prefix == "" {
		return input
	}
	return Apply(input, prefix)
}

// FormatSuggestions renders candidates as a bulleted list, one per line.
func FormatSuggestions(suggestions []string) string {
	lines := make([]string, len(suggestions))
	for i, s := range suggestions {
		lines[i] = "  • " + s
	}
	return strings.Join(lines, "\n")
}
