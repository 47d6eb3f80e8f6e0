package sshtest

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const tmuxNotFound = "bash: tmux: command not found"

// FakeTmux interprets the shell lines built by package tmux against an
// in-memory session table. Its Exec method is an ExecFunc.
type FakeTmux struct {
	mu sync.Mutex

	installed bool
	version   string
	sessions  []*fakeSession
	dirs      map[string][]string
	// failCreate makes new-session exit 0 without creating anything.
	failCreate bool
}

type fakeSession struct {
	name     string
	windows  int
	attached int
	created  time.Time
	activity time.Time
	pane     string
	sent     []string
}

// NewFakeTmux returns an installed tmux 3.3a with no sessions.
func NewFakeTmux() *FakeTmux {
	return &FakeTmux{
		installed: true,
		version:   "3.3a",
		dirs:      make(map[string][]string),
	}
}

// SetInstalled toggles whether the tmux binary exists.
func (f *FakeTmux) SetInstalled(installed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installed = installed
}

// SetFailCreate makes new-session report success without creating a session.
func (f *FakeTmux) SetFailCreate(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCreate = fail
}

// AddSession registers a session with the given window and client counts.
func (f *FakeTmux) AddSession(name string, windows, attached int, activity time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, &fakeSession{
		name:     name,
		windows:  windows,
		attached: attached,
		created:  activity,
		activity: activity,
	})
}

// SetPane sets the text capture-pane returns for a session.
func (f *FakeTmux) SetPane(name, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s := f.find(name); s != nil {
		s.pane = content
	}
}

// SetDir registers the entries ls prints for dir.
func (f *FakeTmux) SetDir(dir string, entries ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs[dir] = entries
}

// Names returns the current session names in creation order.
func (f *FakeTmux) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.sessions))
	for _, s := range f.sessions {
		names = append(names, s.name)
	}
	return names
}

// SentKeys returns the send-keys arguments received by a session.
func (f *FakeTmux) SentKeys(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s := f.find(name); s != nil {
		return append([]string(nil), s.sent...)
	}
	return nil
}

func (f *FakeTmux) find(name string) *fakeSession {
	for _, s := range f.sessions {
		if s.name == name {
			return s
		}
	}
	return nil
}

// resolve looks up a -t target the way tmux does. "=name" and "=name:"
// match exactly. A bare name falls back to the only session it prefixes.
func (f *FakeTmux) resolve(target string) *fakeSession {
	target = strings.TrimSuffix(target, ":")
	if exact, ok := strings.CutPrefix(target, "="); ok {
		return f.find(exact)
	}
	if s := f.find(target); s != nil {
		return s
	}
	var match *fakeSession
	for _, s := range f.sessions {
		if strings.HasPrefix(s.name, target) {
			if match != nil {
				return nil
			}
			match = s
		}
	}
	return match
}

// Exec runs one command line: simple words joined by && and ||, with
// 2>/dev/null and 2>&1 redirections.
func (f *FakeTmux) Exec(cmd string) (string, string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	words, err := splitWords(cmd)
	if err != nil {
		return "", "bash: " + err.Error(), 2
	}

	var stdout, stderr strings.Builder
	status := 0
	op := ""
	for len(words) > 0 {
		seg, rest, next := nextSegment(words)
		words = rest
		run := op == "" || (op == "&&" && status == 0) || (op == "||" && status != 0)
		if run {
			out, errOut, st := f.runSimple(seg)
			stdout.WriteString(out)
			stderr.WriteString(errOut)
			status = st
		}
		op = next
	}
	return stdout.String(), stderr.String(), status
}

func nextSegment(words []string) (seg, rest []string, op string) {
	for i, w := range words {
		if w == "&&" || w == "||" {
			return words[:i], words[i+1:], w
		}
	}
	return words, nil, ""
}

func (f *FakeTmux) runSimple(words []string) (string, string, int) {
	var args []string
	devNull, merge := false, false
	for _, w := range words {
		switch w {
		case "2>/dev/null":
			devNull = true
		case "2>&1":
			merge = true
		default:
			args = append(args, w)
		}
	}
	if len(args) == 0 {
		return "", "", 0
	}

	var out, errOut string
	var status int
	switch args[0] {
	case "export":
		return "", "", 0
	case "echo":
		out, status = strings.Join(args[1:], " ")+"\n", 0
	case "ls":
		out, errOut, status = f.ls(args[1:])
	case "tmux":
		out, errOut, status = f.tmux(args[1:])
	default:
		errOut, status = fmt.Sprintf("bash: %s: command not found\n", args[0]), 127
	}

	switch {
	case devNull:
		errOut = ""
	case merge:
		out += errOut
		errOut = ""
	}
	return out, errOut, status
}

func (f *FakeTmux) ls(args []string) (string, string, int) {
	dir := "."
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			dir = a
		}
	}
	entries, ok := f.dirs[dir]
	if !ok {
		return "", fmt.Sprintf("ls: cannot access '%s': No such file or directory\n", dir), 2
	}
	return strings.Join(append([]string{".", ".."}, entries...), "\n") + "\n", "", 0
}

func (f *FakeTmux) tmux(args []string) (string, string, int) {
	if !f.installed {
		return "", tmuxNotFound + "\n", 127
	}
	if len(args) == 0 {
		return "", "usage: tmux [-V] [command]\n", 1
	}

	opts, pos := parseFlags(args[1:])
	target := opts["-t"]

	switch args[0] {
	case "-V":
		return "tmux " + f.version + "\n", "", 0

	case "start-server":
		return "", "", 0

	case "list-sessions", "ls":
		if len(f.sessions) == 0 {
			return "", "no server running on /tmp/tmux-1000/default\n", 1
		}
		sorted := append([]*fakeSession(nil), f.sessions...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })
		var b strings.Builder
		for _, s := range sorted {
			b.WriteString(s.format(opts["-F"]))
			b.WriteByte('\n')
		}
		return b.String(), "", 0

	case "new-session":
		name := opts["-s"]
		if f.find(name) != nil {
			return "", fmt.Sprintf("duplicate session: %s\n", name), 1
		}
		if f.failCreate {
			return "", "", 0
		}
		now := time.Now()
		f.sessions = append(f.sessions, &fakeSession{name: name, windows: 1, created: now, activity: now})
		return "", "", 0

	case "kill-session":
		victim := f.resolve(target)
		for i, s := range f.sessions {
			if s == victim {
				f.sessions = append(f.sessions[:i], f.sessions[i+1:]...)
				return "", "", 0
			}
		}
		return "", fmt.Sprintf("can't find session: %s\n", target), 1

	case "rename-session":
		s := f.resolve(target)
		if s == nil {
			return "", fmt.Sprintf("can't find session: %s\n", target), 1
		}
		if len(pos) == 0 {
			return "", "usage: rename-session [-t target-session] new-name\n", 1
		}
		if f.find(pos[0]) != nil {
			return "", fmt.Sprintf("duplicate session: %s\n", pos[0]), 1
		}
		s.name = pos[0]
		return "", "", 0

	case "has-session":
		if f.resolve(target) == nil {
			return "", fmt.Sprintf("can't find session: %s\n", target), 1
		}
		return "", "", 0

	case "display", "display-message":
		s := f.resolve(target)
		if s == nil {
			return "", fmt.Sprintf("can't find session: %s\n", target), 1
		}
		format := ""
		if len(pos) > 0 {
			format = pos[0]
		}
		return s.format(format) + "\n", "", 0

	case "send-keys":
		s := f.resolve(target)
		if s == nil {
			return "", fmt.Sprintf("can't find session: %s\n", target), 1
		}
		s.sent = append(s.sent, pos...)
		s.activity = time.Now()
		return "", "", 0

	case "capture-pane":
		s := f.resolve(target)
		if s == nil {
			return "", fmt.Sprintf("can't find session: %s\n", target), 1
		}
		return s.pane, "", 0
	}

	return "", fmt.Sprintf("unknown command: %s\n", args[0]), 1
}

// parseFlags separates -x value options from positional arguments. -p and
// -d take no value.
func parseFlags(args []string) (map[string]string, []string) {
	opts := make(map[string]string)
	var pos []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch a {
		case "-p", "-d":
			opts[a] = ""
		case "-t", "-s", "-F", "-S":
			if i+1 < len(args) {
				opts[a] = args[i+1]
				i++
			}
		default:
			pos = append(pos, a)
		}
	}
	return opts, pos
}

func (s *fakeSession) format(format string) string {
	if format == "" {
		return fmt.Sprintf("%s: %d windows", s.name, s.windows)
	}
	return strings.NewReplacer(
		"#{session_name}", s.name,
		"#{session_windows}", fmt.Sprint(s.windows),
		"#{session_attached}", fmt.Sprint(s.attached),
		"#{session_created}", fmt.Sprint(s.created.Unix()),
		"#{session_activity_string}", s.activity.Local().Format("20060102150405"),
	).Replace(format)
}

// splitWords splits a shell line into words, honoring single quotes,
// double quotes and backslash escapes. && and || are returned as words.
func splitWords(line string) ([]string, error) {
	var (
		words   []string
		cur     strings.Builder
		inWord  bool
		runes   = []rune(line)
		flush = func() {
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		}
	)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		case r == '\'':
			inWord = true
			j := i + 1
			for j < len(runes) && runes[j] != '\'' {
				cur.WriteRune(runes[j])
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated single quote")
			}
			i = j
		case r == '"':
			inWord = true
			j := i + 1
			for j < len(runes) && runes[j] != '"' {
				if runes[j] == '\\' && j+1 < len(runes) {
					j++
				}
				cur.WriteRune(runes[j])
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated double quote")
			}
			i = j
		case r == '\\' && i+1 < len(runes):
			inWord = true
			i++
			cur.WriteRune(runes[i])
		case (r == '&' || r == '|') && i+1 < len(runes) && runes[i+1] == r:
			flush()
			words = append(words, string([]rune{r, r}))
			i++
		default:
			inWord = true
			cur.WriteRune(r)
		}
	}
	flush()
	return words, nil
}
