package tmuxsession

import "github.com/gluk-w/tmuxremote/internal/tmux"

// Diff describes how a session listing changed since the previous one.
type Diff struct {
	Added   []tmux.Session `json:"added"`
	Removed []tmux.Session `json:"removed"`
	Changed []tmux.Session `json:"changed"`
}

// IsEmpty reports whether nothing was added, removed or changed.
func (d Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// ComputeDiff compares two listings by session name. A new session is
// reported in Added only.
func ComputeDiff(prev, cur []tmux.Session) Diff {
	known := byName(prev)
	var changed []tmux.Session
	for _, s := range ChangedSessions(prev, cur) {
		if _, ok := known[s.Name]; ok {
			changed = append(changed, s)
		}
	}
	return Diff{
		Added:   NewSessions(prev, cur),
		Removed: DeletedSessions(prev, cur),
		Changed: changed,
	}
}

// NewSessions returns the sessions in cur whose names are absent from prev.
func NewSessions(prev, cur []tmux.Session) []tmux.Session {
	known := byName(prev)
	var out []tmux.Session
	for _, s := range cur {
		if _, ok := known[s.Name]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// DeletedSessions returns the sessions in prev whose names are absent from cur.
func DeletedSessions(prev, cur []tmux.Session) []tmux.Session {
	still := byName(cur)
	var out []tmux.Session
	for _, s := range prev {
		if _, ok := still[s.Name]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// ChangedSessions returns the sessions in cur whose state differs from the
// same-named session in prev. A session with no previous record has no
// previous state, so it counts as changed as well.
func ChangedSessions(prev, cur []tmux.Session) []tmux.Session {
	known := byName(prev)
	var out []tmux.Session
	for _, s := range cur {
		p, ok := known[s.Name]
		if !ok || p.State != s.State {
			out = append(out, s)
		}
	}
	return out
}

func byName(sessions []tmux.Session) map[string]tmux.Session {
	m := make(map[string]tmux.Session, len(sessions))
	for _, s := range sessions {
		m[s.Name] = s
	}
	return m
}
