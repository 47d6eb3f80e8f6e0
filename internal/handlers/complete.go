package handlers

import (
	"net/http"

	"github.com/gluk-w/tmuxremote/internal/complete"
)

type completionResponse struct {
	Input       string   `json:"input"`
	Suggestions []string `json:"suggestions"`
	// Completed is the input with the longest common prefix applied.
	Completed string `json:"completed"`
}

// Complete suggests completions for ?input= against the live host.
func Complete(w http.ResponseWriter, r *http.Request) {
	entry, ok := liveEntry(w, r)
	if !ok {
		return
	}
	input := r.URL.Query().Get("input")
	suggestions := entry.Completer.Suggest(r.Context(), input)
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSON(w, http.StatusOK, completionResponse{
		Input:       input,
		Suggestions: suggestions,
		Completed:   complete.Complete(input, suggestions),
	})
}

// CompleteSessions suggests tmux session names starting with ?prefix=.
func CompleteSessions(w http.ResponseWriter, r *http.Request) {
	entry, ok := liveEntry(w, r)
	if !ok {
		return
	}
	names := entry.Completer.SessionNames(r.Context(), r.URL.Query().Get("prefix"))
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": names,
		"common":      complete.LongestCommonPrefix(names),
	})
}
