package handlers

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gluk-w/tmuxremote/internal/sshmanager"
	"github.com/gluk-w/tmuxremote/internal/sshterminal"
	"github.com/gluk-w/tmuxremote/internal/sshtest"
)

type execRecord struct {
	Content  string               `json:"content"`
	Type     sshterminal.LineType `json:"type"`
	ExitCode *int                 `json:"exit_code"`
	Error    string               `json:"error"`
}

func execRecords(t *testing.T, body string) []execRecord {
	t.Helper()
	var out []execRecord
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		var rec execRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

func TestExecCommand_Streams(t *testing.T) {
	setupHandlers(t, sshmanager.Options{})
	p, _ := connectedProfile(t, sshtest.NewFakeTmux())
	path := "/api/v1/profiles/" + p.ID + "/exec"

	rec := do(t, http.MethodPost, path, map[string]string{"command": "echo hello world"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type = %q", ct)
	}
	records := execRecords(t, rec.Body.String())
	if len(records) != 3 {
		t.Fatalf("records = %+v", records)
	}
	if records[0].Type != sshterminal.LineCommand || records[0].Content != "$ echo hello world" {
		t.Errorf("echo record = %+v", records[0])
	}
	if records[1].Type != sshterminal.LineOutput || records[1].Content != "hello world" {
		t.Errorf("output record = %+v", records[1])
	}
	if records[2].ExitCode == nil || *records[2].ExitCode != 0 || records[2].Error != "" {
		t.Errorf("result record = %+v", records[2])
	}
}

func TestExecCommand_StderrAndExitCode(t *testing.T) {
	setupHandlers(t, sshmanager.Options{})
	p, _ := connectedProfile(t, sshtest.NewFakeTmux())

	rec := do(t, http.MethodPost, "/api/v1/profiles/"+p.ID+"/exec", map[string]string{"command": "frobnicate"})
	records := execRecords(t, rec.Body.String())
	if len(records) != 3 {
		t.Fatalf("records = %+v", records)
	}
	if records[1].Type != sshterminal.LineError || !strings.Contains(records[1].Content, "command not found") {
		t.Errorf("stderr record = %+v", records[1])
	}
	if records[2].ExitCode == nil || *records[2].ExitCode != 127 {
		t.Errorf("result record = %+v", records[2])
	}
}

func TestExecCommand_Validation(t *testing.T) {
	setupHandlers(t, sshmanager.Options{})
	p, _ := connectedProfile(t, sshtest.NewFakeTmux())

	if rec := do(t, http.MethodPost, "/api/v1/profiles/"+p.ID+"/exec", map[string]string{"command": "  "}); rec.Code != http.StatusBadRequest {
		t.Errorf("blank command = %d", rec.Code)
	}
}

func TestLineSplitter(t *testing.T) {
	var got []string
	s := &lineSplitter{typ: sshterminal.LineOutput, emit: func(l sshterminal.TerminalLine) {
		got = append(got, l.Content)
	}}
	s.write("one\ntw")
	s.write("o\r\nthr")
	s.write("ee")
	s.flush()
	s.flush()

	want := []string{"one", "two", "three"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", got, want)
	}
}
