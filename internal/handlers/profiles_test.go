package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/gluk-w/tmuxremote/internal/sshmanager"
)

func TestProfiles_CRUD(t *testing.T) {
	setupHandlers(t, sshmanager.Options{})

	rec := do(t, http.MethodPost, "/api/v1/profiles", map[string]interface{}{
		"name":     "web",
		"host":     "web.internal",
		"username": "deploy",
		"password": "hunter2",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Errorf("create response leaks password: %s", rec.Body.String())
	}
	var created profileResponse
	decode(t, rec, &created)
	if created.ID == "" || created.Port != 22 || !created.HasPassword || created.HasPrivateKey {
		t.Errorf("created = %+v", created)
	}
	if created.Address != "web.internal" || created.State != "disconnected" {
		t.Errorf("address, state = %q, %q", created.Address, created.State)
	}

	var list []profileResponse
	decode(t, do(t, http.MethodGet, "/api/v1/profiles", nil), &list)
	if len(list) != 1 || list[0].Name != "web" {
		t.Fatalf("list = %+v", list)
	}

	// By name works as well as by ID.
	if rec := do(t, http.MethodGet, "/api/v1/profiles/web", nil); rec.Code != http.StatusOK {
		t.Errorf("get by name = %d", rec.Code)
	}

	rec = do(t, http.MethodPut, "/api/v1/profiles/"+created.ID, map[string]interface{}{"port": 2222})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	stored, _, _ := Profiles.Get(context.Background(), created.ID)
	if stored.Port != 2222 || stored.Password != "hunter2" {
		t.Errorf("after update = %+v", stored)
	}

	if rec := do(t, http.MethodDelete, "/api/v1/profiles/"+created.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	rec = do(t, http.MethodGet, "/api/v1/profiles/"+created.ID, nil)
	if rec.Code != http.StatusNotFound || detail(t, rec) == "" {
		t.Errorf("get deleted = %d %s", rec.Code, rec.Body.String())
	}
}

func TestProfiles_Rejections(t *testing.T) {
	setupHandlers(t, sshmanager.Options{})

	valid := map[string]interface{}{"name": "web", "host": "h", "username": "u", "password": "p"}
	if rec := do(t, http.MethodPost, "/api/v1/profiles", valid); rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}

	tests := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"duplicate", valid, http.StatusConflict},
		{"no host", map[string]interface{}{"name": "a", "username": "u", "password": "p"}, http.StatusBadRequest},
		{"no secret", map[string]interface{}{"name": "b", "host": "h", "username": "u"}, http.StatusBadRequest},
		{"bad port", map[string]interface{}{"name": "c", "host": "h", "port": 70000, "username": "u", "password": "p"}, http.StatusBadRequest},
		{"unknown field", map[string]interface{}{"name": "d", "hostname": "h"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, http.MethodPost, "/api/v1/profiles", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if rec := do(t, http.MethodPut, "/api/v1/profiles/missing", valid); rec.Code != http.StatusNotFound {
		t.Errorf("update missing = %d", rec.Code)
	}
}
