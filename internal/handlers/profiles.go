package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/gluk-w/tmuxremote/internal/logutil"
	"github.com/gluk-w/tmuxremote/internal/profiles"
)

type profileRequest struct {
	Name       string `json:"name"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	PrivateKey string `json:"private_key"`
}

type profileResponse struct {
	profiles.Profile
	Address       string `json:"address"`
	HasPassword   bool   `json:"has_password"`
	HasPrivateKey bool   `json:"has_private_key"`
	State         string `json:"state"`
}

func toProfileResponse(p profiles.Profile) profileResponse {
	resp := profileResponse{
		Profile:       p,
		Address:       p.DisplayAddress(),
		HasPassword:   p.Password != "",
		HasPrivateKey: p.PrivateKey != "",
		State:         "disconnected",
	}
	if SSHMgr != nil {
		resp.State = SSHMgr.State(p.ID).String()
	}
	return resp
}

func ListProfiles(w http.ResponseWriter, r *http.Request) {
	if Profiles == nil {
		writeError(w, http.StatusServiceUnavailable, "Profile store not initialized")
		return
	}
	all, err := Profiles.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	resp := make([]profileResponse, len(all))
	for i, p := range all {
		resp[i] = toProfileResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

func CreateProfile(w http.ResponseWriter, r *http.Request) {
	if Profiles == nil {
		writeError(w, http.StatusServiceUnavailable, "Profile store not initialized")
		return
	}
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p := &profiles.Profile{
		Name:       strings.TrimSpace(req.Name),
		Host:       strings.TrimSpace(req.Host),
		Port:       req.Port,
		Username:   strings.TrimSpace(req.Username),
		Password:   req.Password,
		PrivateKey: req.PrivateKey,
	}
	if err := Profiles.Add(r.Context(), p); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProfileResponse(*p))
}

func GetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProfile(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// UpdateProfile replaces the profile's fields. Empty password and key
// fields keep the stored secrets. A live connection keeps using the old
// settings until it is reconnected.
func UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProfile(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != "" {
		p.Name = strings.TrimSpace(req.Name)
	}
	if req.Host != "" {
		p.Host = strings.TrimSpace(req.Host)
	}
	if req.Port != 0 {
		p.Port = req.Port
	}
	if req.Username != "" {
		p.Username = strings.TrimSpace(req.Username)
	}
	if req.Password != "" {
		p.Password = req.Password
	}
	if req.PrivateKey != "" {
		p.PrivateKey = req.PrivateKey
	}

	if err := Profiles.Update(r.Context(), p); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// DeleteProfile closes the profile's shells and connection before removing it.
func DeleteProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProfile(w, r)
	if !ok {
		return
	}
	if TermSessionMgr != nil {
		TermSessionMgr.CloseAllForProfile(p.ID)
	}
	if SSHMgr != nil {
		SSHMgr.Disconnect(p.ID)
	}
	if err := Profiles.Delete(r.Context(), p.ID); err != nil {
		writeErr(w, err)
		return
	}
	log.Printf("[profiles] deleted %s", logutil.SanitizeForLog(p.Name))
	w.WriteHeader(http.StatusNoContent)
}
