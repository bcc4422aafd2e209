package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/operate-experience/navsync/internal/channel"
	"github.com/operate-experience/navsync/internal/navigation"
	"github.com/operate-experience/navsync/internal/route"
	"github.com/operate-experience/navsync/pkg/types"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	AppID   string           `json:"appId"`
	Channel channel.Status   `json:"channel"`
	Router  navigation.Stats `json:"router"`
}

// LocationResponse is the body of GET /location and POST /back.
type LocationResponse struct {
	Current route.Location `json:"current"`
	Entries []string       `json:"entries"`
	Moved   *bool          `json:"moved,omitempty"`
}

// NavigateRequest is the body of POST /navigate.
type NavigateRequest struct {
	Route string `json:"route"`
}

// health handles GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"appId":     s.svc.AppID(),
		"connected": s.svc.ChannelStatus().Connected,
	})
}

// getStatus handles GET /status
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		AppID:   s.svc.AppID(),
		Channel: s.svc.ChannelStatus(),
		Router:  s.svc.RouterStats(),
	})
}

// reconnect handles POST /reconnect
func (s *Server) reconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Reconnect(); err != nil {
		if errors.Is(err, channel.ErrNotConnected) {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, s.svc.ChannelStatus())
}

// getHistory handles GET /history
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	history := s.svc.EventHistory()
	// Ensure we return an empty array [] instead of null
	if history == nil {
		history = []types.NavigationEvent{}
	}
	writeJSON(w, http.StatusOK, history)
}

// getLocation handles GET /location
func (s *Server) getLocation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.location(nil))
}

// navigate handles POST /navigate
func (s *Server) navigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	req.Route = strings.TrimSpace(req.Route)
	if req.Route == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "route is required")
		return
	}

	if err := s.svc.Navigate(req.Route); err != nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.location(nil))
}

// back handles POST /back
func (s *Server) back(w http.ResponseWriter, r *http.Request) {
	moved := s.svc.Back()
	writeJSON(w, http.StatusOK, s.location(&moved))
}

// getPage handles GET /page
func (s *Server) getPage(w http.ResponseWriter, r *http.Request) {
	state, ok := s.svc.PageState()
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "No page mounted")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) location(moved *bool) LocationResponse {
	entries := s.svc.Entries()
	if entries == nil {
		entries = []string{}
	}
	return LocationResponse{
		Current: s.svc.Location(),
		Entries: entries,
		Moved:   moved,
	}
}
