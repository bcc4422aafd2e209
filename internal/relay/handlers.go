package relay

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/operate-experience/navsync/internal/server"
	"github.com/operate-experience/navsync/pkg/types"
)

// PublishResponse is the body of a successful POST /api/navigate.
type PublishResponse struct {
	ID    string                `json:"id"`
	Event types.NavigationEvent `json:"event"`
}

// health handles GET /health
func (r *Relay) health(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	clients := len(r.clients)
	history := len(r.history)
	r.mu.RUnlock()

	server.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": clients,
		"history": history,
	})
}

// getHistory handles GET /api/history
func (r *Relay) getHistory(w http.ResponseWriter, req *http.Request) {
	server.WriteJSON(w, http.StatusOK, r.History())
}

// getClients handles GET /api/clients
func (r *Relay) getClients(w http.ResponseWriter, req *http.Request) {
	server.WriteJSON(w, http.StatusOK, r.Clients())
}

// navigate handles POST /api/navigate
func (r *Relay) navigate(w http.ResponseWriter, req *http.Request) {
	var ev types.NavigationEvent
	if err := json.NewDecoder(req.Body).Decode(&ev); err != nil {
		server.WriteError(w, http.StatusBadRequest, server.ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	ev.TargetAppID = strings.TrimSpace(ev.TargetAppID)
	if ev.TargetAppID == "" {
		server.WriteErrorWithDetails(w, http.StatusBadRequest, server.ErrCodeInvalidRequest,
			"targetAppId is required", map[string]any{"field": "targetAppId"})
		return
	}
	if ev.Action == "" {
		ev.Action = types.ActionNavigate
	}
	if ev.Action == types.ActionNavigate && strings.TrimSpace(ev.Route) == "" {
		server.WriteErrorWithDetails(w, http.StatusBadRequest, server.ErrCodeInvalidRequest,
			"route is required for NAVIGATE", map[string]any{"field": "route"})
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = types.MillisFromTime(time.Now())
	}

	id, err := r.Publish(ev)
	if err != nil {
		server.WriteError(w, http.StatusInternalServerError, server.ErrCodeInternalError, err.Error())
		return
	}
	server.WriteJSON(w, http.StatusAccepted, PublishResponse{ID: id, Event: ev})
}

// stream handles GET /api/sse
func (r *Relay) stream(w http.ResponseWriter, req *http.Request) {
	info := ClientInfo{
		ID:          ulid.Make().String(),
		RemoteAddr:  req.RemoteAddr,
		ConnectedAt: time.Now(),
		LastEventID: req.Header.Get("Last-Event-ID"),
	}
	log := r.log.With().Str("clientId", info.ID).Logger()

	messages, history, err := r.subscribe(req.Context(), info)
	if err != nil {
		server.WriteError(w, http.StatusServiceUnavailable, server.ErrCodeInternalError, err.Error())
		return
	}
	defer r.unsubscribe(info.ID)

	sse, err := server.NewSSEWriter(w)
	if err != nil {
		server.WriteError(w, http.StatusInternalServerError, server.ErrCodeInternalError, err.Error())
		return
	}
	sse.SetWriteTimeout(r.config.WriteTimeout)

	log.Info().
		Str("remoteAddr", info.RemoteAddr).
		Str("lastEventId", info.LastEventID).
		Msg("client connected")
	defer func() { log.Info().Msg("client disconnected") }()

	for _, env := range []types.Envelope{
		types.ConnectionAck{ClientID: info.ID},
		types.History{Events: history},
	} {
		data, err := types.MarshalEnvelope(env)
		if err != nil {
			log.Error().Err(err).Msg("encode envelope")
			return
		}
		if err := sse.WriteRaw(ulid.Make().String(), "", data); err != nil {
			return
		}
	}

	ticker := time.NewTicker(r.config.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-req.Context().Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			err := sse.WriteRaw(msg.UUID, "", msg.Payload)
			msg.Ack()
			if err != nil {
				return
			}
		case <-ticker.C:
			if err := sse.WriteHeartbeat(); err != nil {
				return
			}
		}
	}
}
