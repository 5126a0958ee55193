package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/cadre-oss/statecast/internal/errors"
	"github.com/cadre-oss/statecast/internal/event"
	"github.com/cadre-oss/statecast/internal/state"
	"github.com/cadre-oss/statecast/internal/store"
)

const keepAliveInterval = 30 * time.Second

// --- Helpers ---

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	jsonResponse(w, status, map[string]string{"error": msg})
}

// codedError writes a coded error with the status its code maps to.
func codedError(w http.ResponseWriter, err error) {
	code := errors.AsCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeInvalidEvent:
		status = http.StatusBadRequest
	case errors.CodeNotFound:
		status = http.StatusNotFound
	}
	body := map[string]string{"error": err.Error()}
	if code != "" {
		body["code"] = code
	}
	if s := errors.Suggestion(err); s != "" {
		body["suggestion"] = s
	}
	jsonResponse(w, status, body)
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit: %q", raw)
	}
	return n, nil
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"version":        s.cfg.Version,
		"name":           s.cfg.Name,
		"subscribers":    s.hub.SubscriberCount(),
		"stream_clients": s.broker.ClientCount(),
	})
}

// --- State ---

type stateResponse struct {
	State state.State  `json:"state"`
	Event *state.Event `json:"event"`
}

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	reg := s.hub.Registry()
	current, _ := reg.Current()
	resp := stateResponse{State: current}
	if ev, ok := reg.Latest(); ok {
		resp.Event = &ev
	}
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	reg := s.hub.Registry()
	var events []state.Event
	if limit > 0 {
		events = reg.Recent(limit)
	} else {
		events = reg.History()
	}
	if events == nil {
		events = []state.Event{}
	}
	jsonResponse(w, http.StatusOK, events)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, _ *http.Request) {
	s.hub.Registry().Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	var p state.Partial
	if err := decodeJSON(r, &p); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	ev, err := s.hub.Emit(p)
	if err != nil {
		codedError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, ev)
}

// actionRequest is the body of POST /api/state/actions.
type actionRequest struct {
	Actor        string         `json:"actor"`
	Action       string         `json:"action"`
	Confidence   *float64       `json:"confidence,omitempty"`
	RequiresUser bool           `json:"requires_user,omitempty"`
	Message      string         `json:"message,omitempty"`
	Context      state.Metadata `json:"context,omitempty"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Action == "" {
		jsonError(w, http.StatusBadRequest, "action is required")
		return
	}

	ev, err := s.translator.EmitAction(req.Actor, req.Action, event.ActionOptions{
		Confidence:   req.Confidence,
		RequiresUser: req.RequiresUser,
		Message:      req.Message,
		Context:      req.Context,
	})
	if err != nil {
		codedError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, ev)
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, s.hub.Reset())
}

// --- Transitions ---

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, http.StatusNotFound, "no transition store configured")
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := store.Query{Actor: r.URL.Query().Get("actor"), Limit: limit}
	if raw := r.URL.Query().Get("state"); raw != "" {
		st, err := state.ParseState(raw)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		q.State = st
	}

	events, err := s.store.List(r.Context(), q)
	if err != nil {
		codedError(w, errors.Wrap(errors.CodeStoreError, "failed to list transitions", err))
		return
	}
	if events == nil {
		events = []state.Event{}
	}
	jsonResponse(w, http.StatusOK, events)
}

// --- SSE Stream ---

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	client := s.broker.Subscribe(r.Context(), clientID)
	if s.metrics != nil {
		defer s.metrics.SSEConnected()()
	}
	s.logger.Debug("Stream client connected", "client", clientID, "request_id", middleware.GetReqID(r.Context()))

	// Send initial connected event carrying the current state.
	hello := SSEEvent{Type: "connected", Timestamp: time.Now(), Data: map[string]interface{}{"client_id": clientID}}
	if ev, ok := s.hub.Registry().Latest(); ok {
		hello.Data = map[string]interface{}{"client_id": clientID, "event": ev}
	}
	writeEvent(w, hello)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("Stream client disconnected", "client", clientID)
			return
		case <-s.broker.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-client.Events:
			if !writeEvent(w, ev) {
				continue
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev SSEEvent) bool {
	data, err := WriteSSE(ev)
	if err != nil {
		return false
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	return true
}
