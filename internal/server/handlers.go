package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"relayboard/internal/domain"
	"relayboard/internal/event"
)

const eventTimeLayout = "2006-01-02 15:04:05"

// handleRoot accepts repeater callbacks sent to the bare root (the legacy
// callback target). Anything without an event payload is pointed at the
// dashboard API.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.URL.Query().Has("EvNum") {
		s.handleEvent(w, r)
		return
	}
	http.Redirect(w, r, "/api/dashboard/connections", http.StatusFound)
}

// handleEvent ingests one repeater callback. The repeater is out of our
// control, so decoding is tolerant: events arrive as query strings, form
// posts, or flat JSON objects, and malformed fields degrade to defaults
// rather than rejecting the callback.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	values, err := eventValues(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, domain.ErrorResponse{Error: "malformed event payload"})
		return
	}

	e := event.Parse(values, time.Now())
	s.log.Debug("relay event", "kind", e.Kind, "code", e.Code, "viewer", e.ViewerAddr, "server", e.ServerAddr)

	if e.Kind != domain.KindRepeaterHeartbeat {
		// Audit writes must not be lost to a client hang-up mid-request.
		if err := s.store.RecordEvent(context.Background(), e); err != nil {
			s.log.Error("failed to audit relay event", "kind", e.Kind, "err", err)
		}
	}

	s.state.Apply(e)
	s.publishState()
	writeJSON(w, http.StatusOK, domain.EventAck{Status: "success"})
}

// eventValues extracts the flat key/value payload of a repeater callback.
func eventValues(r *http.Request) (url.Values, error) {
	if r.Method == http.MethodPost && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var fields map[string]any
		if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&fields); err != nil {
			return nil, err
		}
		values := url.Values{}
		for k, v := range fields {
			switch t := v.(type) {
			case string:
				values.Set(k, t)
			case float64:
				values.Set(k, strconv.FormatInt(int64(t), 10))
			case bool:
				values.Set(k, strconv.FormatBool(t))
			}
		}
		return values, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return r.Form, nil
}

func (s *Server) handleTakeSlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req domain.AuthorizeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, domain.ErrorResponse{Error: "invalid json"})
		return
	}

	serverSlot := s.advertisedHost(r) + ":" + strconv.Itoa(s.cfg.RepeaterServerPort)
	sess, err := s.state.Authorize(req.SerialID, remoteAddr(r), serverSlot)
	if err != nil {
		if errors.Is(err, domain.ErrMissingSerialID) {
			writeJSON(w, http.StatusBadRequest, domain.ErrorResponse{Error: "Missing serial_id"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, domain.ErrorResponse{Error: "internal error"})
		return
	}

	if err := s.store.RecordAuthSession(context.Background(), sess); err != nil {
		s.log.Error("failed to audit authorization", "session_id", sess.SessionID, "err", err)
	}
	s.log.Info("device authorized", "serial_id", sess.SerialID, "session_id", sess.SessionID, "client", sess.ClientAddr)

	s.publishState()
	writeJSON(w, http.StatusOK, domain.AuthorizeResponse{
		SessionID:  sess.SessionID,
		ServerSlot: sess.ServerSlot,
	})
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.connectionsSnapshot())
}

func (s *Server) handleRemoveConnection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rawID := trimPathID(r.URL.Path, "/api/dashboard/remove_connection/")
	sessionID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, domain.ErrorResponse{Error: "invalid session id"})
		return
	}

	if err := s.state.RemoveConnection(sessionID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, domain.ErrorResponse{Error: "Session not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, domain.ErrorResponse{Error: "internal error"})
		return
	}

	s.log.Info("connection removed", "session_id", sessionID)
	s.publishState()
	writeJSON(w, http.StatusOK, domain.EventAck{Status: "success"})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries := s.state.Activity()
	views := make([]domain.ActivityView, 0, len(entries))
	for _, a := range entries {
		views = append(views, domain.ActivityView{
			Timestamp: a.Timestamp,
			EventType: string(a.Kind),
			ViewerIP:  a.ViewerAddr,
			ServerIP:  a.ServerAddr,
			Code:      a.Code,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleEventsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events, err := s.store.RecentEvents(r.Context(), s.cfg.RecentEventLimit)
	if err != nil {
		s.log.Error("failed to list events", "err", err)
		writeJSON(w, http.StatusInternalServerError, domain.ErrorResponse{Error: "internal error"})
		return
	}

	views := make([]domain.EventView, 0, len(events))
	for _, e := range events {
		views = append(views, domain.EventView{
			ID:             e.ID,
			EventType:      string(e.Kind),
			Timestamp:      e.Timestamp.Format(eventTimeLayout),
			RepeaterPID:    e.RepeaterPID,
			ViewerIP:       e.ViewerAddr,
			ServerIP:       e.ServerAddr,
			ConnectionCode: e.Code,
			Mode:           e.Mode,
		})
	}
	writeJSON(w, http.StatusOK, views)
}
