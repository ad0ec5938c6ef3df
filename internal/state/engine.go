package state

import (
	"time"

	"relayboard/internal/domain"
)

// Apply runs one normalized event through the correlation state machine.
// It never fails: events that reference unknown codes or arrive out of wire
// order degrade to logged no-ops. Heartbeats only refresh the relay liveness
// clock and stay out of the activity ring.
func (s *State) Apply(e domain.Event) {
	if e.Kind == domain.KindRepeaterHeartbeat {
		s.MarkRelayHeartbeat(time.Now())
		s.log.Debug("relay heartbeat")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendActivityLocked(e)

	switch e.Kind {
	case domain.KindViewerConnect:
		s.viewerConnectLocked(e.Code, e.ViewerAddr)
	case domain.KindViewerDisconnect:
		s.viewerDisconnectLocked(e.Code)
	case domain.KindServerConnect:
		s.serverConnectLocked(e)
	case domain.KindServerDisconnect:
		s.serverDisconnectLocked(e)
	case domain.KindSessionStart:
		s.sessionStartLocked(e)
	case domain.KindSessionEnd:
		s.sessionEndLocked(e)
	default:
		// Startup, shutdown, and unknown kinds are activity-log only.
		s.log.Info("relay event recorded", "kind", e.Kind, "code", e.Code)
	}
}

func (s *State) viewerConnectLocked(code int, viewerAddr string) {
	dc := s.dashboardByCodeLocked(code)
	if dc == nil {
		s.log.Debug("viewer connect for unlinked code", "code", code)
		return
	}
	dc.ViewerConnected = true
	dc.ViewerAddr = displayViewerAddr(viewerAddr)
	s.log.Info("viewer connected", "session_id", dc.SessionID, "code", code, "viewer", dc.ViewerAddr)
}

func (s *State) viewerDisconnectLocked(code int) {
	dc := s.dashboardByCodeLocked(code)
	if dc == nil {
		s.log.Debug("viewer disconnect for unlinked code", "code", code)
		return
	}
	dc.ViewerConnected = false
	dc.ViewerAddr = ""
	s.log.Info("viewer disconnected", "session_id", dc.SessionID, "code", code)
}

// serverConnectLocked attempts to link the connecting VNC server to a
// pending authorization by address, then records the relay session.
//
// The linking heuristic is an explicit O(n) scan over pending authorization
// sessions in creation order: the first entry whose client address equals
// the event's server address and whose code is still unset wins. Sessions
// sharing a client address therefore correlate first-created-first, a known
// limitation of address-based matching.
func (s *State) serverConnectLocked(e domain.Event) {
	var match *domain.AuthSession
	for _, sess := range s.auth {
		if sess.Code == nil && sess.ClientAddr == e.ServerAddr {
			match = sess
			break
		}
	}

	var linked int64
	if match != nil {
		code := e.Code
		match.Code = &code
		s.links[e.Code] = match.SessionID
		linked = match.SessionID
		if dc := s.dashboard[match.SessionID]; dc != nil {
			dcCode := e.Code
			dc.ServerConnected = true
			dc.ServerAddr = e.ServerAddr
			dc.Code = &dcCode
		}
		s.log.Info("authorization linked to relay connection",
			"session_id", match.SessionID, "code", e.Code, "server", e.ServerAddr)
	} else {
		// Accepted degraded mode: the relay session proceeds unlinked.
		s.log.Warn("no pending authorization matches server connect",
			"server", e.ServerAddr, "code", e.Code)
	}

	s.relay[e.Code] = &domain.RelaySession{
		Code:            e.Code,
		ServerAddr:      e.ServerAddr,
		Mode:            e.Mode,
		StartTime:       e.Timestamp,
		ServerSlot:      e.ServerSlot,
		ViewerSlot:      -1,
		Status:          domain.RelayStatusWaitingForViewer,
		LinkedSessionID: linked,
	}
}

func (s *State) serverDisconnectLocked(e domain.Event) {
	if dc := s.dashboardByCodeLocked(e.Code); dc != nil {
		dc.ServerConnected = false
		dc.ServerAddr = ""
		// Release the code so a reissued one resolves to a single card.
		dc.Code = nil
	}

	if sid, ok := s.links[e.Code]; ok {
		if sess := s.authByID[sid]; sess != nil {
			sess.Status = domain.AuthStatusServerDisconnected
			// Invariant: the session code is non-nil only while linked.
			sess.Code = nil
		}
		delete(s.links, e.Code)
		s.log.Info("relay link invalidated", "session_id", sid, "code", e.Code)
	}

	if _, ok := s.relay[e.Code]; ok {
		delete(s.relay, e.Code)
		s.log.Info("relay session removed", "code", e.Code)
	}
}

func (s *State) sessionStartLocked(e domain.Event) {
	// The viewer attached: the authorization claim is consumed.
	if sid, ok := s.links[e.Code]; ok {
		s.removeAuthSessionLocked(sid)
		delete(s.links, e.Code)
		if s.auditor != nil {
			s.auditor.AuthSessionUsed(sid)
		}
		s.log.Info("authorization consumed by viewer attach", "session_id", sid, "code", e.Code)
	} else {
		s.log.Debug("session start without link", "code", e.Code)
	}

	if rs := s.relay[e.Code]; rs != nil {
		rs.ViewerAddr = e.ViewerAddr
		rs.ViewerSlot = e.ViewerSlot
		rs.Status = domain.RelayStatusActive
	} else {
		// No server connect was seen for this code; synthesize the session
		// from what the start event carries.
		s.relay[e.Code] = &domain.RelaySession{
			Code:       e.Code,
			ServerAddr: e.ServerAddr,
			ViewerAddr: e.ViewerAddr,
			Mode:       e.Mode,
			StartTime:  e.Timestamp,
			ServerSlot: e.ServerSlot,
			ViewerSlot: e.ViewerSlot,
			Status:     domain.RelayStatusActive,
		}
		s.log.Warn("session start for unseen server, session synthesized", "code", e.Code)
	}

	s.viewerConnectLocked(e.Code, e.ViewerAddr)
}

func (s *State) sessionEndLocked(e domain.Event) {
	s.viewerDisconnectLocked(e.Code)

	// Resolve the dashboard card via the link table first, falling back to
	// a scan by connection code.
	sid, ok := s.links[e.Code]
	if !ok {
		if dc := s.dashboardByCodeLocked(e.Code); dc != nil {
			sid = dc.SessionID
			ok = true
		}
	}
	if ok {
		delete(s.dashboard, sid)
		s.removeAuthSessionLocked(sid)
		delete(s.links, e.Code)
		s.log.Info("session ended, dashboard connection removed", "session_id", sid, "code", e.Code)
	}

	if rs := s.relay[e.Code]; rs != nil {
		duration := e.Timestamp.Sub(rs.StartTime)
		delete(s.relay, e.Code)
		s.log.Info("relay session ended", "code", e.Code, "duration", duration)
	}
}

func (s *State) dashboardByCodeLocked(code int) *domain.DashboardConnection {
	for _, dc := range s.dashboard {
		if dc.Code != nil && *dc.Code == code {
			return dc
		}
	}
	return nil
}
