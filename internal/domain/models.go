// Package domain defines the core data types shared across the relayboard
// server, state engine, and audit store layers.
package domain

import "time"

// EventKind identifies one relay lifecycle event. The repeater reports events
// by numeric code; the normalizer maps unknown codes to [KindUnknown].
type EventKind string

const (
	KindViewerConnect     EventKind = "VIEWER_CONNECT"
	KindViewerDisconnect  EventKind = "VIEWER_DISCONNECT"
	KindServerConnect     EventKind = "SERVER_CONNECT"
	KindServerDisconnect  EventKind = "SERVER_DISCONNECT"
	KindSessionStart      EventKind = "VIEWER_SERVER_SESSION_START"
	KindSessionEnd        EventKind = "VIEWER_SERVER_SESSION_END"
	KindRepeaterStartup   EventKind = "REPEATER_STARTUP"
	KindRepeaterShutdown  EventKind = "REPEATER_SHUTDOWN"
	KindRepeaterHeartbeat EventKind = "REPEATER_HEARTBEAT"
	KindUnknown           EventKind = "UNKNOWN"
)

// Event is one normalized repeater callback record. Events are constructed by
// the normalizer, applied once to the state engine, and discarded.
type Event struct {
	Kind        EventKind
	Timestamp   time.Time
	RepeaterPID int
	ViewerAddr  string
	ServerAddr  string
	Code        int // relay-assigned connection code, reusable after release
	Mode        int
	ViewerSlot  int
	ServerSlot  int
	MaxSessions int
}

// Authorization session status constants.
const (
	AuthStatusReady              = "ready"
	AuthStatusServerDisconnected = "server_disconnected"
)

// Relay session status constants.
const (
	RelayStatusWaitingForViewer = "waiting_for_viewer"
	RelayStatusActive           = "active"
)

// Durable authorization record status constants.
const (
	AuthRecordPending = "pending"
	AuthRecordUsed    = "used"
	AuthRecordExpired = "expired"
)

// AuthSession is a pending claim created by a device authorization request,
// awaiting correlation with a relay connection.
type AuthSession struct {
	SessionID  int64 // generated 10-digit identifier
	SerialID   string
	ClientAddr string
	ServerSlot string // endpoint the device must dial
	CreatedAt  time.Time
	Status     string
	Code       *int // nil until the session is linked to a relay connection
}

// RelaySession is one live relay-mediated connection, keyed by its code.
type RelaySession struct {
	Code            int
	ServerAddr      string
	ViewerAddr      string
	Mode            int
	StartTime       time.Time
	ServerSlot      int
	ViewerSlot      int
	Status          string
	LinkedSessionID int64 // 0 when the connection was never matched
}

// DashboardConnection is the presentation-facing projection of a session's
// live status, keyed by session id.
type DashboardConnection struct {
	SessionID       int64
	SerialID        string
	ClientAddr      string
	ServerConnected bool
	ServerAddr      string
	ViewerConnected bool
	ViewerAddr      string
	Code            *int
	CreatedAt       time.Time
}

// ActivityEntry is one line of the bounded recent-activity ring.
type ActivityEntry struct {
	Timestamp  string // wall clock, HH:MM:SS
	Kind       EventKind
	ViewerAddr string
	ServerAddr string
	Code       int
}

// AuditEvent is a persisted relay event as read back from the audit log.
type AuditEvent struct {
	ID          string
	Kind        EventKind
	Timestamp   time.Time
	RepeaterPID int
	ViewerAddr  string
	ServerAddr  string
	Code        int
	Mode        int
}

// AuthRecord is a persisted device authorization as read back from the audit
// log, including its eventual consumption or expiry marker.
type AuthRecord struct {
	ID         string
	SerialID   string
	SessionID  int64
	ClientAddr string
	ServerSlot string
	Status     string
	CreatedAt  time.Time
	UsedAt     *time.Time
}
