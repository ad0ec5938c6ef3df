package domain

// AuthorizeRequest is the JSON body sent by a device to claim a server slot.
type AuthorizeRequest struct {
	SerialID string `json:"serial_id"`
}

// AuthorizeResponse is the JSON body returned on successful authorization.
type AuthorizeResponse struct {
	SessionID  int64  `json:"session_id"`
	ServerSlot string `json:"server_slot"`
}

// ErrorResponse is the JSON body returned for structured errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// EventAck is the JSON body returned after an inbound relay event was
// processed (or tolerated).
type EventAck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ConnectionView is the dashboard projection of one session.
type ConnectionView struct {
	SessionID       int64  `json:"session_id"`
	SerialID        string `json:"serial_id"`
	ClientIP        string `json:"client_ip"`
	ServerConnected bool   `json:"server_connected"`
	ServerIP        string `json:"server_ip"`
	ViewerConnected bool   `json:"viewer_connected"`
	ViewerIP        string `json:"viewer_ip"`
	ConnectionCode  *int   `json:"connection_code"`
	CreatedTime     int64  `json:"created_time"`
}

// ServiceStatus reports per-subsystem liveness alongside the connection list.
type ServiceStatus struct {
	Repeater bool `json:"repeater"`
	Bridge   bool `json:"bridge"`
}

// ConnectionsResponse is the JSON body of the dashboard connections query and
// of the live dashboard feed.
type ConnectionsResponse struct {
	Connections   []ConnectionView `json:"connections"`
	ServiceStatus ServiceStatus    `json:"service_status"`
}

// ActivityView is one recent-activity line as served to the dashboard.
type ActivityView struct {
	Timestamp string `json:"timestamp"`
	EventType string `json:"event_type"`
	ViewerIP  string `json:"viewer_ip"`
	ServerIP  string `json:"server_ip"`
	Code      int    `json:"connection_code"`
}

// EventView is one persisted relay event as served to the events page.
type EventView struct {
	ID             string `json:"id"`
	EventType      string `json:"event_type"`
	Timestamp      string `json:"timestamp"`
	RepeaterPID    int    `json:"repeater_pid"`
	ViewerIP       string `json:"viewer_ip"`
	ServerIP       string `json:"server_ip"`
	ConnectionCode int    `json:"connection_code"`
	Mode           int    `json:"mode"`
}
