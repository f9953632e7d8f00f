// Package ipc carries the single-line JSON command protocol between the
// drillcoach CLI and the running capture session.
package ipc

// Request is one command sent by a CLI invocation.
type Request struct {
	Command string `json:"command"`
}

// Response reports command outcome plus the session state snapshot. Failed
// responses carry a stable reason code alongside the human-readable error so
// callers can branch without parsing text.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Device  string `json:"device,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Reason codes for failed responses.
const (
	CodeBadRequest  = "bad_request"
	CodeUnsupported = "unsupported"
	CodeBusy        = "busy"
	CodeBadState    = "bad_state"
)
