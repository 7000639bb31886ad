// Package protocol defines the JSON envelope exchanged over the control
// channel. One datagram carries exactly one Request or Response.
package protocol

// Command codes accepted on the control channel.
const (
	CmdAuth     = "AUTH"
	CmdCreate   = "CRT"
	CmdList     = "LST"
	CmdPost     = "MSG"
	CmdDelete   = "DLT"
	CmdRead     = "RDT"
	CmdEdit     = "EDT"
	CmdUpload   = "UPD"
	CmdDownload = "DWN"
	CmdRemove   = "RMV"
	CmdExit     = "XIT"
	CmdReport   = "RPT"
)

// Response statuses. A response always carries exactly one of these.
const (
	StatusOK           = "OK"
	StatusFail         = "FAIL"
	StatusPasswordNeed = "PWDNEED"
	StatusOnline       = "ONLINE"
	StatusError        = "ERROR"
	StatusExists       = "EXISTS"
	StatusEmpty        = "EMPTY"
	StatusNoThread     = "NO_THREAD"
	StatusNoMessage    = "NO_MSG"
	StatusForbidden    = "FORBIDDEN"
	StatusFileNotFound = "FILE_NOT_FOUND"
	StatusCorrupted    = "CORRUPTED"
	StatusNotOnline    = "NOT_ONLINE"
	StatusUpload       = "UPLOAD"
	StatusFileFound    = "FILE_FOUND"
	StatusMalformed    = "MALFORMED"
	StatusAuthRequired = "AUTH_REQUIRED"
)

// Auth response types (first field the client branches on during login).
const (
	TypeOnline      = "ONLINE"
	TypeKnownUser   = "OLD"
	TypeNewUser     = "NEW"
	TypeLoginOK     = "OLD_SUC"
	TypeRegistered  = "NEW_SUC"
	TypeBadPassword = "PWD"
)

// Request is the client-to-server envelope. RequestId is a client-generated
// identifier used to correlate the response and to deduplicate retransmitted
// mutations.
type Request struct {
	RequestId string `json:"request_id" validate:"required"`
	Command   string `json:"command" validate:"required,oneof=AUTH CRT LST MSG DLT RDT EDT UPD DWN RMV XIT RPT"`
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password,omitempty"`
	Token     string `json:"token,omitempty"`

	ThreadTitle string `json:"thread_title,omitempty"`
	Message     string `json:"message,omitempty"`
	MessageId   int    `json:"message_id,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	FileSize    int64  `json:"file_size,omitempty" validate:"gte=0"`
	Report      string `json:"report,omitempty"`
}

// Response is the server-to-client envelope. RequestId echoes the request it
// answers so the client can discard stale duplicates.
type Response struct {
	RequestId string   `json:"request_id"`
	Status    string   `json:"status"`
	Type      string   `json:"type,omitempty"`
	Token     string   `json:"token,omitempty"`
	Threads   []string `json:"threads,omitempty"`
	Messages  []string `json:"messages,omitempty"`
	FileSize  int64    `json:"file_size,omitempty"`
}

// Ok reports whether the response is a success for its exchange. UPLOAD and
// FILE_FOUND are successful negotiation replies, not errors.
func (r *Response) Ok() bool {
	switch r.Status {
	case StatusOK, StatusUpload, StatusFileFound, StatusPasswordNeed:
		return true
	}
	return false
}
