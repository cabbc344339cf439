package protocol

import (
	"encoding/json"
	"strings"
)

const (
	// Version is the IPC protocol version sent in the handshake.
	Version = 1

	// MaxPayloadSize bounds what a session accepts on read.
	MaxPayloadSize uint32 = 16 * 1024 * 1024

	CmdDispatch    = "DISPATCH"
	CmdSetActivity = "SET_ACTIVITY"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"

	EvtReady = "READY"
	EvtError = "ERROR"
)

// Handshake is the opening payload sent with the Handshake opcode.
type Handshake struct {
	V        int    `json:"v"`
	ClientID string `json:"client_id"`
}

// Command is one request frame payload.
type Command struct {
	Cmd   string `json:"cmd"`
	Args  any    `json:"args"`
	Nonce string `json:"nonce"`
}

// Response is one reply frame payload. Evt is nil when the peer omits it or sends null.
type Response struct {
	Cmd   string          `json:"cmd,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Evt   *string         `json:"evt,omitempty"`
	Nonce string          `json:"nonce,omitempty"`
}

// Event returns the evt field or "" when absent.
func (r Response) Event() string {
	if r.Evt == nil {
		return ""
	}
	return *r.Evt
}

// IsError reports whether the peer rejected the request at the application level.
func (r Response) IsError() bool {
	return strings.EqualFold(r.Event(), EvtError)
}

// ErrorData is the data object of an ERROR event, and the payload of a peer Close frame.
type ErrorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Err converts an ERROR response into a DiscordError.
func (r Response) Err() error {
	var data ErrorData
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &data); err != nil {
			return InvalidResponse("malformed error data: " + string(r.Data))
		}
	}
	return DiscordError(data.Code, data.Message)
}

// ActivityArgs are the SET_ACTIVITY arguments. A nil Activity clears the status.
type ActivityArgs struct {
	PID      int `json:"pid"`
	Activity any `json:"activity"`
}

// User is the subset of the READY user object kept for diagnostics.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	GlobalName    string `json:"global_name,omitempty"`
}

// ReadyConfig is the config object of the READY dispatch.
type ReadyConfig struct {
	CDNHost     string `json:"cdn_host"`
	APIEndpoint string `json:"api_endpoint"`
	Environment string `json:"environment"`
}

// ReadyData is the data object of the READY dispatch.
type ReadyData struct {
	V      int          `json:"v"`
	Config *ReadyConfig `json:"config,omitempty"`
	User   *User        `json:"user,omitempty"`
}
