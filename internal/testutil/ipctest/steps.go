package ipctest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/danmuck/presencectl/internal/protocol"
	"github.com/danmuck/presencectl/internal/protocol/frame"
)

// ReadyPayload is the READY dispatch a healthy desktop client sends.
var ReadyPayload = []byte(`{"cmd":"DISPATCH","evt":"READY","data":{"v":1,"config":{"cdn_host":"cdn.discordapp.com","api_endpoint":"//discord.com/api","environment":"production"},"user":{"id":"53908232506183680","username":"mason","discriminator":"0"}},"nonce":null}`)

// ExpectHandshake reads the Handshake frame and checks version and client id.
// An empty clientID accepts any id.
func ExpectHandshake(clientID string) Step {
	return func(p *Peer) error {
		f, err := p.Expect(frame.OpHandshake)
		if err != nil {
			return err
		}
		var hs protocol.Handshake
		if err := json.Unmarshal(f.Payload, &hs); err != nil {
			return fmt.Errorf("ipctest: bad handshake %q: %w", f.Payload, err)
		}
		if hs.V != protocol.Version {
			return fmt.Errorf("ipctest: handshake version got=%d", hs.V)
		}
		if clientID != "" && hs.ClientID != clientID {
			return fmt.Errorf("ipctest: handshake client_id got=%q want=%q", hs.ClientID, clientID)
		}
		return nil
	}
}

// Send writes one raw frame.
func Send(op frame.Opcode, payload []byte) Step {
	return func(p *Peer) error {
		return p.WriteFrame(op, payload)
	}
}

// SendRaw writes bytes verbatim, for truncated or malformed frames.
func SendRaw(b []byte) Step {
	return func(p *Peer) error {
		_, err := p.conn.Write(b)
		return err
	}
}

// SendReady writes the READY dispatch.
func SendReady() Step {
	return Send(frame.OpFrame, ReadyPayload)
}

// Handshake is the usual opening: accept the handshake and reply READY.
func Handshake(clientID string) Script {
	return Script{ExpectHandshake(clientID), SendReady()}
}

// Expect reads one frame of the given opcode. A non-nil want must match the payload.
func Expect(op frame.Opcode, want []byte) Step {
	return func(p *Peer) error {
		f, err := p.Expect(op)
		if err != nil {
			return err
		}
		if want != nil && !bytes.Equal(f.Payload, want) {
			return fmt.Errorf("ipctest: %s payload got=%q want=%q", op, f.Payload, want)
		}
		return nil
	}
}

// Reply reads one command and answers with fn's response.
func Reply(fn func(cmd protocol.Command) protocol.Response) Step {
	return func(p *Peer) error {
		f, err := p.Expect(frame.OpFrame)
		if err != nil {
			return err
		}
		var cmd protocol.Command
		if err := json.Unmarshal(f.Payload, &cmd); err != nil {
			return fmt.Errorf("ipctest: bad command %q: %w", f.Payload, err)
		}
		return p.WriteJSON(frame.OpFrame, fn(cmd))
	}
}

// Echo answers n commands with the same cmd and nonce.
func Echo(n int) Step {
	return func(p *Peer) error {
		for i := 0; i < n; i++ {
			err := Reply(func(cmd protocol.Command) protocol.Response {
				return protocol.Response{Cmd: cmd.Cmd, Nonce: cmd.Nonce, Data: json.RawMessage(`{}`)}
			})(p)
			if err != nil {
				return err
			}
		}
		return nil
	}
}

// Capture reads one command frame into dst without replying.
func Capture(dst *protocol.Command, raw *[]byte) Step {
	return func(p *Peer) error {
		f, err := p.Expect(frame.OpFrame)
		if err != nil {
			return err
		}
		if raw != nil {
			*raw = f.Payload
		}
		return json.Unmarshal(f.Payload, dst)
	}
}

// Hangup closes the connection.
func Hangup() Step {
	return func(p *Peer) error {
		return p.Close()
	}
}

// ErrorEvent builds an evt:"ERROR" response body.
func ErrorEvent(code int, message, nonce string) []byte {
	raw, _ := json.Marshal(map[string]any{
		"cmd":   protocol.CmdDispatch,
		"evt":   protocol.EvtError,
		"data":  protocol.ErrorData{Code: code, Message: message},
		"nonce": nonce,
	})
	return raw
}
