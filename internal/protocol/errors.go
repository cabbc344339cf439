package protocol

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category groups error kinds by the layer that produced them.
type Category int

const (
	CategoryConnection Category = iota + 1
	CategoryProtocol
	CategorySerialization
	CategoryApplication
)

func (c Category) String() string {
	switch c {
	case CategoryConnection:
		return "connection"
	case CategoryProtocol:
		return "protocol"
	case CategorySerialization:
		return "serialization"
	case CategoryApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Kind is the closed set of IPC failure kinds.
type Kind int

const (
	KindConnectionFailed Kind = iota + 1
	KindSocketDiscoveryFailed
	KindConnectionTimeout
	KindNoValidSocket
	KindHandshakeFailed
	KindProtocolViolation
	KindInvalidOpcode
	KindSerializationFailed
	KindDeserializationFailed
	KindInvalidResponse
	KindDiscordError
	KindSocketClosed
	KindInvalidActivity
)

var kindNames = map[Kind]string{
	KindConnectionFailed:      "connection failed",
	KindSocketDiscoveryFailed: "socket discovery failed",
	KindConnectionTimeout:     "connection timeout",
	KindNoValidSocket:         "no valid socket",
	KindHandshakeFailed:       "handshake failed",
	KindProtocolViolation:     "protocol violation",
	KindInvalidOpcode:         "invalid opcode",
	KindSerializationFailed:   "serialization failed",
	KindDeserializationFailed: "deserialization failed",
	KindInvalidResponse:       "invalid response",
	KindDiscordError:          "discord error",
	KindSocketClosed:          "socket closed",
	KindInvalidActivity:       "invalid activity",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Category reports which layer a kind belongs to.
func (k Kind) Category() Category {
	switch k {
	case KindConnectionFailed, KindSocketDiscoveryFailed, KindConnectionTimeout,
		KindNoValidSocket, KindSocketClosed:
		return CategoryConnection
	case KindHandshakeFailed, KindProtocolViolation, KindInvalidOpcode, KindInvalidResponse:
		return CategoryProtocol
	case KindSerializationFailed, KindDeserializationFailed:
		return CategorySerialization
	case KindDiscordError, KindInvalidActivity:
		return CategoryApplication
	default:
		return 0
	}
}

// Recoverable reports whether reconnecting or retrying can resolve the failure.
// Only connection-category kinds are recoverable.
func (k Kind) Recoverable() bool {
	return k.Category() == CategoryConnection
}

// Error is the typed error returned by every fallible IPC operation.
type Error struct {
	Kind    Kind
	Message string
	// Code is the remote error code for KindDiscordError and peer Close frames.
	Code int
	// Opcode is the raw opcode for KindInvalidOpcode.
	Opcode uint32
	// Timeout is the configured bound for KindConnectionTimeout.
	Timeout time.Duration
	// Paths lists every attempted endpoint address for KindSocketDiscoveryFailed.
	Paths []string
	// Payload holds the raw frame payload when it helps diagnosis.
	Payload []byte
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("ipc: ")
	b.WriteString(e.Kind.String())
	switch e.Kind {
	case KindDiscordError:
		fmt.Fprintf(&b, ": code=%d message=%q", e.Code, e.Message)
		return b.String()
	case KindConnectionTimeout:
		fmt.Fprintf(&b, " after %s", e.Timeout)
	case KindInvalidOpcode:
		fmt.Fprintf(&b, ": %d", e.Opcode)
	case KindSocketDiscoveryFailed:
		if len(e.Paths) > 0 {
			fmt.Fprintf(&b, " (tried %s)", strings.Join(e.Paths, ", "))
		}
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the exported sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) Category() Category { return e.Kind.Category() }

func (e *Error) Recoverable() bool { return e.Kind.Recoverable() }

var (
	ErrConnectionFailed      = &Error{Kind: KindConnectionFailed}
	ErrSocketDiscoveryFailed = &Error{Kind: KindSocketDiscoveryFailed}
	ErrConnectionTimeout     = &Error{Kind: KindConnectionTimeout}
	ErrNoValidSocket         = &Error{Kind: KindNoValidSocket}
	ErrHandshakeFailed       = &Error{Kind: KindHandshakeFailed}
	ErrProtocolViolation     = &Error{Kind: KindProtocolViolation}
	ErrInvalidOpcode         = &Error{Kind: KindInvalidOpcode}
	ErrSerializationFailed   = &Error{Kind: KindSerializationFailed}
	ErrDeserializationFailed = &Error{Kind: KindDeserializationFailed}
	ErrInvalidResponse       = &Error{Kind: KindInvalidResponse}
	ErrDiscordError          = &Error{Kind: KindDiscordError}
	ErrSocketClosed          = &Error{Kind: KindSocketClosed}
	ErrInvalidActivity       = &Error{Kind: KindInvalidActivity}
)

func ConnectionFailed(err error, address string) *Error {
	return &Error{Kind: KindConnectionFailed, Message: address, Err: err}
}

func SocketDiscoveryFailed(paths []string, last error) *Error {
	return &Error{Kind: KindSocketDiscoveryFailed, Paths: append([]string(nil), paths...), Err: last}
}

func ConnectionTimeout(timeout time.Duration, last error) *Error {
	return &Error{Kind: KindConnectionTimeout, Timeout: timeout, Err: last}
}

func NoValidSocket() *Error {
	return &Error{Kind: KindNoValidSocket, Message: "no IPC endpoint found, is the desktop client running?"}
}

func HandshakeFailed(message string, payload []byte) *Error {
	return &Error{Kind: KindHandshakeFailed, Message: message, Payload: payload}
}

func ProtocolViolation(message string, err error) *Error {
	return &Error{Kind: KindProtocolViolation, Message: message, Err: err}
}

func InvalidOpcode(op uint32) *Error {
	return &Error{Kind: KindInvalidOpcode, Opcode: op}
}

func SerializationFailed(err error) *Error {
	return &Error{Kind: KindSerializationFailed, Err: err}
}

func DeserializationFailed(err error, payload []byte) *Error {
	return &Error{Kind: KindDeserializationFailed, Err: err, Payload: payload}
}

func InvalidResponse(message string) *Error {
	return &Error{Kind: KindInvalidResponse, Message: message}
}

func DiscordError(code int, message string) *Error {
	return &Error{Kind: KindDiscordError, Code: code, Message: message}
}

func SocketClosed(err error) *Error {
	return &Error{Kind: KindSocketClosed, Err: err}
}

func InvalidActivity(message string) *Error {
	return &Error{Kind: KindInvalidActivity, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CategoryOf returns the category of the first *Error in err's chain, or 0.
func CategoryOf(err error) Category {
	return KindOf(err).Category()
}

// IsRecoverable reports whether err is a connection-category IPC error.
func IsRecoverable(err error) bool {
	return KindOf(err).Recoverable()
}

// AsDiscordError extracts the remote code and message from an application rejection.
func AsDiscordError(err error) (code int, message string, ok bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindDiscordError {
		return e.Code, e.Message, true
	}
	return 0, "", false
}
