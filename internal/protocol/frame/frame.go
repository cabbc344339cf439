package frame

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/danmuck/presencectl/internal/protocol"
)

// HeaderLen is the fixed wire header: opcode u32 LE, length u32 LE.
const HeaderLen = 8

// Opcode identifies the frame kind. The codec passes unknown values through.
type Opcode uint32

const (
	OpHandshake Opcode = 0
	OpFrame     Opcode = 1
	OpClose     Opcode = 2
	OpPing      Opcode = 3
	OpPong      Opcode = 4
)

func (o Opcode) String() string {
	switch o {
	case OpHandshake:
		return "handshake"
	case OpFrame:
		return "frame"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return fmt.Sprintf("Opcode(%d)", uint32(o))
	}
}

// Known reports whether o is one of the five defined opcodes.
func (o Opcode) Known() bool {
	return o <= OpPong
}

var (
	ErrShortHeader      = errors.New("frame: short header")
	ErrTruncatedPayload = errors.New("frame: truncated payload")
	ErrInvalidUTF8      = errors.New("frame: payload is not valid utf-8")
	ErrPayloadTooLarge  = errors.New("frame: payload exceeds 4 GiB")
)

// Header is the decoded fixed header.
type Header struct {
	Opcode Opcode
	Length uint32
}

// Frame is one complete wire message.
type Frame struct {
	Opcode  Opcode
	Payload []byte
}

// Encode returns exactly HeaderLen+len(payload) bytes.
func Encode(op Opcode, payload []byte) []byte {
	buf := make([]byte, HeaderLen+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(op))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[HeaderLen:], payload)
	return buf
}

// EncodeJSON marshals v and frames it.
func EncodeJSON(op Opcode, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, protocol.SerializationFailed(err)
	}
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return nil, protocol.SerializationFailed(ErrPayloadTooLarge)
	}
	return Encode(op, payload), nil
}

// Write encodes one frame to w in a single write.
func Write(w io.Writer, op Opcode, payload []byte) error {
	_, err := w.Write(Encode(op, payload))
	return err
}

// ParseHeader decodes the fixed header bytes.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, protocol.ProtocolViolation(fmt.Sprintf("header has %d of %d bytes", len(b), HeaderLen), ErrShortHeader)
	}
	return Header{
		Opcode: Opcode(binary.LittleEndian.Uint32(b[0:4])),
		Length: binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// Decode reads exactly one frame from r. A stream that ends before the header
// or the declared payload is complete yields a ProtocolViolation.
func Decode(r io.Reader) (Frame, error) {
	var hb [HeaderLen]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, protocol.ProtocolViolation("stream ended inside header", ErrShortHeader)
		}
		return Frame{}, err
	}
	h, err := ParseHeader(hb[:])
	if err != nil {
		return Frame{}, err
	}
	payload := make([]byte, h.Length)
	if h.Length > 0 {
		if n, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Frame{}, protocol.ProtocolViolation(fmt.Sprintf("payload has %d of %d bytes", n, h.Length), ErrTruncatedPayload)
			}
			return Frame{}, err
		}
	}
	return Frame{Opcode: h.Opcode, Payload: payload}, nil
}

// DecodeJSON validates the payload as UTF-8 and unmarshals it into v.
func DecodeJSON(f Frame, v any) error {
	if !utf8.Valid(f.Payload) {
		return protocol.ProtocolViolation(fmt.Sprintf("%s payload", f.Opcode), ErrInvalidUTF8)
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return protocol.DeserializationFailed(err, f.Payload)
	}
	return nil
}
