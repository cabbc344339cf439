package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/danmuck/presencectl/internal/logging"
	"github.com/danmuck/presencectl/internal/observability"
	"github.com/danmuck/presencectl/internal/protocol"
	"github.com/danmuck/presencectl/internal/protocol/frame"
	"github.com/danmuck/presencectl/internal/transport"
)

var (
	ErrInvalidState     = errors.New("session: invalid state for operation")
	ErrNotReady         = errors.New("session: not ready")
	ErrClientIDRequired = errors.New("session: client_id required")
	ErrPeerClosed       = errors.New("session: peer sent close")
	ErrPayloadTooLarge  = errors.New("session: inbound payload exceeds limit")
)

// closePayload is sent with the best-effort Close frame.
var closePayload = []byte(`{}`)

// ReadyInfo is the decoded READY dispatch, kept for diagnostics.
type ReadyInfo struct {
	Endpoint transport.Endpoint
	Raw      json.RawMessage
	User     *protocol.User
	Config   *protocol.ReadyConfig
}

// Session drives one transport from connect to a command-serving state.
//
// A Session is not safe for concurrent use. It allows one request in flight;
// concurrent callers without external locking can interleave frames and
// corrupt the stream.
type Session struct {
	cfg    Config
	tr     transport.Transport
	id     xid.ID
	logger zerolog.Logger

	state    State
	conn     transport.Conn
	endpoint transport.Endpoint
	ready    *ReadyInfo
}

func New(tr transport.Transport, cfg Config) *Session {
	id := xid.New()
	return &Session{
		cfg:    cfg.WithDefaults(),
		tr:     tr,
		id:     id,
		logger: logging.For("session").With().Str("session", id.String()).Logger(),
		state:  Disconnected,
	}
}

func (s *Session) ID() string { return s.id.String() }

func (s *Session) State() State { return s.state }

func (s *Session) Config() Config { return s.cfg }

// Endpoint returns the endpoint of the current or last connection.
func (s *Session) Endpoint() (transport.Endpoint, bool) {
	return s.endpoint, s.endpoint.Address != ""
}

// Ready returns the READY data of the live connection, or nil.
func (s *Session) Ready() *ReadyInfo {
	if s.state != Ready {
		return nil
	}
	return s.ready
}

// Connect runs discovery (unless the target is explicit), opens the transport
// and completes the handshake. It is valid only from Disconnected or Closed;
// misuse and a missing client id are HandshakeFailed wrapping ErrInvalidState
// or ErrClientIDRequired and leave the state untouched. Any other failure
// leaves the session Closed.
func (s *Session) Connect(ctx context.Context) error {
	if !s.state.CanConnect() {
		return refused(fmt.Errorf("%w: connect while %s", ErrInvalidState, s.state))
	}
	if s.cfg.ClientID == "" {
		return refused(ErrClientIDRequired)
	}
	start := time.Now()
	s.setState(Connecting)

	cctx := ctx
	if s.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		defer cancel()
	}

	err := s.connect(cctx)
	if err != nil {
		s.abort()
		if s.cfg.ConnectTimeout > 0 && ctx.Err() == nil && timedOut(cctx, err) {
			err = protocol.ConnectionTimeout(s.cfg.ConnectTimeout, err)
		}
		observability.RecordConnect(resultLabel(err))
		s.logger.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("connect failed")
		return err
	}

	elapsed := time.Since(start)
	s.setState(Ready)
	observability.RecordConnect(observability.ResultOK)
	observability.ObserveHandshake(elapsed)
	s.logger.Debug().Str("endpoint", s.endpoint.String()).Dur("elapsed", elapsed).Msg("ready")
	return nil
}

func (s *Session) connect(ctx context.Context) error {
	conn, ep, err := s.open(ctx)
	if err != nil {
		return err
	}
	s.conn = conn
	s.endpoint = ep
	s.setState(AwaitingReady)

	hs, err := json.Marshal(protocol.Handshake{V: protocol.Version, ClientID: s.cfg.ClientID})
	if err != nil {
		return protocol.SerializationFailed(err)
	}
	if err := s.write(ctx, frame.OpHandshake, hs); err != nil {
		return err
	}

	f, err := s.readFrame(ctx)
	if err != nil {
		var pe *protocol.Error
		if errors.As(err, &pe) && pe.Kind == protocol.KindSocketClosed && pe.Code != 0 {
			return protocol.DiscordError(pe.Code, pe.Message)
		}
		return err
	}
	if f.Opcode != frame.OpFrame {
		return protocol.HandshakeFailed(fmt.Sprintf("expected %s opcode, got %s", frame.OpFrame, f.Opcode), f.Payload)
	}
	var resp protocol.Response
	if err := frame.DecodeJSON(f, &resp); err != nil {
		if protocol.KindOf(err) == protocol.KindProtocolViolation {
			return err
		}
		hf := protocol.HandshakeFailed("malformed READY payload", f.Payload)
		hf.Err = err
		return hf
	}
	if resp.IsError() {
		return resp.Err()
	}
	if resp.Event() != protocol.EvtReady {
		return protocol.HandshakeFailed(fmt.Sprintf("expected %s event, got %q", protocol.EvtReady, resp.Event()), f.Payload)
	}

	ready := &ReadyInfo{Endpoint: ep, Raw: resp.Data}
	if len(resp.Data) > 0 {
		var data protocol.ReadyData
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			s.logger.Debug().Err(err).Msg("READY data not decoded")
		} else {
			ready.User = data.User
			ready.Config = data.Config
		}
	}
	s.ready = ready
	return nil
}

// open picks the endpoint and opens it. With a connect timeout, recoverable
// failures are polled every PollInterval until ctx ends.
func (s *Session) open(ctx context.Context) (transport.Conn, transport.Endpoint, error) {
	for {
		conn, ep, err := s.openOnce(ctx)
		if err == nil {
			return conn, ep, nil
		}
		if s.cfg.ConnectTimeout <= 0 || !protocol.IsRecoverable(err) {
			return nil, ep, err
		}
		s.logger.Trace().Err(err).Msg("open failed; polling")
		timer := time.NewTimer(s.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ep, err
		case <-timer.C:
		}
	}
}

func (s *Session) openOnce(ctx context.Context) (transport.Conn, transport.Endpoint, error) {
	candidates, err := s.candidates()
	if err != nil {
		return nil, transport.Endpoint{}, err
	}
	if !s.cfg.FallThrough {
		candidates = candidates[:1]
	}

	tried := make([]string, 0, len(candidates))
	var last error
	for _, ep := range candidates {
		conn, err := s.tr.Open(ctx, ep)
		if err == nil {
			return conn, ep, nil
		}
		if protocol.KindOf(err) == 0 {
			err = protocol.ConnectionFailed(err, ep.Address)
		}
		s.logger.Debug().Str("endpoint", ep.String()).Err(err).Msg("open failed")
		tried = append(tried, ep.Address)
		last = err
		if ctx.Err() != nil {
			break
		}
	}
	if len(tried) > 1 {
		return nil, candidates[0], protocol.SocketDiscoveryFailed(tried, last)
	}
	return nil, candidates[0], last
}

func (s *Session) candidates() ([]transport.Endpoint, error) {
	t := s.cfg.Target
	if t.Mode == TargetPath {
		ep, err := transport.ParseEndpoint(t.Path)
		if err != nil {
			return nil, protocol.ConnectionFailed(err, t.Path)
		}
		return []transport.Endpoint{ep}, nil
	}
	found := s.cfg.Discover()
	if t.Mode == TargetOrdinal {
		filtered := found[:0:0]
		for _, ep := range found {
			if ep.Ordinal == t.Ordinal {
				filtered = append(filtered, ep)
			}
		}
		found = filtered
	}
	if len(found) == 0 {
		return nil, protocol.NoValidSocket()
	}
	return found, nil
}

// SendCommand writes one command and reads its response. It is valid only in
// Ready; otherwise it fails with a recoverable SocketClosed. An ERROR response
// keeps the session Ready; every transport or protocol failure closes it.
func (s *Session) SendCommand(ctx context.Context, cmd string, args any) (protocol.Response, error) {
	resp, err := s.sendCommand(ctx, cmd, args)
	if err != nil {
		observability.RecordCommand(cmd, resultLabel(err))
		return resp, err
	}
	observability.RecordCommand(cmd, observability.ResultOK)
	return resp, nil
}

func (s *Session) sendCommand(ctx context.Context, cmd string, args any) (protocol.Response, error) {
	if s.state != Ready || s.conn == nil {
		return protocol.Response{}, protocol.SocketClosed(fmt.Errorf("%w: session is %s", ErrNotReady, s.state))
	}
	nonce := s.cfg.NewNonce()
	payload, err := json.Marshal(protocol.Command{Cmd: cmd, Args: args, Nonce: nonce})
	if err != nil {
		return protocol.Response{}, protocol.SerializationFailed(err)
	}
	if err := s.write(ctx, frame.OpFrame, payload); err != nil {
		s.abort()
		return protocol.Response{}, err
	}

	f, err := s.readFrame(ctx)
	if err != nil {
		s.abort()
		return protocol.Response{}, err
	}
	if f.Opcode != frame.OpFrame {
		s.abort()
		return protocol.Response{}, protocol.ProtocolViolation(fmt.Sprintf("expected %s opcode in response, got %s", frame.OpFrame, f.Opcode), nil)
	}
	var resp protocol.Response
	if err := frame.DecodeJSON(f, &resp); err != nil {
		s.abort()
		return protocol.Response{}, err
	}
	if resp.Nonce != nonce {
		s.abort()
		return resp, protocol.InvalidResponse(fmt.Sprintf("nonce mismatch: sent %q, got %q", nonce, resp.Nonce))
	}
	if resp.IsError() {
		return resp, resp.Err()
	}
	return resp, nil
}

// Close sends a best-effort Close frame, shuts the transport down and leaves
// the session Closed regardless of errors.
func (s *Session) Close() error {
	if s.conn == nil {
		s.setState(Closed)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CloseTimeout)
	defer cancel()
	if err := s.write(ctx, frame.OpClose, closePayload); err != nil {
		s.logger.Trace().Err(err).Msg("close frame not sent")
	}
	err := s.conn.Shutdown()
	s.conn = nil
	s.ready = nil
	s.setState(Closed)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Reconnect closes the session and connects again with the same Config. The
// last command is not replayed.
func (s *Session) Reconnect(ctx context.Context) error {
	_ = s.Close()
	s.setState(Disconnected)
	return s.Connect(ctx)
}

func (s *Session) abort() {
	if s.conn != nil {
		_ = s.conn.Shutdown()
		s.conn = nil
	}
	s.ready = nil
	s.setState(Closed)
}

func (s *Session) setState(next State) {
	if s.state == next {
		return
	}
	s.logger.Debug().Stringer("from", s.state).Stringer("to", next).Msg("state")
	s.state = next
}

func (s *Session) write(ctx context.Context, op frame.Opcode, payload []byte) error {
	if err := s.conn.WriteAll(ctx, frame.Encode(op, payload)); err != nil {
		return err
	}
	observability.RecordFrame(observability.DirectionOut, op.String())
	s.logger.Trace().Stringer("op", op).Str("size", humanize.IBytes(uint64(len(payload)))).Msg("frame out")
	return nil
}

// readFrame returns the next Handshake or Frame opcode frame. Ping is answered
// with Pong, stray Pong is dropped, Close ends the session with the peer's
// code and message, and unknown opcodes are rejected.
func (s *Session) readFrame(ctx context.Context) (frame.Frame, error) {
	for {
		hb, err := s.conn.ReadExact(ctx, frame.HeaderLen)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return frame.Frame{}, protocol.ProtocolViolation("stream ended inside a frame header", fmt.Errorf("%w: %w", frame.ErrShortHeader, err))
			}
			return frame.Frame{}, err
		}
		h, err := frame.ParseHeader(hb)
		if err != nil {
			return frame.Frame{}, err
		}
		if h.Length > s.cfg.MaxPayloadSize {
			return frame.Frame{}, protocol.ProtocolViolation(
				fmt.Sprintf("%s payload of %s exceeds %s", h.Opcode, humanize.IBytes(uint64(h.Length)), humanize.IBytes(uint64(s.cfg.MaxPayloadSize))),
				ErrPayloadTooLarge)
		}
		payload, err := s.conn.ReadExact(ctx, int(h.Length))
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
				return frame.Frame{}, err
			}
			return frame.Frame{}, protocol.ProtocolViolation(fmt.Sprintf("%s frame truncated", h.Opcode), err)
		}
		observability.RecordFrame(observability.DirectionIn, h.Opcode.String())
		s.logger.Trace().Stringer("op", h.Opcode).Str("size", humanize.IBytes(uint64(h.Length))).Msg("frame in")

		switch h.Opcode {
		case frame.OpHandshake, frame.OpFrame:
			return frame.Frame{Opcode: h.Opcode, Payload: payload}, nil
		case frame.OpPing:
			if err := s.write(ctx, frame.OpPong, payload); err != nil {
				return frame.Frame{}, err
			}
		case frame.OpPong:
		case frame.OpClose:
			var data protocol.ErrorData
			_ = json.Unmarshal(payload, &data)
			e := protocol.SocketClosed(ErrPeerClosed)
			e.Code = data.Code
			e.Message = data.Message
			return frame.Frame{}, e
		default:
			return frame.Frame{}, protocol.InvalidOpcode(uint32(h.Opcode))
		}
	}
}

// refused reports a Connect that cannot start as a non-recoverable
// HandshakeFailed; the cause stays matchable with errors.Is.
func refused(cause error) *protocol.Error {
	e := protocol.HandshakeFailed("", nil)
	e.Err = cause
	return e
}

func timedOut(ctx context.Context, err error) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}

func resultLabel(err error) string {
	if k := protocol.KindOf(err); k != 0 {
		return k.String()
	}
	return observability.ResultError
}
