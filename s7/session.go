// Package s7 provides a client Session for Siemens S7 PLC communication,
// wrapping the tpkt/cotp/s7frame codecs into a connect-once, read/write
// API over a single TCP connection.
package s7

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"s7link/cotp"
	"s7link/logging"
	"s7link/s7frame"
	"s7link/tpkt"
)

// encodeCotpFrame and decodeCotpFrame bind the s7frame codec in as the
// payload of a cotp.Frame, so tpkt.Encode/Decode can drive the whole stack
// through a single EncodeFunc/DecodeFunc pair.
func encodeCotpFrame(payload cotp.Frame[s7frame.Frame], dst *bytes.Buffer) error {
	return cotp.Encode(dst, payload, s7frame.Encode)
}

func decodeCotpFrame(data []byte) (cotp.Frame[s7frame.Frame], int, error) {
	return cotp.Decode(data, s7frame.Decode)
}

type fullFrame = tpkt.Frame[cotp.Frame[s7frame.Frame]]

// fileLogger adapts the hex-dumping debug logger onto the Logger interface.
type fileLogger struct {
	dbg *logging.DebugLogger
}

// NewFileLogger builds a Logger backed by a fresh debug log file at path,
// suitable for WithLogger. The file records every connect event and every
// TX/RX frame as a hex dump.
func NewFileLogger(path string) (Logger, error) {
	dbg, err := logging.NewDebugLogger(path)
	if err != nil {
		return nil, err
	}
	return &fileLogger{dbg: dbg}, nil
}

func (f *fileLogger) Debugf(format string, args ...interface{}) {
	f.dbg.Log(logging.LayerS7, format, args...)
}
func (f *fileLogger) TX(data []byte) { f.dbg.LogTX(logging.LayerS7, data) }
func (f *fileLogger) RX(data []byte) { f.dbg.LogRX(logging.LayerS7, data) }
func (f *fileLogger) Close() error                              { return f.dbg.Close() }

type sessionState int

const (
	stateNew sessionState = iota
	stateCotpConnected
	stateS7Setup
	stateReady
	stateFailed
)

// Session is a single connected, setup-complete S7 PLC link. It is safe for
// concurrent use: operations are serialized internally, matching the
// protocol's single-pipelined request/response exchange. A Session never
// recovers from a failed state; once an exchange with the PLC fails (I/O,
// timeout, decode or unexpected response), establish a new Session.
type Session struct {
	mu   sync.Mutex
	id   string
	conn net.Conn
	opts *Options

	state   sessionState
	recvBuf []byte

	pduRefCounter      uint16
	negotiatedTpduSize cotp.TpduSize
	negotiatedPduLen   uint16
}

// Connect dials opts.Address:opts.Port, performs the COTP connect handshake
// and the S7 SetupCommunication exchange, and returns a ready Session.
func Connect(ctx context.Context, opts *Options) (*Session, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", opts.Address, opts.Port)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Stage: "dial", Err: &IoError{Op: "dial", Err: err}}
	}

	s := &Session{
		id:    uuid.NewString(),
		conn:  conn,
		opts:  opts,
		state: stateNew,
	}
	opts.Logger.Debugf("dialed %s", addr)

	if err := s.cotpConnect(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	s.state = stateCotpConnected

	if err := s.s7Setup(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	s.state = stateS7Setup
	s.state = stateReady
	if opts.Metrics != nil {
		opts.Metrics.Connects.Inc()
	}
	opts.Logger.Debugf("session %s ready: tpdu_size=%v pdu_length=%d", s.id, s.negotiatedTpduSize, s.negotiatedPduLen)

	return s, nil
}

// NegotiatedTpduSize returns the COTP TPDU size the PLC confirmed.
func (s *Session) NegotiatedTpduSize() cotp.TpduSize { return s.negotiatedTpduSize }

// NegotiatedPduLength returns the S7 PDU length the PLC granted during
// SetupCommunication; requests must fit within it.
func (s *Session) NegotiatedPduLength() uint16 { return s.negotiatedPduLen }

// ID returns the Session's correlation identifier, unique per Connect call.
func (s *Session) ID() string { return s.id }

// Close closes the underlying connection. A closed Session cannot be reused.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateFailed
	if closer, ok := s.opts.Logger.(interface{ Close() error }); ok {
		closer.Close()
	}
	return s.conn.Close()
}

func (s *Session) fail() { s.state = stateFailed }

func (s *Session) nextPduRef() uint16 {
	s.pduRefCounter++
	if s.pduRefCounter == 0 {
		s.pduRefCounter = 1
	}
	return s.pduRefCounter
}

func (s *Session) deadline(ctx context.Context, fallback time.Duration) time.Time {
	d := time.Now().Add(fallback)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (s *Session) writeRaw(ctx context.Context, data []byte) error {
	if err := s.conn.SetWriteDeadline(s.deadline(ctx, s.opts.WriteTimeout)); err != nil {
		return &IoError{Op: "set write deadline", Err: err}
	}
	s.opts.Logger.TX(data)
	n, err := s.conn.Write(data)
	if s.opts.Metrics != nil {
		s.opts.Metrics.BytesSent.Add(float64(n))
	}
	if err != nil {
		if isTimeout(err) {
			if s.opts.Metrics != nil {
				s.opts.Metrics.Timeouts.Inc()
			}
			return &TimeoutError{Op: "write", Err: err}
		}
		return &IoError{Op: "write", Err: err}
	}
	return nil
}

// readFullFrame reads from the connection, growing recvBuf, until a
// complete tpkt/cotp frame is available or an error/timeout occurs. Bytes
// left over after one frame stay buffered for the next call.
func (s *Session) readFullFrame(ctx context.Context) (fullFrame, error) {
	for {
		frame, consumed, err := tpkt.Decode(s.recvBuf, decodeCotpFrame)
		if err == nil {
			s.opts.Logger.RX(s.recvBuf[:consumed])
			s.recvBuf = append([]byte(nil), s.recvBuf[consumed:]...)
			return frame, nil
		}
		if !errors.Is(err, tpkt.ErrIncomplete) {
			if s.opts.Metrics != nil {
				s.opts.Metrics.DecodeErrors.WithLabelValues("tpkt").Inc()
			}
			var zero fullFrame
			return zero, &DecodeError{Layer: "tpkt", Err: err}
		}

		if err := s.conn.SetReadDeadline(s.deadline(ctx, s.opts.ReadTimeout)); err != nil {
			var zero fullFrame
			return zero, &IoError{Op: "set read deadline", Err: err}
		}
		buf := make([]byte, 4096)
		n, rerr := s.conn.Read(buf)
		if n > 0 {
			s.recvBuf = append(s.recvBuf, buf[:n]...)
			if s.opts.Metrics != nil {
				s.opts.Metrics.BytesReceived.Add(float64(n))
			}
		}
		if rerr != nil {
			var zero fullFrame
			if errors.Is(rerr, io.EOF) {
				return zero, &IncompleteFrameError{Buffered: len(s.recvBuf)}
			}
			if isTimeout(rerr) {
				if s.opts.Metrics != nil {
					s.opts.Metrics.Timeouts.Inc()
				}
				return zero, &TimeoutError{Op: "read", Err: rerr}
			}
			return zero, &IoError{Op: "read", Err: rerr}
		}
	}
}

func (s *Session) cotpConnect(ctx context.Context) error {
	local, remote := s.opts.ConnMode.tsaps()
	req := cotp.NewConnectBuilder().
		DestinationRef(0).
		SourceRef(1).
		ClassAndOthers(0, false, false).
		PushParameter(cotp.ParamTpduSize{Size: s.opts.TpduSize}).
		PushParameter(cotp.ParamSrcTsap{Value: append([]byte(nil), local[:]...)}).
		PushParameter(cotp.ParamDstTsap{Value: append([]byte(nil), remote[:]...)}).
		BuildRequest()

	frame := fullFrame{
		Version: tpkt.Version,
		Payload: cotp.Frame[s7frame.Frame]{PDU: req},
	}
	var buf bytes.Buffer
	if err := tpkt.Encode(&buf, frame, encodeCotpFrame); err != nil {
		return &ConnectError{Stage: "cotp", Err: &DecodeError{Layer: "cotp", Err: err}}
	}
	if err := s.writeRaw(ctx, buf.Bytes()); err != nil {
		return &ConnectError{Stage: "cotp", Err: err}
	}

	resp, err := s.readFullFrame(ctx)
	if err != nil {
		return &ConnectError{Stage: "cotp", Err: err}
	}
	confirm, ok := resp.Payload.PDU.(cotp.ConnectConfirm)
	if !ok {
		return &ConnectError{Stage: "cotp", Err: &ProtocolError{Expected: "ConnectConfirm", Got: fmt.Sprintf("%T", resp.Payload.PDU)}}
	}
	// A confirm without a TpduSize parameter accepts the proposed size as-is.
	s.negotiatedTpduSize = s.opts.TpduSize
	for _, p := range confirm.Parameters {
		if sz, ok := p.(cotp.ParamTpduSize); ok {
			s.negotiatedTpduSize = sz.Size
		}
	}
	s.opts.TpduSize = s.negotiatedTpduSize
	return nil
}

func (s *Session) s7Setup(ctx context.Context) error {
	// The setup exchange's pdu_ref mirrors the negotiated TPDU octet count;
	// every later request uses the session counter instead.
	pduRef := uint16(s.negotiatedTpduSize.Octets())
	job := NewSetupCommunicationFrame(pduRef, s.opts.PduLen)

	resp, err := s.roundTrip(ctx, job)
	if err != nil {
		return &ConnectError{Stage: "s7setup", Err: err}
	}
	ackFrame, ok := resp.(s7frame.AckDataFrame)
	if !ok {
		return &ConnectError{Stage: "s7setup", Err: &ProtocolError{Expected: "AckData", Got: fmt.Sprintf("%T", resp)}}
	}
	sc, ok := ackFrame.AckData.(s7frame.AckSetupCommunication)
	if !ok {
		return &ConnectError{Stage: "s7setup", Err: &ProtocolError{Expected: "SetupCommunication AckData", Got: fmt.Sprintf("%T", ackFrame.AckData)}}
	}
	s.negotiatedPduLen = sc.PduLength
	s.opts.PduLen = sc.PduLength
	return nil
}

// NewSetupCommunicationFrame builds the SetupCommunication Job this client
// always proposes: one outstanding request in each direction.
func NewSetupCommunicationFrame(pduRef uint16, pduLen uint16) s7frame.JobFrame {
	return s7frame.NewSetupCommunicationBuilder(pduRef).AmqCalling(1).AmqCalled(1).PduLength(pduLen).Build()
}

// roundTrip sends one Job and waits for its AckData. It does not check
// session state; callers (including the setup sequence, which runs before
// the Session is Ready) are responsible for that.
func (s *Session) roundTrip(ctx context.Context, job s7frame.JobFrame) (s7frame.Frame, error) {
	frame := fullFrame{
		Version: tpkt.Version,
		Payload: cotp.Frame[s7frame.Frame]{
			PDU: cotp.DtDataPDU[s7frame.Frame]{DtData: cotp.DtData[s7frame.Frame]{
				TpduNumber:   0,
				LastDataUnit: true,
				Payload:      job,
			}},
		},
	}
	var buf bytes.Buffer
	if err := tpkt.Encode(&buf, frame, encodeCotpFrame); err != nil {
		return nil, &DecodeError{Layer: "s7frame", Err: err}
	}

	start := time.Now()
	if err := s.writeRaw(ctx, buf.Bytes()); err != nil {
		return nil, err
	}
	resp, err := s.readFullFrame(ctx)
	if err != nil {
		return nil, err
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveRoundTrip(time.Since(start))
	}

	dt, ok := resp.Payload.PDU.(cotp.DtDataPDU[s7frame.Frame])
	if !ok {
		return nil, &ProtocolError{Expected: "DtData", Got: fmt.Sprintf("%T", resp.Payload.PDU)}
	}
	return dt.Payload, nil
}

func (s *Session) itemsFromAreas(areas []Area) ([]s7frame.ItemRequest, error) {
	items := make([]s7frame.ItemRequest, len(areas))
	for i, a := range areas {
		it, err := a.toItemRequest()
		if err != nil {
			return nil, err
		}
		items[i] = it
	}
	return items, nil
}

// Read fetches the value of one Area. If the PLC answered the item with a
// non-Success return code, the item is returned alongside an *ItemError; the
// Session itself stays usable.
func (s *Session) Read(ctx context.Context, area Area) (s7frame.DataItemVal, error) {
	items, err := s.ReadAreas(ctx, []Area{area})
	if err != nil {
		return s7frame.DataItemVal{}, err
	}
	val := items[0]
	if !val.ReturnCode.Ok() {
		return val, &ItemError{Index: 0, ReturnCode: val.ReturnCode}
	}
	return val, nil
}

// ReadAreas fetches the values of one or more Areas in a single request,
// the order of the results matching the order of areas.
func (s *Session) ReadAreas(ctx context.Context, areas []Area) ([]s7frame.DataItemVal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateReady {
		return nil, fmt.Errorf("s7: read: %w", ErrNotReady)
	}

	items, err := s.itemsFromAreas(areas)
	if err != nil {
		return nil, err
	}
	builder := s7frame.NewReadVarBuilder(s.nextPduRef())
	for _, it := range items {
		builder.Item(it)
	}
	job := builder.Build()

	resp, err := s.roundTrip(ctx, job)
	if err != nil {
		s.fail()
		return nil, err
	}
	ackFrame, ok := resp.(s7frame.AckDataFrame)
	if !ok {
		s.fail()
		return nil, &ProtocolError{Expected: "AckData", Got: fmt.Sprintf("%T", resp)}
	}
	rv, ok := ackFrame.AckData.(s7frame.AckReadVar)
	if !ok {
		s.fail()
		return nil, &ProtocolError{Expected: "ReadVar AckData", Got: fmt.Sprintf("%T", ackFrame.AckData)}
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.RequestsTotal.WithLabelValues("read").Inc()
	}
	return rv.Items, nil
}

// WriteBytes writes data to area, which must select a byte range at least
// len(data) bytes long.
func (s *Session) WriteBytes(ctx context.Context, area Area, data []byte) ([]s7frame.DataItemWriteResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateReady {
		return nil, fmt.Errorf("s7: write: %w", ErrNotReady)
	}

	item, err := area.toItemRequest()
	if err != nil {
		return nil, err
	}
	item.Length = uint16(len(data))
	val := s7frame.DataItemVal{
		ReturnCode:        s7frame.ReturnCodeSuccess,
		TransportSizeType: s7frame.DataTransportSizeByte,
		Length:            uint16(len(data) * 8),
		Data:              data,
	}
	job := s7frame.NewWriteVarBuilder(s.nextPduRef()).Item(item, val).Build()

	return s.writeVar(ctx, job)
}

// WriteBit writes a single bit value to area, which must select a Bit.
func (s *Session) WriteBit(ctx context.Context, area Area, value bool) ([]s7frame.DataItemWriteResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateReady {
		return nil, fmt.Errorf("s7: write bit: %w", ErrNotReady)
	}

	item, err := area.toItemRequest()
	if err != nil {
		return nil, err
	}
	if !item.TransportSizeType.IsBit() {
		return nil, fmt.Errorf("s7: write bit: area does not select a single bit")
	}
	var bitByte byte
	if value {
		bitByte = 1
	}
	val := s7frame.DataItemVal{
		ReturnCode:        s7frame.ReturnCodeSuccess,
		TransportSizeType: s7frame.DataTransportSizeBit,
		Length:            1,
		Data:              []byte{bitByte},
	}
	job := s7frame.NewWriteVarBuilder(s.nextPduRef()).Item(item, val).Build()

	return s.writeVar(ctx, job)
}

// writeVar performs the request/response exchange shared by WriteBytes and
// WriteBit. Caller holds s.mu and has already verified stateReady.
func (s *Session) writeVar(ctx context.Context, job s7frame.JobFrame) ([]s7frame.DataItemWriteResponse, error) {
	resp, err := s.roundTrip(ctx, job)
	if err != nil {
		s.fail()
		return nil, err
	}
	ackFrame, ok := resp.(s7frame.AckDataFrame)
	if !ok {
		s.fail()
		return nil, &ProtocolError{Expected: "AckData", Got: fmt.Sprintf("%T", resp)}
	}
	wv, ok := ackFrame.AckData.(s7frame.AckWriteVar)
	if !ok {
		s.fail()
		return nil, &ProtocolError{Expected: "WriteVar AckData", Got: fmt.Sprintf("%T", ackFrame.AckData)}
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.RequestsTotal.WithLabelValues("write").Inc()
	}
	return wv.Items, nil
}
