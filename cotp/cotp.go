// Package cotp implements the class-0 subset of ISO 8073 connection-oriented
// transport PDUs used by S7 communication: Connect Request/Confirm and Data
// Transfer framing. It is generic over the payload carried inside DtData so
// the same codec serves both unit tests and full S7 application frames.
package cotp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// PduCode identifies the kind of COTP PDU.
type PduCode byte

const (
	PduConnectRequest PduCode = 0xE0
	PduConnectConfirm PduCode = 0xD0
	PduDtData         PduCode = 0xF0
)

func (c PduCode) String() string {
	switch c {
	case PduConnectRequest:
		return "ConnectRequest"
	case PduConnectConfirm:
		return "ConnectConfirm"
	case PduDtData:
		return "DtData"
	default:
		return fmt.Sprintf("PduCode(0x%02X)", byte(c))
	}
}

// Parameter tag bytes.
const (
	tagTpduSize byte = 0xC0
	tagSrcTsap  byte = 0xC1
	tagDstTsap  byte = 0xC2
)

// ErrIncomplete signals that data does not yet hold a complete COTP frame.
var ErrIncomplete = errors.New("cotp: incomplete frame")

// TpduSize enumerates the COTP negotiated TPDU octet sizes.
type TpduSize byte

const (
	Size128  TpduSize = 0x07
	Size256  TpduSize = 0x08
	Size512  TpduSize = 0x09
	Size1024 TpduSize = 0x0A
	Size2048 TpduSize = 0x0B
	Size4096 TpduSize = 0x0C
	Size8192 TpduSize = 0x0D
)

// Octets returns the octet count this size represents.
func (s TpduSize) Octets() int {
	if s < Size128 || s > Size8192 {
		return 0
	}
	return 1 << (uint(s-Size128) + 7)
}

// ValidForClass0 reports whether s is legal to negotiate on a class-0
// connection. 4096 and 8192 are decodable but not valid to offer or accept.
func (s TpduSize) ValidForClass0() bool {
	return s >= Size128 && s <= Size2048
}

func tpduSizeFromByte(b byte) (TpduSize, error) {
	s := TpduSize(b)
	if s < Size128 || s > Size8192 {
		return 0, fmt.Errorf("cotp: invalid tpdu size byte 0x%02X", b)
	}
	return s, nil
}

// Parameter is one entry of a ConnectComm's parameter sequence.
type Parameter interface {
	isParameter()
}

// ParamTpduSize carries a negotiated TPDU size.
type ParamTpduSize struct {
	Size TpduSize
}

func (ParamTpduSize) isParameter() {}

// ParamSrcTsap carries the raw source TSAP bytes.
type ParamSrcTsap struct {
	Value []byte
}

func (ParamSrcTsap) isParameter() {}

// ParamDstTsap carries the raw destination TSAP bytes.
type ParamDstTsap struct {
	Value []byte
}

func (ParamDstTsap) isParameter() {}

// ConnectComm is the body of a ConnectRequest or ConnectConfirm PDU.
type ConnectComm struct {
	DestinationRef        uint16
	SourceRef             uint16
	Class                 byte
	ExtendedFormats       bool
	NoExplicitFlowControl bool
	Parameters            []Parameter
}

func flagsByte(c ConnectComm) byte {
	b := c.Class << 4
	if c.ExtendedFormats {
		b |= 0x02
	}
	if c.NoExplicitFlowControl {
		b |= 0x01
	}
	return b
}

func parseFlags(b byte) (class byte, extendedFormats, noExplicitFlowControl bool) {
	return b >> 4, b&0x02 != 0, b&0x01 != 0
}

// DtData is a single class-0 data transfer unit.
type DtData[T any] struct {
	TpduNumber   byte
	LastDataUnit bool
	Payload      T
}

// PDU is the sum type of COTP PDUs, parameterized over the DtData payload.
type PDU[T any] interface {
	PduType() PduCode
}

// ConnectRequest is an ISO 8073 Connect Request TPDU.
type ConnectRequest struct{ ConnectComm }

func (ConnectRequest) PduType() PduCode { return PduConnectRequest }

// ConnectConfirm is an ISO 8073 Connect Confirm TPDU.
type ConnectConfirm struct{ ConnectComm }

func (ConnectConfirm) PduType() PduCode { return PduConnectConfirm }

// DtDataPDU wraps a DtData unit as a PDU.
type DtDataPDU[T any] struct{ DtData[T] }

func (DtDataPDU[T]) PduType() PduCode { return PduDtData }

// Frame is a decoded or to-be-encoded COTP PDU.
type Frame[T any] struct {
	PDU PDU[T]
}

// EncodeFunc encodes an inner payload into dst.
type EncodeFunc[T any] func(payload T, dst *bytes.Buffer) error

// DecodeFunc decodes an inner payload, returning the value and bytes consumed.
type DecodeFunc[T any] func(data []byte) (payload T, consumed int, err error)

// Encode writes f to dst.
func Encode[T any](dst *bytes.Buffer, f Frame[T], encodePayload EncodeFunc[T]) error {
	switch pdu := f.PDU.(type) {
	case ConnectRequest:
		return encodeConnect(dst, PduConnectRequest, pdu.ConnectComm)
	case ConnectConfirm:
		return encodeConnect(dst, PduConnectConfirm, pdu.ConnectComm)
	case DtDataPDU[T]:
		return encodeDtData(dst, pdu.DtData, encodePayload)
	default:
		return fmt.Errorf("cotp: unknown pdu type %T", f.PDU)
	}
}

func encodeConnect(dst *bytes.Buffer, code PduCode, c ConnectComm) error {
	var body bytes.Buffer
	var refs [4]byte
	binary.BigEndian.PutUint16(refs[0:2], c.DestinationRef)
	binary.BigEndian.PutUint16(refs[2:4], c.SourceRef)
	body.Write(refs[:])
	body.WriteByte(flagsByte(c))
	for _, p := range c.Parameters {
		if err := encodeParameter(&body, p); err != nil {
			return err
		}
	}
	li := 1 + body.Len()
	if li > 0xFF {
		return fmt.Errorf("cotp: connect body too large (li=%d)", li)
	}
	dst.WriteByte(byte(li))
	dst.WriteByte(byte(code))
	dst.Write(body.Bytes())
	return nil
}

func encodeParameter(dst *bytes.Buffer, p Parameter) error {
	switch v := p.(type) {
	case ParamTpduSize:
		dst.WriteByte(tagTpduSize)
		dst.WriteByte(1)
		dst.WriteByte(byte(v.Size))
	case ParamSrcTsap:
		if len(v.Value) > 0xFF {
			return fmt.Errorf("cotp: src tsap too long")
		}
		dst.WriteByte(tagSrcTsap)
		dst.WriteByte(byte(len(v.Value)))
		dst.Write(v.Value)
	case ParamDstTsap:
		if len(v.Value) > 0xFF {
			return fmt.Errorf("cotp: dst tsap too long")
		}
		dst.WriteByte(tagDstTsap)
		dst.WriteByte(byte(len(v.Value)))
		dst.Write(v.Value)
	default:
		return fmt.Errorf("cotp: unknown parameter type %T", p)
	}
	return nil
}

// encodeDtData writes the fixed 3-byte DtData header (li=2, pdu_code,
// merge byte) followed directly by the inner payload. li covers only the
// COTP header here, never the payload: the outer TPKT length bounds the
// frame.
func encodeDtData[T any](dst *bytes.Buffer, d DtData[T], encodePayload EncodeFunc[T]) error {
	dst.WriteByte(2)
	dst.WriteByte(byte(PduDtData))
	merge := d.TpduNumber & 0x7F
	if d.LastDataUnit {
		merge |= 0x80
	}
	dst.WriteByte(merge)
	return encodePayload(d.Payload, dst)
}

// Decode reads one COTP PDU from the front of data. data must be exactly the
// TPKT-delimited COTP body (ConnectRequest/Confirm consume it entirely;
// DtData consumes its 3-byte header plus whatever the inner decoder
// consumes).
func Decode[T any](data []byte, decodePayload DecodeFunc[T]) (Frame[T], int, error) {
	var zero Frame[T]
	if len(data) < 2 {
		return zero, 0, ErrIncomplete
	}
	li := int(data[0])
	if len(data) < li+1 {
		return zero, 0, ErrIncomplete
	}
	code := PduCode(data[1])
	switch code {
	case PduConnectRequest, PduConnectConfirm:
		body := data[2 : li+1]
		cc, err := decodeConnect(body)
		if err != nil {
			return zero, 0, err
		}
		if code == PduConnectRequest {
			return Frame[T]{PDU: ConnectRequest{cc}}, li + 1, nil
		}
		return Frame[T]{PDU: ConnectConfirm{cc}}, li + 1, nil
	case PduDtData:
		if li != 2 {
			return zero, 0, fmt.Errorf("cotp: dtdata li must be 2, got %d", li)
		}
		merge := data[2]
		rest := data[3:]
		payload, consumed, err := decodePayload(rest)
		if err != nil {
			if errors.Is(err, ErrIncomplete) {
				return zero, 0, fmt.Errorf("cotp: inner decoder incomplete inside bounded frame: %w", err)
			}
			return zero, 0, fmt.Errorf("cotp: decode dtdata payload: %w", err)
		}
		dt := DtData[T]{
			TpduNumber:   merge & 0x7F,
			LastDataUnit: merge&0x80 != 0,
			Payload:      payload,
		}
		return Frame[T]{PDU: DtDataPDU[T]{dt}}, 3 + consumed, nil
	default:
		return zero, 0, fmt.Errorf("cotp: unknown pdu code 0x%02X", byte(code))
	}
}

func decodeConnect(body []byte) (ConnectComm, error) {
	var c ConnectComm
	if len(body) < 5 {
		return c, fmt.Errorf("cotp: connect body too short (%d bytes)", len(body))
	}
	c.DestinationRef = binary.BigEndian.Uint16(body[0:2])
	c.SourceRef = binary.BigEndian.Uint16(body[2:4])
	c.Class, c.ExtendedFormats, c.NoExplicitFlowControl = parseFlags(body[4])
	params, err := decodeParameters(body[5:])
	if err != nil {
		return c, err
	}
	c.Parameters = params
	return c, nil
}

func decodeParameters(body []byte) ([]Parameter, error) {
	var params []Parameter
	for len(body) > 0 {
		if len(body) < 2 {
			return nil, fmt.Errorf("cotp: truncated parameter header")
		}
		tag := body[0]
		plen := int(body[1])
		if len(body) < 2+plen {
			return nil, fmt.Errorf("cotp: truncated parameter value")
		}
		val := body[2 : 2+plen]
		switch tag {
		case tagTpduSize:
			if plen != 1 {
				return nil, fmt.Errorf("cotp: tpdu size parameter must be 1 byte, got %d", plen)
			}
			size, err := tpduSizeFromByte(val[0])
			if err != nil {
				return nil, err
			}
			params = append(params, ParamTpduSize{Size: size})
		case tagSrcTsap:
			params = append(params, ParamSrcTsap{Value: append([]byte(nil), val...)})
		case tagDstTsap:
			params = append(params, ParamDstTsap{Value: append([]byte(nil), val...)})
		default:
			return nil, fmt.Errorf("cotp: unknown parameter tag 0x%02X", tag)
		}
		body = body[2+plen:]
	}
	return params, nil
}
