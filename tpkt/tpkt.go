// Package tpkt implements RFC 1006 TPKT framing: a 4-byte length-prefixed
// header that adapts ISO transport onto a TCP byte stream.
package tpkt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Version is the TPKT version used by RFC 1006 framing. Encode writes
// whatever Frame.Version holds, so callers set it to this value.
const Version byte = 3

// HeaderSize is the fixed length of the TPKT header in bytes.
const HeaderSize = 4

// ErrIncomplete is returned by Decode when the buffer does not yet hold a
// full frame. The input is left untouched so the caller can retry once more
// data has arrived.
var ErrIncomplete = errors.New("tpkt: incomplete frame")

// Frame wraps a payload of type T behind a TPKT header.
type Frame[T any] struct {
	Version byte
	Payload T
}

// EncodeFunc encodes a payload value into dst.
type EncodeFunc[T any] func(payload T, dst *bytes.Buffer) error

// DecodeFunc decodes a payload from data, returning the value and the
// number of bytes consumed. It must return ErrIncomplete (with consumed 0)
// if data does not hold a complete payload.
type DecodeFunc[T any] func(data []byte) (payload T, consumed int, err error)

// Encode writes f to dst, computing the total_length header field from the
// encoded payload.
func Encode[T any](dst *bytes.Buffer, f Frame[T], encode EncodeFunc[T]) error {
	var payload bytes.Buffer
	if err := encode(f.Payload, &payload); err != nil {
		return fmt.Errorf("tpkt: encode payload: %w", err)
	}
	length := payload.Len() + HeaderSize
	if length > 0xFFFF {
		return fmt.Errorf("tpkt: frame length %d exceeds u16 range", length)
	}
	dst.WriteByte(f.Version)
	dst.WriteByte(0) // reserved
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(length))
	dst.Write(lenBuf[:])
	dst.Write(payload.Bytes())
	return nil
}

// Decode attempts to read one TPKT frame from the front of data. On success
// it returns the frame and the number of bytes consumed from data. If data
// does not yet hold a complete frame, it returns ErrIncomplete and consumed
// 0, leaving data untouched so the caller can resume after reading more.
func Decode[T any](data []byte, decode DecodeFunc[T]) (Frame[T], int, error) {
	var zero Frame[T]
	if len(data) < HeaderSize {
		return zero, 0, ErrIncomplete
	}
	length := int(binary.BigEndian.Uint16(data[2:4]))
	if length < HeaderSize {
		return zero, 0, fmt.Errorf("tpkt: total_length %d smaller than header", length)
	}
	if len(data) < length {
		return zero, 0, ErrIncomplete
	}
	body := data[HeaderSize:length]
	payload, consumed, err := decode(body)
	if err != nil {
		if errors.Is(err, ErrIncomplete) {
			return zero, 0, fmt.Errorf("tpkt: inner decoder incomplete inside bounded frame: %w", err)
		}
		return zero, 0, fmt.Errorf("tpkt: decode payload: %w", err)
	}
	if consumed != len(body) {
		return zero, 0, fmt.Errorf("tpkt: inner decoder left %d unread bytes", len(body)-consumed)
	}
	return Frame[T]{Version: data[0], Payload: payload}, length, nil
}
