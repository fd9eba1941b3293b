package s7frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrIncomplete signals that data does not yet hold a complete S7 frame.
var ErrIncomplete = errors.New("s7frame: incomplete frame")

const (
	variableSpecification byte = 0x12
	followLength          byte = 0x0A
)

func writeU16(dst *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	dst.Write(b[:])
}

// Encode writes f to dst. parameter_len and data_len are recomputed from
// the actual encoded parameter/data sections rather than taken on faith
// from the caller's Header, so a hand-assembled frame cannot go out on the
// wire with length fields inconsistent with its body.
func Encode(f Frame, dst *bytes.Buffer) error {
	switch fr := f.(type) {
	case JobFrame:
		var param, data bytes.Buffer
		if err := encodeJob(fr.Job, &param, &data); err != nil {
			return fmt.Errorf("s7frame: encode job: %w", err)
		}
		if param.Len() > 0xFFFF || data.Len() > 0xFFFF {
			return fmt.Errorf("s7frame: parameter or data section too large")
		}
		dst.WriteByte(ProtocolID)
		dst.WriteByte(byte(RosctrJob))
		writeU16(dst, fr.Header.Reserved)
		writeU16(dst, fr.Header.PduRef)
		writeU16(dst, uint16(param.Len()))
		writeU16(dst, uint16(data.Len()))
		dst.Write(param.Bytes())
		dst.Write(data.Bytes())
		return nil
	case AckDataFrame:
		var param, data bytes.Buffer
		if err := encodeAckData(fr.AckData, &param, &data); err != nil {
			return fmt.Errorf("s7frame: encode ack data: %w", err)
		}
		if param.Len() > 0xFFFF || data.Len() > 0xFFFF {
			return fmt.Errorf("s7frame: parameter or data section too large")
		}
		dst.WriteByte(ProtocolID)
		dst.WriteByte(byte(RosctrAckData))
		writeU16(dst, fr.Header.Reserved)
		writeU16(dst, fr.Header.PduRef)
		writeU16(dst, uint16(param.Len()))
		writeU16(dst, uint16(data.Len()))
		dst.WriteByte(fr.Header.ErrorClass)
		dst.WriteByte(fr.Header.ErrorCode)
		dst.Write(param.Bytes())
		dst.Write(data.Bytes())
		return nil
	default:
		return fmt.Errorf("s7frame: unknown frame type %T", f)
	}
}

// Decode reads one S7 frame from the front of data. Header parameter_len and
// data_len are always read from offsets 6..8 and 8..10 respectively,
// regardless of ROSCTR.
func Decode(data []byte) (Frame, int, error) {
	if len(data) < 10 {
		return nil, 0, ErrIncomplete
	}
	protocolID := data[0]
	if protocolID != ProtocolID {
		return nil, 0, fmt.Errorf("s7frame: unexpected protocol id 0x%02X", protocolID)
	}
	rosctr := Rosctr(data[1])
	paramLen := int(binary.BigEndian.Uint16(data[6:8]))
	dataLen := int(binary.BigEndian.Uint16(data[8:10]))

	switch rosctr {
	case RosctrJob:
		total := 10 + paramLen + dataLen
		if len(data) < total {
			return nil, 0, ErrIncomplete
		}
		header := Header{
			ProtocolID:   protocolID,
			Reserved:     binary.BigEndian.Uint16(data[2:4]),
			PduRef:       binary.BigEndian.Uint16(data[4:6]),
			ParameterLen: uint16(paramLen),
			DataLen:      uint16(dataLen),
		}
		job, err := decodeJob(data[10:10+paramLen], data[10+paramLen:total])
		if err != nil {
			return nil, 0, fmt.Errorf("s7frame: decode job: %w", err)
		}
		return JobFrame{Header: header, Job: job}, total, nil

	case RosctrAckData:
		if len(data) < 12 {
			return nil, 0, ErrIncomplete
		}
		total := 12 + paramLen + dataLen
		if len(data) < total {
			return nil, 0, ErrIncomplete
		}
		header := HeaderAckData{
			ProtocolID:   protocolID,
			Reserved:     binary.BigEndian.Uint16(data[2:4]),
			PduRef:       binary.BigEndian.Uint16(data[4:6]),
			ParameterLen: uint16(paramLen),
			DataLen:      uint16(dataLen),
			ErrorClass:   data[10],
			ErrorCode:    data[11],
		}
		ack, err := decodeAckData(data[12:12+paramLen], data[12+paramLen:total])
		if err != nil {
			return nil, 0, fmt.Errorf("s7frame: decode ack data: %w", err)
		}
		return AckDataFrame{Header: header, AckData: ack}, total, nil

	default:
		return nil, 0, fmt.Errorf("s7frame: unknown rosctr 0x%02X", byte(rosctr))
	}
}

func encodeJob(job Job, param, data *bytes.Buffer) error {
	switch j := job.(type) {
	case JobSetupCommunication:
		param.WriteByte(byte(FuncSetupCommunication))
		encodeSetupCommunication(j.SetupCommunication, param)
	case JobReadVar:
		param.WriteByte(byte(FuncReadVar))
		param.WriteByte(byte(len(j.Items)))
		for _, it := range j.Items {
			if err := encodeItemRequest(it, param); err != nil {
				return err
			}
		}
	case JobWriteVar:
		if len(j.Items) != len(j.Values) {
			return fmt.Errorf("s7frame: writevar item/value count mismatch (%d vs %d)", len(j.Items), len(j.Values))
		}
		param.WriteByte(byte(FuncWriteVar))
		param.WriteByte(byte(len(j.Items)))
		for _, it := range j.Items {
			if err := encodeItemRequest(it, param); err != nil {
				return err
			}
		}
		for i, v := range j.Values {
			last := i == len(j.Values)-1
			encodeDataItemVal(v, data, last)
		}
	default:
		return fmt.Errorf("s7frame: unknown job type %T", job)
	}
	return nil
}

func encodeAckData(ack AckData, param, data *bytes.Buffer) error {
	switch a := ack.(type) {
	case AckSetupCommunication:
		param.WriteByte(byte(FuncSetupCommunication))
		encodeSetupCommunication(a.SetupCommunication, param)
	case AckReadVar:
		param.WriteByte(byte(FuncReadVar))
		param.WriteByte(byte(len(a.Items)))
		for i, v := range a.Items {
			last := i == len(a.Items)-1
			encodeDataItemVal(v, data, last)
		}
	case AckWriteVar:
		param.WriteByte(byte(FuncWriteVar))
		param.WriteByte(byte(len(a.Items)))
		for _, it := range a.Items {
			data.WriteByte(byte(it.ReturnCode))
		}
	default:
		return fmt.Errorf("s7frame: unknown ack data type %T", ack)
	}
	return nil
}

func encodeSetupCommunication(s SetupCommunication, dst *bytes.Buffer) {
	dst.WriteByte(s.Reserved)
	writeU16(dst, s.MaxAmqCalling)
	writeU16(dst, s.MaxAmqCalled)
	writeU16(dst, s.PduLength)
}

func decodeSetupCommunication(b []byte) (SetupCommunication, error) {
	var sc SetupCommunication
	if len(b) != 7 {
		return sc, fmt.Errorf("s7frame: setup communication body must be 7 bytes, got %d", len(b))
	}
	sc.Reserved = b[0]
	sc.MaxAmqCalling = binary.BigEndian.Uint16(b[1:3])
	sc.MaxAmqCalled = binary.BigEndian.Uint16(b[3:5])
	sc.PduLength = binary.BigEndian.Uint16(b[5:7])
	return sc, nil
}

// encodeItemRequest writes exactly 12 bytes.
func encodeItemRequest(it ItemRequest, dst *bytes.Buffer) error {
	dst.WriteByte(variableSpecification)
	dst.WriteByte(followLength)
	dst.WriteByte(byte(it.Syntax))
	dst.WriteByte(byte(it.TransportSizeType))
	writeU16(dst, it.Length)
	writeU16(dst, uint16(it.DbNumber))
	dst.WriteByte(byte(it.Area))
	addr := it.Address.Bytes()
	dst.Write(addr[:])
	return nil
}

func decodeItemRequest(b []byte) (ItemRequest, error) {
	var it ItemRequest
	if len(b) != itemRequestSize {
		return it, fmt.Errorf("s7frame: item request must be %d bytes, got %d", itemRequestSize, len(b))
	}
	if b[0] != variableSpecification {
		return it, fmt.Errorf("s7frame: unexpected variable_specification 0x%02X", b[0])
	}
	if b[1] != followLength {
		return it, fmt.Errorf("s7frame: unexpected follow_length 0x%02X", b[1])
	}
	it.Syntax = Syntax(b[2])
	it.TransportSizeType = TransportSize(b[3])
	it.Length = binary.BigEndian.Uint16(b[4:6])
	it.DbNumber = DbNumber(binary.BigEndian.Uint16(b[6:8]))
	it.Area = Area(b[8])
	it.Address = ParseAddressBytes(b[9], b[10], b[11])
	return it, nil
}

func decodeItemRequests(b []byte) ([]ItemRequest, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("s7frame: missing item count")
	}
	count := int(b[0])
	b = b[1:]
	items := make([]ItemRequest, 0, count)
	for i := 0; i < count; i++ {
		if len(b) < itemRequestSize {
			return nil, fmt.Errorf("s7frame: truncated item request %d", i)
		}
		it, err := decodeItemRequest(b[:itemRequestSize])
		if err != nil {
			return nil, err
		}
		items = append(items, it)
		b = b[itemRequestSize:]
	}
	return items, nil
}

// encodeDataItemVal writes return_code, transport, length and data, padding
// with a zero byte when the byte payload is odd-length and this is not the
// final item of the sequence.
func encodeDataItemVal(v DataItemVal, dst *bytes.Buffer, last bool) {
	dst.WriteByte(byte(v.ReturnCode))
	dst.WriteByte(byte(v.TransportSizeType))
	writeU16(dst, v.Length)
	dst.Write(v.Data)
	if len(v.Data)%2 == 1 && !last {
		dst.WriteByte(0)
	}
}

func decodeDataItemVals(data []byte, count int) ([]DataItemVal, error) {
	items := make([]DataItemVal, 0, count)
	for i := 0; i < count; i++ {
		if len(data) < 4 {
			return nil, fmt.Errorf("s7frame: truncated data item %d", i)
		}
		rc := ReturnCode(data[0])
		ts := DataTransportSize(data[1])
		length := binary.BigEndian.Uint16(data[2:4])
		data = data[4:]

		byteCount, err := ts.ByteCount(length)
		if err != nil {
			return nil, fmt.Errorf("s7frame: data item %d: %w", i, err)
		}
		if len(data) < byteCount {
			return nil, fmt.Errorf("s7frame: truncated data item %d payload", i)
		}
		val := append([]byte(nil), data[:byteCount]...)
		data = data[byteCount:]

		last := i == count-1
		if byteCount%2 == 1 && !last {
			if len(data) < 1 {
				return nil, fmt.Errorf("s7frame: missing pad byte after data item %d", i)
			}
			data = data[1:]
		}

		items = append(items, DataItemVal{ReturnCode: rc, TransportSizeType: ts, Length: length, Data: val})
	}
	return items, nil
}

func decodeDataItemWriteResponses(data []byte, count int) ([]DataItemWriteResponse, error) {
	items := make([]DataItemWriteResponse, 0, count)
	for i := 0; i < count; i++ {
		if len(data) < 1 {
			return nil, fmt.Errorf("s7frame: truncated write response %d", i)
		}
		items = append(items, DataItemWriteResponse{ReturnCode: ReturnCode(data[0])})
		data = data[1:]
	}
	return items, nil
}

func decodeJob(param, data []byte) (Job, error) {
	if len(param) < 1 {
		return nil, fmt.Errorf("s7frame: empty job parameter section")
	}
	switch Function(param[0]) {
	case FuncSetupCommunication:
		sc, err := decodeSetupCommunication(param[1:])
		if err != nil {
			return nil, err
		}
		return JobSetupCommunication{sc}, nil
	case FuncReadVar:
		items, err := decodeItemRequests(param[1:])
		if err != nil {
			return nil, err
		}
		return JobReadVar{Items: items}, nil
	case FuncWriteVar:
		items, err := decodeItemRequests(param[1:])
		if err != nil {
			return nil, err
		}
		values, err := decodeDataItemVals(data, len(items))
		if err != nil {
			return nil, err
		}
		return JobWriteVar{Items: items, Values: values}, nil
	default:
		return nil, fmt.Errorf("s7frame: unknown function code 0x%02X", param[0])
	}
}

func decodeAckData(param, data []byte) (AckData, error) {
	if len(param) < 1 {
		return nil, fmt.Errorf("s7frame: empty ack data parameter section")
	}
	switch Function(param[0]) {
	case FuncSetupCommunication:
		sc, err := decodeSetupCommunication(param[1:])
		if err != nil {
			return nil, err
		}
		return AckSetupCommunication{sc}, nil
	case FuncReadVar:
		if len(param) < 2 {
			return nil, fmt.Errorf("s7frame: missing readvar item count")
		}
		items, err := decodeDataItemVals(data, int(param[1]))
		if err != nil {
			return nil, err
		}
		return AckReadVar{Items: items}, nil
	case FuncWriteVar:
		if len(param) < 2 {
			return nil, fmt.Errorf("s7frame: missing writevar item count")
		}
		items, err := decodeDataItemWriteResponses(data, int(param[1]))
		if err != nil {
			return nil, err
		}
		return AckWriteVar{Items: items}, nil
	default:
		return nil, fmt.Errorf("s7frame: unknown function code 0x%02X", param[0])
	}
}
