package s7frame

import (
	"bytes"
	"errors"
	"testing"
)

func hexEqual(t *testing.T, got, want []byte) {
	t.Helper()
	if !bytes.Equal(got, want) {
		t.Fatalf("got  % X\nwant % X", got, want)
	}
}

// S1: SetupCommunication Job, pdu_ref=1024, max_calling=1, max_called=1,
// pdu_length=480.
func TestSetupCommunicationEncodeS1(t *testing.T) {
	f := NewSetupCommunicationBuilder(1024).AmqCalling(1).AmqCalled(1).PduLength(480).Build()

	var buf bytes.Buffer
	if err := Encode(f, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{
		0x32, 0x01, 0x00, 0x00, 0x04, 0x00, 0x00, 0x08, 0x00, 0x00,
		0xF0, 0x00, 0x00, 0x01, 0x00, 0x01, 0x01, 0xE0,
	}
	hexEqual(t, buf.Bytes(), want)
}

// S4: ReadVar Job for DB1, byte_addr=300, len=4, pdu_ref=1280.
func TestReadVarEncodeS4(t *testing.T) {
	it := NewItemRequest(AreaDataBlocks, DbNumber(1), TransportSizeByte, 4, Address{ByteAddr: 300, BitAddr: 0})
	f := NewReadVarBuilder(1280).Item(it).Build()

	var buf bytes.Buffer
	if err := Encode(f, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{
		0x32, 0x01, 0x00, 0x00, 0x05, 0x00, 0x00, 0x0E, 0x00, 0x00,
		0x04, 0x01, 0x12, 0x0A, 0x10, 0x02, 0x00, 0x04, 0x00, 0x01, 0x84, 0x00, 0x09, 0x60,
	}
	hexEqual(t, buf.Bytes(), want)
}

// S5: decode of AckData for SetupCommunication.
func TestSetupCommunicationDecodeS5(t *testing.T) {
	wire := []byte{
		0x32, 0x03, 0x00, 0x00, 0x04, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00,
		0xF0, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0xF0,
	}
	frame, consumed, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != len(wire) {
		t.Fatalf("consumed = %d, want %d", consumed, len(wire))
	}
	ack, ok := frame.(AckDataFrame)
	if !ok {
		t.Fatalf("frame type = %T, want AckDataFrame", frame)
	}
	if ack.Header.PduRef != 1024 || ack.Header.ParameterLen != 8 || ack.Header.DataLen != 0 {
		t.Fatalf("header = %+v", ack.Header)
	}
	if ack.Header.ErrorClass != 0 || ack.Header.ErrorCode != 0 {
		t.Fatalf("header error = %d/%d, want 0/0", ack.Header.ErrorClass, ack.Header.ErrorCode)
	}
	sc, ok := ack.AckData.(AckSetupCommunication)
	if !ok {
		t.Fatalf("ack data type = %T, want AckSetupCommunication", ack.AckData)
	}
	if sc.MaxAmqCalling != 1 || sc.MaxAmqCalled != 1 || sc.PduLength != 240 {
		t.Fatalf("setup communication = %+v", sc.SetupCommunication)
	}
}

// S6: decode of ReadVar AckData.
func TestReadVarDecodeS6(t *testing.T) {
	wire := []byte{
		0x32, 0x03, 0x00, 0x00, 0x05, 0x00, 0x00, 0x02, 0x00, 0x08, 0x00, 0x00,
		0x04, 0x01,
		0xFF, 0x04, 0x00, 0x20, 0x00, 0x00, 0x00, 0x79,
	}
	frame, consumed, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != len(wire) {
		t.Fatalf("consumed = %d, want %d", consumed, len(wire))
	}
	ack := frame.(AckDataFrame)
	rv, ok := ack.AckData.(AckReadVar)
	if !ok {
		t.Fatalf("ack data type = %T, want AckReadVar", ack.AckData)
	}
	if len(rv.Items) != 1 {
		t.Fatalf("item count = %d, want 1", len(rv.Items))
	}
	item := rv.Items[0]
	if !item.ReturnCode.Ok() {
		t.Fatalf("return code = %v, want Success", item.ReturnCode)
	}
	if item.TransportSizeType.IsBit() {
		t.Fatalf("transport size reported as Bit, want NoBit")
	}
	if item.Length != 0x0020 {
		t.Fatalf("length = 0x%04X, want 0x0020", item.Length)
	}
	hexEqual(t, item.Data, []byte{0x00, 0x00, 0x00, 0x79})
}

// A bit-area read answers with transport 0x03: length counts bit values
// and the payload carries one byte per bit.
func TestReadVarDecodeBitItem(t *testing.T) {
	wire := []byte{
		0x32, 0x03, 0x00, 0x00, 0x00, 0x07, 0x00, 0x02, 0x00, 0x05, 0x00, 0x00,
		0x04, 0x01,
		0xFF, 0x03, 0x00, 0x01, 0x01,
	}
	frame, consumed, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != len(wire) {
		t.Fatalf("consumed = %d, want %d", consumed, len(wire))
	}
	rv := frame.(AckDataFrame).AckData.(AckReadVar)
	if len(rv.Items) != 1 {
		t.Fatalf("item count = %d, want 1", len(rv.Items))
	}
	item := rv.Items[0]
	if item.TransportSizeType != DataTransportSizeBit {
		t.Fatalf("transport = 0x%02X, want 0x03", byte(item.TransportSizeType))
	}
	if !item.TransportSizeType.IsBit() {
		t.Fatal("transport 0x03 must report IsBit")
	}
	if item.Length != 1 {
		t.Fatalf("length = %d, want 1", item.Length)
	}
	hexEqual(t, item.Data, []byte{0x01})
}

// An octet-string read answers with transport 0x09: the only transport
// whose length field is a byte count rather than a bit count.
func TestReadVarDecodeOctetStringItem(t *testing.T) {
	wire := []byte{
		0x32, 0x03, 0x00, 0x00, 0x00, 0x08, 0x00, 0x02, 0x00, 0x09, 0x00, 0x00,
		0x04, 0x01,
		0xFF, 0x09, 0x00, 0x05, 'H', 'E', 'L', 'L', 'O',
	}
	frame, consumed, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != len(wire) {
		t.Fatalf("consumed = %d, want %d", consumed, len(wire))
	}
	rv := frame.(AckDataFrame).AckData.(AckReadVar)
	item := rv.Items[0]
	if item.TransportSizeType != DataTransportSizeOctetString {
		t.Fatalf("transport = 0x%02X, want 0x09", byte(item.TransportSizeType))
	}
	if item.Length != 5 {
		t.Fatalf("length = %d, want 5", item.Length)
	}
	hexEqual(t, item.Data, []byte("HELLO"))
}

func TestDataTransportSizeByteCount(t *testing.T) {
	tests := []struct {
		ts      DataTransportSize
		length  uint16
		want    int
		wantErr bool
	}{
		{DataTransportSizeBit, 1, 1, false},
		{DataTransportSizeBit, 3, 3, false},
		{DataTransportSizeByte, 32, 4, false},
		{DataTransportSizeInt, 16, 2, false},
		{DataTransportSizeDInt, 32, 4, false},
		{DataTransportSizeReal, 32, 4, false},
		{DataTransportSizeOctetString, 10, 10, false},
		{DataTransportSizeByte, 1, 0, true},
	}
	for _, tt := range tests {
		got, err := tt.ts.ByteCount(tt.length)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ByteCount(0x%02X, %d): expected error", byte(tt.ts), tt.length)
			}
			continue
		}
		if err != nil {
			t.Errorf("ByteCount(0x%02X, %d): %v", byte(tt.ts), tt.length, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ByteCount(0x%02X, %d) = %d, want %d", byte(tt.ts), tt.length, got, tt.want)
		}
	}
}

func TestAddressRoundTrip(t *testing.T) {
	for byteAddr := 0; byteAddr <= 65535; byteAddr += 37 {
		for bitAddr := 0; bitAddr <= 7; bitAddr++ {
			want := Address{ByteAddr: uint16(byteAddr), BitAddr: byte(bitAddr)}
			b := want.Bytes()
			got := ParseAddressBytes(b[0], b[1], b[2])
			if got != want {
				t.Fatalf("round trip failed for %+v: got %+v", want, got)
			}
		}
	}
}

func TestAddressS4Bytes(t *testing.T) {
	addr := Address{ByteAddr: 300, BitAddr: 0}
	got := addr.Bytes()
	want := [3]byte{0x00, 0x09, 0x60}
	if got != want {
		t.Fatalf("got % X, want % X", got[:], want[:])
	}
}

func TestDecodeResumability(t *testing.T) {
	full := []byte{
		0x32, 0x01, 0x00, 0x00, 0x04, 0x00, 0x00, 0x08, 0x00, 0x00,
		0xF0, 0x00, 0x00, 0x01, 0x00, 0x01, 0x01, 0xE0,
	}
	for cut := 0; cut < len(full); cut++ {
		_, consumed, err := Decode(full[:cut])
		if !errors.Is(err, ErrIncomplete) {
			t.Fatalf("cut=%d: err = %v, want ErrIncomplete", cut, err)
		}
		if consumed != 0 {
			t.Fatalf("cut=%d: consumed = %d, want 0", cut, consumed)
		}
	}
	_, consumed, err := Decode(full)
	if err != nil {
		t.Fatalf("full decode: %v", err)
	}
	if consumed != len(full) {
		t.Fatalf("consumed = %d, want %d", consumed, len(full))
	}
}

func TestWriteVarPadByteExceptLastItem(t *testing.T) {
	job := JobWriteVar{
		Items: []ItemRequest{
			NewItemRequest(AreaMerker, DbNumberNotIn, TransportSizeByte, 3, Address{ByteAddr: 0}),
			NewItemRequest(AreaMerker, DbNumberNotIn, TransportSizeByte, 2, Address{ByteAddr: 10}),
		},
		Values: []DataItemVal{
			{ReturnCode: ReturnCodeSuccess, TransportSizeType: DataTransportSizeByte, Length: 24, Data: []byte{1, 2, 3}},
			{ReturnCode: ReturnCodeSuccess, TransportSizeType: DataTransportSizeByte, Length: 16, Data: []byte{4, 5}},
		},
	}
	f := JobFrame{Header: Header{PduRef: 1}, Job: job}

	var buf bytes.Buffer
	if err := Encode(f, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, consumed, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != buf.Len() {
		t.Fatalf("consumed = %d, want %d", consumed, buf.Len())
	}
	jf := decoded.(JobFrame)
	// parameter: function + count + 2 item requests; data: two items, the
	// first padded to even length.
	if jf.Header.ParameterLen != 2+2*12 {
		t.Fatalf("parameter_len = %d, want %d", jf.Header.ParameterLen, 2+2*12)
	}
	if jf.Header.DataLen != (4+3+1)+(4+2) {
		t.Fatalf("data_len = %d, want %d", jf.Header.DataLen, (4+3+1)+(4+2))
	}
	got := jf.Job.(JobWriteVar)
	if len(got.Values) != 2 {
		t.Fatalf("value count = %d, want 2", len(got.Values))
	}
	hexEqual(t, got.Values[0].Data, []byte{1, 2, 3})
	hexEqual(t, got.Values[1].Data, []byte{4, 5})
}

// Builders carry the exact section byte counts in the header they build;
// Encode's own computation must then agree with them.
func TestBuildComputesHeaderLengths(t *testing.T) {
	it := func(addr uint16) ItemRequest {
		return NewItemRequest(AreaMerker, DbNumberNotIn, TransportSizeByte, 2, Address{ByteAddr: addr})
	}
	tests := []struct {
		name         string
		frame        JobFrame
		wantParamLen uint16
		wantDataLen  uint16
	}{
		{
			"setup communication",
			NewSetupCommunicationBuilder(1).AmqCalling(1).AmqCalled(1).PduLength(480).Build(),
			8, 0,
		},
		{
			"readvar two items",
			NewReadVarBuilder(2).Item(it(0)).Item(it(2)).Build(),
			26, 0,
		},
		{
			"writevar odd then even payload",
			NewWriteVarBuilder(3).
				Item(it(0), DataItemVal{TransportSizeType: DataTransportSizeByte, Length: 24, Data: []byte{1, 2, 3}}).
				Item(it(4), DataItemVal{TransportSizeType: DataTransportSizeByte, Length: 16, Data: []byte{4, 5}}).
				Build(),
			26, 14,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.frame.Header.ParameterLen != tt.wantParamLen {
				t.Errorf("parameter_len = %d, want %d", tt.frame.Header.ParameterLen, tt.wantParamLen)
			}
			if tt.frame.Header.DataLen != tt.wantDataLen {
				t.Errorf("data_len = %d, want %d", tt.frame.Header.DataLen, tt.wantDataLen)
			}
			var buf bytes.Buffer
			if err := Encode(tt.frame, &buf); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if buf.Len() != 10+int(tt.wantParamLen)+int(tt.wantDataLen) {
				t.Errorf("encoded length = %d, want %d", buf.Len(), 10+int(tt.wantParamLen)+int(tt.wantDataLen))
			}
		})
	}
}

func TestItemRequestAlwaysTwelveBytes(t *testing.T) {
	it := NewItemRequest(AreaProcessInput, DbNumberNotIn, TransportSizeBit, 1, Address{ByteAddr: 12345, BitAddr: 6})
	var buf bytes.Buffer
	if err := encodeItemRequest(it, &buf); err != nil {
		t.Fatalf("encodeItemRequest: %v", err)
	}
	if buf.Len() != 12 {
		t.Fatalf("encoded length = %d, want 12", buf.Len())
	}
}

func TestUnknownRosctrIsDecodeError(t *testing.T) {
	wire := []byte{0x32, 0x07, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	_, _, err := Decode(wire)
	if err == nil || errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
