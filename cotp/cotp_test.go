package cotp

import (
	"bytes"
	"errors"
	"testing"
)

func rawEncode(payload []byte, dst *bytes.Buffer) error {
	dst.Write(payload)
	return nil
}

func rawDecode(n int) DecodeFunc[[]byte] {
	return func(data []byte) ([]byte, int, error) {
		if len(data) < n {
			return nil, 0, ErrIncomplete
		}
		return append([]byte(nil), data[:n]...), n, nil
	}
}

// S3 from the worked scenarios: ConnectRequest with src_ref=[0,1],
// dst_ref=[0,0], class=0, params TpduSize=L1024, SrcTsap=[1,0], DstTsap=[2,1].
func TestConnectRequestEncodeS3(t *testing.T) {
	req := NewConnectBuilder().
		SourceRef(1).
		DestinationRef(0).
		ClassAndOthers(0, false, false).
		PushParameter(ParamTpduSize{Size: Size1024}).
		PushParameter(ParamSrcTsap{Value: []byte{1, 0}}).
		PushParameter(ParamDstTsap{Value: []byte{2, 1}}).
		BuildRequest()

	var buf bytes.Buffer
	if err := Encode(&buf, Frame[[]byte]{PDU: req}, rawEncode); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := []byte{
		0x11, 0xE0, 0x00, 0x00, 0x00, 0x01, 0x00,
		0xC0, 0x01, 0x0A,
		0xC1, 0x02, 0x01, 0x00,
		0xC2, 0x02, 0x02, 0x01,
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("encoded = % X, want % X", buf.Bytes(), want)
	}

	got, consumed, err := Decode(buf.Bytes(), rawDecode(0))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != len(want) {
		t.Fatalf("consumed = %d, want %d", consumed, len(want))
	}
	cr, ok := got.PDU.(ConnectRequest)
	if !ok {
		t.Fatalf("decoded PDU type = %T, want ConnectRequest", got.PDU)
	}
	if cr.SourceRef != 1 || cr.DestinationRef != 0 || cr.Class != 0 {
		t.Fatalf("decoded ConnectComm = %+v", cr.ConnectComm)
	}
	if len(cr.Parameters) != 3 {
		t.Fatalf("parameter count = %d, want 3", len(cr.Parameters))
	}
	ts, ok := cr.Parameters[0].(ParamTpduSize)
	if !ok || ts.Size != Size1024 {
		t.Fatalf("parameter[0] = %+v, want TpduSize L1024", cr.Parameters[0])
	}
}

// S2 from the worked scenarios: DtData wrapping an S7 Setup Job,
// tpdu_number=0, last_data_unit=true.
func TestDtDataEncodeS2(t *testing.T) {
	s7Job := []byte{
		0x32, 0x01, 0x00, 0x00, 0x04, 0x00, 0x00, 0x08, 0x00, 0x00,
		0xF0, 0x00, 0x00, 0x01, 0x00, 0x01, 0x01, 0xE0,
	}
	f := Frame[[]byte]{PDU: DtDataPDU[[]byte]{DtData[[]byte]{
		TpduNumber:   0,
		LastDataUnit: true,
		Payload:      s7Job,
	}}}

	var buf bytes.Buffer
	if err := Encode(&buf, f, rawEncode); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := append([]byte{0x02, 0xF0, 0x80}, s7Job...)
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("encoded = % X, want % X", buf.Bytes(), want)
	}

	got, consumed, err := Decode(buf.Bytes(), rawDecode(len(s7Job)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != len(want) {
		t.Fatalf("consumed = %d, want %d", consumed, len(want))
	}
	dt, ok := got.PDU.(DtDataPDU[[]byte])
	if !ok {
		t.Fatalf("decoded PDU type = %T, want DtDataPDU", got.PDU)
	}
	if dt.TpduNumber != 0 || !dt.LastDataUnit {
		t.Fatalf("decoded DtData = %+v", dt.DtData)
	}
	if !bytes.Equal(dt.Payload, s7Job) {
		t.Fatalf("payload = % X, want % X", dt.Payload, s7Job)
	}
}

func TestTpduNumberMaskedTo7Bits(t *testing.T) {
	f := Frame[[]byte]{PDU: DtDataPDU[[]byte]{DtData[[]byte]{
		TpduNumber:   0xFF, // caller passes a bad value; encode must mask it
		LastDataUnit: false,
		Payload:      []byte{0xAA},
	}}}
	var buf bytes.Buffer
	if err := Encode(&buf, f, rawEncode); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, _, err := Decode(buf.Bytes(), rawDecode(1))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	dt := got.PDU.(DtDataPDU[[]byte])
	if dt.TpduNumber != 0x7F {
		t.Fatalf("tpdu_number = 0x%02X, want 0x7F", dt.TpduNumber)
	}
}

func TestDecodeIncompleteAtEveryBoundary(t *testing.T) {
	full := []byte{
		0x11, 0xE0, 0x00, 0x00, 0x00, 0x01, 0x00,
		0xC0, 0x01, 0x0A,
		0xC1, 0x02, 0x01, 0x00,
		0xC2, 0x02, 0x02, 0x01,
	}
	for cut := 0; cut < len(full); cut++ {
		_, consumed, err := Decode(full[:cut], rawDecode(0))
		if !errors.Is(err, ErrIncomplete) {
			t.Fatalf("cut=%d: err = %v, want ErrIncomplete", cut, err)
		}
		if consumed != 0 {
			t.Fatalf("cut=%d: consumed = %d, want 0", cut, consumed)
		}
	}
}

func TestUnknownParameterTagIsDecodeError(t *testing.T) {
	body := []byte{
		0x08, 0xE0, 0x00, 0x00, 0x00, 0x00, 0x00,
		0xCF, 0x00,
	}
	_, _, err := Decode(body, rawDecode(0))
	if err == nil || errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestTpduSizeIllegalForClass0(t *testing.T) {
	if Size4096.ValidForClass0() {
		t.Fatal("Size4096 must not be valid for class 0")
	}
	if Size8192.ValidForClass0() {
		t.Fatal("Size8192 must not be valid for class 0")
	}
	if !Size2048.ValidForClass0() {
		t.Fatal("Size2048 must be valid for class 0")
	}
}
