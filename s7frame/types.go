// Package s7frame implements the S7 Communication application layer: Job
// requests and AckData responses carrying SetupCommunication, ReadVar and
// WriteVar payloads, plus the item-addressing and data-item encodings they
// build on.
package s7frame

import "fmt"

// ProtocolID is the fixed first byte of every S7 frame.
const ProtocolID byte = 0x32

// Rosctr identifies the kind of S7 PDU (ROSCTR field).
type Rosctr byte

const (
	RosctrJob     Rosctr = 0x01
	RosctrAckData Rosctr = 0x03
)

// Function codes, the first byte of the parameter section.
type Function byte

const (
	FuncSetupCommunication Function = 0xF0
	FuncReadVar            Function = 0x04
	FuncWriteVar           Function = 0x05
)

// Area selects an S7 memory area for item addressing. Unknown values survive
// decode/re-encode unchanged; only the values this client builds or expects
// to see from a PLC are named.
type Area byte

const (
	AreaSysInfo       Area = 0x03
	AreaSysFlags      Area = 0x05
	AreaAnalogIn      Area = 0x06
	AreaAnalogOut     Area = 0x07
	AreaCounterS7     Area = 0x1C
	AreaTimerS7       Area = 0x1D
	AreaCounterIEC    Area = 0x1E
	AreaTimerIEC      Area = 0x1F
	AreaProcessInput  Area = 0x81
	AreaProcessOutput Area = 0x82
	AreaMerker        Area = 0x83
	AreaDataBlocks    Area = 0x84
	AreaInstanceDB    Area = 0x85
	AreaLocal         Area = 0x86
)

func (a Area) String() string {
	switch a {
	case AreaProcessInput:
		return "ProcessInput"
	case AreaProcessOutput:
		return "ProcessOutput"
	case AreaMerker:
		return "Merker"
	case AreaDataBlocks:
		return "DataBlocks"
	case AreaInstanceDB:
		return "InstanceDB"
	case AreaLocal:
		return "Local"
	case AreaCounterS7, AreaCounterIEC:
		return "Counter"
	case AreaTimerS7, AreaTimerIEC:
		return "Timer"
	default:
		return fmt.Sprintf("Area(0x%02X)", byte(a))
	}
}

// Syntax identifies the item addressing syntax. Only S7Any is built by this
// client; any other tag decodes to its raw value and re-encodes unchanged.
type Syntax byte

const SyntaxS7Any Syntax = 0x10

// DbNumber is either NotIn (no data block involved) or a concrete DB number.
type DbNumber uint16

const DbNumberNotIn DbNumber = 0

// ReturnCode is the per-item status byte on DataItemVal / DataItemWriteResponse.
type ReturnCode byte

const (
	ReturnCodeReserved         ReturnCode = 0x00
	ReturnCodeHardwareFault    ReturnCode = 0x01
	ReturnCodeAccessDenied     ReturnCode = 0x03
	ReturnCodeAddressError     ReturnCode = 0x05
	ReturnCodeTypeError        ReturnCode = 0x06
	ReturnCodeTypeInconsistent ReturnCode = 0x07
	ReturnCodeNotExist         ReturnCode = 0x0A
	ReturnCodeSuccess          ReturnCode = 0xFF
)

func (r ReturnCode) String() string {
	switch r {
	case ReturnCodeSuccess:
		return "Success"
	case ReturnCodeReserved:
		return "Reserved"
	case ReturnCodeHardwareFault:
		return "HardwareFault"
	case ReturnCodeAccessDenied:
		return "AccessDenied"
	case ReturnCodeAddressError:
		return "AddressError"
	case ReturnCodeTypeError:
		return "TypeError"
	case ReturnCodeTypeInconsistent:
		return "TypeInconsistent"
	case ReturnCodeNotExist:
		return "ObjectDoesNotExist"
	default:
		return fmt.Sprintf("ReturnCode(0x%02X)", byte(r))
	}
}

// Ok reports whether r indicates a successful item operation.
func (r ReturnCode) Ok() bool { return r == ReturnCodeSuccess }

// TransportSize is the transport_size_type field of an ItemRequest — the
// type of data being requested.
type TransportSize byte

const (
	TransportSizeBit   TransportSize = 0x01
	TransportSizeByte  TransportSize = 0x02
	TransportSizeChar  TransportSize = 0x03
	TransportSizeWord  TransportSize = 0x04
	TransportSizeInt   TransportSize = 0x05
	TransportSizeDWord TransportSize = 0x06
	TransportSizeDInt  TransportSize = 0x07
	TransportSizeReal  TransportSize = 0x08
)

// IsBit reports whether this transport size addresses a single bit.
func (t TransportSize) IsBit() bool { return t == TransportSizeBit }

// DataTransportSize is the transport_size_type field of a DataItemVal. Its
// wire values are NOT the request-side TransportSize codes: responses use a
// separate table where the length field is a bit count for everything
// except Bit (count of bit values, one payload byte each) and OctetString
// (byte count).
type DataTransportSize byte

const (
	DataTransportSizeNull        DataTransportSize = 0x00
	DataTransportSizeBit         DataTransportSize = 0x03
	DataTransportSizeByte        DataTransportSize = 0x04 // byte/word/dword, length in bits
	DataTransportSizeInt         DataTransportSize = 0x05
	DataTransportSizeDInt        DataTransportSize = 0x06
	DataTransportSizeReal        DataTransportSize = 0x07
	DataTransportSizeOctetString DataTransportSize = 0x09 // length in bytes
)

// IsBit reports whether the length field counts individual bit values, the
// payload carrying one byte per bit.
func (d DataTransportSize) IsBit() bool { return d == DataTransportSizeBit }

// ByteCount converts a DataItemVal length field to its payload byte count:
// taken as-is for Bit and OctetString, divided by 8 for every bit-counted
// transport.
func (d DataTransportSize) ByteCount(length uint16) (int, error) {
	switch d {
	case DataTransportSizeBit, DataTransportSizeOctetString:
		return int(length), nil
	default:
		if length%8 != 0 {
			return 0, fmt.Errorf("s7frame: transport 0x%02X length %d bits is not a whole number of bytes", byte(d), length)
		}
		return int(length / 8), nil
	}
}

// Address is a 3-byte S7ANY bit address: byte_addr*8 + bit_addr.
type Address struct {
	ByteAddr uint16
	BitAddr  byte // 0..7
}

// Bytes packs a into the 3-byte big-endian S7ANY representation.
func (a Address) Bytes() [3]byte {
	b0 := byte(a.ByteAddr >> 8)
	b1 := byte(a.ByteAddr)
	return [3]byte{
		b0 >> 5,
		b0<<3 | b1>>5,
		b1<<3 | a.BitAddr,
	}
}

// ParseAddressBytes unpacks the 3-byte S7ANY representation back into an
// Address.
func ParseAddressBytes(b0, b1, b2 byte) Address {
	i0 := b0<<5 | b1>>3
	i1 := b1<<5 | b2>>3
	return Address{
		ByteAddr: uint16(i0)<<8 | uint16(i1),
		BitAddr:  b2 & 0x07,
	}
}

// Header is the 10-byte S7 header preceding a Job.
type Header struct {
	ProtocolID   byte
	Reserved     uint16
	PduRef       uint16
	ParameterLen uint16
	DataLen      uint16
}

// HeaderAckData is the 12-byte S7 header preceding an AckData.
type HeaderAckData struct {
	ProtocolID   byte
	Reserved     uint16
	PduRef       uint16
	ParameterLen uint16
	DataLen      uint16
	ErrorClass   byte
	ErrorCode    byte
}

// SetupCommunication negotiates the PDU size and outstanding-request counts.
type SetupCommunication struct {
	Reserved      byte
	MaxAmqCalling uint16
	MaxAmqCalled  uint16
	PduLength     uint16
}

// ItemRequest addresses one S7ANY memory item. It is always exactly 12 bytes
// on the wire.
type ItemRequest struct {
	Syntax            Syntax
	TransportSizeType TransportSize
	Length            uint16
	DbNumber          DbNumber
	Area              Area
	Address           Address
}

// DataItemVal is one item of a ReadVar (or WriteVar request) data section.
type DataItemVal struct {
	ReturnCode        ReturnCode
	TransportSizeType DataTransportSize
	Length            uint16
	Data              []byte
}

// DataItemWriteResponse is one item of a WriteVar AckData data section: just
// a status byte, no payload.
type DataItemWriteResponse struct {
	ReturnCode ReturnCode
}

// Job is the sum type of S7 request payloads.
type Job interface {
	isJob()
}

// JobSetupCommunication is a Job carrying a SetupCommunication request.
type JobSetupCommunication struct{ SetupCommunication }

func (JobSetupCommunication) isJob() {}

// JobReadVar is a Job requesting one or more items.
type JobReadVar struct{ Items []ItemRequest }

func (JobReadVar) isJob() {}

// JobWriteVar is a Job writing one or more items with their values.
type JobWriteVar struct {
	Items  []ItemRequest
	Values []DataItemVal
}

func (JobWriteVar) isJob() {}

// AckData is the sum type of S7 response payloads.
type AckData interface {
	isAckData()
}

// AckSetupCommunication is the response to a SetupCommunication Job.
type AckSetupCommunication struct{ SetupCommunication }

func (AckSetupCommunication) isAckData() {}

// AckReadVar is the response to a ReadVar Job.
type AckReadVar struct{ Items []DataItemVal }

func (AckReadVar) isAckData() {}

// AckWriteVar is the response to a WriteVar Job.
type AckWriteVar struct{ Items []DataItemWriteResponse }

func (AckWriteVar) isAckData() {}

// Frame is the sum type of a decoded or to-be-encoded S7 application frame.
type Frame interface {
	isFrame()
}

// JobFrame pairs a Header with its Job payload.
type JobFrame struct {
	Header Header
	Job    Job
}

func (JobFrame) isFrame() {}

// AckDataFrame pairs a HeaderAckData with its AckData payload.
type AckDataFrame struct {
	Header  HeaderAckData
	AckData AckData
}

func (AckDataFrame) isFrame() {}
