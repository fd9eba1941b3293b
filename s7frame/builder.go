package s7frame

// itemRequestSize is the fixed on-wire width of one ItemRequest.
const itemRequestSize = 12

// readVarParamLen is the parameter-section byte count for a Read/WriteVar
// carrying n items: function byte, item count, then the items themselves.
func readVarParamLen(n int) uint16 {
	return uint16(2 + n*itemRequestSize)
}

// dataItemValsLen is the data-section byte count for a sequence of
// DataItemVals, counting the pad byte after each non-final odd-length item.
func dataItemValsLen(values []DataItemVal) uint16 {
	var n int
	for i, v := range values {
		n += 4 + len(v.Data)
		if len(v.Data)%2 == 1 && i != len(values)-1 {
			n++
		}
	}
	return uint16(n)
}

// ReadVarBuilder accumulates ItemRequests for a ReadVar Job.
type ReadVarBuilder struct {
	pduRef uint16
	items  []ItemRequest
}

// NewReadVarBuilder starts a ReadVar builder carrying pduRef into the
// finalized frame's header.
func NewReadVarBuilder(pduRef uint16) *ReadVarBuilder {
	return &ReadVarBuilder{pduRef: pduRef}
}

// Item appends one item to read.
func (b *ReadVarBuilder) Item(it ItemRequest) *ReadVarBuilder {
	b.items = append(b.items, it)
	return b
}

// Build finalizes the builder into a JobFrame whose header carries the
// exact parameter and data section byte counts of the accumulated items.
func (b *ReadVarBuilder) Build() JobFrame {
	return JobFrame{
		Header: Header{
			PduRef:       b.pduRef,
			ParameterLen: readVarParamLen(len(b.items)),
		},
		Job: JobReadVar{Items: append([]ItemRequest(nil), b.items...)},
	}
}

// WriteVarBuilder accumulates ItemRequest + DataItemVal pairs for a WriteVar
// Job.
type WriteVarBuilder struct {
	pduRef uint16
	items  []ItemRequest
	values []DataItemVal
}

// NewWriteVarBuilder starts a WriteVar builder carrying pduRef into the
// finalized frame's header.
func NewWriteVarBuilder(pduRef uint16) *WriteVarBuilder {
	return &WriteVarBuilder{pduRef: pduRef}
}

// Item appends one item/value pair to write. Callers cannot forget to keep
// the two slices in step because Item is the only way to add to either.
func (b *WriteVarBuilder) Item(it ItemRequest, val DataItemVal) *WriteVarBuilder {
	b.items = append(b.items, it)
	b.values = append(b.values, val)
	return b
}

// Build finalizes the builder into a JobFrame whose header carries the
// exact parameter and data section byte counts of the accumulated pairs.
func (b *WriteVarBuilder) Build() JobFrame {
	return JobFrame{
		Header: Header{
			PduRef:       b.pduRef,
			ParameterLen: readVarParamLen(len(b.items)),
			DataLen:      dataItemValsLen(b.values),
		},
		Job: JobWriteVar{
			Items:  append([]ItemRequest(nil), b.items...),
			Values: append([]DataItemVal(nil), b.values...),
		},
	}
}

// SetupCommunicationBuilder builds the initial S7 setup Job.
type SetupCommunicationBuilder struct {
	pduRef uint16
	sc     SetupCommunication
}

// NewSetupCommunicationBuilder starts a SetupCommunication builder carrying
// pduRef into the finalized frame's header.
func NewSetupCommunicationBuilder(pduRef uint16) *SetupCommunicationBuilder {
	return &SetupCommunicationBuilder{pduRef: pduRef}
}

// AmqCalling sets the max outstanding-request count this client offers.
func (b *SetupCommunicationBuilder) AmqCalling(n uint16) *SetupCommunicationBuilder {
	b.sc.MaxAmqCalling = n
	return b
}

// AmqCalled sets the max outstanding-request count requested of the peer.
func (b *SetupCommunicationBuilder) AmqCalled(n uint16) *SetupCommunicationBuilder {
	b.sc.MaxAmqCalled = n
	return b
}

// PduLength sets the proposed maximum S7 PDU size.
func (b *SetupCommunicationBuilder) PduLength(n uint16) *SetupCommunicationBuilder {
	b.sc.PduLength = n
	return b
}

// Build finalizes the builder into a JobFrame. The parameter section is the
// function byte plus the fixed 7-byte setup body.
func (b *SetupCommunicationBuilder) Build() JobFrame {
	return JobFrame{
		Header: Header{PduRef: b.pduRef, ParameterLen: 8},
		Job:    JobSetupCommunication{b.sc},
	}
}

// NewItemRequest builds an S7ANY ItemRequest for the given area/transport
// size/address, filling in the fixed syntax_id.
func NewItemRequest(area Area, db DbNumber, ts TransportSize, length uint16, addr Address) ItemRequest {
	return ItemRequest{
		Syntax:            SyntaxS7Any,
		TransportSizeType: ts,
		Length:            length,
		DbNumber:          db,
		Area:              area,
		Address:           addr,
	}
}
