package cotp

// ConnectBuilder fluently assembles a ConnectComm for either a
// ConnectRequest or a ConnectConfirm.
type ConnectBuilder struct {
	comm ConnectComm
}

// NewConnectBuilder starts a new Connect builder.
func NewConnectBuilder() *ConnectBuilder {
	return &ConnectBuilder{}
}

// SourceRef sets the source reference.
func (b *ConnectBuilder) SourceRef(ref uint16) *ConnectBuilder {
	b.comm.SourceRef = ref
	return b
}

// DestinationRef sets the destination reference.
func (b *ConnectBuilder) DestinationRef(ref uint16) *ConnectBuilder {
	b.comm.DestinationRef = ref
	return b
}

// ClassAndOthers sets the transport class and the two flag bits.
func (b *ConnectBuilder) ClassAndOthers(class byte, extendedFormats, noExplicitFlowControl bool) *ConnectBuilder {
	b.comm.Class = class
	b.comm.ExtendedFormats = extendedFormats
	b.comm.NoExplicitFlowControl = noExplicitFlowControl
	return b
}

// PushParameter appends one parameter, preserving call order on the wire.
func (b *ConnectBuilder) PushParameter(p Parameter) *ConnectBuilder {
	b.comm.Parameters = append(b.comm.Parameters, p)
	return b
}

// BuildRequest finalizes the builder into a ConnectRequest PDU.
func (b *ConnectBuilder) BuildRequest() ConnectRequest {
	return ConnectRequest{b.comm}
}

// BuildConfirm finalizes the builder into a ConnectConfirm PDU.
func (b *ConnectBuilder) BuildConfirm() ConnectConfirm {
	return ConnectConfirm{b.comm}
}
