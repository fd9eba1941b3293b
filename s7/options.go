package s7

import (
	"fmt"
	"time"

	"s7link/cotp"
	"s7link/metrics"
)

// ConnectionType selects the TSAP role a client presents to the PLC.
type ConnectionType byte

const (
	ConnTypePG    ConnectionType = 0x01
	ConnTypeOP    ConnectionType = 0x02
	ConnTypeBasic ConnectionType = 0x03
)

// ConnectMode derives the local/remote TSAP pair used during the COTP
// Connect Request. Tsap and RackSlot are the two ways to express it.
type ConnectMode interface {
	tsaps() (local, remote [2]byte)
}

// Tsap supplies the local and remote TSAP bytes directly.
type Tsap struct {
	ConnType   ConnectionType
	LocalTsap  [2]byte
	RemoteTsap [2]byte
}

func (t Tsap) tsaps() (local, remote [2]byte) { return t.LocalTsap, t.RemoteTsap }

// RackSlot derives the TSAP pair from the PLC's rack/slot position, the
// common case for S7-300/400/1200/1500 targets.
type RackSlot struct {
	ConnType ConnectionType
	Rack     byte
	Slot     byte
}

func (r RackSlot) tsaps() (local, remote [2]byte) {
	local = [2]byte{0x01, 0x00}
	remote = [2]byte{byte(r.ConnType), (r.Rack << 5) | (r.Slot & 0x1F)}
	return local, remote
}

// Logger receives the same connect/transfer events a Session generates,
// independent of whether anyone is watching.
type Logger interface {
	Debugf(format string, args ...interface{})
	TX(data []byte)
	RX(data []byte)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) TX([]byte)                     {}
func (noopLogger) RX([]byte)                     {}

// Options configures a Session. Construct with NewOptions and zero or more
// With* functions.
type Options struct {
	Address      string
	Port         int
	ConnMode     ConnectMode
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TpduSize     cotp.TpduSize
	PduLen       uint16
	Logger       Logger
	Metrics      *metrics.Collector
}

// Option mutates an Options during construction.
type Option func(*Options)

// NewOptions builds an Options for address with sensible defaults: port 102,
// a PG connection to rack 0 slot 2, 500ms read/write timeouts, a 2048-octet
// COTP TPDU size and a 480-byte PDU length proposal.
func NewOptions(address string, opts ...Option) *Options {
	o := &Options{
		Address:      address,
		Port:         102,
		ConnMode:     RackSlot{ConnType: ConnTypePG, Rack: 0, Slot: 2},
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		TpduSize:     cotp.Size2048,
		PduLen:       480,
		Logger:       noopLogger{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithPort overrides the default ISO-on-TCP port (102).
func WithPort(port int) Option {
	return func(o *Options) { o.Port = port }
}

// WithConnMode overrides the default PG/rack-0/slot-2 connection mode.
func WithConnMode(mode ConnectMode) Option {
	return func(o *Options) { o.ConnMode = mode }
}

// WithTimeout sets both the read and write timeout to d.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.ReadTimeout, o.WriteTimeout = d, d }
}

// WithTpduSize overrides the proposed COTP TPDU size. It is validated
// against class-0 limits when the Session connects.
func WithTpduSize(size cotp.TpduSize) Option {
	return func(o *Options) { o.TpduSize = size }
}

// WithPduLength overrides the proposed S7 PDU length.
func WithPduLength(n uint16) Option {
	return func(o *Options) { o.PduLen = n }
}

// WithLogger attaches a Logger. Passing nil restores the no-op logger.
func WithLogger(l Logger) Option {
	return func(o *Options) {
		if l == nil {
			l = noopLogger{}
		}
		o.Logger = l
	}
}

// WithMetrics attaches a Collector the Session updates as it operates.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Options) { o.Metrics = c }
}

func (o *Options) validate() error {
	if o.Address == "" {
		return fmt.Errorf("s7: address must not be empty")
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	if !o.TpduSize.ValidForClass0() {
		return fmt.Errorf("s7: tpdu size %v is not valid for a class-0 connection", o.TpduSize)
	}
	return nil
}
