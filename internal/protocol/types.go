package protocol

const (
	// Magic is "UAL1".
	Magic      uint32 = 0x55414C31
	Version    uint16 = 1
	HeaderSize uint16 = 32
)

type MessageType uint32

const (
	MessageGraph     MessageType = 1
	MessageHandshake MessageType = 2
)

func (t MessageType) String() string {
	switch t {
	case MessageGraph:
		return "graph"
	case MessageHandshake:
		return "handshake"
	default:
		return "unknown"
	}
}

const (
	FlagHasAuth    uint32 = 0x01
	FlagDelta      uint32 = 0x02
	FlagCompressed uint32 = 0x04
)

// FieldType tags a TLV value. Type 2 is reserved.
type FieldType uint8

const (
	FieldUint8   FieldType = 1
	FieldUint32  FieldType = 3
	FieldUint64  FieldType = 4
	FieldBool    FieldType = 5
	FieldString  FieldType = 6
	FieldBytes   FieldType = 7
	FieldFloat64 FieldType = 8
)

// Header is the fixed frame header.
type Header struct {
	Magic       uint32
	Version     uint16
	HeaderLen   uint16
	Sequence    uint64
	MessageType MessageType
	Flags       uint32
	PayloadLen  uint64
}

// Field is one TLV field. Value holds the big-endian encoding for
// numeric types.
type Field struct {
	ID    uint16
	Type  FieldType
	Value []byte
}

// Message is one complete frame.
type Message struct {
	Header    Header
	AuthBlock []byte
	Fields    []Field
}

// Limits constrains decode memory use.
type Limits struct {
	MaxAuthBytes    uint64
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxAuthBytes:    4 * 1024,
		MaxPayloadBytes: 8 * 1024 * 1024,
	}
}
