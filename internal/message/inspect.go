package message

import (
	"fmt"

	"github.com/danmuck/ual/internal/codec"
	"github.com/danmuck/ual/internal/protocol"
	"github.com/danmuck/ual/internal/protocol/schema"
)

// FieldInfo describes one TLV field of a frame.
type FieldInfo struct {
	ID     uint16 `json:"id"`
	Name   string `json:"name"`
	Type   uint8  `json:"type"`
	Length int    `json:"length"`
	Value  string `json:"value,omitempty"`
}

// Inspection is a structural view of an envelope. It does no
// verification and touches no codec state.
type Inspection struct {
	Type       string      `json:"type"`
	Version    uint16      `json:"version"`
	Sequence   uint64      `json:"sequence"`
	Flags      []string    `json:"flags"`
	PayloadLen uint64      `json:"payload_len"`
	Algorithm  string      `json:"algorithm,omitempty"`
	Fields     []FieldInfo `json:"fields"`
	// Payload is the CBOR diagnostic notation of the uncompressed
	// payload.
	Payload string `json:"payload"`
}

func Inspect(data []byte) (*Inspection, error) {
	msg, err := protocol.Unmarshal(data)
	if err != nil {
		return nil, malformed(err)
	}
	out := &Inspection{
		Type:       msg.Header.MessageType.String(),
		Version:    msg.Header.Version,
		Sequence:   msg.Header.Sequence,
		Flags:      flagNames(msg.Header.Flags),
		PayloadLen: msg.Header.PayloadLen,
	}
	if len(msg.AuthBlock) > 0 {
		if sig, err := schema.DecodeSignature(msg.AuthBlock); err == nil {
			out.Algorithm = sig.Algorithm
		}
	}
	for _, f := range msg.Fields {
		out.Fields = append(out.Fields, FieldInfo{
			ID:     f.ID,
			Name:   schema.FieldName(f.ID),
			Type:   uint8(f.Type),
			Length: len(f.Value),
			Value:  fieldText(f),
		})
	}

	sem, err := schema.Validate(msg)
	if err != nil {
		return nil, malformed(err)
	}
	raw, err := unpack(sem, protocol.DefaultLimits())
	if err != nil {
		return nil, malformed(err)
	}
	out.Payload, err = codec.Diagnose(raw)
	if err != nil {
		return nil, &DecodeError{Kind: KindPayload, Err: err}
	}
	return out, nil
}

func flagNames(flags uint32) []string {
	names := []string{}
	if flags&protocol.FlagHasAuth != 0 {
		names = append(names, "auth")
	}
	if flags&protocol.FlagDelta != 0 {
		names = append(names, "delta")
	}
	if flags&protocol.FlagCompressed != 0 {
		names = append(names, "compressed")
	}
	return names
}

// fieldText renders scalar fields; byte fields are left to Length.
func fieldText(f protocol.Field) string {
	switch f.Type {
	case protocol.FieldString:
		s, _ := f.String()
		return s
	case protocol.FieldUint8:
		v, _ := f.Uint8()
		return fmt.Sprint(v)
	case protocol.FieldUint32:
		v, _ := f.Uint32()
		return fmt.Sprint(v)
	case protocol.FieldUint64:
		v, _ := f.Uint64()
		return fmt.Sprint(v)
	case protocol.FieldFloat64:
		v, _ := f.Float64()
		return fmt.Sprint(v)
	case protocol.FieldBool:
		v, _ := f.Bool()
		return fmt.Sprint(v)
	default:
		return ""
	}
}
