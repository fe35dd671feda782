// Package schema declares the envelope field contract per message type
// and validates decoded frames against it.
package schema

import (
	"errors"
	"fmt"

	"github.com/danmuck/ual/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Envelope field ids. Encoders emit them in this order.
const (
	FieldSender          uint16 = 1
	FieldReceiver        uint16 = 2
	FieldTimestamp       uint16 = 3
	FieldMessageID       uint16 = 4
	FieldProtocolVersion uint16 = 5
	FieldUrgency         uint16 = 6
	FieldStyle           uint16 = 7
	FieldEnvFrame        uint16 = 8
	FieldIsDelta         uint16 = 9
	FieldParentHash      uint16 = 10
	FieldSemanticHash    uint16 = 11
	FieldCompression     uint16 = 12
	FieldRawLength       uint16 = 13

	FieldPayload uint16 = 100
)

// Signature block field ids.
const (
	FieldSigAlgorithm uint16 = 1
	FieldSignature    uint16 = 2
)

type ValidationError struct {
	MessageType protocol.MessageType
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

func common(msgType protocol.MessageType, extra ...protocol.FieldSpec) protocol.Schema {
	fields := []protocol.FieldSpec{
		{ID: FieldSender, Type: protocol.FieldString, Required: true},
		{ID: FieldReceiver, Type: protocol.FieldString, Required: true},
		{ID: FieldTimestamp, Type: protocol.FieldUint64, Required: true},
		{ID: FieldMessageID, Type: protocol.FieldString, Required: true},
		{ID: FieldProtocolVersion, Type: protocol.FieldString, Required: true},
		{ID: FieldSemanticHash, Type: protocol.FieldString, Required: true},
		{ID: FieldCompression, Type: protocol.FieldString},
		{ID: FieldRawLength, Type: protocol.FieldUint32},
		{ID: FieldPayload, Type: protocol.FieldBytes, Required: true},
	}
	return protocol.Schema{MessageType: msgType, Fields: append(fields, extra...)}
}

var schemas = map[protocol.MessageType]protocol.Schema{
	protocol.MessageGraph: common(protocol.MessageGraph,
		protocol.FieldSpec{ID: FieldUrgency, Type: protocol.FieldFloat64},
		protocol.FieldSpec{ID: FieldStyle, Type: protocol.FieldUint8},
		protocol.FieldSpec{ID: FieldEnvFrame, Type: protocol.FieldBytes},
		protocol.FieldSpec{ID: FieldIsDelta, Type: protocol.FieldBool},
		protocol.FieldSpec{ID: FieldParentHash, Type: protocol.FieldString},
	),
	protocol.MessageHandshake: common(protocol.MessageHandshake),
}

var signatureSchema = []protocol.FieldSpec{
	{ID: FieldSigAlgorithm, Type: protocol.FieldString, Required: true},
	{ID: FieldSignature, Type: protocol.FieldBytes, Required: true},
}

// For returns the field contract for a message type.
func For(msgType protocol.MessageType) (protocol.Schema, bool) {
	s, ok := schemas[msgType]
	return s, ok
}

// Validate enforces required fields and field types for msg and
// returns its typed values. Unknown fields are ignored.
func Validate(msg *protocol.Message) (*protocol.SemanticMessage, error) {
	if msg == nil {
		return nil, ValidationError{Reason: "nil message"}
	}
	s, ok := schemas[msg.Header.MessageType]
	if !ok {
		log.Debug().Uint32("message_type", uint32(msg.Header.MessageType)).Msg("schema: unknown message type")
		return nil, ValidationError{MessageType: msg.Header.MessageType, Reason: "unknown message_type"}
	}
	parsed, err := protocol.ParseSemantic(msg, s)
	if err != nil {
		return nil, wrap(msg.Header.MessageType, msg.Fields, s, err)
	}
	return parsed, nil
}

func wrap(msgType protocol.MessageType, fields []protocol.Field, s protocol.Schema, err error) error {
	var missing protocol.MissingFieldError
	if errors.As(err, &missing) {
		log.Debug().Uint32("message_type", uint32(msgType)).Uint16("field_id", missing.FieldID).Msg("schema: missing field")
		return ValidationError{MessageType: msgType, FieldID: missing.FieldID, Reason: "missing required field"}
	}
	if errors.Is(err, protocol.ErrFieldTypeMismatch) {
		for _, spec := range s.Fields {
			if f, ok := protocol.GetField(fields, spec.ID); ok && f.Type != spec.Type {
				return ValidationError{MessageType: msgType, FieldID: spec.ID, Reason: "type mismatch"}
			}
		}
	}
	return ValidationError{MessageType: msgType, Reason: err.Error()}
}

// Signature is a parsed signature block.
type Signature struct {
	Algorithm string
	Bytes     []byte
}

// EncodeSignature returns the TLV encoding of a signature block.
func EncodeSignature(sig Signature) ([]byte, error) {
	return protocol.EncodeFields([]protocol.Field{
		protocol.NewFieldString(FieldSigAlgorithm, sig.Algorithm),
		protocol.NewFieldBytes(FieldSignature, sig.Bytes),
	})
}

// DecodeSignature parses a signature block.
func DecodeSignature(block []byte) (Signature, error) {
	fields, err := protocol.DecodeFields(block)
	if err != nil {
		return Signature{}, err
	}
	for _, spec := range signatureSchema {
		f, ok := protocol.GetField(fields, spec.ID)
		if !ok {
			return Signature{}, ValidationError{FieldID: spec.ID, Reason: "missing signature field"}
		}
		if f.Type != spec.Type {
			return Signature{}, ValidationError{FieldID: spec.ID, Reason: "type mismatch"}
		}
	}
	alg, _ := protocol.GetField(fields, FieldSigAlgorithm)
	sig, _ := protocol.GetField(fields, FieldSignature)
	algorithm, _ := alg.String()
	raw, _ := sig.Bytes()
	return Signature{Algorithm: algorithm, Bytes: raw}, nil
}

var fieldNames = map[uint16]string{
	FieldSender:          "sender",
	FieldReceiver:        "receiver",
	FieldTimestamp:       "timestamp",
	FieldMessageID:       "message_id",
	FieldProtocolVersion: "protocol_version",
	FieldUrgency:         "urgency",
	FieldStyle:           "style",
	FieldEnvFrame:        "env_frame",
	FieldIsDelta:         "is_delta",
	FieldParentHash:      "parent_hash",
	FieldSemanticHash:    "semantic_hash",
	FieldCompression:     "compression",
	FieldRawLength:       "raw_length",
	FieldPayload:         "payload",
}

// FieldName names an envelope field id for tooling output.
func FieldName(id uint16) string {
	if name, ok := fieldNames[id]; ok {
		return name
	}
	return fmt.Sprintf("field_%d", id)
}
