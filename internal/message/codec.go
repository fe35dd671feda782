// Package message is the envelope codec: it compiles text into a graph,
// optionally reduces it to a per-peer delta, and frames it into a
// signed envelope; and it reverses all of that on receipt, ending in a
// natural-language gloss of the graph.
package message

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danmuck/ual/internal/atlas"
	"github.com/danmuck/ual/internal/codec"
	"github.com/danmuck/ual/internal/compiler"
	"github.com/danmuck/ual/internal/graph"
	"github.com/danmuck/ual/internal/observability"
	"github.com/danmuck/ual/internal/protocol"
	"github.com/danmuck/ual/internal/protocol/schema"
	"github.com/danmuck/ual/internal/signing"
	"github.com/danmuck/ual/internal/syncstate"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/danmuck/ual/internal/message")

var ErrNoAgentID = errors.New("message: agent id is required")

type Options struct {
	AgentID string
	Atlas   *atlas.Atlas
	// Compiler defaults to the rule compiler over Atlas.
	Compiler compiler.Compiler
	// Signer defaults to a fresh Ed25519 key.
	Signer signing.Signer
	// KeyRing receives keys advertised in handshakes.
	KeyRing *signing.KeyRing
	// Verifier defaults to KeyRing.
	Verifier signing.Verifier
	// Tracker defaults to a tracker owned and closed by the codec.
	Tracker     *syncstate.Tracker
	Compression Compression
	// StrictSignatures rejects envelopes that fail verification instead
	// of reporting Verified=false.
	StrictSignatures bool
	Limits           protocol.Limits
	EmbeddingTag     string
	Now              func() time.Time
}

type Codec struct {
	agentID      string
	atlas        *atlas.Atlas
	compiler     compiler.Compiler
	signer       signing.Signer
	keys         *signing.KeyRing
	verifier     signing.Verifier
	tracker      *syncstate.Tracker
	ownsTracker  bool
	compression  Compression
	strict       bool
	limits       protocol.Limits
	embeddingTag string
	now          func() time.Time
	seq          atomic.Uint64
}

func New(opts Options) (*Codec, error) {
	if strings.TrimSpace(opts.AgentID) == "" {
		return nil, ErrNoAgentID
	}
	if _, err := ParseCompression(string(opts.Compression)); err != nil {
		return nil, err
	}
	c := &Codec{
		agentID:      opts.AgentID,
		atlas:        opts.Atlas,
		compiler:     opts.Compiler,
		signer:       opts.Signer,
		keys:         opts.KeyRing,
		verifier:     opts.Verifier,
		tracker:      opts.Tracker,
		compression:  opts.Compression,
		strict:       opts.StrictSignatures,
		limits:       opts.Limits,
		embeddingTag: opts.EmbeddingTag,
		now:          opts.Now,
	}
	if c.atlas == nil {
		c.atlas = atlas.New()
	}
	if c.compiler == nil {
		c.compiler = compiler.NewRule(c.atlas)
	}
	if c.signer == nil {
		s, err := signing.GenerateEd25519()
		if err != nil {
			return nil, fmt.Errorf("message: generate key: %w", err)
		}
		c.signer = s
	}
	if c.keys == nil {
		c.keys = signing.NewKeyRing()
	}
	if c.verifier == nil {
		c.verifier = c.keys
	}
	if c.tracker == nil {
		c.tracker = syncstate.New(syncstate.DefaultConfig())
		c.ownsTracker = true
	}
	if c.compression == "" {
		c.compression = CompressionNone
	}
	if c.limits == (protocol.Limits{}) {
		c.limits = protocol.DefaultLimits()
	}
	if c.embeddingTag == "" {
		c.embeddingTag = DefaultEmbeddingTag
	}
	if c.now == nil {
		c.now = time.Now
	}
	if pub := c.signer.PublicKey(); len(pub) > 0 {
		if err := c.keys.Trust(c.agentID, pub); err != nil {
			return nil, fmt.Errorf("message: trust own key: %w", err)
		}
	}
	return c, nil
}

// Close releases the tracker when the codec created it.
func (c *Codec) Close() {
	if c.ownsTracker {
		c.tracker.Close()
	}
}

func (c *Codec) AgentID() string             { return c.agentID }
func (c *Codec) Atlas() *atlas.Atlas         { return c.atlas }
func (c *Codec) KeyRing() *signing.KeyRing   { return c.keys }
func (c *Codec) Tracker() *syncstate.Tracker { return c.tracker }
func (c *Codec) PublicKey() []byte           { return c.signer.PublicKey() }
func (c *Codec) Compile(ctx context.Context, text string) (compiler.Result, error) {
	return c.compiler.Compile(ctx, text)
}

// Encode compiles text and frames it for receiver. With useDelta and a
// non-broadcast receiver the payload is the delta against what this
// codec last sent to receiver, and the header carries the hash of the
// previous full graph as parent. An empty receiver means Broadcast.
func (c *Codec) Encode(ctx context.Context, text, receiver, contextID string, embeddings map[string][]float32, useDelta bool) ([]byte, error) {
	if receiver == "" {
		receiver = Broadcast
	}
	ctx, span := tracer.Start(ctx, "message.Encode", trace.WithAttributes(
		attribute.String("ual.receiver", receiver),
		attribute.Bool("ual.use_delta", useDelta),
	))
	defer span.End()

	res, err := c.compiler.Compile(ctx, text)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("message: compile: %w", err)
	}
	if len(res.Nodes) == 0 {
		if raw := strings.TrimSpace(text); raw != "" {
			res.Nodes = []graph.Node{{ID: graph.NodeID(0), Type: graph.Value, Literal: graph.StringLiteral(raw)}}
		}
	}
	c.attachEmbeddings(res.Nodes, embeddings)
	full := res.Graph(contextID)

	env := envelope{
		msgType:  protocol.MessageGraph,
		receiver: receiver,
		meta:     &res.Metadata,
		mode:     "full",
	}
	payload := full
	var out []byte
	if useDelta && receiver != Broadcast {
		fullHash, err := graph.GraphHash(full)
		if err != nil {
			return nil, err
		}
		env.isDelta = true
		env.mode = "delta"
		// Sealing happens under the receiver's lock so sequence numbers
		// follow baseline order and a failed seal leaves the baseline alone.
		err = c.tracker.SendDelta(full, receiver, fullHash, func(delta graph.Graph, parent string) error {
			payload, env.parent = delta, parent
			frame, err := c.sealGraph(env, delta)
			if err != nil {
				return err
			}
			out = frame
			return nil
		})
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("message: delta: %w", err)
		}
		span.SetAttributes(attribute.Int("ual.delta_nodes", len(payload.Nodes)), attribute.Bool("ual.rebase", payload.Rebase))
	} else {
		out, err = c.sealGraph(env, full)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}
	log.Debug().
		Str("component", "message").
		Str("peer", receiver).
		Str("mode", env.mode).
		Int("nodes", len(payload.Nodes)).
		Strs("dropped", res.Dropped).
		Int("bytes", len(out)).
		Msg("encoded")
	return out, nil
}

// CreateHandshake frames a broadcast handshake advertising this agent's
// capabilities, namespaces and public key. Nil capabilities become
// DefaultCapabilities; a non-positive computePower becomes
// DefaultComputePower.
func (c *Codec) CreateHandshake(ctx context.Context, capabilities []string, computePower int64, namespaces []string) ([]byte, error) {
	_, span := tracer.Start(ctx, "message.CreateHandshake")
	defer span.End()

	if capabilities == nil {
		capabilities = DefaultCapabilities
	}
	if computePower <= 0 {
		computePower = DefaultComputePower
	}
	if namespaces == nil {
		namespaces = []string{}
	}
	hs := Handshake{
		AgentID:      c.agentID,
		Capabilities: append([]string(nil), capabilities...),
		Namespaces:   append([]string(nil), namespaces...),
		PublicKey:    c.signer.PublicKey(),
		ComputePower: computePower,
	}
	raw, err := codec.Marshal(hs)
	if err != nil {
		return nil, err
	}
	return c.seal(envelope{msgType: protocol.MessageHandshake, receiver: Broadcast, raw: raw, mode: "handshake"})
}

func (c *Codec) attachEmbeddings(nodes []graph.Node, embeddings map[string][]float32) {
	if len(embeddings) == 0 {
		return
	}
	keys := make([]string, 0, len(embeddings))
	for k := range embeddings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	byConcept := make(map[uint32][]float32, len(keys))
	byText := make(map[string][]float32, len(keys))
	for _, k := range keys {
		word := strings.ToLower(strings.TrimSpace(k))
		byText[word] = embeddings[k]
		if id, ok := c.atlas.Resolve(word); ok {
			byConcept[uint32(id)] = embeddings[k]
		}
	}
	for i := range nodes {
		n := &nodes[i]
		vec, ok := byConcept[n.SemanticID]
		if !ok || n.SemanticID == 0 {
			vec, ok = byText[strings.ToLower(n.Literal.Text())]
		}
		if !ok || len(vec) == 0 {
			continue
		}
		n.Embedding = &graph.Embedding{Values: append([]float32(nil), vec...), ModelTag: c.embeddingTag}
	}
}

func (c *Codec) sealGraph(env envelope, g graph.Graph) ([]byte, error) {
	raw, err := graph.Canonical(g)
	if err != nil {
		return nil, err
	}
	env.raw = raw
	return c.seal(env)
}

type envelope struct {
	msgType  protocol.MessageType
	receiver string
	raw      []byte
	meta     *compiler.Metadata
	isDelta  bool
	parent   string
	mode     string
}

// seal builds, signs and serializes one envelope. Fields are emitted in
// id order so that equal inputs produce equal bytes.
func (c *Codec) seal(env envelope) ([]byte, error) {
	now := c.now()
	fields := []protocol.Field{
		protocol.NewFieldString(schema.FieldSender, c.agentID),
		protocol.NewFieldString(schema.FieldReceiver, env.receiver),
		protocol.NewFieldUint64(schema.FieldTimestamp, uint64(now.Unix())),
		protocol.NewFieldString(schema.FieldMessageID, ulid.Make().String()),
		protocol.NewFieldString(schema.FieldProtocolVersion, ProtocolVersion),
	}
	if env.meta != nil {
		fields = append(fields,
			protocol.NewFieldFloat64(schema.FieldUrgency, env.meta.Urgency),
			protocol.NewFieldUint8(schema.FieldStyle, uint8(env.meta.Style)),
		)
		if env.meta.Frame != nil {
			frame := *env.meta.Frame
			if frame.Timestamp == 0 {
				frame.Timestamp = now.Unix()
			}
			b, err := codec.Marshal(frame)
			if err != nil {
				return nil, err
			}
			fields = append(fields, protocol.NewFieldBytes(schema.FieldEnvFrame, b))
		}
		fields = append(fields,
			protocol.NewFieldBool(schema.FieldIsDelta, env.isDelta),
			protocol.NewFieldString(schema.FieldParentHash, env.parent),
		)
	}
	fields = append(fields, protocol.NewFieldString(schema.FieldSemanticHash, graph.SemanticHash(env.raw)))

	var flags uint32
	payload := env.raw
	if c.compression != CompressionNone {
		if packed, err := compress(c.compression, env.raw); err == nil {
			payload = packed
			flags |= protocol.FlagCompressed
			fields = append(fields,
				protocol.NewFieldString(schema.FieldCompression, string(c.compression)),
				protocol.NewFieldUint32(schema.FieldRawLength, uint32(len(env.raw))),
			)
		}
	}
	fields = append(fields, protocol.NewFieldBytes(schema.FieldPayload, payload))
	if env.isDelta {
		flags |= protocol.FlagDelta
	}

	signed, err := protocol.EncodeFields(fields)
	if err != nil {
		return nil, err
	}
	sig, err := c.signer.Sign(signed)
	if err != nil {
		return nil, fmt.Errorf("message: sign: %w", err)
	}
	block, err := schema.EncodeSignature(schema.Signature{Algorithm: c.signer.Algorithm(), Bytes: sig})
	if err != nil {
		return nil, err
	}
	msg := &protocol.Message{
		Header: protocol.Header{
			Sequence:    c.seq.Add(1),
			MessageType: env.msgType,
			Flags:       flags | protocol.FlagHasAuth,
		},
		AuthBlock: block,
		Fields:    fields,
	}
	out, err := protocol.Marshal(msg)
	if err != nil {
		return nil, err
	}
	observability.RecordEncode(env.mode, len(out))
	return out, nil
}

// Decode parses, verifies and interprets one envelope. Only envelope
// parse failures, unknown payloads, and verification failures under
// StrictSignatures return an error; the error is always a *DecodeError.
func (c *Codec) Decode(ctx context.Context, data []byte) (*Decoded, error) {
	_, span := tracer.Start(ctx, "message.Decode", trace.WithAttributes(attribute.Int("ual.bytes", len(data))))
	defer span.End()

	out, err := c.decode(data)
	if err != nil {
		var de *DecodeError
		kind := KindMalformed
		if errors.As(err, &de) {
			kind = de.Kind
		}
		span.SetStatus(codes.Error, err.Error())
		observability.RecordDecode("unknown", string(kind), len(data))
		log.Warn().Str("component", "message").Str("kind", string(kind)).Err(err).Msg("decode failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("ual.type", out.Type),
		attribute.String("ual.sender", out.Sender),
		attribute.Bool("ual.verified", out.Verified),
	)
	result := "ok"
	if !out.Verified {
		result = "unverified"
	}
	observability.RecordDecode(out.Type, result, len(data))
	return out, nil
}

func (c *Codec) decode(data []byte) (*Decoded, error) {
	r := bytes.NewReader(data)
	msg, err := protocol.DecodeWithLimits(r, c.limits)
	if err != nil {
		return nil, malformed(err)
	}
	if r.Len() != 0 {
		return nil, malformed(protocol.ErrTrailingData)
	}
	if msg.Header.MessageType != protocol.MessageGraph && msg.Header.MessageType != protocol.MessageHandshake {
		return nil, &DecodeError{Kind: KindPayload, Err: fmt.Errorf("%w: %d", ErrUnknownPayload, msg.Header.MessageType)}
	}
	sem, err := schema.Validate(msg)
	if err != nil {
		return nil, malformed(err)
	}

	out := &Decoded{
		Type:            msg.Header.MessageType.String(),
		Sender:          sem.Fields[schema.FieldSender].String,
		Receiver:        sem.Fields[schema.FieldReceiver].String,
		Timestamp:       int64(sem.Fields[schema.FieldTimestamp].Uint64),
		MessageID:       sem.Fields[schema.FieldMessageID].String,
		ProtocolVersion: sem.Fields[schema.FieldProtocolVersion].String,
		SemanticHash:    sem.Fields[schema.FieldSemanticHash].String,
		ParentHash:      sem.Fields[schema.FieldParentHash].String,
		IsDelta:         sem.Fields[schema.FieldIsDelta].Bool,
		Urgency:         sem.Fields[schema.FieldUrgency].Float64,
		Style:           graph.Style(sem.Fields[schema.FieldStyle].Uint8),
		Compression:     sem.Fields[schema.FieldCompression].String,
	}

	raw, err := c.payload(sem)
	if err != nil {
		return nil, malformed(err)
	}

	var (
		hs *Handshake
		g  graph.Graph
	)
	switch msg.Header.MessageType {
	case protocol.MessageHandshake:
		hs = &Handshake{}
		if err := codec.Unmarshal(raw, hs); err != nil {
			return nil, malformed(err)
		}
	case protocol.MessageGraph:
		if err := codec.Unmarshal(raw, &g); err != nil {
			return nil, malformed(err)
		}
		if sem.Has(schema.FieldEnvFrame) {
			var frame graph.EnvFrame
			if err := codec.Unmarshal(sem.Fields[schema.FieldEnvFrame].Bytes, &frame); err != nil {
				return nil, malformed(err)
			}
			out.Frame = &frame
		}
	}

	if err := c.verify(msg, out, hs, raw); err != nil {
		return nil, err
	}

	if hs != nil {
		c.activate(out.Sender, hs.Namespaces)
		out.Handshake = hs
		out.NaturalLanguage = handshakeSummary(*hs)
		return out, nil
	}

	if out.IsDelta {
		var complete bool
		g, complete = c.tracker.ApplyDelta(g, out.Sender)
		out.Partial = !complete
		if out.Partial {
			log.Warn().
				Str("component", "message").
				Str("peer", out.Sender).
				Str("message_id", out.MessageID).
				Msg("delta applied without sender state, graph is partial")
		}
	}
	out.ContextID = g.ContextID
	out.Nodes = g.Nodes
	out.Edges = g.Edges
	out.NaturalLanguage = Summarize(c.atlas, g)
	return out, nil
}

func (c *Codec) payload(sem *protocol.SemanticMessage) ([]byte, error) {
	return unpack(sem, c.limits)
}

// unpack returns the uncompressed payload field of sem.
func unpack(sem *protocol.SemanticMessage, limits protocol.Limits) ([]byte, error) {
	data := sem.Fields[schema.FieldPayload].Bytes
	comp, err := ParseCompression(sem.Fields[schema.FieldCompression].String)
	if err != nil {
		return nil, err
	}
	if comp == CompressionNone {
		return data, nil
	}
	if !sem.Has(schema.FieldRawLength) {
		return nil, protocol.MissingFieldError{FieldID: schema.FieldRawLength}
	}
	rawLen := uint64(sem.Fields[schema.FieldRawLength].Uint32)
	if rawLen > limits.MaxPayloadBytes {
		return nil, protocol.ErrPayloadTooLarge
	}
	return decompress(comp, data, int(rawLen))
}

// verify checks the semantic hash and the signature. Failures are
// reported through out.Verified unless the codec is strict.
func (c *Codec) verify(msg *protocol.Message, out *Decoded, hs *Handshake, raw []byte) error {
	var failure error
	kind := KindSignature
	if graph.SemanticHash(raw) != out.SemanticHash {
		failure = ErrHashMismatch
		kind = KindIntegrity
	} else if err := c.checkSignature(msg, out, hs); err != nil {
		failure = fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
	if failure == nil {
		out.Verified = true
		return nil
	}
	if c.strict {
		return &DecodeError{Kind: kind, Err: failure}
	}
	log.Warn().
		Str("component", "message").
		Str("peer", out.Sender).
		Str("message_id", out.MessageID).
		Err(failure).
		Msg("accepting unverified envelope")
	return nil
}

func (c *Codec) checkSignature(msg *protocol.Message, out *Decoded, hs *Handshake) error {
	if msg.Header.Flags&protocol.FlagHasAuth == 0 || len(msg.AuthBlock) == 0 {
		return errors.New("envelope is unsigned")
	}
	sig, err := schema.DecodeSignature(msg.AuthBlock)
	if err != nil {
		return err
	}
	out.Algorithm = sig.Algorithm
	signed, err := protocol.EncodeFields(msg.Fields)
	if err != nil {
		return err
	}
	if hs != nil && len(hs.PublicKey) > 0 && sig.Algorithm == signing.AlgEd25519 {
		if hs.AgentID != out.Sender {
			return fmt.Errorf("handshake agent %q differs from sender %q", hs.AgentID, out.Sender)
		}
		if err := signing.VerifyKey(hs.PublicKey, signed, sig.Bytes); err != nil {
			return err
		}
		if err := c.keys.Trust(out.Sender, hs.PublicKey); err != nil {
			return err
		}
	}
	return c.verifier.Verify(out.Sender, sig.Algorithm, signed, sig.Bytes)
}

func (c *Codec) activate(sender string, namespaces []string) {
	for _, ns := range namespaces {
		if err := c.atlas.Activate(ns); err != nil {
			log.Debug().Str("component", "message").Str("peer", sender).Str("namespace", ns).Err(err).Msg("handshake namespace not available")
			continue
		}
		log.Info().Str("component", "message").Str("peer", sender).Str("namespace", ns).Msg("namespace activated by handshake")
	}
}
